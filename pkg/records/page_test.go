package records

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ledgerdb/pkg/types"
)

func newTestPage(t *testing.T, slotSize int) *RecordPage {
	t.Helper()
	buf := make([]byte, 256)
	return Init(buf, slotSize)
}

func TestInitFormatsEmptyPage(t *testing.T) {
	p := newTestPage(t, 16)
	require.Equal(t, types.InvalidLSN, p.PageLSN())
	require.Positive(t, p.Capacity())

	_, live, err := p.Get(0)
	require.NoError(t, err)
	require.False(t, live)
}

func TestInsertGetRoundTrip(t *testing.T) {
	p := newTestPage(t, 16)
	require.NoError(t, p.Insert(0, []byte("hello")))

	tuple, live, err := p.Get(0)
	require.NoError(t, err)
	require.True(t, live)
	require.Equal(t, []byte("hello"), tuple)
}

func TestUpdateOverwritesInPlace(t *testing.T) {
	p := newTestPage(t, 16)
	require.NoError(t, p.Insert(0, []byte("hello")))
	require.NoError(t, p.Update(0, []byte("world!")))

	tuple, live, err := p.Get(0)
	require.NoError(t, err)
	require.True(t, live)
	require.Equal(t, []byte("world!"), tuple)
}

func TestMarkThenRollbackDeleteRestoresTuple(t *testing.T) {
	p := newTestPage(t, 16)
	require.NoError(t, p.Insert(0, []byte("hello")))
	require.NoError(t, p.MarkDeleted(0))

	marked, err := p.IsMarkedDeleted(0)
	require.NoError(t, err)
	require.True(t, marked)

	_, live, err := p.Get(0)
	require.NoError(t, err)
	require.False(t, live, "a marked-deleted slot is not live until rolled back")

	require.NoError(t, p.RollbackDelete(0))
	tuple, live, err := p.Get(0)
	require.NoError(t, err)
	require.True(t, live)
	require.Equal(t, []byte("hello"), tuple)
}

func TestApplyDeleteDiscardsTuple(t *testing.T) {
	p := newTestPage(t, 16)
	require.NoError(t, p.Insert(0, []byte("hello")))
	require.NoError(t, p.ApplyDelete(0))

	_, live, err := p.Get(0)
	require.NoError(t, err)
	require.False(t, live)
}

func TestInsertRejectsOversizeTuple(t *testing.T) {
	p := newTestPage(t, 4)
	err := p.Insert(0, []byte("way too long for four bytes"))
	require.Error(t, err)
}

func TestOutOfRangeSlotIsRejected(t *testing.T) {
	p := newTestPage(t, 16)
	err := p.Insert(p.Capacity(), []byte("x"))
	require.ErrorIs(t, err, ErrSlotOutOfRange)
}

func TestPageLSNStamp(t *testing.T) {
	p := newTestPage(t, 16)
	p.SetPageLSN(42)
	require.Equal(t, types.LSN(42), p.PageLSN())
}

func TestWrapRecoversSlotSize(t *testing.T) {
	buf := make([]byte, 256)
	Init(buf, 16)

	p := Wrap(buf)
	require.NoError(t, p.Insert(0, []byte("hi")))
	tuple, live, err := p.Get(0)
	require.NoError(t, err)
	require.True(t, live)
	require.Equal(t, []byte("hi"), tuple)
}
