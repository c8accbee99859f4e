package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ledgerdb/pkg/types"
)

func newTestFileManager(t *testing.T) *FileManager {
	t.Helper()
	dir := t.TempDir()
	fm, err := NewFileManager(filepath.Join(dir, "data.db"), filepath.Join(dir, "log.db"), 64)
	require.NoError(t, err)
	t.Cleanup(func() { fm.Close() })
	return fm
}

func TestAllocateWriteReadPageRoundTrip(t *testing.T) {
	fm := newTestFileManager(t)

	pageID, err := fm.AllocatePage()
	require.NoError(t, err)

	want := make([]byte, 64)
	copy(want, []byte("hello page"))
	require.NoError(t, fm.WritePage(pageID, want))

	got := make([]byte, 64)
	require.NoError(t, fm.ReadPage(pageID, got))
	require.Equal(t, want, got)
}

func TestReadUnallocatedPageFails(t *testing.T) {
	fm := newTestFileManager(t)

	_, err := fm.AllocatePage()
	require.NoError(t, err)

	buf := make([]byte, 64)
	err = fm.ReadPage(types.PageID(999), buf)
	require.Error(t, err)
	var notAlloc *ErrPageNotAllocated
	require.ErrorAs(t, err, &notAlloc)
}

func TestDeallocatedPageIDIsReused(t *testing.T) {
	fm := newTestFileManager(t)

	p1, err := fm.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, fm.DeallocatePage(p1))

	p2, err := fm.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, p1, p2)
}

func TestLogAppendAndRead(t *testing.T) {
	fm := newTestFileManager(t)

	require.NoError(t, fm.WriteLog([]byte("first-")))
	require.NoError(t, fm.WriteLog([]byte("second")))

	buf := make([]byte, 12)
	n, ok, err := fm.ReadLog(buf, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "first-second", string(buf[:n]))
}

func TestReadLogPastEndReturnsNotOK(t *testing.T) {
	fm := newTestFileManager(t)
	require.NoError(t, fm.WriteLog([]byte("x")))

	buf := make([]byte, 16)
	_, ok, err := fm.ReadLog(buf, 1000)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReopeningFileManagerPicksUpNextPageFromFileSize(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.db")
	logPath := filepath.Join(dir, "log.db")

	fm1, err := NewFileManager(dataPath, logPath, 64)
	require.NoError(t, err)
	p1, err := fm1.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, fm1.WritePage(p1, make([]byte, 64)))
	require.NoError(t, fm1.Close())

	fm2, err := NewFileManager(dataPath, logPath, 64)
	require.NoError(t, err)
	t.Cleanup(func() { fm2.Close() })

	p2, err := fm2.AllocatePage()
	require.NoError(t, err)
	require.Greater(t, int32(p2), int32(p1))
}
