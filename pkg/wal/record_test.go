package wal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ledgerdb/pkg/types"
)

func TestInsertRecordRoundTrip(t *testing.T) {
	r := &LogRecord{
		LSN:     5,
		TxnID:   1,
		PrevLSN: 3,
		Type:    InsertRecord,
		RID:     types.RID{PageID: 7, Slot: 2},
		Tuple:   []byte("hello"),
	}

	buf := r.Serialize()
	got, err := Deserialize(buf)
	require.NoError(t, err)

	require.Equal(t, r.LSN, got.LSN)
	require.Equal(t, r.TxnID, got.TxnID)
	require.Equal(t, r.PrevLSN, got.PrevLSN)
	require.Equal(t, r.RID, got.RID)
	require.Equal(t, r.Tuple, got.Tuple)
}

func TestUpdateRecordRoundTrip(t *testing.T) {
	r := &LogRecord{
		Type:     UpdateRecord,
		RID:      types.RID{PageID: 1, Slot: 0},
		OldTuple: []byte("old"),
		Tuple:    []byte("new-value"),
	}

	got, err := Deserialize(r.Serialize())
	require.NoError(t, err)
	require.Equal(t, r.OldTuple, got.OldTuple)
	require.Equal(t, r.Tuple, got.Tuple)
}

func TestNewPageRecordCarriesBothPageIDs(t *testing.T) {
	r := &LogRecord{
		Type:       NewPageRecord,
		RID:        types.RID{PageID: 9},
		PrevPageID: 4,
	}

	got, err := Deserialize(r.Serialize())
	require.NoError(t, err)
	require.Equal(t, types.PageID(9), got.RID.PageID)
	require.Equal(t, types.PageID(4), got.PrevPageID)
}

func TestBeginCommitAbortHaveNoPayload(t *testing.T) {
	for _, ty := range []RecordType{BeginRecord, CommitRecord, AbortRecord} {
		r := &LogRecord{Type: ty, TxnID: 2}
		got, err := Deserialize(r.Serialize())
		require.NoError(t, err)
		require.Equal(t, ty, got.Type)
		require.Equal(t, HeaderSize, len(r.Serialize()))
	}
}

func TestDeserializeRejectsTruncatedHeader(t *testing.T) {
	_, err := Deserialize([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrCorruptRecord)
}

func TestDeserializeRejectsBadSize(t *testing.T) {
	buf := make([]byte, HeaderSize)
	// size field (bytes 0:4) left at zero -> non-positive declared size.
	_, err := Deserialize(buf)
	require.ErrorIs(t, err, ErrCorruptRecord)
}
