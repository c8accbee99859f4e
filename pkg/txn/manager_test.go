package txn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ledgerdb/pkg/buffer"
	"ledgerdb/pkg/disk"
	"ledgerdb/pkg/lock"
	"ledgerdb/pkg/records"
	"ledgerdb/pkg/types"
	"ledgerdb/pkg/wal"
)

const testPageSize = 256
const testSlotSize = 32

func newTestManager(t *testing.T) (*Manager, *buffer.BufferPoolManager, types.RID) {
	t.Helper()
	return newTestManagerStrict(t, true)
}

func newTestManagerStrict(t *testing.T, strict2PL bool) (*Manager, *buffer.BufferPoolManager, types.RID) {
	t.Helper()

	d := disk.NewMemManager(testPageSize)
	logMgr := wal.NewLogManager(d, testPageSize, time.Hour, nil)
	logMgr.Start()
	t.Cleanup(logMgr.Stop)

	bpm := buffer.NewBufferPoolManager(8, testPageSize, d, logMgr, nil)
	locks := lock.NewLockManager(nil, strict2PL)
	m := NewManager(locks, logMgr, bpm, testSlotSize)

	pageID, frame, ok := bpm.NewPage()
	require.True(t, ok)
	records.Init(frame.Data, testSlotSize)
	bpm.Unpin(pageID, true)

	return m, bpm, types.RID{PageID: pageID, Slot: 0}
}

func TestInsertThenReadUnderSameTxn(t *testing.T) {
	m, _, rid := newTestManager(t)

	tx := m.Begin()
	require.NoError(t, m.Insert(tx, rid, []byte("hello")))

	got, err := m.Read(tx, rid)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	require.NoError(t, m.Commit(tx))
	require.Equal(t, Committed, tx.State())
}

func TestUpdateTracksOldTupleForUndo(t *testing.T) {
	m, _, rid := newTestManager(t)

	tx := m.Begin()
	require.NoError(t, m.Insert(tx, rid, []byte("v1")))
	require.NoError(t, m.Update(tx, rid, []byte("v2")))

	ws := tx.WriteSet()
	require.Len(t, ws, 2)
	require.Equal(t, OpUpdate, ws[1].Kind)
	require.Equal(t, []byte("v1"), ws[1].OldTuple)

	require.NoError(t, m.Commit(tx))
}

func TestAbortUndoesInsertInReverseOrder(t *testing.T) {
	m, _, rid := newTestManager(t)

	tx := m.Begin()
	require.NoError(t, m.Insert(tx, rid, []byte("v1")))
	require.NoError(t, m.Update(tx, rid, []byte("v2")))
	require.NoError(t, m.Abort(tx))

	require.Equal(t, Aborted, tx.State())

	tx2 := m.Begin()
	got, err := m.Read(tx2, rid)
	require.NoError(t, err)
	require.Nil(t, got, "aborted insert must not be visible")
	require.NoError(t, m.Commit(tx2))
}

func TestDeleteThenAbortRollsBack(t *testing.T) {
	m, _, rid := newTestManager(t)

	tx := m.Begin()
	require.NoError(t, m.Insert(tx, rid, []byte("v1")))
	require.NoError(t, m.Commit(tx))

	tx2 := m.Begin()
	require.NoError(t, m.Delete(tx2, rid))
	require.NoError(t, m.Abort(tx2))

	tx3 := m.Begin()
	got, err := m.Read(tx3, rid)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got, "rollback-delete must restore the marked-deleted tuple")
	require.NoError(t, m.Commit(tx3))
}

func TestYoungerTxnDiesUnderWaitDieAndIsAutoAborted(t *testing.T) {
	m, _, rid := newTestManager(t)

	older := m.Begin()
	younger := m.Begin()
	require.Less(t, int64(older.ID()), int64(younger.ID()))

	require.NoError(t, m.Insert(older, rid, []byte("v1")))

	err := m.Insert(younger, rid, []byte("v2"))
	require.Error(t, err)
	require.Equal(t, Aborted, younger.State(), "a lock failure must auto-abort the requester")

	require.NoError(t, m.Commit(older))
}

func TestUnlockUnderStrict2PLAbortsTheTransaction(t *testing.T) {
	m, _, rid := newTestManagerStrict(t, true)

	tx := m.Begin()
	require.NoError(t, m.Insert(tx, rid, []byte("v1")))

	err := m.Unlock(tx, rid)
	require.Error(t, err, "strict 2PL must refuse an early unlock")
	require.Equal(t, Aborted, tx.State())
}

func TestUnlockUnderNonStrict2PLEntersShrinkingThenAbortsOnFurtherAcquire(t *testing.T) {
	m, bpm, rid := newTestManagerStrict(t, false)

	otherPageID, frame, ok := bpm.NewPage()
	require.True(t, ok)
	records.Init(frame.Data, testSlotSize)
	bpm.Unpin(otherPageID, true)
	other := types.RID{PageID: otherPageID, Slot: 0}

	tx := m.Begin()
	require.NoError(t, m.Insert(tx, rid, []byte("v1")))

	require.NoError(t, m.Unlock(tx, rid))
	require.Equal(t, Shrinking, tx.State())

	_, err := m.Read(tx, other)
	require.Error(t, err, "acquiring a new lock after the shrinking phase began must abort the transaction")
	require.Equal(t, Aborted, tx.State())
}
