package txn

import (
	"sync"
	"sync/atomic"

	"ledgerdb/pkg/buffer"
	"ledgerdb/pkg/dberrors"
	"ledgerdb/pkg/lock"
	"ledgerdb/pkg/logging"
	"ledgerdb/pkg/records"
	"ledgerdb/pkg/types"
	"ledgerdb/pkg/wal"
)

// Manager owns the active transaction table and is the sole entry point
// for beginning, committing, and aborting transactions, and for the
// locked, logged, buffer-pool-backed tuple operations that accumulate a
// transaction's write set.
type Manager struct {
	mu     sync.Mutex
	nextID int64
	active map[types.TxnID]*Transaction

	locks *lock.LockManager
	log   *wal.LogManager
	bpm   *buffer.BufferPoolManager

	slotSize int
}

// NewManager wires a transaction manager to the given lock manager, log
// manager, and buffer pool. slotSize is the fixed tuple capacity record
// pages were formatted with.
func NewManager(locks *lock.LockManager, logMgr *wal.LogManager, bpm *buffer.BufferPoolManager, slotSize int) *Manager {
	return &Manager{
		active:   make(map[types.TxnID]*Transaction),
		locks:    locks,
		log:      logMgr,
		bpm:      bpm,
		slotSize: slotSize,
	}
}

// Begin starts a new transaction, writes its BEGIN record, and registers
// it as active.
func (m *Manager) Begin() *Transaction {
	id := types.TxnID(atomic.AddInt64(&m.nextID, 1) - 1)
	t := newTransaction(id)

	lsn := m.log.Append(&wal.LogRecord{TxnID: id, Type: wal.BeginRecord, PrevLSN: types.InvalidLSN})
	t.setPrevLSN(lsn)

	m.mu.Lock()
	m.active[id] = t
	m.mu.Unlock()

	logging.WithTx(int64(id)).Debugw("transaction started")
	return t
}

// Commit force-flushes the transaction's COMMIT record (spec.md §4.5's
// force-at-commit rule), releases every lock it holds, and marks it
// committed.
func (m *Manager) Commit(t *Transaction) error {
	t.setState(Shrinking)

	lsn := m.log.Append(&wal.LogRecord{TxnID: t.ID(), Type: wal.CommitRecord, PrevLSN: t.PrevLSN()})
	t.setPrevLSN(lsn)
	m.log.ForceFlushAndWait()

	m.locks.UnlockAll(t.ID())
	t.setState(Committed)

	m.mu.Lock()
	delete(m.active, t.ID())
	m.mu.Unlock()

	logging.WithTx(int64(t.ID())).Debugw("transaction committed")
	return nil
}

// Abort undoes every write in the transaction's write set in reverse
// order, writes its ABORT record, releases its locks, and marks it
// aborted. Unlike crash recovery, this undo runs against the live buffer
// pool directly from the in-memory write set rather than replaying the log.
func (m *Manager) Abort(t *Transaction) error {
	t.setState(Shrinking)

	writeSet := t.WriteSet()
	for i := len(writeSet) - 1; i >= 0; i-- {
		if err := m.undoWrite(t, writeSet[i]); err != nil {
			return err
		}
	}

	lsn := m.log.Append(&wal.LogRecord{TxnID: t.ID(), Type: wal.AbortRecord, PrevLSN: t.PrevLSN()})
	t.setPrevLSN(lsn)
	m.log.ForceFlushAndWait()

	m.locks.UnlockAll(t.ID())
	t.setState(Aborted)

	m.mu.Lock()
	delete(m.active, t.ID())
	m.mu.Unlock()

	logging.WithTx(int64(t.ID())).Debugw("transaction aborted")
	return nil
}

func (m *Manager) undoWrite(t *Transaction, wr WriteRecord) error {
	frame, ok := m.bpm.Fetch(wr.RID.PageID)
	if !ok {
		return dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "undoWrite: page unavailable")
	}
	defer m.bpm.Unpin(wr.RID.PageID, true)

	page := records.Wrap(frame.Data)
	slot := int(wr.RID.Slot)

	switch wr.Kind {
	case OpInsert:
		return page.ApplyDelete(slot)
	case OpUpdate:
		return page.Update(slot, wr.OldTuple)
	case OpDelete:
		return page.RollbackDelete(slot)
	}
	return nil
}

// Insert locks rid exclusively, appends an INSERT record, writes tuple
// into the record page, and adds the write to the transaction's undo set.
func (m *Manager) Insert(t *Transaction, rid types.RID, tuple []byte) error {
	if err := m.lockExclusive(t, rid); err != nil {
		return err
	}

	lsn := m.log.Append(&wal.LogRecord{TxnID: t.ID(), Type: wal.InsertRecord, PrevLSN: t.PrevLSN(), RID: rid, Tuple: tuple})
	t.setPrevLSN(lsn)

	frame, ok := m.bpm.Fetch(rid.PageID)
	if !ok {
		return dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "Insert: page unavailable")
	}
	page := records.Wrap(frame.Data)
	if err := page.Insert(int(rid.Slot), tuple); err != nil {
		m.bpm.Unpin(rid.PageID, false)
		return err
	}
	page.SetPageLSN(lsn)
	m.bpm.Unpin(rid.PageID, true)

	t.appendWrite(WriteRecord{RID: rid, Kind: OpInsert, NewTuple: tuple})
	return nil
}

// Update locks rid exclusively, appends an UPDATE record carrying both old
// and new tuple bytes, and overwrites the slot.
func (m *Manager) Update(t *Transaction, rid types.RID, newTuple []byte) error {
	if err := m.lockExclusive(t, rid); err != nil {
		return err
	}

	frame, ok := m.bpm.Fetch(rid.PageID)
	if !ok {
		return dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "Update: page unavailable")
	}
	page := records.Wrap(frame.Data)
	oldTuple, _, err := page.Get(int(rid.Slot))
	if err != nil {
		m.bpm.Unpin(rid.PageID, false)
		return err
	}

	lsn := m.log.Append(&wal.LogRecord{TxnID: t.ID(), Type: wal.UpdateRecord, PrevLSN: t.PrevLSN(), RID: rid, OldTuple: oldTuple, Tuple: newTuple})
	t.setPrevLSN(lsn)

	if err := page.Update(int(rid.Slot), newTuple); err != nil {
		m.bpm.Unpin(rid.PageID, false)
		return err
	}
	page.SetPageLSN(lsn)
	m.bpm.Unpin(rid.PageID, true)

	t.appendWrite(WriteRecord{RID: rid, Kind: OpUpdate, OldTuple: oldTuple, NewTuple: newTuple})
	return nil
}

// Delete marks rid's slot deleted (a soft delete undoable by abort).
// Commit does not physically remove the tuple: the slot stays marked
// deleted, and no APPLYDELETE record is written for it.
func (m *Manager) Delete(t *Transaction, rid types.RID) error {
	if err := m.lockExclusive(t, rid); err != nil {
		return err
	}

	lsn := m.log.Append(&wal.LogRecord{TxnID: t.ID(), Type: wal.MarkDeleteRecord, PrevLSN: t.PrevLSN(), RID: rid})
	t.setPrevLSN(lsn)

	frame, ok := m.bpm.Fetch(rid.PageID)
	if !ok {
		return dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "Delete: page unavailable")
	}
	page := records.Wrap(frame.Data)
	if err := page.MarkDeleted(int(rid.Slot)); err != nil {
		m.bpm.Unpin(rid.PageID, false)
		return err
	}
	page.SetPageLSN(lsn)
	m.bpm.Unpin(rid.PageID, true)

	t.appendWrite(WriteRecord{RID: rid, Kind: OpDelete})
	return nil
}

// Read locks rid in shared mode and returns its current tuple bytes.
func (m *Manager) Read(t *Transaction, rid types.RID) ([]byte, error) {
	if err := m.lockShared(t, rid); err != nil {
		return nil, err
	}

	frame, ok := m.bpm.Fetch(rid.PageID)
	if !ok {
		return nil, dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "Read: page unavailable")
	}
	defer m.bpm.Unpin(rid.PageID, false)

	page := records.Wrap(frame.Data)
	tuple, found, err := page.Get(int(rid.Slot))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return tuple, nil
}

func (m *Manager) lockShared(t *Transaction, rid types.RID) error {
	if err := m.locks.LockShared(t.ID(), rid); err != nil {
		return m.abortOnLockFailure(t, err)
	}
	t.recordSharedLock(rid)
	return nil
}

func (m *Manager) lockExclusive(t *Transaction, rid types.RID) error {
	if err := m.locks.LockExclusive(t.ID(), rid); err != nil {
		return m.abortOnLockFailure(t, err)
	}
	t.recordExclusiveLock(rid)
	return nil
}

// Unlock releases a single rid ahead of commit or abort. Under strict 2PL
// (the default, spec.md §4.4) this always aborts the transaction: every
// lock it holds must be released atomically at commit or abort, never one
// at a time beforehand. Under non-strict 2PL the release succeeds once and
// moves the transaction from GROWING to SHRINKING; any lock it tries to
// acquire afterward aborts it in turn.
func (m *Manager) Unlock(t *Transaction, rid types.RID) error {
	switch t.State() {
	case Committed, Aborted:
		return dberrors.New(dberrors.ErrCategoryConcurrency, "TRANSACTION_FINISHED", "cannot unlock: transaction already committed or aborted")
	}

	if err := m.locks.ReleaseLock(t.ID(), rid); err != nil {
		return m.abortOnLockFailure(t, err)
	}

	if t.State() == Growing {
		t.setState(Shrinking)
	}
	return nil
}

// abortOnLockFailure rolls the transaction back when wait-die kills it, so
// callers only ever have to handle a single returned error.
func (m *Manager) abortOnLockFailure(t *Transaction, lockErr error) error {
	if abortErr := m.Abort(t); abortErr != nil {
		logging.WithTx(int64(t.ID())).Errorw("abort after lock failure also failed", "error", abortErr)
	}
	wrapped := dberrors.Wrap(lockErr, "TRANSACTION_ABORT", "acquire", "txn")
	wrapped.Category = dberrors.ErrCategoryConcurrency
	return wrapped
}
