// Package recovery implements the two-pass (redo then undo) crash recovery
// algorithm run once at startup. It deliberately has no ARIES compensation
// log records or checkpoints: undo re-applies the inverse of each record
// directly, and a crash during undo simply restarts recovery from the
// beginning — idempotent because every redo action is gated on the target
// page's page_lsn (spec.md §4.4).
//
// This package depends on both pkg/buffer and pkg/wal; pkg/buffer depends
// on pkg/wal but not on this package, so there is no import cycle.
package recovery

import (
	"encoding/binary"

	"ledgerdb/pkg/buffer"
	"ledgerdb/pkg/disk"
	"ledgerdb/pkg/logging"
	"ledgerdb/pkg/records"
	"ledgerdb/pkg/types"
	"ledgerdb/pkg/wal"
)

// Recovery replays the write-ahead log against the page store on startup.
type Recovery struct {
	disk disk.Manager
	bpm  *buffer.BufferPoolManager
}

// New returns a Recovery that reads the log from d and applies pages
// through bpm.
func New(d disk.Manager, bpm *buffer.BufferPoolManager) *Recovery {
	return &Recovery{disk: d, bpm: bpm}
}

// txnInfo tracks what the redo pass learns about one transaction: whether
// it reached COMMIT or ABORT before the log ends, and the LSN of its most
// recent record (the undo pass's starting point if it never did).
type txnInfo struct {
	lastLSN  types.LSN
	finished bool
}

// Recover runs the full redo-then-undo pass. It is idempotent: calling it
// again on an already-recovered log (or one that crashed mid-recovery) is
// safe.
func (rc *Recovery) Recover() error {
	log := logging.WithComponent("recovery")

	lsnOffset, txns, err := rc.redoPass()
	if err != nil {
		return err
	}
	log.Infow("redo pass complete", "records_seen", len(lsnOffset), "txns_seen", len(txns))

	if err := rc.undoPass(lsnOffset, txns); err != nil {
		return err
	}
	log.Infow("undo pass complete")
	return nil
}

// redoPass scans the log from the beginning, re-applying every data
// record whose target page's page_lsn is behind the record's own LSN, and
// building the LSN-to-byte-offset index and per-transaction bookkeeping the
// undo pass needs.
func (rc *Recovery) redoPass() (map[types.LSN]int64, map[types.TxnID]*txnInfo, error) {
	lsnOffset := make(map[types.LSN]int64)
	txns := make(map[types.TxnID]*txnInfo)

	var offset int64
	header := make([]byte, wal.HeaderSize)

	for {
		n, ok, err := rc.disk.ReadLog(header, offset)
		if err != nil {
			return nil, nil, err
		}
		if !ok || n < wal.HeaderSize {
			break
		}

		size := binary.LittleEndian.Uint32(header[0:4])
		if size < wal.HeaderSize {
			break
		}

		full := make([]byte, size)
		n2, ok2, err := rc.disk.ReadLog(full, offset)
		if err != nil {
			return nil, nil, err
		}
		if !ok2 || n2 < int(size) {
			break
		}

		rec, err := wal.Deserialize(full)
		if err != nil {
			// A truncated or corrupt tail record is treated as the end of
			// the log during redo, never a fatal error (spec.md §7).
			break
		}

		lsnOffset[rec.LSN] = offset
		info, seen := txns[rec.TxnID]
		if !seen {
			info = &txnInfo{}
			txns[rec.TxnID] = info
		}
		info.lastLSN = rec.LSN

		switch rec.Type {
		case wal.CommitRecord, wal.AbortRecord:
			info.finished = true
		case wal.BeginRecord:
			// no page-level action
		default:
			if err := rc.redoRecord(rec); err != nil {
				return nil, nil, err
			}
		}

		offset += int64(size)
	}

	return lsnOffset, txns, nil
}

// redoRecord re-applies rec's effect to its target page if the page's
// current page_lsn is older than rec.LSN, and no-ops otherwise — the gate
// that makes repeated redo of an already-durable change safe.
func (rc *Recovery) redoRecord(rec *wal.LogRecord) error {
	pageID := rec.RID.PageID
	frame, ok := rc.bpm.Fetch(pageID)
	if !ok {
		return nil // page no longer exists; nothing to redo against
	}
	defer rc.bpm.Unpin(pageID, true)

	page := records.Wrap(frame.Data)
	if page.PageLSN() >= rec.LSN {
		return nil
	}

	switch rec.Type {
	case wal.InsertRecord:
		if err := page.Insert(int(rec.RID.Slot), rec.Tuple); err != nil {
			return err
		}
	case wal.UpdateRecord:
		if err := page.Update(int(rec.RID.Slot), rec.Tuple); err != nil {
			return err
		}
	case wal.ApplyDeleteRecord:
		if err := page.ApplyDelete(int(rec.RID.Slot)); err != nil {
			return err
		}
	case wal.MarkDeleteRecord:
		if err := page.MarkDeleted(int(rec.RID.Slot)); err != nil {
			return err
		}
	case wal.RollbackDeleteRecord:
		if err := page.RollbackDelete(int(rec.RID.Slot)); err != nil {
			return err
		}
	case wal.NewPageRecord:
		// The page's allocation already happened when the record was
		// first written; redo only needs to stamp the LSN below.
	}

	page.SetPageLSN(rec.LSN)
	return nil
}

// undoPass walks backward from every transaction that never reached
// COMMIT or ABORT, following each record's prev_lsn chain via the offset
// index built during redo, undoing each record's effect in turn.
func (rc *Recovery) undoPass(lsnOffset map[types.LSN]int64, txns map[types.TxnID]*txnInfo) error {
	for txnID, info := range txns {
		if info.finished {
			continue
		}

		lsn := info.lastLSN
		for lsn != types.InvalidLSN {
			offset, ok := lsnOffset[lsn]
			if !ok {
				break
			}

			rec, err := rc.readRecordAt(offset)
			if err != nil {
				return err
			}
			if rec.TxnID != txnID {
				break
			}

			if err := rc.undoRecord(rec); err != nil {
				return err
			}

			lsn = rec.PrevLSN
		}
	}
	return nil
}

func (rc *Recovery) readRecordAt(offset int64) (*wal.LogRecord, error) {
	header := make([]byte, wal.HeaderSize)
	if _, _, err := rc.disk.ReadLog(header, offset); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(header[0:4])
	full := make([]byte, size)
	if _, _, err := rc.disk.ReadLog(full, offset); err != nil {
		return nil, err
	}
	return wal.Deserialize(full)
}

// undoRecord reverses rec's effect against its target page. There are no
// compensation log records: the reversed state is written directly and the
// page's page_lsn is left as redo set it, which is safe because undo runs
// once, in a single backward pass, before the system resumes normal
// operation, and each inverse effect gives the same result if applied again.
func (rc *Recovery) undoRecord(rec *wal.LogRecord) error {
	pageID := rec.RID.PageID
	frame, ok := rc.bpm.Fetch(pageID)
	if !ok {
		return nil
	}
	defer rc.bpm.Unpin(pageID, true)

	page := records.Wrap(frame.Data)

	switch rec.Type {
	case wal.InsertRecord:
		return page.ApplyDelete(int(rec.RID.Slot))
	case wal.UpdateRecord:
		return page.Update(int(rec.RID.Slot), rec.OldTuple)
	case wal.ApplyDeleteRecord:
		return page.Insert(int(rec.RID.Slot), rec.Tuple)
	case wal.MarkDeleteRecord:
		return page.RollbackDelete(int(rec.RID.Slot))
	case wal.RollbackDeleteRecord:
		return page.MarkDeleted(int(rec.RID.Slot))
	case wal.NewPageRecord, wal.BeginRecord, wal.CommitRecord, wal.AbortRecord:
		return nil
	}
	return nil
}
