// Package wal implements the log manager (double-buffered append, monotonic
// LSN assignment, background flush) and its on-disk record format. Recovery
// lives in the sibling package pkg/recovery, which depends on both this
// package and pkg/buffer.
package wal

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"ledgerdb/pkg/types"
)

// RecordType enumerates the log record kinds spec.md §3 names. There are no
// ARIES compensation log records in this design — undo re-applies inverse
// effects directly against the record chain (spec.md §1's non-goals).
type RecordType uint32

const (
	BeginRecord RecordType = iota
	CommitRecord
	AbortRecord
	InsertRecord
	UpdateRecord
	ApplyDeleteRecord
	MarkDeleteRecord
	RollbackDeleteRecord
	NewPageRecord
)

func (t RecordType) String() string {
	switch t {
	case BeginRecord:
		return "BEGIN"
	case CommitRecord:
		return "COMMIT"
	case AbortRecord:
		return "ABORT"
	case InsertRecord:
		return "INSERT"
	case UpdateRecord:
		return "UPDATE"
	case ApplyDeleteRecord:
		return "APPLYDELETE"
	case MarkDeleteRecord:
		return "MARKDELETE"
	case RollbackDeleteRecord:
		return "ROLLBACKDELETE"
	case NewPageRecord:
		return "NEWPAGE"
	default:
		return "UNKNOWN"
	}
}

// HeaderSize is the fixed 28-byte prefix every record starts with: size(4),
// lsn(8), txn_id(4), prev_lsn(8), type(4) — the literal byte ranges spec.md
// §6 gives (0..4, 4..12, 12..16, 16..24, 24..28). Spec.md leaves the header
// "implementation-dependent... 20 or 28"; 28 is chosen here because it is
// the packing spec.md's own byte-offset table spells out, and because it
// keeps the LSN and PrevLSN fields at their full 64-bit width rather than
// truncating them (see DESIGN.md).
const HeaderSize = 28

// LogRecord is one entry in the write-ahead log.
type LogRecord struct {
	Size    int32
	LSN     types.LSN
	TxnID   types.TxnID
	PrevLSN types.LSN
	Type    RecordType

	// RID and Tuple are used by INSERT, APPLYDELETE, MARKDELETE, and
	// ROLLBACKDELETE. UPDATE additionally uses OldTuple (Tuple holds the
	// new value). NEWPAGE uses only RID.PageID (the new page) and
	// PrevPageID.
	RID      types.RID
	Tuple    []byte
	OldTuple []byte

	PrevPageID types.PageID
}

// Serialize encodes the record into its wire format: the 28-byte header
// followed by a type-specific payload (spec.md §4.5/§6).
func (r *LogRecord) Serialize() []byte {
	var payload bytes.Buffer

	switch r.Type {
	case InsertRecord, ApplyDeleteRecord, MarkDeleteRecord, RollbackDeleteRecord:
		writeRID(&payload, r.RID)
		writeTuple(&payload, r.Tuple)
	case UpdateRecord:
		writeRID(&payload, r.RID)
		writeTuple(&payload, r.OldTuple)
		writeTuple(&payload, r.Tuple)
	case NewPageRecord:
		var b [8]byte
		binary.LittleEndian.PutUint32(b[0:4], uint32(int32(r.RID.PageID)))
		binary.LittleEndian.PutUint32(b[4:8], uint32(int32(r.PrevPageID)))
		payload.Write(b[:])
	case BeginRecord, CommitRecord, AbortRecord:
		// header only
	}

	total := HeaderSize + payload.Len()
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(r.LSN))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(int32(r.TxnID)))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(r.PrevLSN))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(r.Type))
	copy(buf[HeaderSize:], payload.Bytes())

	return buf
}

func writeRID(buf *bytes.Buffer, rid types.RID) {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:4], uint32(int32(rid.PageID)))
	binary.LittleEndian.PutUint32(b[4:8], uint32(rid.Slot))
	buf.Write(b[:])
}

func writeTuple(buf *bytes.Buffer, tuple []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(tuple)))
	buf.Write(lenBuf[:])
	buf.Write(tuple)
}

// ErrCorruptRecord is returned by Deserialize when a record's declared size
// is non-positive or its header does not fit in the provided buffer —
// spec.md §7's CorruptLogRecord condition.
var ErrCorruptRecord = fmt.Errorf("corrupt log record")

// Deserialize parses a LogRecord from buf, which must contain at least the
// record's full declared size. It returns ErrCorruptRecord if the header is
// malformed (spec.md §7: treated as end-of-log during redo, fatal during
// undo — callers decide which).
func Deserialize(buf []byte) (*LogRecord, error) {
	if len(buf) < HeaderSize {
		return nil, ErrCorruptRecord
	}

	size := int32(binary.LittleEndian.Uint32(buf[0:4]))
	if size <= 0 || int(size) > len(buf) {
		return nil, ErrCorruptRecord
	}

	r := &LogRecord{
		Size:    size,
		LSN:     types.LSN(binary.LittleEndian.Uint64(buf[4:12])),
		TxnID:   types.TxnID(int32(binary.LittleEndian.Uint32(buf[12:16]))),
		PrevLSN: types.LSN(binary.LittleEndian.Uint64(buf[16:24])),
		Type:    RecordType(binary.LittleEndian.Uint32(buf[24:28])),
	}

	payload := buf[HeaderSize:size]

	switch r.Type {
	case InsertRecord, ApplyDeleteRecord, MarkDeleteRecord, RollbackDeleteRecord:
		rid, rest, err := readRID(payload)
		if err != nil {
			return nil, err
		}
		tuple, _, err := readTuple(rest)
		if err != nil {
			return nil, err
		}
		r.RID = rid
		r.Tuple = tuple
	case UpdateRecord:
		rid, rest, err := readRID(payload)
		if err != nil {
			return nil, err
		}
		oldTuple, rest, err := readTuple(rest)
		if err != nil {
			return nil, err
		}
		newTuple, _, err := readTuple(rest)
		if err != nil {
			return nil, err
		}
		r.RID = rid
		r.OldTuple = oldTuple
		r.Tuple = newTuple
	case NewPageRecord:
		if len(payload) < 8 {
			return nil, ErrCorruptRecord
		}
		r.RID = types.RID{PageID: types.PageID(int32(binary.LittleEndian.Uint32(payload[0:4])))}
		r.PrevPageID = types.PageID(int32(binary.LittleEndian.Uint32(payload[4:8])))
	case BeginRecord, CommitRecord, AbortRecord:
		// header only
	default:
		return nil, ErrCorruptRecord
	}

	return r, nil
}

func readRID(buf []byte) (types.RID, []byte, error) {
	if len(buf) < 8 {
		return types.RID{}, nil, ErrCorruptRecord
	}
	rid := types.RID{
		PageID: types.PageID(int32(binary.LittleEndian.Uint32(buf[0:4]))),
		Slot:   int32(binary.LittleEndian.Uint32(buf[4:8])),
	}
	return rid, buf[8:], nil
}

func readTuple(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, ErrCorruptRecord
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	if uint32(len(buf)-4) < n {
		return nil, nil, ErrCorruptRecord
	}
	tuple := make([]byte, n)
	copy(tuple, buf[4:4+n])
	return tuple, buf[4+n:], nil
}
