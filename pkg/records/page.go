// Package records implements the minimal fixed-slot tuple page that
// recovery replays log records against. Full heap-file storage (variable-
// length tuples, free-space management, tuple compaction) is out of scope;
// this package exists only to give INSERT/UPDATE/APPLYDELETE/MARKDELETE/
// ROLLBACKDELETE something concrete to apply to, per spec.md §6's note that
// tuple storage beyond what recovery needs uses "an external, length-
// prefixed byte codec."
package records

import (
	"encoding/binary"
	"fmt"

	"ledgerdb/pkg/types"
)

// HeaderSize is the fixed page-level header: page_lsn(8) + slot_count(4) +
// slot_size(4).
const HeaderSize = 16

// slotStatus distinguishes an empty slot from a live tuple from a tuple
// marked for deletion but not yet physically removed (spec.md §3's two-step
// delete: MARKDELETE when the tuple is deleted can be rolled back by
// ROLLBACKDELETE on abort; APPLYDELETE is permanent).
type slotStatus byte

const (
	slotEmpty   slotStatus = 0
	slotLive    slotStatus = 1
	slotDeleted slotStatus = 2
)

// slotStride is the per-slot overhead (1 status byte + 4-byte length
// prefix) plus the fixed tuple capacity.
func slotStride(slotSize int) int {
	return 5 + slotSize
}

// RecordPage is a fixed-slot tuple page backed by a caller-owned byte
// buffer (typically a buffer pool frame's Data).
type RecordPage struct {
	buf      []byte
	slotSize int
}

// Init formats buf as a fresh, empty record page with the given per-slot
// tuple capacity, and returns the RecordPage wrapping it.
func Init(buf []byte, slotSize int) *RecordPage {
	capacity := (len(buf) - HeaderSize) / slotStride(slotSize)
	invalidLSN := types.InvalidLSN
	binary.LittleEndian.PutUint64(buf[0:8], uint64(invalidLSN))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(capacity))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(slotSize))
	for i := 0; i < capacity; i++ {
		buf[slotOffset(i, slotSize)] = byte(slotEmpty)
	}
	return &RecordPage{buf: buf, slotSize: slotSize}
}

// Wrap parses an already-formatted record page out of buf.
func Wrap(buf []byte) *RecordPage {
	slotSize := int(binary.LittleEndian.Uint32(buf[12:16]))
	return &RecordPage{buf: buf, slotSize: slotSize}
}

func slotOffset(slot, slotSize int) int {
	return HeaderSize + slot*slotStride(slotSize)
}

// PageLSN returns the LSN of the most recent log record applied to this
// page.
func (p *RecordPage) PageLSN() types.LSN {
	return types.LSN(binary.LittleEndian.Uint64(p.buf[0:8]))
}

// SetPageLSN updates the page's LSN stamp. Every mutating operation on this
// page must be followed by a call to SetPageLSN with the LSN of the log
// record that just described it (spec.md §4.4's page_lsn gating rule for
// idempotent redo).
func (p *RecordPage) SetPageLSN(lsn types.LSN) {
	binary.LittleEndian.PutUint64(p.buf[0:8], uint64(lsn))
}

// Capacity returns the number of slots this page holds.
func (p *RecordPage) Capacity() int {
	return int(binary.LittleEndian.Uint32(p.buf[8:12]))
}

func (p *RecordPage) status(slot int) slotStatus {
	return slotStatus(p.buf[slotOffset(slot, p.slotSize)])
}

func (p *RecordPage) setStatus(slot int, s slotStatus) {
	p.buf[slotOffset(slot, p.slotSize)] = byte(s)
}

// ErrSlotOutOfRange is returned when a requested slot index is not backed
// by this page's capacity.
var ErrSlotOutOfRange = fmt.Errorf("slot out of range")

func (p *RecordPage) checkSlot(slot int) error {
	if slot < 0 || slot >= p.Capacity() {
		return ErrSlotOutOfRange
	}
	return nil
}

// Insert writes tuple into slot as a live record. tuple must fit within the
// page's fixed slot capacity.
func (p *RecordPage) Insert(slot int, tuple []byte) error {
	if err := p.checkSlot(slot); err != nil {
		return err
	}
	if len(tuple) > p.slotSize {
		return fmt.Errorf("tuple of %d bytes exceeds slot capacity %d", len(tuple), p.slotSize)
	}
	off := slotOffset(slot, p.slotSize)
	p.buf[off] = byte(slotLive)
	binary.LittleEndian.PutUint32(p.buf[off+1:off+5], uint32(len(tuple)))
	copy(p.buf[off+5:off+5+p.slotSize], tuple)
	return nil
}

// Update overwrites slot's tuple in place. The slot must already be live.
func (p *RecordPage) Update(slot int, tuple []byte) error {
	return p.Insert(slot, tuple)
}

// Get returns slot's tuple bytes and whether the slot is live.
func (p *RecordPage) Get(slot int) ([]byte, bool, error) {
	if err := p.checkSlot(slot); err != nil {
		return nil, false, err
	}
	if p.status(slot) != slotLive {
		return nil, false, nil
	}
	off := slotOffset(slot, p.slotSize)
	n := binary.LittleEndian.Uint32(p.buf[off+1 : off+5])
	tuple := make([]byte, n)
	copy(tuple, p.buf[off+5:off+5+int(n)])
	return tuple, true, nil
}

// MarkDeleted flags slot as deleted without erasing its bytes, so a
// subsequent ROLLBACKDELETE can restore it.
func (p *RecordPage) MarkDeleted(slot int) error {
	if err := p.checkSlot(slot); err != nil {
		return err
	}
	p.setStatus(slot, slotDeleted)
	return nil
}

// RollbackDelete restores a MarkDeleted slot to live.
func (p *RecordPage) RollbackDelete(slot int) error {
	if err := p.checkSlot(slot); err != nil {
		return err
	}
	p.setStatus(slot, slotLive)
	return nil
}

// ApplyDelete permanently clears slot, discarding its tuple bytes.
func (p *RecordPage) ApplyDelete(slot int) error {
	if err := p.checkSlot(slot); err != nil {
		return err
	}
	off := slotOffset(slot, p.slotSize)
	p.buf[off] = byte(slotEmpty)
	binary.LittleEndian.PutUint32(p.buf[off+1:off+5], 0)
	return nil
}

// IsMarkedDeleted reports whether slot is live-but-marked-for-deletion.
func (p *RecordPage) IsMarkedDeleted(slot int) (bool, error) {
	if err := p.checkSlot(slot); err != nil {
		return false, err
	}
	return p.status(slot) == slotDeleted, nil
}
