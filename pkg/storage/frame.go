// Package storage defines the page frame the buffer pool owns and the
// on-disk page header every B+Tree page starts with.
package storage

import "ledgerdb/pkg/types"

// Frame is a fixed-size byte buffer backing one resident page, plus the
// bookkeeping metadata the buffer pool manager tracks about it. The buffer
// pool exclusively owns Frames; every other component borrows one between a
// Fetch/NewPage and the matching Unpin.
type Frame struct {
	PageID   types.PageID
	Data     []byte
	PinCount int
	IsDirty  bool
}

// NewFrame allocates a Frame with a zeroed Data buffer of size bytes.
func NewFrame(size int) *Frame {
	return &Frame{
		PageID: types.InvalidPageID,
		Data:   make([]byte, size),
	}
}

// Reset re-keys the frame to a fresh page id, zeroing its contents and
// clearing dirty/pin state. Called by the buffer pool when repurposing a
// frame for a different resident page.
func (f *Frame) Reset(pageID types.PageID) {
	f.PageID = pageID
	for i := range f.Data {
		f.Data[i] = 0
	}
	f.PinCount = 0
	f.IsDirty = false
}
