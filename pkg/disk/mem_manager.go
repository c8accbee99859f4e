package disk

import (
	"sync"

	"ledgerdb/pkg/types"
)

// MemManager is an in-memory disk.Manager for unit tests that must not
// touch the filesystem. It implements the exact same contract as
// FileManager (page-aligned reads/writes, a free-list allocator, an
// append-only log byte slice) over plain Go maps and slices.
type MemManager struct {
	mu       sync.Mutex
	pageSize int
	pages    map[types.PageID][]byte
	nextPage types.PageID
	free     []types.PageID
	log      []byte
}

// NewMemManager returns a MemManager serving pages of pageSize bytes.
func NewMemManager(pageSize int) *MemManager {
	return &MemManager{
		pageSize: pageSize,
		pages:    make(map[types.PageID][]byte),
	}
}

// ReadPage implements disk.Manager.
func (m *MemManager) ReadPage(pageID types.PageID, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.pages[pageID]
	if !ok {
		return &ErrPageNotAllocated{PageID: pageID}
	}
	copy(buf, data)
	return nil
}

// WritePage implements disk.Manager.
func (m *MemManager) WritePage(pageID types.PageID, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := make([]byte, m.pageSize)
	copy(data, buf)
	m.pages[pageID] = data
	return nil
}

// AllocatePage implements disk.Manager.
func (m *MemManager) AllocatePage() (types.PageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.free); n > 0 {
		id := m.free[n-1]
		m.free = m.free[:n-1]
		m.pages[id] = make([]byte, m.pageSize)
		return id, nil
	}

	id := m.nextPage
	m.nextPage++
	m.pages[id] = make([]byte, m.pageSize)
	return id, nil
}

// DeallocatePage implements disk.Manager.
func (m *MemManager) DeallocatePage(pageID types.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pages, pageID)
	m.free = append(m.free, pageID)
	return nil
}

// ReadLog implements disk.Manager.
func (m *MemManager) ReadLog(buf []byte, offset int64) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if offset >= int64(len(m.log)) {
		return 0, false, nil
	}

	n := copy(buf, m.log[offset:])
	return n, true, nil
}

// WriteLog implements disk.Manager.
func (m *MemManager) WriteLog(buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log = append(m.log, buf...)
	return nil
}

// Close implements disk.Manager.
func (m *MemManager) Close() error {
	return nil
}
