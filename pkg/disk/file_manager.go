package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"ledgerdb/pkg/types"
)

// FileManager is a real os.File-backed disk.Manager. Pages live at
// pageID*PageSize byte offsets in the data file; the log file is a flat
// append-only stream. Deallocated page ids are pushed onto an in-memory
// free stack and handed back out by the next AllocatePage call, mirroring
// the original storage engine's disk-manager bookkeeping (original_source's
// disk manager keeps the same free-list-over-a-flat-file design).
type FileManager struct {
	mu       sync.Mutex
	pageSize int
	data     *os.File
	logf     *os.File
	nextPage types.PageID
	free     []types.PageID
}

// NewFileManager opens (creating if necessary) dataPath and logPath and
// returns a FileManager ready to serve pages of pageSize bytes.
func NewFileManager(dataPath, logPath string, pageSize int) (*FileManager, error) {
	data, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening data file %q: %w", dataPath, err)
	}

	logf, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		data.Close()
		return nil, fmt.Errorf("opening log file %q: %w", logPath, err)
	}

	fi, err := data.Stat()
	if err != nil {
		data.Close()
		logf.Close()
		return nil, fmt.Errorf("statting data file %q: %w", dataPath, err)
	}

	nextPage := types.PageID(fi.Size() / int64(pageSize))

	return &FileManager{
		pageSize: pageSize,
		data:     data,
		logf:     logf,
		nextPage: nextPage,
	}, nil
}

func (f *FileManager) offset(pageID types.PageID) int64 {
	return int64(pageID) * int64(f.pageSize)
}

// ReadPage implements disk.Manager.
func (f *FileManager) ReadPage(pageID types.PageID, buf []byte) error {
	if len(buf) != f.pageSize {
		return fmt.Errorf("ReadPage: buffer size %d != page size %d", len(buf), f.pageSize)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if pageID < 0 || pageID >= f.nextPage {
		return &ErrPageNotAllocated{PageID: pageID}
	}
	for _, id := range f.free {
		if id == pageID {
			return &ErrPageNotAllocated{PageID: pageID}
		}
	}

	n, err := f.data.ReadAt(buf, f.offset(pageID))
	if err != nil {
		// A page that was allocated but never written back yet reads as
		// zeros; ReadAt returning io.EOF on a hole is expected there.
		if errors.Is(err, io.EOF) {
			for i := n; i < len(buf); i++ {
				buf[i] = 0
			}
			return nil
		}
		return fmt.Errorf("reading page %v: %w", pageID, err)
	}
	return nil
}

// WritePage implements disk.Manager.
func (f *FileManager) WritePage(pageID types.PageID, buf []byte) error {
	if len(buf) != f.pageSize {
		return fmt.Errorf("WritePage: buffer size %d != page size %d", len(buf), f.pageSize)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.data.WriteAt(buf, f.offset(pageID)); err != nil {
		return fmt.Errorf("writing page %v: %w", pageID, err)
	}
	return nil
}

// AllocatePage implements disk.Manager.
func (f *FileManager) AllocatePage() (types.PageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n := len(f.free); n > 0 {
		id := f.free[n-1]
		f.free = f.free[:n-1]
		return id, nil
	}

	id := f.nextPage
	f.nextPage++
	return id, nil
}

// DeallocatePage implements disk.Manager.
func (f *FileManager) DeallocatePage(pageID types.PageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.free = append(f.free, pageID)
	return nil
}

// ReadLog implements disk.Manager.
func (f *FileManager) ReadLog(buf []byte, offset int64) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.logf.ReadAt(buf, offset)
	if n > 0 {
		return n, true, nil
	}
	if err != nil {
		return 0, false, nil
	}
	return 0, false, nil
}

// WriteLog implements disk.Manager.
func (f *FileManager) WriteLog(buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.logf.Seek(0, os.SEEK_END); err != nil {
		return fmt.Errorf("seeking log file: %w", err)
	}
	if _, err := f.logf.Write(buf); err != nil {
		return fmt.Errorf("appending to log file: %w", err)
	}
	return nil
}

// Close implements disk.Manager.
func (f *FileManager) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err1 := f.data.Close()
	err2 := f.logf.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
