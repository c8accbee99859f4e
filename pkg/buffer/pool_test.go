package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ledgerdb/pkg/disk"
)

func TestFetchMissThenHit(t *testing.T) {
	d := disk.NewMemManager(4096)
	bpm := NewBufferPoolManager(4, 4096, d, nil, nil)

	pageID, err := d.AllocatePage()
	require.NoError(t, err)

	frame, ok := bpm.Fetch(pageID)
	require.True(t, ok)
	require.Equal(t, 1, frame.PinCount)

	frame2, ok := bpm.Fetch(pageID)
	require.True(t, ok)
	require.Same(t, frame, frame2)
	require.Equal(t, 2, frame.PinCount)
}

func TestUnpinEnrollsInReplacer(t *testing.T) {
	d := disk.NewMemManager(4096)
	bpm := NewBufferPoolManager(2, 4096, d, nil, nil)

	pageID, _ := d.AllocatePage()
	bpm.Fetch(pageID)
	require.Equal(t, 0, bpm.replacer.Size())

	require.True(t, bpm.Unpin(pageID, false))
	require.Equal(t, 1, bpm.replacer.Size())
}

func TestEvictionPicksLeastRecentlyUsed(t *testing.T) {
	d := disk.NewMemManager(4096)
	bpm := NewBufferPoolManager(2, 4096, d, nil, nil)

	p1, _ := d.AllocatePage()
	p2, _ := d.AllocatePage()
	p3, _ := d.AllocatePage()

	bpm.Fetch(p1)
	bpm.Fetch(p2)
	bpm.Unpin(p1, false)
	bpm.Unpin(p2, false)

	// p1 is now the LRU victim; fetching p3 should evict it.
	_, ok := bpm.Fetch(p3)
	require.True(t, ok)

	_, resident := bpm.pageTable[p1]
	require.False(t, resident)
	_, resident = bpm.pageTable[p2]
	require.True(t, resident)
}

func TestFetchFailsWhenPoolExhaustedAndAllPinned(t *testing.T) {
	d := disk.NewMemManager(4096)
	bpm := NewBufferPoolManager(1, 4096, d, nil, nil)

	p1, _ := d.AllocatePage()
	p2, _ := d.AllocatePage()

	_, ok := bpm.Fetch(p1)
	require.True(t, ok)

	_, ok = bpm.Fetch(p2)
	require.False(t, ok)
}

func TestNewPageAndDeletePage(t *testing.T) {
	d := disk.NewMemManager(4096)
	bpm := NewBufferPoolManager(4, 4096, d, nil, nil)

	pageID, frame, ok := bpm.NewPage()
	require.True(t, ok)
	require.NotNil(t, frame)

	err := bpm.DeletePage(pageID)
	require.Error(t, err, "page still pinned once")

	require.True(t, bpm.Unpin(pageID, false))
	require.NoError(t, bpm.DeletePage(pageID))
}

func TestFlushWritesThroughToDisk(t *testing.T) {
	d := disk.NewMemManager(4096)
	bpm := NewBufferPoolManager(4, 4096, d, nil, nil)

	pageID, frame, _ := bpm.NewPage()
	frame.Data[0] = 0xAB
	require.True(t, bpm.Unpin(pageID, true))
	require.True(t, bpm.Flush(pageID))

	raw := make([]byte, 4096)
	require.NoError(t, d.ReadPage(pageID, raw))
	require.Equal(t, byte(0xAB), raw[0])
}
