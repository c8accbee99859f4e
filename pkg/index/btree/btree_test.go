package btree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"ledgerdb/pkg/buffer"
	"ledgerdb/pkg/disk"
	"ledgerdb/pkg/types"
)

const testPageSize = 128

func newTestTree(t *testing.T) *BTree[int64] {
	t.Helper()
	d := disk.NewMemManager(testPageSize)
	bpm := buffer.NewBufferPoolManager(64, testPageSize, d, nil, nil)
	tree, err := New[int64](bpm, Int64Key{}, CompareInt64, testPageSize, types.HeaderPageID)
	require.NoError(t, err)
	return tree
}

func mustInsert(t *testing.T, tree *BTree[int64], key int64, rid types.RID) {
	t.Helper()
	inserted, err := tree.Insert(key, rid)
	require.NoError(t, err)
	require.True(t, inserted, "key %d should not already be present", key)
}

func TestInsertThenSearchSingleKey(t *testing.T) {
	tree := newTestTree(t)
	rid := types.RID{PageID: 5, Slot: 1}

	mustInsert(t, tree, 42, rid)

	got, found, err := tree.Search(42)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rid, got)
}

func TestSearchMissingKeyReturnsEmpty(t *testing.T) {
	tree := newTestTree(t)
	mustInsert(t, tree, 1, types.RID{PageID: 1})

	_, found, err := tree.Search(999)
	require.NoError(t, err)
	require.False(t, found)
}

func TestDuplicateKeyInsertIsRejectedWithoutMutation(t *testing.T) {
	tree := newTestTree(t)
	r1 := types.RID{PageID: 1, Slot: 0}
	r2 := types.RID{PageID: 2, Slot: 0}

	mustInsert(t, tree, 7, r1)

	inserted, err := tree.Insert(7, r2)
	require.NoError(t, err)
	require.False(t, inserted, "inserting an already-present key must be rejected")

	got, found, err := tree.Search(7)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, r1, got, "the original value must survive a rejected duplicate insert")
}

func TestInsertManyKeysForcesSplitsAndAllRemainSearchable(t *testing.T) {
	tree := newTestTree(t)
	const n = 500

	for i := 0; i < n; i++ {
		mustInsert(t, tree, int64(i), types.RID{PageID: types.PageID(i), Slot: 0})
	}

	for i := 0; i < n; i++ {
		got, found, err := tree.Search(int64(i))
		require.NoError(t, err)
		require.True(t, found, "key %d should be found", i)
		require.Equal(t, types.PageID(i), got.PageID)
	}
}

func TestInsertShuffledKeysStillIterateInOrder(t *testing.T) {
	tree := newTestTree(t)
	const n = 300

	keys := rand.New(rand.NewSource(1)).Perm(n)
	for _, k := range keys {
		mustInsert(t, tree, int64(k), types.RID{PageID: types.PageID(k)})
	}

	it, err := tree.Begin()
	require.NoError(t, err)

	var seen []int64
	for it.Valid() {
		seen = append(seen, it.Key())
		require.NoError(t, it.Next())
	}

	require.Len(t, seen, n)
	for i := 1; i < len(seen); i++ {
		require.Less(t, seen[i-1], seen[i], "iterator must yield ascending keys")
	}
}

func TestBeginAtPositionsAtFirstKeyGreaterOrEqual(t *testing.T) {
	tree := newTestTree(t)
	for _, k := range []int64{10, 20, 30, 40, 50} {
		mustInsert(t, tree, k, types.RID{PageID: types.PageID(k)})
	}

	it, err := tree.BeginAt(25)
	require.NoError(t, err)
	require.True(t, it.Valid())
	require.Equal(t, int64(30), it.Key())
}

func TestDeleteRemovesKeyAndRebalances(t *testing.T) {
	tree := newTestTree(t)
	const n = 200

	for i := 0; i < n; i++ {
		mustInsert(t, tree, int64(i), types.RID{PageID: types.PageID(i)})
	}

	for i := 0; i < n; i += 2 {
		found, err := tree.Delete(int64(i), types.RID{PageID: types.PageID(i)})
		require.NoError(t, err)
		require.True(t, found)
	}

	for i := 0; i < n; i++ {
		_, found, err := tree.Search(int64(i))
		require.NoError(t, err)
		if i%2 == 0 {
			require.False(t, found, "key %d should have been deleted", i)
		} else {
			require.True(t, found, "key %d should still be present", i)
		}
	}
}

func TestDeleteMissingEntryReportsNotFound(t *testing.T) {
	tree := newTestTree(t)
	mustInsert(t, tree, 1, types.RID{PageID: 1})

	found, err := tree.Delete(1, types.RID{PageID: 999})
	require.NoError(t, err)
	require.False(t, found)
}

func TestTenThousandKeyInsertIterateRemoveScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 10k-key scenario in -short mode")
	}

	tree := newTestTree(t)
	const n = 10000

	order := rand.New(rand.NewSource(7)).Perm(n)
	for _, k := range order {
		mustInsert(t, tree, int64(k), types.RID{PageID: types.PageID(k)})
	}

	for k := 0; k < n; k++ {
		got, found, err := tree.Search(int64(k))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, types.PageID(k), got.PageID)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	for k := 0; k < n; k++ {
		require.True(t, it.Valid())
		require.Equal(t, int64(k), it.Key())
		require.NoError(t, it.Next())
	}
	require.False(t, it.Valid())

	for k := 0; k < n; k++ {
		found, err := tree.Delete(int64(k), types.RID{PageID: types.PageID(k)})
		require.NoError(t, err)
		require.True(t, found)
	}

	require.True(t, tree.IsEmpty())
	empty, err := tree.Begin()
	require.NoError(t, err)
	require.False(t, empty.Valid())
}

func TestDeleteEveryKeyLeavesTreeEmpty(t *testing.T) {
	tree := newTestTree(t)
	const n = 64

	for i := 0; i < n; i++ {
		mustInsert(t, tree, int64(i), types.RID{PageID: types.PageID(i)})
	}
	require.False(t, tree.IsEmpty())

	for i := 0; i < n; i++ {
		found, err := tree.Delete(int64(i), types.RID{PageID: types.PageID(i)})
		require.NoError(t, err)
		require.True(t, found)
	}

	require.True(t, tree.IsEmpty(), "an emptied leaf root must collapse to InvalidPageID")

	it, err := tree.Begin()
	require.NoError(t, err)
	require.False(t, it.Valid())
}

func TestInsertIntoEmptiedTreeRebuildsRoot(t *testing.T) {
	tree := newTestTree(t)
	rid := types.RID{PageID: 1}

	mustInsert(t, tree, 1, rid)
	found, err := tree.Delete(1, rid)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, tree.IsEmpty())

	mustInsert(t, tree, 2, types.RID{PageID: 2})
	require.False(t, tree.IsEmpty())

	got, ok, err := tree.Search(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.PageID(2), got.PageID)
}
