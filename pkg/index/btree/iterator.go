package btree

import (
	"ledgerdb/pkg/dberrors"
	"ledgerdb/pkg/storage"
	"ledgerdb/pkg/types"
)

// Iterator walks the leaf chain left to right, yielding every (key, rid)
// pair in ascending key order — spec.md §4.3's forward scan over
// Begin()/BeginAt(k).
type Iterator[K any] struct {
	tree    *BTree[K]
	leafID  types.PageID
	keys    []K
	rids    []types.RID
	pos     int
	done    bool
}

// Begin returns an iterator positioned at the tree's smallest key. An empty
// tree (rootID collapsed to InvalidPageID) yields an iterator that is
// immediately exhausted rather than an error.
func (t *BTree[K]) Begin() (*Iterator[K], error) {
	t.mu.Lock()
	if t.rootID == types.InvalidPageID {
		t.mu.Unlock()
		return &Iterator[K]{tree: t, leafID: types.InvalidPageID, done: true}, nil
	}
	cur := t.rootID
	for {
		frame, ok := t.bpm.Fetch(cur)
		if !ok {
			t.mu.Unlock()
			return nil, dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "btree: begin")
		}
		header := storage.DecodePageHeader(frame.Data)
		if header.PageType == storage.LeafPageType {
			leaf := decodeLeaf(frame.Data, t.codec)
			t.bpm.Unpin(cur, false)
			t.mu.Unlock()
			return &Iterator[K]{tree: t, leafID: cur, keys: leaf.keys, rids: leaf.rids}, nil
		}
		internal := decodeInternal(frame.Data, t.codec)
		next := internal.children[0]
		t.bpm.Unpin(cur, false)
		cur = next
	}
}

// BeginAt returns an iterator positioned at the first key >= key.
func (t *BTree[K]) BeginAt(key K) (*Iterator[K], error) {
	t.mu.Lock()
	if t.rootID == types.InvalidPageID {
		t.mu.Unlock()
		return &Iterator[K]{tree: t, leafID: types.InvalidPageID, done: true}, nil
	}
	leafID, _, err := t.findLeaf(key)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}

	frame, ok := t.bpm.Fetch(leafID)
	if !ok {
		t.mu.Unlock()
		return nil, dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "btree: begin-at")
	}
	leaf := decodeLeaf(frame.Data, t.codec)
	t.bpm.Unpin(leafID, false)
	t.mu.Unlock()

	pos := 0
	for i, k := range leaf.keys {
		if t.cmp(k, key) >= 0 {
			pos = i
			break
		}
		pos = i + 1
	}

	return &Iterator[K]{tree: t, leafID: leafID, keys: leaf.keys, rids: leaf.rids, pos: pos}, nil
}

// Valid reports whether Key/RID return a usable entry.
func (it *Iterator[K]) Valid() bool {
	return !it.done && it.pos < len(it.keys)
}

// Key returns the current entry's key. Valid must be true.
func (it *Iterator[K]) Key() K { return it.keys[it.pos] }

// RID returns the current entry's RID. Valid must be true.
func (it *Iterator[K]) RID() types.RID { return it.rids[it.pos] }

// Next advances to the next entry, crossing into the following leaf page
// via the next-leaf chain when the current one is exhausted.
func (it *Iterator[K]) Next() error {
	it.pos++
	if it.pos < len(it.keys) {
		return nil
	}

	it.tree.mu.Lock()
	defer it.tree.mu.Unlock()

	frame, ok := it.tree.bpm.Fetch(it.leafID)
	if !ok {
		it.done = true
		return dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "btree: iterator advance")
	}
	leaf := decodeLeaf(frame.Data, it.tree.codec)
	it.tree.bpm.Unpin(it.leafID, false)

	if leaf.nextLeaf == types.InvalidPageID {
		it.done = true
		return nil
	}

	nextFrame, ok := it.tree.bpm.Fetch(leaf.nextLeaf)
	if !ok {
		it.done = true
		return dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "btree: iterator advance")
	}
	nextLeaf := decodeLeaf(nextFrame.Data, it.tree.codec)
	it.tree.bpm.Unpin(leaf.nextLeaf, false)

	it.leafID = leaf.nextLeaf
	it.keys = nextLeaf.keys
	it.rids = nextLeaf.rids
	it.pos = 0

	if len(it.keys) == 0 {
		it.done = true
	}
	return nil
}
