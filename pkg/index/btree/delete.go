package btree

import (
	"ledgerdb/pkg/dberrors"
	"ledgerdb/pkg/storage"
	"ledgerdb/pkg/types"
)

func (t *BTree[K]) minLeafKeys() int     { return (t.leafMax + 1) / 2 }
func (t *BTree[K]) minInternalKeys() int { return (t.internalMax + 1) / 2 }

// Delete removes the (key, rid) pair from the tree, redistributing from or
// merging with a sibling when the owning leaf underflows below half
// capacity, and propagating underflow up through ancestors as needed
// (spec.md §4.3's merge/redistribute policy). It reports whether a
// matching entry was found.
func (t *BTree[K]) Delete(key K, rid types.RID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	leafID, path, err := t.findLeaf(key)
	if err != nil {
		return false, err
	}

	frame, ok := t.bpm.Fetch(leafID)
	if !ok {
		return false, dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "btree: delete")
	}
	leaf := decodeLeaf(frame.Data, t.codec)

	idx := -1
	for i, k := range leaf.keys {
		if t.cmp(k, key) == 0 && leaf.rids[i] == rid {
			idx = i
			break
		}
	}
	if idx == -1 {
		t.bpm.Unpin(leafID, false)
		return false, nil
	}

	leaf.keys = removeAt(leaf.keys, idx)
	leaf.rids = removeAt(leaf.rids, idx)

	if len(path) == 0 {
		if len(leaf.keys) == 0 {
			t.bpm.Unpin(leafID, false)
			t.rootID = types.InvalidPageID
			t.persistRoot()
			if err := t.bpm.DeletePage(leafID); err != nil {
				return false, err
			}
			return true, nil
		}
		encodeLeaf(frame.Data, leaf, t.codec)
		t.bpm.Unpin(leafID, true)
		return true, nil
	}

	if len(leaf.keys) >= t.minLeafKeys() {
		encodeLeaf(frame.Data, leaf, t.codec)
		t.bpm.Unpin(leafID, true)
		return true, nil
	}

	encodeLeaf(frame.Data, leaf, t.codec)
	t.bpm.Unpin(leafID, true)

	return true, t.rebalanceLeaf(leafID, path)
}

// rebalanceLeaf fixes an underflowed leaf by borrowing a key from a
// sibling, or merging with one, then propagates any resulting internal
// underflow up the ancestor path.
func (t *BTree[K]) rebalanceLeaf(leafID types.PageID, path []ancestor) error {
	last := path[len(path)-1]
	pf, ok := t.bpm.Fetch(last.pageID)
	if !ok {
		return dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "btree: rebalance leaf parent")
	}
	internal := decodeInternal(pf.Data, t.codec)
	idx := last.childIdx

	lf, ok := t.bpm.Fetch(leafID)
	if !ok {
		t.bpm.Unpin(last.pageID, false)
		return dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "btree: rebalance leaf")
	}
	leaf := decodeLeaf(lf.Data, t.codec)

	if idx+1 < len(internal.children) {
		rightID := internal.children[idx+1]
		rf, ok := t.bpm.Fetch(rightID)
		if !ok {
			t.bpm.Unpin(leafID, false)
			t.bpm.Unpin(last.pageID, false)
			return dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "btree: rebalance sibling")
		}
		right := decodeLeaf(rf.Data, t.codec)

		if len(right.keys) > t.minLeafKeys() {
			leaf.keys = append(leaf.keys, right.keys[0])
			leaf.rids = append(leaf.rids, right.rids[0])
			right.keys = removeAt(right.keys, 0)
			right.rids = removeAt(right.rids, 0)
			internal.keys[idx] = right.keys[0]

			encodeLeaf(lf.Data, leaf, t.codec)
			t.bpm.Unpin(leafID, true)
			encodeLeaf(rf.Data, right, t.codec)
			t.bpm.Unpin(rightID, true)
			encodeInternal(pf.Data, internal, t.codec)
			t.bpm.Unpin(last.pageID, true)
			return nil
		}

		// Merge right into leaf.
		leaf.keys = append(leaf.keys, right.keys...)
		leaf.rids = append(leaf.rids, right.rids...)
		leaf.nextLeaf = right.nextLeaf
		encodeLeaf(lf.Data, leaf, t.codec)
		t.bpm.Unpin(leafID, true)
		t.bpm.Unpin(rightID, false)
		if err := t.bpm.DeletePage(rightID); err != nil {
			return err
		}

		internal.keys = removeAt(internal.keys, idx)
		internal.children = removeAt(internal.children, idx+1)
		return t.rebalanceAfterRemoval(pf, last, internal, path[:len(path)-1])
	}

	// No right sibling: merge into the left sibling instead.
	leftID := internal.children[idx-1]
	lfSib, ok := t.bpm.Fetch(leftID)
	if !ok {
		t.bpm.Unpin(leafID, false)
		t.bpm.Unpin(last.pageID, false)
		return dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "btree: rebalance left sibling")
	}
	left := decodeLeaf(lfSib.Data, t.codec)

	if len(left.keys) > t.minLeafKeys() {
		n := len(left.keys)
		borrowKey := left.keys[n-1]
		borrowRID := left.rids[n-1]
		left.keys = left.keys[:n-1]
		left.rids = left.rids[:n-1]
		leaf.keys = insertAt(leaf.keys, 0, borrowKey)
		leaf.rids = insertAt(leaf.rids, 0, borrowRID)
		internal.keys[idx-1] = leaf.keys[0]

		encodeLeaf(lfSib.Data, left, t.codec)
		t.bpm.Unpin(leftID, true)
		encodeLeaf(lf.Data, leaf, t.codec)
		t.bpm.Unpin(leafID, true)
		encodeInternal(pf.Data, internal, t.codec)
		t.bpm.Unpin(last.pageID, true)
		return nil
	}

	// Merge leaf into left.
	left.keys = append(left.keys, leaf.keys...)
	left.rids = append(left.rids, leaf.rids...)
	left.nextLeaf = leaf.nextLeaf
	encodeLeaf(lfSib.Data, left, t.codec)
	t.bpm.Unpin(leftID, true)
	t.bpm.Unpin(leafID, false)
	if err := t.bpm.DeletePage(leafID); err != nil {
		return err
	}

	internal.keys = removeAt(internal.keys, idx-1)
	internal.children = removeAt(internal.children, idx)
	return t.rebalanceAfterRemoval(pf, last, internal, path[:len(path)-1])
}

// rebalanceAfterRemoval writes back an internal node whose child count just
// shrank, collapsing the root if it now has a single child, or recursing
// further up the ancestor path if it underflowed below minimum.
func (t *BTree[K]) rebalanceAfterRemoval(pf *storage.Frame, self ancestor, internal *internalNode[K], parentPath []ancestor) error {
	if len(parentPath) == 0 {
		if len(internal.children) == 1 {
			t.rootID = internal.children[0]
			t.persistRoot()
			t.bpm.Unpin(self.pageID, false)
			if err := t.bpm.DeletePage(self.pageID); err != nil {
				return err
			}
			return nil
		}
		encodeInternal(pf.Data, internal, t.codec)
		t.bpm.Unpin(self.pageID, true)
		return nil
	}

	if len(internal.keys) >= t.minInternalKeys() {
		encodeInternal(pf.Data, internal, t.codec)
		t.bpm.Unpin(self.pageID, true)
		return nil
	}

	encodeInternal(pf.Data, internal, t.codec)
	t.bpm.Unpin(self.pageID, true)
	return t.rebalanceInternal(self.pageID, parentPath)
}

// rebalanceInternal fixes an underflowed internal node by borrowing a
// separator/child from a sibling through the parent, or merging with one.
func (t *BTree[K]) rebalanceInternal(nodeID types.PageID, path []ancestor) error {
	last := path[len(path)-1]
	pf, ok := t.bpm.Fetch(last.pageID)
	if !ok {
		return dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "btree: rebalance internal parent")
	}
	parent := decodeInternal(pf.Data, t.codec)
	idx := last.childIdx

	nf, ok := t.bpm.Fetch(nodeID)
	if !ok {
		t.bpm.Unpin(last.pageID, false)
		return dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "btree: rebalance internal")
	}
	node := decodeInternal(nf.Data, t.codec)

	if idx+1 < len(parent.children) {
		rightID := parent.children[idx+1]
		rf, ok := t.bpm.Fetch(rightID)
		if !ok {
			t.bpm.Unpin(nodeID, false)
			t.bpm.Unpin(last.pageID, false)
			return dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "btree: rebalance internal sibling")
		}
		right := decodeInternal(rf.Data, t.codec)

		if len(right.keys) > t.minInternalKeys() {
			node.keys = append(node.keys, parent.keys[idx])
			node.children = append(node.children, right.children[0])
			parent.keys[idx] = right.keys[0]
			right.keys = removeAt(right.keys, 0)
			right.children = removeAt(right.children, 0)

			encodeInternal(nf.Data, node, t.codec)
			t.bpm.Unpin(nodeID, true)
			encodeInternal(rf.Data, right, t.codec)
			t.bpm.Unpin(rightID, true)
			encodeInternal(pf.Data, parent, t.codec)
			t.bpm.Unpin(last.pageID, true)
			return nil
		}

		node.keys = append(node.keys, parent.keys[idx])
		node.keys = append(node.keys, right.keys...)
		node.children = append(node.children, right.children...)
		encodeInternal(nf.Data, node, t.codec)
		t.bpm.Unpin(nodeID, true)
		t.bpm.Unpin(rightID, false)
		if err := t.bpm.DeletePage(rightID); err != nil {
			return err
		}

		parent.keys = removeAt(parent.keys, idx)
		parent.children = removeAt(parent.children, idx+1)
		return t.rebalanceAfterRemoval(pf, last, parent, path[:len(path)-1])
	}

	leftID := parent.children[idx-1]
	lf, ok := t.bpm.Fetch(leftID)
	if !ok {
		t.bpm.Unpin(nodeID, false)
		t.bpm.Unpin(last.pageID, false)
		return dberrors.New(dberrors.ErrCategorySystem, "PAGE_FETCH_FAILED", "btree: rebalance internal left sibling")
	}
	left := decodeInternal(lf.Data, t.codec)

	if len(left.keys) > t.minInternalKeys() {
		n := len(left.keys)
		node.keys = insertAt(node.keys, 0, parent.keys[idx-1])
		node.children = insertAt(node.children, 0, left.children[n])
		parent.keys[idx-1] = left.keys[n-1]
		left.keys = left.keys[:n-1]
		left.children = left.children[:n]

		encodeInternal(lf.Data, left, t.codec)
		t.bpm.Unpin(leftID, true)
		encodeInternal(nf.Data, node, t.codec)
		t.bpm.Unpin(nodeID, true)
		encodeInternal(pf.Data, parent, t.codec)
		t.bpm.Unpin(last.pageID, true)
		return nil
	}

	left.keys = append(left.keys, parent.keys[idx-1])
	left.keys = append(left.keys, node.keys...)
	left.children = append(left.children, node.children...)
	encodeInternal(lf.Data, left, t.codec)
	t.bpm.Unpin(leftID, true)
	t.bpm.Unpin(nodeID, false)
	if err := t.bpm.DeletePage(nodeID); err != nil {
		return err
	}

	parent.keys = removeAt(parent.keys, idx-1)
	parent.children = removeAt(parent.children, idx)
	return t.rebalanceAfterRemoval(pf, last, parent, path[:len(path)-1])
}
