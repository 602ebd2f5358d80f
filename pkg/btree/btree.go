package btree

import (
	"time"

	"github.com/relcore/reldb/internal/logger"
	"github.com/relcore/reldb/internal/metrics"
	"github.com/relcore/reldb/pkg/bufferpool"
	"github.com/relcore/reldb/pkg/page"
)

// RootPageId is the fixed page id of every tree's root.
const RootPageId uint32 = 0

// BPlusTree is a generic search/insert/delete/range tree whose leaves carry
// either byte records (clustered indexes) or integer primary-key
// back-pointers (secondary indexes), selected by leafValueIsBytes at
// creation.
type BPlusTree struct {
	indexId          int32
	leafValueIsBytes bool

	pool *bufferpool.Pool
	pm   *page.PageManager

	log     *logger.Logger
	metrics *metrics.Metrics
}

// Open attaches a BPlusTree to an existing (or freshly bootstrapped) index.
// If the root page has never been allocated, it is allocated and
// initialized as a blank leaf, per "allocating the initial root is a
// one-time action on index creation".
func Open(indexId int32, leafValueIsBytes bool, pool *bufferpool.Pool, pm *page.PageManager, log *logger.Logger, m *metrics.Metrics) (*BPlusTree, error) {
	t := &BPlusTree{
		indexId:          indexId,
		leafValueIsBytes: leafValueIsBytes,
		pool:             pool,
		pm:               pm,
		log:              log.BtreeLogger(),
		metrics:          m,
	}

	if !pm.IsAllocated(RootPageId) {
		if _, err := pm.Allocate(); err != nil {
			return nil, err
		}
		if err := t.writeNewNode(RootPageId, NewLeaf(RootPageId, leafValueIsBytes)); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func (t *BPlusTree) getNode(pageId uint32) (*Node, *bufferpool.Frame, error) {
	frame, err := t.pool.GetPage(t.indexId, pageId, t.pm)
	if err != nil {
		return nil, nil, err
	}
	frame.Pin()
	node, err := FromBytes(frame.Page().Payload(), pageId)
	if err != nil {
		frame.Unpin(false)
		return nil, nil, err
	}
	return node, frame, nil
}

// writeNewNode admits a brand-new frame for a page this call just
// allocated, and writes node into it immediately.
func (t *BPlusTree) writeNewNode(pageId uint32, node *Node) error {
	frame, err := t.pool.NewPage(t.indexId, pageId, page.TypeIndex)
	if err != nil {
		return err
	}
	frame.Pin()
	copy(frame.Page().Payload(), node.ToBytes())
	frame.MarkDirty()
	frame.Unpin(true)
	return nil
}

func (t *BPlusTree) putNode(frame *bufferpool.Frame, node *Node) {
	copy(frame.Page().Payload(), node.ToBytes())
	frame.MarkDirty()
	frame.Unpin(true)
}

// Search descends from the root to the leaf and returns the first value
// stored under key, if any.
func (t *BPlusTree) Search(key int32) (Value, bool, error) {
	start := time.Now()
	defer func() { t.metrics.RecordBtreeOp("search"); t.metrics.RecordPageIO("read", time.Since(start)) }()

	pageId := RootPageId
	for {
		node, frame, err := t.getNode(pageId)
		if err != nil {
			return Value{}, false, err
		}
		if node.IsLeaf {
			val, ok := node.FindLeaf(key)
			frame.Unpin(false)
			return val, ok, nil
		}
		idx := node.ChildIndex(key)
		pageId = node.Children[idx]
		frame.Unpin(false)
	}
}

// RangeSearch descends to the leaf containing startKey, then walks the leaf
// chain accumulating values whose key falls in [startKey, endKey].
func (t *BPlusTree) RangeSearch(startKey, endKey int32) ([]Value, error) {
	var out []Value

	pageId := RootPageId
	for {
		node, frame, err := t.getNode(pageId)
		if err != nil {
			return nil, err
		}
		if node.IsLeaf {
			frame.Unpin(false)
			break
		}
		idx := node.ChildIndex(startKey)
		pageId = node.Children[idx]
		frame.Unpin(false)
	}

	for pageId != uint32(NoLeaf) {
		node, frame, err := t.getNode(pageId)
		if err != nil {
			return nil, err
		}
		done := false
		for i, k := range node.Keys {
			if k < startKey {
				continue
			}
			if k > endKey {
				done = true
				break
			}
			out = append(out, node.Values[i])
		}
		next := node.NextLeafPageId
		frame.Unpin(false)
		if done || next == NoLeaf {
			break
		}
		pageId = uint32(next)
	}

	return out, nil
}

// GetAll descends to the leftmost leaf and walks the entire chain.
func (t *BPlusTree) GetAll() ([]Value, error) {
	var out []Value

	pageId := RootPageId
	for {
		node, frame, err := t.getNode(pageId)
		if err != nil {
			return nil, err
		}
		if node.IsLeaf {
			frame.Unpin(false)
			break
		}
		pageId = node.Children[0]
		frame.Unpin(false)
	}

	for pageId != uint32(NoLeaf) {
		node, frame, err := t.getNode(pageId)
		if err != nil {
			return nil, err
		}
		out = append(out, node.Values...)
		next := node.NextLeafPageId
		frame.Unpin(false)
		if next == NoLeaf {
			break
		}
		pageId = uint32(next)
	}

	return out, nil
}

// Insert descends to the correct leaf, inserts key/val in order, and
// propagates any split upward, installing a new internal root at pageId 0
// if the root itself overflows.
func (t *BPlusTree) Insert(key int32, val Value) error {
	t.metrics.RecordBtreeOp("insert")
	_, _, _, err := t.insertRec(RootPageId, key, val)
	return err
}

// insertRec returns (splitKey, newRightChildPageId, didSplit, err). When the
// node at pageId overflows, it is split; if pageId is the root, two fresh
// pages are allocated for the new left/right halves and a new internal
// root is installed at pageId 0 so the root's page id never moves.
func (t *BPlusTree) insertRec(pageId uint32, key int32, val Value) (int32, uint32, bool, error) {
	node, frame, err := t.getNode(pageId)
	if err != nil {
		return 0, 0, false, err
	}

	if node.IsLeaf {
		node.InsertLeaf(key, val)
		return t.finishLevel(pageId, frame, node)
	}

	idx := node.ChildIndex(key)
	childPageId := node.Children[idx]
	splitKey, newChildPageId, childSplit, err := t.insertRec(childPageId, key, val)
	if err != nil {
		frame.Unpin(false)
		return 0, 0, false, err
	}
	if !childSplit {
		frame.Unpin(false)
		return 0, 0, false, nil
	}

	node.InsertChild(idx, splitKey, newChildPageId)
	return t.finishLevel(pageId, frame, node)
}

// finishLevel writes node back (splitting it first if it has overflowed)
// and reports the split outcome to the caller one level up.
func (t *BPlusTree) finishLevel(pageId uint32, frame *bufferpool.Frame, node *Node) (int32, uint32, bool, error) {
	if !node.NeedsSplit() {
		t.putNode(frame, node)
		return 0, 0, false, nil
	}

	t.metrics.RecordBtreeOp("split")
	splitKey, right := node.Split()

	if pageId == RootPageId {
		leftPageId, err := t.pm.Allocate()
		if err != nil {
			t.putNode(frame, node)
			return 0, 0, false, err
		}
		rightPageId, err := t.pm.Allocate()
		if err != nil {
			t.putNode(frame, node)
			return 0, 0, false, err
		}

		if node.IsLeaf {
			node.NextLeafPageId = int32(rightPageId)
		}
		right.PageId = rightPageId
		node.PageId = leftPageId

		if err := t.writeNewNode(leftPageId, node); err != nil {
			return 0, 0, false, err
		}
		if err := t.writeNewNode(rightPageId, right); err != nil {
			return 0, 0, false, err
		}

		newRoot := NewInternal(RootPageId, []int32{splitKey}, []uint32{leftPageId, rightPageId})
		t.putNode(frame, newRoot)
		return 0, 0, false, nil
	}

	rightPageId, err := t.pm.Allocate()
	if err != nil {
		t.putNode(frame, node)
		return 0, 0, false, err
	}
	right.PageId = rightPageId
	if node.IsLeaf {
		node.NextLeafPageId = int32(rightPageId)
	}

	t.putNode(frame, node)
	if err := t.writeNewNode(rightPageId, right); err != nil {
		return 0, 0, false, err
	}

	return splitKey, rightPageId, true, nil
}

// Delete removes the first entry matching key. A missing key is a no-op,
// not an error.
func (t *BPlusTree) Delete(key int32) (bool, error) {
	t.metrics.RecordBtreeOp("delete")
	found, _, err := t.deleteRec(RootPageId, key)
	return found, err
}

// deleteRec returns (found, underflowed, err). underflowed is only
// meaningful to the caller when found is true, and is always false for the
// root since the root never has siblings to borrow from or merge with.
func (t *BPlusTree) deleteRec(pageId uint32, key int32) (bool, bool, error) {
	node, frame, err := t.getNode(pageId)
	if err != nil {
		return false, false, err
	}

	if node.IsLeaf {
		pos, ok := node.FindLeafPos(key)
		if !ok {
			frame.Unpin(false)
			return false, false, nil
		}
		node.RemoveLeafAt(pos)
		t.putNode(frame, node)
		underflow := pageId != RootPageId && node.NeedsMerge()
		return true, underflow, nil
	}

	idx := node.ChildIndex(key)
	childPageId := node.Children[idx]
	found, childUnderflow, err := t.deleteRec(childPageId, key)
	if err != nil {
		frame.Unpin(false)
		return false, false, err
	}
	if !found {
		frame.Unpin(false)
		return false, false, nil
	}
	if !childUnderflow {
		frame.Unpin(false)
		return true, false, nil
	}

	t.rebalanceChild(node, idx)

	if pageId == RootPageId {
		t.collapseRootIfEmpty(frame, node)
		return true, false, nil
	}

	underflow := node.NeedsMerge()
	t.putNode(frame, node)
	return true, underflow, nil
}

// rebalanceChild fixes an underflowed child at node.Children[idx] by
// borrowing from a sibling (left preferred), or else merging (left
// preferred when the child is not the leftmost).
func (t *BPlusTree) rebalanceChild(node *Node, idx int) {
	child, childFrame, err := t.getNode(node.Children[idx])
	if err != nil {
		t.log.Error("rebalance: failed to load underflowed child").
			Uint32("page_id", node.Children[idx]).Err(err).Send()
		return
	}

	if idx > 0 {
		left, leftFrame, err := t.getNode(node.Children[idx-1])
		if err == nil {
			if left.CanLend() {
				t.borrowLeft(node, idx, left, child)
				t.putNode(leftFrame, left)
				t.putNode(childFrame, child)
				return
			}
			leftFrame.Unpin(false)
		}
	}

	if idx+1 < len(node.Children) {
		right, rightFrame, err := t.getNode(node.Children[idx+1])
		if err == nil {
			if right.CanLend() {
				t.borrowRight(node, idx, child, right)
				t.putNode(childFrame, child)
				t.putNode(rightFrame, right)
				return
			}
			rightFrame.Unpin(false)
		}
	}

	t.metrics.RecordBtreeOp("merge")
	if idx > 0 {
		left, leftFrame, err := t.getNode(node.Children[idx-1])
		if err != nil {
			childFrame.Unpin(false)
			return
		}
		t.mergeInto(left, child, node.Keys[idx-1])
		t.pm.Free(node.Children[idx])
		node.RemoveSeparator(idx-1, idx)
		t.putNode(leftFrame, left)
		childFrame.Unpin(false)
		return
	}

	right, rightFrame, err := t.getNode(node.Children[idx+1])
	if err != nil {
		childFrame.Unpin(false)
		return
	}
	t.mergeInto(child, right, node.Keys[idx])
	t.pm.Free(node.Children[idx+1])
	node.RemoveSeparator(idx, idx+1)
	t.putNode(childFrame, child)
	rightFrame.Unpin(false)
}

func (t *BPlusTree) borrowLeft(node *Node, idx int, left, child *Node) {
	if child.IsLeaf {
		node.Keys[idx-1] = child.BorrowFromLeftLeaf(left)
		return
	}
	node.Keys[idx-1] = child.BorrowFromLeftInternal(left, node.Keys[idx-1])
}

func (t *BPlusTree) borrowRight(node *Node, idx int, child, right *Node) {
	if child.IsLeaf {
		node.Keys[idx] = child.BorrowFromRightLeaf(right)
		return
	}
	node.Keys[idx] = child.BorrowFromRightInternal(right, node.Keys[idx])
}

func (t *BPlusTree) mergeInto(left, right *Node, separator int32) {
	if left.IsLeaf {
		left.MergeLeaf(right)
		return
	}
	left.MergeInternal(separator, right)
}

// collapseRootIfEmpty implements "a root that becomes an empty internal
// node collapses to its sole child": since the root's page id never moves,
// the sole child's content is copied into the root's page and the child's
// old page is freed.
func (t *BPlusTree) collapseRootIfEmpty(frame *bufferpool.Frame, node *Node) {
	if node.IsLeaf || len(node.Keys) > 0 {
		t.putNode(frame, node)
		return
	}

	soleChildPageId := node.Children[0]
	soleChild, soleFrame, err := t.getNode(soleChildPageId)
	if err != nil {
		t.putNode(frame, node)
		return
	}
	soleChild.PageId = RootPageId
	t.putNode(frame, soleChild)
	soleFrame.Unpin(false)
	t.pm.Free(soleChildPageId)
}

// LeafValueIsBytes reports how this tree's leaves encode values.
func (t *BPlusTree) LeafValueIsBytes() bool { return t.leafValueIsBytes }

// IndexId returns the index id this tree is attached to.
func (t *BPlusTree) IndexId() int32 { return t.indexId }
