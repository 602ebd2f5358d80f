// Package btree implements the fixed-fanout B+ tree that backs both
// clustered and secondary indexes. Every node is serialized into exactly one
// Index page; the page/buffer-pool layers below are oblivious to its
// contents beyond the raw bytes.
package btree

import (
	"encoding/binary"

	"github.com/relcore/reldb/pkg/dberrors"
	"github.com/relcore/reldb/pkg/page"
)

// Magic identifies a serialized node payload.
const Magic uint32 = 0x4254504E

// Version is the only node wire-format version this package writes.
const Version uint8 = 1

const (
	flagLeaf           uint8 = 1 << 0
	flagLeafValueBytes uint8 = 1 << 1
)

// NoLeaf marks the absence of a next-leaf link.
const NoLeaf int32 = -1

// Fanout bounds, per the node design: a node overflows at keyCount >=
// MaxChildren-1 and underflows below MinChildren-1 keys.
const (
	MaxChildren = 100
	MinChildren = 50
)

const headerSize = 4 + 1 + 1 + 2 + 4 + 4 // magic,version,flags,reserved,keyCount,nextLeafPageId

// Value is the sum type stored at a leaf: either a serialized record
// (clustered-index leaves) or a primary-key back-pointer (secondary-index
// leaves and internal-node-adjacent integer leaves).
type Value struct {
	IsBytes bool
	Bytes   []byte
	Int     int32
}

// BytesValue wraps a record payload.
func BytesValue(b []byte) Value { return Value{IsBytes: true, Bytes: b} }

// IntValue wraps a primary-key back-pointer.
func IntValue(i int32) Value { return Value{IsBytes: false, Int: i} }

// Node is the decoded, in-memory form of one B+ tree node.
type Node struct {
	PageId uint32

	IsLeaf           bool
	LeafValueIsBytes bool

	Keys []int32

	// Children holds len(Keys)+1 child page ids; populated for internal
	// nodes only.
	Children []uint32

	// Values holds len(Keys) leaf payloads; populated for leaves only.
	Values []Value

	// NextLeafPageId chains leaves left-to-right; NoLeaf if this is the
	// rightmost leaf. Meaningless for internal nodes.
	NextLeafPageId int32
}

// NewLeaf constructs a blank leaf node.
func NewLeaf(pageId uint32, leafValueIsBytes bool) *Node {
	return &Node{
		PageId:           pageId,
		IsLeaf:           true,
		LeafValueIsBytes: leafValueIsBytes,
		NextLeafPageId:   NoLeaf,
	}
}

// NewInternal constructs an internal node with the given keys and children.
// len(children) must equal len(keys)+1.
func NewInternal(pageId uint32, keys []int32, children []uint32) *Node {
	return &Node{
		PageId:         pageId,
		IsLeaf:         false,
		Keys:           keys,
		Children:       children,
		NextLeafPageId: NoLeaf,
	}
}

// NeedsSplit reports whether the node has overflowed.
func (n *Node) NeedsSplit() bool {
	return len(n.Keys) >= MaxChildren-1
}

// NeedsMerge reports whether the node has underflowed.
func (n *Node) NeedsMerge() bool {
	return len(n.Keys) < MinChildren-1
}

// CanLend reports whether the node could give up one key/child without
// itself underflowing.
func (n *Node) CanLend() bool {
	return len(n.Keys)-1 >= MinChildren-1
}

// findLeafPos returns the insertion/search position of key among the node's
// sorted keys via binary search, and whether key is present.
func findLeafPos(keys []int32, key int32) (int, bool) {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if keys[mid] < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(keys) && keys[lo] == key {
		return lo, true
	}
	return lo, false
}

// ChildIndex returns which child subtree a key descends into for an
// internal node: the index of the first key strictly greater than key, or
// len(Keys) if key is at-or-beyond every separator.
func (n *Node) ChildIndex(key int32) int {
	lo, hi := 0, len(n.Keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if n.Keys[mid] <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// InsertLeaf inserts key/val in sorted order. An existing entry under the
// same key is kept and the new entry is placed before it (duplicates are
// permitted unless the caller enforces uniqueness beforehand).
func (n *Node) InsertLeaf(key int32, val Value) {
	pos, _ := findLeafPos(n.Keys, key)
	// Duplicate keys are permitted: always insert a new entry at the first
	// position a binary search would settle on, rather than overwriting.
	n.Keys = append(n.Keys, 0)
	copy(n.Keys[pos+1:], n.Keys[pos:])
	n.Keys[pos] = key

	n.Values = append(n.Values, Value{})
	copy(n.Values[pos+1:], n.Values[pos:])
	n.Values[pos] = val
}

// FindLeaf returns the first value stored under key in a leaf, if present.
func (n *Node) FindLeaf(key int32) (Value, bool) {
	pos, ok := findLeafPos(n.Keys, key)
	if !ok {
		return Value{}, false
	}
	return n.Values[pos], true
}

// RemoveLeafAt deletes the key/value pair at pos.
func (n *Node) RemoveLeafAt(pos int) {
	n.Keys = append(n.Keys[:pos], n.Keys[pos+1:]...)
	n.Values = append(n.Values[:pos], n.Values[pos+1:]...)
}

// FindLeafPos exposes the binary search position for callers in this
// package's tree logic.
func (n *Node) FindLeafPos(key int32) (int, bool) {
	return findLeafPos(n.Keys, key)
}

// InsertChild inserts a separator key and the new right child produced by a
// split at position idx (the split child was at Children[idx]).
func (n *Node) InsertChild(idx int, key int32, childPageId uint32) {
	n.Keys = append(n.Keys, 0)
	copy(n.Keys[idx+1:], n.Keys[idx:])
	n.Keys[idx] = key

	n.Children = append(n.Children, 0)
	copy(n.Children[idx+2:], n.Children[idx+1:])
	n.Children[idx+1] = childPageId
}

// RemoveSeparator removes the separator key at keyIdx and the child
// pointer at childIdx, used when merging two children into one.
func (n *Node) RemoveSeparator(keyIdx, childIdx int) {
	n.Keys = append(n.Keys[:keyIdx], n.Keys[keyIdx+1:]...)
	n.Children = append(n.Children[:childIdx], n.Children[childIdx+1:]...)
}

// Split splits an overflowed node, returning the promoted/split key and the
// new right-hand node. The receiver is mutated in place to become the left
// half. The returned node's PageId is left zero; the caller assigns it and
// is responsible for rethreading leaf links.
func (n *Node) Split() (splitKey int32, right *Node) {
	mid := len(n.Keys) / 2

	if n.IsLeaf {
		splitKey = n.Keys[mid]
		right = &Node{
			IsLeaf:           true,
			LeafValueIsBytes: n.LeafValueIsBytes,
			Keys:             append([]int32(nil), n.Keys[mid:]...),
			Values:           append([]Value(nil), n.Values[mid:]...),
			NextLeafPageId:   n.NextLeafPageId,
		}
		n.Keys = n.Keys[:mid]
		n.Values = n.Values[:mid]
		return splitKey, right
	}

	// Internal split: the middle key is promoted and does not survive in
	// either child's key list.
	splitKey = n.Keys[mid]
	right = &Node{
		IsLeaf:         false,
		Keys:           append([]int32(nil), n.Keys[mid+1:]...),
		Children:       append([]uint32(nil), n.Children[mid+1:]...),
		NextLeafPageId: NoLeaf,
	}
	n.Keys = n.Keys[:mid]
	n.Children = n.Children[:mid+1]
	return splitKey, right
}

// MergeLeaf absorbs right's entries onto the end of n (n is the left
// sibling) and inherits right's leaf-link.
func (n *Node) MergeLeaf(right *Node) {
	n.Keys = append(n.Keys, right.Keys...)
	n.Values = append(n.Values, right.Values...)
	n.NextLeafPageId = right.NextLeafPageId
}

// MergeInternal absorbs a separator key pulled down from the parent plus
// right's entries onto the end of n.
func (n *Node) MergeInternal(separator int32, right *Node) {
	n.Keys = append(n.Keys, separator)
	n.Keys = append(n.Keys, right.Keys...)
	n.Children = append(n.Children, right.Children...)
}

// BorrowFromLeftLeaf moves the left sibling's last entry onto the front of
// n, returning the new separator key the parent should store.
func (n *Node) BorrowFromLeftLeaf(left *Node) (newSeparator int32) {
	lastIdx := len(left.Keys) - 1
	key, val := left.Keys[lastIdx], left.Values[lastIdx]
	left.Keys = left.Keys[:lastIdx]
	left.Values = left.Values[:lastIdx]

	n.Keys = append([]int32{key}, n.Keys...)
	n.Values = append([]Value{val}, n.Values...)
	return n.Keys[0]
}

// BorrowFromRightLeaf moves the right sibling's first entry onto the end of
// n, returning the new separator key the parent should store.
func (n *Node) BorrowFromRightLeaf(right *Node) (newSeparator int32) {
	key, val := right.Keys[0], right.Values[0]
	right.Keys = right.Keys[1:]
	right.Values = right.Values[1:]

	n.Keys = append(n.Keys, key)
	n.Values = append(n.Values, val)
	return right.Keys[0]
}

// BorrowFromLeftInternal rotates the parent separator down into n and the
// left sibling's last child up into the parent, returning the new
// separator.
func (n *Node) BorrowFromLeftInternal(left *Node, parentSeparator int32) (newSeparator int32) {
	lastKeyIdx := len(left.Keys) - 1
	lastChildIdx := len(left.Children) - 1
	borrowedChild := left.Children[lastChildIdx]
	newSeparator = left.Keys[lastKeyIdx]

	left.Keys = left.Keys[:lastKeyIdx]
	left.Children = left.Children[:lastChildIdx]

	n.Keys = append([]int32{parentSeparator}, n.Keys...)
	n.Children = append([]uint32{borrowedChild}, n.Children...)
	return newSeparator
}

// BorrowFromRightInternal rotates the parent separator down into n and the
// right sibling's first child up into the parent, returning the new
// separator.
func (n *Node) BorrowFromRightInternal(right *Node, parentSeparator int32) (newSeparator int32) {
	borrowedChild := right.Children[0]
	newSeparator = right.Keys[0]

	right.Keys = right.Keys[1:]
	right.Children = right.Children[1:]

	n.Keys = append(n.Keys, parentSeparator)
	n.Children = append(n.Children, borrowedChild)
	return newSeparator
}

// ToBytes serializes the node into a page-payload-sized buffer.
func (n *Node) ToBytes() []byte {
	buf := make([]byte, page.PayloadSize)
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	buf[4] = Version

	var flags uint8
	if n.IsLeaf {
		flags |= flagLeaf
		if n.LeafValueIsBytes {
			flags |= flagLeafValueBytes
		}
	}
	buf[5] = flags
	// bytes 6:8 reserved, left zero

	binary.BigEndian.PutUint32(buf[8:12], uint32(len(n.Keys)))
	binary.BigEndian.PutUint32(buf[12:16], uint32(n.NextLeafPageId))

	off := headerSize
	for _, k := range n.Keys {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(k))
		off += 4
	}

	switch {
	case !n.IsLeaf:
		for _, c := range n.Children {
			binary.BigEndian.PutUint32(buf[off:off+4], c)
			off += 4
		}
	case !n.LeafValueIsBytes:
		for _, v := range n.Values {
			binary.BigEndian.PutUint32(buf[off:off+4], uint32(v.Int))
			off += 4
		}
	default:
		for _, v := range n.Values {
			binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(v.Bytes)))
			off += 2
			copy(buf[off:off+len(v.Bytes)], v.Bytes)
			off += len(v.Bytes)
		}
	}

	return buf
}

// FromBytes decodes a node from a page payload. An all-zero magic field
// signals a page that has never been written, and decodes as a blank leaf
// rather than an error.
func FromBytes(payload []byte, pageId uint32) (*Node, error) {
	if len(payload) < headerSize {
		return nil, dberrors.New(dberrors.IndexCorrupt, "index page %d payload too short", pageId)
	}

	magic := binary.BigEndian.Uint32(payload[0:4])
	if magic == 0 {
		return NewLeaf(pageId, true), nil
	}
	if magic != Magic {
		return nil, dberrors.New(dberrors.IndexCorrupt, "index page %d has bad magic %#x", pageId, magic)
	}

	flags := payload[5]
	isLeaf := flags&flagLeaf != 0
	leafValueIsBytes := flags&flagLeafValueBytes != 0
	keyCount := binary.BigEndian.Uint32(payload[8:12])
	nextLeaf := int32(binary.BigEndian.Uint32(payload[12:16]))

	n := &Node{
		PageId:           pageId,
		IsLeaf:           isLeaf,
		LeafValueIsBytes: leafValueIsBytes,
		NextLeafPageId:   nextLeaf,
	}

	off := headerSize
	n.Keys = make([]int32, keyCount)
	for i := range n.Keys {
		n.Keys[i] = int32(binary.BigEndian.Uint32(payload[off : off+4]))
		off += 4
	}

	switch {
	case !isLeaf:
		n.Children = make([]uint32, keyCount+1)
		for i := range n.Children {
			n.Children[i] = binary.BigEndian.Uint32(payload[off : off+4])
			off += 4
		}
	case !leafValueIsBytes:
		n.Values = make([]Value, keyCount)
		for i := range n.Values {
			n.Values[i] = IntValue(int32(binary.BigEndian.Uint32(payload[off : off+4])))
			off += 4
		}
	default:
		n.Values = make([]Value, keyCount)
		for i := range n.Values {
			length := binary.BigEndian.Uint16(payload[off : off+2])
			off += 2
			b := make([]byte, length)
			copy(b, payload[off:off+int(length)])
			off += int(length)
			n.Values[i] = BytesValue(b)
		}
	}

	return n, nil
}
