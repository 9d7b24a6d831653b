package index

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/stratadb/strata/storage/disk"
	"github.com/stratadb/strata/util"
)

// kind identifies what a page holding a B+Tree node actually is. It is
// written as a single raw byte at the front of the page, ahead of the
// msgpack-encoded body, since internal and leaf pages have different
// shapes and msgpack's positional struct encoding gives no cheap way to
// peek a shared header field before knowing which shape to decode into.
type kind byte

const (
	kindInvalid kind = iota
	kindHeader
	kindInternal
	kindLeaf
)

// HeaderPageID is the fixed page id holding the tree's root pointer.
const HeaderPageID int64 = 0

// headerPage is the tree's single root-pointer indirection: every reader
// and writer learns the current root page id by fetching this page,
// which lets the root change (on a split reaching the top, or a merge
// collapsing it) without any other page needing to be rewritten.
type headerPage struct {
	RootPageID int64
}

// internalPage routes a key to one of Size children. Keys holds the
// Size-1 separator keys; Children holds the Size child page ids. This is
// the same information as the "slot 0 unused" convention some B+Tree
// implementations use, just without the wasted slot: child i is reached
// by keys satisfying Keys[i-1] <= k < Keys[i], with Keys[-1] treated as
// -infinity and Keys[Size-1] as +infinity.
type internalPage[K cmp.Ordered] struct {
	MaxSize  int32
	Keys     []K
	Children []int64
}

func newInternalPage[K cmp.Ordered](maxSize int32) *internalPage[K] {
	return &internalPage[K]{MaxSize: maxSize}
}

func (p *internalPage[K]) size() int {
	return len(p.Children)
}

// isSafe reports whether this node can absorb one more child without
// splitting, the test the write path uses to decide how far up the
// ancestor stack a split can possibly propagate.
func (p *internalPage[K]) isSafe() bool {
	return p.size()+1 <= int(p.MaxSize)
}

// childIndexFor returns the index of the child that key belongs under.
func (p *internalPage[K]) childIndexFor(key K) int {
	idx, found := slices.BinarySearch(p.Keys, key)
	if found {
		return idx + 1
	}
	return idx
}

// insertChildAfter inserts child directly after the child at index i,
// with separator as the key routing to it: child goes at index i+1 in
// Children and separator at index i in Keys.
func (p *internalPage[K]) insertChildAfter(i int, separator K, child int64) {
	p.Keys = slices.Insert(p.Keys, i, separator)
	p.Children = slices.Insert(p.Children, i+1, child)
}

// split moves the right half of p into a new sibling page, returning the
// sibling and the separator key that should be inserted into the parent.
// The middle key is pulled up and does not appear in either child.
func (p *internalPage[K]) split() (*internalPage[K], K) {
	mid := p.size() / 2
	separator := p.Keys[mid-1]

	sibling := newInternalPage[K](p.MaxSize)
	sibling.Keys = append(sibling.Keys, p.Keys[mid:]...)
	sibling.Children = append(sibling.Children, p.Children[mid:]...)

	p.Keys = p.Keys[:mid-1]
	p.Children = p.Children[:mid]

	return sibling, separator
}

// leafPage stores the actual key/value entries in sorted key order, with
// NextPageID chaining leaves for the forward iterator.
type leafPage[K cmp.Ordered, V any] struct {
	NextPageID int64
	MaxSize    int32
	Keys       []K
	Values     []V
}

func newLeafPage[K cmp.Ordered, V any](maxSize int32) *leafPage[K, V] {
	return &leafPage[K, V]{NextPageID: disk.InvalidPageID, MaxSize: maxSize}
}

func (p *leafPage[K, V]) size() int {
	return len(p.Keys)
}

func (p *leafPage[K, V]) isSafe() bool {
	return p.size()+1 <= int(p.MaxSize)
}

// find returns the slot holding key and true, or the position key would
// be inserted at and false.
func (p *leafPage[K, V]) find(key K) (int, bool) {
	return slices.BinarySearch(p.Keys, key)
}

func (p *leafPage[K, V]) insertAt(i int, key K, value V) {
	p.Keys = slices.Insert(p.Keys, i, key)
	p.Values = slices.Insert(p.Values, i, value)
}

func (p *leafPage[K, V]) removeAt(i int) {
	p.Keys = slices.Delete(p.Keys, i, i+1)
	p.Values = slices.Delete(p.Values, i, i+1)
}

// isUnderflow reports whether p holds fewer entries than minSize allows.
func (p *leafPage[K, V]) isUnderflow(minSize int32) bool {
	return p.size() < int(minSize)
}

// canLend reports whether p can give up one entry to a sibling and still
// hold at least minSize.
func (p *leafPage[K, V]) canLend(minSize int32) bool {
	return p.size()-1 >= int(minSize)
}

// borrowFromLeft moves left's last entry to p's front, returning p's new
// first key as the parent's new separator between left and p.
func (p *leafPage[K, V]) borrowFromLeft(left *leafPage[K, V]) K {
	n := left.size()
	key, value := left.Keys[n-1], left.Values[n-1]
	left.removeAt(n - 1)
	p.insertAt(0, key, value)
	return key
}

// borrowFromRight moves right's first entry to p's end, returning right's
// new first key as the parent's new separator between p and right.
func (p *leafPage[K, V]) borrowFromRight(right *leafPage[K, V]) K {
	key, value := right.Keys[0], right.Values[0]
	right.removeAt(0)
	p.insertAt(p.size(), key, value)
	return right.Keys[0]
}

// mergeWith absorbs right into p and adopts its sibling pointer. right is
// left empty and should be deleted by the caller.
func (p *leafPage[K, V]) mergeWith(right *leafPage[K, V]) {
	p.Keys = append(p.Keys, right.Keys...)
	p.Values = append(p.Values, right.Values...)
	p.NextPageID = right.NextPageID
}

// split moves the upper half of p's entries (size - size/2 of them) into
// a new right sibling,
// linking it into the leaf chain, and returns the sibling plus the
// separator key (the sibling's first key) for the parent.
func (p *leafPage[K, V]) split(siblingPageID int64) (*leafPage[K, V], K) {
	mid := p.size() / 2

	sibling := newLeafPage[K, V](p.MaxSize)
	sibling.Keys = append(sibling.Keys, p.Keys[mid:]...)
	sibling.Values = append(sibling.Values, p.Values[mid:]...)
	sibling.NextPageID = p.NextPageID

	p.Keys = p.Keys[:mid]
	p.Values = p.Values[:mid]
	p.NextPageID = siblingPageID

	separator := sibling.Keys[0]
	return sibling, separator
}

// isUnderflow reports whether p holds fewer entries than minSize allows.
// Root nodes are exempt from this check by the caller, not by the page
// itself.
func (p *internalPage[K]) isUnderflow(minSize int32) bool {
	return p.size() < int(minSize)
}

// canLend reports whether p can give up one child to a sibling and still
// hold at least minSize.
func (p *internalPage[K]) canLend(minSize int32) bool {
	return p.size()-1 >= int(minSize)
}

// removeChildAt removes the child pointer at index i (i >= 1) along with
// the separator key that routes to it, Keys[i-1].
func (p *internalPage[K]) removeChildAt(i int) {
	p.Keys = slices.Delete(p.Keys, i-1, i)
	p.Children = slices.Delete(p.Children, i, i+1)
}

// borrowFromLeft moves left's rightmost child to p's front, pulling
// parentSeparator down as p's new first key and returning left's former
// last key as the parent's new separator between left and p.
func (p *internalPage[K]) borrowFromLeft(left *internalPage[K], parentSeparator K) K {
	n := len(left.Keys)
	newSeparator := left.Keys[n-1]
	movedChild := left.Children[len(left.Children)-1]

	left.Keys = left.Keys[:n-1]
	left.Children = left.Children[:len(left.Children)-1]

	p.Keys = slices.Insert(p.Keys, 0, parentSeparator)
	p.Children = slices.Insert(p.Children, 0, movedChild)

	return newSeparator
}

// borrowFromRight moves right's leftmost child to p's end, pulling
// parentSeparator down as p's new last key and returning right's former
// first key as the parent's new separator between p and right.
func (p *internalPage[K]) borrowFromRight(right *internalPage[K], parentSeparator K) K {
	newSeparator := right.Keys[0]
	movedChild := right.Children[0]

	right.Keys = right.Keys[1:]
	right.Children = right.Children[1:]

	p.Keys = append(p.Keys, parentSeparator)
	p.Children = append(p.Children, movedChild)

	return newSeparator
}

// mergeWith absorbs right into p, pulling down the separator that used to
// sit between them in their parent. right is left empty and should be
// deleted by the caller.
func (p *internalPage[K]) mergeWith(right *internalPage[K], parentSeparator K) {
	p.Keys = append(p.Keys, parentSeparator)
	p.Keys = append(p.Keys, right.Keys...)
	p.Children = append(p.Children, right.Children...)
}

// encodePage writes kind's tag byte followed by the msgpack encoding of
// body into a fresh disk.PageSize buffer. The body itself is marshaled
// by util.MarshalInto, the same zero-pad-and-check-fit helper every
// fixed-size page-sized struct in this engine goes through.
func encodePage(k kind, body any) ([]byte, error) {
	buf := make([]byte, disk.PageSize)
	buf[0] = byte(k)
	if err := util.MarshalInto(buf[1:], body); err != nil {
		return nil, fmt.Errorf("index: encode page: %w", err)
	}
	return buf, nil
}

func pageKind(data []byte) kind {
	return kind(data[0])
}

func decodeHeaderPage(data []byte) (headerPage, error) {
	h, err := util.ToStruct[headerPage](data[1:])
	if err != nil {
		return h, fmt.Errorf("index: decode header page: %w", err)
	}
	return h, nil
}

func decodeInternalPage[K cmp.Ordered](data []byte) (*internalPage[K], error) {
	p, err := util.ToStruct[internalPage[K]](data[1:])
	if err != nil {
		return nil, fmt.Errorf("index: decode internal page: %w", err)
	}
	return &p, nil
}

func decodeLeafPage[K cmp.Ordered, V any](data []byte) (*leafPage[K, V], error) {
	p, err := util.ToStruct[leafPage[K, V]](data[1:])
	if err != nil {
		return nil, fmt.Errorf("index: decode leaf page: %w", err)
	}
	return &p, nil
}
