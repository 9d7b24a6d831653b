package index

import (
	"cmp"

	"github.com/stratadb/strata/buffer"
	"github.com/stratadb/strata/storage/disk"
)

// Iterator is a forward cursor over leaf slots in key order. It holds a
// read latch on exactly one leaf at a time, swapping to the next leaf via
// its sibling pointer once the current one is exhausted.
type Iterator[K cmp.Ordered, V any] struct {
	tree *Tree[K, V]
	leaf *buffer.ReadPageGuard
	pos  int
}

// End reports whether the iterator has been advanced past the last entry.
func (it *Iterator[K, V]) End() bool {
	return it.leaf == nil
}

// Key returns the key at the iterator's current position. Calling it at
// End is a programmer error.
func (it *Iterator[K, V]) Key() K {
	page := mustDecodeLeaf[K, V](it.leaf.Data())
	return page.Keys[it.pos]
}

// Value returns the value at the iterator's current position. Calling it
// at End is a programmer error.
func (it *Iterator[K, V]) Value() V {
	page := mustDecodeLeaf[K, V](it.leaf.Data())
	return page.Values[it.pos]
}

// Next advances the iterator by one slot, crossing into the next leaf via
// its sibling pointer when the current leaf is exhausted, and dropping
// the guard on the leaf left behind either way.
func (it *Iterator[K, V]) Next() {
	if it.leaf == nil {
		return
	}

	page := mustDecodeLeaf[K, V](it.leaf.Data())
	it.pos++
	if it.pos < page.size() {
		return
	}

	next := page.NextPageID
	it.leaf.Drop()
	it.leaf = nil
	it.pos = 0

	if next == disk.InvalidPageID {
		return
	}
	it.leaf = it.tree.mustFetchRead(next)
}

// Close releases the iterator's held leaf latch, if any. Safe to call
// more than once and safe on an iterator already at End.
func (it *Iterator[K, V]) Close() {
	if it.leaf == nil {
		return
	}
	it.leaf.Drop()
	it.leaf = nil
}

// Begin returns an iterator positioned at the first entry of the
// leftmost leaf. It is the End iterator if the tree is empty.
func (t *Tree[K, V]) Begin() *Iterator[K, V] {
	header := t.mustFetchRead(HeaderPageID)
	rootID := mustDecodeHeader(header.Data()).RootPageID
	if rootID == disk.InvalidPageID {
		header.Drop()
		return &Iterator[K, V]{tree: t}
	}

	cur := t.mustFetchRead(rootID)
	header.Drop()

	for pageKind(cur.Data()) == kindInternal {
		internal := mustDecodeInternal[K](cur.Data())
		next := t.mustFetchRead(internal.Children[0])
		cur.Drop()
		cur = next
	}

	return &Iterator[K, V]{tree: t, leaf: cur, pos: 0}
}

// BeginAt returns an iterator positioned at the first entry whose key is
// >= key. It is the End iterator if no such entry exists.
func (t *Tree[K, V]) BeginAt(key K) *Iterator[K, V] {
	header := t.mustFetchRead(HeaderPageID)
	rootID := mustDecodeHeader(header.Data()).RootPageID
	if rootID == disk.InvalidPageID {
		header.Drop()
		return &Iterator[K, V]{tree: t}
	}

	cur := t.mustFetchRead(rootID)
	header.Drop()

	for pageKind(cur.Data()) == kindInternal {
		internal := mustDecodeInternal[K](cur.Data())
		childID := internal.Children[internal.childIndexFor(key)]
		next := t.mustFetchRead(childID)
		cur.Drop()
		cur = next
	}

	leaf := mustDecodeLeaf[K, V](cur.Data())
	i, _ := leaf.find(key)
	if i >= leaf.size() {
		next := leaf.NextPageID
		cur.Drop()
		if next == disk.InvalidPageID {
			return &Iterator[K, V]{tree: t}
		}
		return &Iterator[K, V]{tree: t, leaf: t.mustFetchRead(next), pos: 0}
	}

	return &Iterator[K, V]{tree: t, leaf: cur, pos: i}
}

// End returns the sentinel end-of-iteration iterator.
func (t *Tree[K, V]) End() *Iterator[K, V] {
	return &Iterator[K, V]{tree: t}
}
