package index

import (
	"cmp"
	"slices"

	"go.uber.org/zap"

	"github.com/stratadb/strata/buffer"
	"github.com/stratadb/strata/storage/disk"
)

// pageSafeForDelete reports whether the page at data can give up one
// entry and still meet its minimum occupancy, the crabbing safety test
// for the delete path.
func pageSafeForDelete[K cmp.Ordered, V any](data []byte, leafMinSize, internalMinSize int32) bool {
	switch pageKind(data) {
	case kindLeaf:
		return mustDecodeLeaf[K, V](data).size() > int(leafMinSize)
	case kindInternal:
		return mustDecodeInternal[K](data).size() > int(internalMinSize)
	default:
		panic("index: unexpected page kind during delete descent")
	}
}

// rootSafeForDelete is pageSafeForDelete's counterpart for the root page,
// which is exempt from min_size: a root leaf can only ever need the
// header rewritten by emptying out entirely, and only one entry can be
// removed from it per call, so it is safe once it holds more than one
// entry. A root internal page can only ever need collapsing by losing
// its one touched child to a merge, so it is safe once it holds more
// than two children (i.e. still holds at least two after losing one).
func rootSafeForDelete[K cmp.Ordered, V any](data []byte) bool {
	switch pageKind(data) {
	case kindLeaf:
		return mustDecodeLeaf[K, V](data).size() > 1
	case kindInternal:
		return mustDecodeInternal[K](data).size() > 2
	default:
		panic("index: unexpected page kind during delete descent")
	}
}

// Remove deletes key if present. It mirrors Insert's crabbing descent
// with the inverse safety predicate: the header write latch is folded
// into the ancestor stack exactly as Insert folds it in for a possible
// split, released as soon as the root is confirmed safe from needing a
// collapse or an empty-out, and retained only while that remains
// possible.
func (t *Tree[K, V]) Remove(key K) {
	header := t.mustFetchWrite(HeaderPageID)
	h := mustDecodeHeader(header.Data())
	if h.RootPageID == disk.InvalidPageID {
		header.Drop()
		return
	}

	var ancestors []writeFrame
	rootGuard := t.mustFetchWrite(h.RootPageID)
	if rootSafeForDelete[K, V](rootGuard.Data()) {
		header.Drop()
	} else {
		ancestors = append(ancestors, writeFrame{HeaderPageID, header})
	}

	curID := h.RootPageID
	cur := rootGuard

	for pageKind(cur.Data()) == kindInternal {
		internal := mustDecodeInternal[K](cur.Data())
		idx := internal.childIndexFor(key)
		childID := internal.Children[idx]
		childGuard := t.mustFetchWrite(childID)

		if pageSafeForDelete[K, V](childGuard.Data(), t.leafMinSize, t.internalMinSize) {
			t.dropAll(ancestors)
			ancestors = ancestors[:0]
			cur.Drop()
		} else {
			ancestors = append(ancestors, writeFrame{curID, cur})
		}

		curID, cur = childID, childGuard
	}

	leaf := mustDecodeLeaf[K, V](cur.Data())
	i, found := leaf.find(key)
	if !found {
		cur.Drop()
		t.dropAll(ancestors)
		return
	}
	leaf.removeAt(i)
	t.writeLeaf(cur, leaf)

	if curID == h.RootPageID {
		// The leaf we just touched is also the whole tree. The only
		// structural change a root leaf can need is emptying out, and
		// rootSafeForDelete guarantees the header is still in ancestors
		// whenever that was possible.
		cur.Drop()
		if leaf.size() == 0 {
			h.RootPageID = disk.InvalidPageID
			t.writeHeader(ancestors[0].guard, h)
			t.bpm.DeletePage(curID)
		}
		t.dropAll(ancestors)
		return
	}

	if !leaf.isUnderflow(t.leafMinSize) || len(ancestors) == 0 {
		cur.Drop()
		t.dropAll(ancestors)
		return
	}

	t.fixUnderflow(ancestors, curID, cur, true)
}

// fixUnderflow walks ancestors from the nearest parent up towards the
// root, repairing the underflowing child at childID (held write-latched
// via childGuard) by redistributing with a sibling or, failing that,
// merging with one. If the header page was retained by Remove's initial
// rootSafeForDelete check, it sits at the bottom of ancestors below the
// root's own frame and is only ever consumed by the atRoot branch, once
// the cascade reaches the root itself - unlike propagateSplit, the loop
// here never pops the header as top. It stops as soon as a level is
// restored, and collapses the root in place if a merge leaves it with a
// single child.
func (t *Tree[K, V]) fixUnderflow(ancestors []writeFrame, childID int64, childGuard *buffer.WritePageGuard, childIsLeaf bool) {
	for len(ancestors) > 0 {
		top := ancestors[len(ancestors)-1]
		ancestors = ancestors[:len(ancestors)-1]

		// atRoot means nothing retained is left above top except,
		// possibly, the still-held header: top is either the tree's root
		// or the topmost ancestor the descent kept, which it only keeps
		// once that node can lose a child without underflowing. The
		// header itself never becomes top - rootSafeForDelete guarantees
		// it is retained only directly below the root frame, and both
		// branches below return as soon as they finish handling the
		// root, so the loop never runs again with the header on top.
		atRoot := len(ancestors) == 0 || ancestors[len(ancestors)-1].id == HeaderPageID

		parent := mustDecodeInternal[K](top.guard.Data())
		j := slices.Index(parent.Children, childID)

		if t.redistributeOrMerge(parent, j, childGuard, childIsLeaf) {
			t.writeInternal(top.guard, parent)
			top.guard.Drop()
			t.dropAll(ancestors)
			return
		}

		if atRoot {
			if parent.size() == 1 {
				// rootSafeForDelete guarantees ancestors still holds the
				// header here whenever this branch is reachable.
				newRootID := parent.Children[0]
				top.guard.Drop()

				headerFrame := ancestors[0]
				h := mustDecodeHeader(headerFrame.guard.Data())
				h.RootPageID = newRootID
				t.writeHeader(headerFrame.guard, h)
				headerFrame.guard.Drop()
				t.bpm.DeletePage(top.id)
				t.log.Debug("root collapsed", zap.Int64("newRoot", newRootID))
			} else {
				t.writeInternal(top.guard, parent)
				top.guard.Drop()
				t.dropAll(ancestors)
			}
			return
		}

		t.writeInternal(top.guard, parent)
		if !parent.isUnderflow(t.internalMinSize) {
			top.guard.Drop()
			t.dropAll(ancestors)
			return
		}

		childID, childGuard, childIsLeaf = top.id, top.guard, false
	}
}

// redistributeOrMerge repairs parent.Children[childIdx], which has
// underflowed, by borrowing from a sibling that can lend, or merging with
// one otherwise. It reports true if the repair left parent's child count
// unchanged (redistribution), false if it removed a child (merge), in
// which case the caller must re-check parent's own occupancy.
func (t *Tree[K, V]) redistributeOrMerge(parent *internalPage[K], childIdx int, childGuard *buffer.WritePageGuard, childIsLeaf bool) bool {
	if childIsLeaf {
		return t.redistributeOrMergeLeaf(parent, childIdx, childGuard)
	}
	return t.redistributeOrMergeInternal(parent, childIdx, childGuard)
}

func (t *Tree[K, V]) redistributeOrMergeLeaf(parent *internalPage[K], childIdx int, childGuard *buffer.WritePageGuard) bool {
	child := mustDecodeLeaf[K, V](childGuard.Data())

	if childIdx > 0 {
		leftID := parent.Children[childIdx-1]
		leftGuard := t.mustFetchWrite(leftID)
		left := mustDecodeLeaf[K, V](leftGuard.Data())
		if left.canLend(t.leafMinSize) {
			parent.Keys[childIdx-1] = child.borrowFromLeft(left)
			t.writeLeaf(leftGuard, left)
			t.writeLeaf(childGuard, child)
			leftGuard.Drop()
			childGuard.Drop()
			return true
		}
		leftGuard.Drop()
	}

	if childIdx < parent.size()-1 {
		rightID := parent.Children[childIdx+1]
		rightGuard := t.mustFetchWrite(rightID)
		right := mustDecodeLeaf[K, V](rightGuard.Data())
		if right.canLend(t.leafMinSize) {
			parent.Keys[childIdx] = child.borrowFromRight(right)
			t.writeLeaf(childGuard, child)
			t.writeLeaf(rightGuard, right)
			rightGuard.Drop()
			childGuard.Drop()
			return true
		}
		rightGuard.Drop()
	}

	if childIdx > 0 {
		leftID := parent.Children[childIdx-1]
		leftGuard := t.mustFetchWrite(leftID)
		left := mustDecodeLeaf[K, V](leftGuard.Data())
		left.mergeWith(child)
		t.writeLeaf(leftGuard, left)
		leftGuard.Drop()
		childGuard.Drop()
		t.bpm.DeletePage(parent.Children[childIdx])
		parent.removeChildAt(childIdx)
		t.log.Debug("leaf merge", zap.Int64("survivor", leftID))
		return false
	}

	rightID := parent.Children[childIdx+1]
	rightGuard := t.mustFetchWrite(rightID)
	right := mustDecodeLeaf[K, V](rightGuard.Data())
	child.mergeWith(right)
	t.writeLeaf(childGuard, child)
	childGuard.Drop()
	rightGuard.Drop()
	t.bpm.DeletePage(parent.Children[childIdx+1])
	parent.removeChildAt(childIdx + 1)
	t.log.Debug("leaf merge", zap.Int64("survivor", parent.Children[childIdx]))
	return false
}

func (t *Tree[K, V]) redistributeOrMergeInternal(parent *internalPage[K], childIdx int, childGuard *buffer.WritePageGuard) bool {
	child := mustDecodeInternal[K](childGuard.Data())

	if childIdx > 0 {
		leftID := parent.Children[childIdx-1]
		leftGuard := t.mustFetchWrite(leftID)
		left := mustDecodeInternal[K](leftGuard.Data())
		if left.canLend(t.internalMinSize) {
			parent.Keys[childIdx-1] = child.borrowFromLeft(left, parent.Keys[childIdx-1])
			t.writeInternal(leftGuard, left)
			t.writeInternal(childGuard, child)
			leftGuard.Drop()
			childGuard.Drop()
			return true
		}
		leftGuard.Drop()
	}

	if childIdx < parent.size()-1 {
		rightID := parent.Children[childIdx+1]
		rightGuard := t.mustFetchWrite(rightID)
		right := mustDecodeInternal[K](rightGuard.Data())
		if right.canLend(t.internalMinSize) {
			parent.Keys[childIdx] = child.borrowFromRight(right, parent.Keys[childIdx])
			t.writeInternal(childGuard, child)
			t.writeInternal(rightGuard, right)
			rightGuard.Drop()
			childGuard.Drop()
			return true
		}
		rightGuard.Drop()
	}

	if childIdx > 0 {
		leftID := parent.Children[childIdx-1]
		leftGuard := t.mustFetchWrite(leftID)
		left := mustDecodeInternal[K](leftGuard.Data())
		left.mergeWith(child, parent.Keys[childIdx-1])
		t.writeInternal(leftGuard, left)
		leftGuard.Drop()
		childGuard.Drop()
		t.bpm.DeletePage(parent.Children[childIdx])
		parent.removeChildAt(childIdx)
		t.log.Debug("internal merge", zap.Int64("survivor", leftID))
		return false
	}

	rightID := parent.Children[childIdx+1]
	rightGuard := t.mustFetchWrite(rightID)
	right := mustDecodeInternal[K](rightGuard.Data())
	child.mergeWith(right, parent.Keys[childIdx])
	t.writeInternal(childGuard, child)
	childGuard.Drop()
	rightGuard.Drop()
	t.bpm.DeletePage(parent.Children[childIdx+1])
	parent.removeChildAt(childIdx + 1)
	t.log.Debug("internal merge", zap.Int64("survivor", parent.Children[childIdx]))
	return false
}
