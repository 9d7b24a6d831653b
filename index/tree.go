// Package index implements a disk-resident B+Tree layered on the buffer
// pool and page guards. Descent uses latch crabbing: a write path
// releases every ancestor latch, up to and including the header, as soon
// as it reaches a node that cannot possibly need to split or merge as a
// result of the operation underway.
package index

import (
	"cmp"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/stratadb/strata/buffer"
	"github.com/stratadb/strata/internal/logging"
	"github.com/stratadb/strata/storage/disk"
)

// Tree is an ordered map from K to V backed by pages fetched through bpm.
// Keys must be unique; duplicate Insert calls fail rather than overwrite.
type Tree[K cmp.Ordered, V any] struct {
	bpm             *buffer.BufferpoolManager
	log             *zap.Logger
	leafMaxSize     int32
	internalMaxSize int32
	leafMinSize     int32
	internalMinSize int32
}

// NewTree opens a B+Tree over bpm, initializing its header page if this is
// the first time this buffer pool's backing file has held a tree. A nil
// logger falls back to a no-op logger. leafMaxSize and internalMaxSize
// must each be at least 3.
func NewTree[K cmp.Ordered, V any](bpm *buffer.BufferpoolManager, leafMaxSize, internalMaxSize int32, log *zap.Logger) (*Tree[K, V], error) {
	if leafMaxSize < 3 || internalMaxSize < 3 {
		return nil, fmt.Errorf("index: leafMaxSize and internalMaxSize must be >= 3, got %d and %d", leafMaxSize, internalMaxSize)
	}
	if log == nil {
		log = logging.Nop()
	}

	t := &Tree[K, V]{
		bpm:             bpm,
		log:             log,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		leafMinSize:     (leafMaxSize + 1) / 2,
		internalMinSize: (internalMaxSize + 1) / 2,
	}

	header, err := bpm.FetchPageWrite(HeaderPageID)
	if err != nil {
		return nil, err
	}
	defer header.Drop()

	if pageKind(header.Data()) == kindInvalid {
		t.writeHeader(header, headerPage{RootPageID: disk.InvalidPageID})
	}

	return t, nil
}

// writeFrame is one ancestor write guard retained during an insert or
// delete descent, paired with the page id it pins so the caller can find
// its own slot in the parent once the descent reaches back up to it.
type writeFrame struct {
	id    int64
	guard *buffer.WritePageGuard
}

func (t *Tree[K, V]) dropAll(frames []writeFrame) {
	for _, f := range frames {
		f.guard.Drop()
	}
}

func (t *Tree[K, V]) writeHeader(g *buffer.WritePageGuard, h headerPage) {
	encoded, err := encodePage(kindHeader, h)
	if err != nil {
		panic(fmt.Sprintf("index: %v", err))
	}
	copy(g.DataMut(), encoded)
}

func (t *Tree[K, V]) writeLeaf(g *buffer.WritePageGuard, p *leafPage[K, V]) {
	encoded, err := encodePage(kindLeaf, p)
	if err != nil {
		panic(fmt.Sprintf("index: %v", err))
	}
	copy(g.DataMut(), encoded)
}

func (t *Tree[K, V]) writeInternal(g *buffer.WritePageGuard, p *internalPage[K]) {
	encoded, err := encodePage(kindInternal, p)
	if err != nil {
		panic(fmt.Sprintf("index: %v", err))
	}
	copy(g.DataMut(), encoded)
}

func mustDecodeHeader(data []byte) headerPage {
	h, err := decodeHeaderPage(data)
	if err != nil {
		panic(fmt.Sprintf("index: %v", err))
	}
	return h
}

func mustDecodeInternal[K cmp.Ordered](data []byte) *internalPage[K] {
	p, err := decodeInternalPage[K](data)
	if err != nil {
		panic(fmt.Sprintf("index: %v", err))
	}
	return p
}

func mustDecodeLeaf[K cmp.Ordered, V any](data []byte) *leafPage[K, V] {
	p, err := decodeLeafPage[K, V](data)
	if err != nil {
		panic(fmt.Sprintf("index: %v", err))
	}
	return p
}

// mustFetchRead fetches pageID's read guard, treating failure (I/O error
// or pool exhaustion) as fatal per the core's error handling design.
func (t *Tree[K, V]) mustFetchRead(pageID int64) *buffer.ReadPageGuard {
	g, err := t.bpm.FetchPageRead(pageID)
	if err != nil {
		panic(fmt.Sprintf("index: fetch page %d: %v", pageID, err))
	}
	return g
}

func (t *Tree[K, V]) mustFetchWrite(pageID int64) *buffer.WritePageGuard {
	g, err := t.bpm.FetchPageWrite(pageID)
	if err != nil {
		panic(fmt.Sprintf("index: fetch page %d: %v", pageID, err))
	}
	return g
}

func (t *Tree[K, V]) mustNewPage() (*buffer.WritePageGuard, int64) {
	basic, pageID, err := t.bpm.NewPageGuarded()
	if err != nil {
		panic(fmt.Sprintf("index: allocate page: %v", err))
	}
	return basic.UpgradeWrite(), pageID
}

// pageSafeForInsert reports whether the page at data, whatever shape it
// is, has room to accept one more entry without splitting.
func pageSafeForInsert[K cmp.Ordered, V any](data []byte) bool {
	switch pageKind(data) {
	case kindLeaf:
		return mustDecodeLeaf[K, V](data).isSafe()
	case kindInternal:
		return mustDecodeInternal[K](data).isSafe()
	default:
		panic("index: unexpected page kind during insert descent")
	}
}

// IsEmpty reports whether the tree currently holds no root page.
func (t *Tree[K, V]) IsEmpty() bool {
	header := t.mustFetchRead(HeaderPageID)
	defer header.Drop()
	return mustDecodeHeader(header.Data()).RootPageID == disk.InvalidPageID
}

// GetRootPageID returns the tree's current root page id, or
// disk.InvalidPageID if the tree is empty.
func (t *Tree[K, V]) GetRootPageID() int64 {
	header := t.mustFetchRead(HeaderPageID)
	defer header.Drop()
	return mustDecodeHeader(header.Data()).RootPageID
}

// GetValue looks up key, descending with read latches that are dropped as
// soon as the next level down is pinned.
func (t *Tree[K, V]) GetValue(key K) (V, bool) {
	var zero V

	header := t.mustFetchRead(HeaderPageID)
	rootID := mustDecodeHeader(header.Data()).RootPageID
	if rootID == disk.InvalidPageID {
		header.Drop()
		return zero, false
	}

	cur := t.mustFetchRead(rootID)
	header.Drop()

	for {
		switch pageKind(cur.Data()) {
		case kindLeaf:
			leaf := mustDecodeLeaf[K, V](cur.Data())
			i, found := leaf.find(key)
			cur.Drop()
			if !found {
				return zero, false
			}
			return leaf.Values[i], true
		case kindInternal:
			internal := mustDecodeInternal[K](cur.Data())
			childID := internal.Children[internal.childIndexFor(key)]
			next := t.mustFetchRead(childID)
			cur.Drop()
			cur = next
		default:
			panic("index: unexpected page kind during read descent")
		}
	}
}

// Insert adds (key, value), returning false without modifying the tree if
// key is already present.
func (t *Tree[K, V]) Insert(key K, value V) bool {
	header := t.mustFetchWrite(HeaderPageID)
	h := mustDecodeHeader(header.Data())

	if h.RootPageID == disk.InvalidPageID {
		leafGuard, leafID := t.mustNewPage()
		leaf := newLeafPage[K, V](t.leafMaxSize)
		leaf.insertAt(0, key, value)
		t.writeLeaf(leafGuard, leaf)
		leafGuard.Drop()

		h.RootPageID = leafID
		t.writeHeader(header, h)
		header.Drop()
		return true
	}

	var ancestors []writeFrame
	rootGuard := t.mustFetchWrite(h.RootPageID)
	if pageSafeForInsert[K, V](rootGuard.Data()) {
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

		if pageSafeForInsert[K, V](childGuard.Data()) {
			t.dropAll(ancestors)
			ancestors = ancestors[:0]
			cur.Drop()
		} else {
			ancestors = append(ancestors, writeFrame{curID, cur})
		}

		curID, cur = childID, childGuard
	}

	leaf := mustDecodeLeaf[K, V](cur.Data())
	if _, found := leaf.find(key); found {
		cur.Drop()
		t.dropAll(ancestors)
		return false
	}

	i, _ := leaf.find(key)
	leaf.insertAt(i, key, value)

	if leaf.size() <= int(t.leafMaxSize) {
		t.writeLeaf(cur, leaf)
		cur.Drop()
		t.dropAll(ancestors)
		return true
	}

	leftID := curID
	rightGuard, rightID := t.mustNewPage()
	sibling, separator := leaf.split(rightID)
	t.writeLeaf(cur, leaf)
	t.writeLeaf(rightGuard, sibling)
	cur.Drop()
	rightGuard.Drop()
	t.log.Debug("leaf split", zap.Int64("left", leftID), zap.Int64("right", rightID))

	t.propagateSplit(ancestors, leftID, separator, rightID)
	return true
}

// propagateSplit walks ancestors from nearest parent to header, inserting
// (separator, rightID) for the child that used to be leftID. It stops as
// soon as an ancestor absorbs the new entry without itself overflowing,
// and creates a new root if the split reaches the header.
func (t *Tree[K, V]) propagateSplit(ancestors []writeFrame, leftID int64, separator K, rightID int64) {
	for len(ancestors) > 0 {
		top := ancestors[len(ancestors)-1]
		ancestors = ancestors[:len(ancestors)-1]

		if top.id == HeaderPageID {
			newRootGuard, newRootID := t.mustNewPage()
			newRoot := newInternalPage[K](t.internalMaxSize)
			newRoot.Children = append(newRoot.Children, leftID)
			newRoot.insertChildAfter(0, separator, rightID)
			t.writeInternal(newRootGuard, newRoot)
			newRootGuard.Drop()

			h := mustDecodeHeader(top.guard.Data())
			h.RootPageID = newRootID
			t.writeHeader(top.guard, h)
			top.guard.Drop()
			t.log.Debug("new root", zap.Int64("root", newRootID))
			return
		}

		internal := mustDecodeInternal[K](top.guard.Data())
		j := slices.Index(internal.Children, leftID)
		internal.insertChildAfter(j, separator, rightID)

		if internal.size() <= int(t.internalMaxSize) {
			t.writeInternal(top.guard, internal)
			top.guard.Drop()
			t.dropAll(ancestors)
			return
		}

		rightGuard, newRightID := t.mustNewPage()
		newSibling, newSeparator := internal.split()
		t.writeInternal(top.guard, internal)
		t.writeInternal(rightGuard, newSibling)
		top.guard.Drop()
		rightGuard.Drop()
		t.log.Debug("internal split", zap.Int64("left", top.id), zap.Int64("right", newRightID))

		leftID, separator, rightID = top.id, newSeparator, newRightID
	}

	panic("index: split propagation exhausted ancestors without reaching the header")
}
