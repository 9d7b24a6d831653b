package buffer

import (
	"fmt"
	"math"
	"sync"
)

// LRUKReplacer selects a victim frame using K-distance history: the
// evictable frame whose k-th most recent access is furthest in the past
// loses, with frames that haven't been accessed k times yet treated as
// having infinite distance and broken by plain oldest-access-wins LRU.
type LRUKReplacer struct {
	mu            sync.Mutex
	k             int
	capacity      int
	currTimestamp int64
	currSize      int
	nodeStore     map[int]*lrukNode
}

// NewLRUKReplacer creates a replacer tracking up to numFrames frame ids,
// each with a k-deep access history.
func NewLRUKReplacer(numFrames, k int) *LRUKReplacer {
	return &LRUKReplacer{
		k:         k,
		capacity:  numFrames,
		nodeStore: make(map[int]*lrukNode),
	}
}

// RecordAccess registers an access to frameID at the current (freshly
// incremented) timestamp, beginning tracking for frames seen for the
// first time or since their last Remove.
func (lru *LRUKReplacer) RecordAccess(frameID int) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if frameID < 0 || frameID >= lru.capacity {
		panic(fmt.Sprintf("lrukReplacer: frame id %d out of range [0,%d)", frameID, lru.capacity))
	}

	lru.currTimestamp++
	node, ok := lru.nodeStore[frameID]
	if !ok {
		node = newLrukNode(frameID, lru.k)
		lru.nodeStore[frameID] = node
	}
	node.addTimestamp(lru.currTimestamp)
}

// SetEvictable toggles whether frameID may be chosen by Evict, maintaining
// Size() as the count of evictable tracked frames. It is a no-op for an
// untracked frame.
func (lru *LRUKReplacer) SetEvictable(frameID int, evictable bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	node, ok := lru.nodeStore[frameID]
	if !ok {
		return
	}

	switch {
	case node.isEvictable && !evictable:
		lru.currSize--
	case !node.isEvictable && evictable:
		lru.currSize++
	}
	node.isEvictable = evictable
}

// Evict chooses the evictable frame with the largest K-distance, ties
// broken by the oldest earliest-recorded access, and stops tracking it.
// It reports false if no evictable frame exists.
func (lru *LRUKReplacer) Evict() (int, bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	best := InvalidFrameID
	var bestDist int64 = -1
	var bestEarliest int64 = math.MaxInt64

	for frameID, node := range lru.nodeStore {
		if !node.isEvictable {
			continue
		}

		dist := int64(math.MaxInt64)
		if node.hasKAccesses() {
			dist = node.kDistance(lru.currTimestamp)
		}
		earliest := node.earliestTimestamp()

		if dist > bestDist || (dist == bestDist && earliest < bestEarliest) {
			best, bestDist, bestEarliest = frameID, dist, earliest
		}
	}

	if best == InvalidFrameID {
		return InvalidFrameID, false
	}

	delete(lru.nodeStore, best)
	lru.currSize--
	return best, true
}

// Remove stops tracking frameID. frameID must currently be evictable;
// calling Remove on a pinned (non-evictable) frame is a programmer error.
func (lru *LRUKReplacer) Remove(frameID int) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	node, ok := lru.nodeStore[frameID]
	if !ok {
		return
	}
	if !node.isEvictable {
		panic(fmt.Sprintf("lrukReplacer: cannot remove pinned frame %d", frameID))
	}

	delete(lru.nodeStore, frameID)
	lru.currSize--
}

// Size returns the number of currently evictable tracked frames.
func (lru *LRUKReplacer) Size() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	return lru.currSize
}
