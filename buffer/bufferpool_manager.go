// Package buffer implements the page cache sitting between the index and
// disk: a fixed pool of frames, an LRU-K eviction policy, and scoped
// guards that tie a frame's pin lifetime to its read/write latch.
package buffer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/stratadb/strata/internal/logging"
	"github.com/stratadb/strata/storage/disk"
	"github.com/stratadb/strata/util"
)

// BufferpoolManager is the single point of contact between in-memory
// consumers (the index) and the on-disk page store. Every fetch path
// drops the pool mutex before touching the disk scheduler: the mutex
// protects the page table and free list, never the I/O itself, so one
// slow page fetch never blocks unrelated frames.
type BufferpoolManager struct {
	mu        sync.Mutex
	cond      sync.Cond
	log       *zap.Logger
	frames    []*frame
	pageTable map[int64]int
	inFlight  map[int64]bool
	replacer  *LRUKReplacer
	scheduler *disk.Scheduler
	free      []int
	nextPgID  atomic.Int64
}

// NewBufferpoolManager creates a pool of size frames backed by scheduler,
// evicting via replacer. A nil logger falls back to a no-op logger.
func NewBufferpoolManager(size int, replacer *LRUKReplacer, scheduler *disk.Scheduler, log *zap.Logger) *BufferpoolManager {
	if log == nil {
		log = logging.Nop()
	}

	frames := make([]*frame, size)
	free := make([]int, size)
	for i := 0; i < size; i++ {
		frames[i] = newFrame(i)
		free[i] = i
	}

	bpm := &BufferpoolManager{
		log:       log,
		frames:    frames,
		pageTable: make(map[int64]int),
		inFlight:  make(map[int64]bool),
		replacer:  replacer,
		scheduler: scheduler,
		free:      free,
	}
	bpm.cond.L = &bpm.mu
	return bpm
}

// NewPageID allocates a fresh page id. It does not itself bring any frame
// into the pool; call NewPageGuarded to do both.
func (b *BufferpoolManager) NewPageID() int64 {
	return b.nextPgID.Add(1)
}

// acquireFrameLocked returns a frame to bind to a new page, taking from
// the free list first and falling back to eviction. It must be called
// with b.mu held and returns with b.mu still held; the returned frame's
// previous occupant (if any) has already been removed from the page
// table and, if dirty, still needs flushing by the caller before reuse.
func (b *BufferpoolManager) acquireFrameLocked() (*frame, bool) {
	for {
		if len(b.free) > 0 {
			id := b.free[len(b.free)-1]
			b.free = b.free[:len(b.free)-1]
			return b.frames[id], true
		}

		if id, ok := b.replacer.Evict(); ok {
			f := b.frames[id]
			delete(b.pageTable, f.pageID)
			return f, true
		}

		return nil, false
	}
}

// fetchFrame is the shared core of FetchPage* and NewPageGuarded: it
// brings pageID's frame into the pool pinned, performing any necessary
// disk I/O without holding b.mu, and returns it ready for the caller to
// latch. newBlank requests a zero-filled frame for a page being created
// rather than a page being read back from disk.
//
// pageID is only published into pageTable once its frame actually holds
// pageID's bytes. While a fetch for pageID is underway the page is
// tracked in inFlight instead; a concurrent fetchFrame(pageID) waits on
// cond until that fetch publishes or fails rather than either taking the
// fast path against a not-yet-populated frame or racing to acquire a
// second frame for the same page id.
func (b *BufferpoolManager) fetchFrame(pageID int64, newBlank bool) (*frame, error) {
	b.mu.Lock()

	for {
		if id, ok := b.pageTable[pageID]; ok {
			f := b.frames[id]
			f.pin()
			b.replacer.RecordAccess(f.id)
			b.replacer.SetEvictable(f.id, false)
			b.mu.Unlock()
			return f, nil
		}

		if !b.inFlight[pageID] {
			break
		}
		b.cond.Wait()
	}

	f, ok := b.acquireFrameLocked()
	if !ok {
		b.mu.Unlock()
		return nil, util.NewBufferPoolExhaustedError(pageID)
	}

	victimPageID := f.pageID
	needsFlush := f.dirty
	flushData := append([]byte(nil), f.data...)

	b.inFlight[pageID] = true
	b.mu.Unlock()

	if needsFlush && victimPageID != disk.InvalidPageID {
		if err := b.scheduler.WriteSync(victimPageID, flushData); err != nil {
			b.log.Error("flush victim page failed", zap.Int64("pageId", victimPageID), zap.Error(err))
		}
	}

	var data []byte
	if !newBlank {
		read, err := b.scheduler.ReadSync(pageID)
		if err != nil {
			b.mu.Lock()
			delete(b.inFlight, pageID)
			b.free = append(b.free, f.id)
			b.cond.Broadcast()
			b.mu.Unlock()
			return nil, err
		}
		data = read
	}

	b.mu.Lock()
	f.reset()
	f.pageID = pageID
	if data != nil {
		copy(f.data, data)
	}
	f.pin()
	b.pageTable[pageID] = f.id
	delete(b.inFlight, pageID)
	b.replacer.RecordAccess(f.id)
	b.replacer.SetEvictable(f.id, false)
	b.cond.Broadcast()
	b.mu.Unlock()

	return f, nil
}

// NewPageGuarded allocates a fresh page id and returns it pinned behind a
// BasicPageGuard, leaving the caller to upgrade to a read or write latch.
func (b *BufferpoolManager) NewPageGuarded() (*BasicPageGuard, int64, error) {
	pageID := b.NewPageID()
	f, err := b.fetchFrame(pageID, true)
	if err != nil {
		return nil, disk.InvalidPageID, err
	}
	return &BasicPageGuard{PageGuard{frame: f, bpm: b}}, pageID, nil
}

// FetchPageBasic brings pageID into the pool pinned without taking either
// latch.
func (b *BufferpoolManager) FetchPageBasic(pageID int64) (*BasicPageGuard, error) {
	f, err := b.fetchFrame(pageID, false)
	if err != nil {
		return nil, err
	}
	return &BasicPageGuard{PageGuard{frame: f, bpm: b}}, nil
}

// FetchPageRead brings pageID into the pool pinned with its read latch held.
func (b *BufferpoolManager) FetchPageRead(pageID int64) (*ReadPageGuard, error) {
	f, err := b.fetchFrame(pageID, false)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	return &ReadPageGuard{PageGuard{frame: f, bpm: b}}, nil
}

// FetchPageWrite brings pageID into the pool pinned with its write latch held.
func (b *BufferpoolManager) FetchPageWrite(pageID int64) (*WritePageGuard, error) {
	f, err := b.fetchFrame(pageID, false)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	return &WritePageGuard{PageGuard{frame: f, bpm: b}}, nil
}

// UnpinPage releases one pin on pageID, marking it dirty if isDirty. It
// reports false if the page was not resident.
func (b *BufferpoolManager) UnpinPage(pageID int64, isDirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.pageTable[pageID]
	if !ok {
		return false
	}
	f := b.frames[id]
	if isDirty {
		f.dirty = true
	}
	if f.pinCount == 0 {
		return false
	}
	if f.unpin() == 0 {
		b.replacer.SetEvictable(f.id, true)
	}
	b.cond.Signal()
	return true
}

// FlushPage writes pageID's current frame contents to disk if resident,
// regardless of its dirty bit, and clears the dirty bit on success. It
// returns ErrPageNotFound if pageID is not currently in the pool.
func (b *BufferpoolManager) FlushPage(pageID int64) error {
	b.mu.Lock()
	id, ok := b.pageTable[pageID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: page %d not found to flush", util.ErrPageNotFound, pageID)
	}
	f := b.frames[id]
	data := append([]byte(nil), f.data...)
	b.mu.Unlock()

	if err := b.scheduler.WriteSync(pageID, data); err != nil {
		return err
	}

	b.mu.Lock()
	f.dirty = false
	b.mu.Unlock()
	return nil
}

// FlushAll flushes every resident page.
func (b *BufferpoolManager) FlushAll() error {
	b.mu.Lock()
	pageIDs := make([]int64, 0, len(b.pageTable))
	for pageID := range b.pageTable {
		pageIDs = append(pageIDs, pageID)
	}
	b.mu.Unlock()

	for _, pageID := range pageIDs {
		if err := b.FlushPage(pageID); err != nil && !errors.Is(err, util.ErrPageNotFound) {
			return err
		}
	}
	return nil
}

// DeletePage removes pageID from the pool and deallocates its on-disk
// slot. It reports false (and does nothing) if the page is still pinned.
// A dirty page is flushed to disk before its frame is discarded.
func (b *BufferpoolManager) DeletePage(pageID int64) bool {
	b.mu.Lock()

	id, ok := b.pageTable[pageID]
	if !ok {
		b.mu.Unlock()
		return true
	}
	f := b.frames[id]
	if f.pinCount > 0 {
		b.mu.Unlock()
		return false
	}

	needsFlush := f.dirty
	data := append([]byte(nil), f.data...)
	b.mu.Unlock()

	if needsFlush {
		if err := b.scheduler.WriteSync(pageID, data); err != nil {
			b.log.Error("flush dirty page before delete failed", zap.Int64("pageId", pageID), zap.Error(err))
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// The page may have been re-fetched (and even re-pinned) while the
	// mutex was released for the flush; only finish the delete if it is
	// still the same, still-unpinned resident it was above.
	id, ok = b.pageTable[pageID]
	if !ok {
		return true
	}
	f = b.frames[id]
	if f.pinCount > 0 {
		return false
	}

	delete(b.pageTable, pageID)
	b.replacer.Remove(f.id)
	f.reset()
	b.free = append(b.free, f.id)
	b.scheduler.Deallocate(pageID)
	b.cond.Signal()
	return true
}
