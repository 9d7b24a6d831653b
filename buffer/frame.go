package buffer

import (
	"sync"

	"github.com/stratadb/strata/storage/disk"
)

// frame is one slot of the buffer pool's fixed-size page cache. Its latch
// guards the page bytes themselves; pinCount and dirty are mutated only
// under the owning pool's mutex, never frame.mu, since they participate in
// eviction bookkeeping that must be consistent with the pool's page table.
type frame struct {
	mu sync.RWMutex

	id       int
	data     []byte
	pageID   int64
	pinCount int32
	dirty    bool
}

func newFrame(id int) *frame {
	return &frame{
		id:     id,
		data:   make([]byte, disk.PageSize),
		pageID: disk.InvalidPageID,
	}
}

// pin increments the frame's pin count, returning the new value.
func (f *frame) pin() int32 {
	f.pinCount++
	return f.pinCount
}

// unpin decrements the frame's pin count, returning the new value. It is a
// programmer error to call unpin on a frame with a zero pin count.
func (f *frame) unpin() int32 {
	if f.pinCount == 0 {
		panic("buffer: unpin of frame with zero pin count")
	}
	f.pinCount--
	return f.pinCount
}

// reset clears the frame's identity so it can be reassigned to a different
// page. The caller must hold the pool mutex and must not be holding
// frame.mu, since a reset frame is about to be handed to a new owner.
func (f *frame) reset() {
	f.pageID = disk.InvalidPageID
	f.pinCount = 0
	f.dirty = false
	for i := range f.data {
		f.data[i] = 0
	}
}
