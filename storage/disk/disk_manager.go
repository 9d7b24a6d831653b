package disk

import (
	"fmt"
	"sync"
)

// Manager is the block device the buffer pool reads through and writes
// back to. It owns a single memory-mapped file and maps page ids onto
// byte offsets within it; offsets of deleted pages are recycled.
//
// Manager does not decide which page ids exist - the buffer pool hands out
// page ids from its own counter and only asks the manager to persist or
// retire them. Deallocate is a best-effort hook: forgetting to call it
// merely leaks an offset, it never corrupts a live page.
type Manager struct {
	mu        sync.Mutex
	mapped    *mappedFile
	offsets   map[int64]int64
	freeSlots []int64
	nextSlot  int64
}

// NewManager opens (or creates) the page file at path.
func NewManager(path string) (*Manager, error) {
	mapped, err := openMappedFile(path, DefaultPageCapacity*PageSize)
	if err != nil {
		return nil, err
	}

	return &Manager{
		mapped:  mapped,
		offsets: make(map[int64]int64),
	}, nil
}

// Close unmaps and closes the backing file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mapped.Close()
}

// WritePage persists data (exactly PageSize bytes) for pageID.
func (m *Manager) WritePage(pageID int64, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("write page %d: expected %d bytes, got %d", pageID, PageSize, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	offset, err := m.offsetForLocked(pageID)
	if err != nil {
		return err
	}

	dst, err := m.mapped.Slice(offset, PageSize)
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// ReadPage fills out (exactly PageSize bytes) with the persisted contents
// of pageID. A page that was never written reads back as zeroes.
func (m *Manager) ReadPage(pageID int64, out []byte) error {
	if len(out) != PageSize {
		return fmt.Errorf("read page %d: expected buffer of %d bytes, got %d", pageID, PageSize, len(out))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	offset, ok := m.offsets[pageID]
	if !ok {
		for i := range out {
			out[i] = 0
		}
		return nil
	}

	src, err := m.mapped.Slice(offset, PageSize)
	if err != nil {
		return err
	}
	copy(out, src)
	return nil
}

// Deallocate retires pageID's backing slot for reuse. It is a no-op if the
// page was never written, matching the external contract that this hook
// may be a no-op.
func (m *Manager) Deallocate(pageID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if offset, ok := m.offsets[pageID]; ok {
		delete(m.offsets, pageID)
		m.freeSlots = append(m.freeSlots, offset)
	}
}

func (m *Manager) offsetForLocked(pageID int64) (int64, error) {
	if offset, ok := m.offsets[pageID]; ok {
		return offset, nil
	}

	offset := m.allocateSlotLocked()
	if err := m.mapped.Grow(offset + PageSize); err != nil {
		return 0, err
	}
	m.offsets[pageID] = offset
	return offset, nil
}

func (m *Manager) allocateSlotLocked() int64 {
	if n := len(m.freeSlots); n > 0 {
		offset := m.freeSlots[n-1]
		m.freeSlots = m.freeSlots[:n-1]
		return offset
	}

	offset := m.nextSlot * PageSize
	m.nextSlot++
	return offset
}
