package disk

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mappedFile is a growable memory-mapped region backing the page file. The
// disk manager addresses it by byte offset; it never looks at file
// descriptors directly once the mapping exists.
type mappedFile struct {
	file *os.File
	data []byte
	size int64
}

func openMappedFile(path string, initialSize int64) (*mappedFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open db file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat db file: %w", err)
	}

	size := info.Size()
	if size < initialSize {
		if err := file.Truncate(initialSize); err != nil {
			file.Close()
			return nil, fmt.Errorf("truncate db file: %w", err)
		}
		size = initialSize
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap db file: %w", err)
	}

	return &mappedFile{file: file, data: data, size: size}, nil
}

func (m *mappedFile) Close() error {
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			return fmt.Errorf("munmap: %w", err)
		}
		m.data = nil
	}
	if m.file != nil {
		if err := m.file.Close(); err != nil {
			return fmt.Errorf("close db file: %w", err)
		}
		m.file = nil
	}
	return nil
}

// Sync flushes mapped pages to the underlying file. The buffer pool never
// needs this directly, but it gives callers outside the pool (tests,
// orderly shutdown) a way to guarantee bytes have reached disk.
func (m *mappedFile) Sync() error {
	if m.data == nil {
		return fmt.Errorf("mapped file is closed")
	}
	return unix.Msync(m.data, unix.MS_SYNC)
}

// Slice returns the mapped bytes for [offset, offset+length). The returned
// slice aliases the mapping; writes through it land directly in the file.
func (m *mappedFile) Slice(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > m.size {
		return nil, fmt.Errorf("slice [%d:%d] out of bounds for mapping of size %d", offset, offset+length, m.size)
	}
	return m.data[offset : offset+length], nil
}

// Grow doubles the mapping until it covers at least minSize.
func (m *mappedFile) Grow(minSize int64) error {
	if minSize <= m.size {
		return nil
	}

	newSize := m.size
	if newSize == 0 {
		newSize = PageSize
	}
	for newSize < minSize {
		newSize *= 2
	}

	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("munmap during grow: %w", err)
	}
	if err := m.file.Truncate(newSize); err != nil {
		return fmt.Errorf("truncate during grow: %w", err)
	}
	data, err := unix.Mmap(int(m.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("remap during grow: %w", err)
	}

	m.data = data
	m.size = newSize
	return nil
}
