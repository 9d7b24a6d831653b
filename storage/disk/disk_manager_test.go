package disk

import (
	"bytes"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mgr, err := NewManager(path.Join(t.TempDir(), "test.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func TestManagerWriteRead(t *testing.T) {
	mgr := newTestManager(t)

	data := make([]byte, PageSize)
	copy(data, []byte("hello, world!"))

	assert.NoError(t, mgr.WritePage(3, data))

	out := make([]byte, PageSize)
	assert.NoError(t, mgr.ReadPage(3, out))
	assert.Equal(t, data, out)
}

func TestManagerUnwrittenPageReadsAsZero(t *testing.T) {
	mgr := newTestManager(t)

	out := make([]byte, PageSize)
	assert.NoError(t, mgr.ReadPage(42, out))
	assert.True(t, bytes.Equal(out, make([]byte, PageSize)))
}

func TestManagerGrowsBeyondInitialCapacity(t *testing.T) {
	mgr := newTestManager(t)

	for i := int64(0); i < DefaultPageCapacity+5; i++ {
		data := make([]byte, PageSize)
		data[0] = byte(i)
		assert.NoError(t, mgr.WritePage(i, data))
	}

	for i := int64(0); i < DefaultPageCapacity+5; i++ {
		out := make([]byte, PageSize)
		assert.NoError(t, mgr.ReadPage(i, out))
		assert.Equal(t, byte(i), out[0])
	}
}

func TestManagerDeallocateRecyclesSlot(t *testing.T) {
	mgr := newTestManager(t)

	data := make([]byte, PageSize)
	copy(data, []byte("first"))
	assert.NoError(t, mgr.WritePage(1, data))
	mgr.Deallocate(1)

	other := make([]byte, PageSize)
	copy(other, []byte("second"))
	assert.NoError(t, mgr.WritePage(2, other))

	out := make([]byte, PageSize)
	assert.NoError(t, mgr.ReadPage(2, out))
	assert.Equal(t, other, out)

	// page 1's slot was recycled; it is no longer tracked as resident.
	reread := make([]byte, PageSize)
	assert.NoError(t, mgr.ReadPage(1, reread))
	assert.True(t, bytes.Equal(reread, make([]byte, PageSize)))
}
