package buffer

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/internal/logging"
	"github.com/stratadb/strata/storage/disk"
	"github.com/stratadb/strata/util"
)

func newTestPool(t *testing.T, size, k int) (*BufferpoolManager, *disk.Manager) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "test.db")
	mgr, err := disk.NewManager(dbFile)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	scheduler := disk.NewScheduler(mgr)
	replacer := NewLRUKReplacer(size, k)
	return NewBufferpoolManager(size, replacer, scheduler, logging.Nop()), mgr
}

func pageData(content string) []byte {
	data := make([]byte, disk.PageSize)
	copy(data, content)
	return data
}

func TestBufferpoolManager(t *testing.T) {
	t.Run("reads a page written directly to disk", func(t *testing.T) {
		bpm, mgr := newTestPool(t, 5, 2)
		require.NoError(t, mgr.WritePage(1, pageData("hello, world!")))

		guard, err := bpm.FetchPageRead(1)
		require.NoError(t, err)
		defer guard.Drop()

		assert.Equal(t, pageData("hello, world!"), guard.Data())
	})

	t.Run("write then read round-trips through the pool", func(t *testing.T) {
		bpm, _ := newTestPool(t, 5, 2)

		wg, err := bpm.FetchPageWrite(1)
		require.NoError(t, err)
		copy(wg.DataMut(), []byte("in memory"))
		wg.Drop()

		rg, err := bpm.FetchPageRead(1)
		require.NoError(t, err)
		defer rg.Drop()
		assert.Equal(t, "in memory", string(bytes.Trim(rg.Data(), "\x00")))
	})

	t.Run("evicts a page with infinite K-distance before one with finite K-distance", func(t *testing.T) {
		bpm, mgr := newTestPool(t, 2, 2)
		for i, d := range []string{"1", "2", "3"} {
			require.NoError(t, mgr.WritePage(int64(i+1), pageData(d)))
		}

		for i := 0; i < 5; i++ {
			g, err := bpm.FetchPageRead(2)
			require.NoError(t, err)
			g.Drop()
		}

		g, err := bpm.FetchPageRead(1)
		require.NoError(t, err)
		g.Drop()

		// With k=2, page 2 (five accesses) has a finite K-distance while
		// page 1 (one access) has an infinite one, so page 1 is the one
		// evicted to make room for page 3 even though it was used more
		// recently.
		g, err = bpm.FetchPageRead(3)
		require.NoError(t, err)
		g.Drop()

		bpm.mu.Lock()
		_, stillResident := bpm.pageTable[1]
		bpm.mu.Unlock()
		assert.False(t, stillResident)
	})

	t.Run("dirty evicted pages are flushed to disk", func(t *testing.T) {
		bpm, mgr := newTestPool(t, 2, 2)

		for i, d := range []string{"1", "2", "3"} {
			g, err := bpm.FetchPageWrite(int64(i + 1))
			require.NoError(t, err)
			copy(g.DataMut(), []byte(d))
			g.Drop()
		}

		buf := make([]byte, disk.PageSize)
		require.NoError(t, mgr.ReadPage(1, buf))
		assert.Equal(t, "1", string(bytes.Trim(buf, "\x00")))
	})

	t.Run("pinned pages cannot be evicted", func(t *testing.T) {
		bpm, _ := newTestPool(t, 1, 1)

		pinned, err := bpm.FetchPageRead(1)
		require.NoError(t, err)
		defer pinned.Drop()

		_, err = bpm.FetchPageRead(2)
		assert.Error(t, err)
	})

	t.Run("FlushPage persists without waiting for eviction", func(t *testing.T) {
		bpm, mgr := newTestPool(t, 2, 2)

		g, err := bpm.FetchPageWrite(1)
		require.NoError(t, err)
		copy(g.DataMut(), []byte("flush me"))
		g.Drop()

		require.NoError(t, bpm.FlushPage(1))

		buf := make([]byte, disk.PageSize)
		require.NoError(t, mgr.ReadPage(1, buf))
		assert.Equal(t, "flush me", string(bytes.Trim(buf, "\x00")))
	})

	t.Run("FlushPage reports an unknown page id", func(t *testing.T) {
		bpm, _ := newTestPool(t, 2, 2)

		err := bpm.FlushPage(99)
		require.Error(t, err)
		assert.ErrorIs(t, err, util.ErrPageNotFound)
	})

	t.Run("DeletePage refuses while pinned and succeeds once unpinned", func(t *testing.T) {
		bpm, _ := newTestPool(t, 2, 2)

		g, err := bpm.FetchPageRead(1)
		require.NoError(t, err)
		assert.False(t, bpm.DeletePage(1))

		g.Drop()
		assert.True(t, bpm.DeletePage(1))

		bpm.mu.Lock()
		_, resident := bpm.pageTable[1]
		bpm.mu.Unlock()
		assert.False(t, resident)
	})

	t.Run("DeletePage of a dirty page deallocates its on-disk slot", func(t *testing.T) {
		bpm, mgr := newTestPool(t, 2, 2)

		g, err := bpm.FetchPageWrite(1)
		require.NoError(t, err)
		copy(g.DataMut(), []byte("last write before delete"))
		g.Drop()

		assert.True(t, bpm.DeletePage(1))

		// DeletePage writes the dirty frame out and then deallocates the
		// page id, and the disk manager reads a deallocated page back as
		// zeroes.
		buf := make([]byte, disk.PageSize)
		require.NoError(t, mgr.ReadPage(1, buf))
		assert.Equal(t, make([]byte, disk.PageSize), buf)
	})

	t.Run("NewPageGuarded hands back a fresh zero-filled page", func(t *testing.T) {
		bpm, _ := newTestPool(t, 2, 2)

		basic, pageID, err := bpm.NewPageGuarded()
		require.NoError(t, err)
		wg := basic.UpgradeWrite()
		assert.Equal(t, make([]byte, disk.PageSize), wg.Data())
		copy(wg.DataMut(), []byte("brand new"))
		wg.Drop()

		g, err := bpm.FetchPageRead(pageID)
		require.NoError(t, err)
		defer g.Drop()
		assert.Equal(t, "brand new", string(bytes.Trim(g.Data(), "\x00")))
	})
}
