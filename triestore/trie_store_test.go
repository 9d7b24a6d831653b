package triestore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStore(t *testing.T) {
	t.Run("get on an empty store finds nothing", func(t *testing.T) {
		s := New()
		_, ok := Get[int](s, []byte("x"))
		assert.False(t, ok)
	})

	t.Run("put then get round-trips", func(t *testing.T) {
		s := New()
		Put(s, []byte("key"), 99)

		g, ok := Get[int](s, []byte("key"))
		assert.True(t, ok)
		assert.Equal(t, 99, g.Value())
	})

	t.Run("remove makes a key unreachable", func(t *testing.T) {
		s := New()
		Put(s, []byte("key"), "value")
		s.Remove([]byte("key"))

		_, ok := Get[string](s, []byte("key"))
		assert.False(t, ok)
	})

	t.Run("a held guard keeps seeing its snapshot's value after later writes", func(t *testing.T) {
		s := New()
		Put(s, []byte("key"), 1)

		guard, ok := Get[int](s, []byte("key"))
		assert.True(t, ok)

		Put(s, []byte("key"), 2)
		Put(s, []byte("other"), 3)

		assert.Equal(t, 1, guard.Value())

		latest, ok := Get[int](s, []byte("key"))
		assert.True(t, ok)
		assert.Equal(t, 2, latest.Value())
	})

	t.Run("concurrent writers serialize without losing updates", func(t *testing.T) {
		s := New()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				Put(s, []byte{byte(i)}, i)
			}(i)
		}
		wg.Wait()

		for i := 0; i < 50; i++ {
			v, ok := Get[int](s, []byte{byte(i)})
			assert.True(t, ok)
			assert.Equal(t, i, v.Value())
		}
	})
}
