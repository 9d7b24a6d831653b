package trie

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPutGet(t *testing.T) {
	t.Run("empty key stores a value at the root", func(t *testing.T) {
		var tr Trie
		tr = Put(tr, []byte(""), 42)

		v, ok := Get[int](tr, []byte(""))
		assert.True(t, ok)
		assert.Equal(t, 42, v)
	})

	t.Run("stores and retrieves values at distinct keys", func(t *testing.T) {
		var tr Trie
		tr = Put(tr, []byte("cat"), "meow")
		tr = Put(tr, []byte("car"), "vroom")
		tr = Put(tr, []byte("dog"), "woof")

		v, ok := Get[string](tr, []byte("cat"))
		assert.True(t, ok)
		assert.Equal(t, "meow", v)

		v, ok = Get[string](tr, []byte("car"))
		assert.True(t, ok)
		assert.Equal(t, "vroom", v)

		v, ok = Get[string](tr, []byte("dog"))
		assert.True(t, ok)
		assert.Equal(t, "woof", v)
	})

	t.Run("missing key is not found", func(t *testing.T) {
		var tr Trie
		tr = Put(tr, []byte("cat"), 1)

		_, ok := Get[int](tr, []byte("ca"))
		assert.False(t, ok)

		_, ok = Get[int](tr, []byte("catalog"))
		assert.False(t, ok)
	})

	t.Run("wrong value type is treated as not found", func(t *testing.T) {
		var tr Trie
		tr = Put(tr, []byte("x"), 7)

		_, ok := Get[string](tr, []byte("x"))
		assert.False(t, ok)
	})

	t.Run("a value node can also have children", func(t *testing.T) {
		var tr Trie
		tr = Put(tr, []byte("car"), 1)
		tr = Put(tr, []byte("ca"), 2)

		v, ok := Get[int](tr, []byte("ca"))
		assert.True(t, ok)
		assert.Equal(t, 2, v)

		v, ok = Get[int](tr, []byte("car"))
		assert.True(t, ok)
		assert.Equal(t, 1, v)
	})

	t.Run("put preserves children of the node it replaces", func(t *testing.T) {
		var tr Trie
		tr = Put(tr, []byte("car"), 1)
		tr = Put(tr, []byte("ca"), 2)
		tr = Put(tr, []byte("ca"), 3)

		v, ok := Get[int](tr, []byte("ca"))
		assert.True(t, ok)
		assert.Equal(t, 3, v)

		v, ok = Get[int](tr, []byte("car"))
		assert.True(t, ok)
		assert.Equal(t, 1, v)
	})

	t.Run("put does not mutate the previous version", func(t *testing.T) {
		var tr1 Trie
		tr1 = Put(tr1, []byte("a"), 1)
		tr2 := Put(tr1, []byte("a"), 2)

		v, _ := Get[int](tr1, []byte("a"))
		assert.Equal(t, 1, v)

		v, _ = Get[int](tr2, []byte("a"))
		assert.Equal(t, 2, v)
	})
}

func TestRemove(t *testing.T) {
	t.Run("removing from an empty trie is a no-op", func(t *testing.T) {
		var tr Trie
		out := Remove(tr, []byte("a"))
		_, ok := Get[int](out, []byte("a"))
		assert.False(t, ok)
	})

	t.Run("removing an absent key returns the trie unchanged", func(t *testing.T) {
		var tr Trie
		tr = Put(tr, []byte("a"), 1)
		out := Remove(tr, []byte("b"))

		v, ok := Get[int](out, []byte("a"))
		assert.True(t, ok)
		assert.Equal(t, 1, v)
	})

	t.Run("removing the only key empties the trie", func(t *testing.T) {
		var tr Trie
		tr = Put(tr, []byte("a"), 1)
		out := Remove(tr, []byte("a"))

		_, ok := Get[int](out, []byte("a"))
		assert.False(t, ok)
	})

	t.Run("removing a leaf elides its dangling ancestor chain", func(t *testing.T) {
		var tr Trie
		tr = Put(tr, []byte("abc"), 1)
		out := Remove(tr, []byte("abc"))

		_, ok := Get[int](out, []byte("abc"))
		assert.False(t, ok)
		_, ok = Get[int](out, []byte("ab"))
		assert.False(t, ok)
	})

	t.Run("removing a value node with children keeps the children reachable", func(t *testing.T) {
		var tr Trie
		tr = Put(tr, []byte("car"), 1)
		tr = Put(tr, []byte("ca"), 2)

		out := Remove(tr, []byte("ca"))

		_, ok := Get[int](out, []byte("ca"))
		assert.False(t, ok)

		v, ok := Get[int](out, []byte("car"))
		assert.True(t, ok)
		assert.Equal(t, 1, v)
	})

	t.Run("elision stops at an ancestor with other children", func(t *testing.T) {
		var tr Trie
		tr = Put(tr, []byte("cat"), 1)
		tr = Put(tr, []byte("car"), 2)

		out := Remove(tr, []byte("cat"))

		_, ok := Get[int](out, []byte("cat"))
		assert.False(t, ok)

		v, ok := Get[int](out, []byte("car"))
		assert.True(t, ok)
		assert.Equal(t, 2, v)
	})

	t.Run("removing the empty key strips the root value but keeps children", func(t *testing.T) {
		var tr Trie
		tr = Put(tr, []byte(""), 1)
		tr = Put(tr, []byte("a"), 2)

		out := Remove(tr, []byte(""))

		_, ok := Get[int](out, []byte(""))
		assert.False(t, ok)
		v, ok := Get[int](out, []byte("a"))
		assert.True(t, ok)
		assert.Equal(t, 2, v)
	})

	t.Run("remove does not mutate the previous version", func(t *testing.T) {
		var tr Trie
		tr = Put(tr, []byte("a"), 1)
		out := Remove(tr, []byte("a"))

		v, ok := Get[int](tr, []byte("a"))
		assert.True(t, ok)
		assert.Equal(t, 1, v)

		_, ok = Get[int](out, []byte("a"))
		assert.False(t, ok)
	})
}
