package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLrukNode(t *testing.T) {
	t.Run("reports k accesses once history is full", func(t *testing.T) {
		node := newLrukNode(1, 3)
		assert.False(t, node.hasKAccesses())

		node.addTimestamp(1)
		node.addTimestamp(2)
		node.addTimestamp(3)

		assert.True(t, node.hasKAccesses())
	})

	t.Run("keeps the most recent k timestamps, newest first", func(t *testing.T) {
		node := newLrukNode(1, 3)

		node.addTimestamp(1)
		node.addTimestamp(2)
		node.addTimestamp(3)
		assert.Equal(t, []int64{3, 2, 1}, node.history)

		node.addTimestamp(4)
		assert.Equal(t, []int64{4, 3, 2}, node.history)
	})

	t.Run("k-distance is measured from the kth most recent access", func(t *testing.T) {
		node := newLrukNode(1, 2)
		node.addTimestamp(1)
		node.addTimestamp(5)

		assert.Equal(t, int64(9), node.kDistance(10))
	})

	t.Run("earliest timestamp is the oldest entry still retained", func(t *testing.T) {
		node := newLrukNode(1, 2)
		node.addTimestamp(1)
		node.addTimestamp(2)
		node.addTimestamp(3)

		assert.Equal(t, int64(2), node.earliestTimestamp())
	})
}
