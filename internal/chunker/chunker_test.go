package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ClampsValues(t *testing.T) {
	c := New(0, -3)
	assert.Equal(t, 1, c.parallelism)
	assert.Equal(t, 1, c.refinement)
	assert.Equal(t, 1, c.Parallelism())
}

func TestSize(t *testing.T) {
	tests := []struct {
		name        string
		parallelism int
		refinement  int
		n           int
		expected    int
	}{
		{"no items", 4, 1, 0, 1},
		{"fewer items than workers", 8, 1, 3, 1},
		{"even split", 4, 1, 100, 25},
		{"truncating division", 4, 1, 10, 2},
		{"refined", 4, 10, 1000, 25},
		{"refinement floors at one", 4, 10, 20, 1},
		{"single worker", 1, 1, 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.parallelism, tt.refinement)
			assert.Equal(t, tt.expected, c.Size(tt.n))
		})
	}
}

func TestCount(t *testing.T) {
	c := New(4, 1)
	assert.Equal(t, 0, c.Count(0))
	assert.Equal(t, 3, c.Count(3))
	// size 2 for 10 items -> 5 chunks
	assert.Equal(t, 5, c.Count(10))
	assert.Equal(t, 4, c.Count(100))
}

func TestSplit(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	chunks := Split(items, 3)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{1, 2, 3}, chunks[0])
	assert.Equal(t, []int{4, 5, 6}, chunks[1])
	assert.Equal(t, []int{7}, chunks[2])
}

func TestSplit_CoversEveryItemOnce(t *testing.T) {
	for n := 0; n < 50; n++ {
		items := make([]int, n)
		for i := range items {
			items[i] = i
		}

		for _, p := range []int{1, 3, 8} {
			c := New(p, DefaultRefinement)
			var got []int
			for _, chunk := range SplitItems(c, items) {
				assert.NotEmpty(t, chunk)
				got = append(got, chunk...)
			}
			assert.Equal(t, n, len(got), "n=%d p=%d", n, p)
			for i := range got {
				assert.Equal(t, i, got[i])
			}
			assert.Equal(t, c.Count(n), len(SplitItems(c, items)))
		}
	}
}

func TestSplit_ChunksDoNotShareCapacity(t *testing.T) {
	items := []int{1, 2, 3, 4}
	chunks := Split(items, 2)

	// Appending to one chunk must not overwrite the next one
	_ = append(chunks[0], 99)
	assert.Equal(t, []int{3, 4}, chunks[1])
}

func TestSplit_ZeroSize(t *testing.T) {
	chunks := Split([]string{"a", "b"}, 0)
	assert.Len(t, chunks, 2)
}
