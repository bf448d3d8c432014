package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkKeepsOrderAcrossBoundaries(t *testing.T) {
	items := make([]int, 250)
	for i := range items {
		items[i] = i
	}

	chunks := Chunk(items, 100)
	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 50)

	var flat []int
	for _, c := range chunks {
		flat = append(flat, c...)
	}
	assert.Equal(t, items, flat)
}

func TestChunkEdgeCases(t *testing.T) {
	assert.Empty(t, Chunk([]string{}, 10))
	assert.Equal(t, [][]string{{"a"}, {"b"}}, Chunk([]string{"a", "b"}, 1))
	assert.Panics(t, func() { Chunk([]string{"a"}, 0) })
}

func TestChunkAppendDoesNotLeakIntoNextChunk(t *testing.T) {
	chunks := Chunk([]int{1, 2, 3, 4}, 2)
	_ = append(chunks[0], 99)
	assert.Equal(t, []int{3, 4}, chunks[1])
}

func TestDedupeKeepsLastOccurrence(t *testing.T) {
	type row struct{ name, price string }
	rows := []row{{"milk", "1"}, {"bread", "2"}, {"milk", "3"}, {"eggs", "4"}}

	kept, dropped := Dedupe(rows, func(r row) string { return r.name })
	assert.Equal(t, 1, dropped)
	assert.Equal(t, []row{{"bread", "2"}, {"milk", "3"}, {"eggs", "4"}}, kept)
}
