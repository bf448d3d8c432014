package reconcile

import "fmt"

// Chunk splits items into consecutive batches of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		panic(fmt.Sprintf("reconcile: chunk size must be >= 1, got %d", size))
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}

// Dedupe keeps one row per key: the last occurrence, at the position it had in the input.
// It returns the kept rows and how many were dropped.
func Dedupe[T any](rows []T, key func(T) string) ([]T, int) {
	last := make(map[string]int, len(rows))
	for i, row := range rows {
		last[key(row)] = i
	}
	kept := make([]T, 0, len(last))
	for i, row := range rows {
		if last[key(row)] == i {
			kept = append(kept, row)
		}
	}
	return kept, len(rows) - len(kept)
}
