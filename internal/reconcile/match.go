package reconcile

type MatchKind int

const (
	NoMatch MatchKind = iota
	OneMatch
	ManyMatches
)

func (k MatchKind) String() string {
	switch k {
	case NoMatch:
		return "none"
	case OneMatch:
		return "one"
	case ManyMatches:
		return "many"
	}
	return "unknown"
}

type Match[T any] struct {
	Kind  MatchKind
	Items []T
}

// One returns the single match. Only meaningful when Kind is OneMatch.
func (m Match[T]) One() T {
	var zero T
	if len(m.Items) == 0 {
		return zero
	}
	return m.Items[0]
}

// Index groups preloaded records by natural key. Keys compare byte for byte; callers trim
// input before building or matching. An Index is read-only once built.
type Index[T any] struct {
	byKey map[string][]T
}

func NewIndex[T any](items []T, key func(T) string) *Index[T] {
	idx := &Index[T]{byKey: make(map[string][]T, len(items))}
	for _, item := range items {
		k := key(item)
		idx.byKey[k] = append(idx.byKey[k], item)
	}
	return idx
}

func (idx *Index[T]) Match(key string) Match[T] {
	items := idx.byKey[key]
	switch len(items) {
	case 0:
		return Match[T]{Kind: NoMatch}
	case 1:
		return Match[T]{Kind: OneMatch, Items: items}
	}
	return Match[T]{Kind: ManyMatches, Items: items}
}

func (idx *Index[T]) Len() int {
	return len(idx.byKey)
}

// Each calls fn for every key in the index.
func (idx *Index[T]) Each(fn func(key string, items []T)) {
	for k, items := range idx.byKey {
		fn(k, items)
	}
}
