// Package cache memoizes expensive per-cycle computations with a two
// generation eviction policy.
package cache

// Generational remembers values requested during the current translation
// cycle and the one before it. A key computed in cycle N is still a hit in
// cycle N+1; if cycle N+1 does not ask for it, Advance drops it.
//
// Generational is not safe for concurrent use.
type Generational[K comparable, V any] struct {
	cur  map[K]V
	next map[K]V

	hits   uint64
	misses uint64
}

// NewGenerational returns an empty cache.
func NewGenerational[K comparable, V any]() *Generational[K, V] {
	return &Generational[K, V]{
		cur:  make(map[K]V),
		next: make(map[K]V),
	}
}

// Get returns the value for key, calling compute on a miss. Errors are
// returned as-is and never cached.
func (g *Generational[K, V]) Get(compute func(K) (V, error), key K) (V, error) {
	if v, ok := g.cur[key]; ok {
		g.hits++
		g.next[key] = v
		return v, nil
	}
	v, err := compute(key)
	if err != nil {
		var zero V
		return zero, err
	}
	g.misses++
	g.cur[key] = v
	g.next[key] = v
	return v, nil
}

// Advance ends a cycle: the keys requested since the previous Advance become
// the current generation and the next generation starts empty.
func (g *Generational[K, V]) Advance() {
	g.cur = g.next
	g.next = make(map[K]V, len(g.cur))
}

// Discard forgets the keys requested since the previous Advance without
// promoting them. Used when a cycle is abandoned.
func (g *Generational[K, V]) Discard() {
	clear(g.next)
}

// Len is the size of the current generation.
func (g *Generational[K, V]) Len() int { return len(g.cur) }

// Contains reports whether key is in the current generation.
func (g *Generational[K, V]) Contains(key K) bool {
	_, ok := g.cur[key]
	return ok
}

// Stats returns cumulative hit and miss counts.
func (g *Generational[K, V]) Stats() (hits, misses uint64) {
	return g.hits, g.misses
}
