// Package registry provides a handle table for weak references. Owning code
// puts an object in, hands the handle to whoever needs a non-owning view, and
// drops the entry on destruction. A lookup after that is a detectable miss
// instead of a dangling pointer.
package registry

import "sync"

// Handle identifies an entry in a Table. The zero value never resolves.
type Handle uint64

const None Handle = 0

type Table[T any] struct {
	mu   sync.RWMutex
	m    map[Handle]*T
	next Handle
}

func NewTable[T any]() *Table[T] {
	return &Table[T]{
		m:    make(map[Handle]*T),
		next: 1,
	}
}

// Put stores v and returns its handle. Handles are never reused, so a
// handle held across the object's destruction stays a miss forever.
func (t *Table[T]) Put(v *T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.next
	t.next++
	t.m[h] = v
	return h
}

// Get resolves h. The second return reports whether the entry is still live.
func (t *Table[T]) Get(h Handle) (*T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.m[h]
	return v, ok
}

// Drop removes h. Dropping an unknown or already dropped handle is a no-op.
func (t *Table[T]) Drop(h Handle) {
	t.mu.Lock()
	delete(t.m, h)
	t.mu.Unlock()
}

func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}
