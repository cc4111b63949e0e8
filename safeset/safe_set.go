// Package safeset provides a mutex-guarded generic set. The game registry
// keeps its lobby in one: membership changes under the set's own lock, and
// broadcasts iterate a Snapshot taken under that lock.
package safeset

import "sync"

// SafeSet is a thread-safe set of comparable elements.
type SafeSet[T comparable] struct {
	m map[T]struct{}
	sync.RWMutex
}

// NewSafeSet creates and returns a new empty SafeSet.
func NewSafeSet[T comparable]() *SafeSet[T] {
	return &SafeSet[T]{m: make(map[T]struct{})}
}

// Add adds an element to the set.
//
// Parameters:
//   - value: The element to add
//
// Returns:
//   - true if value was not already present
func (s *SafeSet[T]) Add(value T) bool {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.m[value]; ok {
		return false
	}

	s.m[value] = struct{}{}
	return true
}

// AddAll adds every element of values in one critical section.
func (s *SafeSet[T]) AddAll(values []T) {
	s.Lock()
	defer s.Unlock()

	for _, v := range values {
		s.m[v] = struct{}{}
	}
}

// Remove removes an element from the set.
//
// Parameters:
//   - value: The element to remove
//
// Returns:
//   - true if value was present
func (s *SafeSet[T]) Remove(value T) bool {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.m[value]; !ok {
		return false
	}

	delete(s.m, value)
	return true
}

// Contains reports whether the set contains the given element.
func (s *SafeSet[T]) Contains(value T) bool {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.m[value]
	return ok
}

// Size returns the number of elements in the set.
func (s *SafeSet[T]) Size() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.m)
}

// Snapshot returns the current elements in unspecified order. The returned
// slice is owned by the caller and is safe to use after the lock is released.
func (s *SafeSet[T]) Snapshot() []T {
	s.RLock()
	defer s.RUnlock()

	out := make([]T, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}

	return out
}

// Reset removes all elements from the set, leaving it empty.
func (s *SafeSet[T]) Reset() {
	s.Lock()
	defer s.Unlock()
	s.m = make(map[T]struct{})
}
