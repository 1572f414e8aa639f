package combinatorics

import "iter"

// Rotation is a restartable enumerator over the rightward rotations of a
// fixed list. It owns a copy of the list and never reorders it; rotation k
// is an offset view where position j reads items[(j-k) mod n].
//
// Rotation 0 is the original order, rotation 1 moves the last element to the
// front, and so on. After n steps the view is back at rotation 0.
//
// A Rotation is not safe for concurrent use.
type Rotation[T any] struct {
	items []T
	k     int
	steps int
}

// NewRotation returns an enumerator over a copy of items.
func NewRotation[T any](items []T) *Rotation[T] {
	r := &Rotation[T]{}
	r.Load(items)
	return r
}

// Load replaces the list, reusing the owned storage, and resets the
// enumerator to rotation 0.
func (r *Rotation[T]) Load(items []T) {
	r.items = append(r.items[:0], items...)
	r.Reset()
}

// Len is the list length, which is also the number of rotations.
func (r *Rotation[T]) Len() int { return len(r.items) }

// Index is the current rotation index in [0, Len()).
func (r *Rotation[T]) Index() int { return r.k }

// Reset positions the view on rotation 0 and restarts the pass.
func (r *Rotation[T]) Reset() {
	r.k = 0
	r.steps = 0
}

// Done reports whether every rotation of the current pass has been visited.
func (r *Rotation[T]) Done() bool { return r.steps >= len(r.items) }

// Next advances the view by one rightward rotation.
func (r *Rotation[T]) Next() {
	r.steps++
	if n := len(r.items); n > 0 {
		r.k = (r.k + 1) % n
	}
}

// Restore positions the view on rotation k (taken modulo Len) without
// affecting the pass counter.
func (r *Rotation[T]) Restore(k int) {
	n := len(r.items)
	if n == 0 {
		r.k = 0
		return
	}
	r.k = ((k % n) + n) % n
}

// At returns the element at position j of the current view.
func (r *Rotation[T]) At(j int) T {
	n := len(r.items)
	return r.items[(((j-r.k)%n)+n)%n]
}

// Last returns the element in the last position of the current view.
func (r *Rotation[T]) Last() T { return r.At(len(r.items) - 1) }

// AppendLeading appends the first Len()-1 elements of the current view to
// dst, preserving their order.
func (r *Rotation[T]) AppendLeading(dst []T) []T {
	for j := 0; j < len(r.items)-1; j++ {
		dst = append(dst, r.At(j))
	}
	return dst
}

// AppendOrder appends the whole current view to dst.
func (r *Rotation[T]) AppendOrder(dst []T) []T {
	for j := range r.items {
		dst = append(dst, r.At(j))
	}
	return dst
}

// All restarts the enumerator and yields each rotation index in order,
// leaving the view positioned on that rotation while the caller's loop body
// runs. A completed pass leaves the view on rotation 0.
func (r *Rotation[T]) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		for r.Reset(); !r.Done(); r.Next() {
			if !yield(r.k) {
				return
			}
		}
	}
}

// ShiftRight rotates s in place by one position to the right: the last
// element moves to the front.
func ShiftRight[T any](s []T) {
	if len(s) < 2 {
		return
	}
	last := s[len(s)-1]
	copy(s[1:], s[:len(s)-1])
	s[0] = last
}
