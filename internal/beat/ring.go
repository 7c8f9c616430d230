// SPDX-License-Identifier: MIT
package beat

// Ring is a fixed-capacity circular buffer. Once full, every Push evicts the
// oldest element. The backing array is allocated once in NewRing.
type Ring[T any] struct {
	buf  []T
	head int // index of the oldest element
	size int
}

// NewRing returns an empty ring holding at most capacity elements.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// NewFilledRing returns a full ring whose i-th oldest element is fill(i).
func NewFilledRing[T any](capacity int, fill func(i int) T) *Ring[T] {
	r := NewRing[T](capacity)
	for i := range r.buf {
		r.buf[i] = fill(i)
	}
	r.size = len(r.buf)
	return r
}

// Push appends v. When the ring was already full the evicted element is
// returned with ok set to true.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = v
		r.size++
		return evicted, false
	}
	evicted = r.buf[r.head]
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	return evicted, true
}

// Oldest returns the element that the next Push on a full ring would evict.
func (r *Ring[T]) Oldest() (v T, ok bool) {
	if r.size == 0 {
		return v, false
	}
	return r.buf[r.head], true
}

// Newest returns the most recently pushed element.
func (r *Ring[T]) Newest() (v T, ok bool) {
	if r.size == 0 {
		return v, false
	}
	return r.buf[(r.head+r.size-1)%len(r.buf)], true
}

// At returns the i-th element counting from the oldest. i must be in [0, Len()).
func (r *Ring[T]) At(i int) T {
	return r.buf[(r.head+i)%len(r.buf)]
}

func (r *Ring[T]) Len() int   { return r.size }
func (r *Ring[T]) Cap() int   { return len(r.buf) }
func (r *Ring[T]) Full() bool { return r.size == len(r.buf) }
