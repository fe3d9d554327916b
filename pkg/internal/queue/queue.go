package queue

import "github.com/pkg/errors"

// ErrFull is returned when an insertion would exceed the queue capacity.
var ErrFull = errors.New("queue: full")

// Queue is a fixed-capacity ordered queue that supports positional insertion.
// Insertions keep the relative order of existing items. It is not safe for
// concurrent use.
type Queue[T any] struct {
	items []T
	cap   int
}

// New creates a queue holding at most capacity items.
func New[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{
		items: make([]T, 0, capacity),
		cap:   capacity,
	}
}

// Push appends an item at the tail.
func (q *Queue[T]) Push(item T) error {
	return q.Insert(len(q.items), item)
}

// Insert places item at position pos, shifting the items at pos and after
// one slot to the right. pos is clamped to [0, Len()].
func (q *Queue[T]) Insert(pos int, item T) error {
	if len(q.items) >= q.cap {
		return ErrFull
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(q.items) {
		pos = len(q.items)
	}

	var zero T
	q.items = append(q.items, zero)
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = item
	return nil
}

// IndexFunc returns the position of the first item satisfying f, or -1.
func (q *Queue[T]) IndexFunc(f func(T) bool) int {
	for i, item := range q.items {
		if f(item) {
			return i
		}
	}
	return -1
}

// Peek returns the head item without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	return q.items[0], true
}

// Pop removes the head item and shifts the rest left.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	copy(q.items, q.items[1:])
	q.items[len(q.items)-1] = zero
	q.items = q.items[:len(q.items)-1]
	return item, true
}

// At returns the item at position i.
func (q *Queue[T]) At(i int) T {
	return q.items[i]
}

// Len returns the number of items in the queue
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return q.cap
}

// Free returns the number of items that can still be inserted.
func (q *Queue[T]) Free() int {
	return q.cap - len(q.items)
}

// Clear removes all items, calling release on each one first when non-nil.
func (q *Queue[T]) Clear(release func(T)) {
	var zero T
	for i := range q.items {
		if release != nil {
			release(q.items[i])
		}
		q.items[i] = zero
	}
	q.items = q.items[:0]
}
