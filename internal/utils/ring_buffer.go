package utils

import "sync"

// RingBuffer keeps the last Cap() pushed items, dropping the oldest one when
// full. It is safe for concurrent use.
type RingBuffer[T any] struct {
	mu    sync.RWMutex
	items []T
	start int // index of the oldest item
	n     int
}

// NewRingBuffer panics if size is not positive.
func NewRingBuffer[T any](size int) *RingBuffer[T] {
	if size <= 0 {
		panic("ring buffer size must be positive")
	}
	return &RingBuffer[T]{items: make([]T, size)}
}

// Push appends item, evicting the oldest item if the buffer is full.
func (rb *RingBuffer[T]) Push(item T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.n < len(rb.items) {
		rb.items[(rb.start+rb.n)%len(rb.items)] = item
		rb.n++
		return
	}
	rb.items[rb.start] = item
	rb.start = (rb.start + 1) % len(rb.items)
}

func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.n
}

func (rb *RingBuffer[T]) Cap() int {
	return len(rb.items)
}

// At returns the i-th item, 0 being the oldest. Panics if i is out of range.
func (rb *RingBuffer[T]) At(i int) T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if i < 0 || i >= rb.n {
		panic("index out of range")
	}
	return rb.at(i)
}

func (rb *RingBuffer[T]) at(i int) T {
	return rb.items[(rb.start+i)%len(rb.items)]
}

// ToSlice returns a copy of the items, oldest first.
func (rb *RingBuffer[T]) ToSlice() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	result := make([]T, rb.n)
	for i := range result {
		result[i] = rb.at(i)
	}
	return result
}

// Latest returns up to n items, newest first. n <= 0 means all of them.
func (rb *RingBuffer[T]) Latest(n int) []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if n <= 0 || n > rb.n {
		n = rb.n
	}
	result := make([]T, n)
	for i := range result {
		result[i] = rb.at(rb.n - 1 - i)
	}
	return result
}
