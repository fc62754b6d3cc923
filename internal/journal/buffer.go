package journal

import "sync"

// Buffer is a FIFO ring that starts small, doubles when 70% full and stops
// growing at a fixed limit. Push never blocks.
type Buffer[T any] struct {
	mu     sync.Mutex
	buf    []T
	head   int
	count  int
	limit  int
	closed bool
	ready  chan struct{}

	pushed  int64
	drained int64
	dropped int64
	resizes int
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count    int
	Capacity int
	Pushed   int64
	Drained  int64
	Dropped  int64
	Resizes  int
}

// NewBuffer creates a buffer with the given initial capacity that grows up
// to limit items.
func NewBuffer[T any](initial, limit int) *Buffer[T] {
	if limit < 1 {
		limit = 1
	}
	if initial < 1 {
		initial = 1
	}
	if initial > limit {
		initial = limit
	}
	return &Buffer[T]{
		buf:   make([]T, initial),
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// Push appends item. It returns false if the buffer is closed or full.
func (b *Buffer[T]) Push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := len(b.buf) * 70 / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold && len(b.buf) < b.limit {
		b.grow()
	}
	if b.count == len(b.buf) {
		b.dropped++
		return false
	}

	b.buf[(b.head+b.count)%len(b.buf)] = item
	b.count++
	b.pushed++

	select {
	case b.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready returns a channel that receives after a Push. A single receive may
// stand for several pushes.
func (b *Buffer[T]) Ready() <-chan struct{} {
	return b.ready
}

// Drain removes and returns up to max items in FIFO order. max <= 0 drains
// everything.
func (b *Buffer[T]) Drain(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	var zero T
	for i := 0; i < n; i++ {
		out[i] = b.buf[b.head]
		b.buf[b.head] = zero
		b.head = (b.head + 1) % len(b.buf)
	}
	b.count -= n
	b.drained += int64(n)
	return out
}

// Close stops further pushes. Items already queued can still be drained.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Len returns the number of queued items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns buffer statistics.
func (b *Buffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:    b.count,
		Capacity: len(b.buf),
		Pushed:   b.pushed,
		Drained:  b.drained,
		Dropped:  b.dropped,
		Resizes:  b.resizes,
	}
}

// grow doubles capacity up to the limit. Must be called with mu held.
func (b *Buffer[T]) grow() {
	size := len(b.buf) * 2
	if size > b.limit {
		size = b.limit
	}

	next := make([]T, size)
	for i := 0; i < b.count; i++ {
		next[i] = b.buf[(b.head+i)%len(b.buf)]
	}

	b.buf = next
	b.head = 0
	b.resizes++
}
