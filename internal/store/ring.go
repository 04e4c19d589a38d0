package store

// ring is a fixed-capacity FIFO. Pushing onto a full ring overwrites the
// oldest element.
type ring[T any] struct {
	buf  []T
	head int // index of the oldest element once buf is full
	cap  int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{cap: capacity}
}

// push appends v and reports whether the oldest element was evicted.
func (r *ring[T]) push(v T) bool {
	if len(r.buf) < r.cap {
		r.buf = append(r.buf, v)
		return false
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % r.cap
	return true
}

func (r *ring[T]) len() int { return len(r.buf) }

// items returns a copy in insertion order, oldest first.
func (r *ring[T]) items() []T {
	out := make([]T, 0, len(r.buf))
	out = append(out, r.buf[r.head:]...)
	out = append(out, r.buf[:r.head]...)
	return out
}

func (r *ring[T]) reset() {
	r.buf = nil
	r.head = 0
}

// fill replaces the contents with vs, keeping only the newest cap entries.
func (r *ring[T]) fill(vs []T) {
	r.reset()
	if len(vs) > r.cap {
		vs = vs[len(vs)-r.cap:]
	}
	r.buf = append(make([]T, 0, len(vs)), vs...)
}
