package stats

import "fmt"

// Ring is a fixed-capacity FIFO buffer of gap values. Once full, each
// push overwrites the oldest entry.
type Ring struct {
	buf  []int64
	next int
	full bool
}

// NewRing creates a ring buffer holding up to capacity values.
func NewRing(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: ring capacity must be positive, got %d", ErrConfiguration, capacity)
	}
	return &Ring{buf: make([]int64, 0, capacity)}, nil
}

// Push appends a value, evicting the oldest once at capacity.
func (r *Ring) Push(value int64) {
	if !r.full && len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, value)
		if len(r.buf) == cap(r.buf) {
			r.full = true
			r.next = 0
		}
		return
	}
	r.buf[r.next] = value
	r.next = (r.next + 1) % cap(r.buf)
}

// Len reports how many values are currently retained.
func (r *Ring) Len() int {
	return len(r.buf)
}

// Last returns the most recently pushed value, or (0, false) when empty.
func (r *Ring) Last() (int64, bool) {
	if len(r.buf) == 0 {
		return 0, false
	}
	if r.full {
		return r.buf[(r.next+cap(r.buf)-1)%cap(r.buf)], true
	}
	return r.buf[len(r.buf)-1], true
}

// Values returns retained values in insertion order, oldest first.
func (r *Ring) Values() []int64 {
	out := make([]int64, 0, len(r.buf))
	if r.full {
		out = append(out, r.buf[r.next:]...)
		out = append(out, r.buf[:r.next]...)
		return out
	}
	return append(out, r.buf...)
}

// Restore rebuilds a ring from previously captured values, oldest first.
// Values beyond capacity keep only the newest.
func (r *Ring) Restore(values []int64) {
	r.buf = r.buf[:0]
	r.next = 0
	r.full = false
	start := 0
	if len(values) > cap(r.buf) {
		start = len(values) - cap(r.buf)
	}
	for _, v := range values[start:] {
		r.Push(v)
	}
}
