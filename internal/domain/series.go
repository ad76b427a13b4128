package domain

// DefaultHistoryCapacity is the number of samples kept in memory
const DefaultHistoryCapacity = 1000

// Series is a fixed-capacity ring of samples in insertion order. Once full,
// every Append evicts the oldest sample.
//
// Series is not safe for concurrent use; SharedState guards it.
type Series struct {
	buf  []Sample
	head int // index of the oldest sample
	size int
}

// NewSeries creates an empty series holding at most capacity samples
func NewSeries(capacity int) (*Series, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Series{buf: make([]Sample, capacity)}, nil
}

// Append adds s as the newest sample
func (r *Series) Append(s Sample) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = s
		r.size++
		return
	}
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
}

// Len returns the number of retained samples
func (r *Series) Len() int {
	return r.size
}

// Cap returns the configured capacity
func (r *Series) Cap() int {
	return len(r.buf)
}

// Last returns the newest sample
func (r *Series) Last() (Sample, bool) {
	if r.size == 0 {
		return Sample{}, false
	}
	return r.buf[(r.head+r.size-1)%len(r.buf)], true
}

// Snapshot copies the most recent min(limit, Len()) samples, oldest first
func (r *Series) Snapshot(limit int) []Sample {
	if limit > r.size {
		limit = r.size
	}
	if limit <= 0 {
		return []Sample{}
	}

	out := make([]Sample, limit)
	start := r.head + r.size - limit
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}
