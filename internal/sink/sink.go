// internal/sink/sink.go
package sink

import "sync"

// Sink receives decoded scalars in order.
type Sink interface {
	Put(v int32)
}

// Flusher is implemented by sinks that batch per frame.
// Flush is called once after every frame that delivered samples.
type Flusher interface {
	Flush()
}

// Tee fans every sample out to several sinks.
type Tee []Sink

func (t Tee) Put(v int32) {
	for _, s := range t {
		s.Put(v)
	}
}

func (t Tee) Flush() {
	for _, s := range t {
		if f, ok := s.(Flusher); ok {
			f.Flush()
		}
	}
}

// Waveform is a bounded ring of the most recent samples.
// It is safe for concurrent use: the dispatch path writes, consumers read.
type Waveform struct {
	mu    sync.Mutex
	buf   []int32
	next  int
	full  bool
	total uint64
}

// NewWaveform creates a ring holding up to n samples.
func NewWaveform(n int) *Waveform {
	if n < 1 {
		n = 1
	}
	return &Waveform{buf: make([]int32, n)}
}

func (w *Waveform) Put(v int32) {
	w.mu.Lock()
	w.buf[w.next] = v
	w.next++
	if w.next == len(w.buf) {
		w.next = 0
		w.full = true
	}
	w.total++
	w.mu.Unlock()
}

// Samples copies the held samples, oldest first.
func (w *Waveform) Samples() []int32 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.full {
		out := make([]int32, w.next)
		copy(out, w.buf[:w.next])
		return out
	}
	out := make([]int32, 0, len(w.buf))
	out = append(out, w.buf[w.next:]...)
	return append(out, w.buf[:w.next]...)
}

// Last returns the most recent sample.
func (w *Waveform) Last() (int32, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.total == 0 {
		return 0, false
	}
	i := w.next - 1
	if i < 0 {
		i = len(w.buf) - 1
	}
	return w.buf[i], true
}

// Total returns the number of samples ever received.
func (w *Waveform) Total() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}

// Cap returns the ring capacity.
func (w *Waveform) Cap() int { return len(w.buf) }
