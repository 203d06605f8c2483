// internal/sink/recorder.go
package sink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Batch is one frame's worth of samples for one channel.
type Batch struct {
	RunID   string    `cbor:"1,keyasint"`
	At      time.Time `cbor:"2,keyasint"`
	Port    string    `cbor:"3,keyasint"`
	Channel int       `cbor:"4,keyasint"`
	Seq     uint64    `cbor:"5,keyasint"`
	Samples []int32   `cbor:"6,keyasint"`
}

var (
	recEncMode cbor.EncMode
	recDecMode cbor.DecMode
)

func init() {
	var err error

	recEncMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("sink: could not create CBOR encoder mode: %v", err))
	}

	recDecMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("sink: could not create CBOR decoder mode: %v", err))
	}
}

// Recorder appends sample batches to a CBOR stream.
// It is safe for concurrent use from several device dispatch paths.
type Recorder struct {
	mu     sync.Mutex
	runID  string
	w      io.WriteCloser
	enc    *cbor.Encoder
	closed bool
	err    error
	now    func() time.Time
}

// NewRecorder writes batches to w under a fresh run id.
func NewRecorder(w io.WriteCloser) *Recorder {
	return &Recorder{
		runID: uuid.NewString(),
		w:     w,
		enc:   recEncMode.NewEncoder(w),
		now:   time.Now,
	}
}

// CreateRecorder opens <dir>/<run-id>.cbor.
func CreateRecorder(dir string) (*Recorder, error) {
	id := uuid.New()
	path := filepath.Join(dir, id.String()+".cbor")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("sink: could not create recording %q: %w", path, err)
	}
	rec := NewRecorder(f)
	rec.runID = id.String()
	return rec, nil
}

// RunID identifies this recording.
func (r *Recorder) RunID() string { return r.runID }

// Err returns the first encoding error, if any.
// Recording failures never reach the dispatch path.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Channel returns a per-frame batching sink for one sampler channel.
func (r *Recorder) Channel(port string, channel int) *Channel {
	return &Channel{rec: r, port: port, channel: channel}
}

func (r *Recorder) write(b Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.err != nil {
		return
	}
	b.RunID = r.runID
	b.At = r.now()
	if err := r.enc.Encode(b); err != nil {
		r.err = fmt.Errorf("sink: could not encode batch (port=%s ch=%d): %w", b.Port, b.Channel, err)
	}
}

// Close closes the underlying stream. Safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.w.Close()
}

// Channel collects one frame of samples and hands it to the Recorder on Flush.
// Used only from the owning device's dispatch path.
type Channel struct {
	rec     *Recorder
	port    string
	channel int
	seq     uint64
	pending []int32
}

func (c *Channel) Put(v int32) {
	c.pending = append(c.pending, v)
}

func (c *Channel) Flush() {
	if len(c.pending) == 0 {
		return
	}
	samples := make([]int32, len(c.pending))
	copy(samples, c.pending)
	c.pending = c.pending[:0]

	c.rec.write(Batch{
		Port:    c.port,
		Channel: c.channel,
		Seq:     c.seq,
		Samples: samples,
	})
	c.seq++
}

// ReadBatches decodes every batch from r until EOF.
func ReadBatches(r io.Reader) ([]Batch, error) {
	dec := recDecMode.NewDecoder(r)

	var out []Batch
	for {
		var b Batch
		err := dec.Decode(&b)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("sink: could not decode batch %d: %w", len(out), err)
		}
		out = append(out, b)
	}
}
