// internal/dispatch/registry.go
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tamzrod/ecat-bridge/internal/mapping"
	"github.com/tamzrod/ecat-bridge/internal/param"
	"github.com/tamzrod/ecat-bridge/internal/sink"
	"github.com/tamzrod/ecat-bridge/internal/wire"
)

// Parameter names published by every device.
const (
	ParamALState   = "AL_STATE"
	ParamErrorFlag = "ERROR_FLAG"
)

// DefaultWaveformLength is used when Options.WaveformLength is not set.
const DefaultWaveformLength = 10000

var (
	ErrUnknownChannel = errors.New("dispatch: unknown channel")
	ErrNoQueue        = errors.New("dispatch: no outbound queue")
)

// Submitter is the outbound write path.
type Submitter interface {
	Submit(ctx context.Context, msg wire.Message) error
}

// Device is one fieldbus device as described by the scanner configuration.
type Device struct {
	Name             string
	Type             string
	Index            int // ordinal in configuration order; locates the status bytes
	OversamplingRate int
	Table            *mapping.Table
}

// SamplerConfig requests a tap on a device channel.
// An empty Cycle requests a Plain tap, otherwise an Oversampled one.
type SamplerConfig struct {
	Port    string
	Channel int
	Sample  string
	Cycle   string
}

// Warning reports a sampler that could not be attached.
type Warning struct {
	Port    string
	Channel int
	Reason  string
}

func (w Warning) String() string {
	return fmt.Sprintf("sampler port=%s channel=%d not created: %s", w.Port, w.Channel, w.Reason)
}

// Options tunes registry construction.
type Options struct {
	WaveformLength int

	// Extra, when set, may return an additional sink for a tap (e.g. a recorder).
	Extra func(port string, channel int) sink.Sink

	Queue Submitter
}

// Registry owns one device: its mapping table, taps and parameters.
// It receives every frame once and fans it out under the device lock.
type Registry struct {
	mu sync.Mutex

	dev   Device
	queue Submitter

	taps       []Tap
	params     *param.Store
	chanParams []int // param index per mapping index
	paramChan  map[int]int
	pAL        int
	pErr       int

	values []int32 // decode scratch, one per mapping
	frames uint64
}

// NewRegistry builds the registry of dev and attaches the requested samplers.
// Samplers for other ports are ignored. Samplers that cannot be resolved are
// reported as warnings and skipped; they never fail the device.
func NewRegistry(dev Device, samplers []SamplerConfig, opts Options) (*Registry, []Warning, error) {
	if dev.Table == nil {
		return nil, nil, fmt.Errorf("dispatch: device %q: mapping table required", dev.Name)
	}
	if opts.WaveformLength <= 0 {
		opts.WaveformLength = DefaultWaveformLength
	}

	r := &Registry{
		dev:       dev,
		queue:     opts.Queue,
		params:    param.NewStore(dev.Name),
		paramChan: make(map[int]int),
		values:    make([]int32, dev.Table.Len()),
	}

	var warns []Warning
	for _, sc := range samplers {
		if sc.Port != dev.Name {
			continue
		}
		tap, reason := r.resolve(sc)
		if reason != "" {
			warns = append(warns, Warning{Port: sc.Port, Channel: sc.Channel, Reason: reason})
			continue
		}

		tap.wave = sink.NewWaveform(opts.WaveformLength)
		tap.sink = tap.wave
		if opts.Extra != nil {
			if extra := opts.Extra(sc.Port, sc.Channel); extra != nil {
				tap.sink = sink.Tee{tap.wave, extra}
			}
		}

		if tap.Kind == Oversampled {
			idx, err := r.params.Create(fmt.Sprintf("XFC%d_MISSED", sc.Channel))
			if err != nil {
				warns = append(warns, Warning{Port: sc.Port, Channel: sc.Channel, Reason: err.Error()})
				continue
			}
			tap.missedParam = idx
		}
		r.taps = append(r.taps, tap)
	}

	r.chanParams = make([]int, dev.Table.Len())
	for i, m := range dev.Table.Mappings() {
		idx, err := r.params.Create(m.Name)
		if err != nil {
			// duplicate channel name: later entries share the first parameter
			idx, _ = r.params.Find(m.Name)
		} else {
			r.paramChan[idx] = i
		}
		r.chanParams[i] = idx
	}

	var err error
	if r.pAL, err = r.params.Create(ParamALState); err != nil {
		return nil, warns, fmt.Errorf("dispatch: device %q: %w", dev.Name, err)
	}
	if r.pErr, err = r.params.Create(ParamErrorFlag); err != nil {
		return nil, warns, fmt.Errorf("dispatch: device %q: %w", dev.Name, err)
	}

	return r, warns, nil
}

func (r *Registry) resolve(sc SamplerConfig) (Tap, string) {
	tbl := r.dev.Table

	for _, t := range r.taps {
		if t.Channel == sc.Channel {
			return Tap{}, "duplicate channel"
		}
	}

	sample, ok := tbl.FindByName(sc.Sample)
	if !ok {
		return Tap{}, fmt.Sprintf("sample channel %q not found", sc.Sample)
	}
	if sc.Cycle == "" {
		return Tap{Kind: Plain, Channel: sc.Channel, sample: sample}, ""
	}

	cycle, ok := tbl.FindByName(sc.Cycle)
	if !ok {
		return Tap{}, fmt.Sprintf("cycle channel %q not found", sc.Cycle)
	}

	stride := r.dev.OversamplingRate
	if stride < 1 {
		return Tap{}, fmt.Sprintf("oversampling rate %d < 1", stride)
	}
	if end := tbl.At(sample).Field.ByteOffset + 2*stride; end > tbl.PayloadSize() {
		return Tap{}, fmt.Sprintf("burst of %d samples ends at byte %d past payload of %d",
			stride, end, tbl.PayloadSize(),
		)
	}

	return Tap{
		Kind:    Oversampled,
		Channel: sc.Channel,
		sample:  sample,
		cycle:   cycle,
		stride:  stride,
	}, ""
}

// OnFrame dispatches one frame: taps first, then every mapped channel, then
// the status bytes. Everything is published in one step under the lock.
// OnFrame never returns an error; layout violations abort.
func (r *Registry) OnFrame(f *wire.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tbl := r.dev.Table
	if f.PayloadSize < tbl.PayloadSize() {
		wire.Fatalf("pdo", "device %q: frame payload %d smaller than configured %d",
			r.dev.Name, f.PayloadSize, tbl.PayloadSize(),
		)
	}

	for i := range r.taps {
		t := &r.taps[i]
		if !r.onFrame(t, tbl, f.Buffer) {
			continue
		}
		if fl, ok := t.sink.(sink.Flusher); ok {
			fl.Flush()
		}
	}

	DecodeChannels(tbl, f.Buffer, r.values)
	for i, v := range r.values {
		r.params.Set(r.chanParams[i], v)
	}

	st := DecodeStatus(f, r.dev.Index)
	r.params.Set(r.pAL, st.ALState)
	r.params.Set(r.pErr, st.ErrorFlag)

	r.frames++
	r.params.Publish()
}

// Name returns the device (port) name.
func (r *Registry) Name() string { return r.dev.Name }

// Device returns the device description.
func (r *Registry) Device() Device { return r.dev }

// Subscribe registers a listener called once per frame with changed values.
func (r *Registry) Subscribe(l param.Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params.Subscribe(l)
}

// Read returns the current value of a named parameter.
func (r *Registry) Read(name string) (int32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.params.Find(name)
	if !ok {
		return 0, false
	}
	return r.params.Get(i), true
}

// Params returns the parameter names in index order.
func (r *Registry) Params() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, r.params.Len())
	for i := range out {
		out[i] = r.params.Name(i)
	}
	return out
}

// Snapshot copies every parameter value in index order.
func (r *Registry) Snapshot() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params.Snapshot()
}

// Frames returns the number of frames dispatched.
func (r *Registry) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Write encodes a set-point for a mapped channel and submits it.
// The device lock is not held while Submit blocks.
func (r *Registry) Write(ctx context.Context, name string, v int32) error {
	r.mu.Lock()
	i, ok := r.params.Find(name)
	m, mapped := r.paramChan[i]
	r.mu.Unlock()

	if !ok || !mapped {
		return fmt.Errorf("%w: %s.%s", ErrUnknownChannel, r.dev.Name, name)
	}
	if r.queue == nil {
		return ErrNoQueue
	}

	req := r.dev.Table.At(m).Field.Encode(v)
	if err := r.queue.Submit(ctx, wire.Write(req)); err != nil {
		return fmt.Errorf("dispatch: write %s.%s: %w", r.dev.Name, name, err)
	}
	return nil
}

// Waveform returns a copy of a tap's recent samples.
func (r *Registry) Waveform(channel int) ([]int32, bool) {
	for i := range r.taps {
		if r.taps[i].Channel == channel {
			return r.taps[i].wave.Samples(), true
		}
	}
	return nil, false
}

// Missed returns the sub-cycle gap count of an oversampled tap.
func (r *Registry) Missed(channel int) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.taps {
		t := &r.taps[i]
		if t.Channel == channel && t.Kind == Oversampled {
			return t.missed, true
		}
	}
	return 0, false
}

// Taps returns the kind of every attached tap, by channel.
func (r *Registry) Taps() map[int]Kind {
	out := make(map[int]Kind, len(r.taps))
	for _, t := range r.taps {
		out[t.Channel] = t.Kind
	}
	return out
}
