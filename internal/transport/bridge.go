// internal/transport/bridge.go
package transport

import (
	"bytes"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/tamzrod/ecat-bridge/internal/dispatch"
	"github.com/tamzrod/ecat-bridge/internal/wire"
	"github.com/tamzrod/ecat-bridge/internal/writeq"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultMaxMessage = 1000000
	DefaultReconnect  = time.Second
)

type Options struct {
	Socket     string
	MaxMessage int
	Reconnect  time.Duration

	Samplers []dispatch.SamplerConfig
	Device   dispatch.Options

	Logger *log.Logger
}

// Bridge is the scanner-side engine: it accepts the configuration once,
// feeds every PDO frame to the bus and drains the write queue to the socket.
type Bridge struct {
	opts  Options
	queue *writeq.Queue
	log   *log.Logger

	mu     sync.Mutex
	config []byte // accepted configuration message, verbatim
	bus    *dispatch.Bus
	warns  []dispatch.Warning

	ready chan struct{}
}

// New creates a bridge draining q. Device writes are submitted to q unless
// opts.Device.Queue says otherwise.
func New(q *writeq.Queue, opts Options) *Bridge {
	if opts.MaxMessage <= 0 {
		opts.MaxMessage = DefaultMaxMessage
	}
	if opts.Reconnect <= 0 {
		opts.Reconnect = DefaultReconnect
	}
	if opts.Device.Queue == nil && q != nil {
		opts.Device.Queue = q
	}

	l := opts.Logger
	if l == nil {
		l = log.Default()
	}

	return &Bridge{
		opts:  opts,
		queue: q,
		log:   l,
		ready: make(chan struct{}),
	}
}

// Ready is closed once the first configuration has been accepted.
func (b *Bridge) Ready() <-chan struct{} { return b.ready }

// Bus returns the dispatch bus, nil before Ready.
func (b *Bridge) Bus() *dispatch.Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bus
}

// Warnings returns the samplers that could not be attached.
func (b *Bridge) Warnings() []dispatch.Warning {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]dispatch.Warning(nil), b.warns...)
}

// Configure accepts a configuration message.
// The first one builds the bus. Later ones must be byte-identical and are
// ignored; any difference is a protocol violation and panics, as does a
// configuration that cannot be built.
func (b *Bridge) Configure(msg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.config != nil {
		if bytes.Equal(b.config, msg) {
			return
		}
		wire.Fatalf("config", "configuration changed after acceptance (%d bytes, was %d)",
			len(msg), len(b.config),
		)
	}

	cfg, err := wire.DecodeConfig(msg)
	if err != nil {
		wire.Fatal("config", err)
	}

	bus, warns, err := Build(cfg, b.opts.Samplers, b.opts.Device)
	if err != nil {
		wire.Fatal("config", err)
	}

	b.config = append([]byte(nil), msg...)
	b.bus = bus
	b.warns = warns

	for _, w := range warns {
		b.log.Printf("%s", w)
	}
	b.listing(bus)

	close(b.ready)
}

// listing logs every device with its channels and taps.
func (b *Bridge) listing(bus *dispatch.Bus) {
	b.log.Printf("configuration accepted: %d devices", len(bus.Devices()))

	for _, reg := range bus.Devices() {
		dev := reg.Device()
		b.log.Printf("device %s (type=%s index=%d oversampling=%d): %d channels",
			dev.Name, dev.Type, dev.Index, dev.OversamplingRate, dev.Table.Len(),
		)
		for _, m := range dev.Table.Mappings() {
			b.log.Printf("  %s offset=%d bit=%d bits=%d",
				m.Name, m.Field.ByteOffset, m.Field.BitOffset, m.Field.Width,
			)
		}
		for _, line := range samplerLines(reg.Taps()) {
			b.log.Printf("  %s", line)
		}
	}
}

// samplerLines renders taps ordered by channel.
func samplerLines(taps map[int]dispatch.Kind) []string {
	chans := make([]int, 0, len(taps))
	for ch := range taps {
		chans = append(chans, ch)
	}
	sort.Ints(chans)

	out := make([]string, 0, len(chans))
	for _, ch := range chans {
		out = append(out, fmt.Sprintf("sampler channel=%d kind=%s", ch, taps[ch]))
	}
	return out
}
