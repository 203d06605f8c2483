// internal/dispatch/dispatch_test.go
package dispatch

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/ecat-bridge/internal/bitfield"
	"github.com/tamzrod/ecat-bridge/internal/mapping"
	"github.com/tamzrod/ecat-bridge/internal/param"
	"github.com/tamzrod/ecat-bridge/internal/sink"
	"github.com/tamzrod/ecat-bridge/internal/wire"
	"github.com/tamzrod/ecat-bridge/internal/writeq"
)

const (
	payloadSize = 16
	numDevices  = 2
	stride      = 4
)

// layout: A int16 @0, B int8 @2, Cycle uint16 @4, Burst 4 x int16 @6
func testTable(t *testing.T, id int, name string) *mapping.Table {
	t.Helper()
	tbl, err := mapping.Build(id, name, payloadSize, []mapping.Entry{
		{Group: "Inputs", Entry: "A", Offset: 0, Bits: 16},
		{Group: "Inputs", Entry: "B", Offset: 2, Bits: 8},
		{Group: "Inputs", Entry: "Cycle", Offset: 4, Bits: 16},
		{Group: "Inputs", Entry: "Burst", Offset: 6, Bits: 16},
		{Group: "Outputs", Entry: "Set Point", Offset: 14, Bit: 4, Bits: 12},
	})
	require.NoError(t, err)
	return tbl
}

func testDevice(t *testing.T, index int, name string) Device {
	return Device{
		Name:             name,
		Type:             "EL3702",
		Index:            index,
		OversamplingRate: stride,
		Table:            testTable(t, index, name),
	}
}

type frameBuilder struct {
	f wire.Frame
}

func newFrame(cycle uint16) *frameBuilder {
	return &frameBuilder{f: wire.Frame{
		Cycle:          cycle,
		WorkingCounter: 3,
		WcState:        2,
		PayloadSize:    payloadSize,
		Buffer:         make([]byte, payloadSize+2*numDevices),
	}}
}

func (b *frameBuilder) set(off, width int, v int32) *frameBuilder {
	bitfield.Insert(b.f.Buffer, off, 0, width, v)
	return b
}

func (b *frameBuilder) burst(base int16) *frameBuilder {
	for s := 0; s < stride; s++ {
		binary.LittleEndian.PutUint16(b.f.Buffer[6+2*s:], uint16(base+int16(s)))
	}
	return b
}

func (b *frameBuilder) status(dev int, al, errFlag byte) *frameBuilder {
	b.f.Buffer[payloadSize+2*dev] = al
	b.f.Buffer[payloadSize+2*dev+1] = errFlag
	return b
}

func (b *frameBuilder) frame() *wire.Frame { return &b.f }

func TestRegistry_PlainSamplerAndChannels(t *testing.T) {
	reg, warns, err := NewRegistry(testDevice(t, 0, "ADC1"), []SamplerConfig{
		{Port: "ADC1", Channel: 1, Sample: "Inputs.A"},
		{Port: "OTHER", Channel: 1, Sample: "Inputs.A"},
	}, Options{WaveformLength: 8})
	require.NoError(t, err)
	assert.Empty(t, warns)
	assert.Equal(t, map[int]Kind{1: Plain}, reg.Taps())

	var updates [][]param.Update
	reg.Subscribe(func(owner string, ups []param.Update) {
		updates = append(updates, ups)
	})

	reg.OnFrame(newFrame(1).set(0, 16, -1234).set(2, 8, 77).status(0, 8, 1).frame())

	a, ok := reg.Read("Inputs.A")
	require.True(t, ok)
	assert.Equal(t, int32(-1234), a)
	b, ok := reg.Read("Inputs.B")
	require.True(t, ok)
	assert.Equal(t, int32(77), b)
	al, _ := reg.Read(ParamALState)
	assert.Equal(t, int32(8), al)
	ef, _ := reg.Read(ParamErrorFlag)
	assert.Equal(t, int32(1), ef)

	wave, ok := reg.Waveform(1)
	require.True(t, ok)
	assert.Equal(t, []int32{-1234}, wave, "exactly one scalar per frame")

	require.Len(t, updates, 1, "one publication per frame")
	assert.Equal(t, uint64(1), reg.Frames())

	_, ok = reg.Waveform(2)
	assert.False(t, ok)
}

func TestRegistry_StatusUsesDeviceIndex(t *testing.T) {
	reg, _, err := NewRegistry(testDevice(t, 1, "ADC2"), nil, Options{})
	require.NoError(t, err)

	reg.OnFrame(newFrame(1).status(0, 1, 1).status(1, 4, 0).frame())

	al, _ := reg.Read(ParamALState)
	assert.Equal(t, int32(4), al)
	ef, _ := reg.Read(ParamErrorFlag)
	assert.Equal(t, int32(0), ef)
}

func TestRegistry_StatusOverrunIsFatal(t *testing.T) {
	reg, _, err := NewRegistry(testDevice(t, 2, "ADC3"), nil, Options{})
	require.NoError(t, err)

	f := newFrame(1).frame()
	defer func() {
		r := recover()
		var perr *wire.ProtocolError
		require.NotNil(t, r)
		require.True(t, errors.As(r.(error), &perr), "got %T", r)
		assert.Equal(t, "status", perr.Op)
	}()
	reg.OnFrame(f)
}

func TestRegistry_ShortPayloadIsFatal(t *testing.T) {
	reg, _, err := NewRegistry(testDevice(t, 0, "ADC1"), nil, Options{})
	require.NoError(t, err)

	f := newFrame(1).frame()
	f.PayloadSize = payloadSize - 2
	assert.Panics(t, func() { reg.OnFrame(f) })
}

func newOversampler(t *testing.T) *Registry {
	t.Helper()
	reg, warns, err := NewRegistry(testDevice(t, 0, "ADC1"), []SamplerConfig{
		{Port: "ADC1", Channel: 3, Sample: "Inputs.Burst", Cycle: "Inputs.Cycle"},
	}, Options{WaveformLength: 64})
	require.NoError(t, err)
	require.Empty(t, warns)
	require.Equal(t, map[int]Kind{3: Oversampled}, reg.Taps())
	return reg
}

func subCycle(cyc uint16, base int16) *wire.Frame {
	return newFrame(0).set(4, 16, int32(cyc)).burst(base).frame()
}

func TestOversampler_Burst(t *testing.T) {
	reg := newOversampler(t)

	reg.OnFrame(subCycle(1, 100))
	reg.OnFrame(subCycle(2, 200))

	wave, ok := reg.Waveform(3)
	require.True(t, ok)
	assert.Equal(t, []int32{100, 101, 102, 103, 200, 201, 202, 203}, wave)

	missed, ok := reg.Missed(3)
	require.True(t, ok)
	assert.Equal(t, uint32(0), missed)
}

func TestOversampler_NegativeSamples(t *testing.T) {
	reg := newOversampler(t)

	reg.OnFrame(subCycle(1, -2))

	wave, _ := reg.Waveform(3)
	assert.Equal(t, []int32{-2, -1, 0, 1}, wave)
}

func TestOversampler_DuplicateIsIdempotent(t *testing.T) {
	reg := newOversampler(t)

	reg.OnFrame(subCycle(1, 10))
	before, _ := reg.Waveform(3)

	reg.OnFrame(subCycle(1, 50))
	reg.OnFrame(subCycle(1, 90))

	after, _ := reg.Waveform(3)
	assert.Equal(t, before, after)

	missed, _ := reg.Missed(3)
	assert.Equal(t, uint32(0), missed)
	v, ok := reg.Read("XFC3_MISSED")
	require.True(t, ok)
	assert.Equal(t, int32(0), v)
}

func TestOversampler_GapCountsOnce(t *testing.T) {
	reg := newOversampler(t)

	reg.OnFrame(subCycle(0, 0)) // equal to the initial last cycle: dropped
	reg.OnFrame(subCycle(1, 0))
	reg.OnFrame(subCycle(3, 0))

	missed, _ := reg.Missed(3)
	assert.Equal(t, uint32(1), missed)

	reg.OnFrame(subCycle(1000, 0))
	missed, _ = reg.Missed(3)
	assert.Equal(t, uint32(2), missed, "gap size is not tracked")

	v, _ := reg.Read("XFC3_MISSED")
	assert.Equal(t, int32(2), v)
}

func TestOversampler_Wraparound(t *testing.T) {
	reg := newOversampler(t)

	reg.OnFrame(subCycle(65533, 0)) // gap from the initial 0
	missed, _ := reg.Missed(3)
	require.Equal(t, uint32(1), missed)

	reg.OnFrame(subCycle(65534, 0))
	reg.OnFrame(subCycle(65535, 0))
	reg.OnFrame(subCycle(0, 0))
	reg.OnFrame(subCycle(1, 0))

	missed, _ = reg.Missed(3)
	assert.Equal(t, uint32(1), missed)

	wave, _ := reg.Waveform(3)
	assert.Len(t, wave, 5*stride)
}

type countSink struct{ n, flushes int }

func (c *countSink) Put(int32) { c.n++ }
func (c *countSink) Flush()    { c.flushes++ }

func TestRegistry_ExtraSinkFlushedPerFrame(t *testing.T) {
	extra := &countSink{}
	reg, _, err := NewRegistry(testDevice(t, 0, "ADC1"), []SamplerConfig{
		{Port: "ADC1", Channel: 3, Sample: "Inputs.Burst", Cycle: "Inputs.Cycle"},
	}, Options{Extra: func(port string, ch int) sink.Sink {
		assert.Equal(t, "ADC1", port)
		assert.Equal(t, 3, ch)
		return extra
	}})
	require.NoError(t, err)

	reg.OnFrame(subCycle(1, 0))
	reg.OnFrame(subCycle(1, 0)) // duplicate: no flush
	reg.OnFrame(subCycle(2, 0))

	assert.Equal(t, 2*stride, extra.n)
	assert.Equal(t, 2, extra.flushes)
}

func TestRegistry_Warnings(t *testing.T) {
	dev := testDevice(t, 0, "ADC1")

	reg, warns, err := NewRegistry(dev, []SamplerConfig{
		{Port: "ADC1", Channel: 1, Sample: "Inputs.Missing"},
		{Port: "ADC1", Channel: 2, Sample: "Inputs.Burst", Cycle: "Inputs.Missing"},
		{Port: "ADC1", Channel: 3, Sample: "Inputs.A"},
		{Port: "ADC1", Channel: 3, Sample: "Inputs.B"},
		{Port: "ADC1", Channel: 4, Sample: "Outputs.SetPoint", Cycle: "Inputs.Cycle"},
	}, Options{})
	require.NoError(t, err)
	require.Len(t, warns, 4)

	assert.Equal(t, 1, warns[0].Channel)
	assert.Contains(t, warns[0].Reason, "Inputs.Missing")
	assert.Equal(t, 2, warns[1].Channel)
	assert.Equal(t, 3, warns[2].Channel)
	assert.Equal(t, 4, warns[3].Channel)
	assert.Contains(t, warns[3].String(), "past payload")

	assert.Equal(t, map[int]Kind{3: Plain}, reg.Taps())

	dev.OversamplingRate = 0
	_, warns, err = NewRegistry(dev, []SamplerConfig{
		{Port: "ADC1", Channel: 1, Sample: "Inputs.Burst", Cycle: "Inputs.Cycle"},
	}, Options{})
	require.NoError(t, err)
	require.Len(t, warns, 1)
}

type fakeQueue struct {
	msgs []wire.Message
	err  error
}

func (q *fakeQueue) Submit(ctx context.Context, msg wire.Message) error {
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

func TestRegistry_Write(t *testing.T) {
	q := &fakeQueue{}
	reg, _, err := NewRegistry(testDevice(t, 0, "ADC1"), nil, Options{Queue: q})
	require.NoError(t, err)

	require.NoError(t, reg.Write(context.Background(), "Outputs.SetPoint", -5))
	require.Len(t, q.msgs, 1)
	assert.Equal(t, wire.Write(bitfield.WriteRequest{
		ByteOffset: 14, BitOffset: 4, BitWidth: 12, Value: -5,
	}), q.msgs[0])

	err = reg.Write(context.Background(), "Outputs.Nope", 1)
	assert.ErrorIs(t, err, ErrUnknownChannel)

	err = reg.Write(context.Background(), ParamALState, 1)
	assert.ErrorIs(t, err, ErrUnknownChannel, "status parameters are read-only")

	q.err = context.Canceled
	err = reg.Write(context.Background(), "Inputs.A", 1)
	assert.ErrorIs(t, err, context.Canceled)

	noq, _, err := NewRegistry(testDevice(t, 0, "ADC1"), nil, Options{})
	require.NoError(t, err)
	assert.ErrorIs(t, noq.Write(context.Background(), "Inputs.A", 1), ErrNoQueue)
}

func TestRegistry_WriteDoesNotHoldLockWhileBlocked(t *testing.T) {
	q := writeq.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// occupy the only slot so the next Submit blocks
	require.NoError(t, q.Submit(ctx, wire.Heartbeat()))

	reg, _, err := NewRegistry(testDevice(t, 0, "ADC1"), nil, Options{Queue: q})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- reg.Write(ctx, "Outputs.SetPoint", 3) }()

	select {
	case err := <-done:
		t.Fatalf("write returned while the queue was full: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	dispatched := make(chan struct{})
	go func() {
		reg.OnFrame(newFrame(1).set(0, 16, 42).frame())
		close(dispatched)
	}()

	select {
	case <-dispatched:
	case <-time.After(time.Second):
		t.Fatal("frame dispatch blocked behind a pending write")
	}

	v, ok := reg.Read("Inputs.A")
	require.True(t, ok)
	assert.Equal(t, int32(42), v)

	// drain: the pending write goes through in order
	first, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.TagHeartbeat, first.Tag)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("write still blocked after drain")
	}

	second, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.TagWrite, second.Tag)
}

func TestRegistry_Params(t *testing.T) {
	reg, _, err := NewRegistry(testDevice(t, 0, "ADC1"), []SamplerConfig{
		{Port: "ADC1", Channel: 7, Sample: "Inputs.Burst", Cycle: "Inputs.Cycle"},
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"XFC7_MISSED",
		"Inputs.A", "Inputs.B", "Inputs.Cycle", "Inputs.Burst", "Outputs.SetPoint",
		ParamALState, ParamErrorFlag,
	}, reg.Params())
	assert.Len(t, reg.Snapshot(), 8)
}

func TestMaster(t *testing.T) {
	m := NewMaster("MASTER0")

	for _, c := range []uint16{1, 2, 3, 5, 6, 65535, 0, 1, 1} {
		m.OnFrame(&wire.Frame{Cycle: c, WorkingCounter: 9, WcState: 2})
	}

	// gaps: 3->5, 6->65535, 1->1
	assert.Equal(t, uint32(3), m.Missed())
	v, ok := m.Read(ParamMissed)
	require.True(t, ok)
	assert.Equal(t, int32(3), v)
	v, _ = m.Read(ParamCycle)
	assert.Equal(t, int32(1), v)
	v, _ = m.Read(ParamWorkingCounter)
	assert.Equal(t, int32(9), v)
	v, _ = m.Read(ParamWcState)
	assert.Equal(t, int32(2), v)
}

func TestBus_DispatchOrder(t *testing.T) {
	m := NewMaster("MASTER0")
	d0, _, err := NewRegistry(testDevice(t, 0, "ADC1"), nil, Options{})
	require.NoError(t, err)
	d1, _, err := NewRegistry(testDevice(t, 1, "ADC2"), nil, Options{})
	require.NoError(t, err)

	var order []string
	rec := func(owner string, _ []param.Update) { order = append(order, owner) }
	m.Subscribe(rec)
	d0.Subscribe(rec)
	d1.Subscribe(rec)

	bus := NewBus(m, d0, d1)
	bus.Dispatch(newFrame(1).set(0, 16, 1).status(0, 8, 0).status(1, 8, 0).frame())

	assert.Equal(t, []string{"MASTER0", "ADC1", "ADC2"}, order)

	got, ok := bus.Device("ADC2")
	require.True(t, ok)
	assert.Same(t, d1, got)
	_, ok = bus.Device("nope")
	assert.False(t, ok)
	assert.Same(t, m, bus.Master())
	assert.Len(t, bus.Devices(), 2)
}
