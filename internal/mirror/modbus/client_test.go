// internal/mirror/modbus/client_test.go
package modbus

import (
	"errors"
	"testing"
)

type fc16Call struct {
	addr  uint16
	qty   uint16
	bytes int
	first uint16
}

type fakeRegisterWriter struct {
	calls  []fc16Call
	failAt int // 1-based call number that fails, 0 = never
}

func (f *fakeRegisterWriter) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	f.calls = append(f.calls, fc16Call{
		addr:  address,
		qty:   quantity,
		bytes: len(value),
		first: uint16(value[0])<<8 | uint16(value[1]),
	})
	if f.failAt == len(f.calls) {
		return nil, errors.New("exception 2")
	}
	return nil, nil
}

func TestWriteChunked_SplitsAtLimit(t *testing.T) {
	regs := make([]uint16, 250)
	for i := range regs {
		regs[i] = uint16(i)
	}

	w := &fakeRegisterWriter{}
	if err := writeChunked(w, 1000, regs); err != nil {
		t.Fatalf("writeChunked: %v", err)
	}

	want := []fc16Call{
		{addr: 1000, qty: 123, bytes: 246, first: 0},
		{addr: 1123, qty: 123, bytes: 246, first: 123},
		{addr: 1246, qty: 4, bytes: 8, first: 246},
	}
	if len(w.calls) != len(want) {
		t.Fatalf("expected %d requests, got %d", len(want), len(w.calls))
	}
	for i := range want {
		if w.calls[i] != want[i] {
			t.Fatalf("request %d: got=%+v want=%+v", i, w.calls[i], want[i])
		}
	}
}

func TestWriteChunked_SingleRequest(t *testing.T) {
	w := &fakeRegisterWriter{}
	if err := writeChunked(w, 0, []uint16{0xabcd}); err != nil {
		t.Fatalf("writeChunked: %v", err)
	}
	if len(w.calls) != 1 || w.calls[0].qty != 1 || w.calls[0].first != 0xabcd {
		t.Fatalf("unexpected requests %+v", w.calls)
	}
}

func TestWriteChunked_StopsOnError(t *testing.T) {
	w := &fakeRegisterWriter{failAt: 2}
	if err := writeChunked(w, 0, make([]uint16, 250)); err == nil {
		t.Fatalf("expected error")
	}
	if len(w.calls) != 2 {
		t.Fatalf("expected to stop after the failing request, got %d requests", len(w.calls))
	}
}
