// internal/dispatch/bus.go
package dispatch

import "github.com/tamzrod/ecat-bridge/internal/wire"

// Bus is the process-wide fan-out: master first, then every device in
// registration order. Built once, immutable afterwards.
type Bus struct {
	master  *Master
	devices []*Registry
	byName  map[string]*Registry
}

// NewBus assembles a bus. Device order is dispatch order.
func NewBus(master *Master, devices ...*Registry) *Bus {
	b := &Bus{
		master:  master,
		devices: devices,
		byName:  make(map[string]*Registry, len(devices)),
	}
	for _, d := range devices {
		b.byName[d.Name()] = d
	}
	return b
}

// Dispatch delivers one frame. The frame is not retained.
func (b *Bus) Dispatch(f *wire.Frame) {
	b.master.OnFrame(f)
	for _, d := range b.devices {
		d.OnFrame(f)
	}
}

// Master returns the master health tracker.
func (b *Bus) Master() *Master { return b.master }

// Devices returns the registries in dispatch order.
func (b *Bus) Devices() []*Registry { return b.devices }

// Device looks a registry up by port name.
func (b *Bus) Device(name string) (*Registry, bool) {
	d, ok := b.byName[name]
	return d, ok
}
