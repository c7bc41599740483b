package audio

import (
	"fmt"
	"sync"
)

// FakeOpener is a scripted capture backend for tests. It records every device
// it hands out so tests can assert on acquire/release pairing, and lets the
// test feed samples as if the hardware produced them.
type FakeOpener struct {
	mu      sync.Mutex
	devices []*FakeDevice
	Failing bool // Open returns an error when set
}

// NewFakeOpener creates a new fake opener
func NewFakeOpener() *FakeOpener {
	return &FakeOpener{}
}

// Open hands out a fake device, or an error when Failing is set
func (o *FakeOpener) Open(cfg CaptureConfig, cb FrameCallback) (Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.Failing {
		return nil, fmt.Errorf("no capture device available")
	}

	dev := &FakeDevice{
		cb:     cb,
		framer: NewFramer(cfg.SampleRate, cfg.FrameSize),
	}
	o.devices = append(o.devices, dev)
	return dev, nil
}

// Opened returns the number of devices handed out
func (o *FakeOpener) Opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.devices)
}

// Closed returns the number of devices that have been released
func (o *FakeOpener) Closed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, d := range o.devices {
		if d.IsClosed() {
			n++
		}
	}
	return n
}

// Device returns the i-th device handed out
func (o *FakeOpener) Device(i int) *FakeDevice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.devices[i]
}

// FakeDevice is the device handle produced by FakeOpener
type FakeDevice struct {
	mu      sync.Mutex
	cb      FrameCallback
	framer  *Framer
	started bool
	closed  bool
	closes  int
}

func (d *FakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = true
	return nil
}

func (d *FakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
	}
	d.closes++
	return nil
}

// Emit feeds samples through the framer and delivers complete frames to the
// capture callback, mimicking the hardware data path. No-op once closed.
func (d *FakeDevice) Emit(samples []float32) {
	d.mu.Lock()
	if d.closed || !d.started {
		d.mu.Unlock()
		return
	}
	frames := d.framer.Push(samples)
	cb := d.cb
	d.mu.Unlock()

	for _, f := range frames {
		cb(f)
	}
}

// IsClosed reports whether Close has been called
func (d *FakeDevice) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// CloseCalls returns how many times Close was invoked
func (d *FakeDevice) CloseCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}
