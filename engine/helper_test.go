package engine

import (
	"testing"
	"time"

	"github.com/cwbudde/algo-audio/device"
)

// fakeDriver satisfies device.Driver without touching real hardware; tests
// drive the destination directly.
type fakeDriver struct {
	sampleRate float64
	channels   int
	cb         device.RenderCallback
}

func (d *fakeDriver) Start() error          { return nil }
func (d *fakeDriver) Stop() error           { return nil }
func (d *fakeDriver) Suspend() error        { return nil }
func (d *fakeDriver) Resume() error         { return nil }
func (d *fakeDriver) Close() error          { return nil }
func (d *fakeDriver) SampleRate() float64   { return d.sampleRate }
func (d *fakeDriver) ChannelCount() int     { return d.channels }

func fakeFactory(t *testing.T) (DriverFactory, **fakeDriver) {
	t.Helper()
	holder := new(*fakeDriver)
	return func(rate float64, channels int, cb device.RenderCallback) (device.Driver, error) {
		d := &fakeDriver{sampleRate: rate, channels: channels, cb: cb}
		*holder = d
		return d, nil
	}, holder
}

func newTestContext(t *testing.T, opts ...Option) *Context {
	t.Helper()
	factory, _ := fakeFactory(t)
	ctx, err := NewContext(append([]Option{WithDriverFactory(factory)}, opts...)...)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx
}

// renderBlocks pulls n quanta through the destination.
func renderBlocks(ctx *Context, n int) {
	for range n {
		ctx.dest.renderQuantum()
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
