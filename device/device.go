// Package device opens the platform audio output and pulls interleaved
// float32 frames from the engine through a render callback.
//
// The engine consumes only the Driver interface; the oto implementation is
// the default backend. Offline rendering bypasses this package entirely.
package device

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// RenderCallback fills out with exactly frames interleaved float32 frames.
// It is invoked from the platform's real-time audio thread and must not
// block, allocate, or panic.
type RenderCallback func(out []float32, frames int)

// Driver is the platform output stream consumed by a context.
type Driver interface {
	Start() error
	Stop() error
	Suspend() error
	Resume() error
	Close() error
	SampleRate() float64
	ChannelCount() int
}

// Errors returned by driver operations.
var (
	ErrInvalidConfig = errors.New("device: invalid stream configuration")
	ErrClosed        = errors.New("device: driver closed")
)

// otoDriver plays a callback-driven stream through oto.
type otoDriver struct {
	ctx    *oto.Context
	player *oto.Player
	reader *callbackReader

	sampleRate float64
	channels   int

	mu      sync.Mutex
	started bool
	closed  bool
}

// Open creates an output stream at the given rate and channel count. The
// stream is created suspended; call Start to begin pulling audio.
func Open(sampleRate float64, channels int, cb RenderCallback) (Driver, error) {
	if sampleRate <= 0 || channels <= 0 || cb == nil {
		return nil, fmt.Errorf("%w: rate=%f channels=%d", ErrInvalidConfig, sampleRate, channels)
	}

	op := &oto.NewContextOptions{
		SampleRate:   int(sampleRate),
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("device: open output: %w", err)
	}
	<-ready

	reader := &callbackReader{cb: cb, channels: channels}
	d := &otoDriver{
		ctx:        ctx,
		reader:     reader,
		sampleRate: sampleRate,
		channels:   channels,
	}
	d.player = ctx.NewPlayer(reader)
	return d, nil
}

func (d *otoDriver) SampleRate() float64 { return d.sampleRate }
func (d *otoDriver) ChannelCount() int   { return d.channels }

func (d *otoDriver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if !d.started {
		d.player.Play()
		d.started = true
	}
	return nil
}

func (d *otoDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.started {
		d.player.Pause()
		d.started = false
	}
	return nil
}

// Suspend pauses the stream without tearing it down.
func (d *otoDriver) Suspend() error { return d.Stop() }

// Resume restarts a suspended stream.
func (d *otoDriver) Resume() error { return d.Start() }

func (d *otoDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.started = false
	if err := d.player.Close(); err != nil {
		return fmt.Errorf("device: close player: %w", err)
	}
	return nil
}

// callbackReader adapts the render callback to the io.Reader oto pulls from.
type callbackReader struct {
	cb       RenderCallback
	channels int
	frames   []float32
}

func (r *callbackReader) Read(p []byte) (int, error) {
	sampleCount := len(p) / 4
	frameCount := sampleCount / r.channels
	if frameCount == 0 {
		return 0, nil
	}
	need := frameCount * r.channels
	if cap(r.frames) < need {
		r.frames = make([]float32, need)
	}
	frames := r.frames[:need]

	r.cb(frames, frameCount)

	for i, v := range frames {
		bits := math.Float32bits(v)
		p[4*i] = byte(bits)
		p[4*i+1] = byte(bits >> 8)
		p[4*i+2] = byte(bits >> 16)
		p[4*i+3] = byte(bits >> 24)
	}
	return need * 4, nil
}
