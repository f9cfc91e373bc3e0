// Package engine implements the audio graph core: nodes, parameters, the
// graph manager, and the realtime and offline contexts.
//
// A context owns a destination node and a graph manager. The audio thread
// (device callback or the offline render loop) pulls fixed-size render
// quanta through the graph bottom-up from the destination; control threads
// mutate topology and parameters only through SPSC channels drained at
// block boundaries.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-audio/device"
	"github.com/cwbudde/algo-audio/dsp/wavetable"
	"github.com/cwbudde/algo-audio/events"
)

// State is the context lifecycle state. Closed is terminal.
type State int32

const (
	StateSuspended State = iota
	StateRunning
	StateClosed
)

// String returns the host-facing state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "suspended"
	}
}

// Closed is a shorthand used in state checks.
const Closed = StateClosed

// contextCore is the state shared by realtime and offline contexts.
type contextCore struct {
	sampleRate   float64
	channelCount int

	state atomic.Int32

	// frame is the audio-thread sample clock; currentFrame mirrors it for
	// host reads.
	frame        uint64
	currentFrame atomic.Uint64
	blockIndex   uint64

	graph  *graphManager
	events *events.Registry
	log    *slog.Logger

	wavesMu sync.Mutex
	waves   map[wavetable.Shape]*wavetable.PeriodicWave
}

func newContextCore(sampleRate float64, channelCount int, log *slog.Logger) *contextCore {
	if log == nil {
		log = slog.Default()
	}
	c := &contextCore{
		sampleRate:   sampleRate,
		channelCount: channelCount,
		graph:        newGraphManager(log),
		events:       events.NewRegistry(log),
		log:          log,
		waves:        make(map[wavetable.Shape]*wavetable.PeriodicWave),
	}
	c.state.Store(int32(StateSuspended))
	return c
}

// State returns the context lifecycle state.
func (c *contextCore) State() State { return State(c.state.Load()) }

// SampleRate returns the context sample rate in Hz.
func (c *contextCore) SampleRate() float64 { return c.sampleRate }

// CurrentSampleFrame returns the sample-frame clock.
func (c *contextCore) CurrentSampleFrame() uint64 { return c.currentFrame.Load() }

// CurrentTime returns the clock in seconds: currentFrame / sampleRate.
func (c *contextCore) CurrentTime() float64 {
	return float64(c.currentFrame.Load()) / c.sampleRate
}

// audioTime returns the block-start time as seen by the audio thread.
func (c *contextCore) audioTime() float64 {
	return float64(c.frame) / c.sampleRate
}

// basicWave returns the lazily built, cached periodic wave for a built-in
// oscillator shape.
func (c *contextCore) basicWave(shape wavetable.Shape) *wavetable.PeriodicWave {
	c.wavesMu.Lock()
	defer c.wavesMu.Unlock()
	if w, ok := c.waves[shape]; ok {
		return w
	}
	w, err := wavetable.New(shape, c.sampleRate)
	if err != nil {
		c.log.Error("periodic wave build failed", "shape", shape.String(), "err", err)
		return nil
	}
	c.waves[shape] = w
	return w
}

// Events returns the context's event-handler registry.
func (c *contextCore) Events() *events.Registry { return c.events }

// Option configures context construction.
type Option func(*contextConfig)

// DriverFactory opens a platform output stream; overridable for tests and
// alternative backends.
type DriverFactory func(sampleRate float64, channels int, cb device.RenderCallback) (device.Driver, error)

type contextConfig struct {
	sampleRate   float64
	channelCount int
	log          *slog.Logger
	factory      DriverFactory
}

func defaultContextConfig() contextConfig {
	return contextConfig{
		sampleRate:   44100,
		channelCount: 2,
		factory:      device.Open,
	}
}

// WithSampleRate sets the context sample rate.
func WithSampleRate(sampleRate float64) Option {
	return func(cfg *contextConfig) {
		if sampleRate > 0 {
			cfg.sampleRate = sampleRate
		}
	}
}

// WithChannelCount sets the destination channel count.
func WithChannelCount(channels int) Option {
	return func(cfg *contextConfig) {
		if channels > 0 {
			cfg.channelCount = channels
		}
	}
}

// WithLogger sets the structured logger used off the audio thread.
func WithLogger(log *slog.Logger) Option {
	return func(cfg *contextConfig) {
		cfg.log = log
	}
}

// WithDriverFactory overrides how the platform output stream is opened.
func WithDriverFactory(factory DriverFactory) Option {
	return func(cfg *contextConfig) {
		if factory != nil {
			cfg.factory = factory
		}
	}
}

// Context is the realtime audio context: a graph pulled by the platform
// output device.
type Context struct {
	*contextCore

	dest    *DestinationNode
	driver  device.Driver
	factory DriverFactory
}

// NewContext creates a realtime context and opens its output stream. The
// context starts suspended; call Resume to start rendering.
func NewContext(opts ...Option) (*Context, error) {
	cfg := defaultContextConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.channelCount > maxDeviceChannels {
		return nil, fmt.Errorf("%w: channel count %d", ErrInvalidArgument, cfg.channelCount)
	}

	core := newContextCore(cfg.sampleRate, cfg.channelCount, cfg.log)
	ctx := &Context{contextCore: core, factory: cfg.factory}
	ctx.dest = newDestinationNode(core)

	driver, err := cfg.factory(cfg.sampleRate, cfg.channelCount, ctx.render)
	if err != nil {
		core.events.Close()
		core.graph.cleanup()
		return nil, fmt.Errorf("engine: open device: %w", err)
	}
	ctx.driver = driver
	return ctx, nil
}

const maxDeviceChannels = 6

// Destination returns the context's destination node.
func (c *Context) Destination() *DestinationNode { return c.dest }

// render is the device callback.
func (c *Context) render(out []float32, frames int) {
	if c.State() != StateRunning {
		clear(out)
		return
	}
	c.dest.renderAudio(out, frames)
}

// Resume starts (or restarts) rendering.
func (c *Context) Resume() error {
	switch c.State() {
	case StateClosed:
		return fmt.Errorf("%w: context closed", ErrInvalidState)
	case StateRunning:
		return nil
	}
	if err := c.driver.Resume(); err != nil {
		return fmt.Errorf("engine: resume device: %w", err)
	}
	c.state.Store(int32(StateRunning))
	c.events.Emit(events.SystemStateChanged, events.Body{"state": StateRunning.String()})
	return nil
}

// Suspend pauses rendering, keeping the graph intact.
func (c *Context) Suspend() error {
	switch c.State() {
	case StateClosed:
		return fmt.Errorf("%w: context closed", ErrInvalidState)
	case StateSuspended:
		return nil
	}
	if err := c.driver.Suspend(); err != nil {
		return fmt.Errorf("engine: suspend device: %w", err)
	}
	c.state.Store(int32(StateSuspended))
	c.events.Emit(events.SystemStateChanged, events.Body{"state": StateSuspended.String()})
	return nil
}

// RecoverDevice handles a platform driver failure: the broken stream is
// cleaned up and reopened. When reopening fails the context transitions to
// Suspended and an error event is emitted for host handlers.
func (c *Context) RecoverDevice(cause error) error {
	if c.State() == StateClosed {
		return fmt.Errorf("%w: context closed", ErrInvalidState)
	}
	c.log.Warn("audio device failed, reopening", "err", cause)
	_ = c.driver.Close()

	driver, err := c.factory(c.sampleRate, c.channelCount, c.render)
	if err != nil {
		c.state.Store(int32(StateSuspended))
		body := events.Body{"message": err.Error()}
		if cause != nil {
			body["cause"] = cause.Error()
		}
		c.events.Emit(events.AudioError, body)
		return fmt.Errorf("engine: reopen device: %w", err)
	}
	c.driver = driver
	if c.State() == StateRunning {
		return c.driver.Start()
	}
	return nil
}

// Close stops the device, tears the graph down and releases every
// registered node. Terminal.
func (c *Context) Close() error {
	if c.State() == StateClosed {
		return nil
	}
	c.state.Store(int32(StateClosed))
	err := c.driver.Close()
	// No further render callbacks arrive after Close; the graph teardown
	// may run on this thread.
	c.graph.cleanup()
	c.events.Close()
	if err != nil {
		return fmt.Errorf("engine: close device: %w", err)
	}
	return nil
}
