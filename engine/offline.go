package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cwbudde/algo-audio/audio"
	"github.com/cwbudde/algo-audio/events"
)

// OfflineContext renders the graph into an in-memory buffer at arbitrary
// speed instead of driving a platform device.
type OfflineContext struct {
	*contextCore

	dest   *DestinationNode
	result *audio.Buffer
	length int

	mu           sync.Mutex
	started      bool
	suspendAt    []suspendPoint
	resumeCh     chan struct{}
	renderDone   chan *audio.Buffer
}

type suspendPoint struct {
	frame uint64
	fn    func()
}

// NewOfflineContext creates an offline context rendering length frames of
// the given channel count at sampleRate.
func NewOfflineContext(channels, length int, sampleRate float64) (*OfflineContext, error) {
	if channels <= 0 || channels > maxDeviceChannels {
		return nil, fmt.Errorf("%w: channel count %d", ErrInvalidArgument, channels)
	}
	if length <= 0 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidArgument, length)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %f", ErrInvalidArgument, sampleRate)
	}

	core := newContextCore(sampleRate, channels, nil)
	ctx := &OfflineContext{contextCore: core, length: length}
	ctx.dest = newDestinationNode(core)
	result, err := audio.NewBuffer(channels, length, sampleRate)
	if err != nil {
		return nil, err
	}
	ctx.result = result
	ctx.resumeCh = make(chan struct{}, 1)
	ctx.renderDone = make(chan *audio.Buffer, 1)
	return ctx, nil
}

// Destination returns the offline destination node.
func (c *OfflineContext) Destination() *DestinationNode { return c.dest }

// Length returns the total frame count to render.
func (c *OfflineContext) Length() int { return c.length }

// SuspendAt schedules a rendering pause at time when (quantised to the
// render quantum). fn runs on the render goroutine at the pause point; call
// Resume to continue. Must be called before StartRendering reaches when.
func (c *OfflineContext) SuspendAt(when float64, fn func()) error {
	if when < 0 {
		return fmt.Errorf("%w: suspend time %v", ErrInvalidArgument, when)
	}
	frame := uint64(when*c.sampleRate) / RenderQuantum * RenderQuantum
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started && frame <= c.CurrentSampleFrame() {
		return fmt.Errorf("%w: suspend point already passed", ErrInvalidState)
	}
	c.suspendAt = append(c.suspendAt, suspendPoint{frame: frame, fn: fn})
	sort.Slice(c.suspendAt, func(i, j int) bool { return c.suspendAt[i].frame < c.suspendAt[j].frame })
	return nil
}

// Resume continues rendering after a suspension point.
func (c *OfflineContext) Resume() error {
	if c.State() == StateClosed {
		return fmt.Errorf("%w: context closed", ErrInvalidState)
	}
	select {
	case c.resumeCh <- struct{}{}:
	default:
	}
	return nil
}

// StartRendering renders the whole graph on a background goroutine and
// returns a channel that delivers the finished buffer. Rendering honours
// suspension points scheduled with SuspendAt.
func (c *OfflineContext) StartRendering() (<-chan *audio.Buffer, error) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: rendering already started", ErrInvalidState)
	}
	c.started = true
	c.mu.Unlock()

	c.state.Store(int32(StateRunning))

	go func() {
		rendered := 0
		for rendered < c.length {
			c.checkSuspend()

			quantum := c.dest.renderQuantum()
			frames := min(RenderQuantum, c.length-rendered)
			c.result.CopyFrom(quantum, 0, rendered, frames)
			rendered += frames
		}

		c.state.Store(int32(StateClosed))
		c.graph.cleanup()
		c.events.Emit(events.AudioReady, events.Body{"length": c.length})
		c.renderDone <- c.result
		c.events.Close()
	}()

	return c.renderDone, nil
}

// checkSuspend pauses the render goroutine when the next suspension point
// has been reached.
func (c *OfflineContext) checkSuspend() {
	c.mu.Lock()
	var fn func()
	hit := false
	if len(c.suspendAt) > 0 && c.suspendAt[0].frame <= uint64(c.frame) {
		fn = c.suspendAt[0].fn
		c.suspendAt = c.suspendAt[1:]
		hit = true
	}
	c.mu.Unlock()

	if !hit {
		return
	}
	c.state.Store(int32(StateSuspended))
	if fn != nil {
		fn()
	}
	<-c.resumeCh
	c.state.Store(int32(StateRunning))
}
