package engine

import (
	"fmt"
	"time"

	"github.com/cwbudde/algo-audio/audio"
)

// WorkletCallback runs user processing on an external scripting runtime.
// inputs and outputs are per-channel sample slices of equal frame count; a
// non-nil error (or a timeout) zeroes the block.
type WorkletCallback func(inputs, outputs [][]float32, frames int, t float64) error

// defaultWorkletTimeout bounds how long the audio thread waits for the
// runtime before emitting silence.
const defaultWorkletTimeout = 3 * time.Millisecond

// WorkletOptions configure the worklet nodes.
type WorkletOptions struct {
	NodeOptions
	Callback WorkletCallback
	// Timeout overrides the per-block wait bound; 0 means the default.
	Timeout time.Duration
}

type workletRequest struct {
	inputs  [][]float32
	outputs [][]float32
	frames  int
	time    float64
}

// workletRunner executes callbacks on a dedicated goroutine standing in for
// the external runtime, answering one request at a time.
type workletRunner struct {
	cb      WorkletCallback
	req     chan workletRequest
	resp    chan error
	timeout time.Duration
	timer   *time.Timer
}

func newWorkletRunner(cb WorkletCallback, timeout time.Duration) *workletRunner {
	if timeout <= 0 {
		timeout = defaultWorkletTimeout
	}
	r := &workletRunner{
		cb:      cb,
		req:     make(chan workletRequest, 1),
		resp:    make(chan error, 1),
		timeout: timeout,
		timer:   time.NewTimer(timeout),
	}
	go func() {
		for q := range r.req {
			r.resp <- r.invoke(q)
		}
	}()
	return r
}

func (r *workletRunner) invoke(q workletRequest) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("engine: worklet panicked: %v", p)
		}
	}()
	return r.cb(q.inputs, q.outputs, q.frames, q.time)
}

// process runs one block synchronously with the timeout bound. Reports
// whether the callback completed successfully.
func (r *workletRunner) process(q workletRequest) bool {
	select {
	case r.req <- q:
	default:
		// A previous block is still being processed: give up immediately.
		return false
	}

	if !r.timer.Stop() {
		select {
		case <-r.timer.C:
		default:
		}
	}
	r.timer.Reset(r.timeout)

	select {
	case err := <-r.resp:
		return err == nil
	case <-r.timer.C:
		// The runtime overran its budget; a helper goroutine receives and
		// discards the late response.
		go func() { <-r.resp }()
		return false
	}
}

func (r *workletRunner) close() {
	close(r.req)
}

// WorkletProcessingNode hands each input block to the runtime callback and
// plays back what the callback writes to its outputs. Failures and
// timeouts produce silence.
type WorkletProcessingNode struct {
	baseNode

	runner *workletRunner
	out    *audio.Buffer

	inputSlices  [][]float32
	outputSlices [][]float32
}

// CreateWorkletProcessingNode returns a worklet-backed processing node.
func (c *contextCore) CreateWorkletProcessingNode(opts *WorkletOptions) (*WorkletProcessingNode, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if opts == nil || opts.Callback == nil {
		return nil, fmt.Errorf("%w: worklet needs a callback", ErrInvalidArgument)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	n := &WorkletProcessingNode{}
	channels := opts.channelCount(2)
	n.init(c, n, channels, opts.ChannelCountMode, opts.ChannelInterpretation)
	n.runner = newWorkletRunner(opts.Callback, opts.Timeout)
	n.out, _ = audio.NewBuffer(channels, RenderQuantum, c.sampleRate)
	n.inputSlices = make([][]float32, 0, channels)
	n.outputSlices = make([][]float32, 0, channels)
	c.registerProcessing(n)
	return n, nil
}

func (n *WorkletProcessingNode) processNode(processing *audio.Buffer, frames int) *audio.Buffer {
	channels := min(processing.ChannelCount(), n.out.ChannelCount())
	n.inputSlices = n.inputSlices[:0]
	n.outputSlices = n.outputSlices[:0]
	for ch := range channels {
		n.inputSlices = append(n.inputSlices, processing.Channel(ch)[:frames])
		n.outputSlices = append(n.outputSlices, n.out.Channel(ch)[:frames])
	}

	ok := n.runner.process(workletRequest{
		inputs:  n.inputSlices,
		outputs: n.outputSlices,
		frames:  frames,
		time:    n.ctx.audioTime(),
	})
	if !ok {
		n.out.Zero()
	}
	return n.out
}

// WorkletSourceNode generates audio from the runtime callback with no
// graph inputs.
type WorkletSourceNode struct {
	scheduledSource

	runner       *workletRunner
	outputSlices [][]float32
}

// CreateWorkletSourceNode returns a worklet-backed source node.
func (c *contextCore) CreateWorkletSourceNode(opts *WorkletOptions) (*WorkletSourceNode, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if opts == nil || opts.Callback == nil {
		return nil, fmt.Errorf("%w: worklet needs a callback", ErrInvalidArgument)
	}

	n := &WorkletSourceNode{}
	n.init(c, n, opts.channelCount(1), Max, audio.Speakers)
	n.runner = newWorkletRunner(opts.Callback, opts.Timeout)
	c.registerSource(n)
	return n, nil
}

func (n *WorkletSourceNode) processNode(processing *audio.Buffer, frames int) *audio.Buffer {
	start, end := n.updatePlaybackInfo(processing, frames)
	if !n.isPlayingOrStopping() || start >= end {
		processing.Zero()
		n.finishBlock()
		return processing
	}

	n.outputSlices = n.outputSlices[:0]
	for ch := range processing.ChannelCount() {
		n.outputSlices = append(n.outputSlices, processing.Channel(ch)[start:end])
	}
	ok := n.runner.process(workletRequest{
		outputs: n.outputSlices,
		frames:  end - start,
		time:    n.ctx.audioTime(),
	})
	if !ok {
		processing.ZeroRange(start, end)
	}

	n.finishBlock()
	return processing
}
