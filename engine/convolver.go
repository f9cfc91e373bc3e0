package engine

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-audio/audio"
	"github.com/cwbudde/algo-audio/dsp/conv"
)

// Impulse-response normalisation constants, carried over from the original
// calibration against loudspeaker playback level.
const (
	convolverGainCalibration    = -58.0
	convolverMinPower           = 0.000125
	convolverWorkerCount        = 4
	convolverMaxImpulseChannels = 4
)

// ConvolverOptions configure CreateConvolver.
type ConvolverOptions struct {
	NodeOptions
	Buffer *audio.Buffer
	// DisableNormalization keeps the IR at unity scale.
	DisableNormalization bool
}

// convolverState is the immutable per-impulse-response state, swapped
// atomically when the host sets a new buffer.
type convolverState struct {
	convolvers   []*conv.Streaming
	intermediate *audio.Buffer
	scale        float32
	inputMap     []int
	outputMap    []int
}

// ConvolverNode convolves its input with an impulse response using
// partitioned FFT convolution, one convolver per IR channel dispatched on a
// fixed worker pool. It requires tail processing for the partition count.
type ConvolverNode struct {
	baseNode

	state     atomic.Pointer[convolverState]
	buffer    atomic.Pointer[audio.Buffer]
	normalize bool

	pool *workerPool
	out  *audio.Buffer

	signalledToStop   bool
	remainingSegments int
}

// CreateConvolver returns a convolver node.
func (c *contextCore) CreateConvolver(opts *ConvolverOptions) (*ConvolverNode, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &ConvolverOptions{}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	n := &ConvolverNode{normalize: !opts.DisableNormalization}
	n.init(c, n, 2, ClampedMax, opts.ChannelInterpretation)
	n.requiresTail = true
	n.pool = newWorkerPool(convolverWorkerCount)
	n.out, _ = audio.NewBuffer(2, RenderQuantum, c.sampleRate)
	c.registerProcessing(n)

	if opts.Buffer != nil {
		if err := n.SetBuffer(opts.Buffer); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Buffer returns the current impulse response.
func (n *ConvolverNode) Buffer() *audio.Buffer { return n.buffer.Load() }

// Normalize reports whether IR normalisation is enabled.
func (n *ConvolverNode) Normalize() bool { return n.normalize }

// SetBuffer installs a new impulse response. The prepared state is swapped
// in atomically; the audio thread picks it up at its next block.
func (n *ConvolverNode) SetBuffer(buf *audio.Buffer) error {
	if buf == nil {
		return fmt.Errorf("%w: nil impulse response", ErrInvalidArgument)
	}
	irChannels := buf.ChannelCount()
	if irChannels != 1 && irChannels != 2 && irChannels != convolverMaxImpulseChannels {
		return fmt.Errorf("%w: impulse response must have 1, 2 or 4 channels, got %d",
			ErrInvalidArgument, irChannels)
	}

	st := &convolverState{scale: 1}
	if n.normalize {
		st.scale = n.normalizationScale(buf)
	}

	// Mono IRs are replicated so the always-stereo input stays stereo.
	channels := irChannels
	if channels == 1 {
		channels = 2
	}
	st.convolvers = make([]*conv.Streaming, channels)
	for i := range st.convolvers {
		ir := buf.Channel(min(i, irChannels-1))
		cv, err := conv.NewStreaming(ir, RenderQuantum)
		if err != nil {
			return fmt.Errorf("engine: convolver setup: %w", err)
		}
		st.convolvers[i] = cv
	}

	switch channels {
	case 2:
		st.inputMap = []int{0, 1}
		st.outputMap = []int{0, 1}
	case 4:
		st.inputMap = []int{0, 0, 1, 1}
		st.outputMap = []int{0, 3, 2, 1}
	}

	st.intermediate, _ = audio.NewBuffer(channels, RenderQuantum, n.ctx.sampleRate)

	n.buffer.Store(buf)
	n.state.Store(st)
	return nil
}

// normalizationScale computes 1/max(rms, epsilon), calibrated to the
// reference playback level and the IR's sample rate.
func (n *ConvolverNode) normalizationScale(buf *audio.Buffer) float32 {
	power := 0.0
	for ch := range buf.ChannelCount() {
		for _, v := range buf.Channel(ch) {
			power += float64(v) * float64(v)
		}
	}
	power = math.Sqrt(power / float64(buf.ChannelCount()*buf.Length()))
	if power < convolverMinPower {
		power = convolverMinPower
	}

	// The calibration rate is the context rate the reference level was
	// measured at; an IR recorded at another rate is rescaled accordingly.
	scale := 1 / power
	scale *= math.Pow(10, convolverGainCalibration*0.05)
	scale *= n.ctx.sampleRate / buf.SampleRate()
	return float32(scale)
}

// onInputDisabled arms the tail countdown instead of disabling.
func (n *ConvolverNode) onInputDisabled() {
	n.enabledInputCount--
	if n.enabled && n.enabledInputCount <= 0 {
		n.signalledToStop = true
		if st := n.state.Load(); st != nil {
			n.remainingSegments = st.convolvers[0].SegmentCount()
		} else {
			n.remainingSegments = 0
		}
	}
}

func (n *ConvolverNode) processNode(processing *audio.Buffer, frames int) *audio.Buffer {
	st := n.state.Load()
	if st == nil {
		return processing
	}

	if n.signalledToStop {
		if n.remainingSegments > 0 {
			n.remainingSegments--
		} else {
			n.disable()
			n.signalledToStop = false
			processing.Zero()
			return processing
		}
	}

	n.performConvolution(st, processing, frames)

	n.out.Zero()
	n.out.Sum(st.intermediate, audio.Speakers)
	n.out.Scale(st.scale)
	return n.out
}

// performConvolution dispatches one convolver per IR channel on the pool and
// waits for the block to complete.
func (n *ConvolverNode) performConvolution(st *convolverState, processing *audio.Buffer, frames int) {
	mono := processing.ChannelCount() == 1
	for i := range st.convolvers {
		cv := st.convolvers[i]
		in := processing.Channel(0)
		out := st.intermediate.Channel(i)
		if !mono {
			in = processing.Channel(st.inputMap[i])
			out = st.intermediate.Channel(st.outputMap[i])
		}
		n.pool.schedule(func() {
			_ = cv.Process(in[:frames], out[:frames])
		})
	}
	n.pool.wait()
}

// workerPool is a fixed set of goroutines executing scheduled closures; the
// scheduler waits for the batch to drain before continuing.
type workerPool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

func newWorkerPool(workers int) *workerPool {
	p := &workerPool{tasks: make(chan func(), workers*4)}
	for range workers {
		go func() {
			for fn := range p.tasks {
				fn()
				p.wg.Done()
			}
		}()
	}
	return p
}

func (p *workerPool) schedule(fn func()) {
	p.wg.Add(1)
	p.tasks <- fn
}

func (p *workerPool) wait() {
	p.wg.Wait()
}
