package engine

import (
	"fmt"
	"sync"

	"github.com/cwbudde/algo-audio/audio"
	"github.com/cwbudde/algo-audio/dsp/oversample"
)

// WaveShaperOptions configure CreateWaveShaper.
type WaveShaperOptions struct {
	NodeOptions
	Curve      []float32
	Oversample oversample.Factor
}

// WaveShaperNode applies a user-supplied distortion curve, optionally at
// 2x/4x oversampling. Curve updates are serialised against the audio thread
// by a try-lock: when the audio thread cannot acquire it, the block passes
// through unmodified.
type WaveShaperNode struct {
	baseNode

	mu     sync.Mutex
	curve  []float32
	factor oversample.Factor
	chains []*oversample.Chain
}

// CreateWaveShaper returns a waveshaper node.
func (c *contextCore) CreateWaveShaper(opts *WaveShaperOptions) (*WaveShaperNode, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &WaveShaperOptions{Oversample: oversample.None}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Oversample == 0 {
		opts.Oversample = oversample.None
	}

	n := &WaveShaperNode{factor: opts.Oversample}
	n.init(c, n, opts.channelCount(2), opts.ChannelCountMode, opts.ChannelInterpretation)
	c.registerProcessing(n)

	if opts.Curve != nil {
		if err := n.SetCurve(opts.Curve); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Curve returns a copy of the current curve.
func (n *WaveShaperNode) Curve() []float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]float32, len(n.curve))
	copy(out, n.curve)
	return out
}

// SetCurve replaces the shaping curve, preserving the configured oversample
// mode.
func (n *WaveShaperNode) SetCurve(curve []float32) error {
	if len(curve) < 2 {
		return fmt.Errorf("%w: curve needs at least 2 points, got %d", ErrInvalidArgument, len(curve))
	}
	copied := make([]float32, len(curve))
	copy(copied, curve)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.curve = copied
	return nil
}

// Oversample returns the oversampling factor.
func (n *WaveShaperNode) Oversample() oversample.Factor {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.factor
}

// SetOversample switches the oversampling factor, re-initialising the sinc
// chains immediately.
func (n *WaveShaperNode) SetOversample(factor oversample.Factor) error {
	switch factor {
	case oversample.None, oversample.Twice, oversample.Quadruple:
	default:
		return fmt.Errorf("%w: oversample factor %d", ErrInvalidArgument, factor)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.factor = factor
	n.chains = nil
	return nil
}

func (n *WaveShaperNode) ensureChains(channels int) {
	for len(n.chains) < channels {
		chain, err := oversample.NewChain(n.factor, RenderQuantum)
		if err != nil {
			n.chains = nil
			n.factor = oversample.None
			return
		}
		n.chains = append(n.chains, chain)
	}
}

func (n *WaveShaperNode) processNode(processing *audio.Buffer, frames int) *audio.Buffer {
	if !n.mu.TryLock() {
		// Contended with a curve update: pass the block through untouched.
		return processing
	}
	defer n.mu.Unlock()

	if len(n.curve) == 0 {
		return processing
	}

	channels := processing.ChannelCount()
	if n.factor != oversample.None {
		n.ensureChains(channels)
	}

	for ch := range channels {
		data := processing.Channel(ch)[:frames]
		if n.factor == oversample.None || len(n.chains) <= ch {
			shapeBlock(data, n.curve)
			continue
		}
		chain := n.chains[ch]
		up := chain.Upsample(data)
		shapeBlock(up, n.curve)
		chain.Downsample(up, data)
	}
	return processing
}

// shapeBlock looks each sample up in the curve with linear interpolation
// between neighbouring points. Input is clamped to [-1, 1].
func shapeBlock(data, curve []float32) {
	last := len(curve) - 1
	for i, x := range data {
		x = clamp32(x, -1, 1)
		pos := float32(last) * (x + 1) / 2
		k := int(pos)
		if k >= last {
			data[i] = curve[last]
			continue
		}
		frac := pos - float32(k)
		data[i] = curve[k] + frac*(curve[k+1]-curve[k])
	}
}
