package engine

import (
	"math"

	"github.com/cwbudde/algo-audio/audio"
)

// GainOptions configure CreateGain. Nil means gain 1, stereo.
type GainOptions struct {
	NodeOptions
	Gain float32
}

// GainNode multiplies its input by the a-rate gain parameter in place.
type GainNode struct {
	baseNode
	gain *Param
}

// CreateGain returns a gain node.
func (c *contextCore) CreateGain(opts *GainOptions) (*GainNode, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &GainOptions{Gain: 1}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	n := &GainNode{}
	n.init(c, n, opts.channelCount(2), opts.ChannelCountMode, opts.ChannelInterpretation)
	n.gain = n.ownParam(newParam(c, opts.Gain, -maxGain, maxGain))
	c.registerProcessing(n)
	return n, nil
}

const maxGain = float32(math.MaxFloat32)

// Gain returns the gain parameter.
func (n *GainNode) Gain() *Param { return n.gain }

func (n *GainNode) processNode(processing *audio.Buffer, frames int) *audio.Buffer {
	values := n.gain.ProcessARate(frames, n.ctx.audioTime()).Channel(0)
	for ch := range processing.ChannelCount() {
		data := processing.Channel(ch)
		for i := range frames {
			data[i] *= values[i]
		}
	}
	return processing
}
