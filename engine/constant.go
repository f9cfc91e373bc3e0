package engine

import "github.com/cwbudde/algo-audio/audio"

// ConstantSourceOptions configure CreateConstantSource. Nil means offset 1.
type ConstantSourceOptions struct {
	Offset float32
}

// ConstantSourceNode emits the a-rate offset parameter on a mono output.
type ConstantSourceNode struct {
	scheduledSource
	offset *Param
}

// CreateConstantSource returns a constant source node.
func (c *contextCore) CreateConstantSource(opts *ConstantSourceOptions) (*ConstantSourceNode, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &ConstantSourceOptions{Offset: 1}
	}

	n := &ConstantSourceNode{}
	n.init(c, n, 1, Max, audio.Speakers)
	n.offset = n.ownParam(newParam(c, opts.Offset, -maxGain, maxGain))
	c.registerSource(n)
	return n, nil
}

// Offset returns the offset parameter.
func (n *ConstantSourceNode) Offset() *Param { return n.offset }

func (n *ConstantSourceNode) processNode(processing *audio.Buffer, frames int) *audio.Buffer {
	start, end := n.updatePlaybackInfo(processing, frames)
	if !n.isPlayingOrStopping() || start >= end {
		processing.Zero()
		n.finishBlock()
		return processing
	}

	t := n.ctx.audioTime() + float64(start)/n.ctx.sampleRate
	values := n.offset.ProcessARate(frames, t).Channel(0)
	for ch := range processing.ChannelCount() {
		data := processing.Channel(ch)
		for i := start; i < end; i++ {
			data[i] = values[i-start]
		}
	}

	n.finishBlock()
	return processing
}
