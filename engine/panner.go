package engine

import (
	"math"

	"github.com/cwbudde/algo-audio/audio"
)

// StereoPannerOptions configure CreateStereoPanner. Nil means pan 0.
type StereoPannerOptions struct {
	NodeOptions
	Pan float32
}

// StereoPannerNode positions its input in the stereo field with equal-power
// gains. The output is always stereo.
type StereoPannerNode struct {
	baseNode

	pan *Param
	out *audio.Buffer
}

// CreateStereoPanner returns a stereo panner node.
func (c *contextCore) CreateStereoPanner(opts *StereoPannerOptions) (*StereoPannerNode, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &StereoPannerOptions{}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	n := &StereoPannerNode{}
	n.init(c, n, 2, ClampedMax, opts.ChannelInterpretation)
	n.pan = n.ownParam(newParam(c, opts.Pan, -1, 1))
	n.out, _ = audio.NewBuffer(2, RenderQuantum, c.sampleRate)
	c.registerProcessing(n)
	return n, nil
}

// Pan returns the pan parameter in [-1, 1].
func (n *StereoPannerNode) Pan() *Param { return n.pan }

func (n *StereoPannerNode) processNode(processing *audio.Buffer, frames int) *audio.Buffer {
	pans := n.pan.ProcessARate(frames, n.ctx.audioTime()).Channel(0)

	outL := n.out.Channel(audio.ChannelLeft)
	outR := n.out.Channel(audio.ChannelRight)

	if processing.ChannelCount() == 1 {
		in := processing.Channel(audio.ChannelMono)
		for i := range frames {
			pan := clamp32(pans[i], -1, 1)
			x := float64(pan+1) / 2
			angle := x * math.Pi / 2
			outL[i] = in[i] * float32(math.Cos(angle))
			outR[i] = in[i] * float32(math.Sin(angle))
		}
		return n.out
	}

	inL := processing.Channel(audio.ChannelLeft)
	inR := processing.Channel(audio.ChannelRight)
	for i := range frames {
		pan := clamp32(pans[i], -1, 1)
		x := float64(pan)
		if pan <= 0 {
			x = float64(pan) + 1
		}
		gainL := float32(math.Cos(x * math.Pi / 2))
		gainR := float32(math.Sin(x * math.Pi / 2))

		if pan <= 0 {
			outL[i] = inL[i] + inR[i]*gainL
			outR[i] = inR[i] * gainR
		} else {
			outL[i] = inL[i] * gainL
			outR[i] = inR[i] + inL[i]*gainR
		}
	}
	return n.out
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
