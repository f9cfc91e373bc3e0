package engine

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-audio/audio"
)

// DelayOptions configure CreateDelay. Nil means delay 0, max delay 1 s.
type DelayOptions struct {
	NodeOptions
	DelayTime float32
	// MaxDelayTime bounds the delay ring; 0 means 1 second.
	MaxDelayTime float64
}

// DelayNode delays its input by the k-rate delayTime parameter through a
// per-channel ring. It requires tail processing: after the last live input
// disappears it keeps emitting for delayTime worth of frames.
type DelayNode struct {
	baseNode

	delayTime *Param
	maxDelay  float64

	lines    [][]float32
	writePos int
	lineLen  int

	tailRemaining int
}

// CreateDelay returns a delay node.
func (c *contextCore) CreateDelay(opts *DelayOptions) (*DelayNode, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &DelayOptions{}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	maxDelay := opts.MaxDelayTime
	if maxDelay == 0 {
		maxDelay = 1
	}
	if maxDelay < 0 || maxDelay > maxDelaySeconds {
		return nil, fmt.Errorf("%w: max delay %v s", ErrInvalidArgument, maxDelay)
	}
	if float64(opts.DelayTime) > maxDelay {
		return nil, fmt.Errorf("%w: delay %v exceeds max %v", ErrInvalidArgument, opts.DelayTime, maxDelay)
	}

	n := &DelayNode{maxDelay: maxDelay}
	n.init(c, n, opts.channelCount(2), opts.ChannelCountMode, opts.ChannelInterpretation)
	n.requiresTail = true
	n.delayTime = n.ownParam(newParam(c, opts.DelayTime, 0, float32(maxDelay)))
	n.lineLen = int(math.Ceil(maxDelay*c.sampleRate)) + 1
	c.registerProcessing(n)
	return n, nil
}

const maxDelaySeconds = 180

// DelayTime returns the delay parameter in seconds.
func (n *DelayNode) DelayTime() *Param { return n.delayTime }

// onInputDisabled starts the tail instead of disabling immediately.
func (n *DelayNode) onInputDisabled() {
	n.enabledInputCount--
	if n.enabledInputCount <= 0 {
		delay := float64(n.delayTime.Value())
		n.tailRemaining = int(math.Round(delay * n.ctx.sampleRate))
		if n.tailRemaining <= 0 {
			n.disable()
		}
	}
}

func (n *DelayNode) ensureLines(channels int) {
	if len(n.lines) >= channels {
		return
	}
	for len(n.lines) < channels {
		n.lines = append(n.lines, make([]float32, n.lineLen))
	}
}

func (n *DelayNode) processNode(processing *audio.Buffer, frames int) *audio.Buffer {
	delay := float64(n.delayTime.ProcessKRate(frames, n.ctx.audioTime()))
	if delay < 0 {
		delay = 0
	}
	if delay > n.maxDelay {
		delay = n.maxDelay
	}
	delayFrames := int(math.Round(delay * n.ctx.sampleRate))

	channels := processing.ChannelCount()
	n.ensureLines(channels)

	writePos := n.writePos
	for ch := range channels {
		line := n.lines[ch]
		data := processing.Channel(ch)
		w := writePos
		for i := range frames {
			line[w] = data[i]
			r := w - delayFrames
			if r < 0 {
				r += n.lineLen
			}
			data[i] = line[r]
			w++
			if w == n.lineLen {
				w = 0
			}
		}
		if ch == channels-1 {
			writePos = w
		}
	}
	n.writePos = writePos

	if n.enabledInputCount <= 0 && n.tailRemaining > 0 {
		n.tailRemaining -= frames
		if n.tailRemaining <= 0 {
			n.disable()
		}
	}

	return processing
}
