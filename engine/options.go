package engine

import (
	"fmt"

	"github.com/cwbudde/algo-audio/audio"
)

// NodeOptions carries the channel configuration common to all nodes.
// The zero value means stereo, Max, Speakers.
type NodeOptions struct {
	ChannelCount          int
	ChannelCountMode      ChannelCountMode
	ChannelInterpretation audio.Interpretation
}

func (o NodeOptions) channelCount(fallback int) int {
	if o.ChannelCount > 0 {
		return o.ChannelCount
	}
	return fallback
}

func (o NodeOptions) validate() error {
	if o.ChannelCount < 0 || o.ChannelCount > audio.MaxChannels {
		return fmt.Errorf("%w: channel count %d", ErrInvalidArgument, o.ChannelCount)
	}
	return nil
}

// registerProcessing wires a processing node into the graph registry.
func (c *contextCore) registerProcessing(n Node) {
	n.base().handle = n
	c.graph.queueAddProcessing(n)
}

// registerSource wires a source node into the graph registry.
func (c *contextCore) registerSource(n scheduledSourceHandle) {
	n.base().handle = n
	c.graph.queueAddSource(n)
}

func (c *contextCore) requireOpen() error {
	if c.State() == StateClosed {
		return fmt.Errorf("%w: context closed", ErrInvalidState)
	}
	return nil
}
