package engine

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-audio/audio"
)

// RenderQuantum is the fixed block size in frames. Every node renders in
// multiples of this quantum.
const RenderQuantum = 128

// ChannelCountMode selects how input channel counts combine with the node's
// configured channel count.
type ChannelCountMode int

const (
	// Max processes at the larger of the input and configured counts.
	Max ChannelCountMode = iota
	// ClampedMax processes at the input count clamped to the configured
	// count.
	ClampedMax
	// Explicit always processes at the configured count.
	Explicit
)

// ParseChannelCountMode resolves a host-facing mode string.
func ParseChannelCountMode(s string) (ChannelCountMode, error) {
	switch s {
	case "max":
		return Max, nil
	case "clamped-max":
		return ClampedMax, nil
	case "explicit":
		return Explicit, nil
	default:
		return 0, fmt.Errorf("%w: channel count mode %q", ErrInvalidArgument, s)
	}
}

// String returns the host-facing mode name.
func (m ChannelCountMode) String() string {
	switch m {
	case ClampedMax:
		return "clamped-max"
	case Explicit:
		return "explicit"
	default:
		return "max"
	}
}

// Node is the host-facing handle shared by every node kind.
type Node interface {
	// Connect routes this node's output into dst's input. The change takes
	// effect at the start of the next render block.
	Connect(dst Node) error
	// ConnectParam routes this node's output into a parameter as a
	// modulation source.
	ConnectParam(p *Param) error
	// Disconnect removes the routes to the given targets, or every route
	// when called without arguments.
	Disconnect(targets ...Node) error
	// Release tells the engine the host is done with this handle; the node
	// is destroyed off the audio thread once the graph no longer needs it.
	Release()

	ChannelCount() int
	ChannelCountMode() ChannelCountMode
	ChannelInterpretation() audio.Interpretation

	base() *baseNode
}

// processor renders one block given the summed input buffer. The node may
// write in place and return processing, or return its own internal buffer.
type processor interface {
	processNode(processing *audio.Buffer, frames int) *audio.Buffer
}

// inputDisabledHandler lets tail-processing nodes intercept the disable
// cascade instead of going silent immediately.
type inputDisabledHandler interface {
	onInputDisabled()
}

const neverRendered = math.MaxUint64

// baseNode carries the graph bookkeeping shared by all nodes. All of its
// mutable state is owned by the audio thread; control threads reach it only
// through graph-manager events and atomics.
type baseNode struct {
	ctx  *contextCore
	self processor

	channelCount int
	mode         ChannelCountMode
	interp       audio.Interpretation

	inputNodes   map[*baseNode]struct{} // non-owning back references
	outputNodes  map[Node]struct{}      // owning forward references
	outputParams map[*Param]struct{}

	enabledInputCount int
	enabled           bool
	requiresTail      bool

	lastRenderedBlock uint64
	lastResult        *audio.Buffer

	// Per-channel-count processing buffers, created when a count is first
	// needed (topology changes only) and reused every block after.
	procBufs [audio.MaxChannels + 1]*audio.Buffer

	inputScratch []*audio.Buffer

	// ownedParams are the node's own parameters, released with the node.
	ownedParams []*Param

	handle   Node
	released releaseFlag
}

func (n *baseNode) init(ctx *contextCore, self processor, channelCount int, mode ChannelCountMode, interp audio.Interpretation) {
	n.ctx = ctx
	n.self = self
	n.channelCount = channelCount
	n.mode = mode
	n.interp = interp
	n.inputNodes = make(map[*baseNode]struct{})
	n.outputNodes = make(map[Node]struct{})
	n.outputParams = make(map[*Param]struct{})
	n.enabled = true
	n.lastRenderedBlock = neverRendered
	n.inputScratch = make([]*audio.Buffer, 0, 4)
}

func (n *baseNode) base() *baseNode { return n }

// ChannelCount returns the configured channel count.
func (n *baseNode) ChannelCount() int { return n.channelCount }

// ChannelCountMode returns the configured count mode.
func (n *baseNode) ChannelCountMode() ChannelCountMode { return n.mode }

// ChannelInterpretation returns the configured mixing interpretation.
func (n *baseNode) ChannelInterpretation() audio.Interpretation { return n.interp }

// Release marks the host handle as dropped. The graph manager destroys the
// node (and its parameters) once its destructibility predicate holds.
func (n *baseNode) Release() {
	n.released.set()
	for _, p := range n.ownedParams {
		p.Release()
	}
}

// ownParam ties a parameter's lifetime to the node.
func (n *baseNode) ownParam(p *Param) *Param {
	n.ownedParams = append(n.ownedParams, p)
	return p
}

func (n *baseNode) isReleased() bool { return n.released.get() }

// Connect queues a node-to-node connection.
func (n *baseNode) Connect(dst Node) error {
	if n.ctx.State() == Closed {
		return fmt.Errorf("%w: context closed", ErrInvalidState)
	}
	if dst == nil {
		return fmt.Errorf("%w: nil destination", ErrInvalidArgument)
	}
	return n.ctx.graph.queueConnect(n.owner(), dst)
}

// ConnectParam queues a node-to-parameter modulation connection.
func (n *baseNode) ConnectParam(p *Param) error {
	if n.ctx.State() == Closed {
		return fmt.Errorf("%w: context closed", ErrInvalidState)
	}
	if p == nil {
		return fmt.Errorf("%w: nil parameter", ErrInvalidArgument)
	}
	return n.ctx.graph.queueConnectParam(n.owner(), p)
}

// DisconnectParam queues removal of a modulation connection.
func (n *baseNode) DisconnectParam(p *Param) error {
	if n.ctx.State() == Closed {
		return fmt.Errorf("%w: context closed", ErrInvalidState)
	}
	if p == nil {
		return fmt.Errorf("%w: nil parameter", ErrInvalidArgument)
	}
	return n.ctx.graph.queueDisconnectParam(n.owner(), p)
}

// Disconnect queues removal of the given connections (all when empty).
func (n *baseNode) Disconnect(targets ...Node) error {
	if n.ctx.State() == Closed {
		return fmt.Errorf("%w: context closed", ErrInvalidState)
	}
	if len(targets) == 0 {
		return n.ctx.graph.queueDisconnectAll(n.owner())
	}
	for _, dst := range targets {
		if dst == nil {
			return fmt.Errorf("%w: nil disconnect target", ErrInvalidArgument)
		}
		if err := n.ctx.graph.queueDisconnect(n.owner(), dst); err != nil {
			return err
		}
	}
	return nil
}

// owner returns the public handle wrapping this base. Set once at
// construction, before the node is visible to the graph.
func (n *baseNode) owner() Node { return n.handle }

// --- audio-thread side -----------------------------------------------------

// connectNode wires from -> n. Audio thread only.
func (n *baseNode) connectNode(from *baseNode) {
	from.outputNodes[n.owner()] = struct{}{}
	n.inputNodes[from] = struct{}{}
	if from.enabled {
		n.onInputEnabled()
	}
}

// disconnectNode removes the from -> n route. Audio thread only.
func (n *baseNode) disconnectNode(from *baseNode) {
	if _, ok := n.inputNodes[from]; !ok {
		return
	}
	delete(n.inputNodes, from)
	delete(from.outputNodes, n.owner())
	if from.enabled {
		n.onInputDisabledDispatch()
	}
}

func (n *baseNode) onInputEnabled() {
	n.enabledInputCount++
	if !n.enabled && n.enabledInputCount > 0 {
		n.enable()
	}
}

// onInputDisabledDispatch routes through the node's own tail handling when
// it has one.
func (n *baseNode) onInputDisabledDispatch() {
	if h, ok := n.self.(inputDisabledHandler); ok {
		h.onInputDisabled()
		return
	}
	n.onInputDisabled()
}

func (n *baseNode) onInputDisabled() {
	n.enabledInputCount--
	if n.enabled && n.enabledInputCount <= 0 && !n.requiresTail {
		n.disable()
	}
}

// enable marks the node live and cascades to its outputs.
func (n *baseNode) enable() {
	if n.enabled {
		return
	}
	n.enabled = true
	for out := range n.outputNodes {
		out.base().onInputEnabled()
	}
}

// disable silences the node and cascades to its outputs.
func (n *baseNode) disable() {
	if !n.enabled {
		return
	}
	n.enabled = false
	for out := range n.outputNodes {
		out.base().onInputDisabledDispatch()
	}
}

func (n *baseNode) isEnabled() bool { return n.enabled }

// processingBuffer returns the cached buffer for the given channel count.
func (n *baseNode) processingBuffer(channels int) *audio.Buffer {
	if channels < 1 {
		channels = 1
	}
	if channels > audio.MaxChannels {
		channels = audio.MaxChannels
	}
	if n.procBufs[channels] == nil {
		buf, err := audio.NewBuffer(channels, RenderQuantum, n.ctx.sampleRate)
		if err != nil {
			return nil
		}
		n.procBufs[channels] = buf
	}
	return n.procBufs[channels]
}

// processAudio pulls this node for the current block: memo check, disabled
// short-circuit, input pull + channel adaptation + summing, then the node's
// own processNode.
func (n *baseNode) processAudio(frames int, checkMemo bool) *audio.Buffer {
	if checkMemo && n.lastRenderedBlock == n.ctx.blockIndex && n.lastResult != nil {
		return n.lastResult
	}

	if !n.enabled {
		out := n.processingBuffer(n.channelCount)
		out.Zero()
		return out
	}

	processing := n.pullInputs(frames, checkMemo)

	result := n.self.processNode(processing, frames)
	if result == nil {
		processing.Zero()
		result = processing
	}

	n.lastRenderedBlock = n.ctx.blockIndex
	n.lastResult = result
	return result
}

// pullInputs renders every enabled input, adapts channel counts and sums
// them into one processing buffer.
func (n *baseNode) pullInputs(frames int, checkMemo bool) *audio.Buffer {
	n.inputScratch = n.inputScratch[:0]
	maxIn := 0
	for in := range n.inputNodes {
		if !in.isEnabled() {
			continue
		}
		buf := in.processAudio(frames, checkMemo)
		if buf == nil {
			continue
		}
		n.inputScratch = append(n.inputScratch, buf)
		if c := buf.ChannelCount(); c > maxIn {
			maxIn = c
		}
	}

	channels := n.adaptedChannelCount(maxIn)
	processing := n.processingBuffer(channels)
	processing.Zero()
	for _, buf := range n.inputScratch {
		processing.Sum(buf, n.interp)
	}
	return processing
}

// adaptedChannelCount applies the channel-count policy to the largest input
// count observed this block.
func (n *baseNode) adaptedChannelCount(maxIn int) int {
	switch n.mode {
	case Explicit:
		return n.channelCount
	case ClampedMax:
		if maxIn < 1 {
			return 1
		}
		return min(maxIn, n.channelCount)
	default: // Max
		return max(maxIn, n.channelCount)
	}
}

// cleanup drops graph references at context close. Audio thread only.
func (n *baseNode) cleanup() {
	clear(n.inputNodes)
	clear(n.outputNodes)
	clear(n.outputParams)
	n.enabledInputCount = 0
}
