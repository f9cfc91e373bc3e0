package engine

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/algo-audio/audio"
	"github.com/cwbudde/algo-audio/spsc"
)

// connectionType tags a pending topology event.
type connectionType int

const (
	connectEvent connectionType = iota
	disconnectEvent
	disconnectAllEvent
	addEvent
)

// graphEvent is one pending topology mutation. Exactly one payload group is
// set, selected by the fields themselves.
type graphEvent struct {
	typ connectionType

	fromNode Node
	toNode   Node
	toParam  *Param

	addSource     scheduledSourceHandle
	addProcessing Node
	addParam      *Param
}

// scheduledSourceHandle is implemented by source-node handles so the sweep
// can apply the source destructibility predicate.
type scheduledSourceHandle interface {
	Node
	PlaybackState() PlaybackState
}

const topologyChannelCapacity = 1024

// graphManager mediates topology changes and deferred destruction.
//
// Control threads queue events; the audio thread drains them at the start of
// each render block (preProcessGraph) and sweeps the registration vectors
// for entries whose handles the host has released.
type graphManager struct {
	events *spsc.Channel[graphEvent]

	// Registration vectors, audio thread only.
	sourceNodes     []scheduledSourceHandle
	processingNodes []Node
	params          []*Param
	buffers         []*audio.Buffer

	nodeDestructor   *asyncDestructor[Node]
	paramDestructor  *asyncDestructor[*Param]
	bufferDestructor *asyncDestructor[*audio.Buffer]

	log *slog.Logger
}

func newGraphManager(log *slog.Logger) *graphManager {
	events, _ := spsc.New[graphEvent](topologyChannelCapacity, spsc.WaitOnFull, spsc.BusyLoop)
	return &graphManager{
		events:           events,
		nodeDestructor:   newAsyncDestructor[Node](log, "node"),
		paramDestructor:  newAsyncDestructor[*Param](log, "param"),
		bufferDestructor: newAsyncDestructor[*audio.Buffer](log, "buffer"),
		log:              log,
	}
}

func (g *graphManager) send(ev graphEvent) error {
	if !g.events.TrySend(ev) {
		return fmt.Errorf("%w: topology channel full", ErrResourceExhausted)
	}
	return nil
}

func (g *graphManager) queueConnect(from, to Node) error {
	return g.send(graphEvent{typ: connectEvent, fromNode: from, toNode: to})
}

func (g *graphManager) queueConnectParam(from Node, to *Param) error {
	return g.send(graphEvent{typ: connectEvent, fromNode: from, toParam: to})
}

func (g *graphManager) queueDisconnect(from, to Node) error {
	return g.send(graphEvent{typ: disconnectEvent, fromNode: from, toNode: to})
}

func (g *graphManager) queueDisconnectParam(from Node, to *Param) error {
	return g.send(graphEvent{typ: disconnectEvent, fromNode: from, toParam: to})
}

func (g *graphManager) queueDisconnectAll(from Node) error {
	return g.send(graphEvent{typ: disconnectAllEvent, fromNode: from})
}

func (g *graphManager) queueAddSource(n scheduledSourceHandle) {
	_ = g.send(graphEvent{typ: addEvent, addSource: n})
}

func (g *graphManager) queueAddProcessing(n Node) {
	_ = g.send(graphEvent{typ: addEvent, addProcessing: n})
}

func (g *graphManager) queueAddParam(p *Param) {
	_ = g.send(graphEvent{typ: addEvent, addParam: p})
}

// addBufferForDestruction registers a released sample buffer. Audio thread
// only (the buffer-source nodes swap buffers on the render path).
func (g *graphManager) addBufferForDestruction(buf *audio.Buffer) {
	g.buffers = append(g.buffers, buf)
}

// --- audio-thread side -----------------------------------------------------

// preProcessGraph drains pending topology events and sweeps released
// entries. Called at the start of every top-level render pull.
func (g *graphManager) preProcessGraph() {
	g.settlePendingEvents()
	g.sweepSources()
	g.sweepProcessing()
	g.sweepParams()
	g.sweepBuffers()
}

func (g *graphManager) settlePendingEvents() {
	var ev graphEvent
	for g.events.TryReceive(&ev) {
		switch ev.typ {
		case connectEvent:
			g.handleConnect(ev)
		case disconnectEvent:
			g.handleDisconnect(ev)
		case disconnectAllEvent:
			g.handleDisconnectAll(ev)
		case addEvent:
			g.handleAdd(ev)
		}
		ev = graphEvent{}
	}
}

func (g *graphManager) handleConnect(ev graphEvent) {
	from := ev.fromNode.base()
	switch {
	case ev.toNode != nil:
		ev.toNode.base().connectNode(from)
	case ev.toParam != nil:
		ev.toParam.connectInput(from)
	}
}

func (g *graphManager) handleDisconnect(ev graphEvent) {
	from := ev.fromNode.base()
	switch {
	case ev.toNode != nil:
		ev.toNode.base().disconnectNode(from)
	case ev.toParam != nil:
		ev.toParam.disconnectInput(from)
	}
}

func (g *graphManager) handleDisconnectAll(ev graphEvent) {
	from := ev.fromNode.base()
	for out := range from.outputNodes {
		out.base().disconnectNode(from)
	}
	for p := range from.outputParams {
		p.disconnectInput(from)
	}
}

func (g *graphManager) handleAdd(ev graphEvent) {
	switch {
	case ev.addSource != nil:
		g.sourceNodes = append(g.sourceNodes, ev.addSource)
	case ev.addProcessing != nil:
		g.processingNodes = append(g.processingNodes, ev.addProcessing)
	case ev.addParam != nil:
		g.params = append(g.params, ev.addParam)
	}
}

// sweepSources reclaims released source nodes that are unscheduled or
// finished.
func (g *graphManager) sweepSources() {
	for i := 0; i < len(g.sourceNodes); {
		n := g.sourceNodes[i]
		st := n.PlaybackState()
		if n.base().isReleased() && (st == Unscheduled || st == Finished) {
			if g.destroyNode(n) {
				last := len(g.sourceNodes) - 1
				g.sourceNodes[i] = g.sourceNodes[last]
				g.sourceNodes[last] = nil
				g.sourceNodes = g.sourceNodes[:last]
				continue
			}
		}
		i++
	}
}

// sweepProcessing reclaims released processing nodes; tail-processing nodes
// are retained until their tail logic has disabled them.
func (g *graphManager) sweepProcessing() {
	for i := 0; i < len(g.processingNodes); {
		n := g.processingNodes[i]
		b := n.base()
		destructible := b.isReleased()
		if b.requiresTail {
			destructible = destructible && !b.isEnabled()
		}
		if destructible {
			if g.destroyNode(n) {
				last := len(g.processingNodes) - 1
				g.processingNodes[i] = g.processingNodes[last]
				g.processingNodes[last] = nil
				g.processingNodes = g.processingNodes[:last]
				continue
			}
		}
		i++
	}
}

func (g *graphManager) sweepParams() {
	for i := 0; i < len(g.params); {
		p := g.params[i]
		if p.isReleased() && g.paramDestructor.trySend(p) {
			last := len(g.params) - 1
			g.params[i] = g.params[last]
			g.params[last] = nil
			g.params = g.params[:last]
			continue
		}
		i++
	}
}

func (g *graphManager) sweepBuffers() {
	for i := 0; i < len(g.buffers); {
		if g.bufferDestructor.trySend(g.buffers[i]) {
			last := len(g.buffers) - 1
			g.buffers[i] = g.buffers[last]
			g.buffers[last] = nil
			g.buffers = g.buffers[:last]
			continue
		}
		i++
	}
}

// destroyNode detaches the node from the graph and hands it to the
// destructor. Reports false when the destructor channel is full; the entry
// stays registered and is retried next block.
func (g *graphManager) destroyNode(n Node) bool {
	if !g.nodeDestructor.trySend(n) {
		return false
	}
	b := n.base()
	for out := range b.outputNodes {
		out.base().disconnectNode(b)
	}
	for p := range b.outputParams {
		p.disconnectInput(b)
	}
	for in := range b.inputNodes {
		delete(in.outputNodes, n)
		delete(b.inputNodes, in)
	}
	return true
}

// cleanup tears the whole graph down at context close. Audio rendering has
// stopped by the time this runs.
func (g *graphManager) cleanup() {
	for _, n := range g.sourceNodes {
		n.base().cleanup()
	}
	for _, n := range g.processingNodes {
		n.base().cleanup()
	}
	g.sourceNodes = nil
	g.processingNodes = nil
	g.params = nil
	g.buffers = nil

	g.nodeDestructor.close()
	g.paramDestructor.close()
	g.bufferDestructor.close()
}
