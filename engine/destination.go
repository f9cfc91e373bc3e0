package engine

import (
	"github.com/cwbudde/algo-audio/audio"
)

// DestinationNode is the graph sink. The device callback (or the offline
// render loop) drives it; it pulls the input chain one render quantum at a
// time, normalises, and interleaves into the output stream.
type DestinationNode struct {
	baseNode

	quantum    *audio.Buffer
	pendingPos int
	pendingLen int
}

func newDestinationNode(ctx *contextCore) *DestinationNode {
	d := &DestinationNode{}
	d.init(ctx, d, ctx.channelCount, Explicit, audio.Speakers)
	d.handle = d
	d.quantum, _ = audio.NewBuffer(ctx.channelCount, RenderQuantum, ctx.sampleRate)
	return d
}

// Connect is rejected: the destination has no output.
func (d *DestinationNode) Connect(Node) error {
	return ErrInvalidState
}

// ConnectParam is rejected: the destination has no output.
func (d *DestinationNode) ConnectParam(*Param) error {
	return ErrInvalidState
}

// processNode is never reached through the pull path; renderQuantum drives
// the destination directly.
func (d *DestinationNode) processNode(processing *audio.Buffer, _ int) *audio.Buffer {
	return processing
}

// renderQuantum pulls one block through the graph into the quantum buffer,
// then normalises: clipped signals are attenuated by the peak, undersized
// signals are left untouched.
func (d *DestinationNode) renderQuantum() *audio.Buffer {
	d.ctx.graph.preProcessGraph()

	buf := d.pullInputs(RenderQuantum, true)
	d.quantum.Zero()
	d.quantum.Sum(buf, d.interp)

	if peak := d.quantum.MaxAbs(); peak > 1 {
		d.quantum.Scale(1 / peak)
	}

	d.ctx.frame += RenderQuantum
	d.ctx.blockIndex++
	d.ctx.currentFrame.Store(d.ctx.frame)

	return d.quantum
}

// renderAudio fills out with frames interleaved frames, rendering
// ceil(frames/quantum) quanta and carrying any surplus into the next call.
func (d *DestinationNode) renderAudio(out []float32, frames int) {
	filled := 0
	for filled < frames {
		if d.pendingLen == 0 {
			d.renderQuantum()
			d.pendingPos = 0
			d.pendingLen = RenderQuantum
		}
		n := min(d.pendingLen, frames-filled)
		d.quantum.InterleaveInto(out, filled, d.pendingPos, n)
		d.pendingPos += n
		d.pendingLen -= n
		filled += n
	}
}
