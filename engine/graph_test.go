package engine

import (
	"sync/atomic"
	"testing"

	"github.com/cwbudde/algo-audio/audio"
)

// countingNode records how many times processNode runs.
type countingNode struct {
	baseNode
	calls atomic.Int64
}

func newCountingNode(c *contextCore) *countingNode {
	n := &countingNode{}
	n.init(c, n, 2, Max, audio.Speakers)
	c.registerProcessing(n)
	return n
}

func (n *countingNode) processNode(processing *audio.Buffer, _ int) *audio.Buffer {
	n.calls.Add(1)
	return processing
}

// A node pulled through two paths must process once per block.
func TestProcessNodeOncePerBlock(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))

	src, _ := ctx.CreateConstantSource(nil)
	shared := newCountingNode(ctx.contextCore)
	g1, _ := ctx.CreateGain(nil)
	g2, _ := ctx.CreateGain(nil)

	mustConnect(t, src, shared)
	mustConnect(t, shared, g1)
	mustConnect(t, shared, g2)
	mustConnect(t, g1, ctx.Destination())
	mustConnect(t, g2, ctx.Destination())
	if err := src.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}

	renderBlocks(ctx, 5)
	if got := shared.calls.Load(); got != 5 {
		t.Fatalf("shared node processed %d times over 5 blocks", got)
	}
}

func mustConnect(t *testing.T, from, to Node) {
	t.Helper()
	if err := from.Connect(to); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

// Topology events queued before a block become visible in that block, and
// the fan-in sums both sources.
func TestTopologySumsInputs(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))

	a, _ := ctx.CreateConstantSource(&ConstantSourceOptions{Offset: 0.25})
	b, _ := ctx.CreateConstantSource(&ConstantSourceOptions{Offset: 0.5})
	mustConnect(t, a, ctx.Destination())
	mustConnect(t, b, ctx.Destination())
	_ = a.Start(0)
	_ = b.Start(0)

	out := ctx.dest.renderQuantum()
	if v := out.Channel(0)[0]; v != 0.75 {
		t.Fatalf("summed output %v, want 0.75", v)
	}

	// Disconnect one source; the next block reflects it.
	if err := a.Disconnect(ctx.Destination()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	out = ctx.dest.renderQuantum()
	if v := out.Channel(0)[0]; v != 0.5 {
		t.Fatalf("after disconnect %v, want 0.5", v)
	}
}

// Released processing nodes leave the registry once destructible.
func TestSweepReleasedProcessingNode(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))

	gain, _ := ctx.CreateGain(nil)
	_ = gain
	renderBlocks(ctx, 1)
	if got := len(ctx.graph.processingNodes); got != 1 {
		t.Fatalf("registered %d processing nodes, want 1", got)
	}

	gain.Release()
	renderBlocks(ctx, 1)
	if got := len(ctx.graph.processingNodes); got != 0 {
		t.Fatalf("%d processing nodes after release, want 0", got)
	}
	if got := len(ctx.graph.params); got != 0 {
		t.Fatalf("%d params after release, want 0", got)
	}
}

// A released source is retained while playing and reclaimed when finished.
func TestSweepSourceWaitsForFinish(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))

	src, _ := ctx.CreateConstantSource(nil)
	mustConnect(t, src, ctx.Destination())
	_ = src.Start(0)
	renderBlocks(ctx, 1)

	src.Release()
	renderBlocks(ctx, 1)
	if got := len(ctx.graph.sourceNodes); got != 1 {
		t.Fatalf("playing source swept early: %d registered, want 1", got)
	}

	// Stop in the past relative to the next block: finishes that block.
	_ = src.Stop(0)
	renderBlocks(ctx, 2)
	if got := len(ctx.graph.sourceNodes); got != 0 {
		t.Fatalf("%d sources after finish, want 0", got)
	}
}

// Closed contexts reject new work.
func TestClosedContextRejects(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))
	src, _ := ctx.CreateConstantSource(nil)
	if err := ctx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := ctx.CreateGain(nil); err == nil {
		t.Fatal("CreateGain succeeded on closed context")
	}
	if err := src.Start(0); err == nil {
		t.Fatal("Start succeeded on closed context")
	}
	if err := ctx.Resume(); err == nil {
		t.Fatal("Resume succeeded on closed context")
	}
	if ctx.State() != StateClosed {
		t.Fatalf("state %v", ctx.State())
	}
}

// Param modulation: a constant source routed into a gain parameter adds to
// the automated value.
func TestParamModulation(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))

	mod, _ := ctx.CreateConstantSource(&ConstantSourceOptions{Offset: 0.25})
	gain, _ := ctx.CreateGain(&GainOptions{Gain: 0.5})
	src, _ := ctx.CreateConstantSource(nil)

	if err := mod.ConnectParam(gain.Gain()); err != nil {
		t.Fatalf("ConnectParam: %v", err)
	}
	mustConnect(t, src, gain)
	mustConnect(t, gain, ctx.Destination())
	_ = mod.Start(0)
	_ = src.Start(0)

	out := ctx.dest.renderQuantum()
	// gain = 0.5 (value) + 0.25 (modulation) = 0.75; input 1.0.
	if v := out.Channel(0)[0]; v != 0.75 {
		t.Fatalf("modulated output %v, want 0.75", v)
	}
}
