package engine

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-audio/audio"
	"github.com/cwbudde/algo-audio/dsp/stretch"
	"github.com/cwbudde/algo-audio/events"
)

// BufferSourceOptions configure CreateBufferSource.
type BufferSourceOptions struct {
	Buffer       *audio.Buffer
	Loop         bool
	LoopStart    float64
	LoopEnd      float64
	PlaybackRate float32
	Detune       float32
	// PitchCorrection routes playback-rate changes through the time
	// stretcher so pitch stays put.
	PitchCorrection bool
	// PositionChangedInterval is the seconds between PositionChanged
	// events; 0 disables them.
	PositionChangedInterval float64
}

// BufferSourceNode plays a sample buffer with looping, variable playback
// rate and optional pitch correction.
type BufferSourceNode struct {
	scheduledSource

	buffer    atomic.Pointer[audio.Buffer]
	loop      atomic.Bool
	loopStart atomicFloat64
	loopEnd   atomicFloat64

	playbackRate *Param
	detune       *Param

	pos float64 // fractional read index in buffer frames

	pitchCorrection bool
	bank            stretcherBank
	tailQueued      bool

	posIntervalFrames int
	posCounter        int
	posListener       atomic.Uint64
}

// CreateBufferSource returns a buffer source node.
func (c *contextCore) CreateBufferSource(opts *BufferSourceOptions) (*BufferSourceNode, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &BufferSourceOptions{PlaybackRate: 1}
	}
	if opts.PlaybackRate == 0 {
		opts.PlaybackRate = 1
	}

	n := &BufferSourceNode{pitchCorrection: opts.PitchCorrection}
	n.init(c, n, 2, Max, audio.Speakers)
	n.playbackRate = n.ownParam(newParam(c, opts.PlaybackRate, -maxGain, maxGain))
	n.detune = n.ownParam(newParam(c, opts.Detune, -maxDetuneCents, maxDetuneCents))
	n.loop.Store(opts.Loop)
	n.loopStart.Store(opts.LoopStart)
	n.loopEnd.Store(opts.LoopEnd)
	if opts.PositionChangedInterval > 0 {
		n.posIntervalFrames = int(opts.PositionChangedInterval * c.sampleRate)
	}
	if opts.Buffer != nil {
		if err := n.SetBuffer(opts.Buffer); err != nil {
			return nil, err
		}
	}
	c.registerSource(n)
	return n, nil
}

// Buffer returns the current sample buffer.
func (n *BufferSourceNode) Buffer() *audio.Buffer { return n.buffer.Load() }

// SetBuffer installs the sample buffer to play.
func (n *BufferSourceNode) SetBuffer(buf *audio.Buffer) error {
	if buf == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidArgument)
	}
	n.buffer.Store(buf)
	return nil
}

// PlaybackRate returns the playback-rate parameter.
func (n *BufferSourceNode) PlaybackRate() *Param { return n.playbackRate }

// Detune returns the detune parameter (cents).
func (n *BufferSourceNode) Detune() *Param { return n.detune }

// Loop reports whether looping is enabled.
func (n *BufferSourceNode) Loop() bool { return n.loop.Load() }

// SetLoop enables or disables looping.
func (n *BufferSourceNode) SetLoop(loop bool) { n.loop.Store(loop) }

// SetLoopStart sets the loop start point in seconds.
func (n *BufferSourceNode) SetLoopStart(s float64) { n.loopStart.Store(s) }

// SetLoopEnd sets the loop end point in seconds; 0 means the buffer end.
func (n *BufferSourceNode) SetLoopEnd(s float64) { n.loopEnd.Store(s) }

// OnPositionChanged routes periodic playback-position events to h.
func (n *BufferSourceNode) OnPositionChanged(h func(position float64)) {
	id := n.ctx.events.Register(events.PositionChanged, func(b events.Body) {
		if pos, ok := b["position"].(float64); ok {
			h(pos)
		}
	})
	n.posListener.Store(uint64(id))
}

// effectiveRate combines playback rate and detune, absolute value.
func (n *BufferSourceNode) effectiveRate(frames int) float64 {
	t := n.ctx.audioTime()
	rate := float64(n.playbackRate.ProcessKRate(frames, t))
	if d := float64(n.detune.ProcessKRate(frames, t)); d != 0 {
		rate *= math.Pow(2, d/1200)
	}
	return math.Abs(rate)
}

// loopBounds returns the loop range in buffer frames.
func (n *BufferSourceNode) loopBounds(buf *audio.Buffer) (float64, float64) {
	sr := buf.SampleRate()
	start := n.loopStart.Load() * sr
	end := n.loopEnd.Load() * sr
	if end <= 0 || end > float64(buf.Length()) {
		end = float64(buf.Length())
	}
	if start < 0 || start >= end {
		start = 0
	}
	return start, end
}

func (n *BufferSourceNode) processNode(processing *audio.Buffer, frames int) *audio.Buffer {
	start, end := n.updatePlaybackInfo(processing, frames)
	buf := n.buffer.Load()
	if !n.isPlayingOrStopping() || start >= end || buf == nil {
		processing.Zero()
		n.finishBlock()
		return processing
	}

	rate := n.effectiveRate(frames)
	if n.pitchCorrection {
		n.renderStretched(processing, buf, rate, start, end)
	} else {
		n.renderInterpolated(processing, buf, rate, start, end)
	}

	n.emitPosition(end - start)
	n.finishBlock()
	return processing
}

// renderInterpolated advances the fractional read index at the effective
// rate with linear interpolation between neighbouring samples.
func (n *BufferSourceNode) renderInterpolated(processing, buf *audio.Buffer, rate float64, start, end int) {
	loop := n.loop.Load()
	loopStart, loopEnd := n.loopBounds(buf)
	channels := min(processing.ChannelCount(), buf.ChannelCount())
	length := buf.Length()

	pos := n.pos
	finished := false
	for i := start; i < end; i++ {
		if loop && pos >= loopEnd {
			pos = loopStart + math.Mod(pos-loopStart, loopEnd-loopStart)
		}
		if !loop && pos >= float64(length-1) {
			processing.ZeroRange(i, processing.Length())
			finished = true
			break
		}

		i0 := int(pos)
		frac := float32(pos - float64(i0))
		i1 := i0 + 1
		if i1 >= length {
			i1 = i0
		}
		for ch := range channels {
			src := buf.Channel(ch)
			s0 := src[i0]
			processing.Channel(ch)[i] = s0 + frac*(src[i1]-s0)
		}
		pos += rate
	}
	n.pos = pos

	// Mono buffer into a wider processing buffer: replicate.
	if buf.ChannelCount() == 1 {
		for ch := 1; ch < processing.ChannelCount(); ch++ {
			copy(processing.Channel(ch)[start:end], processing.Channel(0)[start:end])
		}
	}

	if finished {
		n.finish()
	}
}

// renderStretched feeds the stretcher bank at the consumption rate and
// pulls output at the render rate, flushing a latency-sized tail when the
// buffer runs dry.
func (n *BufferSourceNode) renderStretched(processing, buf *audio.Buffer, rate float64, start, end int) {
	channels := min(processing.ChannelCount(), buf.ChannelCount())
	n.bank.ensure(channels, n.ctx.sampleRate, rate)

	need := end - start
	consume := int(math.Ceil(float64(need) * rate))
	pushed := n.bank.pushFrom(buf, &n.pos, consume, n.loop.Load(), n.loopBounds)

	if pushed < consume && !n.loop.Load() && !n.tailQueued {
		// Flush residuals once the source is exhausted.
		n.bank.pushTail()
		n.tailQueued = true
	}

	got := n.bank.pull(processing, start, need)
	if got < need {
		processing.ZeroRange(start+got, processing.Length())
		// Finished only once the flushed tail has fully drained.
		if n.tailQueued && got == 0 {
			n.finish()
		}
	}

	if buf.ChannelCount() == 1 {
		for ch := 1; ch < processing.ChannelCount(); ch++ {
			copy(processing.Channel(ch)[start:end], processing.Channel(0)[start:end])
		}
	}
}

func (n *BufferSourceNode) emitPosition(rendered int) {
	if n.posIntervalFrames <= 0 || rendered <= 0 {
		return
	}
	n.posCounter += rendered
	if n.posCounter < n.posIntervalFrames {
		return
	}
	n.posCounter = 0
	buf := n.buffer.Load()
	if buf == nil {
		return
	}
	body := events.Body{"position": n.pos / buf.SampleRate()}
	if id := n.posListener.Load(); id != 0 {
		n.ctx.events.EmitTo(events.PositionChanged, events.ListenerID(id), body)
		return
	}
	n.ctx.events.Emit(events.PositionChanged, body)
}

// stretcherBank is one time stretcher per channel sharing a common rate.
type stretcherBank struct {
	stretchers []*stretch.Stretcher
	scratch    []float32
	indices    []int32
	tail       []float32 // pre-sized flush block, stays zeroed
}

func (b *stretcherBank) ensure(channels int, sampleRate, rate float64) {
	for len(b.stretchers) < channels {
		s, err := stretch.New(sampleRate)
		if err != nil {
			return
		}
		b.stretchers = append(b.stretchers, s)
		if n := s.InputLatency() + s.OutputLatency(); n > len(b.tail) {
			b.tail = make([]float32, n)
		}
	}
	for _, s := range b.stretchers {
		s.SetRate(rate)
	}
}

// pushFrom reads up to consume frames from buf at *pos (advancing it, with
// loop wrapping) into every stretcher. Returns the frames pushed.
func (b *stretcherBank) pushFrom(buf *audio.Buffer, pos *float64, consume int, loop bool, bounds func(*audio.Buffer) (float64, float64)) int {
	if len(b.stretchers) == 0 || consume <= 0 {
		return 0
	}
	loopStart, loopEnd := bounds(buf)
	length := float64(buf.Length())

	if cap(b.scratch) < consume {
		b.scratch = make([]float32, consume)
	}
	if cap(b.indices) < consume {
		b.indices = make([]int32, consume)
	}

	// Walk the read position once; every channel gathers the same frames.
	p := *pos
	pushed := 0
	for pushed < consume {
		if loop && p >= loopEnd {
			p = loopStart + math.Mod(p-loopStart, loopEnd-loopStart)
		}
		if p >= length {
			break
		}
		b.indices[pushed] = int32(p)
		p++
		pushed++
	}
	*pos = p

	for ch, s := range b.stretchers {
		src := buf.Channel(min(ch, buf.ChannelCount()-1))
		for i := range pushed {
			b.scratch[i] = src[b.indices[i]]
		}
		s.Push(b.scratch[:pushed])
	}
	return pushed
}

// pushTail feeds the pre-allocated silence block once to flush residuals.
func (b *stretcherBank) pushTail() {
	for _, s := range b.stretchers {
		s.Push(b.tail[:s.InputLatency()+s.OutputLatency()])
	}
}

// pull moves up to need output frames into processing at offset. Returns
// the smallest count available across channels.
func (b *stretcherBank) pull(processing *audio.Buffer, offset, need int) int {
	got := need
	for ch, s := range b.stretchers {
		if ch >= processing.ChannelCount() {
			break
		}
		dst := processing.Channel(ch)[offset : offset+need]
		if got2 := s.Pull(dst); got2 < got {
			got = got2
		}
	}
	return got
}
