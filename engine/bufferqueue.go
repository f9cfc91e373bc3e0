package engine

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-audio/audio"
	"github.com/cwbudde/algo-audio/events"
)

// BufferQueueSourceOptions configure CreateBufferQueueSource.
type BufferQueueSourceOptions struct {
	PlaybackRate    float32
	Detune          float32
	PitchCorrection bool
}

type queuedBuffer struct {
	buf    *audio.Buffer
	id     int
	isLast bool
}

// BufferQueueSourceNode plays a FIFO of sample buffers back to back,
// emitting BufferEnded as each drains. Pausing rewinds the state machine to
// Unscheduled so playback can be restarted where it left off.
type BufferQueueSourceNode struct {
	scheduledSource

	mu     sync.Mutex // try-locked on the audio thread
	queue  []queuedBuffer
	nextID int

	playbackRate *Param
	detune       *Param

	pos float64

	pitchCorrection bool
	bank            stretcherBank
	tailQueued      bool

	endedListenerB atomic.Uint64
}

// CreateBufferQueueSource returns a buffer-queue source node.
func (c *contextCore) CreateBufferQueueSource(opts *BufferQueueSourceOptions) (*BufferQueueSourceNode, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &BufferQueueSourceOptions{PlaybackRate: 1}
	}
	if opts.PlaybackRate == 0 {
		opts.PlaybackRate = 1
	}

	n := &BufferQueueSourceNode{pitchCorrection: opts.PitchCorrection}
	n.init(c, n, 2, Max, audio.Speakers)
	n.playbackRate = n.ownParam(newParam(c, opts.PlaybackRate, -maxGain, maxGain))
	n.detune = n.ownParam(newParam(c, opts.Detune, -maxDetuneCents, maxDetuneCents))
	c.registerSource(n)
	return n, nil
}

// PlaybackRate returns the playback-rate parameter.
func (n *BufferQueueSourceNode) PlaybackRate() *Param { return n.playbackRate }

// Detune returns the detune parameter (cents).
func (n *BufferQueueSourceNode) Detune() *Param { return n.detune }

// EnqueueBuffer appends a buffer to the playback queue and returns its id.
// isLast marks the final buffer of the stream.
func (n *BufferQueueSourceNode) EnqueueBuffer(buf *audio.Buffer, isLast bool) (int, error) {
	if buf == nil {
		return 0, fmt.Errorf("%w: nil buffer", ErrInvalidArgument)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	n.queue = append(n.queue, queuedBuffer{buf: buf, id: id, isLast: isLast})
	return id, nil
}

// ClearQueue drops all queued buffers.
func (n *BufferQueueSourceNode) ClearQueue() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queue = n.queue[:0]
	n.pos = 0
}

// Pause rewinds the state machine to Unscheduled, keeping the queue and the
// read position, so Start can resume playback.
func (n *BufferQueueSourceNode) Pause() error {
	st := n.PlaybackState()
	if st != Playing && st != Scheduled {
		return fmt.Errorf("%w: source not playing", ErrInvalidState)
	}
	n.rewind()
	return nil
}

// OnBufferEnded routes per-buffer drain events to h.
func (n *BufferQueueSourceNode) OnBufferEnded(h func(bufferID int, isLast bool)) {
	id := n.ctx.events.Register(events.BufferEnded, func(b events.Body) {
		bid, _ := b["bufferId"].(int)
		last, _ := b["isLast"].(bool)
		h(bid, last)
	})
	n.endedListenerB.Store(uint64(id))
}

func (n *BufferQueueSourceNode) emitBufferEnded(id int, isLast bool) {
	body := events.Body{"bufferId": id, "isLast": isLast}
	if lid := n.endedListenerB.Load(); lid != 0 {
		n.ctx.events.EmitTo(events.BufferEnded, events.ListenerID(lid), body)
		return
	}
	n.ctx.events.Emit(events.BufferEnded, body)
}

func (n *BufferQueueSourceNode) effectiveRate(frames int) float64 {
	t := n.ctx.audioTime()
	rate := float64(n.playbackRate.ProcessKRate(frames, t))
	if d := float64(n.detune.ProcessKRate(frames, t)); d != 0 {
		rate *= math.Pow(2, d/1200)
	}
	return math.Abs(rate)
}

func (n *BufferQueueSourceNode) processNode(processing *audio.Buffer, frames int) *audio.Buffer {
	start, end := n.updatePlaybackInfo(processing, frames)
	if !n.isPlayingOrStopping() || start >= end {
		processing.Zero()
		n.finishBlock()
		return processing
	}

	// The control thread may be enqueueing; losing the race just means the
	// new buffer is picked up next block.
	if !n.mu.TryLock() {
		processing.ZeroRange(start, processing.Length())
		n.finishBlock()
		return processing
	}

	rate := n.effectiveRate(frames)
	if n.pitchCorrection {
		n.renderQueueStretched(processing, rate, start, end)
	} else {
		n.renderQueueInterpolated(processing, rate, start, end)
	}
	n.mu.Unlock()

	n.finishBlock()
	return processing
}

// renderQueueInterpolated plays the queue head with linear interpolation,
// moving to the next buffer as each drains. Caller holds the lock.
func (n *BufferQueueSourceNode) renderQueueInterpolated(processing *audio.Buffer, rate float64, start, end int) {
	i := start
	for i < end {
		if len(n.queue) == 0 {
			processing.ZeroRange(i, processing.Length())
			return
		}
		head := n.queue[0]
		buf := head.buf
		length := buf.Length()
		channels := min(processing.ChannelCount(), buf.ChannelCount())

		for i < end && n.pos < float64(length-1) {
			i0 := int(n.pos)
			frac := float32(n.pos - float64(i0))
			i1 := min(i0+1, length-1)
			for ch := range channels {
				src := buf.Channel(ch)
				s0 := src[i0]
				processing.Channel(ch)[i] = s0 + frac*(src[i1]-s0)
			}
			if buf.ChannelCount() == 1 {
				for ch := 1; ch < processing.ChannelCount(); ch++ {
					processing.Channel(ch)[i] = processing.Channel(0)[i]
				}
			}
			n.pos += rate
			i++
		}

		if n.pos >= float64(length-1) {
			n.advanceQueue(head)
		}
	}
}

// renderQueueStretched routes the queue through the stretcher bank.
// Caller holds the lock.
func (n *BufferQueueSourceNode) renderQueueStretched(processing *audio.Buffer, rate float64, start, end int) {
	channels := processing.ChannelCount()
	if len(n.queue) > 0 {
		channels = min(channels, n.queue[0].buf.ChannelCount())
	}
	n.bank.ensure(channels, n.ctx.sampleRate, rate)

	need := end - start
	consume := int(math.Ceil(float64(need) * rate))
	for consume > 0 && len(n.queue) > 0 {
		head := n.queue[0]
		pushed := n.bank.pushFrom(head.buf, &n.pos, consume, false,
			func(*audio.Buffer) (float64, float64) { return 0, float64(head.buf.Length()) })
		consume -= pushed
		if n.pos >= float64(head.buf.Length()) {
			n.advanceQueue(head)
			continue
		}
		break
	}

	if len(n.queue) == 0 && !n.tailQueued {
		n.bank.pushTail()
		n.tailQueued = true
	}

	got := n.bank.pull(processing, start, need)
	if got < need {
		processing.ZeroRange(start+got, processing.Length())
		if n.tailQueued && got == 0 {
			n.finish()
		}
	}
}

// advanceQueue retires the drained head buffer: the BufferEnded event
// fires, the buffer goes to the async destructor, and a final buffer ends
// the stream (with pitch correction the stream ends instead once the
// stretcher tail has drained). Caller holds the lock.
func (n *BufferQueueSourceNode) advanceQueue(head queuedBuffer) {
	n.queue = n.queue[:copy(n.queue, n.queue[1:])]
	n.pos = 0
	n.ctx.graph.addBufferForDestruction(head.buf)
	n.emitBufferEnded(head.id, head.isLast)
	if head.isLast && !n.pitchCorrection {
		n.finish()
	}
}
