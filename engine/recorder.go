package engine

import (
	"github.com/cwbudde/algo-audio/audio"
	"github.com/cwbudde/algo-audio/decode"
	"github.com/cwbudde/algo-audio/events"
	"github.com/cwbudde/algo-audio/ring"
)

// RecorderAdapterOptions configure CreateRecorderAdapter.
type RecorderAdapterOptions struct {
	NodeOptions
	// BufferSeconds sizes the per-channel capture rings; 0 means 1 second.
	BufferSeconds float64
}

// RecorderAdapterNode bridges an external capture device into the graph:
// the recorder pushes frames from its own thread into per-channel
// overwriting rings, and each render block pops one quantum into the output.
type RecorderAdapterNode struct {
	baseNode

	rings []*ring.Overwriting
}

// CreateRecorderAdapter returns a recorder adapter node.
func (c *contextCore) CreateRecorderAdapter(opts *RecorderAdapterOptions) (*RecorderAdapterNode, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &RecorderAdapterOptions{}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	seconds := opts.BufferSeconds
	if seconds <= 0 {
		seconds = 1
	}

	n := &RecorderAdapterNode{}
	channels := opts.channelCount(2)
	n.init(c, n, channels, Explicit, opts.ChannelInterpretation)
	capacity := int(seconds * c.sampleRate)
	n.rings = make([]*ring.Overwriting, channels)
	for ch := range n.rings {
		r, err := ring.NewOverwriting(capacity)
		if err != nil {
			return nil, err
		}
		n.rings[ch] = r
	}
	c.registerProcessing(n)
	return n, nil
}

// PushFrames accepts captured frames from the recorder thread. Channel
// counts beyond the node's are dropped; overflow overwrites the oldest
// frames.
func (n *RecorderAdapterNode) PushFrames(buf *audio.Buffer) {
	if buf == nil {
		return
	}
	channels := min(len(n.rings), buf.ChannelCount())
	for ch := range channels {
		n.rings[ch].Push(buf.Channel(ch))
	}
}

// ReportError surfaces a capture failure to host handlers.
func (n *RecorderAdapterNode) ReportError(message string) {
	n.ctx.events.Emit(events.RecorderError, events.Body{"message": message})
}

func (n *RecorderAdapterNode) processNode(processing *audio.Buffer, frames int) *audio.Buffer {
	channels := min(processing.ChannelCount(), len(n.rings))
	for ch := range channels {
		n.rings[ch].Pop(processing.Channel(ch)[:frames])
	}
	return processing
}

const captureWriterQueue = 64

// CaptureWriter appends interleaved capture frames to a WAV file from an
// offloader worker, so the thread producing the frames (a recorder callback
// or the render loop) never performs file I/O itself.
type CaptureWriter struct {
	off *TaskOffloader[[]float32]
	w   *decode.WavWriter
	log errorReporter
}

type errorReporter func(error)

// NewCaptureWriter opens path for writing. onError, if non-nil, receives
// write failures on the worker goroutine.
func NewCaptureWriter(path string, sampleRate, channels int, onError func(error)) (*CaptureWriter, error) {
	w, err := decode.NewWavWriter(path, sampleRate, channels)
	if err != nil {
		return nil, err
	}
	cw := &CaptureWriter{w: w, log: onError}
	off, err := NewTaskOffloader(captureWriterQueue, func(frames []float32) {
		if werr := w.WriteFrames(frames); werr != nil && cw.log != nil {
			cw.log(werr)
		}
	})
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	cw.off = off
	return cw, nil
}

// Write queues interleaved frames for appending. The slice is copied, so
// the caller may reuse its buffer. Reports false when the worker has fallen
// behind and the chunk was dropped.
func (c *CaptureWriter) Write(interleaved []float32) bool {
	chunk := make([]float32, len(interleaved))
	copy(chunk, interleaved)
	return c.off.TryOffload(chunk)
}

// Close drains pending chunks and finalises the file.
func (c *CaptureWriter) Close() error {
	c.off.Close()
	return c.w.Close()
}
