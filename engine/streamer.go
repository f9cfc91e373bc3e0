package engine

import (
	"errors"
	"fmt"
	"io"

	"github.com/cwbudde/algo-audio/audio"
	"github.com/cwbudde/algo-audio/decode"
	"github.com/cwbudde/algo-audio/events"
	"github.com/cwbudde/algo-audio/spsc"
)

// StreamerOptions configure CreateStreamer.
type StreamerOptions struct {
	// QueueBlocks bounds the decoder: at most this many decoded quanta sit
	// between the decoder goroutine and the audio thread. 0 means 32.
	QueueBlocks int
}

// StreamerNode plays blocks decoded by a background goroutine. The decoder
// is bounded by the channel capacity; when the channel underflows the node
// emits zeros until data catches up.
type StreamerNode struct {
	scheduledSource

	ch      *spsc.Channel[*audio.Buffer]
	current *audio.Buffer
	offset  int
}

// CreateStreamer returns a streamer node.
func (c *contextCore) CreateStreamer(opts *StreamerOptions) (*StreamerNode, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &StreamerOptions{}
	}
	blocks := opts.QueueBlocks
	if blocks <= 0 {
		blocks = 32
	}

	n := &StreamerNode{}
	n.init(c, n, 2, Max, audio.Speakers)
	ch, err := spsc.New[*audio.Buffer](blocks, spsc.WaitOnFull, spsc.AtomicWait)
	if err != nil {
		return nil, err
	}
	n.ch = ch
	c.registerSource(n)
	return n, nil
}

// StreamFrom starts a background goroutine decoding r (MP3 or Ogg Vorbis)
// into the playback queue. The goroutine exits on EOF, on a decode error,
// or when the node is cleaned up.
func (n *StreamerNode) StreamFrom(r io.Reader) error {
	reader, err := decode.NewReader(r)
	if err != nil {
		return fmt.Errorf("engine: streamer: %w", err)
	}

	go func() {
		channels := reader.Channels()
		for {
			block, err := audio.NewBuffer(channels, RenderQuantum, float64(reader.SampleRate()))
			if err != nil {
				return
			}
			dst := make([][]float32, channels)
			for ch := range dst {
				dst[ch] = block.Channel(ch)
			}
			got, err := reader.ReadFrames(dst)
			if got > 0 {
				block.ZeroRange(got, block.Length())
				if n.ch.Send(block) != nil {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					n.ctx.events.Emit(events.AudioError, events.Body{"message": err.Error()})
				}
				n.ch.Close()
				return
			}
		}
	}()
	return nil
}

// EnqueueBlock hands a pre-decoded block directly to the playback queue.
// Blocks until capacity frees up; control threads only.
func (n *StreamerNode) EnqueueBlock(buf *audio.Buffer) error {
	if buf == nil {
		return fmt.Errorf("%w: nil block", ErrInvalidArgument)
	}
	if err := n.ch.Send(buf); err != nil {
		return fmt.Errorf("%w: streamer queue closed", ErrInvalidState)
	}
	return nil
}

// Cleanup force-terminates the stream. The state machine jumps straight to
// Finished without firing Ended.
func (n *StreamerNode) Cleanup() {
	n.ch.Close()
	n.finishSilently()
}

func (n *StreamerNode) processNode(processing *audio.Buffer, frames int) *audio.Buffer {
	start, end := n.updatePlaybackInfo(processing, frames)
	if !n.isPlayingOrStopping() || start >= end {
		processing.Zero()
		n.finishBlock()
		return processing
	}

	i := start
	for i < end {
		if n.current == nil {
			if !n.ch.TryReceive(&n.current) {
				// Underflow: emit zeros until the decoder catches up.
				processing.ZeroRange(i, processing.Length())
				break
			}
			n.offset = 0
		}

		channels := min(processing.ChannelCount(), n.current.ChannelCount())
		run := min(end-i, n.current.Length()-n.offset)
		for ch := range channels {
			copy(processing.Channel(ch)[i:i+run], n.current.Channel(ch)[n.offset:n.offset+run])
		}
		if n.current.ChannelCount() == 1 {
			for ch := 1; ch < processing.ChannelCount(); ch++ {
				copy(processing.Channel(ch)[i:i+run], processing.Channel(0)[i:i+run])
			}
		}
		i += run
		n.offset += run
		if n.offset >= n.current.Length() {
			n.ctx.graph.addBufferForDestruction(n.current)
			n.current = nil
		}
	}

	n.finishBlock()
	return processing
}
