package audio

import (
	"errors"
	"fmt"
)

// Errors returned by buffer constructors and accessors.
var (
	ErrInvalidChannelCount = errors.New("audio: invalid channel count")
	ErrInvalidLength       = errors.New("audio: invalid length")
	ErrInvalidSampleRate   = errors.New("audio: invalid sample rate")
	ErrChannelOutOfRange   = errors.New("audio: channel index out of range")
)

// MaxChannels is the largest channel count the engine processes.
const MaxChannels = 8

// Semantic channel positions for the standard speaker layouts.
const (
	ChannelMono = 0

	ChannelLeft  = 0
	ChannelRight = 1

	// Quad: L, R, SL, SR.
	ChannelQuadSurroundLeft  = 2
	ChannelQuadSurroundRight = 3

	// 5.1: L, R, C, LFE, SL, SR.
	ChannelCenter        = 2
	ChannelLFE           = 3
	ChannelSurroundLeft  = 4
	ChannelSurroundRight = 5
)

// Buffer is a block of multi-channel float32 PCM samples.
// All channels have the same frame count.
type Buffer struct {
	channels   [][]float32
	length     int
	sampleRate float64
}

// NewBuffer returns a zero-filled buffer with the given channel count,
// frame count and sample rate.
func NewBuffer(channelCount, length int, sampleRate float64) (*Buffer, error) {
	if channelCount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannelCount, channelCount)
	}
	if length <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %f", ErrInvalidSampleRate, sampleRate)
	}

	data := make([]float32, channelCount*length)
	channels := make([][]float32, channelCount)
	for ch := range channels {
		channels[ch] = data[ch*length : (ch+1)*length : (ch+1)*length]
	}

	return &Buffer{channels: channels, length: length, sampleRate: sampleRate}, nil
}

// FromChannels wraps existing per-channel slices without copying.
// All slices must share the same length.
func FromChannels(channels [][]float32, sampleRate float64) (*Buffer, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: 0", ErrInvalidChannelCount)
	}
	length := len(channels[0])
	if length == 0 {
		return nil, fmt.Errorf("%w: 0", ErrInvalidLength)
	}
	for ch, c := range channels {
		if len(c) != length {
			return nil, fmt.Errorf("%w: channel %d has %d frames, want %d",
				ErrInvalidLength, ch, len(c), length)
		}
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %f", ErrInvalidSampleRate, sampleRate)
	}
	return &Buffer{channels: channels, length: length, sampleRate: sampleRate}, nil
}

// ChannelCount returns the number of channels.
func (b *Buffer) ChannelCount() int { return len(b.channels) }

// Length returns the frame count per channel.
func (b *Buffer) Length() int { return b.length }

// SampleRate returns the sample rate in Hz.
func (b *Buffer) SampleRate() float64 { return b.sampleRate }

// Duration returns the buffer duration in seconds.
func (b *Buffer) Duration() float64 { return float64(b.length) / b.sampleRate }

// Channel returns the sample slice for channel ch.
// Panics if ch is out of range; use ChannelChecked for a checked variant.
func (b *Buffer) Channel(ch int) []float32 { return b.channels[ch] }

// ChannelChecked returns the sample slice for channel ch, or an error when
// ch is out of range.
func (b *Buffer) ChannelChecked(ch int) ([]float32, error) {
	if ch < 0 || ch >= len(b.channels) {
		return nil, fmt.Errorf("%w: %d, have %d channels", ErrChannelOutOfRange, ch, len(b.channels))
	}
	return b.channels[ch], nil
}

// Zero sets every sample to 0.
func (b *Buffer) Zero() {
	for _, c := range b.channels {
		clear(c)
	}
}

// ZeroRange sets frames in [start, end) to 0 on every channel.
// Indices are clamped to valid bounds.
func (b *Buffer) ZeroRange(start, end int) {
	if start < 0 {
		start = 0
	}
	if end > b.length {
		end = b.length
	}
	if start >= end {
		return
	}
	for _, c := range b.channels {
		clear(c[start:end])
	}
}

// Scale multiplies every sample by g in place.
func (b *Buffer) Scale(g float32) {
	for _, c := range b.channels {
		for i := range c {
			c[i] *= g
		}
	}
}

// MaxAbs returns the largest absolute sample value across all channels.
func (b *Buffer) MaxAbs() float32 {
	var peak float32
	for _, c := range b.channels {
		for _, v := range c {
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
	}
	return peak
}

// CopyFrom copies frames [srcStart, srcStart+frames) of src into this buffer
// at dstStart, channel by channel up to the smaller channel count. Ranges are
// clamped to both buffers.
func (b *Buffer) CopyFrom(src *Buffer, srcStart, dstStart, frames int) {
	if src == nil {
		return
	}
	if srcStart < 0 || dstStart < 0 {
		return
	}
	if n := src.length - srcStart; frames > n {
		frames = n
	}
	if n := b.length - dstStart; frames > n {
		frames = n
	}
	if frames <= 0 {
		return
	}
	chans := min(len(b.channels), len(src.channels))
	for ch := range chans {
		copy(b.channels[ch][dstStart:dstStart+frames], src.channels[ch][srcStart:srcStart+frames])
	}
}

// CopyWithin moves frames [src, src+frames) to dst on every channel, like
// JavaScript's copyWithin. Overlapping ranges are handled by copy's memmove
// semantics.
func (b *Buffer) CopyWithin(dst, src, frames int) {
	if dst < 0 || src < 0 || frames <= 0 {
		return
	}
	if n := b.length - src; frames > n {
		frames = n
	}
	if n := b.length - dst; frames > n {
		frames = n
	}
	if frames <= 0 {
		return
	}
	for _, c := range b.channels {
		copy(c[dst:dst+frames], c[src:src+frames])
	}
}

// CopyFromChannel copies samples from channel ch starting at start into dst.
// Copies min(len(dst), Length-start) samples.
func (b *Buffer) CopyFromChannel(dst []float32, ch, start int) error {
	c, err := b.ChannelChecked(ch)
	if err != nil {
		return err
	}
	if start < 0 || start >= b.length {
		return fmt.Errorf("%w: start %d", ErrInvalidLength, start)
	}
	copy(dst, c[start:])
	return nil
}

// CopyToChannel copies src into channel ch starting at start.
// Copies min(len(src), Length-start) samples.
func (b *Buffer) CopyToChannel(src []float32, ch, start int) error {
	c, err := b.ChannelChecked(ch)
	if err != nil {
		return err
	}
	if start < 0 || start >= b.length {
		return fmt.Errorf("%w: start %d", ErrInvalidLength, start)
	}
	copy(c[start:], src)
	return nil
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	out, _ := NewBuffer(len(b.channels), b.length, b.sampleRate)
	out.CopyFrom(b, 0, 0, b.length)
	return out
}
