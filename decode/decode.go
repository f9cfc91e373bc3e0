// Package decode turns encoded audio (WAV, MP3, Ogg Vorbis, base-64 PCM)
// into engine sample buffers, converting to the context sample rate on the
// way in. Everything here runs on control or worker threads, never on the
// audio thread.
package decode

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	gowav "github.com/go-audio/wav"

	"github.com/cwbudde/algo-audio/audio"
	"github.com/cwbudde/algo-audio/dsp/resample"
)

// Errors returned by the decoding entry points.
var (
	ErrUnknownFormat = errors.New("decode: unknown container format")
	ErrEmptyInput    = errors.New("decode: empty input")
	ErrInvalidPCM    = errors.New("decode: invalid PCM parameters")
)

// DecodeBytes sniffs the container format of data and returns the decoded
// PCM. When targetRate > 0 and differs from the file rate, the result is
// converted to targetRate.
func DecodeBytes(data []byte, targetRate float64) (*audio.Buffer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	var (
		buf *audio.Buffer
		err error
	)
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		buf, err = decodeWAV(data)
	case bytes.HasPrefix(data, []byte("OggS")):
		buf, err = decodeOgg(data)
	case bytes.HasPrefix(data, []byte("ID3")) || looksLikeMP3Frame(data):
		buf, err = decodeMP3(data)
	default:
		return nil, fmt.Errorf("%w: %x", ErrUnknownFormat, data[:min(4, len(data))])
	}
	if err != nil {
		return nil, err
	}
	return convertRate(buf, targetRate)
}

// DecodeFile reads and decodes path.
func DecodeFile(path string, targetRate float64) (*audio.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("decode: read %s: %w", path, err)
	}
	return DecodeBytes(data, targetRate)
}

// DecodeBase64PCM decodes base-64 encoded 16-bit little-endian PCM with the
// given rate and channel layout. When interleaved is false the channels are
// stored back to back (planar).
func DecodeBase64PCM(b64 string, rate float64, channels int, interleaved bool) (*audio.Buffer, error) {
	if rate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: rate=%f channels=%d", ErrInvalidPCM, rate, channels)
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode: base64: %w", err)
	}
	samples := len(raw) / 2
	frames := samples / channels
	if frames == 0 {
		return nil, ErrEmptyInput
	}

	buf, err := audio.NewBuffer(channels, frames, rate)
	if err != nil {
		return nil, err
	}
	for ch := range channels {
		dst := buf.Channel(ch)
		for i := range frames {
			var idx int
			if interleaved {
				idx = i*channels + ch
			} else {
				idx = ch*frames + i
			}
			v := int16(binary.LittleEndian.Uint16(raw[2*idx : 2*idx+2]))
			dst[i] = float32(v) / 32768
		}
	}
	return buf, nil
}

// looksLikeMP3Frame reports whether data starts with an MPEG audio sync word.
func looksLikeMP3Frame(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func decodeWAV(data []byte) (*audio.Buffer, error) {
	dec := gowav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("decode: wav: invalid file")
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode: wav: %w", err)
	}
	channels := pcm.Format.NumChannels
	frames := len(pcm.Data) / channels
	if frames == 0 {
		return nil, ErrEmptyInput
	}

	buf, err := audio.NewBuffer(channels, frames, float64(pcm.Format.SampleRate))
	if err != nil {
		return nil, err
	}
	scale := 1 / float32(int(1)<<(dec.BitDepth-1))
	for ch := range channels {
		dst := buf.Channel(ch)
		for i := range frames {
			dst[i] = float32(pcm.Data[i*channels+ch]) * scale
		}
	}
	return buf, nil
}

func decodeMP3(data []byte) (*audio.Buffer, error) {
	dec, err := gomp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: mp3: %w", err)
	}

	// go-mp3 always emits 16-bit little-endian stereo.
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decode: mp3: %w", err)
	}
	const channels = 2
	frames := len(raw) / (2 * channels)
	if frames == 0 {
		return nil, ErrEmptyInput
	}

	buf, err := audio.NewBuffer(channels, frames, float64(dec.SampleRate()))
	if err != nil {
		return nil, err
	}
	for ch := range channels {
		dst := buf.Channel(ch)
		for i := range frames {
			v := int16(binary.LittleEndian.Uint16(raw[2*(i*channels+ch):]))
			dst[i] = float32(v) / 32768
		}
	}
	return buf, nil
}

func decodeOgg(data []byte) (*audio.Buffer, error) {
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: ogg: %w", err)
	}
	channels := format.Channels
	frames := len(samples) / channels
	if frames == 0 {
		return nil, ErrEmptyInput
	}

	buf, err := audio.NewBuffer(channels, frames, float64(format.SampleRate))
	if err != nil {
		return nil, err
	}
	for ch := range channels {
		dst := buf.Channel(ch)
		for i := range frames {
			dst[i] = samples[i*channels+ch]
		}
	}
	return buf, nil
}

// convertRate resamples buf to targetRate when needed.
func convertRate(buf *audio.Buffer, targetRate float64) (*audio.Buffer, error) {
	if targetRate <= 0 || targetRate == buf.SampleRate() {
		return buf, nil
	}

	conv, err := resample.New(int(buf.SampleRate()), int(targetRate))
	if err != nil {
		return nil, err
	}

	channels := make([][]float32, buf.ChannelCount())
	for ch := range channels {
		channels[ch] = conv.Process(buf.Channel(ch))
	}
	return audio.FromChannels(channels, targetRate)
}
