package decode

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
)

// WavWriter appends interleaved float32 frames to a 16-bit PCM WAV file.
// The recorder subsystem drives it from an offloader worker so file I/O
// never touches the audio thread.
type WavWriter struct {
	f        *os.File
	enc      *gowav.Encoder
	channels int
	scratch  goaudio.IntBuffer
}

// NewWavWriter creates (truncating) the file at path.
func NewWavWriter(path string, sampleRate, channels int) (*WavWriter, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: rate=%d channels=%d", ErrInvalidPCM, sampleRate, channels)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("decode: create %s: %w", path, err)
	}
	enc := gowav.NewEncoder(f, sampleRate, 16, channels, 1)
	return &WavWriter{
		f:        f,
		enc:      enc,
		channels: channels,
		scratch: goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

// WriteFrames appends interleaved samples, clipping to [-1, 1].
func (w *WavWriter) WriteFrames(interleaved []float32) error {
	if len(interleaved) == 0 {
		return nil
	}
	if cap(w.scratch.Data) < len(interleaved) {
		w.scratch.Data = make([]int, len(interleaved))
	}
	w.scratch.Data = w.scratch.Data[:len(interleaved)]
	for i, v := range interleaved {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		w.scratch.Data[i] = int(v * 32767)
	}
	if err := w.enc.Write(&w.scratch); err != nil {
		return fmt.Errorf("decode: wav write: %w", err)
	}
	return nil
}

// Close finalises the WAV header and closes the file.
func (w *WavWriter) Close() error {
	if err := w.enc.Close(); err != nil {
		w.f.Close()
		return fmt.Errorf("decode: wav close: %w", err)
	}
	return w.f.Close()
}
