package decode

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// Reader decodes an audio stream incrementally. Used by the streamer node's
// background decoder goroutine; one block is decoded per call so the
// goroutine stays bounded by its channel capacity.
type Reader interface {
	SampleRate() int
	Channels() int
	// ReadFrames fills the per-channel slices (all the same length) and
	// returns the number of frames produced. io.EOF signals end of stream.
	ReadFrames(dst [][]float32) (int, error)
}

// NewReader sniffs r and returns an incremental decoder for it. Streaming
// supports the MP3 and Ogg Vorbis containers; WAV files are loaded whole
// through DecodeBytes or DecodeFile instead.
func NewReader(r io.Reader) (Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("decode: stream sniff: %w", err)
	}

	switch {
	case string(head) == "OggS":
		or, err := oggvorbis.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("decode: ogg stream: %w", err)
		}
		return &oggStream{r: or}, nil
	case string(head[:3]) == "ID3" || (head[0] == 0xFF && head[1]&0xE0 == 0xE0):
		mr, err := gomp3.NewDecoder(br)
		if err != nil {
			return nil, fmt.Errorf("decode: mp3 stream: %w", err)
		}
		return &mp3Stream{r: mr}, nil
	default:
		return nil, fmt.Errorf("%w: %x", ErrUnknownFormat, head)
	}
}

type oggStream struct {
	r       *oggvorbis.Reader
	scratch []float32
}

func (s *oggStream) SampleRate() int { return s.r.SampleRate() }
func (s *oggStream) Channels() int   { return s.r.Channels() }

func (s *oggStream) ReadFrames(dst [][]float32) (int, error) {
	channels := s.r.Channels()
	frames := len(dst[0])
	need := frames * channels
	if cap(s.scratch) < need {
		s.scratch = make([]float32, need)
	}
	s.scratch = s.scratch[:need]

	n, err := s.r.Read(s.scratch)
	got := n / channels
	for ch := range min(channels, len(dst)) {
		for i := range got {
			dst[ch][i] = s.scratch[i*channels+ch]
		}
	}
	if got == 0 && err != nil {
		return 0, err
	}
	return got, nil
}

type mp3Stream struct {
	r       *gomp3.Decoder
	scratch []byte
}

func (s *mp3Stream) SampleRate() int { return s.r.SampleRate() }
func (s *mp3Stream) Channels() int   { return 2 }

func (s *mp3Stream) ReadFrames(dst [][]float32) (int, error) {
	const channels = 2
	frames := len(dst[0])
	need := frames * channels * 2
	if cap(s.scratch) < need {
		s.scratch = make([]byte, need)
	}
	s.scratch = s.scratch[:need]

	n, err := io.ReadFull(s.r, s.scratch)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	got := n / (channels * 2)
	for ch := range min(channels, len(dst)) {
		for i := range got {
			v := int16(binary.LittleEndian.Uint16(s.scratch[2*(i*channels+ch):]))
			dst[ch][i] = float32(v) / 32768
		}
	}
	if got == 0 && err != nil {
		return 0, err
	}
	return got, nil
}
