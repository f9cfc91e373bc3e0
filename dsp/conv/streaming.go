// Package conv implements streaming FFT convolution for the convolver node.
//
// The impulse response is split into uniform partitions of one render block
// each. Input blocks are transformed once and kept in a frequency-domain
// delay line; each output block is the inverse transform of the summed
// products of the delay line with the partition spectra (overlap-save, so no
// explicit addition of tails is needed). Per-block latency is zero: the
// first output block already contains the head of the response.
package conv

import (
	"errors"
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// Errors specific to streaming convolution.
var (
	ErrEmptyImpulseResponse = errors.New("conv: empty impulse response")
	ErrInvalidBlockSize     = errors.New("conv: invalid block size")
	ErrLengthMismatch       = errors.New("conv: buffer length mismatch")
)

// Streaming is a uniformly partitioned overlap-save convolver processing
// fixed-size blocks.
type Streaming struct {
	blockSize int
	fftSize   int // 2 * blockSize
	segCount  int

	plan      *algofft.Plan[complex128]
	irSpectra [][]complex128

	// Frequency-domain delay line, one spectrum per past input block,
	// written ring-wise at fdlPos.
	fdl    [][]complex128
	fdlPos int

	inputBuf  []float64    // sliding time-domain window of fftSize samples
	signalBuf []complex128 // FFT scratch
	accumBuf  []complex128 // spectrum accumulator
}

// NewStreaming creates a convolver for the given impulse response and block
// size. blockSize must be a power of two.
func NewStreaming(ir []float32, blockSize int) (*Streaming, error) {
	if len(ir) == 0 {
		return nil, ErrEmptyImpulseResponse
	}
	if blockSize <= 0 || blockSize&(blockSize-1) != 0 {
		return nil, fmt.Errorf("%w: %d (must be a power of two)", ErrInvalidBlockSize, blockSize)
	}

	fftSize := 2 * blockSize
	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("conv: FFT plan init (size=%d): %w", fftSize, err)
	}

	segCount := (len(ir) + blockSize - 1) / blockSize

	s := &Streaming{
		blockSize: blockSize,
		fftSize:   fftSize,
		segCount:  segCount,
		plan:      plan,
		irSpectra: make([][]complex128, segCount),
		fdl:       make([][]complex128, segCount),
		inputBuf:  make([]float64, fftSize),
		signalBuf: make([]complex128, fftSize),
		accumBuf:  make([]complex128, fftSize),
	}

	// Pre-transform each partition, zero-padded to fftSize.
	for seg := range segCount {
		clear(s.signalBuf)
		start := seg * blockSize
		end := min(start+blockSize, len(ir))
		for i, v := range ir[start:end] {
			s.signalBuf[i] = complex(float64(v), 0)
		}
		spectrum := make([]complex128, fftSize)
		if err := plan.Forward(spectrum, s.signalBuf); err != nil {
			return nil, fmt.Errorf("conv: IR partition transform (seg=%d): %w", seg, err)
		}
		s.irSpectra[seg] = spectrum
		s.fdl[seg] = make([]complex128, fftSize)
	}

	return s, nil
}

// BlockSize returns the fixed block length in samples.
func (s *Streaming) BlockSize() int { return s.blockSize }

// SegmentCount returns the number of IR partitions; a silent input must be
// processed this many more blocks to flush the tail completely.
func (s *Streaming) SegmentCount() int { return s.segCount }

// Process convolves one block. in and out must both be BlockSize samples;
// they may alias.
func (s *Streaming) Process(in, out []float32) error {
	if len(in) != s.blockSize || len(out) != s.blockSize {
		return fmt.Errorf("%w: in=%d out=%d, want %d",
			ErrLengthMismatch, len(in), len(out), s.blockSize)
	}

	// Slide the input window left by one block and append the new block.
	copy(s.inputBuf, s.inputBuf[s.blockSize:])
	for i, v := range in {
		s.inputBuf[s.blockSize+i] = float64(v)
	}

	// Transform the window into the delay line slot for this block.
	for i, v := range s.inputBuf {
		s.signalBuf[i] = complex(v, 0)
	}
	if err := s.plan.Forward(s.fdl[s.fdlPos], s.signalBuf); err != nil {
		return fmt.Errorf("conv: input transform: %w", err)
	}

	// Accumulate sum_k FDL[pos-k] * IR[k].
	clear(s.accumBuf)
	for seg := range s.segCount {
		slot := s.fdlPos - seg
		if slot < 0 {
			slot += s.segCount
		}
		x := s.fdl[slot]
		h := s.irSpectra[seg]
		for i := range s.accumBuf {
			s.accumBuf[i] += x[i] * h[i]
		}
	}

	if err := s.plan.Inverse(s.signalBuf, s.accumBuf); err != nil {
		return fmt.Errorf("conv: inverse transform: %w", err)
	}

	// Overlap-save: the first blockSize samples are circular wrap-around;
	// only the second half is valid output.
	for i := range out {
		out[i] = float32(real(s.signalBuf[s.blockSize+i]))
	}

	s.fdlPos++
	if s.fdlPos == s.segCount {
		s.fdlPos = 0
	}

	return nil
}

// Reset clears all internal state, ready for a fresh signal stream.
func (s *Streaming) Reset() {
	clear(s.inputBuf)
	for _, spec := range s.fdl {
		clear(spec)
	}
	s.fdlPos = 0
}
