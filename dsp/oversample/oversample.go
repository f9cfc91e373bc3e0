// Package oversample provides the 2x/4x up/down sampling chain used by the
// waveshaper to reduce harmonic aliasing.
//
// Both directions filter with the same Blackman-windowed sinc FIR designed
// at the oversampled rate; upsampling zero-stuffs before the filter (with
// the kernel scaled by the factor to restore gain), downsampling filters
// before decimating.
package oversample

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-audio/dsp/window"
)

// Factor is the oversampling ratio.
type Factor int

const (
	None      Factor = 1
	Twice     Factor = 2
	Quadruple Factor = 4
)

// ParseFactor resolves the host-facing oversample strings "none", "2x", "4x".
func ParseFactor(s string) (Factor, error) {
	switch s {
	case "none", "":
		return None, nil
	case "2x":
		return Twice, nil
	case "4x":
		return Quadruple, nil
	default:
		return None, fmt.Errorf("oversample: unknown factor %q", s)
	}
}

// String returns the host-facing factor name.
func (f Factor) String() string {
	switch f {
	case Twice:
		return "2x"
	case Quadruple:
		return "4x"
	default:
		return "none"
	}
}

// tapsPerPhase is the kernel length per output phase; total kernel length is
// tapsPerPhase * factor + 1, a small multiple of the target rate.
const tapsPerPhase = 16

// ErrInvalidBlockSize is returned for a non-positive block size.
var ErrInvalidBlockSize = errors.New("oversample: block size must be > 0")

// Chain is a stateful up/down sampler pair for one channel of fixed-size
// blocks.
type Chain struct {
	factor    int
	blockSize int

	kernel []float32

	upHist   []float32 // trailing input samples at the base rate
	downHist []float32 // trailing samples at the oversampled rate

	upScratch   []float32 // zero-stuffed input with history prefix
	downScratch []float32 // oversampled input with history prefix
	upOut       []float32
}

// NewChain creates a sampling chain for the given factor and base-rate
// block size.
func NewChain(factor Factor, blockSize int) (*Chain, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, blockSize)
	}
	if factor != Twice && factor != Quadruple {
		return nil, fmt.Errorf("oversample: unsupported factor %d", factor)
	}

	f := int(factor)
	// Odd length keeps the total up+down group delay an integer number of
	// base-rate samples (tapsPerPhase).
	taps := tapsPerPhase*f + 1
	kernel := sincKernel(taps, f)

	return &Chain{
		factor:      f,
		blockSize:   blockSize,
		kernel:      kernel,
		upHist:      make([]float32, (taps-1+f-1)/f),
		downHist:    make([]float32, taps-1),
		upScratch:   make([]float32, ((taps-1+f-1)/f)*f+blockSize*f),
		downScratch: make([]float32, taps-1+blockSize*f),
		upOut:       make([]float32, blockSize*f),
	}, nil
}

// sincKernel designs a lowpass FIR at cutoff 1/factor of the oversampled
// Nyquist (the base-rate Nyquist), Blackman-windowed.
func sincKernel(taps, factor int) []float32 {
	coeffs := window.Generate(window.TypeBlackman, taps)
	centre := float64(taps-1) / 2
	cutoff := 1 / float64(factor) // normalised to the oversampled Nyquist

	sum := 0.0
	for i := range coeffs {
		coeffs[i] *= window.Sinc(cutoff * (float64(i) - centre))
		sum += coeffs[i]
	}
	// Unity DC gain.
	kernel := make([]float32, taps)
	for i := range coeffs {
		kernel[i] = float32(coeffs[i] / sum)
	}
	return kernel
}

// Factor returns the oversampling ratio.
func (c *Chain) Factor() int { return c.factor }

// Upsample converts one base-rate block to the oversampled rate. The
// returned slice is owned by the chain and valid until the next call.
func (c *Chain) Upsample(in []float32) []float32 {
	f := c.factor
	histLen := len(c.upHist) * f

	// Zero-stuff history + input into the scratch buffer, scaled by the
	// factor to compensate for the inserted zeros.
	clear(c.upScratch)
	for i, v := range c.upHist {
		c.upScratch[i*f] = v * float32(f)
	}
	for i, v := range in {
		c.upScratch[histLen+i*f] = v * float32(f)
	}

	for m := range c.upOut {
		pos := histLen + m
		var acc float32
		for k, h := range c.kernel {
			acc += h * c.upScratch[pos-k]
		}
		c.upOut[m] = acc
	}

	// Keep the tail of the base-rate input as history.
	copy(c.upHist, in[len(in)-len(c.upHist):])

	return c.upOut
}

// Downsample converts one oversampled block (blockSize*factor samples) back
// to the base rate, writing blockSize samples into out.
func (c *Chain) Downsample(in, out []float32) {
	taps := len(c.kernel)
	histLen := taps - 1

	copy(c.downScratch, c.downHist)
	copy(c.downScratch[histLen:], in)

	f := c.factor
	for m := range out {
		pos := histLen + m*f
		var acc float32
		for k, h := range c.kernel {
			acc += h * c.downScratch[pos-k]
		}
		out[m] = acc
	}

	copy(c.downHist, c.downScratch[len(c.downScratch)-histLen:])
}

// Reset clears the filter history.
func (c *Chain) Reset() {
	clear(c.upHist)
	clear(c.downHist)
}
