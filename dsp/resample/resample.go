// Package resample converts decoded PCM between sample rates.
//
// The converter is rational: the rate pair is reduced to an up/down factor
// pair and output samples are interpolated with a Blackman-windowed sinc
// kernel at the reduced ratio. It runs at decode time, off the audio thread,
// so clarity wins over per-sample cost.
package resample

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-audio/dsp/window"
)

// ErrInvalidRate is returned when either rate is not a positive integer.
var ErrInvalidRate = errors.New("resample: rates must be > 0")

// tapsPerSide is the one-sided kernel support in input samples (at the
// lower of the two rates).
const tapsPerSide = 16

// Resampler converts float32 streams from one fixed rate to another.
type Resampler struct {
	inRate, outRate int
	up, down        int
	cutoff          float64 // relative to the input Nyquist
	halfWidth       float64 // kernel half width in input samples
}

// New returns a converter between the two rates.
func New(inRate, outRate int) (*Resampler, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("%w: in=%d out=%d", ErrInvalidRate, inRate, outRate)
	}
	g := gcd(inRate, outRate)
	up := outRate / g
	down := inRate / g

	cutoff := 1.0
	halfWidth := float64(tapsPerSide)
	if outRate < inRate {
		// Downsampling: band-limit to the output Nyquist and widen the
		// kernel accordingly.
		cutoff = float64(outRate) / float64(inRate)
		halfWidth = float64(tapsPerSide) / cutoff
	}

	return &Resampler{
		inRate:  inRate,
		outRate: outRate,
		up:      up,
		down:    down,
		cutoff:  cutoff,
		halfWidth: halfWidth,
	}, nil
}

// Ratio returns the reduced up/down factor pair.
func (r *Resampler) Ratio() (up, down int) { return r.up, r.down }

// PredictOutputLen returns the output length for an input of n samples.
func (r *Resampler) PredictOutputLen(n int) int {
	return int(int64(n)*int64(r.up)/int64(r.down)) + boolToInt(int64(n)*int64(r.up)%int64(r.down) != 0)
}

// Process converts the whole input and returns a freshly allocated output.
// An identity ratio returns a copy.
func (r *Resampler) Process(in []float32) []float32 {
	if r.up == r.down {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	outLen := r.PredictOutputLen(len(in))
	out := make([]float32, outLen)

	for j := range out {
		// Output sample j sits at input position j*down/up.
		num := int64(j) * int64(r.down)
		n0 := int(num / int64(r.up))
		frac := float64(num%int64(r.up)) / float64(r.up)
		centre := float64(n0) + frac

		lo := int(math.Ceil(centre - r.halfWidth))
		hi := int(math.Floor(centre + r.halfWidth))
		if lo < 0 {
			lo = 0
		}
		if hi > len(in)-1 {
			hi = len(in) - 1
		}

		acc := 0.0
		for i := lo; i <= hi; i++ {
			u := float64(i) - centre
			acc += float64(in[i]) * r.tap(u)
		}
		out[j] = float32(acc)
	}

	return out
}

// tap evaluates the windowed-sinc kernel at offset u input samples from the
// output centre.
func (r *Resampler) tap(u float64) float64 {
	x := u / r.halfWidth // [-1, 1]
	if x <= -1 || x >= 1 {
		return 0
	}
	// Symmetric Blackman taper.
	const a0, a1, a2 = 0.42, 0.5, 0.08
	w := a0 + a1*math.Cos(math.Pi*x) + a2*math.Cos(2*math.Pi*x)
	return r.cutoff * window.Sinc(r.cutoff*u) * w
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
