// Package window generates analysis windows for the FFT-based parts of the
// engine (analyser snapshots, sinc kernel shaping).
package window

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Type identifies a window function.
type Type int

const (
	TypeRectangular Type = iota
	TypeHann
	TypeBlackman
)

// Option configures window generation.
type Option func(*config)

type config struct {
	wola bool
}

// WithWOLA normalises the coefficients to unit DC gain (the weighted
// overlap-add convention), so that analysis magnitudes are comparable across
// window types.
func WithWOLA() Option {
	return func(c *config) {
		c.wola = true
	}
}

// Generate returns the window coefficients for the given type and length.
// The periodic (FFT framing) form is used.
func Generate(t Type, length int, opts ...Option) []float64 {
	if length <= 0 {
		return nil
	}
	var cfg config
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	coeffs := make([]float64, length)
	switch t {
	case TypeHann:
		for i := range coeffs {
			coeffs[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(length))
		}
	case TypeBlackman:
		const a0, a1, a2 = 0.42, 0.5, 0.08
		for i := range coeffs {
			x := 2 * math.Pi * float64(i) / float64(length)
			coeffs[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
		}
	default:
		for i := range coeffs {
			coeffs[i] = 1
		}
	}

	if cfg.wola {
		sum := 0.0
		for _, v := range coeffs {
			sum += v
		}
		if sum > 0 {
			scale := float64(length) / sum
			for i := range coeffs {
				coeffs[i] *= scale
			}
		}
	}

	return coeffs
}

// Apply multiplies buf element-wise by coeffs. Lengths must match.
func Apply(buf, coeffs []float64) {
	vecmath.MulBlockInPlace(buf, coeffs)
}

// Sinc returns the normalised sinc function sin(pi x)/(pi x).
func Sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}
