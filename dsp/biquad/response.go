package biquad

import (
	"math"
	"math/cmplx"
)

// FrequencyResponse evaluates |H| and arg H of the section's transfer
// function at each frequency in freqs (Hz) for the given sample rate.
// Frequencies outside [0, nyquist] yield NaN in both outputs.
func (c Coefficients) FrequencyResponse(freqs []float64, sampleRate float64, mag, phase []float64) {
	nyquist := sampleRate / 2
	n := min(len(freqs), min(len(mag), len(phase)))

	for i := range n {
		norm := freqs[i] / nyquist
		if norm < 0 || norm > 1 || math.IsNaN(norm) {
			mag[i] = math.NaN()
			phase[i] = math.NaN()
			continue
		}

		// z^-1 on the unit circle at the normalised frequency.
		omega := math.Pi * norm
		z := cmplx.Exp(complex(0, -omega))

		num := complex(c.B0, 0) + complex(c.B1, 0)*z + complex(c.B2, 0)*z*z
		den := complex(1, 0) + complex(c.A1, 0)*z + complex(c.A2, 0)*z*z
		h := num / den

		mag[i] = cmplx.Abs(h)
		phase[i] = cmplx.Phase(h)
	}
}
