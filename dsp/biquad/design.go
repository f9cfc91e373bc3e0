package biquad

import (
	"errors"
	"fmt"
	"math"
)

// FilterType selects the coefficient design.
type FilterType int

const (
	Lowpass FilterType = iota
	Highpass
	Bandpass
	Lowshelf
	Highshelf
	Peaking
	Notch
	Allpass
)

var filterNames = map[string]FilterType{
	"lowpass":   Lowpass,
	"highpass":  Highpass,
	"bandpass":  Bandpass,
	"lowshelf":  Lowshelf,
	"highshelf": Highshelf,
	"peaking":   Peaking,
	"notch":     Notch,
	"allpass":   Allpass,
}

// ErrUnknownFilterType is returned for an unrecognised filter type string.
var ErrUnknownFilterType = errors.New("biquad: unknown filter type")

// ParseFilterType resolves a host-facing type string.
func ParseFilterType(s string) (FilterType, error) {
	if t, ok := filterNames[s]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFilterType, s)
}

// String returns the host-facing name of the filter type.
func (t FilterType) String() string {
	for name, ft := range filterNames {
		if ft == t {
			return name
		}
	}
	return "unknown"
}

// Design computes coefficients for the given type.
//
// frequency is the corner/centre frequency in Hz, sampleRate in Hz, q the
// quality factor (interpreted in dB for lowpass/highpass, per the Web Audio
// convention), gainDB the shelf/peak gain in decibels. The frequency is
// clamped to [0, nyquist] and the design degenerates gracefully at the
// edges (unity or zero passthrough) instead of producing unstable poles.
func Design(t FilterType, frequency, sampleRate, q, gainDB float64) Coefficients {
	nyquist := sampleRate / 2
	freq := math.Min(math.Max(frequency, 0), nyquist)
	normFreq := freq / nyquist
	a := math.Pow(10, gainDB/40)

	switch t {
	case Lowpass:
		return designLowpass(normFreq, q)
	case Highpass:
		return designHighpass(normFreq, q)
	case Bandpass:
		return designBandpass(normFreq, q)
	case Lowshelf:
		return designLowshelf(normFreq, a)
	case Highshelf:
		return designHighshelf(normFreq, a)
	case Peaking:
		return designPeaking(normFreq, q, a)
	case Notch:
		return designNotch(normFreq, q)
	case Allpass:
		return designAllpass(normFreq, q)
	default:
		return passthrough()
	}
}

func passthrough() Coefficients { return Coefficients{B0: 1} }

func silence() Coefficients { return Coefficients{} }

func normalized(b0, b1, b2, a0, a1, a2 float64) Coefficients {
	inv := 1 / a0
	return Coefficients{
		B0: b0 * inv, B1: b1 * inv, B2: b2 * inv,
		A1: a1 * inv, A2: a2 * inv,
	}
}

// designLowpass follows the Web Audio convention: q is resonance in dB.
func designLowpass(normFreq, q float64) Coefficients {
	if normFreq >= 1 {
		return passthrough()
	}
	if normFreq <= 0 {
		return silence()
	}

	g := math.Pow(10, 0.05*q)
	d := math.Sqrt((4 - math.Sqrt(16-16/(g*g))) / 2)

	theta := math.Pi * normFreq
	sn := 0.5 * d * math.Sin(theta)
	beta := 0.5 * (1 - sn) / (1 + sn)
	gamma := (0.5 + beta) * math.Cos(theta)
	alpha := 0.25 * (0.5 + beta - gamma)

	return Coefficients{
		B0: 2 * alpha,
		B1: 4 * alpha,
		B2: 2 * alpha,
		A1: 2 * -gamma,
		A2: 2 * beta,
	}
}

func designHighpass(normFreq, q float64) Coefficients {
	if normFreq >= 1 {
		return silence()
	}
	if normFreq <= 0 {
		return passthrough()
	}

	g := math.Pow(10, 0.05*q)
	d := math.Sqrt((4 - math.Sqrt(16-16/(g*g))) / 2)

	theta := math.Pi * normFreq
	sn := 0.5 * d * math.Sin(theta)
	beta := 0.5 * (1 - sn) / (1 + sn)
	gamma := (0.5 + beta) * math.Cos(theta)
	alpha := 0.25 * (0.5 + beta + gamma)

	return Coefficients{
		B0: 2 * alpha,
		B1: -4 * alpha,
		B2: 2 * alpha,
		A1: 2 * -gamma,
		A2: 2 * beta,
	}
}

func designBandpass(normFreq, q float64) Coefficients {
	if normFreq <= 0 || normFreq >= 1 {
		return silence()
	}
	if q <= 0 {
		return passthrough()
	}

	w0 := math.Pi * normFreq
	alpha := math.Sin(w0) / (2 * q)
	k := math.Cos(w0)

	return normalized(alpha, 0, -alpha, 1+alpha, -2*k, 1-alpha)
}

func designLowshelf(normFreq, a float64) Coefficients {
	if normFreq >= 1 {
		return Coefficients{B0: a * a}
	}
	if normFreq <= 0 {
		return passthrough()
	}

	w0 := math.Pi * normFreq
	s := 1.0
	alpha := 0.5 * math.Sin(w0) * math.Sqrt((a+1/a)*(1/s-1)+2)
	k := math.Cos(w0)
	twoSqrtAAlpha := 2 * math.Sqrt(a) * alpha

	b0 := a * ((a + 1) - (a-1)*k + twoSqrtAAlpha)
	b1 := 2 * a * ((a - 1) - (a+1)*k)
	b2 := a * ((a + 1) - (a-1)*k - twoSqrtAAlpha)
	a0 := (a + 1) + (a-1)*k + twoSqrtAAlpha
	a1 := -2 * ((a - 1) + (a+1)*k)
	a2 := (a + 1) + (a-1)*k - twoSqrtAAlpha

	return normalized(b0, b1, b2, a0, a1, a2)
}

func designHighshelf(normFreq, a float64) Coefficients {
	if normFreq >= 1 {
		return passthrough()
	}
	if normFreq <= 0 {
		return Coefficients{B0: a * a}
	}

	w0 := math.Pi * normFreq
	s := 1.0
	alpha := 0.5 * math.Sin(w0) * math.Sqrt((a+1/a)*(1/s-1)+2)
	k := math.Cos(w0)
	twoSqrtAAlpha := 2 * math.Sqrt(a) * alpha

	b0 := a * ((a + 1) + (a-1)*k + twoSqrtAAlpha)
	b1 := -2 * a * ((a - 1) + (a+1)*k)
	b2 := a * ((a + 1) + (a-1)*k - twoSqrtAAlpha)
	a0 := (a + 1) - (a-1)*k + twoSqrtAAlpha
	a1 := 2 * ((a - 1) - (a+1)*k)
	a2 := (a + 1) - (a-1)*k - twoSqrtAAlpha

	return normalized(b0, b1, b2, a0, a1, a2)
}

func designPeaking(normFreq, q, a float64) Coefficients {
	if normFreq <= 0 || normFreq >= 1 {
		return passthrough()
	}
	if q <= 0 {
		return Coefficients{B0: a * a}
	}

	w0 := math.Pi * normFreq
	alpha := math.Sin(w0) / (2 * q)
	k := math.Cos(w0)

	return normalized(1+alpha*a, -2*k, 1-alpha*a, 1+alpha/a, -2*k, 1-alpha/a)
}

func designNotch(normFreq, q float64) Coefficients {
	if normFreq <= 0 || normFreq >= 1 {
		return passthrough()
	}
	if q <= 0 {
		return silence()
	}

	w0 := math.Pi * normFreq
	alpha := math.Sin(w0) / (2 * q)
	k := math.Cos(w0)

	return normalized(1, -2*k, 1, 1+alpha, -2*k, 1-alpha)
}

func designAllpass(normFreq, q float64) Coefficients {
	if normFreq <= 0 || normFreq >= 1 {
		return passthrough()
	}
	if q <= 0 {
		return Coefficients{B0: -1}
	}

	w0 := math.Pi * normFreq
	alpha := math.Sin(w0) / (2 * q)
	k := math.Cos(w0)

	return normalized(1-alpha, -2*k, 1+alpha, 1+alpha, -2*k, 1-alpha)
}
