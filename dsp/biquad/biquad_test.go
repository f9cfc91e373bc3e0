package biquad

import (
	"math"
	"testing"
)

const eps = 1e-6

func TestProcessSample_Passthrough(t *testing.T) {
	s := NewSection(Coefficients{B0: 1})
	input := []float32{1, 0, -1, 0.5, 0.25}
	for i, x := range input {
		y := s.ProcessSample(x)
		if y != x {
			t.Errorf("sample %d: got %v, want %v", i, y, x)
		}
	}
}

func TestProcessBlock_MatchesSample(t *testing.T) {
	c := Coefficients{B0: 0.25, B1: 0.5, B2: 0.25, A1: -0.2, A2: 0.04}

	s1 := NewSection(c)
	input := []float32{1, 0.5, -0.3, 0.7, 0, -1, 0.2, 0.8}
	ref := make([]float32, len(input))
	for i, x := range input {
		ref[i] = s1.ProcessSample(x)
	}

	s2 := NewSection(c)
	block := make([]float32, len(input))
	copy(block, input)
	s2.ProcessBlock(block)

	for i := range block {
		if math.Abs(float64(block[i]-ref[i])) > eps {
			t.Errorf("sample %d: ProcessBlock=%v, ProcessSample=%v", i, block[i], ref[i])
		}
	}
}

func TestReset(t *testing.T) {
	s := NewSection(Coefficients{B0: 0.25, B1: 0.5, B2: 0.25, A1: -0.2, A2: 0.04})
	s.ProcessSample(1)
	s.ProcessSample(0.5)
	if s.State() == [2]float64{0, 0} {
		t.Fatal("state should be non-zero after processing")
	}
	s.Reset()
	if s.State() != [2]float64{0, 0} {
		t.Fatalf("state not zero after reset: %v", s.State())
	}
}

func TestDesignLowpass_DCUnityGain(t *testing.T) {
	c := Design(Lowpass, 1000, 44100, 0, 0)
	mag := make([]float64, 1)
	phase := make([]float64, 1)
	c.FrequencyResponse([]float64{0}, 44100, mag, phase)
	if math.Abs(mag[0]-1) > 1e-6 {
		t.Fatalf("DC gain %v, want 1", mag[0])
	}
	// Far above the corner the response must be well attenuated.
	c.FrequencyResponse([]float64{20000}, 44100, mag, phase)
	if mag[0] > 0.01 {
		t.Fatalf("stopband gain %v, want < 0.01", mag[0])
	}
}

func TestDesignHighpass_BlocksDC(t *testing.T) {
	c := Design(Highpass, 1000, 44100, 0, 0)
	mag := make([]float64, 2)
	phase := make([]float64, 2)
	c.FrequencyResponse([]float64{0, 20000}, 44100, mag, phase)
	if mag[0] > 1e-6 {
		t.Fatalf("DC gain %v, want ~0", mag[0])
	}
	if math.Abs(mag[1]-1) > 0.05 {
		t.Fatalf("passband gain %v, want ~1", mag[1])
	}
}

func TestDesignPeaking_CentreGain(t *testing.T) {
	gainDB := 6.0
	c := Design(Peaking, 1000, 44100, 1, gainDB)
	mag := make([]float64, 1)
	phase := make([]float64, 1)
	c.FrequencyResponse([]float64{1000}, 44100, mag, phase)
	wantGain := math.Pow(10, gainDB/20)
	if math.Abs(mag[0]-wantGain) > 0.01 {
		t.Fatalf("centre gain %v, want %v", mag[0], wantGain)
	}
}

func TestDesignNotch_CentreNull(t *testing.T) {
	c := Design(Notch, 1000, 44100, 10, 0)
	mag := make([]float64, 1)
	phase := make([]float64, 1)
	c.FrequencyResponse([]float64{1000}, 44100, mag, phase)
	if mag[0] > 1e-6 {
		t.Fatalf("notch centre gain %v, want ~0", mag[0])
	}
}

func TestDesignAllpass_UnityMagnitude(t *testing.T) {
	c := Design(Allpass, 1000, 44100, 1, 0)
	freqs := []float64{100, 1000, 5000, 15000}
	mag := make([]float64, len(freqs))
	phase := make([]float64, len(freqs))
	c.FrequencyResponse(freqs, 44100, mag, phase)
	for i, m := range mag {
		if math.Abs(m-1) > 1e-9 {
			t.Fatalf("freq %v: |H| = %v, want 1", freqs[i], m)
		}
	}
}

func TestFrequencyResponse_OutOfRangeNaN(t *testing.T) {
	c := Design(Lowpass, 1000, 44100, 0, 0)
	mag := make([]float64, 2)
	phase := make([]float64, 2)
	c.FrequencyResponse([]float64{-1, 23000}, 44100, mag, phase)
	for i := range mag {
		if !math.IsNaN(mag[i]) || !math.IsNaN(phase[i]) {
			t.Fatalf("index %d: got (%v, %v), want NaN", i, mag[i], phase[i])
		}
	}
}

func TestParseFilterType(t *testing.T) {
	ft, err := ParseFilterType("lowshelf")
	if err != nil || ft != Lowshelf {
		t.Fatalf("got (%v, %v)", ft, err)
	}
	if _, err := ParseFilterType("sideways"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}
