package stretch

import (
	"math"
	"testing"
)

func sine(n int, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i)))
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
	if _, err := New(math.NaN()); err == nil {
		t.Fatal("expected error for NaN sample rate")
	}
}

func TestLatenciesPositive(t *testing.T) {
	s, err := New(44100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.InputLatency() <= 0 || s.OutputLatency() <= 0 {
		t.Fatalf("latencies (%d, %d) must be positive", s.InputLatency(), s.OutputLatency())
	}
	if s.InputLatency() <= s.OutputLatency() {
		t.Fatal("input latency should exceed the crossfade tail")
	}
}

func TestUnityRatePassesSignalThrough(t *testing.T) {
	s, _ := New(44100)
	in := sine(44100/2, 440.0/44100)
	s.Push(in)

	out := make([]float32, 8192)
	n := s.Pull(out)
	if n != len(out) {
		t.Fatalf("pulled %d, want %d", n, len(out))
	}
	// The seeded head is committed verbatim at rate 1.
	for i := range 1024 {
		if math.Abs(float64(out[i]-in[i])) > 1e-6 {
			t.Fatalf("index %d: got %v, want %v", i, out[i], in[i])
		}
	}
}

func TestRateScalesOutputLength(t *testing.T) {
	for _, rate := range []float64{0.5, 2.0} {
		s, _ := New(44100)
		s.SetRate(rate)
		in := sine(44100, 220.0/44100)
		s.Push(in)

		total := 0
		out := make([]float32, 4096)
		for {
			n := s.Pull(out)
			total += n
			if n < len(out) {
				break
			}
		}

		want := float64(len(in)) / rate
		if math.Abs(float64(total)-want) > want*0.1 {
			t.Fatalf("rate %v: produced %d samples, want ~%v", rate, total, want)
		}
	}
}

func TestSetRateClampsInvalid(t *testing.T) {
	s, _ := New(48000)
	s.SetRate(math.NaN())
	if s.Rate() != 1 {
		t.Fatalf("rate %v, want 1", s.Rate())
	}
	s.SetRate(-3)
	if s.Rate() != 1 {
		t.Fatalf("rate %v, want 1", s.Rate())
	}
	s.SetRate(1e9)
	if s.Rate() != 32 {
		t.Fatalf("rate %v, want clamp to 32", s.Rate())
	}
}

func TestPullZeroFillsOnUnderflow(t *testing.T) {
	s, _ := New(44100)
	out := []float32{9, 9, 9}
	if n := s.Pull(out); n != 0 {
		t.Fatalf("pulled %d from empty stretcher", n)
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("index %d: got %v, want 0", i, v)
		}
	}
}

func TestReset(t *testing.T) {
	s, _ := New(44100)
	s.Push(sine(44100/4, 0.01))
	out := make([]float32, 1024)
	s.Pull(out)
	s.Reset()
	if s.Available() != 0 {
		t.Fatalf("available %d after reset", s.Available())
	}
}
