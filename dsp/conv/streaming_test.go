package conv

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-audio/internal/testutil"
)

// directConvolve is the O(N*M) reference.
func directConvolve(signal, kernel []float32) []float32 {
	out := make([]float32, len(signal)+len(kernel)-1)
	for i, s := range signal {
		for j, k := range kernel {
			out[i+j] += s * k
		}
	}
	return out
}

func TestNewStreaming_Validation(t *testing.T) {
	if _, err := NewStreaming(nil, 128); err == nil {
		t.Fatal("expected error for empty IR")
	}
	if _, err := NewStreaming([]float32{1}, 100); err == nil {
		t.Fatal("expected error for non-power-of-two block")
	}
	if _, err := NewStreaming([]float32{1}, 0); err == nil {
		t.Fatal("expected error for zero block")
	}
}

func TestImpulseIdentity(t *testing.T) {
	s, err := NewStreaming([]float32{1}, 8)
	if err != nil {
		t.Fatalf("NewStreaming: %v", err)
	}
	if s.SegmentCount() != 1 {
		t.Fatalf("segments %d, want 1", s.SegmentCount())
	}
	in := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	out := make([]float32, 8)
	if err := s.Process(in, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 1e-6 {
			t.Fatalf("index %d: got %v, want %v", i, out[i], in[i])
		}
	}
}

func TestMatchesDirectConvolution(t *testing.T) {
	kernel := []float32{0.5, -0.25, 0.125, 1, -1, 0.75, 0.3, -0.6, 0.2, 0.1}
	const block = 8
	s, err := NewStreaming(kernel, block)
	if err != nil {
		t.Fatalf("NewStreaming: %v", err)
	}
	if s.SegmentCount() != 2 {
		t.Fatalf("segments %d, want 2", s.SegmentCount())
	}

	signal := make([]float32, 4*block)
	for i := range signal {
		signal[i] = float32(math.Sin(float64(i) * 0.37))
	}
	want := directConvolve(signal, kernel)

	got := make([]float32, 0, len(signal))
	out := make([]float32, block)
	for b := 0; b < len(signal); b += block {
		if err := s.Process(signal[b:b+block], out); err != nil {
			t.Fatalf("Process: %v", err)
		}
		got = append(got, out...)
	}

	testutil.RequireSliceNearlyEqual32(t, got, want[:len(got)], 1e-4)
}

func TestTailFlush(t *testing.T) {
	kernel := make([]float32, 24) // 3 segments at block 8
	kernel[23] = 1
	const block = 8
	s, _ := NewStreaming(kernel, block)
	if s.SegmentCount() != 3 {
		t.Fatalf("segments %d, want 3", s.SegmentCount())
	}

	out := make([]float32, block)
	in := make([]float32, block)
	in[0] = 1
	if err := s.Process(in, out); err != nil {
		t.Fatal(err)
	}
	// Silence afterwards: the delayed impulse appears 23 samples in.
	clear(in)
	var collected []float32
	collected = append(collected, out...)
	for range s.SegmentCount() {
		if err := s.Process(in, out); err != nil {
			t.Fatal(err)
		}
		collected = append(collected, out...)
	}
	for i, v := range collected {
		want := float32(0)
		if i == 23 {
			want = 1
		}
		if math.Abs(float64(v-want)) > 1e-5 {
			t.Fatalf("index %d: got %v, want %v", i, v, want)
		}
	}
}

func TestReset(t *testing.T) {
	s, _ := NewStreaming([]float32{0, 0, 0, 1}, 4)
	in := []float32{1, 1, 1, 1}
	out := make([]float32, 4)
	_ = s.Process(in, out)
	s.Reset()
	clear(in)
	_ = s.Process(in, out)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("index %d: got %v after reset, want 0", i, v)
		}
	}
}
