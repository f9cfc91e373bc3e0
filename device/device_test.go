package device

import (
	"math"
	"testing"
)

func TestCallbackReader(t *testing.T) {
	r := &callbackReader{
		channels: 2,
		cb: func(out []float32, frames int) {
			for i := range frames {
				out[2*i] = float32(i)
				out[2*i+1] = -float32(i)
			}
		},
	}

	// 3 frames of stereo float32 = 24 bytes.
	p := make([]byte, 24)
	n, err := r.Read(p)
	if err != nil || n != 24 {
		t.Fatalf("Read: (%d, %v)", n, err)
	}
	for i := range 3 {
		l := math.Float32frombits(uint32(p[8*i]) | uint32(p[8*i+1])<<8 |
			uint32(p[8*i+2])<<16 | uint32(p[8*i+3])<<24)
		if l != float32(i) {
			t.Fatalf("frame %d L: got %v, want %v", i, l, float32(i))
		}
	}
}

func TestCallbackReader_ShortBuffer(t *testing.T) {
	r := &callbackReader{channels: 2, cb: func(out []float32, frames int) {}}
	n, err := r.Read(make([]byte, 4)) // less than one stereo frame
	if err != nil || n != 0 {
		t.Fatalf("got (%d, %v), want (0, nil)", n, err)
	}
}

func TestOpen_Validation(t *testing.T) {
	if _, err := Open(0, 2, func([]float32, int) {}); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
	if _, err := Open(44100, 2, nil); err == nil {
		t.Fatal("expected error for nil callback")
	}
}
