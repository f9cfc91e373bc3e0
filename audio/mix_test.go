package audio

import (
	"math"
	"testing"
)

func filled(chans, frames int, base float32) *Buffer {
	b, _ := NewBuffer(chans, frames, 48000)
	for ch := range chans {
		c := b.Channel(ch)
		for i := range c {
			c[i] = base + float32(ch)
		}
	}
	return b
}

func TestSum_MonoToStereo(t *testing.T) {
	src := filled(1, 4, 1) // mono = 1
	dst := filled(2, 4, 0) // L = 0, R = 1
	dst.Sum(src, Speakers)
	if dst.Channel(0)[0] != 1 || dst.Channel(1)[0] != 2 {
		t.Fatalf("got L=%v R=%v, want L=1 R=2", dst.Channel(0)[0], dst.Channel(1)[0])
	}
}

func TestSum_MonoToFive1(t *testing.T) {
	src := filled(1, 4, 1)
	dst, _ := NewBuffer(6, 4, 48000)
	dst.Sum(src, Speakers)
	for ch := range 6 {
		want := float32(0)
		if ch == ChannelCenter {
			want = 1
		}
		if dst.Channel(ch)[0] != want {
			t.Fatalf("ch %d: got %v, want %v", ch, dst.Channel(ch)[0], want)
		}
	}
}

func TestSum_StereoToMono(t *testing.T) {
	src, _ := NewBuffer(2, 2, 48000)
	copy(src.Channel(0), []float32{1, 3})
	copy(src.Channel(1), []float32{2, 5})
	dst, _ := NewBuffer(1, 2, 48000)
	dst.Sum(src, Speakers)
	if dst.Channel(0)[0] != 1.5 || dst.Channel(0)[1] != 4 {
		t.Fatalf("got %v, want [1.5 4]", dst.Channel(0))
	}
}

func TestSum_QuadToStereo(t *testing.T) {
	src, _ := NewBuffer(4, 1, 48000)
	src.Channel(0)[0] = 1 // L
	src.Channel(1)[0] = 2 // R
	src.Channel(2)[0] = 3 // SL
	src.Channel(3)[0] = 4 // SR
	dst, _ := NewBuffer(2, 1, 48000)
	dst.Sum(src, Speakers)
	if dst.Channel(0)[0] != 2 || dst.Channel(1)[0] != 3 {
		t.Fatalf("got L=%v R=%v, want L=2 R=3", dst.Channel(0)[0], dst.Channel(1)[0])
	}
}

func TestSum_Five1ToMono(t *testing.T) {
	src, _ := NewBuffer(6, 1, 48000)
	for ch := range 6 {
		src.Channel(ch)[0] = 1
	}
	dst, _ := NewBuffer(1, 1, 48000)
	dst.Sum(src, Speakers)
	want := math.Sqrt2/2*2 + 1 + 0.5*2 // sqrt(1/2)*(L+R) + C + 0.5*(SL+SR), LFE dropped
	if math.Abs(float64(dst.Channel(0)[0])-want) > 1e-6 {
		t.Fatalf("got %v, want %v", dst.Channel(0)[0], want)
	}
}

func TestSum_Five1ToStereo(t *testing.T) {
	src, _ := NewBuffer(6, 1, 48000)
	src.Channel(ChannelLeft)[0] = 1
	src.Channel(ChannelRight)[0] = 2
	src.Channel(ChannelCenter)[0] = 4
	src.Channel(ChannelSurroundLeft)[0] = 8
	src.Channel(ChannelSurroundRight)[0] = 16
	dst, _ := NewBuffer(2, 1, 48000)
	dst.Sum(src, Speakers)
	s := math.Sqrt2 / 2
	wantL := 1 + s*(4+8)
	wantR := 2 + s*(4+16)
	if math.Abs(float64(dst.Channel(0)[0])-wantL) > 1e-5 {
		t.Fatalf("L got %v, want %v", dst.Channel(0)[0], wantL)
	}
	if math.Abs(float64(dst.Channel(1)[0])-wantR) > 1e-5 {
		t.Fatalf("R got %v, want %v", dst.Channel(1)[0], wantR)
	}
}

func TestSum_DiscreteDropsExtras(t *testing.T) {
	src := filled(4, 2, 1)
	dst, _ := NewBuffer(2, 2, 48000)
	dst.Sum(src, Discrete)
	if dst.Channel(0)[0] != 1 || dst.Channel(1)[0] != 2 {
		t.Fatalf("got %v %v", dst.Channel(0)[0], dst.Channel(1)[0])
	}
}

func TestSum_Accumulates(t *testing.T) {
	src := filled(2, 2, 1)
	dst := filled(2, 2, 0)
	dst.Sum(src, Speakers)
	dst.Sum(src, Speakers)
	if dst.Channel(0)[0] != 2 {
		t.Fatalf("got %v, want 2 (summed twice)", dst.Channel(0)[0])
	}
}

func TestSum_EqualCountsIsIdentitySum(t *testing.T) {
	src := filled(2, 2, 1)
	dst, _ := NewBuffer(2, 2, 48000)
	dst.Sum(src, Speakers)
	if dst.Channel(0)[0] != 1 || dst.Channel(1)[0] != 2 {
		t.Fatalf("got %v %v", dst.Channel(0)[0], dst.Channel(1)[0])
	}
}
