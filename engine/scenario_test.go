package engine

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-audio/audio"
)

// Constant source at unity: one block of 1.0 on every channel, then 0.5
// after the offset changes.
func TestConstantSourceUnity(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))

	src, err := ctx.CreateConstantSource(nil)
	if err != nil {
		t.Fatalf("CreateConstantSource: %v", err)
	}
	if err := src.Connect(ctx.Destination()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := src.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}

	out := ctx.dest.renderQuantum()
	for ch := range out.ChannelCount() {
		for i, v := range out.Channel(ch) {
			if v != 1.0 {
				t.Fatalf("block 1 ch %d sample %d: got %v, want 1", ch, i, v)
			}
		}
	}

	src.Offset().SetValue(0.5)
	out = ctx.dest.renderQuantum()
	for ch := range out.ChannelCount() {
		for i, v := range out.Channel(ch) {
			if v != 0.5 {
				t.Fatalf("block 2 ch %d sample %d: got %v, want 0.5", ch, i, v)
			}
		}
	}
}

// Gain modulates: [1,2,3,4] * 0.5.
func TestGainModulates(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))

	gain, err := ctx.CreateGain(&GainOptions{Gain: 0.5})
	if err != nil {
		t.Fatalf("CreateGain: %v", err)
	}

	buf, _ := audio.NewBuffer(1, RenderQuantum, 44100)
	copy(buf.Channel(0), []float32{1, 2, 3, 4})
	out := gain.processNode(buf, 4)

	want := []float32{0.5, 1.0, 1.5, 2.0}
	for i := range want {
		if out.Channel(0)[i] != want[i] {
			t.Fatalf("sample %d: got %v, want %v", i, out.Channel(0)[i], want[i])
		}
	}
}

// Gain identity: a-rate gain of 1 passes the signal through unchanged.
func TestGainIdentity(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))
	gain, _ := ctx.CreateGain(nil)

	buf, _ := audio.NewBuffer(2, RenderQuantum, 44100)
	for ch := range 2 {
		for i := range buf.Channel(ch) {
			buf.Channel(ch)[i] = float32(math.Sin(float64(i)*0.1 + float64(ch)))
		}
	}
	want := buf.Clone()
	out := gain.processNode(buf, RenderQuantum)
	for ch := range 2 {
		for i := range out.Channel(ch) {
			if out.Channel(ch)[i] != want.Channel(ch)[i] {
				t.Fatalf("ch %d sample %d: got %v, want %v",
					ch, i, out.Channel(ch)[i], want.Channel(ch)[i])
			}
		}
	}
}

// Delay shift: 64-frame delay over two ramp blocks.
func TestDelayShift(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))
	delay, err := ctx.CreateDelay(&DelayOptions{DelayTime: 64.0 / 44100})
	if err != nil {
		t.Fatalf("CreateDelay: %v", err)
	}

	ramp := func() *audio.Buffer {
		buf, _ := audio.NewBuffer(1, RenderQuantum, 44100)
		for i := range buf.Channel(0) {
			buf.Channel(0)[i] = float32(i + 1)
		}
		return buf
	}

	out := delay.processNode(ramp(), RenderQuantum)
	for i := range 64 {
		if out.Channel(0)[i] != 0 {
			t.Fatalf("block 1 sample %d: got %v, want 0", i, out.Channel(0)[i])
		}
	}
	for i := 64; i < RenderQuantum; i++ {
		if want := float32(i - 63); out.Channel(0)[i] != want {
			t.Fatalf("block 1 sample %d: got %v, want %v", i, out.Channel(0)[i], want)
		}
	}

	out = delay.processNode(ramp(), RenderQuantum)
	for i := range 64 {
		if want := float32(65 + i); out.Channel(0)[i] != want {
			t.Fatalf("block 2 sample %d: got %v, want %v", i, out.Channel(0)[i], want)
		}
	}
	for i := 64; i < RenderQuantum; i++ {
		if want := float32(i - 63); out.Channel(0)[i] != want {
			t.Fatalf("block 2 sample %d: got %v, want %v", i, out.Channel(0)[i], want)
		}
	}
}

// Delay identity: zero delay passes the block through sample for sample.
func TestDelayIdentityAtZero(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))
	delay, _ := ctx.CreateDelay(&DelayOptions{MaxDelayTime: 1})

	buf, _ := audio.NewBuffer(1, RenderQuantum, 44100)
	for i := range buf.Channel(0) {
		buf.Channel(0)[i] = float32(i) * 0.25
	}
	want := buf.Clone()
	out := delay.processNode(buf, RenderQuantum)
	for i := range out.Channel(0) {
		if out.Channel(0)[i] != want.Channel(0)[i] {
			t.Fatalf("sample %d: got %v, want %v", i, out.Channel(0)[i], want.Channel(0)[i])
		}
	}
}

// Stereo pan +0.5 on a mono input.
func TestPanMonoInput(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))
	panner, _ := ctx.CreateStereoPanner(&StereoPannerOptions{Pan: 0.5})

	buf, _ := audio.NewBuffer(1, RenderQuantum, 44100)
	copy(buf.Channel(0), []float32{1, 2, 3, 4})
	out := panner.processNode(buf, 4)

	cosv := math.Cos(0.75 * math.Pi / 2)
	sinv := math.Sin(0.75 * math.Pi / 2)
	for i := range 4 {
		wantL := cosv * float64(i+1)
		wantR := sinv * float64(i+1)
		if math.Abs(float64(out.Channel(0)[i])-wantL) > 1e-4 {
			t.Fatalf("L[%d]: got %v, want %v", i, out.Channel(0)[i], wantL)
		}
		if math.Abs(float64(out.Channel(1)[i])-wantR) > 1e-4 {
			t.Fatalf("R[%d]: got %v, want %v", i, out.Channel(1)[i], wantR)
		}
	}
}

// Stereo pan -0.5 on a stereo input.
func TestPanStereoInput(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))
	panner, _ := ctx.CreateStereoPanner(&StereoPannerOptions{Pan: -0.5})

	buf, _ := audio.NewBuffer(2, RenderQuantum, 44100)
	copy(buf.Channel(0), []float32{1, 2, 3, 4})
	copy(buf.Channel(1), []float32{1, 2, 3, 4})
	out := panner.processNode(buf, 4)

	g := math.Sqrt2 / 2
	for i := range 4 {
		in := float64(i + 1)
		wantL := in + in*g
		wantR := in * g
		if math.Abs(float64(out.Channel(0)[i])-wantL) > 1e-4 {
			t.Fatalf("L[%d]: got %v, want %v", i, out.Channel(0)[i], wantL)
		}
		if math.Abs(float64(out.Channel(1)[i])-wantR) > 1e-4 {
			t.Fatalf("R[%d]: got %v, want %v", i, out.Channel(1)[i], wantR)
		}
	}
}

// Pan identities: 0 passes stereo through; hard pans silence one side.
func TestPanIdentities(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))

	mk := func() *audio.Buffer {
		buf, _ := audio.NewBuffer(2, RenderQuantum, 44100)
		for i := range buf.Channel(0) {
			buf.Channel(0)[i] = float32(i + 1)
			buf.Channel(1)[i] = float32(i + 1)
		}
		return buf
	}

	centre, _ := ctx.CreateStereoPanner(nil)
	out := centre.processNode(mk(), RenderQuantum)
	for i := range RenderQuantum {
		if math.Abs(float64(out.Channel(0)[i])-float64(i+1)) > 1e-4 ||
			math.Abs(float64(out.Channel(1)[i])-float64(i+1)) > 1e-4 {
			t.Fatalf("pan 0 sample %d: got (%v, %v)", i, out.Channel(0)[i], out.Channel(1)[i])
		}
	}

	left, _ := ctx.CreateStereoPanner(&StereoPannerOptions{Pan: -1})
	out = left.processNode(mk(), RenderQuantum)
	for i := range RenderQuantum {
		if math.Abs(float64(out.Channel(1)[i])) > 1e-6 {
			t.Fatalf("pan -1 right sample %d: got %v, want 0", i, out.Channel(1)[i])
		}
	}

	right, _ := ctx.CreateStereoPanner(&StereoPannerOptions{Pan: 1})
	out = right.processNode(mk(), RenderQuantum)
	for i := range RenderQuantum {
		if math.Abs(float64(out.Channel(0)[i])) > 1e-6 {
			t.Fatalf("pan +1 left sample %d: got %v, want 0", i, out.Channel(0)[i])
		}
	}
}

// Linear ramp automation at 0.5 s, 1.0 s and 2.0 s.
func TestLinearRampAutomation(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))
	p := newParam(ctx.contextCore, 0, -1, 1)

	if err := p.SetValueAtTime(0, 0); err != nil {
		t.Fatalf("SetValueAtTime: %v", err)
	}
	if err := p.LinearRampToValueAtTime(1, 1); err != nil {
		t.Fatalf("LinearRampToValueAtTime: %v", err)
	}

	const sr = 44100.0
	var samples []float32
	// Render 2.1 seconds of a-rate blocks.
	blocks := int(2.1 * sr / RenderQuantum)
	for b := range blocks {
		tStart := float64(b*RenderQuantum) / sr
		buf := p.ProcessARate(RenderQuantum, tStart)
		samples = append(samples, buf.Channel(0)...)
	}

	at := func(sec float64) float32 { return samples[int(sec*sr)] }
	if v := at(0.5); math.Abs(float64(v)-0.5) > 1e-6 {
		t.Fatalf("t=0.5s: got %v, want 0.5", v)
	}
	if v := at(1.0); v != 1.0 {
		t.Fatalf("t=1.0s: got %v, want 1.0", v)
	}
	if v := at(2.0); v != 1.0 {
		t.Fatalf("t=2.0s: got %v, want 1.0", v)
	}
}
