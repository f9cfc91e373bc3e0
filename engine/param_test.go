package engine

import (
	"math"
	"testing"
)

func testParam(t *testing.T) (*Param, *Context) {
	t.Helper()
	ctx := newTestContext(t, WithSampleRate(44100))
	return newParam(ctx.contextCore, 0.5, -10, 10), ctx
}

func TestParamDefaults(t *testing.T) {
	p, _ := testParam(t)
	if p.Value() != 0.5 || p.DefaultValue() != 0.5 {
		t.Fatalf("value %v, default %v", p.Value(), p.DefaultValue())
	}
	if p.MinValue() != -10 || p.MaxValue() != 10 {
		t.Fatalf("range (%v, %v)", p.MinValue(), p.MaxValue())
	}
}

func TestParamBeforeFirstAndAfterLastEvent(t *testing.T) {
	p, _ := testParam(t)
	_ = p.SetValueAtTime(2, 1.0)
	_ = p.LinearRampToValueAtTime(4, 2.0)

	// Strictly before the first event: default value.
	buf := p.ProcessARate(RenderQuantum, 0)
	if v := buf.Channel(0)[0]; v != 0.5 {
		t.Fatalf("before first event: got %v, want 0.5", v)
	}

	// March the queue forward past every event.
	for tSec := 0.0; tSec < 3; tSec += float64(RenderQuantum) / 44100 {
		p.ProcessARate(RenderQuantum, tSec)
	}
	if v := p.ProcessKRate(RenderQuantum, 3.0); v != 4 {
		t.Fatalf("after last event: got %v, want 4", v)
	}
}

func TestParamSetValueClamped(t *testing.T) {
	p, _ := testParam(t)
	p.SetValue(100)
	if p.Value() != 10 {
		t.Fatalf("got %v, want clamp to 10", p.Value())
	}
	p.SetValue(-100)
	if p.Value() != -10 {
		t.Fatalf("got %v, want clamp to -10", p.Value())
	}
}

func TestExponentialRampValidation(t *testing.T) {
	p, _ := testParam(t)
	if err := p.ExponentialRampToValueAtTime(0, 1); err == nil {
		t.Fatal("zero target accepted")
	}
	if err := p.ExponentialRampToValueAtTime(-1, 1); err == nil {
		t.Fatal("negative target accepted")
	}
	if err := p.ExponentialRampToValueAtTime(1, 1); err != nil {
		t.Fatalf("valid ramp rejected: %v", err)
	}
}

func TestExponentialRampCurve(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))
	p := newParam(ctx.contextCore, 1, 0, 100)

	_ = p.SetValueAtTime(1, 0)
	_ = p.ExponentialRampToValueAtTime(8, 3.0)

	var got float32
	for tSec := 0.0; tSec < 1.5; tSec += float64(RenderQuantum) / 44100 {
		buf := p.ProcessARate(RenderQuantum, tSec)
		got = buf.Channel(0)[0]
	}
	// Midpoint of 1 -> 8 over 3 s at t≈1.5 s: 1 * 8^(0.5) ≈ 2.828.
	if math.Abs(float64(got)-math.Sqrt(8)) > 0.05 {
		t.Fatalf("t=1.5s: got %v, want ~%v", got, math.Sqrt(8))
	}
}

func TestSetTargetDecay(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))
	p := newParam(ctx.contextCore, 1, 0, 10)

	_ = p.SetTargetAtTime(0, 0.1, 0.2)

	var got float32
	for tSec := 0.0; tSec < 0.301; tSec += float64(RenderQuantum) / 44100 {
		buf := p.ProcessARate(RenderQuantum, tSec)
		got = buf.Channel(0)[0]
	}
	// One time constant past the start: 0 + (1-0)*exp(-1) ≈ 0.3679.
	if math.Abs(float64(got)-math.Exp(-1)) > 0.02 {
		t.Fatalf("after one tau: got %v, want ~%v", got, math.Exp(-1))
	}
}

func TestSetValueCurve(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))
	p := newParam(ctx.contextCore, 0, -1, 1)

	_ = p.SetValueCurveAtTime([]float32{0, 1, 0}, 0.1, 1.0)

	samples := map[float64]float64{
		0.35: 0.5, // quarter through: first segment midpoint
		0.6:  1.0, // halfway: curve peak
		1.2:  0,   // done: final value
	}
	var got float32
	check := func(at float64, want float64) {
		if math.Abs(float64(got)-want) > 0.02 {
			t.Fatalf("t=%v: got %v, want %v", at, got, want)
		}
	}
	for tSec := 0.0; tSec < 1.3; tSec += float64(RenderQuantum) / 44100 {
		buf := p.ProcessARate(RenderQuantum, tSec)
		got = buf.Channel(0)[0]
		for at, want := range samples {
			if tSec >= at && tSec < at+float64(RenderQuantum)/44100 {
				check(at, want)
			}
		}
	}
}

func TestCancelScheduledValues(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))
	p := newParam(ctx.contextCore, 0, -10, 10)

	_ = p.SetValueAtTime(1, 0.5)
	_ = p.SetValueAtTime(5, 2.0)
	_ = p.CancelScheduledValues(1.0)

	var got float32
	for tSec := 0.0; tSec < 3; tSec += float64(RenderQuantum) / 44100 {
		got = p.ProcessARate(RenderQuantum, tSec).Channel(0)[0]
	}
	if got != 1 {
		t.Fatalf("after cancel: got %v, want 1 (second event cancelled)", got)
	}
}

func TestCancelAndHold(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))
	p := newParam(ctx.contextCore, 0, -10, 10)

	_ = p.SetValueAtTime(0, 0)
	_ = p.LinearRampToValueAtTime(1, 1.0)
	_ = p.CancelAndHoldAtTime(0.5)

	const sr = 44100.0
	var samples []float32
	for tSec := 0.0; tSec < 2; tSec += RenderQuantum / sr {
		buf := p.ProcessARate(RenderQuantum, tSec)
		samples = append(samples, buf.Channel(0)...)
	}
	at := func(sec float64) float32 { return samples[int(sec*sr)] }

	// Before the cancel point the ramp runs untouched.
	if v := at(0.25); math.Abs(float64(v)-0.25) > 1e-6 {
		t.Fatalf("t=0.25s: got %v, want 0.25 (ramp still live)", v)
	}
	// The ramp must freeze at the cancel point, not run to its end value.
	if v := at(0.6); math.Abs(float64(v)-0.5) > 1e-6 {
		t.Fatalf("t=0.6s: got %v, want 0.5 (hold takes effect immediately)", v)
	}
	if v := at(1.5); math.Abs(float64(v)-0.5) > 1e-6 {
		t.Fatalf("t=1.5s: got %v, want 0.5", v)
	}
}

func TestOutOfOrderEventRejectedAtDrain(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))
	p := newParam(ctx.contextCore, 0, -10, 10)

	_ = p.SetValueAtTime(1, 2.0)
	_ = p.SetValueAtTime(7, 1.0) // starts before the queue end: dropped

	var got float32
	for tSec := 0.0; tSec < 3; tSec += float64(RenderQuantum) / 44100 {
		got = p.ProcessARate(RenderQuantum, tSec).Channel(0)[0]
	}
	if got != 1 {
		t.Fatalf("got %v, want 1 (late event dropped)", got)
	}
}

func TestKRateUsesBlockStart(t *testing.T) {
	ctx := newTestContext(t, WithSampleRate(44100))
	p := newParam(ctx.contextCore, 3, -10, 10)
	if v := p.ProcessKRate(RenderQuantum, 0); v != 3 {
		t.Fatalf("k-rate got %v, want 3", v)
	}
}
