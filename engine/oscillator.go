package engine

import (
	"math"

	"github.com/cwbudde/algo-audio/audio"
	"github.com/cwbudde/algo-audio/dsp/wavetable"
)

// OscillatorOptions configure CreateOscillator. Nil means a 440 Hz sine.
type OscillatorOptions struct {
	Shape     wavetable.Shape
	Frequency float32
	Detune    float32
	// PeriodicWave overrides Shape with a custom wave.
	PeriodicWave *wavetable.PeriodicWave
}

// OscillatorNode generates a band-limited periodic waveform on a mono
// output via a phase accumulator over the shared wavetable.
type OscillatorNode struct {
	scheduledSource

	frequency *Param
	detune    *Param

	shape wavetable.Shape
	wave  *wavetable.PeriodicWave
	phase float32
}

// CreateOscillator returns an oscillator node.
func (c *contextCore) CreateOscillator(opts *OscillatorOptions) (*OscillatorNode, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &OscillatorOptions{Frequency: 440}
	}

	n := &OscillatorNode{shape: opts.Shape}
	n.init(c, n, 1, Max, audio.Speakers)

	nyquist := float32(c.sampleRate / 2)
	n.frequency = n.ownParam(newParam(c, opts.Frequency, -nyquist, nyquist))
	n.detune = n.ownParam(newParam(c, opts.Detune, -maxDetuneCents, maxDetuneCents))

	if opts.PeriodicWave != nil {
		n.wave = opts.PeriodicWave
		n.shape = wavetable.Custom
	} else {
		n.wave = c.basicWave(opts.Shape)
	}
	c.registerSource(n)
	return n, nil
}

// 1200 cents per octave over the float32 exponent range.
const maxDetuneCents = float32(1200 * 127)

// Frequency returns the frequency parameter (Hz).
func (n *OscillatorNode) Frequency() *Param { return n.frequency }

// Detune returns the detune parameter (cents).
func (n *OscillatorNode) Detune() *Param { return n.detune }

// Shape returns the current waveform shape.
func (n *OscillatorNode) Shape() wavetable.Shape { return n.shape }

// SetShape switches to a built-in waveform.
func (n *OscillatorNode) SetShape(shape wavetable.Shape) {
	if w := n.ctx.basicWave(shape); w != nil {
		n.shape = shape
		n.wave = w
	}
}

// SetPeriodicWave switches to a custom waveform.
func (n *OscillatorNode) SetPeriodicWave(w *wavetable.PeriodicWave) {
	if w != nil {
		n.wave = w
		n.shape = wavetable.Custom
	}
}

func (n *OscillatorNode) processNode(processing *audio.Buffer, frames int) *audio.Buffer {
	start, end := n.updatePlaybackInfo(processing, frames)
	if !n.isPlayingOrStopping() || start >= end || n.wave == nil {
		processing.Zero()
		n.finishBlock()
		return processing
	}

	t := n.ctx.audioTime() + float64(start)/n.ctx.sampleRate
	freqs := n.frequency.ProcessARate(frames, t).Channel(0)
	detunes := n.detune.ProcessARate(frames, t).Channel(0)

	tableSize := float32(n.wave.Size())
	tableScale := n.wave.Scale()
	phase := n.phase

	out := processing.Channel(0)
	for i := start; i < end; i++ {
		k := i - start
		detuneRatio := float32(1)
		if detunes[k] != 0 {
			detuneRatio = float32(math.Pow(2, float64(detunes[k])/1200))
		}
		f := freqs[k] * detuneRatio
		out[i] = n.wave.Sample(f, phase)

		phase += f * tableScale
		if phase >= tableSize || phase < 0 {
			phase = float32(math.Mod(float64(phase), float64(tableSize)))
			if phase < 0 {
				phase += tableSize
			}
		}
	}
	n.phase = phase

	// Mono source: replicate to any extra processing channels.
	for ch := 1; ch < processing.ChannelCount(); ch++ {
		copy(processing.Channel(ch)[start:end], out[start:end])
	}

	n.finishBlock()
	return processing
}
