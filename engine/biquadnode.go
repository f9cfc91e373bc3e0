package engine

import (
	"math"

	"github.com/cwbudde/algo-audio/audio"
	"github.com/cwbudde/algo-audio/dsp/biquad"
)

// BiquadFilterOptions configure CreateBiquadFilter. Nil means a 350 Hz
// lowpass with Q 1.
type BiquadFilterOptions struct {
	NodeOptions
	Type      biquad.FilterType
	Frequency float32
	Q         float32
	Gain      float32
	Detune    float32
}

// BiquadFilterNode filters each channel through one second-order section
// whose coefficients are redesigned per block from the k-rate parameters.
type BiquadFilterNode struct {
	baseNode

	typ       biquad.FilterType
	frequency *Param
	q         *Param
	gain      *Param
	detune    *Param

	sections []*biquad.Section
	current  biquad.Coefficients
}

// CreateBiquadFilter returns a biquad filter node.
func (c *contextCore) CreateBiquadFilter(opts *BiquadFilterOptions) (*BiquadFilterNode, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &BiquadFilterOptions{Frequency: 350, Q: 1}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	n := &BiquadFilterNode{typ: opts.Type}
	n.init(c, n, opts.channelCount(2), opts.ChannelCountMode, opts.ChannelInterpretation)

	nyquist := float32(c.sampleRate / 2)
	n.frequency = n.ownParam(newParam(c, opts.Frequency, 0, nyquist))
	n.q = n.ownParam(newParam(c, opts.Q, -maxGain, maxGain))
	n.gain = n.ownParam(newParam(c, opts.Gain, -maxGain, maxGain))
	n.detune = n.ownParam(newParam(c, opts.Detune, -maxDetuneCents, maxDetuneCents))
	c.registerProcessing(n)
	return n, nil
}

// Frequency returns the corner/centre frequency parameter (Hz).
func (n *BiquadFilterNode) Frequency() *Param { return n.frequency }

// Q returns the quality-factor parameter.
func (n *BiquadFilterNode) Q() *Param { return n.q }

// Gain returns the shelf/peak gain parameter (dB).
func (n *BiquadFilterNode) Gain() *Param { return n.gain }

// Detune returns the frequency detune parameter (cents).
func (n *BiquadFilterNode) Detune() *Param { return n.detune }

// Type returns the filter type.
func (n *BiquadFilterNode) Type() biquad.FilterType { return n.typ }

// SetType switches the coefficient design.
func (n *BiquadFilterNode) SetType(t biquad.FilterType) { n.typ = t }

// GetFrequencyResponse evaluates the current response at each frequency,
// writing NaN outside [0, nyquist].
func (n *BiquadFilterNode) GetFrequencyResponse(freqs, mag, phase []float64) {
	n.current.FrequencyResponse(freqs, n.ctx.sampleRate, mag, phase)
}

func (n *BiquadFilterNode) ensureSections(channels int) {
	for len(n.sections) < channels {
		n.sections = append(n.sections, biquad.NewSection(n.current))
	}
}

func (n *BiquadFilterNode) processNode(processing *audio.Buffer, frames int) *audio.Buffer {
	t := n.ctx.audioTime()
	freq := float64(n.frequency.ProcessKRate(frames, t))
	q := float64(n.q.ProcessKRate(frames, t))
	gainDB := float64(n.gain.ProcessKRate(frames, t))
	detune := float64(n.detune.ProcessKRate(frames, t))

	if detune != 0 {
		freq *= math.Pow(2, detune/1200)
	}
	n.current = biquad.Design(n.typ, freq, n.ctx.sampleRate, q, gainDB)

	channels := processing.ChannelCount()
	n.ensureSections(channels)
	for ch := range channels {
		s := n.sections[ch]
		s.SetCoefficients(n.current)
		s.ProcessBlock(processing.Channel(ch)[:frames])
	}
	return processing
}
