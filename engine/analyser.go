package engine

import (
	"fmt"
	"math"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-audio/audio"
	"github.com/cwbudde/algo-audio/dsp/window"
	"github.com/cwbudde/algo-audio/ring"
)

// Analyser FFT size bounds.
const (
	MinFFTSize = 32
	MaxFFTSize = 32768
)

// AnalyserOptions configure CreateAnalyser.
type AnalyserOptions struct {
	NodeOptions
	FFTSize               int
	MinDecibels           float64
	MaxDecibels           float64
	SmoothingTimeConstant float64
	Window                window.Type
	// WOLA normalises the analysis window to unit DC gain.
	WOLA bool
}

// AnalyserNode snoops its input without modifying it: each block is mixed
// down to mono and appended to a circular capture buffer; spectra and
// time-domain snapshots are computed on demand from the host thread.
type AnalyserNode struct {
	baseNode

	snoop    *ring.Overwriting
	downmix  *audio.Buffer

	mu         sync.Mutex
	fftSize    int
	minDB      float64
	maxDB      float64
	smoothing  float64
	windowType window.Type
	wola       bool

	windowData []float64
	plan       *algofft.Plan[complex128]
	timeBuf    []float32
	scratch    []float64
	fftIn      []complex128
	fftOut     []complex128
	re, im     []float64
	magScratch []float64
	magnitudes []float64
}

// CreateAnalyser returns an analyser node.
func (c *contextCore) CreateAnalyser(opts *AnalyserOptions) (*AnalyserNode, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &AnalyserOptions{}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.FFTSize == 0 {
		opts.FFTSize = 2048
	}
	if opts.MinDecibels == 0 {
		opts.MinDecibels = -100
	}
	if opts.MaxDecibels == 0 {
		opts.MaxDecibels = -30
	}
	if opts.SmoothingTimeConstant == 0 {
		opts.SmoothingTimeConstant = 0.8
	}
	if opts.Window == window.TypeRectangular {
		opts.Window = window.TypeBlackman
	}

	n := &AnalyserNode{
		minDB:      opts.MinDecibels,
		maxDB:      opts.MaxDecibels,
		smoothing:  opts.SmoothingTimeConstant,
		windowType: opts.Window,
		wola:       opts.WOLA,
	}
	n.init(c, n, opts.channelCount(2), opts.ChannelCountMode, opts.ChannelInterpretation)
	n.snoop, _ = ring.NewOverwriting(MaxFFTSize * 2)
	n.downmix, _ = audio.NewBuffer(1, RenderQuantum, c.sampleRate)

	if err := n.setFFTSizeLocked(opts.FFTSize); err != nil {
		return nil, err
	}
	c.registerProcessing(n)
	return n, nil
}

// FFTSize returns the analysis length in samples.
func (n *AnalyserNode) FFTSize() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fftSize
}

// FrequencyBinCount returns FFTSize/2.
func (n *AnalyserNode) FrequencyBinCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fftSize / 2
}

// MinDecibels returns the lower bound of the byte scaling range.
func (n *AnalyserNode) MinDecibels() float64 { return n.minDB }

// MaxDecibels returns the upper bound of the byte scaling range.
func (n *AnalyserNode) MaxDecibels() float64 { return n.maxDB }

// SmoothingTimeConstant returns the magnitude smoothing factor.
func (n *AnalyserNode) SmoothingTimeConstant() float64 { return n.smoothing }

// SetSmoothingTimeConstant sets the magnitude smoothing factor in [0, 1].
func (n *AnalyserNode) SetSmoothingTimeConstant(tau float64) error {
	if tau < 0 || tau > 1 {
		return fmt.Errorf("%w: smoothing %v", ErrInvalidArgument, tau)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.smoothing = tau
	return nil
}

// SetFFTSize switches the analysis length. Power of two in
// [MinFFTSize, MaxFFTSize].
func (n *AnalyserNode) SetFFTSize(size int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.setFFTSizeLocked(size)
}

func (n *AnalyserNode) setFFTSizeLocked(size int) error {
	if size < MinFFTSize || size > MaxFFTSize || size&(size-1) != 0 {
		return fmt.Errorf("%w: fft size %d", ErrInvalidArgument, size)
	}
	if size == n.fftSize {
		return nil
	}
	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return fmt.Errorf("engine: analyser FFT plan: %w", err)
	}
	n.fftSize = size
	n.plan = plan
	n.timeBuf = make([]float32, size)
	n.scratch = make([]float64, size)
	n.fftIn = make([]complex128, size)
	n.fftOut = make([]complex128, size)
	n.re = make([]float64, size/2)
	n.im = make([]float64, size/2)
	n.magScratch = make([]float64, size/2)
	n.magnitudes = make([]float64, size/2)
	n.rebuildWindowLocked()
	return nil
}

// SetWindow switches the analysis window.
func (n *AnalyserNode) SetWindow(t window.Type, wola bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.windowType = t
	n.wola = wola
	n.rebuildWindowLocked()
}

func (n *AnalyserNode) rebuildWindowLocked() {
	var opts []window.Option
	if n.wola {
		opts = append(opts, window.WithWOLA())
	}
	n.windowData = window.Generate(n.windowType, n.fftSize, opts...)
}

// processNode mixes the block to mono and appends it to the capture ring;
// the input passes through untouched.
func (n *AnalyserNode) processNode(processing *audio.Buffer, frames int) *audio.Buffer {
	n.downmix.Zero()
	n.downmix.Sum(processing, audio.Speakers)
	n.snoop.Push(n.downmix.Channel(0)[:frames])
	return processing
}

// analyseLocked runs the windowed FFT over the last fftSize captured samples and
// updates the smoothed magnitude array. Caller holds the lock.
func (n *AnalyserNode) analyseLocked() {
	n.snoop.CopyLast(n.timeBuf)
	for i, v := range n.timeBuf {
		n.scratch[i] = float64(v)
	}
	window.Apply(n.scratch, n.windowData)

	for i, v := range n.scratch {
		n.fftIn[i] = complex(v, 0)
	}
	if err := n.plan.Forward(n.fftOut, n.fftIn); err != nil {
		return
	}
	// Bin 0 (DC) of a real input is real; clear its imaginary rounding residue.
	n.fftOut[0] = complex(real(n.fftOut[0]), 0)

	for i := range n.re {
		n.re[i] = real(n.fftOut[i])
		n.im[i] = imag(n.fftOut[i])
	}
	vecmath.Magnitude(n.magScratch, n.re, n.im)

	scale := 1 / float64(n.fftSize)
	tau := n.smoothing
	for i := range n.magnitudes {
		n.magnitudes[i] = tau*n.magnitudes[i] + (1-tau)*n.magScratch[i]*scale
	}
}

// GetFloatFrequencyData writes the smoothed spectrum in dBFS.
func (n *AnalyserNode) GetFloatFrequencyData(data []float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.analyseLocked()
	count := min(len(data), len(n.magnitudes))
	for i := range count {
		data[i] = linearToDecibels(n.magnitudes[i])
	}
}

// GetByteFrequencyData writes the spectrum scaled into [0, 255] over the
// [MinDecibels, MaxDecibels] range.
func (n *AnalyserNode) GetByteFrequencyData(data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.analyseLocked()

	rangeScale := 1.0
	if n.maxDB != n.minDB {
		rangeScale = 1 / (n.maxDB - n.minDB)
	}
	count := min(len(data), len(n.magnitudes))
	for i := range count {
		db := n.minDB
		if n.magnitudes[i] != 0 {
			db = linearToDecibels(n.magnitudes[i])
		}
		scaled := 255 * (db - n.minDB) * rangeScale
		if scaled < 0 {
			scaled = 0
		}
		if scaled > 255 {
			scaled = 255
		}
		data[i] = byte(scaled)
	}
}

// GetFloatTimeDomainData writes the last min(len(data), FFTSize) captured
// samples.
func (n *AnalyserNode) GetFloatTimeDomainData(data []float32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := min(len(data), n.fftSize)
	n.snoop.CopyLast(n.timeBuf[:n.fftSize])
	copy(data[:count], n.timeBuf[n.fftSize-count:])
}

// GetByteTimeDomainData writes the captured waveform scaled into [0, 255]
// with 128 at zero.
func (n *AnalyserNode) GetByteTimeDomainData(data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := min(len(data), n.fftSize)
	n.snoop.CopyLast(n.timeBuf[:n.fftSize])
	tail := n.timeBuf[n.fftSize-count:]
	for i := range count {
		scaled := 128 * (float64(tail[i]) + 1)
		if scaled < 0 {
			scaled = 0
		}
		if scaled > 255 {
			scaled = 255
		}
		data[i] = byte(scaled)
	}
}

func linearToDecibels(v float64) float64 {
	if v <= 0 {
		return -1000
	}
	return 20 * math.Log10(v)
}
