package engine

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/cwbudde/algo-audio/audio"
)

// IIRFilterOptions configure CreateIIRFilter.
type IIRFilterOptions struct {
	NodeOptions
	Feedforward []float64
	Feedback    []float64
}

const maxIIRCoefficients = 20

// IIRFilterNode filters each channel with arbitrary feedforward/feedback
// coefficient vectors in direct form I. The feedback vector is normalised so
// its leading coefficient is 1.
type IIRFilterNode struct {
	baseNode

	feedforward []float64
	feedback    []float64

	// Per-channel circular histories of inputs and outputs.
	xHist [][]float64
	yHist [][]float64
	pos   int
	order int
}

// CreateIIRFilter returns an IIR filter node.
func (c *contextCore) CreateIIRFilter(opts *IIRFilterOptions) (*IIRFilterNode, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		return nil, fmt.Errorf("%w: IIR filter needs coefficients", ErrInvalidArgument)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ff, fb := opts.Feedforward, opts.Feedback
	if len(ff) == 0 || len(ff) > maxIIRCoefficients {
		return nil, fmt.Errorf("%w: %d feedforward coefficients", ErrInvalidArgument, len(ff))
	}
	if len(fb) == 0 || len(fb) > maxIIRCoefficients {
		return nil, fmt.Errorf("%w: %d feedback coefficients", ErrInvalidArgument, len(fb))
	}
	if fb[0] == 0 {
		return nil, fmt.Errorf("%w: feedback[0] must be non-zero", ErrInvalidArgument)
	}

	n := &IIRFilterNode{
		feedforward: make([]float64, len(ff)),
		feedback:    make([]float64, len(fb)),
		order:       max(len(ff), len(fb)),
	}
	inv := 1 / fb[0]
	for i, v := range ff {
		n.feedforward[i] = v * inv
	}
	for i, v := range fb {
		n.feedback[i] = v * inv
	}

	n.init(c, n, opts.channelCount(2), opts.ChannelCountMode, opts.ChannelInterpretation)
	c.registerProcessing(n)
	return n, nil
}

// GetFrequencyResponse evaluates |H| and arg H at each frequency in Hz.
// Frequencies outside [0, nyquist] yield NaN.
func (n *IIRFilterNode) GetFrequencyResponse(freqs, mag, phase []float64) {
	nyquist := n.ctx.sampleRate / 2
	count := min(len(freqs), min(len(mag), len(phase)))

	for i := range count {
		norm := freqs[i] / nyquist
		if norm < 0 || norm > 1 || math.IsNaN(norm) {
			mag[i] = math.NaN()
			phase[i] = math.NaN()
			continue
		}
		z := cmplx.Exp(complex(0, -math.Pi*norm))

		num := complex(0, 0)
		zp := complex(1, 0)
		for _, b := range n.feedforward {
			num += complex(b, 0) * zp
			zp *= z
		}
		den := complex(0, 0)
		zp = complex(1, 0)
		for _, a := range n.feedback {
			den += complex(a, 0) * zp
			zp *= z
		}

		h := num / den
		mag[i] = cmplx.Abs(h)
		phase[i] = cmplx.Phase(h)
	}
}

func (n *IIRFilterNode) ensureHistories(channels int) {
	for len(n.xHist) < channels {
		n.xHist = append(n.xHist, make([]float64, n.order))
		n.yHist = append(n.yHist, make([]float64, n.order))
	}
}

func (n *IIRFilterNode) processNode(processing *audio.Buffer, frames int) *audio.Buffer {
	channels := processing.ChannelCount()
	n.ensureHistories(channels)

	pos := n.pos
	for ch := range channels {
		data := processing.Channel(ch)
		xh, yh := n.xHist[ch], n.yHist[ch]
		p := pos
		for i := range frames {
			x := float64(data[i])
			xh[p] = x

			y := 0.0
			for k, b := range n.feedforward {
				idx := p - k
				if idx < 0 {
					idx += n.order
				}
				y += b * xh[idx]
			}
			for k := 1; k < len(n.feedback); k++ {
				idx := p - k
				if idx < 0 {
					idx += n.order
				}
				y -= n.feedback[k] * yh[idx]
			}

			// A diverging filter is silenced rather than propagated.
			if math.IsNaN(y) || math.IsInf(y, 0) {
				y = 0
			}
			yh[p] = y
			data[i] = float32(y)

			p++
			if p == n.order {
				p = 0
			}
		}
		if ch == channels-1 {
			pos = p
		}
	}
	n.pos = pos
	return processing
}
