package engine

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-audio/audio"
	"github.com/cwbudde/algo-audio/spsc"
)

// segmentFunc evaluates one automation segment at time t.
type segmentFunc func(startTime, endTime float64, startValue, endValue float32, t float64) float32

// automationSegment is one queued automation event, already validated
// against the queue ordering rules.
type automationSegment struct {
	startTime, endTime   float64
	startValue, endValue float32
	calc                 segmentFunc
}

// paramCommand mutates the parameter on the audio thread at the next drain.
type paramCommand func(p *Param)

const paramSchedulerCapacity = 32

// Param is a per-sample automatable scalar owned by its parent node.
//
// Control threads schedule automation through the command channel; the audio
// thread drains it before each block, keeps the event queue sorted by
// construction, and evaluates the active segment per sample (a-rate) or per
// block (k-rate). Connected modulation sources are summed on top.
type Param struct {
	ctx *contextCore

	value        atomicFloat32
	defaultValue float32
	minValue     float32
	maxValue     float32

	scheduler *spsc.Channel[paramCommand]
	queue     []automationSegment

	// Active segment state, audio thread only.
	startTime, endTime   float64
	startValue, endValue float32
	calc                 segmentFunc

	inputNodes map[*baseNode]struct{}
	buf        *audio.Buffer // mono a-rate output

	released releaseFlag
}

func newParam(ctx *contextCore, defaultValue, minValue, maxValue float32) *Param {
	scheduler, _ := spsc.New[paramCommand](paramSchedulerCapacity, spsc.WaitOnFull, spsc.BusyLoop)
	buf, _ := audio.NewBuffer(1, RenderQuantum, ctx.sampleRate)
	p := &Param{
		ctx:          ctx,
		defaultValue: defaultValue,
		minValue:     minValue,
		maxValue:     maxValue,
		scheduler:    scheduler,
		inputNodes:   make(map[*baseNode]struct{}),
		buf:          buf,
		startValue:   defaultValue,
		endValue:     defaultValue,
	}
	p.value.Store(defaultValue)
	p.calc = func(_, _ float64, _, _ float32, _ float64) float32 {
		return p.value.Load()
	}
	ctx.graph.queueAddParam(p)
	return p
}

// Value returns the most recently evaluated parameter value.
func (p *Param) Value() float32 { return p.value.Load() }

// DefaultValue returns the construction-time default.
func (p *Param) DefaultValue() float32 { return p.defaultValue }

// MinValue returns the lower clamp bound.
func (p *Param) MinValue() float32 { return p.minValue }

// MaxValue returns the upper clamp bound.
func (p *Param) MaxValue() float32 { return p.maxValue }

// SetValue sets the static value, used when no automation is active.
func (p *Param) SetValue(v float32) {
	p.value.Store(p.clamp(v))
}

func (p *Param) clamp(v float32) float32 {
	if v < p.minValue {
		return p.minValue
	}
	if v > p.maxValue {
		return p.maxValue
	}
	return v
}

func (p *Param) schedule(cmd paramCommand) error {
	if !p.scheduler.TrySend(cmd) {
		return fmt.Errorf("%w: parameter scheduler full", ErrResourceExhausted)
	}
	return nil
}

// queueEndTime returns the end time automation currently reaches.
func (p *Param) queueEndTime() float64 {
	if len(p.queue) > 0 {
		return p.queue[len(p.queue)-1].endTime
	}
	return p.endTime
}

// queueEndValue returns the value automation currently ends on.
func (p *Param) queueEndValue() float32 {
	if len(p.queue) > 0 {
		return p.queue[len(p.queue)-1].endValue
	}
	return p.endValue
}

func (p *Param) pushSegment(s automationSegment) {
	p.queue = append(p.queue, s)
}

// SetValueAtTime schedules a step to value at startTime. A start exactly at
// the queue end is allowed; anything earlier is rejected at drain time.
func (p *Param) SetValueAtTime(value float32, startTime float64) error {
	return p.schedule(func(p *Param) {
		if startTime < p.queueEndTime() {
			return
		}
		p.pushSegment(automationSegment{
			startTime:  startTime,
			endTime:    startTime,
			startValue: p.queueEndValue(),
			endValue:   value,
			calc: func(start, _ float64, startValue, endValue float32, t float64) float32 {
				if t < start {
					return startValue
				}
				return endValue
			},
		})
	})
}

// LinearRampToValueAtTime schedules a linear ramp from the queue end to
// value at endTime.
func (p *Param) LinearRampToValueAtTime(value float32, endTime float64) error {
	return p.schedule(func(p *Param) {
		if endTime < p.queueEndTime() {
			return
		}
		p.pushSegment(automationSegment{
			startTime:  p.queueEndTime(),
			endTime:    endTime,
			startValue: p.queueEndValue(),
			endValue:   value,
			calc: func(start, end float64, startValue, endValue float32, t float64) float32 {
				if t < start {
					return startValue
				}
				if t < end {
					return startValue + float32(float64(endValue-startValue)*(t-start)/(end-start))
				}
				return endValue
			},
		})
	})
}

// ExponentialRampToValueAtTime schedules an exponential ramp to value at
// endTime. Rejected when either endpoint is not strictly positive.
func (p *Param) ExponentialRampToValueAtTime(value float32, endTime float64) error {
	if value <= 0 {
		return fmt.Errorf("%w: exponential ramp target must be > 0, got %v", ErrInvalidArgument, value)
	}
	return p.schedule(func(p *Param) {
		if endTime <= p.queueEndTime() {
			return
		}
		if p.queueEndValue() <= 0 {
			return
		}
		p.pushSegment(automationSegment{
			startTime:  p.queueEndTime(),
			endTime:    endTime,
			startValue: p.queueEndValue(),
			endValue:   value,
			calc: func(start, end float64, startValue, endValue float32, t float64) float32 {
				if t < start {
					return startValue
				}
				if t < end {
					ratio := float64(endValue) / float64(startValue)
					return float32(float64(startValue) * math.Pow(ratio, (t-start)/(end-start)))
				}
				return endValue
			},
		})
	})
}

// SetTargetAtTime schedules an exponential decay towards target starting at
// startTime with the given time constant. Conceptually infinite; the next
// scheduled event supersedes it.
func (p *Param) SetTargetAtTime(target float32, startTime, timeConstant float64) error {
	if timeConstant <= 0 {
		return fmt.Errorf("%w: time constant must be > 0, got %v", ErrInvalidArgument, timeConstant)
	}
	return p.schedule(func(p *Param) {
		if startTime <= p.queueEndTime() {
			return
		}
		endValue := p.queueEndValue()
		p.pushSegment(automationSegment{
			startTime:  startTime,
			endTime:    startTime,
			startValue: endValue,
			endValue:   endValue,
			calc: func(start, _ float64, startValue, _ float32, t float64) float32 {
				if t < start {
					return startValue
				}
				return target + (startValue-target)*float32(math.Exp(-(t-start)/timeConstant))
			},
		})
	})
}

// SetValueCurveAtTime schedules piecewise-linear interpolation through
// values over [startTime, startTime+duration].
func (p *Param) SetValueCurveAtTime(values []float32, startTime, duration float64) error {
	if len(values) < 2 {
		return fmt.Errorf("%w: curve needs at least 2 points, got %d", ErrInvalidArgument, len(values))
	}
	if duration <= 0 {
		return fmt.Errorf("%w: curve duration must be > 0, got %v", ErrInvalidArgument, duration)
	}
	curve := make([]float32, len(values))
	copy(curve, values)
	return p.schedule(func(p *Param) {
		if startTime <= p.queueEndTime() {
			return
		}
		last := float64(len(curve) - 1)
		p.pushSegment(automationSegment{
			startTime:  startTime,
			endTime:    startTime + duration,
			startValue: p.queueEndValue(),
			endValue:   curve[len(curve)-1],
			calc: func(start, end float64, startValue, endValue float32, t float64) float32 {
				if t < start {
					return startValue
				}
				if t < end {
					pos := last * (t - start) / (end - start)
					k := int(pos)
					if k >= len(curve)-1 {
						return curve[len(curve)-1]
					}
					frac := float32(pos - float64(k))
					return curve[k] + frac*(curve[k+1]-curve[k])
				}
				return endValue
			},
		})
	})
}

// CancelScheduledValues removes every queued event starting at or after
// cancelTime.
func (p *Param) CancelScheduledValues(cancelTime float64) error {
	return p.schedule(func(p *Param) {
		kept := p.queue[:0]
		for _, s := range p.queue {
			if s.startTime < cancelTime {
				kept = append(kept, s)
			}
		}
		p.queue = kept
	})
}

// CancelAndHoldAtTime cancels like CancelScheduledValues and additionally
// freezes the parameter at the value the remaining automation produces at
// cancelTime. A segment in flight across cancelTime is truncated there: it
// must not run on to its original end value.
func (p *Param) CancelAndHoldAtTime(cancelTime float64) error {
	return p.schedule(func(p *Param) {
		kept := p.queue[:0]
		for _, s := range p.queue {
			if s.startTime < cancelTime {
				kept = append(kept, s)
			}
		}
		p.queue = kept

		hold := p.evaluateAt(cancelTime)

		// Truncate the active segment and any surviving queued segment
		// whose span crosses the cancel point: the original trajectory
		// runs until cancelTime and freezes there.
		if cancelTime < p.endTime {
			p.startTime, p.endTime, p.startValue, p.endValue, p.calc =
				truncateSegment(p.startTime, p.endTime, p.startValue, p.endValue, p.calc, cancelTime)
		}
		for i := range p.queue {
			s := &p.queue[i]
			if cancelTime < s.endTime {
				s.startTime, s.endTime, s.startValue, s.endValue, s.calc =
					truncateSegment(s.startTime, s.endTime, s.startValue, s.endValue, s.calc, cancelTime)
			}
		}

		p.pushSegment(automationSegment{
			startTime:  cancelTime,
			endTime:    cancelTime,
			startValue: hold,
			endValue:   hold,
			calc: func(start, _ float64, startValue, endValue float32, t float64) float32 {
				if t < start {
					return startValue
				}
				return endValue
			},
		})
	})
}

// truncateSegment clips a segment at cancelTime, preserving its original
// trajectory up to the clip point and holding the clip value after it.
func truncateSegment(start, end float64, startValue, endValue float32, calc segmentFunc, cancelTime float64) (float64, float64, float32, float32, segmentFunc) {
	clipValue := calc(start, end, startValue, endValue, cancelTime)
	clipped := func(_, _ float64, _, _ float32, t float64) float32 {
		if t > cancelTime {
			t = cancelTime
		}
		return calc(start, end, startValue, endValue, t)
	}
	return start, cancelTime, startValue, clipValue, clipped
}

// evaluateAt computes the automation value at time t from the active
// segment and the queue, without mutating state.
func (p *Param) evaluateAt(t float64) float32 {
	calc := p.calc
	start, end := p.startTime, p.endTime
	startValue, endValue := p.startValue, p.endValue
	for _, s := range p.queue {
		if s.startTime > t {
			break
		}
		calc, start, end = s.calc, s.startTime, s.endTime
		startValue, endValue = s.startValue, s.endValue
	}
	return calc(start, end, startValue, endValue, t)
}

// --- audio-thread side -----------------------------------------------------

// drainScheduler applies pending control-thread commands. Audio thread only.
func (p *Param) drainScheduler() {
	var cmd paramCommand
	for p.scheduler.TryReceive(&cmd) {
		cmd(p)
	}
}

// valueAtTime advances the active segment as events expire and evaluates
// the automation at t. Audio thread only.
func (p *Param) valueAtTime(t float64) float32 {
	if p.endTime < t && len(p.queue) > 0 {
		next := p.queue[0]
		p.queue = p.queue[:copy(p.queue, p.queue[1:])]
		p.startTime, p.endTime = next.startTime, next.endTime
		p.startValue, p.endValue = next.startValue, next.endValue
		p.calc = next.calc
	}
	v := p.clamp(p.calc(p.startTime, p.endTime, p.startValue, p.endValue, t))
	p.value.Store(v)
	return v
}

// connectInput registers a modulation source. Audio thread only.
func (p *Param) connectInput(from *baseNode) {
	p.inputNodes[from] = struct{}{}
	from.outputParams[p] = struct{}{}
}

// disconnectInput removes a modulation source. Audio thread only.
func (p *Param) disconnectInput(from *baseNode) {
	delete(p.inputNodes, from)
	delete(from.outputParams, p)
}

// mixInputs sums enabled modulation sources into the param buffer (mono).
func (p *Param) mixInputs(frames int) {
	p.buf.Zero()
	for in := range p.inputNodes {
		if !in.isEnabled() {
			continue
		}
		buf := in.processAudio(frames, true)
		if buf != nil {
			p.buf.Sum(buf, audio.Speakers)
		}
	}
}

// ProcessARate returns a mono buffer with the per-sample parameter value:
// summed modulation inputs plus the evaluated automation. Audio thread only.
func (p *Param) ProcessARate(frames int, t float64) *audio.Buffer {
	p.drainScheduler()
	p.mixInputs(frames)

	data := p.buf.Channel(0)
	step := 1 / p.ctx.sampleRate
	for i := range frames {
		data[i] += p.valueAtTime(t)
		t += step
	}
	return p.buf
}

// ProcessKRate returns the block-rate value: the first modulated sample
// plus the automation at the block start. Audio thread only.
func (p *Param) ProcessKRate(frames int, t float64) float32 {
	p.drainScheduler()
	p.mixInputs(frames)
	return p.buf.Channel(0)[0] + p.valueAtTime(t)
}

// Release marks the host handle dropped so the sweep can reclaim the
// parameter with its node.
func (p *Param) Release() { p.released.set() }

func (p *Param) isReleased() bool { return p.released.get() }
