package engine

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-audio/audio"
	"github.com/cwbudde/algo-audio/events"
)

// PlaybackState is the lifecycle of a scheduled source node. Start, the
// buffer-queue source's Pause and the streamer's Cleanup change it on the
// calling thread; every other transition happens on the audio thread, in
// updatePlaybackInfo, finishBlock or finish.
type PlaybackState int32

const (
	Unscheduled PlaybackState = iota
	Scheduled
	Playing
	StopScheduled
	Finished
)

// String returns the state name.
func (s PlaybackState) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case Playing:
		return "playing"
	case StopScheduled:
		return "stopScheduled"
	case Finished:
		return "finished"
	default:
		return "unscheduled"
	}
}

// scheduledSource is the base of every source node: start/stop scheduling
// and the playback state machine.
type scheduledSource struct {
	baseNode

	state     atomic.Int32
	startTime atomicFloat64
	stopTime  atomicFloat64
	stopSet   atomic.Bool

	endedFired    bool
	endedListener atomic.Uint64
}

// PlaybackState returns the current lifecycle state.
func (s *scheduledSource) PlaybackState() PlaybackState {
	return PlaybackState(s.state.Load())
}

// Start schedules playback at time when (seconds of context time). A source
// can be started once.
func (s *scheduledSource) Start(when float64) error {
	if s.ctx.State() == Closed {
		return fmt.Errorf("%w: context closed", ErrInvalidState)
	}
	if when < 0 || math.IsNaN(when) {
		return fmt.Errorf("%w: start time %v", ErrInvalidArgument, when)
	}
	if !s.state.CompareAndSwap(int32(Unscheduled), int32(Scheduled)) {
		return fmt.Errorf("%w: source already started", ErrInvalidState)
	}
	s.startTime.Store(when)
	return nil
}

// Stop schedules the end of playback at time when. Takes effect at the next
// block whose frame range contains when.
func (s *scheduledSource) Stop(when float64) error {
	if s.ctx.State() == Closed {
		return fmt.Errorf("%w: context closed", ErrInvalidState)
	}
	if when < 0 || math.IsNaN(when) {
		return fmt.Errorf("%w: stop time %v", ErrInvalidArgument, when)
	}
	st := s.PlaybackState()
	if st != Scheduled && st != Playing {
		return fmt.Errorf("%w: source not started", ErrInvalidState)
	}
	s.stopTime.Store(when)
	s.stopSet.Store(true)
	return nil
}

// OnEnded routes this node's single Ended emission to h.
func (s *scheduledSource) OnEnded(h func()) {
	id := s.ctx.events.Register(events.Ended, func(events.Body) { h() })
	s.endedListener.Store(uint64(id))
}

// updatePlaybackInfo advances the state machine for this block and returns
// the frame range [start, end) the node should render. Frames outside the
// range are zeroed in buf. Audio thread only.
func (s *scheduledSource) updatePlaybackInfo(buf *audio.Buffer, frames int) (int, int) {
	first := s.ctx.frame
	last := first + uint64(frames)
	sr := s.ctx.sampleRate

	state := s.PlaybackState()
	start, end := 0, frames

	switch state {
	case Unscheduled, Finished:
		buf.Zero()
		return 0, 0
	case Scheduled:
		startFrame := uint64(math.Round(s.startTime.Load() * sr))
		if startFrame < first {
			startFrame = first
		}
		if startFrame >= last {
			buf.Zero()
			return 0, 0
		}
		s.state.Store(int32(Playing))
		start = int(startFrame - first)
		buf.ZeroRange(0, start)
	}

	if s.PlaybackState() == Playing && s.stopSet.Load() {
		stopFrame := uint64(math.Round(s.stopTime.Load() * sr))
		if stopFrame < last {
			s.state.Store(int32(StopScheduled))
			if stopFrame <= first {
				end = start
			} else if e := int(stopFrame - first); e < end {
				end = e
			}
			if end < start {
				end = start
			}
			buf.ZeroRange(end, frames)
		}
	}

	return start, end
}

// finishBlock completes the StopScheduled -> Finished transition at the end
// of a block. Audio thread only.
func (s *scheduledSource) finishBlock() {
	if s.PlaybackState() == StopScheduled {
		s.finish()
	}
}

// finish terminates the source: Finished state, node disabled, Ended fired
// exactly once. Audio thread only.
func (s *scheduledSource) finish() {
	s.state.Store(int32(Finished))
	s.disable()
	s.fireEnded()
}

// finishSilently terminates without the Ended event (forced teardown).
func (s *scheduledSource) finishSilently() {
	s.state.Store(int32(Finished))
	s.disable()
}

func (s *scheduledSource) fireEnded() {
	if s.endedFired {
		return
	}
	s.endedFired = true
	body := events.Body{"currentTime": s.ctx.CurrentTime()}
	if id := s.endedListener.Load(); id != 0 {
		s.ctx.events.EmitTo(events.Ended, events.ListenerID(id), body)
		return
	}
	s.ctx.events.Emit(events.Ended, body)
}

// rewind returns a pause-capable source to Unscheduled so it can be started
// again (buffer-queue pause/resume). Runs on the thread that calls Pause.
func (s *scheduledSource) rewind() {
	s.state.Store(int32(Unscheduled))
	s.stopSet.Store(false)
}

// isPlayingOrStopping reports whether the current block produces audio.
func (s *scheduledSource) isPlayingOrStopping() bool {
	st := s.PlaybackState()
	return st == Playing || st == StopScheduled
}
