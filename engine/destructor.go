package engine

import (
	"log/slog"

	"github.com/cwbudde/algo-audio/spsc"
)

const destructorCapacity = 1024

// asyncDestructor consumes released references on its own goroutine so the
// audio thread never pays for reclamation. Dropping the reference here makes
// the object collectable away from the render path.
type asyncDestructor[T any] struct {
	ch   *spsc.Channel[T]
	done chan struct{}
}

func newAsyncDestructor[T any](log *slog.Logger, kind string) *asyncDestructor[T] {
	ch, _ := spsc.New[T](destructorCapacity, spsc.WaitOnFull, spsc.AtomicWait)
	d := &asyncDestructor[T]{ch: ch, done: make(chan struct{})}
	go func() {
		defer close(d.done)
		var v, zero T
		for ch.Receive(&v) == nil {
			// Drop the reference; nothing else to do.
			v = zero
		}
		_ = v
		if log != nil {
			log.Debug("async destructor stopped", "kind", kind)
		}
	}()
	return d
}

// trySend hands one reference to the worker without blocking. Reports false
// when the channel is full; the caller retries next block.
func (d *asyncDestructor[T]) trySend(v T) bool {
	return d.ch.TrySend(v)
}

// close shuts the worker down and waits for it to drain.
func (d *asyncDestructor[T]) close() {
	d.ch.Close()
	<-d.done
}

// TaskOffloader runs a consumer function on a dedicated worker goroutine fed
// by an SPSC channel. The recorder and file-writer subsystems use it to keep
// I/O off the audio thread.
type TaskOffloader[T any] struct {
	ch   *spsc.Channel[T]
	done chan struct{}
}

// NewTaskOffloader spawns the worker. fn runs once per task, in send order.
func NewTaskOffloader[T any](capacity int, fn func(T)) (*TaskOffloader[T], error) {
	ch, err := spsc.New[T](capacity, spsc.WaitOnFull, spsc.AtomicWait)
	if err != nil {
		return nil, err
	}
	o := &TaskOffloader[T]{ch: ch, done: make(chan struct{})}
	go func() {
		defer close(o.done)
		var v T
		for {
			if err := ch.Receive(&v); err != nil {
				return
			}
			fn(v)
		}
	}()
	return o, nil
}

// TryOffload queues a task without blocking; reports false when full.
func (o *TaskOffloader[T]) TryOffload(v T) bool { return o.ch.TrySend(v) }

// Offload queues a task, blocking while the worker catches up. Control and
// producer threads only.
func (o *TaskOffloader[T]) Offload(v T) error { return o.ch.Send(v) }

// Close stops the worker after draining queued tasks.
func (o *TaskOffloader[T]) Close() {
	o.ch.Close()
	<-o.done
}
