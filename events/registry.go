// Package events routes typed engine events from the audio thread to host
// handlers.
//
// The audio thread enqueues events on an SPSC channel without ever blocking;
// a dispatcher goroutine drains the channel and invokes the registered
// handlers, so host code never runs on the real-time path. Per-node ordering
// is preserved by the queue; events from different nodes may interleave.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-audio/spsc"
)

// Kind identifies an event type.
type Kind int

const (
	Ended Kind = iota
	BufferEnded
	PositionChanged
	AudioReady
	AudioError
	RecorderError
	SystemStateChanged
	InterruptionBegan
	InterruptionEnded
	RouteChange
)

var kindNames = map[Kind]string{
	Ended:              "ended",
	BufferEnded:        "bufferEnded",
	PositionChanged:    "positionChanged",
	AudioReady:         "audioReady",
	AudioError:         "audioError",
	RecorderError:      "recorderError",
	SystemStateChanged: "systemStateChanged",
	InterruptionBegan:  "interruptionBegan",
	InterruptionEnded:  "interruptionEnded",
	RouteChange:        "routeChange",
}

// String returns the host-facing event name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Body carries event payload fields ("message", "bufferId", ...).
type Body map[string]any

// Handler receives an event body on the dispatcher goroutine.
type Handler func(Body)

// ListenerID identifies a registration for Unregister and EmitTo.
type ListenerID uint64

type queued struct {
	kind   Kind
	target ListenerID // 0 = broadcast
	body   Body
}

const queueCapacity = 256

// Registry is the event-handler registry shared by a context.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]map[ListenerID]Handler
	nextID   atomic.Uint64

	queue *spsc.Channel[queued]
	done  chan struct{}
	log   *slog.Logger
}

// NewRegistry returns a registry with a running dispatcher goroutine.
// Close must be called to stop it.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	queue, _ := spsc.New[queued](queueCapacity, spsc.WaitOnFull, spsc.AtomicWait)
	r := &Registry{
		handlers: make(map[Kind]map[ListenerID]Handler),
		queue:    queue,
		done:     make(chan struct{}),
		log:      log,
	}
	go r.dispatch()
	return r
}

// Register adds a handler for kind and returns its listener id.
func (r *Registry) Register(kind Kind, h Handler) ListenerID {
	id := ListenerID(r.nextID.Add(1))
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.handlers[kind]
	if m == nil {
		m = make(map[ListenerID]Handler)
		r.handlers[kind] = m
	}
	m[id] = h
	return id
}

// Unregister removes a previously registered handler.
func (r *Registry) Unregister(kind Kind, id ListenerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers[kind], id)
}

// Emit queues an event for every handler of kind. Non-blocking: when the
// queue is full the event is dropped (the dispatcher has fallen far behind;
// host handlers are advisory, the render path must not stall).
func (r *Registry) Emit(kind Kind, body Body) {
	r.queue.TrySend(queued{kind: kind, body: body})
}

// EmitTo queues an event for a single listener.
func (r *Registry) EmitTo(kind Kind, id ListenerID, body Body) {
	r.queue.TrySend(queued{kind: kind, target: id, body: body})
}

// Close stops the dispatcher after draining queued events.
func (r *Registry) Close() {
	r.queue.Close()
	<-r.done
}

func (r *Registry) dispatch() {
	defer close(r.done)
	var ev queued
	for {
		if err := r.queue.Receive(&ev); err != nil {
			return
		}
		r.deliver(ev)
	}
}

func (r *Registry) deliver(ev queued) {
	r.mu.RLock()
	m := r.handlers[ev.kind]
	var hs []Handler
	if ev.target != 0 {
		if h, ok := m[ev.target]; ok {
			hs = append(hs, h)
		}
	} else {
		for _, h := range m {
			hs = append(hs, h)
		}
	}
	r.mu.RUnlock()

	for _, h := range hs {
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.log.Error("event handler panicked", "kind", ev.kind.String(), "panic", p)
				}
			}()
			h(ev.body)
		}()
	}
}
