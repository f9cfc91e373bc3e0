package engine

import (
	"math"
	"sync/atomic"
)

// releaseFlag marks a host handle as dropped. Set by control threads, read
// by the audio-thread sweep.
type releaseFlag struct {
	v atomic.Bool
}

func (f *releaseFlag) set()      { f.v.Store(true) }
func (f *releaseFlag) get() bool { return f.v.Load() }

// atomicFloat64 stores a float64 through its bit pattern.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (a *atomicFloat64) Store(v float64) { a.bits.Store(math.Float64bits(v)) }
func (a *atomicFloat64) Load() float64   { return math.Float64frombits(a.bits.Load()) }

// atomicFloat32 stores a float32 through its bit pattern.
type atomicFloat32 struct {
	bits atomic.Uint32
}

func (a *atomicFloat32) Store(v float32) { a.bits.Store(math.Float32bits(v)) }
func (a *atomicFloat32) Load() float32   { return math.Float32frombits(a.bits.Load()) }
