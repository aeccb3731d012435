package pcm

import (
	"math"
	"sync/atomic"
)

// AtomicFloat32 provides atomic operations for float32 values.
// It uses atomic uint32 operations internally by bit-casting the float32.
type AtomicFloat32 struct {
	bits atomic.Uint32
}

// Load atomically loads and returns the float32 value.
func (af *AtomicFloat32) Load() float32 {
	return math.Float32frombits(af.bits.Load())
}

// Store atomically stores the given float32 value.
func (af *AtomicFloat32) Store(val float32) {
	af.bits.Store(math.Float32bits(val))
}

// StoreMax stores val if it is greater than the current value.
func (af *AtomicFloat32) StoreMax(val float32) {
	for {
		old := af.bits.Load()
		if math.Float32frombits(old) >= val {
			return
		}
		if af.bits.CompareAndSwap(old, math.Float32bits(val)) {
			return
		}
	}
}

// Swap stores val and returns the previous value.
func (af *AtomicFloat32) Swap(val float32) float32 {
	return math.Float32frombits(af.bits.Swap(math.Float32bits(val)))
}
