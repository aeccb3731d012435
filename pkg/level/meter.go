// Package level provides a level meter fed with the mixed recording.
package level

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/haivivi/mixrec/pkg/audio/pcm"
	"github.com/haivivi/mixrec/pkg/recorder"
)

// Floor is the lowest level DBFS reports.
const Floor = -96.0

// Levels is a meter reading. Peak and RMS are linear, in [0, 1] for
// in-range audio.
type Levels struct {
	Peak    float32
	RMS     float32
	Clipped uint64
}

// Meter is a recorder.Processor that tracks the peak and RMS level of the
// mix. It does its work inline on the session loop; a chunk costs one pass
// over its samples.
type Meter struct {
	name    string
	peak    pcm.AtomicFloat32
	rms     pcm.AtomicFloat32
	clipped atomic.Uint64
	chunks  atomic.Int64
}

var _ recorder.Processor = (*Meter)(nil)

// NewMeter returns a Meter. Name defaults to "level".
func NewMeter(name string) *Meter {
	if name == "" {
		name = "level"
	}
	return &Meter{name: name}
}

func (m *Meter) Name() string { return m.name }

func (m *Meter) Capabilities() recorder.Capabilities { return recorder.Capabilities{} }

func (m *Meter) Start(context.Context) error { return nil }

// Process records the levels of one chunk. The peak is held until the next
// Take.
func (m *Meter) Process(h recorder.Handoff) error {
	c := h.Chunk
	m.peak.StoreMax(pcm.Peak(c))
	m.rms.Store(float32(pcm.RMS(c)))
	var clipped uint64
	for _, s := range c.Samples {
		if s >= 1 || s <= -1 {
			clipped++
		}
	}
	if clipped > 0 {
		m.clipped.Add(clipped)
	}
	m.chunks.Add(1)
	return nil
}

func (m *Meter) Stop() error  { return nil }
func (m *Meter) Close() error { return nil }

// Take returns the current reading and resets the held peak.
func (m *Meter) Take() Levels {
	return Levels{
		Peak:    m.peak.Swap(0),
		RMS:     m.rms.Load(),
		Clipped: m.clipped.Load(),
	}
}

// Chunks returns the number of chunks metered.
func (m *Meter) Chunks() int64 { return m.chunks.Load() }

// DBFS converts a linear level to decibels relative to full scale, clamped
// at Floor.
func DBFS(v float32) float64 {
	if v <= 0 {
		return Floor
	}
	return math.Max(20*math.Log10(float64(v)), Floor)
}
