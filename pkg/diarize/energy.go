package diarize

import (
	"fmt"
	"time"

	"github.com/haivivi/mixrec/pkg/audio/pcm"
)

// DefaultRatio is the energy ratio one side needs over the other to be
// labelled as the only speaker.
const DefaultRatio = 2.0

// Decide labels a window from the RMS energy of the user and system streams.
// Energies at or below floor count as silence.
//
//	user > ratio*system   -> User
//	system > ratio*user   -> System
//	both zero             -> None
//	otherwise             -> Both
func Decide(user, system, ratio, floor float64) Label {
	if user <= floor {
		user = 0
	}
	if system <= floor {
		system = 0
	}
	switch {
	case user == 0 && system == 0:
		return None
	case user > ratio*system:
		return User
	case system > ratio*user:
		return System
	}
	return Both
}

// Option configures an Energy diarizer.
type Option func(*Energy)

// WithRatio sets the dominance ratio. It must be greater than 1.
func WithRatio(r float64) Option {
	return func(e *Energy) { e.ratio = r }
}

// WithSilenceFloor sets the RMS level at or below which a stream is
// considered silent. The default 0 only treats digital silence as silent.
func WithSilenceFloor(f float64) Option {
	return func(e *Energy) { e.floor = f }
}

// Energy is a two-party diarizer that compares the RMS energy of the
// unmixed user (microphone) and system (monitor) chunks of each cycle.
//
// Every decision is appended to a Timeline. Energy is safe for one
// classifying goroutine and any number of readers.
type Energy struct {
	ratio float64
	floor float64

	timeline Timeline
}

// NewEnergy returns an Energy diarizer.
func NewEnergy(opts ...Option) (*Energy, error) {
	e := &Energy{ratio: DefaultRatio}
	for _, opt := range opts {
		opt(e)
	}
	if e.ratio <= 1 {
		return nil, fmt.Errorf("diarize: ratio must be > 1, got %v", e.ratio)
	}
	if e.floor < 0 {
		return nil, fmt.Errorf("diarize: silence floor must be >= 0, got %v", e.floor)
	}
	return e, nil
}

// Ratio returns the configured dominance ratio.
func (e *Energy) Ratio() float64 { return e.ratio }

// Classify labels the window starting at `at` covered by the two chunks.
// A nil chunk is a missing stream and has zero energy.
func (e *Energy) Classify(user, system *pcm.Chunk, at time.Duration) Label {
	l := Decide(pcm.RMS(user), pcm.RMS(system), e.ratio, e.floor)
	d := max(user.Duration(), system.Duration())
	e.timeline.Append(at, at+d, l)
	return l
}

// Timeline returns the decision log.
func (e *Energy) Timeline() *Timeline {
	return &e.timeline
}

// Reset clears the decision log.
func (e *Energy) Reset() {
	e.timeline.Reset()
}
