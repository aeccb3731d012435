package recorder

import (
	"fmt"
	"time"

	"github.com/haivivi/mixrec/pkg/diarize"
)

// State is the session lifecycle state. It only moves forward:
// Idle -> Running -> Draining -> Closed.
type State int32

const (
	Idle State = iota
	Running
	Draining
	Closed
)

var stateNames = [...]string{"idle", "running", "draining", "closed"}

func (s State) String() string {
	if int(s) < len(stateNames) && s >= 0 {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("recorder: unknown state %q", b)
}

// ProcessorReport is the per-processor outcome of a session.
type ProcessorReport struct {
	Name     string `json:"name" yaml:"name" msgpack:"name"`
	Dropped  int64  `json:"dropped" yaml:"dropped" msgpack:"dropped"`
	Failures int64  `json:"failures" yaml:"failures" msgpack:"failures"`
}

// SourceReport is the per-source outcome of a session.
type SourceReport struct {
	Name      string  `json:"name" yaml:"name" msgpack:"name"`
	Gain      float32 `json:"gain" yaml:"gain" msgpack:"gain"`
	Overflows uint64  `json:"overflows" yaml:"overflows" msgpack:"overflows"`
}

// SpeakerTotal is how long one label was active.
type SpeakerTotal struct {
	Label    diarize.Label `json:"label" yaml:"label" msgpack:"label"`
	Duration time.Duration `json:"duration" yaml:"duration" msgpack:"duration"`
}

// Report summarizes a session.
type Report struct {
	ID        string    `json:"id" yaml:"id" msgpack:"id"`
	State     State     `json:"state" yaml:"state" msgpack:"state"`
	StartedAt time.Time `json:"started_at" yaml:"started_at" msgpack:"started_at"`
	// Elapsed is the session clock: the duration of audio mixed.
	Elapsed       time.Duration     `json:"elapsed" yaml:"elapsed" msgpack:"elapsed"`
	Cycles        int64             `json:"cycles" yaml:"cycles" msgpack:"cycles"`
	SkippedCycles int64             `json:"skipped_cycles" yaml:"skipped_cycles" msgpack:"skipped_cycles"`
	Frames        int64             `json:"frames" yaml:"frames" msgpack:"frames"`
	SinkFailures  int64             `json:"sink_failures" yaml:"sink_failures" msgpack:"sink_failures"`
	Sources       []SourceReport    `json:"sources" yaml:"sources" msgpack:"sources"`
	Processors    []ProcessorReport `json:"processors" yaml:"processors" msgpack:"processors"`
	Speakers      []SpeakerTotal    `json:"speakers,omitempty" yaml:"speakers,omitempty" msgpack:"speakers,omitempty"`
	Err           string            `json:"error,omitempty" yaml:"error,omitempty" msgpack:"error,omitempty"`
}

// Dropped returns the total number of hand-offs dropped by all processors.
func (r *Report) Dropped() int64 {
	var n int64
	for _, p := range r.Processors {
		n += p.Dropped
	}
	return n
}

// Overflows returns the total number of chunks dropped by all sources.
func (r *Report) Overflows() uint64 {
	var n uint64
	for _, s := range r.Sources {
		n += s.Overflows
	}
	return n
}
