package recorder

import (
	"context"
	"time"

	"github.com/haivivi/mixrec/pkg/audio/pcm"
	"github.com/haivivi/mixrec/pkg/diarize"
)

// Sink persists the mixed signal. Write is called synchronously by the
// session loop once per cycle, in timestamp order.
type Sink interface {
	pcm.WriteCloser
}

// Capabilities is what a Processor declares about itself at construction.
type Capabilities struct {
	// SpeakerAware processors receive the diarizer's label with every
	// hand-off. Others always see diarize.Unknown.
	SpeakerAware bool
}

// Handoff is one mixed chunk given to a Processor.
type Handoff struct {
	Chunk *pcm.Chunk
	// At is the session clock at the first frame of Chunk.
	At      time.Duration
	Speaker diarize.Label
}

// Processor is an asynchronous analysis stage fed with the mixed signal.
//
// Process is called on the session loop and must not block: a processor
// that cannot keep up drops data and returns ErrDropped. Stop is the drain
// point: it returns after everything accepted so far has been handled.
// Close releases resources.
type Processor interface {
	Name() string
	Capabilities() Capabilities
	Start(ctx context.Context) error
	Process(h Handoff) error
	Stop() error
	Close() error
}

// Diarizer labels each cycle from the unmixed user and system chunks.
// Either chunk may be nil when that stream delivered nothing.
type Diarizer interface {
	Classify(user, system *pcm.Chunk, at time.Duration) diarize.Label
	Timeline() *diarize.Timeline
}

var _ Diarizer = (*diarize.Energy)(nil)

// Journal persists the outcome of a session.
type Journal interface {
	Record(ctx context.Context, r *Report, timeline []diarize.Span) error
}
