package transcribe

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrModelLoad wraps failures to load a recognition model.
var ErrModelLoad = errors.New("transcribe: model load failed")

// Result is one recognized segment. Start and End are relative to the
// beginning of the audio passed to Transcribe.
type Result struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Backend runs speech recognition on mono audio.
type Backend interface {
	// Load prepares the model. It is called once from Transcriber.Start.
	Load(ctx context.Context) error

	// SampleRate is the rate Transcribe expects its input at.
	SampleRate() int

	// Transcribe recognizes speech in samples, mono at SampleRate.
	Transcribe(ctx context.Context, samples []float32) ([]Result, error)

	Close() error
}

// Model is a recognition model size.
type Model string

const (
	ModelTiny   Model = "tiny"
	ModelBase   Model = "base"
	ModelSmall  Model = "small"
	ModelMedium Model = "medium"
	ModelLarge  Model = "large"
)

// Models lists the supported model sizes, fastest first.
var Models = []Model{ModelTiny, ModelBase, ModelSmall, ModelMedium, ModelLarge}

// ParseModel validates a model size name.
func ParseModel(s string) (Model, error) {
	for _, m := range Models {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("transcribe: unknown model %q, want one of %v", s, Models)
}

// Smaller returns the next faster model, or m itself if it is the smallest.
func (m Model) Smaller() Model {
	for i, v := range Models {
		if v == m && i > 0 {
			return Models[i-1]
		}
	}
	return m
}
