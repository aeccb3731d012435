package recorder

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/mixrec/pkg/audio/capture"
	"github.com/haivivi/mixrec/pkg/audio/pcm"
)

// Defaults.
const (
	DefaultMaxSinkFailures = 3
	DefaultDropLogInterval = 5 * time.Second
	DefaultPollInterval    = 10 * time.Millisecond
)

// SourceInput is a source and the gain it is mixed with.
type SourceInput struct {
	Source capture.Source
	Gain   float32
}

// Config describes a recording session.
type Config struct {
	// ID identifies the session. Defaults to a random UUID.
	ID string

	// Format every source must deliver. The mixed output has the same
	// format.
	Format pcm.Format

	Sources    []SourceInput
	Sink       Sink
	Processors []Processor

	// Diarizer is optional. It needs one RoleUser and one RoleSystem
	// source to produce labels.
	Diarizer Diarizer

	Align      pcm.Align
	RequireAll bool

	// Duration stops the session once the session clock reaches it.
	// Zero records until stopped or until every source is exhausted.
	Duration time.Duration

	// MaxSinkFailures is the number of consecutive sink write failures
	// that abort the session.
	MaxSinkFailures int

	// PollInterval is how long the loop sleeps when no source had data.
	// Typically half a capture block.
	PollInterval time.Duration

	// DropLogInterval bounds how often drop warnings are logged per
	// processor.
	DropLogInterval time.Duration

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.MaxSinkFailures <= 0 {
		c.MaxSinkFailures = DefaultMaxSinkFailures
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.DropLogInterval <= 0 {
		c.DropLogInterval = DefaultDropLogInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	if err := c.Format.Validate(); err != nil {
		return configError("%v", err)
	}
	if len(c.Sources) == 0 {
		return configError("no sources")
	}
	if c.Sink == nil {
		return configError("no sink")
	}
	if c.Duration < 0 {
		return configError("negative duration %v", c.Duration)
	}
	names := make(map[string]bool)
	roles := make(map[capture.Role]string)
	for i, in := range c.Sources {
		if in.Source == nil {
			return configError("source %d is nil", i)
		}
		name := in.Source.Name()
		if names[name] {
			return configError("duplicate source name %q", name)
		}
		names[name] = true
		if err := pcm.ValidateGain(in.Gain); err != nil {
			return configError("source %q: %v", name, err)
		}
		if f := in.Source.Format(); f != c.Format {
			return configError("source %q: format %v does not match session format %v", name, f, c.Format)
		}
		if r := in.Source.Role(); r != capture.RoleOther {
			if other, ok := roles[r]; ok {
				return configError("sources %q and %q both have role %v", other, name, r)
			}
			roles[r] = name
		}
	}
	pnames := make(map[string]bool)
	for i, p := range c.Processors {
		if p == nil {
			return configError("processor %d is nil", i)
		}
		if pnames[p.Name()] {
			return configError("duplicate processor name %q", p.Name())
		}
		pnames[p.Name()] = true
	}
	return nil
}
