// Package capture provides audio stream sources for a recording session.
//
// A Source buffers chunks produced by a capture thread (or a generator) and
// hands them to the session loop through a non-blocking Read. The producer
// side never waits: when the buffer is full the newest chunk is dropped and
// an overflow counter is incremented.
package capture

import (
	"context"
	"fmt"

	"github.com/haivivi/mixrec/pkg/audio/pcm"
)

// Role tells the session how a source participates in speaker attribution.
type Role int

const (
	// RoleOther sources are mixed but ignored by the diarizer.
	RoleOther Role = iota
	// RoleUser is the local microphone.
	RoleUser
	// RoleSystem is the system output monitor (the remote party).
	RoleSystem
)

// String returns the config spelling of the role.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleSystem:
		return "system"
	case RoleOther:
		return "other"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole parses the result of Role.String.
func ParseRole(s string) (Role, error) {
	switch s {
	case "user", "mic", "microphone":
		return RoleUser, nil
	case "system", "monitor":
		return RoleSystem, nil
	case "", "other":
		return RoleOther, nil
	}
	return 0, fmt.Errorf("capture: unknown role %q", s)
}

// Source is one live input stream.
type Source interface {
	Name() string
	Role() Role
	Format() pcm.Format

	// Active reports whether the source may still deliver chunks: it is
	// capturing, or it has stopped but still holds buffered chunks.
	Active() bool

	Start(ctx context.Context) error

	// Read returns the oldest buffered chunk without blocking. It returns
	// false when nothing is buffered.
	Read() (*pcm.Chunk, bool)

	Stop() error
	Close() error

	// Overflows returns how many chunks were dropped because the buffer
	// was full.
	Overflows() uint64
}
