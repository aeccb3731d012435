package diarize

import "fmt"

// Label names who is speaking during a window of audio.
//
// The zero value, Unknown, means no decision is available (the diarizer was
// disabled or failed for that window). None is a real decision: both
// streams were silent.
type Label uint8

const (
	Unknown Label = iota
	User
	System
	Both
	None
)

var labelNames = [...]string{
	Unknown: "",
	User:    "User",
	System:  "System",
	Both:    "Both",
	None:    "None",
}

// String returns the label as written in transcripts.
func (l Label) String() string {
	if int(l) < len(labelNames) {
		return labelNames[l]
	}
	return fmt.Sprintf("Label(%d)", uint8(l))
}

// Known reports whether l carries a decision.
func (l Label) Known() bool {
	return l != Unknown && int(l) < len(labelNames)
}

// Voiced reports whether l attributes speech to at least one party.
func (l Label) Voiced() bool {
	return l == User || l == System || l == Both
}

// MarshalText implements encoding.TextMarshaler.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Label) UnmarshalText(b []byte) error {
	for i, name := range labelNames {
		if name == string(b) {
			*l = Label(i)
			return nil
		}
	}
	return fmt.Errorf("diarize: unknown label %q", b)
}
