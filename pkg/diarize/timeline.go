package diarize

import (
	"sort"
	"sync"
	"time"
)

// Span is a half-open interval [Start, End) with a single label.
type Span struct {
	Start time.Duration `json:"start" yaml:"start" msgpack:"s"`
	End   time.Duration `json:"end" yaml:"end" msgpack:"e"`
	Label Label         `json:"label" yaml:"label" msgpack:"l"`
}

// Timeline is an ordered, append-only log of labelled spans. Adjacent spans
// with the same label are merged on append.
//
// It is advisory: consumers that need a label for an exact window get it
// passed alongside the audio instead of looking it up here.
type Timeline struct {
	mu    sync.RWMutex
	spans []Span
}

// Append records label l for [start, end). Out-of-order appends (start
// before the last recorded end) are clamped to keep the log ordered.
func (t *Timeline) Append(start, end time.Duration, l Label) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.spans); n > 0 {
		last := &t.spans[n-1]
		if start < last.End {
			start = last.End
		}
		if end <= start {
			return
		}
		if last.Label == l && last.End == start {
			last.End = end
			return
		}
	} else if end <= start {
		return
	}
	t.spans = append(t.spans, Span{Start: start, End: end, Label: l})
}

// At returns the label covering ts.
func (t *Timeline) At(ts time.Duration) (Label, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := sort.Search(len(t.spans), func(i int) bool { return t.spans[i].End > ts })
	if i == len(t.spans) || t.spans[i].Start > ts {
		return Unknown, false
	}
	return t.spans[i].Label, true
}

// Spans returns a copy of the recorded spans.
func (t *Timeline) Spans() []Span {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Span, len(t.spans))
	copy(out, t.spans)
	return out
}

// Len returns the number of spans.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.spans)
}

// Totals returns the accumulated duration per label.
func (t *Timeline) Totals() map[Label]time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m := make(map[Label]time.Duration)
	for _, s := range t.spans {
		m[s.Label] += s.End - s.Start
	}
	return m
}

// Reset removes every span.
func (t *Timeline) Reset() {
	t.mu.Lock()
	t.spans = nil
	t.mu.Unlock()
}
