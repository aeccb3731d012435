package cli

import (
	"strings"
	"testing"
)

func TestSummaryRender(t *testing.T) {
	var s Summary
	s.Title = "Recording complete"
	s.Add("Output", "%s", "rec.wav")
	s.Add("Duration", "%s", "20.0s")
	s.AddWarn("Dropped", "%d", 3)

	out := s.Render(NewStyles(DefaultTheme))
	for _, want := range []string{"Recording complete", "Output", "rec.wav", "Duration", "20.0s", "Dropped", "3", "╭", "╯"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if len(s.Rows) != 3 || !s.Rows[2].Warn {
		t.Errorf("rows = %+v", s.Rows)
	}
}

func TestLevelBar(t *testing.T) {
	st := NewStyles(DefaultTheme)
	tests := []struct {
		dbfs     float64
		full     int
		contains string
	}{
		{-96, 0, "-inf dBFS"},
		{-48, 5, "-48.0 dBFS"},
		{0, 10, "0.0 dBFS"},
	}
	for _, tt := range tests {
		out := LevelBar(st, "mic", tt.dbfs, -96, 10)
		if got := strings.Count(out, "█"); got != tt.full {
			t.Errorf("LevelBar(%v) has %d full cells, want %d: %q", tt.dbfs, got, tt.full, out)
		}
		if !strings.Contains(out, tt.contains) || !strings.HasPrefix(out, "mic") {
			t.Errorf("LevelBar(%v) = %q", tt.dbfs, out)
		}
	}
}
