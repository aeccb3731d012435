package cli

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme is the color scheme of rendered boxes and meters.
type Theme struct {
	Primary lipgloss.Color
	Warn    lipgloss.Color
	Dim     lipgloss.Color
}

// DefaultTheme is bright green with amber warnings.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Warn:    lipgloss.Color("#ffb000"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles are derived from a Theme.
type Styles struct {
	Title lipgloss.Style
	Key   lipgloss.Style
	Warn  lipgloss.Style
	Dim   lipgloss.Style
	Box   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Key:   lipgloss.NewStyle().Foreground(t.Dim),
		Warn:  lipgloss.NewStyle().Bold(true).Foreground(t.Warn),
		Dim:   lipgloss.NewStyle().Foreground(t.Dim),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Primary).
			Padding(0, 1),
	}
}

// Row is one key/value line of a Summary.
type Row struct {
	Key   string
	Value string
	// Warn highlights the value.
	Warn bool
}

// Summary is a titled box of aligned key/value rows.
type Summary struct {
	Title string
	Rows  []Row
}

// Add appends a row.
func (s *Summary) Add(key, format string, args ...any) {
	s.Rows = append(s.Rows, Row{Key: key, Value: fmt.Sprintf(format, args...)})
}

// AddWarn appends a highlighted row.
func (s *Summary) AddWarn(key, format string, args ...any) {
	s.Rows = append(s.Rows, Row{Key: key, Value: fmt.Sprintf(format, args...), Warn: true})
}

// Render draws the box.
func (s Summary) Render(st Styles) string {
	width := 0
	for _, r := range s.Rows {
		width = max(width, lipgloss.Width(r.Key))
	}
	lines := []string{st.Title.Render(s.Title), ""}
	for _, r := range s.Rows {
		key := st.Key.Render(r.Key + strings.Repeat(" ", width-lipgloss.Width(r.Key)))
		val := r.Value
		if r.Warn {
			val = st.Warn.Render(val)
		}
		lines = append(lines, key+"  "+val)
	}
	return st.Box.Render(strings.Join(lines, "\n"))
}

// LevelBar renders a dBFS level between floor and 0 as a bar of width
// cells followed by the numeric value.
func LevelBar(st Styles, name string, dbfs, floor float64, width int) string {
	if width <= 0 {
		width = 20
	}
	frac := 0.0
	if floor < 0 && dbfs > floor {
		frac = math.Min(1, (dbfs-floor)/-floor)
	}
	n := int(math.Round(frac * float64(width)))
	bar := strings.Repeat("█", n) + st.Dim.Render(strings.Repeat("░", width-n))
	value := fmt.Sprintf("%6.1f dBFS", dbfs)
	if dbfs <= floor {
		value = "  -inf dBFS"
	}
	if dbfs >= 0 {
		value = st.Warn.Render(value)
	}
	return fmt.Sprintf("%-8s %s %s", name, bar, value)
}
