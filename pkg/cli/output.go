package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
)

// OutputFormat selects how structured results are printed.
type OutputFormat string

const (
	FormatYAML OutputFormat = "yaml"
	FormatJSON OutputFormat = "json"
	// FormatRaw writes strings and byte slices as is and falls back to YAML.
	FormatRaw OutputFormat = "raw"
)

// ParseFormat validates a --format flag value. Empty means YAML.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case "":
		return FormatYAML, nil
	case FormatYAML, FormatJSON, FormatRaw:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want yaml or json)", s)
	}
}

// OutputOptions configures Output.
type OutputOptions struct {
	Format OutputFormat

	// File is written instead of stdout when set.
	File string

	// Writer overrides File and stdout.
	Writer io.Writer
}

// Output writes result in the configured format.
func Output(result any, opts OutputOptions) error {
	var w io.Writer = os.Stdout
	if opts.Writer != nil {
		w = opts.Writer
	} else if opts.File != "" {
		f, err := os.Create(opts.File)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch opts.Format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case FormatYAML, "":
		return outputYAML(w, result)
	case FormatRaw:
		switch v := result.(type) {
		case []byte:
			_, err := w.Write(v)
			return err
		case string:
			_, err := io.WriteString(w, v)
			return err
		}
		return outputYAML(w, result)
	default:
		return fmt.Errorf("unsupported output format: %s", opts.Format)
	}
}

func outputYAML(w io.Writer, result any) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("format output: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// PrintSuccess prints a line prefixed with a check mark.
func PrintSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "✓ "+format+"\n", args...)
}

// PrintWarning prints a line prefixed with a warning sign.
func PrintWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "⚠ "+format+"\n", args...)
}
