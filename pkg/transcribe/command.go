package transcribe

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/haivivi/mixrec/pkg/audio/pcm"
	"github.com/haivivi/mixrec/pkg/audio/wav"
)

// CommandSampleRate is the default rate of audio handed to a recognizer
// command.
const CommandSampleRate = 16000

// CommandConfig configures a Command backend.
type CommandConfig struct {
	// Path is the recognizer executable. It is resolved with exec.LookPath.
	Path string

	// Args are passed before the generated flags.
	Args []string

	Model    Model
	Language string

	// SampleRate of the WAV file handed to the command. Default 16000.
	SampleRate int

	// TempDir holds the per-job WAV files. Defaults to os.TempDir().
	TempDir string
}

// Command implements [Backend] by running an external recognizer once per
// job:
//
//	<path> [args...] --model <model> [--language <lang>] <file.wav>
//
// The command must print a JSON object to stdout:
//
//	{"segments": [{"start": 0.0, "end": 2.1, "text": "hello"}]}
type Command struct {
	cfg  CommandConfig
	path string
}

var _ Backend = (*Command)(nil)

// NewCommand creates a Command backend. The executable is resolved in Load.
func NewCommand(cfg CommandConfig) *Command {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = CommandSampleRate
	}
	if cfg.Model == "" {
		cfg.Model = ModelBase
	}
	return &Command{cfg: cfg}
}

// Load resolves the executable.
func (c *Command) Load(context.Context) error {
	if c.cfg.Path == "" {
		return fmt.Errorf("transcribe: no recognizer command configured")
	}
	path, err := exec.LookPath(c.cfg.Path)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	c.path = path
	return nil
}

func (c *Command) SampleRate() int { return c.cfg.SampleRate }

// Transcribe writes samples to a temporary WAV file and runs the command on
// it.
func (c *Command) Transcribe(ctx context.Context, samples []float32) ([]Result, error) {
	if c.path == "" {
		return nil, fmt.Errorf("transcribe: command not loaded")
	}
	if len(samples) == 0 {
		return nil, nil
	}

	f, err := os.CreateTemp(c.cfg.TempDir, "mixrec-*.wav")
	if err != nil {
		return nil, fmt.Errorf("transcribe: temp file: %w", err)
	}
	name := f.Name()
	defer os.Remove(name)

	bw := bufio.NewWriter(f)
	err = wav.Encode(bw, pcm.Format{SampleRate: c.cfg.SampleRate, Channels: 1}, samples)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("transcribe: write %s: %w", name, err)
	}

	args := append([]string{}, c.cfg.Args...)
	args = append(args, "--model", string(c.cfg.Model))
	if c.cfg.Language != "" {
		args = append(args, "--language", c.cfg.Language)
	}
	args = append(args, name)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("transcribe: %s: %w: %s", c.cfg.Path, err, msg)
		}
		return nil, fmt.Errorf("transcribe: %s: %w", c.cfg.Path, err)
	}

	var resp verboseResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("transcribe: %s: decode output: %w", c.cfg.Path, err)
	}
	return segmentsToResults(resp.Segments)
}

func (c *Command) Close() error { return nil }
