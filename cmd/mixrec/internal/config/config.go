// Package config loads the mixrec recording configuration.
//
// The file lives at <UserConfigDir>/mixrec/config.yaml unless --config
// names another one. Every field is optional; Load fills defaults and then
// validates the result. Command-line flags are applied on top by the
// record command before Validate is called again.
//
//	output: meeting.wav
//	duration: 30m
//	sources:
//	  - {name: mic, role: user, device: "MacBook Pro Microphone"}
//	  - {name: monitor, role: system, device: "BlackHole 2ch", gain: 0.8}
//	transcription:
//	  enabled: true
//	  model: small
//	  speaker_labels: true
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"

	"github.com/haivivi/mixrec/pkg/audio/capture"
	"github.com/haivivi/mixrec/pkg/audio/pcm"
	"github.com/haivivi/mixrec/pkg/cli"
	"github.com/haivivi/mixrec/pkg/storage"
	"github.com/haivivi/mixrec/pkg/transcribe"
)

// Defaults.
const (
	DefaultOutput          = "recording.wav"
	DefaultSampleRate      = 48000
	DefaultChannels        = 2
	DefaultBlockFrames     = 1024
	DefaultSourceQueue     = 100
	DefaultMaxSinkFailures = 3
	DefaultBufferSeconds   = 10
	DefaultRatio           = 2.0
)

// Config is the complete recording configuration.
type Config struct {
	Output   string        `yaml:"output" validate:"required"`
	Duration time.Duration `yaml:"duration" validate:"gte=0"`

	Format  Format   `yaml:"format"`
	Mixer   Mixer    `yaml:"mixer"`
	Sources []Source `yaml:"sources" validate:"required,dive"`

	SourceQueue     int `yaml:"source_queue" validate:"gt=0"`
	MaxSinkFailures int `yaml:"max_sink_failures" validate:"gt=0"`

	Transcription Transcription  `yaml:"transcription"`
	Diarization   Diarization    `yaml:"diarization"`
	Journal       Journal        `yaml:"journal"`
	Archive       Archive        `yaml:"archive"`
	Log           cli.LogOptions `yaml:"log"`
}

type Format struct {
	SampleRate  int `yaml:"sample_rate" validate:"gt=0"`
	Channels    int `yaml:"channels" validate:"gte=1"`
	BlockFrames int `yaml:"block_frames" validate:"gt=0"`
}

// PCM returns the session format.
func (f Format) PCM() pcm.Format {
	return pcm.Format{SampleRate: f.SampleRate, Channels: f.Channels}
}

// BlockDuration is the length of one capture block.
func (f Format) BlockDuration() time.Duration {
	return f.PCM().Duration(f.BlockFrames)
}

type Mixer struct {
	Align      string `yaml:"align" validate:"oneof=shortest pad"`
	RequireAll bool   `yaml:"require_all"`
}

type Source struct {
	Name string `yaml:"name" validate:"required"`
	Role string `yaml:"role" validate:"oneof=user system other"`
	// Device is a driver device name substring or index. Empty selects the
	// default input.
	Device string `yaml:"device"`
	// Gain defaults to 1 when unset. Zero mutes the source but keeps it in
	// the mix.
	Gain *float32 `yaml:"gain" validate:"omitempty,gte=0,lte=1"`
	// Enabled defaults to true.
	Enabled *bool `yaml:"enabled"`
}

// GainValue returns the configured gain, or 1 when unset.
func (s Source) GainValue() float32 {
	if s.Gain == nil {
		return 1
	}
	return *s.Gain
}

// IsEnabled reports whether the source takes part in the session.
func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type Transcription struct {
	Enabled bool   `yaml:"enabled"`
	Backend string `yaml:"backend" validate:"oneof=openai command"`
	Model   string `yaml:"model" validate:"oneof=tiny base small medium large"`

	BufferSeconds float64 `yaml:"buffer_seconds" validate:"gt=0"`
	QueueSize     int     `yaml:"queue_size" validate:"gt=0"`
	SpeakerLabels bool    `yaml:"speaker_labels"`
	Language      string  `yaml:"language"`

	// Output defaults to the recording path with a .txt extension.
	Output string `yaml:"output"`

	Command CommandBackend `yaml:"command"`
	OpenAI  OpenAIBackend  `yaml:"openai"`
}

// Threshold is BufferSeconds as a duration.
func (t Transcription) Threshold() time.Duration {
	return time.Duration(t.BufferSeconds * float64(time.Second))
}

type CommandBackend struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args"`
}

type OpenAIBackend struct {
	// APIKey falls back to OPENAI_API_KEY.
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	Model   string `yaml:"model"`
}

type Diarization struct {
	Ratio        float64 `yaml:"ratio" validate:"gt=1"`
	SilenceFloor float64 `yaml:"silence_floor" validate:"gte=0"`
}

type Journal struct {
	// Dir defaults to the journal directory next to the config file.
	Dir      string `yaml:"dir"`
	Disabled bool   `yaml:"disabled"`
	// Retention keeps only the newest sessions. Zero keeps everything.
	Retention int `yaml:"retention" validate:"gte=0"`
}

// Archive copies the recording, transcript and report of every session to
// a directory, an S3 bucket, or both, under <dir or prefix>/<session id>/.
type Archive struct {
	Dir string            `yaml:"dir"`
	S3  *storage.S3Config `yaml:"s3"`
}

// Enabled reports whether any archive target is configured.
func (a Archive) Enabled() bool {
	return a.Dir != "" || a.S3 != nil
}

// Gain returns a pointer to g, for Source.Gain.
func Gain(g float32) *float32 { return &g }

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// Load reads path. A missing file yields the defaults when optional is
// set.
func Load(path string, optional bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.UnmarshalWithOptions(data, &c, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	if c.Format.SampleRate == 0 {
		c.Format.SampleRate = DefaultSampleRate
	}
	if c.Format.Channels == 0 {
		c.Format.Channels = DefaultChannels
	}
	if c.Format.BlockFrames == 0 {
		c.Format.BlockFrames = DefaultBlockFrames
	}
	if c.Mixer.Align == "" {
		c.Mixer.Align = pcm.AlignShortest.String()
	}
	if len(c.Sources) == 0 {
		c.Sources = []Source{
			{Name: "mic", Role: "user"},
			{Name: "monitor", Role: "system"},
		}
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Role == "" {
			s.Role = "other"
		}
		if s.Gain == nil {
			s.Gain = Gain(1)
		}
	}
	if c.SourceQueue == 0 {
		c.SourceQueue = DefaultSourceQueue
	}
	if c.MaxSinkFailures == 0 {
		c.MaxSinkFailures = DefaultMaxSinkFailures
	}

	t := &c.Transcription
	if t.Backend == "" {
		t.Backend = "openai"
	}
	if t.Model == "" {
		t.Model = string(transcribe.ModelBase)
	}
	if t.BufferSeconds == 0 {
		t.BufferSeconds = DefaultBufferSeconds
	}
	if t.QueueSize == 0 {
		t.QueueSize = transcribe.DefaultQueueSize
	}
	if c.Diarization.Ratio == 0 {
		c.Diarization.Ratio = DefaultRatio
	}
}

// TranscriptPath returns where the transcript is written.
func (c *Config) TranscriptPath() string {
	if c.Transcription.Output != "" {
		return c.Transcription.Output
	}
	return strings.TrimSuffix(c.Output, filepath.Ext(c.Output)) + ".txt"
}

// EnabledSources returns the sources taking part in the session.
func (c *Config) EnabledSources() []Source {
	var out []Source
	for _, s := range c.Sources {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out
}

// Source returns the source named name.
func (c *Config) Source(name string) (*Source, bool) {
	for i := range c.Sources {
		if c.Sources[i].Name == name {
			return &c.Sources[i], true
		}
	}
	return nil, false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("config: %s", describe(verrs[0]))
		}
		return fmt.Errorf("config: %w", err)
	}

	enabled := c.EnabledSources()
	if len(enabled) == 0 {
		if _, ok := c.Source("mic"); ok {
			if _, ok := c.Source("monitor"); ok {
				return errors.New("config: cannot disable both microphone and monitor")
			}
		}
		return errors.New("config: no enabled source")
	}
	names := make(map[string]bool)
	roles := make(map[string]string)
	for _, s := range enabled {
		if names[s.Name] {
			return fmt.Errorf("config: duplicate source name %q", s.Name)
		}
		names[s.Name] = true
		if _, err := capture.ParseRole(s.Role); err != nil {
			return fmt.Errorf("config: source %q: %w", s.Name, err)
		}
		if s.Role == "other" {
			continue
		}
		if other, ok := roles[s.Role]; ok {
			return fmt.Errorf("config: sources %q and %q both have role %s", other, s.Name, s.Role)
		}
		roles[s.Role] = s.Name
	}

	if t := c.Transcription; t.Enabled && t.Backend == "command" && t.Command.Path == "" {
		return errors.New("config: transcription.command.path is required for the command backend")
	}
	if c.Archive.S3 != nil && c.Archive.S3.Bucket == "" {
		return errors.New("config: archive.s3.bucket is required")
	}
	return nil
}

// describe turns a validation failure into "format.sample_rate must be > 0".
func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	case "url":
		return field + " must be a URL"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

const redacted = "********"

// Redacted returns a copy with credentials masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Sources = append([]Source(nil), c.Sources...)
	if out.Transcription.OpenAI.APIKey != "" {
		out.Transcription.OpenAI.APIKey = redacted
	}
	if c.Archive.S3 != nil {
		s3 := *c.Archive.S3
		if s3.SecretKey != "" {
			s3.SecretKey = redacted
		}
		out.Archive.S3 = &s3
	}
	return &out
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.MarshalWithOptions(c, yaml.IndentSequence(true))
}
