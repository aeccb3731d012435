package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/haivivi/mixrec/pkg/audio/pcm"
	"github.com/haivivi/mixrec/pkg/audio/wav"
)

// OpenAISampleRate is the rate audio is uploaded at. Whisper resamples to
// 16 kHz internally.
const OpenAISampleRate = 16000

// OpenAIOption configures an OpenAI backend.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	baseURL    string
	httpClient *http.Client
	language   string
	prompt     string
	apiModel   string
	retries    int
}

// WithBaseURL points the backend at an OpenAI-compatible server.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(c *openAIConfig) { c.httpClient = client }
}

// WithLanguage sets the ISO-639-1 spoken language hint.
func WithLanguage(lang string) OpenAIOption {
	return func(c *openAIConfig) { c.language = lang }
}

// WithPrompt sets the context prompt sent with every request.
func WithPrompt(prompt string) OpenAIOption {
	return func(c *openAIConfig) { c.prompt = prompt }
}

// WithAPIModel overrides the API model name chosen from the profile.
func WithAPIModel(name string) OpenAIOption {
	return func(c *openAIConfig) { c.apiModel = name }
}

// WithMaxRetries sets the number of request retries. Default 2.
func WithMaxRetries(n int) OpenAIOption {
	return func(c *openAIConfig) { c.retries = n }
}

// OpenAI implements [Backend] with the OpenAI audio transcription API.
//
// It can also be used with OpenAI-compatible servers (for example a local
// whisper server) by setting WithBaseURL.
type OpenAI struct {
	client *openai.Client
	model  Model
	cfg    openAIConfig
}

var _ Backend = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI backend for the given model profile.
//
// The hosted API serves every profile with whisper-1; the profile is kept
// for servers that expose several sizes through WithAPIModel.
func NewOpenAI(apiKey string, model Model, opts ...OpenAIOption) *OpenAI {
	cfg := openAIConfig{
		httpClient: http.DefaultClient,
		apiModel:   string(openai.AudioModelWhisper1),
		retries:    2,
	}
	for _, o := range opts {
		o(&cfg)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
		option.WithMaxRetries(cfg.retries),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(clientOpts...)

	return &OpenAI{client: &client, model: model, cfg: cfg}
}

// Load is a no-op: the model lives on the server.
func (o *OpenAI) Load(context.Context) error { return nil }

func (o *OpenAI) SampleRate() int { return OpenAISampleRate }

// Transcribe uploads samples as a 16-bit WAV file and returns the segments
// of the verbose response. A response without segments yields a single
// result at offset zero.
func (o *OpenAI) Transcribe(ctx context.Context, samples []float32) ([]Result, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	var body bytes.Buffer
	if err := wav.Encode(&body, pcm.Format{SampleRate: OpenAISampleRate, Channels: 1}, samples); err != nil {
		return nil, fmt.Errorf("transcribe: encode upload: %w", err)
	}

	params := openai.AudioTranscriptionNewParams{
		File:                   openai.File(&body, "audio.wav", "audio/wav"),
		Model:                  openai.AudioModel(o.cfg.apiModel),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"segment"},
	}
	if o.cfg.language != "" {
		params.Language = openai.String(o.cfg.language)
	}
	if o.cfg.prompt != "" {
		params.Prompt = openai.String(o.cfg.prompt)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("transcribe: openai: %w", err)
	}
	return parseVerbose(resp.RawJSON(), resp.Text)
}

func (o *OpenAI) Close() error { return nil }

type verboseSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type verboseResponse struct {
	Text     string           `json:"text"`
	Segments []verboseSegment `json:"segments"`
}

// parseVerbose extracts segments from a verbose_json body. Servers that
// ignore the response format return plain text, which becomes one result.
func parseVerbose(raw, text string) ([]Result, error) {
	var v verboseResponse
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("transcribe: decode response: %w", err)
		}
	}
	if len(v.Segments) == 0 {
		if text == "" {
			text = v.Text
		}
		if text == "" {
			return nil, nil
		}
		return []Result{{Text: text}}, nil
	}
	return segmentsToResults(v.Segments)
}

func segmentsToResults(segs []verboseSegment) ([]Result, error) {
	out := make([]Result, 0, len(segs))
	for _, s := range segs {
		if s.Start < 0 {
			return nil, errors.New("transcribe: negative segment start")
		}
		out = append(out, Result{
			Start: seconds(s.Start),
			End:   seconds(s.End),
			Text:  s.Text,
		})
	}
	return out, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
