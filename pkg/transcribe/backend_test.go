package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/mixrec/pkg/audio/wav"
)

type formRecorder struct {
	mu   sync.Mutex
	form url.Values
}

func (f *formRecorder) Get(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form.Get(key)
}

func newFakeWhisper(t *testing.T, body string) (*httptest.Server, *formRecorder) {
	t.Helper()
	seen := &formRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		info, err := wav.ReadInfo(f)
		f.Close()
		if err != nil || info.Format.SampleRate != OpenAISampleRate || info.Format.Channels != 1 {
			http.Error(w, "bad upload", http.StatusBadRequest)
			return
		}
		seen.mu.Lock()
		seen.form = url.Values(r.MultipartForm.Value)
		seen.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestOpenAISegments(t *testing.T) {
	srv, seen := newFakeWhisper(t, `{
		"text": "hello world",
		"language": "english",
		"duration": 2.0,
		"segments": [
			{"id": 0, "start": 0.0, "end": 1.0, "text": " hello"},
			{"id": 1, "start": 1.5, "end": 2.0, "text": " world"}
		]
	}`)

	b := NewOpenAI("test-key", ModelBase,
		WithBaseURL(srv.URL),
		WithLanguage("en"),
		WithMaxRetries(0),
	)
	if err := b.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	res, err := b.Transcribe(context.Background(), make([]float32, 16000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("got %d results, want 2", len(res))
	}
	if res[1].Start != 1500*time.Millisecond || res[1].Text != " world" {
		t.Errorf("res[1] = %+v", res[1])
	}
	if got := seen.Get("model"); got != "whisper-1" {
		t.Errorf("model = %q", got)
	}
	if got := seen.Get("response_format"); got != "verbose_json" {
		t.Errorf("response_format = %q", got)
	}
	if got := seen.Get("language"); got != "en" {
		t.Errorf("language = %q", got)
	}
}

func TestOpenAIPlainText(t *testing.T) {
	srv, _ := newFakeWhisper(t, `{"text": "just text"}`)
	b := NewOpenAI("k", ModelTiny, WithBaseURL(srv.URL), WithAPIModel("whisper-tiny"), WithMaxRetries(0))
	res, err := b.Transcribe(context.Background(), make([]float32, 1600))
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Start != 0 || res[0].Text != "just text" {
		t.Errorf("res = %+v", res)
	}
}

func TestOpenAIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()
	b := NewOpenAI("k", ModelBase, WithBaseURL(srv.URL), WithMaxRetries(0))
	if _, err := b.Transcribe(context.Background(), make([]float32, 160)); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenAIEmpty(t *testing.T) {
	b := NewOpenAI("k", ModelBase, WithBaseURL("http://127.0.0.1:1"))
	res, err := b.Transcribe(context.Background(), nil)
	if err != nil || res != nil {
		t.Fatalf("Transcribe(nil) = %v, %v", res, err)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "recognize")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommand(t *testing.T) {
	// The last argument is the WAV file.
	script := writeScript(t, `
for last; do :; done
[ -s "$last" ] || { echo "missing input" >&2; exit 1; }
[ "$2" = "small" ] || { echo "bad model $2" >&2; exit 1; }
echo '{"segments":[{"start":0.25,"end":1,"text":"hi"},{"start":1.5,"text":"there"}]}'
`)
	b := NewCommand(CommandConfig{Path: script, Model: ModelSmall, TempDir: t.TempDir()})
	if err := b.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if b.SampleRate() != CommandSampleRate {
		t.Errorf("SampleRate = %d", b.SampleRate())
	}
	res, err := b.Transcribe(context.Background(), make([]float32, 1600))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(res) != 2 || res[0].Start != 250*time.Millisecond || res[1].Text != "there" {
		t.Errorf("res = %+v", res)
	}
}

func TestCommandFailure(t *testing.T) {
	script := writeScript(t, `echo "model not found" >&2; exit 3`)
	b := NewCommand(CommandConfig{Path: script})
	if err := b.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, err := b.Transcribe(context.Background(), make([]float32, 160))
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestCommandBadOutput(t *testing.T) {
	script := writeScript(t, `echo "not json"`)
	b := NewCommand(CommandConfig{Path: script})
	b.Load(context.Background())
	if _, err := b.Transcribe(context.Background(), make([]float32, 160)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestCommandLoadMissing(t *testing.T) {
	b := NewCommand(CommandConfig{Path: filepath.Join(t.TempDir(), "nope")})
	if err := b.Load(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if err := NewCommand(CommandConfig{}).Load(context.Background()); err == nil {
		t.Fatal("expected error for empty path")
	}
}
