package transcribe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/mixrec/pkg/audio/pcm"
	"github.com/haivivi/mixrec/pkg/audio/resampler"
	"github.com/haivivi/mixrec/pkg/buffer"
	"github.com/haivivi/mixrec/pkg/diarize"
	"github.com/haivivi/mixrec/pkg/recorder"
	"github.com/haivivi/mixrec/pkg/storage"
)

// Defaults.
const (
	DefaultThreshold    = 10 * time.Second
	DefaultQueueSize    = 500
	DefaultDrainTimeout = 2 * time.Minute
)

// Config configures a Transcriber.
type Config struct {
	// Name defaults to "transcriber".
	Name string

	// Format of the mixed chunks the session hands over.
	Format pcm.Format

	// Threshold is how much audio is accumulated before it is queued for
	// recognition.
	Threshold time.Duration

	// QueueSize is the number of accumulated buffers that may wait for
	// the worker.
	QueueSize int

	// SpeakerLabels declares the transcriber speaker-aware: lines are
	// prefixed with the speaker of their buffer. A buffer's speaker is the
	// voiced label (User, System or Both) covering the most frames of it;
	// ties go to the label listed first. A buffer with no voiced frames is
	// None if any frame was labeled None, and is written without a prefix
	// if no frame carried a label at all.
	SpeakerLabels bool

	// Store and Path name the transcript file.
	Store storage.FileStore
	Path  string

	// DrainTimeout bounds how long Stop waits for queued buffers.
	DrainTimeout time.Duration

	// Model is reported in the drop hint. Optional.
	Model Model

	Logger *slog.Logger
}

type job struct {
	samples []float32
	start   time.Duration
	label   diarize.Label
}

// Stats are the transcriber counters.
type Stats struct {
	Jobs     int64 `json:"jobs" yaml:"jobs"`
	Segments int64 `json:"segments" yaml:"segments"`
	Dropped  int64 `json:"dropped" yaml:"dropped"`
	Failures int64 `json:"failures" yaml:"failures"`
}

// Transcriber is a recorder.Processor that turns the mixed signal into a
// timestamped text transcript.
//
// Process runs on the session loop. It downmixes each chunk to mono and
// accumulates it; once Threshold worth of audio is buffered the buffer is
// offered to a bounded queue without blocking. A single worker goroutine
// pops buffers in order, resamples them to the backend rate, runs the
// backend and appends one line per segment to the transcript, flushing
// after every line.
type Transcriber struct {
	cfg     Config
	backend Backend
	logger  *slog.Logger

	threshold int // frames at the session rate

	// Producer side, owned by the session loop.
	buf      []float32
	bufStart time.Duration
	labels   [diarize.None + 1]int

	queue   *buffer.Queue[job]
	out     io.WriteCloser
	w       *bufio.Writer
	running atomic.Bool
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	// backendClosed is set when a failed Start already closed the backend.
	backendClosed bool

	lastStart time.Duration // worker only

	jobs     atomic.Int64
	segments atomic.Int64
	dropped  atomic.Int64
	failures atomic.Int64

	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

var _ recorder.Processor = (*Transcriber)(nil)

// New creates a Transcriber. The backend is loaded in Start.
func New(cfg Config, backend Backend) (*Transcriber, error) {
	if backend == nil {
		return nil, errors.New("transcribe: nil backend")
	}
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	if cfg.Store == nil || cfg.Path == "" {
		return nil, errors.New("transcribe: no transcript destination")
	}
	if cfg.Threshold < 0 {
		return nil, fmt.Errorf("transcribe: threshold must be positive, got %v", cfg.Threshold)
	}
	if cfg.Name == "" {
		cfg.Name = "transcriber"
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	threshold := cfg.Format.FramesIn(cfg.Threshold)
	if threshold <= 0 {
		return nil, fmt.Errorf("transcribe: threshold %v is shorter than one frame", cfg.Threshold)
	}
	return &Transcriber{
		cfg:       cfg,
		backend:   backend,
		logger:    cfg.Logger.With("processor", cfg.Name),
		threshold: threshold,
		buf:       make([]float32, 0, threshold),
		queue:     buffer.NewQueue[job](cfg.QueueSize),
	}, nil
}

func (t *Transcriber) Name() string { return t.cfg.Name }

func (t *Transcriber) Capabilities() recorder.Capabilities {
	return recorder.Capabilities{SpeakerAware: t.cfg.SpeakerLabels}
}

// Start loads the backend, opens the transcript and starts the worker.
func (t *Transcriber) Start(ctx context.Context) error {
	if t.started {
		return fmt.Errorf("transcribe: %s already started", t.cfg.Name)
	}
	begin := time.Now()
	if err := t.backend.Load(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	t.logger.Info("transcribe: model loaded", "model", t.cfg.Model, "took", time.Since(begin))

	out, err := t.cfg.Store.Write(ctx, t.cfg.Path)
	if err != nil {
		t.backendClosed = true
		return errors.Join(fmt.Errorf("transcribe: open transcript %s: %w", t.cfg.Path, err), t.backend.Close())
	}
	t.out = out
	t.w = bufio.NewWriter(out)

	wctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.started = true
	t.running.Store(true)
	go t.work(wctx)
	return nil
}

// Process accumulates one mixed chunk. It never blocks: when the queue is
// full the accumulated buffer is discarded and an error wrapping
// recorder.ErrDropped is returned.
func (t *Transcriber) Process(h recorder.Handoff) error {
	if !t.running.Load() {
		return fmt.Errorf("transcribe: %s not running", t.cfg.Name)
	}
	if err := h.Chunk.CheckFormat(t.cfg.Format); err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	mono := pcm.Downmix(h.Chunk)
	if len(t.buf) == 0 {
		t.bufStart = h.At
	}
	t.buf = append(t.buf, mono...)
	if h.Speaker <= diarize.None {
		t.labels[h.Speaker] += len(mono)
	}
	if len(t.buf) < t.threshold {
		return nil
	}

	j := t.take()
	if err := t.queue.TryPush(j); err != nil {
		if !errors.Is(err, buffer.ErrFull) {
			return fmt.Errorf("transcribe: %w", err)
		}
		t.dropped.Add(1)
		hint := ""
		if t.cfg.Model != "" && t.cfg.Model.Smaller() != t.cfg.Model {
			hint = fmt.Sprintf(", consider model %q", t.cfg.Model.Smaller())
		}
		return fmt.Errorf("%w: transcription queue full (%d buffers pending), %v of audio at %.2fs not transcribed%s",
			recorder.ErrDropped, t.queue.Len(), t.cfg.Threshold, j.start.Seconds(), hint)
	}
	return nil
}

// take hands the accumulated buffer over as a job and starts a new one.
func (t *Transcriber) take() job {
	j := job{samples: t.buf, start: t.bufStart, label: t.dominant()}
	t.buf = make([]float32, 0, t.threshold)
	t.labels = [diarize.None + 1]int{}
	return j
}

// dominant picks the label covering most frames of the buffer. Voiced
// labels win over None; None wins over no label.
func (t *Transcriber) dominant() diarize.Label {
	best, n := diarize.Unknown, 0
	for _, l := range []diarize.Label{diarize.User, diarize.System, diarize.Both} {
		if t.labels[l] > n {
			best, n = l, t.labels[l]
		}
	}
	if best == diarize.Unknown && t.labels[diarize.None] > 0 {
		return diarize.None
	}
	return best
}

// Stop queues the partial buffer, waits for the worker to transcribe
// everything queued and flushes the transcript.
func (t *Transcriber) Stop() error {
	if !t.started {
		return nil
	}
	var err error
	t.stopOnce.Do(func() {
		t.running.Store(false)
		if len(t.buf) > 0 {
			j := t.take()
			ctx, cancel := context.WithTimeout(context.Background(), t.cfg.DrainTimeout)
			if perr := t.queue.Push(ctx, j); perr != nil {
				t.dropped.Add(1)
				t.logger.Warn("transcribe: final buffer dropped", "at", j.start, "error", perr)
			}
			cancel()
		}
		t.queue.CloseWrite()

		timer := time.NewTimer(t.cfg.DrainTimeout)
		defer timer.Stop()
		select {
		case <-t.done:
		case <-timer.C:
			pending := t.queue.Len()
			t.cancel()
			t.queue.Close()
			<-t.done
			err = fmt.Errorf("transcribe: drain timed out after %v, %d buffers discarded", t.cfg.DrainTimeout, pending)
		}
		if ferr := t.w.Flush(); ferr != nil && err == nil {
			err = fmt.Errorf("transcribe: flush transcript: %w", ferr)
		}
		s := t.Stats()
		t.logger.Info("transcribe: drained", "jobs", s.Jobs, "segments", s.Segments, "dropped", s.Dropped, "failures", s.Failures)
	})
	return err
}

// Close stops the worker if needed and releases the backend and the
// transcript. It is idempotent.
func (t *Transcriber) Close() error {
	t.closeOnce.Do(func() {
		if !t.started {
			if !t.backendClosed {
				t.closeErr = t.backend.Close()
			}
			return
		}
		if err := t.Stop(); err != nil {
			t.logger.Warn("transcribe: stop on close", "error", err)
		}
		t.cancel()
		t.queue.Close()
		<-t.done
		t.closeErr = errors.Join(t.backend.Close(), t.out.Close())
	})
	return t.closeErr
}

// Stats returns a snapshot of the counters.
func (t *Transcriber) Stats() Stats {
	return Stats{
		Jobs:     t.jobs.Load(),
		Segments: t.segments.Load(),
		Dropped:  t.dropped.Load(),
		Failures: t.failures.Load(),
	}
}

func (t *Transcriber) work(ctx context.Context) {
	defer close(t.done)
	for {
		j, err := t.queue.Pop()
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		t.run(ctx, j)
	}
}

func (t *Transcriber) run(ctx context.Context, j job) {
	t.jobs.Add(1)
	results, err := t.transcribe(ctx, j.samples)
	if err != nil {
		t.failures.Add(1)
		t.logger.Error("transcribe: recognition failed", "at", j.start, "error", err)
		return
	}
	for _, r := range results {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		start := j.start + r.Start
		if start < t.lastStart {
			start = t.lastStart
		}
		t.lastStart = start
		if err := t.writeLine(start, j.label, text); err != nil {
			t.failures.Add(1)
			t.logger.Error("transcribe: write transcript", "error", err)
			return
		}
		t.segments.Add(1)
	}
}

func (t *Transcriber) transcribe(ctx context.Context, samples []float32) (_ []Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("backend panic: %v", v)
		}
	}()
	if rate := t.backend.SampleRate(); rate != t.cfg.Format.SampleRate {
		rs, err := resampler.New(t.cfg.Format.SampleRate, rate)
		if err != nil {
			return nil, err
		}
		if samples, err = rs.Process(samples); err != nil {
			return nil, err
		}
	}
	return t.backend.Transcribe(ctx, samples)
}

func (t *Transcriber) writeLine(start time.Duration, label diarize.Label, text string) error {
	var err error
	if t.cfg.SpeakerLabels && label.Known() {
		_, err = fmt.Fprintf(t.w, "[%.2fs - %s] %s\n", start.Seconds(), label, text)
	} else {
		_, err = fmt.Fprintf(t.w, "[%.2fs] %s\n", start.Seconds(), text)
	}
	if err != nil {
		return err
	}
	return t.w.Flush()
}
