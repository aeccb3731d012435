package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/haivivi/mixrec/pkg/audio/capture"
	"github.com/haivivi/mixrec/pkg/audio/pcm"
	"github.com/haivivi/mixrec/pkg/diarize"
)

// Option configures a Session.
type Option func(*Session)

// WithObserver registers fn to receive the final report when the session
// closes.
func WithObserver(fn func(Report)) Option {
	return func(s *Session) { s.observers = append(s.observers, fn) }
}

// WithJournal persists the final report and speaker timeline on close.
func WithJournal(j Journal) Option {
	return func(s *Session) { s.journal = j }
}

type procState struct {
	p       Processor
	caps    Capabilities
	started bool

	dropped  atomic.Int64
	failures atomic.Int64
	warn     rate.Sometimes
}

// Session captures from its sources, mixes, writes the mix to the sink and
// fans it out to processors, one cycle at a time.
//
// The loop is single-threaded and owns the session clock. Processors do
// their work on their own goroutines, behind non-blocking hand-offs, so a
// slow processor can never stall the recording.
type Session struct {
	cfg    Config
	logger *slog.Logger

	user, system int // source indexes for diarization, -1 if absent
	procs        []*procState

	observers []func(Report)
	journal   Journal

	mu       sync.Mutex // serializes lifecycle transitions
	state    atomic.Int32
	stopping atomic.Bool
	looping  bool
	loopDone chan struct{}

	infoMu    sync.Mutex
	fatal     error
	startedAt time.Time

	clock        atomic.Int64 // time.Duration
	cycles       atomic.Int64
	skipped      atomic.Int64
	frames       atomic.Int64
	sinkFailures atomic.Int64
	sinkStreak   int

	closeErr  error
	closeOnce sync.Once
}

// New validates cfg and returns an idle session.
func New(cfg Config, opts ...Option) (*Session, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:      cfg,
		logger:   cfg.Logger.With("session", cfg.ID),
		user:     -1,
		system:   -1,
		loopDone: make(chan struct{}),
	}
	for i, in := range cfg.Sources {
		switch in.Source.Role() {
		case capture.RoleUser:
			s.user = i
		case capture.RoleSystem:
			s.system = i
		}
	}
	for _, p := range cfg.Processors {
		s.procs = append(s.procs, &procState{
			p:    p,
			caps: p.Capabilities(),
			warn: rate.Sometimes{First: 1, Interval: cfg.DropLogInterval},
		})
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.Diarizer != nil && (s.user < 0 || s.system < 0) {
		s.logger.Warn("recorder: diarizer needs a user and a system source, labels disabled")
	}
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string { return s.cfg.ID }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Clock returns the session clock: the duration of audio mixed so far.
func (s *Session) Clock() time.Duration { return time.Duration(s.clock.Load()) }

// Run starts the session, loops until it stops and closes it.
func (s *Session) Run(ctx context.Context) (*Report, error) {
	if err := s.Start(ctx); err != nil {
		s.Close()
		r := s.Report()
		r.Err = err.Error()
		return &r, err
	}
	err := s.Loop(ctx)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	r := s.Report()
	return &r, err
}

// Start starts processors, then sources. If any processor or source fails
// to start, everything already started is stopped again and the session
// stays Idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.State(); st != Idle {
		return fmt.Errorf("%w: start in state %v", ErrState, st)
	}

	pctx := context.WithoutCancel(ctx)
	for _, ps := range s.procs {
		if err := s.guard(ps.p.Name(), func() error { return ps.p.Start(pctx) }); err != nil {
			s.unwind()
			return &ComponentError{Component: "processor " + ps.p.Name(), Op: "start", Err: err}
		}
		ps.started = true
	}
	for i, in := range s.cfg.Sources {
		if err := in.Source.Start(ctx); err != nil {
			for _, prev := range s.cfg.Sources[:i] {
				prev.Source.Stop()
			}
			s.unwind()
			return &ComponentError{Component: "source " + in.Source.Name(), Op: "start", Err: err}
		}
	}

	s.infoMu.Lock()
	s.startedAt = time.Now()
	s.infoMu.Unlock()
	s.state.Store(int32(Running))
	s.logger.Info("recorder: session started",
		"format", s.cfg.Format.String(),
		"sources", len(s.cfg.Sources),
		"processors", len(s.procs),
		"duration", s.cfg.Duration)
	return nil
}

func (s *Session) unwind() {
	for _, ps := range s.procs {
		if !ps.started {
			continue
		}
		if err := s.guard(ps.p.Name(), ps.p.Stop); err != nil {
			s.logger.Warn("recorder: processor stop failed", "processor", ps.p.Name(), "error", err)
		}
		ps.started = false
	}
}

// Stop asks the loop to finish after the current cycle. It is safe to call
// from any goroutine. Stopping an idle session returns ErrNotStarted;
// stopping a session that is already stopping or closed is a no-op.
func (s *Session) Stop() error {
	switch s.State() {
	case Idle:
		return ErrNotStarted
	case Running:
		s.stopping.Store(true)
	}
	return nil
}

// Loop runs cycles until the duration is reached, ctx is done, Stop is
// called, every source is exhausted, or the sink fails fatally. On return
// the session is Draining: sources are stopped and every processor has
// been drained.
func (s *Session) Loop(ctx context.Context) error {
	s.mu.Lock()
	if st := s.State(); st != Running || s.looping {
		s.mu.Unlock()
		return fmt.Errorf("%w: loop in state %v", ErrState, st)
	}
	s.looping = true
	s.mu.Unlock()
	defer close(s.loopDone)

	reason := "stopped"
	for {
		if s.stopping.Load() {
			break
		}
		if ctx.Err() != nil {
			reason = "interrupted"
			break
		}
		if d := s.cfg.Duration; d > 0 && s.Clock() >= d {
			reason = "duration reached"
			break
		}
		ok, err := s.cycle()
		if err != nil {
			s.infoMu.Lock()
			s.fatal = err
			s.infoMu.Unlock()
			reason = "failed"
			break
		}
		if ok {
			continue
		}
		if !s.anyActive() {
			reason = "sources exhausted"
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(s.cfg.PollInterval):
		}
	}

	s.logger.Info("recorder: session stopping", "reason", reason, "elapsed", s.Clock(), "cycles", s.cycles.Load())
	s.drain()
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	return s.fatal
}

func (s *Session) anyActive() bool {
	for _, in := range s.cfg.Sources {
		if in.Source.Active() {
			return true
		}
	}
	return false
}

// cycle runs one read-diarize-mix-write-handoff step. It returns false if
// no source had data. A chunk with no whole frame counts as no data.
func (s *Session) cycle() (bool, error) {
	chunks := make([]*pcm.Chunk, len(s.cfg.Sources))
	got := 0
	for i, in := range s.cfg.Sources {
		c, ok := in.Source.Read()
		if !ok {
			continue
		}
		if err := c.CheckFormat(s.cfg.Format); err != nil {
			return false, &ComponentError{Component: "source " + in.Source.Name(), Op: "read", Err: errors.Join(ErrConfig, err)}
		}
		if c.Frames() == 0 {
			continue
		}
		chunks[i] = c
		got++
	}
	if got == 0 {
		return false, nil
	}

	at := s.Clock()
	label := s.classify(chunks, at)

	inputs := make([]pcm.MixInput, len(chunks))
	for i, c := range chunks {
		inputs[i] = pcm.MixInput{Chunk: c, Gain: s.cfg.Sources[i].Gain}
	}
	mixed, err := pcm.Mix(inputs, pcm.MixOptions{
		Format:     s.cfg.Format,
		Align:      s.cfg.Align,
		RequireAll: s.cfg.RequireAll,
	})
	if errors.Is(err, pcm.ErrIncomplete) {
		s.skipped.Add(1)
		return true, nil
	}
	if err != nil {
		return false, &ComponentError{Component: "mixer", Op: "mix", Err: err}
	}
	mixed.Start = at

	if err := s.write(mixed); err != nil {
		return false, err
	}

	h := Handoff{Chunk: mixed, At: at}
	for _, ps := range s.procs {
		h.Speaker = diarize.Unknown
		if ps.caps.SpeakerAware {
			h.Speaker = label
		}
		s.handoff(ps, h)
	}

	s.cycles.Add(1)
	s.frames.Add(int64(mixed.Frames()))
	s.clock.Add(int64(mixed.Duration()))
	return true, nil
}

func (s *Session) classify(chunks []*pcm.Chunk, at time.Duration) (label diarize.Label) {
	if s.cfg.Diarizer == nil || s.user < 0 || s.system < 0 {
		return diarize.Unknown
	}
	err := s.guard("diarizer", func() error {
		label = s.cfg.Diarizer.Classify(chunks[s.user], chunks[s.system], at)
		return nil
	})
	if err != nil {
		s.logger.Warn("recorder: diarizer failed", "at", at, "error", err)
		return diarize.Unknown
	}
	return label
}

func (s *Session) write(c *pcm.Chunk) error {
	err := s.cfg.Sink.Write(c)
	if err == nil {
		s.sinkStreak = 0
		return nil
	}
	s.sinkStreak++
	s.sinkFailures.Add(1)
	s.logger.Error("recorder: sink write failed",
		"at", c.Start, "consecutive", s.sinkStreak, "limit", s.cfg.MaxSinkFailures, "error", err)
	if s.sinkStreak >= s.cfg.MaxSinkFailures {
		return &ComponentError{Component: "sink", Op: "write", Err: err}
	}
	return nil
}

func (s *Session) handoff(ps *procState, h Handoff) {
	err := s.guard(ps.p.Name(), func() error { return ps.p.Process(h) })
	switch {
	case err == nil:
	case errors.Is(err, ErrDropped):
		n := ps.dropped.Add(1)
		ps.warn.Do(func() {
			s.logger.Warn("recorder: processor is falling behind, dropping audio",
				"processor", ps.p.Name(), "dropped", n, "at", h.At)
		})
	default:
		ps.failures.Add(1)
		s.logger.Warn("recorder: processor failed", "processor", ps.p.Name(), "at", h.At, "error", err)
	}
}

// guard runs fn, turning a panic into an error.
func (s *Session) guard(component string, fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = panicError{value: v}
			s.logger.Error("recorder: recovered panic", "component", component, "panic", v)
		}
	}()
	return fn()
}

// drain stops the sources and drains every processor.
func (s *Session) drain() {
	s.state.Store(int32(Draining))
	for _, in := range s.cfg.Sources {
		if err := in.Source.Stop(); err != nil {
			s.logger.Warn("recorder: source stop failed", "source", in.Source.Name(), "error", err)
		}
	}
	for _, ps := range s.procs {
		if !ps.started {
			continue
		}
		if err := s.guard(ps.p.Name(), ps.p.Stop); err != nil {
			ps.failures.Add(1)
			s.logger.Warn("recorder: processor drain failed", "processor", ps.p.Name(), "error", err)
		}
	}
}

// Close stops a running session, waits for the loop to drain and releases
// every component. Closing an idle session releases components that were
// never started. Close is idempotent: later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.State() == Running {
			s.stopping.Store(true)
			if s.looping {
				<-s.loopDone
			} else {
				s.drain()
			}
		}
		s.closeErr = s.release()
		s.state.Store(int32(Closed))

		r := s.Report()
		s.logger.Info("recorder: session closed",
			"elapsed", r.Elapsed,
			"cycles", r.Cycles,
			"sink_failures", r.SinkFailures,
			"dropped", r.Dropped(),
			"overflows", r.Overflows())
		if s.journal != nil {
			s.record(&r)
		}
		for _, fn := range s.observers {
			fn(r)
		}
	})
	return s.closeErr
}

func (s *Session) release() error {
	var errs []error
	for _, ps := range s.procs {
		if err := s.guard(ps.p.Name(), ps.p.Close); err != nil {
			s.logger.Warn("recorder: processor close failed", "processor", ps.p.Name(), "error", err)
		}
	}
	if err := s.cfg.Sink.Close(); err != nil {
		errs = append(errs, &ComponentError{Component: "sink", Op: "close", Err: err})
	}
	for _, in := range s.cfg.Sources {
		if err := in.Source.Close(); err != nil {
			s.logger.Warn("recorder: source close failed", "source", in.Source.Name(), "error", err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) record(r *Report) {
	var spans []diarize.Span
	if s.cfg.Diarizer != nil {
		spans = s.cfg.Diarizer.Timeline().Spans()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.journal.Record(ctx, r, spans); err != nil {
		s.logger.Warn("recorder: journal write failed", "error", err)
	}
}

// Report returns a snapshot of the session counters. It may be called from
// any goroutine.
func (s *Session) Report() Report {
	s.infoMu.Lock()
	startedAt, fatal := s.startedAt, s.fatal
	s.infoMu.Unlock()

	r := Report{
		ID:            s.cfg.ID,
		State:         s.State(),
		StartedAt:     startedAt,
		Elapsed:       s.Clock(),
		Cycles:        s.cycles.Load(),
		SkippedCycles: s.skipped.Load(),
		Frames:        s.frames.Load(),
		SinkFailures:  s.sinkFailures.Load(),
	}
	for _, in := range s.cfg.Sources {
		r.Sources = append(r.Sources, SourceReport{
			Name:      in.Source.Name(),
			Gain:      in.Gain,
			Overflows: in.Source.Overflows(),
		})
	}
	for _, ps := range s.procs {
		r.Processors = append(r.Processors, ProcessorReport{
			Name:     ps.p.Name(),
			Dropped:  ps.dropped.Load(),
			Failures: ps.failures.Load(),
		})
	}
	if s.cfg.Diarizer != nil && s.State() >= Draining {
		totals := s.cfg.Diarizer.Timeline().Totals()
		for l, d := range totals {
			r.Speakers = append(r.Speakers, SpeakerTotal{Label: l, Duration: d})
		}
		slices.SortFunc(r.Speakers, func(a, b SpeakerTotal) int { return int(a.Label) - int(b.Label) })
	}
	if fatal != nil {
		r.Err = fatal.Error()
	}
	return r
}
