package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/haivivi/mixrec/cmd/mixrec/internal/config"
	"github.com/haivivi/mixrec/pkg/audio/capture"
	"github.com/haivivi/mixrec/pkg/audio/pcm"
	"github.com/haivivi/mixrec/pkg/audio/wav"
	"github.com/haivivi/mixrec/pkg/cli"
	"github.com/haivivi/mixrec/pkg/diarize"
	"github.com/haivivi/mixrec/pkg/journal"
	"github.com/haivivi/mixrec/pkg/level"
	"github.com/haivivi/mixrec/pkg/recorder"
	"github.com/haivivi/mixrec/pkg/storage"
	"github.com/haivivi/mixrec/pkg/transcribe"
)

const (
	simulateLength = 10 * time.Second
	archiveTimeout = 5 * time.Minute
)

var recordFlags struct {
	output         string
	duration       time.Duration
	simulate       bool
	realtime       bool
	transcribe     bool
	speakerLabels  bool
	backend        string
	model          string
	noMic          bool
	noMonitor      bool
	micDevice      string
	monitorDevice  string
	micGain        float32
	monitorGain    float32
	sampleRate     int
	channels       int
	requireAll     bool
	noJournal      bool
	archiveDir     string
	statusInterval time.Duration
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the configured sources into one mixed WAV file",
	Long: `Record the microphone and the system audio monitor (or any configured
sources) into one mixed 32-bit float WAV file.

Recording stops after --duration, when every source is exhausted, or on
Ctrl-C. Buffered audio is always written out and queued transcription is
drained before the summary is printed.

With --transcribe the mix is sent to a speech recognizer in buffers of
transcription.buffer_seconds, and the transcript is written next to the
recording with a .txt extension. --speaker-labels prefixes each line with
the dominant speaker (User, System, Both or None) derived from the
microphone and monitor energy.

--simulate replaces the devices with generated signals, which is useful to
check the pipeline and configuration without audio hardware.`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

func init() {
	f := recordCmd.Flags()
	f.StringVarP(&recordFlags.output, "output", "o", "", "output WAV file (default recording.wav)")
	f.DurationVarP(&recordFlags.duration, "duration", "d", 0, "stop after this much audio (0 = until interrupted)")
	f.BoolVar(&recordFlags.simulate, "simulate", false, "use generated signals instead of audio devices")
	f.BoolVar(&recordFlags.realtime, "realtime", false, "pace simulated sources at wall-clock speed")
	f.BoolVar(&recordFlags.transcribe, "transcribe", false, "transcribe the mix")
	f.BoolVar(&recordFlags.speakerLabels, "speaker-labels", false, "prefix transcript lines with the speaker")
	f.StringVar(&recordFlags.backend, "backend", "", "transcription backend: openai or command")
	f.StringVar(&recordFlags.model, "model", "", "transcription model: tiny, base, small, medium or large")
	f.BoolVar(&recordFlags.noMic, "no-mic", false, "do not record the microphone")
	f.BoolVar(&recordFlags.noMonitor, "no-monitor", false, "do not record the system audio monitor")
	f.StringVar(&recordFlags.micDevice, "mic-device", "", "microphone device name or index")
	f.StringVar(&recordFlags.monitorDevice, "monitor-device", "", "monitor device name or index")
	f.Float32Var(&recordFlags.micGain, "mic-gain", 1, "microphone gain in [0, 1]")
	f.Float32Var(&recordFlags.monitorGain, "monitor-gain", 1, "monitor gain in [0, 1]")
	f.IntVar(&recordFlags.sampleRate, "sample-rate", 0, "session sample rate in Hz")
	f.IntVar(&recordFlags.channels, "channels", 0, "session channel count")
	f.BoolVar(&recordFlags.requireAll, "require-all", false, "skip cycles where any source delivered nothing")
	f.BoolVar(&recordFlags.noJournal, "no-journal", false, "do not record the session in the journal")
	f.StringVar(&recordFlags.archiveDir, "archive-dir", "", "copy the session files into this directory")
	f.DurationVar(&recordFlags.statusInterval, "status-interval", time.Second, "level meter refresh interval (0 = off)")

	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRecordFlags(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	logger, closer, err := cli.NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := newRecording(cfg, logger)
	if err != nil {
		return err
	}
	defer rec.release()

	report, runErr := rec.run(ctx, cmd.ErrOrStderr(), recordFlags.statusInterval)
	if runErr != nil {
		logger.Error("recording failed", "session", report.ID, "error", runErr)
	}

	var archived []string
	if cfg.Archive.Enabled() {
		archived, err = rec.archive(ctx, report)
		if err != nil {
			logger.Error("archive failed", "session", report.ID, "error", err)
			runErr = errors.Join(runErr, err)
		}
	}

	if err := rec.print(cmd, report, archived, runErr); err != nil {
		return err
	}
	return runErr
}

// applyRecordFlags copies explicitly set flags over the file config.
func applyRecordFlags(f *pflag.FlagSet, cfg *config.Config) {
	fl := &recordFlags
	if f.Changed("output") {
		cfg.Output = fl.output
	}
	if f.Changed("duration") {
		cfg.Duration = fl.duration
	}
	if f.Changed("sample-rate") {
		cfg.Format.SampleRate = fl.sampleRate
	}
	if f.Changed("channels") {
		cfg.Format.Channels = fl.channels
	}
	if f.Changed("require-all") {
		cfg.Mixer.RequireAll = fl.requireAll
	}
	if f.Changed("transcribe") {
		cfg.Transcription.Enabled = fl.transcribe
	}
	if f.Changed("speaker-labels") {
		cfg.Transcription.SpeakerLabels = fl.speakerLabels
	}
	if f.Changed("backend") {
		cfg.Transcription.Backend = fl.backend
	}
	if f.Changed("model") {
		cfg.Transcription.Model = fl.model
	}
	if f.Changed("no-journal") {
		cfg.Journal.Disabled = fl.noJournal
	}
	if f.Changed("archive-dir") {
		cfg.Archive.Dir = fl.archiveDir
	}

	mic := func(fn func(*config.Source)) { fn(sourceForRole(cfg, "user", "mic")) }
	monitor := func(fn func(*config.Source)) { fn(sourceForRole(cfg, "system", "monitor")) }
	if f.Changed("mic-device") {
		mic(func(s *config.Source) { s.Device = fl.micDevice })
	}
	if f.Changed("monitor-device") {
		monitor(func(s *config.Source) { s.Device = fl.monitorDevice })
	}
	if f.Changed("mic-gain") {
		mic(func(s *config.Source) { s.Gain = config.Gain(fl.micGain) })
	}
	if f.Changed("monitor-gain") {
		monitor(func(s *config.Source) { s.Gain = config.Gain(fl.monitorGain) })
	}
	if f.Changed("no-mic") {
		mic(func(s *config.Source) { s.Enabled = boolPtr(!fl.noMic) })
	}
	if f.Changed("no-monitor") {
		monitor(func(s *config.Source) { s.Enabled = boolPtr(!fl.noMonitor) })
	}
}

// sourceForRole returns the first source with role, adding one named name
// if there is none.
func sourceForRole(cfg *config.Config, role, name string) *config.Source {
	for i := range cfg.Sources {
		if cfg.Sources[i].Role == role {
			return &cfg.Sources[i]
		}
	}
	cfg.Sources = append(cfg.Sources, config.Source{Name: name, Role: role, Gain: config.Gain(1)})
	return &cfg.Sources[len(cfg.Sources)-1]
}

func boolPtr(b bool) *bool { return &b }

// recording is one record invocation: the session and the components the
// command reads back after it ends.
type recording struct {
	cfg    *config.Config
	logger *slog.Logger

	session     *recorder.Session
	sink        *wav.Writer
	meter       *level.Meter
	transcriber *transcribe.Transcriber
	journal     *journal.Journal

	output     string
	transcript string
}

func newRecording(cfg *config.Config, logger *slog.Logger) (_ *recording, err error) {
	rec := &recording{cfg: cfg, logger: logger, output: cfg.Output}
	var undo []func() error
	defer func() {
		if err != nil {
			for i := len(undo) - 1; i >= 0; i-- {
				undo[i]()
			}
		}
	}()

	format := cfg.Format.PCM()
	align, err := pcm.ParseAlign(cfg.Mixer.Align)
	if err != nil {
		return nil, err
	}

	var inputs []recorder.SourceInput
	var hasUser, hasSys bool
	for _, sc := range cfg.EnabledSources() {
		src, err := newSource(cfg, sc, logger)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		undo = append(undo, src.Close)
		inputs = append(inputs, recorder.SourceInput{Source: src, Gain: sc.GainValue()})
		hasUser = hasUser || src.Role() == capture.RoleUser
		hasSys = hasSys || src.Role() == capture.RoleSystem
	}

	out, err := storage.NewLocal(filepath.Dir(cfg.Output))
	if err != nil {
		return nil, err
	}
	f, err := out.Create(filepath.Base(cfg.Output))
	if err != nil {
		return nil, err
	}
	rec.output = f.Name()
	rec.sink, err = wav.NewWriter(f, format)
	if err != nil {
		f.Close()
		return nil, err
	}
	undo = append(undo, rec.sink.Close)

	rec.meter = level.NewMeter("")
	processors := []recorder.Processor{rec.meter}

	if cfg.Transcription.Enabled {
		rec.transcriber, err = newTranscriber(cfg, format, logger)
		if err != nil {
			return nil, err
		}
		undo = append(undo, rec.transcriber.Close)
		rec.transcript = cfg.TranscriptPath()
		processors = append(processors, rec.transcriber)
	}

	scfg := recorder.Config{
		Format:          format,
		Sources:         inputs,
		Sink:            rec.sink,
		Processors:      processors,
		Align:           align,
		RequireAll:      cfg.Mixer.RequireAll,
		Duration:        cfg.Duration,
		MaxSinkFailures: cfg.MaxSinkFailures,
		PollInterval:    cfg.Format.BlockDuration() / 2,
		Logger:          logger,
	}
	if hasUser && hasSys {
		energy, err := diarize.NewEnergy(
			diarize.WithRatio(cfg.Diarization.Ratio),
			diarize.WithSilenceFloor(cfg.Diarization.SilenceFloor),
		)
		if err != nil {
			return nil, err
		}
		scfg.Diarizer = energy
	} else if cfg.Transcription.SpeakerLabels {
		logger.Warn("speaker labels need one user and one system source, transcript lines will be unlabeled")
	}

	var opts []recorder.Option
	if !cfg.Journal.Disabled {
		rec.journal, err = openJournal(cfg, rec, logger)
		if err != nil {
			return nil, err
		}
		undo = append(undo, rec.journal.Close)
		opts = append(opts, recorder.WithJournal(rec.journal))
	}

	rec.session, err = recorder.New(scfg, opts...)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func newSource(cfg *config.Config, sc config.Source, logger *slog.Logger) (capture.Source, error) {
	role, err := capture.ParseRole(sc.Role)
	if err != nil {
		return nil, err
	}
	format := cfg.Format.PCM()
	if recordFlags.simulate {
		length := cfg.Duration
		if length <= 0 {
			length = simulateLength
		}
		return capture.NewSynthetic(capture.SyntheticOptions{
			Name:        sc.Name,
			Role:        role,
			Format:      format,
			BlockFrames: cfg.Format.BlockFrames,
			Length:      length,
			Tones:       simulatedSpeech(role, length),
			Realtime:    recordFlags.realtime,
		})
	}
	if audio == nil {
		return nil, errNoAudio
	}
	return capture.NewDevice(capture.DeviceOptions{
		QueueOptions: capture.QueueOptions{
			Name:      sc.Name,
			Role:      role,
			Format:    format,
			QueueSize: cfg.SourceQueue,
			Logger:    logger,
		},
		Driver:      audio,
		Device:      sc.Device,
		BlockFrames: cfg.Format.BlockFrames,
	})
}

// simulatedSpeech alternates the parties every ten seconds: the user talks
// from 1s to 3s, the system from 5s to 8s.
func simulatedSpeech(role capture.Role, length time.Duration) []capture.Tone {
	var at, dur time.Duration
	var freq float64
	switch role {
	case capture.RoleUser:
		at, dur, freq = time.Second, 2*time.Second, 220
	case capture.RoleSystem:
		at, dur, freq = 5*time.Second, 3*time.Second, 440
	default:
		return nil
	}
	var tones []capture.Tone
	for base := time.Duration(0); base < length; base += 10 * time.Second {
		tones = append(tones, capture.Tone{At: base + at, Duration: dur, Frequency: freq, Amplitude: 0.3})
	}
	return tones
}

func newTranscriber(cfg *config.Config, format pcm.Format, logger *slog.Logger) (*transcribe.Transcriber, error) {
	t := cfg.Transcription
	model, err := transcribe.ParseModel(t.Model)
	if err != nil {
		return nil, err
	}
	var backend transcribe.Backend
	switch t.Backend {
	case "command":
		backend = transcribe.NewCommand(transcribe.CommandConfig{
			Path:     t.Command.Path,
			Args:     t.Command.Args,
			Model:    model,
			Language: t.Language,
		})
	default:
		key := t.OpenAI.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return nil, errors.New("transcription: OpenAI API key not set (transcription.openai.api_key or OPENAI_API_KEY)")
		}
		var opts []transcribe.OpenAIOption
		if t.OpenAI.BaseURL != "" {
			opts = append(opts, transcribe.WithBaseURL(t.OpenAI.BaseURL))
		}
		if t.OpenAI.Model != "" {
			opts = append(opts, transcribe.WithAPIModel(t.OpenAI.Model))
		}
		if t.Language != "" {
			opts = append(opts, transcribe.WithLanguage(t.Language))
		}
		backend = transcribe.NewOpenAI(key, model, opts...)
	}

	transcript := cfg.TranscriptPath()
	store, err := storage.NewLocal(filepath.Dir(transcript))
	if err != nil {
		return nil, err
	}
	return transcribe.New(transcribe.Config{
		Format:        format,
		Threshold:     t.Threshold(),
		QueueSize:     t.QueueSize,
		SpeakerLabels: t.SpeakerLabels,
		Store:         store,
		Path:          filepath.Base(transcript),
		Model:         model,
		Logger:        logger,
	}, backend)
}

func openJournal(cfg *config.Config, rec *recording, logger *slog.Logger) (*journal.Journal, error) {
	dir := cfg.Journal.Dir
	if dir == "" {
		p, err := appPaths()
		if err != nil {
			return nil, err
		}
		dir = p.JournalDir()
	}
	artifacts := map[string]string{"recording": absPath(rec.output)}
	if cfg.Transcription.Enabled {
		artifacts["transcript"] = absPath(cfg.TranscriptPath())
	}
	return journal.Open(dir,
		journal.WithRetention(cfg.Journal.Retention),
		journal.WithArtifacts(artifacts),
		journal.WithLogger(logger),
	)
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// run records until the session ends, printing the level meter every
// interval while it runs.
func (r *recording) run(ctx context.Context, status io.Writer, every time.Duration) (*recorder.Report, error) {
	var report *recorder.Report
	done := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		var err error
		report, err = r.session.Run(ctx)
		return err
	})
	if every > 0 {
		g.Go(func() error {
			r.printStatus(gctx, done, status, every)
			return nil
		})
	}
	err := g.Wait()
	return report, err
}

func (r *recording) printStatus(ctx context.Context, done <-chan struct{}, w io.Writer, every time.Duration) {
	st := cli.NewStyles(cli.DefaultTheme)
	t := time.NewTicker(every)
	defer t.Stop()
	printed := false
	for {
		select {
		case <-ctx.Done():
		case <-done:
		case <-t.C:
			lv := r.meter.Take()
			bar := cli.LevelBar(st, "mix", level.DBFS(lv.Peak), level.Floor, 24)
			fmt.Fprintf(w, "\r%-9s %s", cli.FormatDuration(r.session.Clock()), bar)
			printed = true
			continue
		}
		if printed {
			fmt.Fprintln(w)
		}
		return
	}
}

// archive copies the session files to every configured archive target and
// returns where they went.
func (r *recording) archive(ctx context.Context, report *recorder.Report) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	files := map[string]string{r.output: path.Join(report.ID, filepath.Base(r.output))}
	if r.transcript != "" {
		if _, err := os.Stat(r.transcript); err == nil {
			files[r.transcript] = path.Join(report.ID, filepath.Base(r.transcript))
		}
	}

	type target struct {
		name  string
		store storage.FileStore
	}
	var targets []target
	if dir := r.cfg.Archive.Dir; dir != "" {
		l, err := storage.NewLocal(dir)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target{l.Path(report.ID), l})
	}
	if c := r.cfg.Archive.S3; c != nil {
		s, err := storage.NewS3FromConfig(*c)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target{s.URI(report.ID), s})
	}

	var done []string
	for _, t := range targets {
		if err := storage.Archive(ctx, t.store, files); err != nil {
			return done, err
		}
		if err := writeReport(ctx, t.store, path.Join(report.ID, "report.json"), report); err != nil {
			return done, err
		}
		r.logger.Info("session archived", "session", report.ID, "target", t.name, "files", len(files)+1)
		done = append(done, t.name)
	}
	return done, nil
}

func writeReport(ctx context.Context, store storage.FileStore, p string, report *recorder.Report) error {
	var buf bytes.Buffer
	if err := cli.Output(report, cli.OutputOptions{Format: cli.FormatJSON, Writer: &buf}); err != nil {
		return err
	}
	if up, ok := store.(storage.Uploader); ok {
		return up.Upload(ctx, p, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	}
	w, err := store.Write(ctx, p)
	if err != nil {
		return err
	}
	if _, err := buf.WriteTo(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// print writes the report, as a summary box or in the --format encoding.
func (r *recording) print(cmd *cobra.Command, report *recorder.Report, archived []string, runErr error) error {
	if structured() {
		return output(cmd, report)
	}

	s := cli.Summary{Title: "Recording complete"}
	if runErr != nil {
		s.Title = "Recording failed"
	}
	s.Add("Session", "%s", report.ID)
	size := int64(0)
	if st, err := os.Stat(r.output); err == nil {
		size = st.Size()
	}
	s.Add("Output", "%s (%s, %d frames)", r.output, cli.FormatBytes(size), r.sink.FramesWritten())
	s.Add("Duration", "%s", cli.FormatDuration(report.Elapsed))
	s.Add("Cycles", "%d (%d skipped)", report.Cycles, report.SkippedCycles)
	if r.transcriber != nil {
		st := r.transcriber.Stats()
		s.Add("Transcript", "%s (%d lines)", r.transcript, st.Segments)
		if st.Failures > 0 {
			s.AddWarn("Recognition", "%d failed buffers", st.Failures)
		}
	}
	for _, sp := range report.Speakers {
		s.Add("Speaker "+sp.Label.String(), "%s", cli.FormatDuration(sp.Duration))
	}
	for _, p := range report.Processors {
		if p.Dropped > 0 || p.Failures > 0 {
			s.AddWarn(p.Name, "%d dropped, %d failed", p.Dropped, p.Failures)
		}
	}
	for _, src := range report.Sources {
		if src.Overflows > 0 {
			s.AddWarn(src.Name, "%d chunks lost to overflow", src.Overflows)
		}
	}
	if report.SinkFailures > 0 {
		s.AddWarn("Sink", "%d write failures", report.SinkFailures)
	}
	for _, a := range archived {
		s.Add("Archived", "%s", a)
	}
	switch {
	case report.Err != "":
		s.AddWarn("Error", "%s", report.Err)
	case runErr != nil:
		s.AddWarn("Error", "%v", runErr)
	}
	printf(cmd, "%s\n", s.Render(cli.NewStyles(cli.DefaultTheme)))
	return nil
}

// release closes what the session does not own.
func (r *recording) release() {
	if r.journal != nil {
		if err := r.journal.Close(); err != nil {
			r.logger.Warn("journal close failed", "error", err)
		}
	}
}
