package capture

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/haivivi/mixrec/pkg/audio/pcm"
)

// Tone is a sine burst inside a synthetic stream.
type Tone struct {
	At        time.Duration
	Duration  time.Duration
	Frequency float64
	Amplitude float64
}

// SyntheticOptions configures a Synthetic source.
type SyntheticOptions struct {
	Name        string
	Role        Role
	Format      pcm.Format
	BlockFrames int
	// Length is the total stream length. Zero means endless.
	Length time.Duration
	Tones  []Tone
	// Realtime paces Read so that a block only becomes available once its
	// end has passed on the wall clock since Start.
	Realtime bool
}

// Synthetic is a deterministic generated source: silence with optional
// sine bursts. Each Read produces the next block; once Length is reached
// the source becomes inactive.
type Synthetic struct {
	opts  SyntheticOptions
	total int // frames, < 0 when endless

	mu      sync.Mutex
	pos     int
	started time.Time
	running bool
	closed  bool
}

// NewSynthetic creates a Synthetic source.
func NewSynthetic(opts SyntheticOptions) (*Synthetic, error) {
	if err := opts.Format.Validate(); err != nil {
		return nil, err
	}
	if opts.BlockFrames <= 0 {
		opts.BlockFrames = 1024
	}
	total := -1
	if opts.Length > 0 {
		total = opts.Format.FramesIn(opts.Length)
	}
	return &Synthetic{opts: opts, total: total}, nil
}

func (s *Synthetic) Name() string       { return s.opts.Name }
func (s *Synthetic) Role() Role         { return s.opts.Role }
func (s *Synthetic) Format() pcm.Format { return s.opts.Format }
func (s *Synthetic) Overflows() uint64  { return 0 }

func (s *Synthetic) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.exhaustedLocked()
}

func (s *Synthetic) exhaustedLocked() bool {
	return s.total >= 0 && s.pos >= s.total
}

func (s *Synthetic) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.running = true
	s.started = time.Now()
	return nil
}

func (s *Synthetic) Read() (*pcm.Chunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.exhaustedLocked() {
		return nil, false
	}
	f := s.opts.Format
	n := s.opts.BlockFrames
	if s.total >= 0 && s.pos+n > s.total {
		n = s.total - s.pos
	}
	if s.opts.Realtime && time.Since(s.started) < f.Duration(s.pos+n) {
		return nil, false
	}
	c := pcm.Silence(f, n, f.Duration(s.pos))
	for _, t := range s.opts.Tones {
		s.render(c, t)
	}
	s.pos += n
	return c, true
}

func (s *Synthetic) render(c *pcm.Chunk, t Tone) {
	f := c.Format
	from := f.FramesIn(t.At)
	to := f.FramesIn(t.At + t.Duration)
	for i := 0; i < c.Frames(); i++ {
		frame := s.pos + i
		if frame < from || frame >= to {
			continue
		}
		x := float64(frame-from) / float64(f.SampleRate)
		v := float32(t.Amplitude * math.Sin(2*math.Pi*t.Frequency*x))
		for ch := 0; ch < f.Channels; ch++ {
			c.Samples[i*f.Channels+ch] += v
		}
	}
}

func (s *Synthetic) Stop() error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *Synthetic) Close() error {
	s.mu.Lock()
	s.running = false
	s.closed = true
	s.mu.Unlock()
	return nil
}
