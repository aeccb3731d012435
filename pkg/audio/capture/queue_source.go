package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/haivivi/mixrec/pkg/audio/pcm"
	"github.com/haivivi/mixrec/pkg/buffer"
)

// DefaultQueueSize is the number of chunks a source buffers before it
// starts dropping.
const DefaultQueueSize = 100

// DefaultOverflowLogInterval bounds how often overflow warnings are logged.
const DefaultOverflowLogInterval = 5 * time.Second

// QueueOptions configures a QueueSource.
type QueueOptions struct {
	Name   string
	Role   Role
	Format pcm.Format

	// QueueSize defaults to DefaultQueueSize.
	QueueSize int

	// OverflowLogInterval defaults to DefaultOverflowLogInterval.
	OverflowLogInterval time.Duration

	Logger *slog.Logger
}

// QueueSource is a Source fed by Push. It is the buffer shared by every
// concrete source: a driver callback or pump goroutine pushes, the session
// loop reads.
//
// Push and Read may run concurrently. Start, Stop and Close only flip state;
// sources that own a device wrap QueueSource and add their own lifecycle.
type QueueSource struct {
	name   string
	role   Role
	format pcm.Format
	logger *slog.Logger

	queue     *buffer.Queue[*pcm.Chunk]
	running   atomic.Bool
	closed    atomic.Bool
	overflows atomic.Uint64
	pushed    atomic.Int64 // frames accepted or dropped

	warn rate.Sometimes
}

// NewQueueSource creates a QueueSource.
func NewQueueSource(opts QueueOptions) (*QueueSource, error) {
	if err := opts.Format.Validate(); err != nil {
		return nil, err
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.OverflowLogInterval <= 0 {
		opts.OverflowLogInterval = DefaultOverflowLogInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueSource{
		name:   opts.Name,
		role:   opts.Role,
		format: opts.Format,
		logger: logger,
		queue:  buffer.NewQueue[*pcm.Chunk](opts.QueueSize),
		warn:   rate.Sometimes{First: 1, Interval: opts.OverflowLogInterval},
	}, nil
}

func (s *QueueSource) Name() string       { return s.name }
func (s *QueueSource) Role() Role         { return s.role }
func (s *QueueSource) Format() pcm.Format { return s.format }

func (s *QueueSource) Active() bool {
	return s.running.Load() || s.queue.Len() > 0
}

func (s *QueueSource) Start(context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.running.Store(true)
	return nil
}

func (s *QueueSource) Stop() error {
	s.running.Store(false)
	return nil
}

func (s *QueueSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.running.Store(false)
	return s.queue.Close()
}

// Push copies samples into a new chunk and queues it without blocking.
// When the queue is full the chunk is dropped, the overflow counter is
// incremented and buffer.ErrFull is returned.
func (s *QueueSource) Push(samples []float32) error {
	if s.closed.Load() {
		return ErrClosed
	}
	frames := int64(len(samples) / s.format.Channels)
	start := s.pushed.Add(frames) - frames
	c := pcm.NewChunk(s.format, samples, s.format.Duration(int(start)))
	err := s.queue.TryPush(c)
	if errors.Is(err, buffer.ErrFull) {
		n := s.overflows.Add(1)
		s.warn.Do(func() {
			s.logger.Warn("capture: source buffer overflow, dropping audio",
				"source", s.name, "overflows", n, "queue", s.queue.Cap())
		})
	}
	return err
}

func (s *QueueSource) Read() (*pcm.Chunk, bool) {
	return s.queue.TryPop()
}

// ReadAll drains every buffered chunk and returns them joined into one
// chunk, or false if nothing was buffered.
func (s *QueueSource) ReadAll() (*pcm.Chunk, bool) {
	chunks := s.queue.Drain()
	if len(chunks) == 0 {
		return nil, false
	}
	n := 0
	for _, c := range chunks {
		n += len(c.Samples)
	}
	out := &pcm.Chunk{Format: s.format, Samples: make([]float32, 0, n), Start: chunks[0].Start}
	for _, c := range chunks {
		out.Samples = append(out.Samples, c.Samples...)
	}
	return out, true
}

// ClearBuffer discards buffered chunks and resets the overflow counter.
func (s *QueueSource) ClearBuffer() {
	s.queue.Drain()
	s.overflows.Store(0)
}

func (s *QueueSource) Overflows() uint64 {
	return s.overflows.Load()
}

// Buffered returns the number of chunks waiting to be read.
func (s *QueueSource) Buffered() int {
	return s.queue.Len()
}
