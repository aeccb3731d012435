package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/haivivi/mixrec/pkg/audio/pcm"
)

var (
	// ErrClosed is returned when using a closed source.
	ErrClosed = errors.New("capture: source closed")

	// ErrDeviceNotFound is returned by drivers when the requested device
	// does not exist or has no input channels.
	ErrDeviceNotFound = errors.New("capture: device not found")
)

// Driver opens blocking capture streams on audio devices.
type Driver interface {
	Open(ctx context.Context, device string, f pcm.Format, frames int) (Stream, error)
}

// Stream is an open capture stream.
type Stream interface {
	// Read fills buf with interleaved frames, blocking until a full block
	// has been captured.
	Read(buf []float32) error
	Close() error
}

// DeviceOptions configures a DeviceSource.
type DeviceOptions struct {
	QueueOptions

	Driver Driver
	// Device is the driver-specific device name or index. Empty selects
	// the default input device.
	Device string
	// BlockFrames is the number of frames per captured chunk.
	BlockFrames int
}

// DeviceSource captures from an audio device. A pump goroutine reads blocks
// from the driver stream and pushes them into the embedded QueueSource.
type DeviceSource struct {
	*QueueSource

	driver Driver
	device string
	block  int

	mu     sync.Mutex
	stream Stream
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDevice creates a DeviceSource. The device is not opened until Start.
func NewDevice(opts DeviceOptions) (*DeviceSource, error) {
	if opts.Driver == nil {
		return nil, errors.New("capture: nil driver")
	}
	if opts.BlockFrames <= 0 {
		return nil, fmt.Errorf("capture: invalid block size %d", opts.BlockFrames)
	}
	qs, err := NewQueueSource(opts.QueueOptions)
	if err != nil {
		return nil, err
	}
	return &DeviceSource{
		QueueSource: qs,
		driver:      opts.Driver,
		device:      opts.Device,
		block:       opts.BlockFrames,
	}, nil
}

// Start opens the device and starts the pump goroutine.
func (s *DeviceSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}
	if s.stream != nil {
		return nil
	}
	stream, err := s.driver.Open(ctx, s.device, s.format, s.block)
	if err != nil {
		return fmt.Errorf("capture: open %s (%q): %w", s.name, s.device, err)
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stream = stream
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)
	go s.pump(ctx, stream, s.done)
	s.logger.Info("capture: started", "source", s.name, "device", s.device, "format", s.format.String(), "block", s.block)
	return nil
}

func (s *DeviceSource) pump(ctx context.Context, stream Stream, done chan struct{}) {
	defer close(done)
	defer s.running.Store(false)
	buf := make([]float32, s.block*s.format.Channels)
	for ctx.Err() == nil {
		if err := stream.Read(buf); err != nil {
			if ctx.Err() == nil {
				s.logger.Error("capture: read failed", "source", s.name, "error", err)
			}
			return
		}
		if err := s.Push(buf); errors.Is(err, ErrClosed) {
			return
		}
	}
}

// Stop closes the device stream and waits for the pump to exit. Chunks
// already buffered stay readable.
func (s *DeviceSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	s.cancel()
	err := s.stream.Close()
	<-s.done
	s.stream = nil
	s.running.Store(false)
	s.logger.Info("capture: stopped", "source", s.name, "overflows", s.Overflows())
	if err != nil {
		return fmt.Errorf("capture: close %s: %w", s.name, err)
	}
	return nil
}

// Close stops capture and releases the buffer.
func (s *DeviceSource) Close() error {
	err := s.Stop()
	return errors.Join(err, s.QueueSource.Close())
}
