package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/mixrec/pkg/audio/pcm"
	"github.com/haivivi/mixrec/pkg/buffer"
)

var mono16k = pcm.Format{SampleRate: 16000, Channels: 1}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueueSourceOverflow(t *testing.T) {
	s, err := NewQueueSource(QueueOptions{Name: "mic", Format: mono16k, QueueSize: 3, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())

	block := make([]float32, 160)
	for i := 0; i < 5; i++ {
		block[0] = float32(i)
		err := s.Push(block)
		if i < 3 && err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
		if i >= 3 && !errors.Is(err, buffer.ErrFull) {
			t.Fatalf("push %d: err = %v, want ErrFull", i, err)
		}
	}
	if got := s.Overflows(); got != 2 {
		t.Errorf("overflows = %d, want 2", got)
	}

	// Oldest chunks survive, newest were dropped.
	for want := 0; want < 3; want++ {
		c, ok := s.Read()
		if !ok {
			t.Fatalf("read %d: empty", want)
		}
		if c.Samples[0] != float32(want) {
			t.Errorf("read %d: first sample %v", want, c.Samples[0])
		}
		if c.Start != time.Duration(want)*10*time.Millisecond {
			t.Errorf("read %d: start %v", want, c.Start)
		}
	}
	if _, ok := s.Read(); ok {
		t.Error("read from empty source returned ok")
	}
}

func TestQueueSourcePushCopies(t *testing.T) {
	s, _ := NewQueueSource(QueueOptions{Format: mono16k, Logger: quietLogger()})
	buf := []float32{0.25, 0.5}
	s.Push(buf)
	buf[0] = 1
	c, _ := s.Read()
	if c.Samples[0] != 0.25 {
		t.Errorf("chunk aliases the pushed buffer")
	}
}

func TestQueueSourceReadAllAndClear(t *testing.T) {
	s, _ := NewQueueSource(QueueOptions{Format: mono16k, QueueSize: 2, Logger: quietLogger()})
	s.Push([]float32{1, 2})
	s.Push([]float32{3})
	s.Push([]float32{4})

	c, ok := s.ReadAll()
	if !ok || len(c.Samples) != 3 || c.Samples[2] != 3 {
		t.Fatalf("ReadAll = %v, %v", c, ok)
	}
	if s.Overflows() != 1 {
		t.Errorf("overflows = %d", s.Overflows())
	}
	s.Push([]float32{5})
	s.ClearBuffer()
	if s.Buffered() != 0 || s.Overflows() != 0 {
		t.Errorf("after clear: buffered=%d overflows=%d", s.Buffered(), s.Overflows())
	}
	if _, ok := s.ReadAll(); ok {
		t.Error("ReadAll on empty source returned ok")
	}
}

func TestQueueSourceLifecycle(t *testing.T) {
	s, _ := NewQueueSource(QueueOptions{Format: mono16k, Logger: quietLogger()})
	if s.Active() {
		t.Error("active before start")
	}
	s.Start(context.Background())
	s.Push([]float32{1})
	s.Stop()
	if !s.Active() {
		t.Error("stopped source with buffered data must stay active")
	}
	s.Read()
	if s.Active() {
		t.Error("drained stopped source still active")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := s.Push([]float32{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("push after close: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("start after close: %v", err)
	}
}

// fakeDriver produces constant blocks until closed.
type fakeDriver struct {
	mu     sync.Mutex
	opened int
	err    error
}

func (d *fakeDriver) Open(_ context.Context, device string, f pcm.Format, frames int) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.opened++
	return &fakeStream{closed: make(chan struct{})}, nil
}

type fakeStream struct {
	once   sync.Once
	closed chan struct{}
}

func (s *fakeStream) Read(buf []float32) error {
	select {
	case <-s.closed:
		return io.EOF
	case <-time.After(time.Millisecond):
	}
	for i := range buf {
		buf[i] = 0.1
	}
	return nil
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func TestDeviceSource(t *testing.T) {
	d := &fakeDriver{}
	s, err := NewDevice(DeviceOptions{
		QueueOptions: QueueOptions{Name: "mic", Role: RoleUser, Format: mono16k, Logger: quietLogger()},
		Driver:       d,
		BlockFrames:  160,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	var c *pcm.Chunk
	for c == nil && time.Now().Before(deadline) {
		c, _ = s.Read()
		time.Sleep(time.Millisecond)
	}
	if c == nil {
		t.Fatal("no chunk captured")
	}
	if c.Frames() != 160 || c.Samples[0] != 0.1 {
		t.Errorf("chunk frames=%d first=%v", c.Frames(), c.Samples[0])
	}

	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	for s.Buffered() > 0 {
		s.Read()
	}
	if s.Active() {
		t.Error("active after stop and drain")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDeviceSourceOpenError(t *testing.T) {
	d := &fakeDriver{err: ErrDeviceNotFound}
	s, _ := NewDevice(DeviceOptions{
		QueueOptions: QueueOptions{Name: "monitor", Format: mono16k, Logger: quietLogger()},
		Driver:       d,
		BlockFrames:  160,
	})
	if err := s.Start(context.Background()); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("start err = %v", err)
	}
	if s.Active() {
		t.Error("active after failed start")
	}
}

func TestSynthetic(t *testing.T) {
	s, err := NewSynthetic(SyntheticOptions{
		Name:        "monitor",
		Role:        RoleSystem,
		Format:      mono16k,
		BlockFrames: 1600,
		Length:      time.Second,
		Tones:       []Tone{{At: 200 * time.Millisecond, Duration: 200 * time.Millisecond, Frequency: 440, Amplitude: 0.5}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Read(); ok {
		t.Error("read before start returned ok")
	}
	s.Start(context.Background())

	var chunks []*pcm.Chunk
	for s.Active() {
		c, ok := s.Read()
		if !ok {
			t.Fatal("active synthetic source returned nothing")
		}
		chunks = append(chunks, c)
	}
	if len(chunks) != 10 {
		t.Fatalf("chunks = %d, want 10", len(chunks))
	}
	for i, c := range chunks {
		rms := pcm.RMS(c)
		tone := i == 2 || i == 3
		if tone && math.Abs(rms-0.5/math.Sqrt2) > 0.01 {
			t.Errorf("chunk %d rms = %v, want tone", i, rms)
		}
		if !tone && rms != 0 {
			t.Errorf("chunk %d rms = %v, want silence", i, rms)
		}
		if c.Start != time.Duration(i)*100*time.Millisecond {
			t.Errorf("chunk %d start = %v", i, c.Start)
		}
	}
}

func TestSyntheticPartialLastBlock(t *testing.T) {
	s, _ := NewSynthetic(SyntheticOptions{Format: mono16k, BlockFrames: 1000, Length: 150 * time.Millisecond})
	s.Start(context.Background())
	var frames []int
	for s.Active() {
		c, _ := s.Read()
		frames = append(frames, c.Frames())
	}
	if len(frames) != 3 || frames[0] != 1000 || frames[1] != 1000 || frames[2] != 400 {
		t.Errorf("frames = %v, want [1000 1000 400]", frames)
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleSystem, RoleOther} {
		got, err := ParseRole(r.String())
		if err != nil || got != r {
			t.Errorf("ParseRole(%q) = %v, %v", r.String(), got, err)
		}
	}
	if _, err := ParseRole("speaker"); err == nil {
		t.Error("expected error")
	}
}
