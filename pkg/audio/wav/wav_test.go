package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haivivi/mixrec/pkg/audio/pcm"
)

var stereo = pcm.Format{SampleRate: 48000, Channels: 2}

func TestWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWriter(f, stereo)
	if err != nil {
		t.Fatal(err)
	}

	c := pcm.Silence(stereo, 480, 0)
	c.Samples[0] = 0.5
	c.Samples[1] = -0.25
	for i := 0; i < 100; i++ {
		if err := w.Write(c); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if w.FramesWritten() != 48000 {
		t.Errorf("frames = %d", w.FramesWritten())
	}
	if w.Duration() != time.Second {
		t.Errorf("duration = %v", w.Duration())
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := w.Write(c); !errors.Is(err, ErrClosed) {
		t.Errorf("write after close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != headerSize+48000*2*4 {
		t.Fatalf("file size = %d", len(data))
	}
	info, err := ReadInfo(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if info.Format != stereo || !info.Float || info.BitsPerSample != 32 || info.Frames != 48000 {
		t.Errorf("info = %+v", info)
	}
	first := math.Float32frombits(binary.LittleEndian.Uint32(data[headerSize:]))
	second := math.Float32frombits(binary.LittleEndian.Uint32(data[headerSize+4:]))
	if first != 0.5 || second != -0.25 {
		t.Errorf("first frame = %v, %v", first, second)
	}
}

func TestWriterFormatMismatch(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.wav"))
	if err != nil {
		t.Fatal(err)
	}
	w, _ := NewWriter(f, stereo)
	defer w.Close()
	mono := pcm.Silence(pcm.Format{SampleRate: 48000, Channels: 1}, 10, 0)
	if err := w.Write(mono); !errors.Is(err, pcm.ErrFormat) {
		t.Errorf("err = %v, want ErrFormat", err)
	}
}

type failingFile struct {
	*os.File
}

func (failingFile) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriterError(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.wav"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w, err := NewWriter(failingFile{f}, stereo)
	if err != nil {
		t.Fatal(err)
	}
	// The header is buffered; the failure surfaces once the buffer is flushed.
	err = w.Flush()
	var werr *Error
	if !errors.As(err, &werr) {
		t.Fatalf("flush err = %v, want *Error", err)
	}
}

// memFile is an in-memory io.WriteSeeker.
type memFile struct {
	data []byte
	pos  int64
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-int64(len(m.data)))...)
	}
	copy(m.data[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(off int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = off
	case io.SeekCurrent:
		m.pos += off
	case io.SeekEnd:
		m.pos = int64(len(m.data)) + off
	}
	return m.pos, nil
}

// flakyFile fails its first Write after storing a few bytes of it.
type flakyFile struct {
	memFile
	failed bool
}

func (f *flakyFile) Write(p []byte) (int, error) {
	if !f.failed {
		f.failed = true
		n, _ := f.memFile.Write(p[:min(len(p), 10)])
		return n, errors.New("transient I/O error")
	}
	return f.memFile.Write(p)
}

func TestWriterRecoversAfterFailedWrite(t *testing.T) {
	f := &flakyFile{}
	w, err := NewWriter(f, stereo)
	if err != nil {
		t.Fatal(err)
	}
	// One chunk fills the buffer, so every Write flushes what came before.
	c := pcm.Silence(stereo, flushThreshold/8, 0)
	c.Samples[0] = 0.5

	err = w.Write(c)
	var werr *Error
	if !errors.As(err, &werr) {
		t.Fatalf("first write err = %v, want *Error", err)
	}
	if got := w.FramesWritten(); got != 0 {
		t.Fatalf("frames after failed write = %d, want 0", got)
	}
	for i := 0; i < 2; i++ {
		if err := w.Write(c); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	want := int64(2 * c.Frames())
	if got := w.FramesWritten(); got != want {
		t.Errorf("frames = %d, want %d", got, want)
	}
	if len(f.data) != headerSize+int(want)*8 {
		t.Errorf("file size = %d, want %d", len(f.data), headerSize+int(want)*8)
	}
	info, err := ReadInfo(bytes.NewReader(f.data))
	if err != nil {
		t.Fatal(err)
	}
	if info.Frames != want {
		t.Errorf("header frames = %d, want %d", info.Frames, want)
	}
	second := math.Float32frombits(binary.LittleEndian.Uint32(f.data[headerSize+c.Frames()*8:]))
	if second != 0.5 {
		t.Errorf("first sample of second chunk = %v", second)
	}
}

func TestWriterSizeLimit(t *testing.T) {
	f := &memFile{}
	w, err := NewWriter(f, stereo)
	if err != nil {
		t.Fatal(err)
	}
	limit := int64(maxDataBytes / 8)
	w.frames = limit - 10

	err = w.Write(pcm.Silence(stereo, 100, 0))
	var werr *Error
	if !errors.As(err, &werr) || !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want *Error wrapping ErrTooLarge", err)
	}
	if got := w.FramesWritten(); got != limit-10 {
		t.Errorf("frames = %d, want %d", got, limit-10)
	}
	if err := w.Write(pcm.Silence(stereo, 10, 0)); err != nil {
		t.Errorf("write up to the limit: %v", err)
	}
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	mono := pcm.Format{SampleRate: 16000, Channels: 1}
	if err := Encode(&buf, mono, []float32{0, 1, -1}); err != nil {
		t.Fatal(err)
	}
	info, err := ReadInfo(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if info.Float || info.BitsPerSample != 16 || info.Frames != 3 || info.Format != mono {
		t.Errorf("info = %+v", info)
	}
	if got := int16(binary.LittleEndian.Uint16(buf.Bytes()[headerSize+2:])); got != math.MaxInt16 {
		t.Errorf("second sample = %d", got)
	}
}
