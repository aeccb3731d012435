package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/haivivi/mixrec/pkg/audio/pcm"
)

// ErrClosed is returned when writing to a closed Writer.
var ErrClosed = errors.New("wav: writer closed")

// ErrTooLarge is returned when a write would push the data chunk past the
// 4 GiB limit of the RIFF size fields.
var ErrTooLarge = errors.New("wav: data exceeds RIFF size limit")

// maxDataBytes is the largest data chunk whose RIFF chunk size still fits
// in a uint32.
const maxDataBytes = math.MaxUint32 - (headerSize - 8)

// flushThreshold is how many bytes are held in memory before a write goes
// through to the file.
const flushThreshold = 64 << 10

// Error is a write failure of the underlying file.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "wav: " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Writer writes 32-bit float WAV.
//
// The header is written with zero sizes on creation and patched on Close, so
// a file that was never closed is still readable by most tools up to the
// last flushed frame.
//
// A failed write leaves the Writer usable: the file is rewound to the end
// of the last successful flush and the rejected chunk is not counted.
// Frames accepted earlier stay pending and go out with the next flush.
type Writer struct {
	mu      sync.Mutex
	dst     io.WriteSeeker
	pending []byte
	written int64 // bytes known to be in dst
	format  pcm.Format
	frames  int64
	closed  bool
}

// NewWriter prepares a WAV header for dst and returns a Writer for format
// f. The header reaches dst with the first flush. If dst is an io.Closer it
// is closed by Close.
func NewWriter(dst io.WriteSeeker, f pcm.Format) (*Writer, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	w := &Writer{
		dst:     dst,
		pending: make([]byte, 0, flushThreshold),
		format:  f,
	}
	h := newHeader(formatFloat, 32, f, 0)
	var err error
	if w.pending, err = binary.Append(w.pending, binary.LittleEndian, &h); err != nil {
		return nil, &Error{Op: "write header", Err: err}
	}
	return w, nil
}

// Write appends the chunk's frames.
func (w *Writer) Write(c *pcm.Chunk) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := c.CheckFormat(w.format); err != nil {
		return fmt.Errorf("wav: %w", err)
	}
	block := int64(w.format.Channels) * 4
	if (w.frames+int64(c.Frames()))*block > maxDataBytes {
		return &Error{Op: "write", Err: ErrTooLarge}
	}
	n := len(c.Samples) * 4
	if len(w.pending) > 0 && len(w.pending)+n > flushThreshold {
		if err := w.flush(); err != nil {
			return err
		}
	}
	for _, s := range c.Samples {
		w.pending = binary.LittleEndian.AppendUint32(w.pending, math.Float32bits(s))
	}
	w.frames += int64(c.Frames())
	return nil
}

// flush writes the pending bytes. On failure dst is rewound to the last
// good offset and the pending bytes are kept for the next attempt.
func (w *Writer) flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	if _, err := w.dst.Write(w.pending); err != nil {
		if _, serr := w.dst.Seek(w.written, io.SeekStart); serr != nil {
			return &Error{Op: "seek", Err: errors.Join(err, serr)}
		}
		return &Error{Op: "write", Err: err}
	}
	w.written += int64(len(w.pending))
	w.pending = w.pending[:0]
	return nil
}

// Flush writes buffered frames to the underlying file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush()
}

// FramesWritten returns the number of frames accepted so far.
func (w *Writer) FramesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Duration returns the playback duration of the frames written so far.
func (w *Writer) Duration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Duration(w.frames * int64(time.Second) / int64(w.format.SampleRate))
}

// Format returns the file format.
func (w *Writer) Format() pcm.Format { return w.format }

// Close flushes, patches the header sizes and closes the destination if it
// is an io.Closer. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.finalize()
	if c, ok := w.dst.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = &Error{Op: "close", Err: cerr}
		}
	}
	return err
}

func (w *Writer) finalize() error {
	if err := w.flush(); err != nil {
		return err
	}
	size := w.frames * int64(w.format.Channels) * 4
	if size > maxDataBytes {
		return &Error{Op: "write header", Err: ErrTooLarge}
	}
	h := newHeader(formatFloat, 32, w.format, uint32(size))
	if _, err := w.dst.Seek(0, io.SeekStart); err != nil {
		return &Error{Op: "seek", Err: err}
	}
	if err := binary.Write(w.dst, binary.LittleEndian, &h); err != nil {
		return &Error{Op: "write header", Err: err}
	}
	if _, err := w.dst.Seek(0, io.SeekEnd); err != nil {
		return &Error{Op: "seek", Err: err}
	}
	return nil
}

// Info is the metadata read back from a WAV header.
type Info struct {
	Format        pcm.Format
	Float         bool
	BitsPerSample int
	Frames        int64
}

// ReadInfo parses the canonical 44-byte header produced by this package.
func ReadInfo(r io.Reader) (Info, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return Info{}, &Error{Op: "read header", Err: err}
	}
	if string(h.ChunkID[:]) != "RIFF" || string(h.Format[:]) != "WAVE" || string(h.Subchunk2ID[:]) != "data" {
		return Info{}, &Error{Op: "read header", Err: errors.New("not a canonical WAV file")}
	}
	info := Info{
		Format:        pcm.Format{SampleRate: int(h.SampleRate), Channels: int(h.NumChannels)},
		Float:         h.AudioFormat == formatFloat,
		BitsPerSample: int(h.BitsPerSample),
	}
	if h.BlockAlign > 0 {
		info.Frames = int64(h.Subchunk2Size) / int64(h.BlockAlign)
	}
	return info, nil
}
