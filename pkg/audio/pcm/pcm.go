package pcm

import (
	"errors"
	"fmt"
	"time"
)

// ErrFormat reports a chunk whose format does not match the expected one.
var ErrFormat = errors.New("pcm: format mismatch")

// Format describes interleaved float32 audio.
type Format struct {
	SampleRate int `json:"sample_rate" yaml:"sample_rate"`
	Channels   int `json:"channels" yaml:"channels"`
}

// Default capture format: 48kHz stereo.
var Default = Format{SampleRate: 48000, Channels: 2}

// Validate checks that the format is usable.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("pcm: invalid sample rate %d", f.SampleRate)
	}
	if f.Channels < 1 {
		return fmt.Errorf("pcm: invalid channel count %d", f.Channels)
	}
	return nil
}

// FramesIn returns the number of whole frames that fit in d.
func (f Format) FramesIn(d time.Duration) int {
	return int(int64(f.SampleRate) * int64(d) / int64(time.Second))
}

// Duration returns the playback duration of n frames.
func (f Format) Duration(frames int) time.Duration {
	return time.Duration(int64(frames) * int64(time.Second) / int64(f.SampleRate))
}

// String returns a human-readable string representation of the format.
func (f Format) String() string {
	return fmt.Sprintf("audio/f32; rate=%d; channels=%d", f.SampleRate, f.Channels)
}

// Chunk is a block of interleaved float32 samples, frame-major:
// Samples[i*Channels+c] is channel c of frame i.
//
// A chunk is treated as immutable once it has been handed to another stage.
// Start is the offset of the first frame from the beginning of whatever
// stream produced it.
type Chunk struct {
	Format
	Samples []float32
	Start   time.Duration
}

// NewChunk copies samples into a new chunk. Trailing samples that do not
// form a whole frame are dropped.
func NewChunk(f Format, samples []float32, start time.Duration) *Chunk {
	n := len(samples) - len(samples)%f.Channels
	buf := make([]float32, n)
	copy(buf, samples[:n])
	return &Chunk{Format: f, Samples: buf, Start: start}
}

// Silence returns a zero-filled chunk of the given frame count.
func Silence(f Format, frames int, start time.Duration) *Chunk {
	return &Chunk{Format: f, Samples: make([]float32, frames*f.Channels), Start: start}
}

// Frames returns the number of frames in the chunk.
func (c *Chunk) Frames() int {
	if c == nil || c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the playback duration of the chunk.
func (c *Chunk) Duration() time.Duration {
	if c == nil || c.SampleRate == 0 {
		return 0
	}
	return c.Format.Duration(c.Frames())
}

// End returns Start + Duration.
func (c *Chunk) End() time.Duration {
	return c.Start + c.Duration()
}

// Slice returns the frames [from, to) as a new chunk sharing no memory with c.
func (c *Chunk) Slice(from, to int) *Chunk {
	s := c.Samples[from*c.Channels : to*c.Channels]
	return NewChunk(c.Format, s, c.Start+c.Format.Duration(from))
}

// CheckFormat returns ErrFormat when c was not produced in format f.
func (c *Chunk) CheckFormat(f Format) error {
	if c.Format != f {
		return fmt.Errorf("%w: got %v, want %v", ErrFormat, c.Format, f)
	}
	return nil
}
