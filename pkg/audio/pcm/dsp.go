package pcm

import "math"

// RMS returns the root-mean-square level of all samples in c.
// A nil or empty chunk has level 0.
func RMS(c *Chunk) float64 {
	if c == nil || len(c.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range c.Samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(c.Samples)))
}

// Peak returns the largest absolute sample value in c.
func Peak(c *Chunk) float32 {
	if c == nil {
		return 0
	}
	var p float32
	for _, s := range c.Samples {
		if s < 0 {
			s = -s
		}
		if s > p {
			p = s
		}
	}
	return p
}

// Downmix averages the channels of c into a mono sample slice.
func Downmix(c *Chunk) []float32 {
	if c == nil {
		return nil
	}
	if c.Channels == 1 {
		out := make([]float32, len(c.Samples))
		copy(out, c.Samples)
		return out
	}
	frames := c.Frames()
	out := make([]float32, frames)
	ch := float32(c.Channels)
	for i := 0; i < frames; i++ {
		var sum float32
		for _, s := range c.Samples[i*c.Channels : (i+1)*c.Channels] {
			sum += s
		}
		out[i] = sum / ch
	}
	return out
}

// Int16 converts a float32 sample in [-1, 1] to 16-bit PCM, clamping values
// outside the range.
func Int16(s float32) int16 {
	switch {
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return math.MinInt16
	}
	return int16(s * math.MaxInt16)
}
