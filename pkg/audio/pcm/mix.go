package pcm

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoInput is returned when every input of a mix is missing.
	ErrNoInput = errors.New("pcm/mix: no input")

	// ErrIncomplete is returned when RequireAll is set and an input is missing.
	ErrIncomplete = errors.New("pcm/mix: missing input")
)

// Align selects how inputs of different lengths are lined up.
type Align int

const (
	// AlignShortest truncates every input to the shortest present chunk.
	AlignShortest Align = iota
	// AlignPad zero-pads every input to the longest present chunk.
	AlignPad
)

// String returns "shortest" or "pad".
func (a Align) String() string {
	switch a {
	case AlignShortest:
		return "shortest"
	case AlignPad:
		return "pad"
	}
	return fmt.Sprintf("Align(%d)", int(a))
}

// ParseAlign parses the result of Align.String.
func ParseAlign(s string) (Align, error) {
	switch s {
	case "", "shortest":
		return AlignShortest, nil
	case "pad":
		return AlignPad, nil
	}
	return 0, fmt.Errorf("pcm/mix: unknown alignment %q", s)
}

// MixInput is one stream of a mix. A nil or empty Chunk marks a missing
// stream.
type MixInput struct {
	Chunk *Chunk
	Gain  float32
}

// MixOptions controls Mix.
type MixOptions struct {
	// Format every present chunk must have. The output has the same format.
	Format Format
	Align  Align
	// RequireAll makes Mix fail with ErrIncomplete instead of substituting
	// silence for a missing stream.
	RequireAll bool
}

// Mix combines inputs into a single chunk.
//
// Every output sample is tanh(sum(gain_i * x_i) / N), where N is
// len(inputs). Missing streams contribute silence but still count in N, so a
// single active stream at gain 1 mixed with one missing stream comes out as
// tanh(x/2). The tanh soft clip keeps the output strictly inside (-1, 1).
//
// The output Start is taken from the first present input.
func Mix(inputs []MixInput, opts MixOptions) (*Chunk, error) {
	var (
		present int
		frames  = -1
		start   = -1
	)
	for i, in := range inputs {
		if in.Chunk != nil {
			if err := in.Chunk.CheckFormat(opts.Format); err != nil {
				return nil, fmt.Errorf("pcm/mix: input %d: %w", i, err)
			}
		}
		if in.Chunk.Frames() == 0 {
			if opts.RequireAll {
				return nil, fmt.Errorf("%w: input %d", ErrIncomplete, i)
			}
			continue
		}
		n := in.Chunk.Frames()
		switch {
		case frames < 0:
			frames = n
		case opts.Align == AlignPad && n > frames:
			frames = n
		case opts.Align == AlignShortest && n < frames:
			frames = n
		}
		if start < 0 {
			start = i
		}
		present++
	}
	if present == 0 {
		return nil, ErrNoInput
	}

	out := Silence(opts.Format, frames, inputs[start].Chunk.Start)
	for _, in := range inputs {
		if in.Chunk.Frames() == 0 || in.Gain == 0 {
			continue
		}
		src := in.Chunk.Samples
		if len(src) > len(out.Samples) {
			src = src[:len(out.Samples)]
		}
		for i, s := range src {
			out.Samples[i] += in.Gain * s
		}
	}

	n := float64(len(inputs))
	for i, s := range out.Samples {
		out.Samples[i] = float32(math.Tanh(float64(s) / n))
	}
	return out, nil
}

// ValidateGain reports whether g lies in [0, 1].
func ValidateGain(g float32) error {
	if g < 0 || g > 1 || math.IsNaN(float64(g)) {
		return fmt.Errorf("pcm/mix: gain %v out of range [0, 1]", g)
	}
	return nil
}
