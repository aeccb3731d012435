package pcm

import (
	"errors"
	"math"
	"testing"
	"time"
)

var stereo48k = Format{SampleRate: 48000, Channels: 2}

// sineChunk generates a stereo sine chunk with the given amplitude.
func sineChunk(f Format, freq, amp float64, frames int) *Chunk {
	c := Silence(f, frames, 0)
	for i := 0; i < frames; i++ {
		v := float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(f.SampleRate)))
		for ch := 0; ch < f.Channels; ch++ {
			c.Samples[i*f.Channels+ch] = v
		}
	}
	return c
}

func constChunk(f Format, v float32, frames int) *Chunk {
	c := Silence(f, frames, 0)
	for i := range c.Samples {
		c.Samples[i] = v
	}
	return c
}

func TestMixSilentPlusActive(t *testing.T) {
	active := sineChunk(stereo48k, 440, 0.8, 1024)
	silent := Silence(stereo48k, 1024, 0)

	out, err := Mix([]MixInput{
		{Chunk: silent, Gain: 1},
		{Chunk: active, Gain: 1},
	}, MixOptions{Format: stereo48k})
	if err != nil {
		t.Fatal(err)
	}
	for i, x := range active.Samples {
		want := float32(math.Tanh(float64(x) / 2))
		if d := math.Abs(float64(out.Samples[i] - want)); d > 1e-6 {
			t.Fatalf("sample %d = %v, want %v", i, out.Samples[i], want)
		}
	}
}

func TestMixMissingCountsAsSilence(t *testing.T) {
	active := constChunk(stereo48k, 0.5, 64)
	withMissing, err := Mix([]MixInput{{Chunk: nil, Gain: 1}, {Chunk: active, Gain: 1}}, MixOptions{Format: stereo48k})
	if err != nil {
		t.Fatal(err)
	}
	withSilence, err := Mix([]MixInput{{Chunk: Silence(stereo48k, 64, 0), Gain: 1}, {Chunk: active, Gain: 1}}, MixOptions{Format: stereo48k})
	if err != nil {
		t.Fatal(err)
	}
	for i := range withMissing.Samples {
		if withMissing.Samples[i] != withSilence.Samples[i] {
			t.Fatalf("sample %d: missing=%v silence=%v", i, withMissing.Samples[i], withSilence.Samples[i])
		}
	}
}

func TestMixBounded(t *testing.T) {
	loud := constChunk(stereo48k, 1, 256)
	negative := constChunk(stereo48k, -1, 256)
	for _, gains := range [][2]float32{{0, 0}, {1, 1}, {0.5, 1}, {1, 0}, {0.3, 0.7}} {
		for _, pair := range [][2]*Chunk{{loud, loud}, {negative, negative}, {loud, negative}} {
			out, err := Mix([]MixInput{
				{Chunk: pair[0], Gain: gains[0]},
				{Chunk: pair[1], Gain: gains[1]},
			}, MixOptions{Format: stereo48k})
			if err != nil {
				t.Fatal(err)
			}
			for i, s := range out.Samples {
				if s > 1 || s < -1 {
					t.Fatalf("gains %v: sample %d = %v out of [-1, 1]", gains, i, s)
				}
			}
		}
	}
}

func TestMixAlign(t *testing.T) {
	short := constChunk(stereo48k, 0.2, 100)
	long := constChunk(stereo48k, 0.2, 160)

	tests := []struct {
		align Align
		want  int
	}{
		{AlignShortest, 100},
		{AlignPad, 160},
	}
	for _, tt := range tests {
		t.Run(tt.align.String(), func(t *testing.T) {
			out, err := Mix([]MixInput{{Chunk: short, Gain: 1}, {Chunk: long, Gain: 1}}, MixOptions{Format: stereo48k, Align: tt.align})
			if err != nil {
				t.Fatal(err)
			}
			if out.Frames() != tt.want {
				t.Errorf("frames = %d, want %d", out.Frames(), tt.want)
			}
		})
	}

	out, _ := Mix([]MixInput{{Chunk: short, Gain: 1}, {Chunk: long, Gain: 1}}, MixOptions{Format: stereo48k, Align: AlignPad})
	// Padded region only carries the long input.
	got := out.Samples[150*2]
	want := float32(math.Tanh(0.2 / 2))
	if math.Abs(float64(got-want)) > 1e-6 {
		t.Errorf("padded sample = %v, want %v", got, want)
	}
}

func TestMixEmptyChunkIsMissing(t *testing.T) {
	active := constChunk(stereo48k, 0.5, 100)
	empty := Silence(stereo48k, 0, 0)

	for _, align := range []Align{AlignShortest, AlignPad} {
		out, err := Mix([]MixInput{{Chunk: empty, Gain: 1}, {Chunk: active, Gain: 1}}, MixOptions{Format: stereo48k, Align: align})
		if err != nil {
			t.Fatal(err)
		}
		if out.Frames() != 100 {
			t.Fatalf("align %v: frames = %d, want 100", align, out.Frames())
		}
		want := float32(math.Tanh(0.5 / 2))
		for i, s := range out.Samples {
			if math.Abs(float64(s-want)) > 1e-6 {
				t.Fatalf("align %v: sample %d = %v, want %v", align, i, s, want)
			}
		}
	}

	if _, err := Mix([]MixInput{{Chunk: active, Gain: 1}, {Chunk: empty, Gain: 1}}, MixOptions{Format: stereo48k, RequireAll: true}); !errors.Is(err, ErrIncomplete) {
		t.Errorf("require all with empty chunk: err = %v, want ErrIncomplete", err)
	}
	if _, err := Mix([]MixInput{{Chunk: empty, Gain: 1}}, MixOptions{Format: stereo48k}); !errors.Is(err, ErrNoInput) {
		t.Errorf("only empty: err = %v, want ErrNoInput", err)
	}
}

func TestMixErrors(t *testing.T) {
	c := Silence(stereo48k, 10, 0)

	if _, err := Mix([]MixInput{{}, {}}, MixOptions{Format: stereo48k}); !errors.Is(err, ErrNoInput) {
		t.Errorf("all missing: err = %v, want ErrNoInput", err)
	}
	if _, err := Mix([]MixInput{{Chunk: c, Gain: 1}, {}}, MixOptions{Format: stereo48k, RequireAll: true}); !errors.Is(err, ErrIncomplete) {
		t.Errorf("require all: err = %v, want ErrIncomplete", err)
	}
	mono := Silence(Format{SampleRate: 48000, Channels: 1}, 10, 0)
	if _, err := Mix([]MixInput{{Chunk: c, Gain: 1}, {Chunk: mono, Gain: 1}}, MixOptions{Format: stereo48k}); !errors.Is(err, ErrFormat) {
		t.Errorf("format mismatch: err = %v, want ErrFormat", err)
	}
}

func TestMixStart(t *testing.T) {
	c := Silence(stereo48k, 10, 3*time.Second)
	out, err := Mix([]MixInput{{}, {Chunk: c, Gain: 1}}, MixOptions{Format: stereo48k})
	if err != nil {
		t.Fatal(err)
	}
	if out.Start != 3*time.Second {
		t.Errorf("start = %v, want 3s", out.Start)
	}
}

func TestMixDoesNotMutateInputs(t *testing.T) {
	a := constChunk(stereo48k, 0.4, 32)
	b := constChunk(stereo48k, 0.1, 32)
	if _, err := Mix([]MixInput{{Chunk: a, Gain: 1}, {Chunk: b, Gain: 0.5}}, MixOptions{Format: stereo48k}); err != nil {
		t.Fatal(err)
	}
	for i := range a.Samples {
		if a.Samples[i] != 0.4 || b.Samples[i] != 0.1 {
			t.Fatalf("input mutated at %d", i)
		}
	}
}

func TestValidateGain(t *testing.T) {
	for _, g := range []float32{0, 0.5, 1} {
		if err := ValidateGain(g); err != nil {
			t.Errorf("gain %v: %v", g, err)
		}
	}
	for _, g := range []float32{-0.1, 1.01, float32(math.NaN())} {
		if err := ValidateGain(g); err == nil {
			t.Errorf("gain %v: expected error", g)
		}
	}
}

func TestParseAlign(t *testing.T) {
	for _, a := range []Align{AlignShortest, AlignPad} {
		got, err := ParseAlign(a.String())
		if err != nil || got != a {
			t.Errorf("ParseAlign(%q) = %v, %v", a.String(), got, err)
		}
	}
	if _, err := ParseAlign("longest"); err == nil {
		t.Error("expected error for unknown alignment")
	}
}
