package resampler

import (
	"math"
	"testing"
)

func TestPassthrough(t *testing.T) {
	r, err := New(16000, 16000)
	if err != nil {
		t.Fatal(err)
	}
	in := []float32{0.1, 0.2, 0.3}
	out, err := r.Process(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 || out[2] != 0.3 {
		t.Errorf("out = %v", out)
	}
	in[0] = 1
	if out[0] != 0.1 {
		t.Error("passthrough output aliases input")
	}
}

func TestDownsample(t *testing.T) {
	r, err := New(48000, 16000)
	if err != nil {
		t.Fatal(err)
	}
	in := make([]float32, 48000)
	for i := range in {
		in[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/48000))
	}
	out, err := r.Process(in)
	if err != nil {
		t.Fatal(err)
	}
	// Allow for filter delay held back by the resampler.
	if len(out) == 0 || len(out) > 16000+64 {
		t.Errorf("len(out) = %d, want about 16000", len(out))
	}
	for i, s := range out {
		if s > 1 || s < -1 {
			t.Fatalf("sample %d = %v", i, s)
		}
	}
	t.Logf("48000 -> %d samples", len(out))
}

func TestInvalidRates(t *testing.T) {
	if _, err := New(0, 16000); err == nil {
		t.Error("expected error")
	}
}
