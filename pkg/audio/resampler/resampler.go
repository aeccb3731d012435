package resampler

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler converts mono float32 audio between sample rates.
// It is not safe for concurrent use.
type Resampler struct {
	src, dst  int
	resampler resampling.Resampler
	in        []float64
}

// New creates a Resampler from srcRate to dstRate. When the rates are equal
// Process copies its input unchanged.
func New(srcRate, dstRate int) (*Resampler, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid rates %d -> %d", srcRate, dstRate)
	}
	r := &Resampler{src: srcRate, dst: dstRate}
	if srcRate != dstRate {
		config := &resampling.Config{
			InputRate:  float64(srcRate),
			OutputRate: float64(dstRate),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		}
		var err error
		r.resampler, err = resampling.New(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create resampler: %w", err)
		}
	}
	return r, nil
}

// SourceRate returns the input sample rate.
func (r *Resampler) SourceRate() int { return r.src }

// TargetRate returns the output sample rate.
func (r *Resampler) TargetRate() int { return r.dst }

// Process resamples samples.
func (r *Resampler) Process(samples []float32) ([]float32, error) {
	if r.resampler == nil {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out, nil
	}
	if cap(r.in) < len(samples) {
		r.in = make([]float64, len(samples))
	}
	in := r.in[:len(samples)]
	for i, s := range samples {
		in[i] = float64(s)
	}
	output, err := r.resampler.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	out := make([]float32, len(output))
	for i, s := range output {
		out[i] = float32(s)
	}
	return out, nil
}
