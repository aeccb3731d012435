// Package resampler provides sample rate conversion for mono float32 audio
// using a pure Go resampler (no CGO/FFI dependencies).
//
// Example usage:
//
//	r, err := resampler.New(48000, 16000)
//	if err != nil {
//	    return err
//	}
//	out, err := r.Process(samples)
package resampler
