// Package pcm provides types and utilities for working with interleaved
// float32 PCM audio.
//
// Key types:
//   - Format: sample rate and channel count
//   - Chunk: a block of frame-major samples stamped with a start offset
//   - Writer: interface for consumers of chunks
//
// Mix combines several chunks into one, weighting each by its gain,
// averaging and soft clipping with tanh. It is a pure function: it keeps no
// state between calls.
//
// Example usage:
//
//	f := pcm.Format{SampleRate: 48000, Channels: 2}
//	out, err := pcm.Mix([]pcm.MixInput{
//		{Chunk: mic, Gain: 1},
//		{Chunk: monitor, Gain: 0.8},
//	}, pcm.MixOptions{Format: f, Align: pcm.AlignShortest})
package pcm
