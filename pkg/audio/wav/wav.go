// Package wav writes RIFF/WAVE files.
//
// Writer is the session sink: it streams 32-bit IEEE float frames to an
// io.WriteSeeker and patches the header sizes on Close. Encode produces a
// complete 16-bit PCM file in one call, for handing short buffers to
// recognition services.
package wav

import (
	"encoding/binary"
	"io"

	"github.com/haivivi/mixrec/pkg/audio/pcm"
)

const (
	headerSize = 44

	formatPCM   = 1
	formatFloat = 3
)

type header struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

func newHeader(audioFormat, bits int, f pcm.Format, dataBytes uint32) header {
	blockAlign := f.Channels * bits / 8
	return header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     headerSize - 8 + dataBytes,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   uint16(audioFormat),
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.SampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: uint16(bits),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataBytes,
	}
}

// Encode writes samples as a complete 16-bit PCM WAV file.
func Encode(w io.Writer, f pcm.Format, samples []float32) error {
	if int64(len(samples))*2 > maxDataBytes {
		return &Error{Op: "encode", Err: ErrTooLarge}
	}
	h := newHeader(formatPCM, 16, f, uint32(len(samples)*2))
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return err
	}
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(pcm.Int16(s)))
	}
	_, err := w.Write(buf)
	return err
}
