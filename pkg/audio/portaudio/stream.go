package portaudio

/*
#include <portaudio.h>
#include <stdlib.h>
#include <string.h>

static PaError pa_open_input(void **stream, int device, int channels,
                             double sampleRate, unsigned long frames) {
    const PaDeviceInfo *info = Pa_GetDeviceInfo(device);
    if (info == NULL) {
        return paInvalidDevice;
    }
    PaStreamParameters in;
    in.device = device;
    in.channelCount = channels;
    in.sampleFormat = paFloat32;
    in.suggestedLatency = info->defaultLowInputLatency;
    in.hostApiSpecificStreamInfo = NULL;
    return Pa_OpenStream((PaStream**)stream, &in, NULL, sampleRate, frames, paClipOff, NULL, NULL);
}

// Wrapper functions using void* to avoid CGO type issues with PaStream
static PaError pa_start_stream(void *stream) {
    return Pa_StartStream((PaStream*)stream);
}

static PaError pa_stop_stream(void *stream) {
    return Pa_StopStream((PaStream*)stream);
}

static PaError pa_close_stream(void *stream) {
    return Pa_CloseStream((PaStream*)stream);
}

static PaError pa_read_stream(void *stream, void *buffer, unsigned long frames) {
    return Pa_ReadStream((PaStream*)stream, buffer, frames);
}
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/haivivi/mixrec/pkg/audio/capture"
	"github.com/haivivi/mixrec/pkg/audio/pcm"
)

var errStreamClosed = errors.New("portaudio: stream closed")

// Driver opens PortAudio input streams. It implements capture.Driver.
type Driver struct{}

var _ capture.Driver = Driver{}

// Open opens a blocking float32 input stream on the named device.
func (Driver) Open(_ context.Context, device string, f pcm.Format, frames int) (capture.Stream, error) {
	info, err := FindInput(device)
	if err != nil {
		return nil, fmt.Errorf("portaudio: %q: %w", device, err)
	}
	if info.MaxInputChannels < f.Channels {
		return nil, fmt.Errorf("portaudio: %s has %d input channels, need %d",
			info.Name, info.MaxInputChannels, f.Channels)
	}
	return openInput(info.Index, f, frames)
}

// InputStream is an open blocking capture stream.
type InputStream struct {
	mu     sync.Mutex
	stream unsafe.Pointer
	buffer unsafe.Pointer
	frames int
	format pcm.Format
	closed bool
}

func openInput(device int, f pcm.Format, frames int) (*InputStream, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	var paStream unsafe.Pointer
	err := paError(C.pa_open_input(&paStream, C.int(device), C.int(f.Channels),
		C.double(f.SampleRate), C.ulong(frames)))
	if err != nil {
		return nil, err
	}
	if err := paError(C.pa_start_stream(paStream)); err != nil {
		C.pa_close_stream(paStream)
		return nil, err
	}
	size := frames * f.Channels * 4 // float32 = 4 bytes
	return &InputStream{
		stream: paStream,
		buffer: C.malloc(C.size_t(size)),
		frames: frames,
		format: f,
	}, nil
}

// Read fills buf with one block of interleaved samples. len(buf) must be at
// least frames*channels.
func (s *InputStream) Read(buf []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	n := s.frames * s.format.Channels
	if len(buf) < n {
		return fmt.Errorf("portaudio: read buffer too small: %d < %d", len(buf), n)
	}
	// Input overflow is reported but the data is still valid.
	code := C.pa_read_stream(s.stream, s.buffer, C.ulong(s.frames))
	if code != C.paNoError && code != C.paInputOverflowed {
		return paError(code)
	}
	C.memcpy(unsafe.Pointer(&buf[0]), s.buffer, C.size_t(n*4))
	return nil
}

// Close stops and closes the stream.
func (s *InputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	C.pa_stop_stream(s.stream)
	err := paError(C.pa_close_stream(s.stream))
	C.free(s.buffer)
	return err
}
