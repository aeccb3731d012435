// Package portaudio provides a PortAudio capture driver.
//
// This package uses CGO to interface with the PortAudio C library. Streams
// are opened in blocking mode with float32 samples.
//
// For go build: requires portaudio installed via pkg-config (brew install portaudio)
package portaudio

/*
#cgo pkg-config: portaudio-2.0

#include <portaudio.h>
#include <stdlib.h>
#include <string.h>

*/
import "C"

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/haivivi/mixrec/pkg/audio/capture"
)

var (
	initOnce sync.Once
	initErr  error
)

// paError converts a PortAudio error code to a Go error.
func paError(code C.PaError) error {
	if code == C.paNoError {
		return nil
	}
	return errors.New(C.GoString(C.Pa_GetErrorText(code)))
}

// Initialize initializes the PortAudio library.
// It is safe to call multiple times.
func Initialize() error {
	initOnce.Do(func() {
		initErr = paError(C.Pa_Initialize())
	})
	return initErr
}

// Terminate terminates the PortAudio library.
func Terminate() error {
	return paError(C.Pa_Terminate())
}

// DeviceInfo contains information about an audio device.
type DeviceInfo struct {
	Index                    int
	Name                     string
	MaxInputChannels         int
	MaxOutputChannels        int
	DefaultLowInputLatency   float64
	DefaultHighInputLatency  float64
	DefaultLowOutputLatency  float64
	DefaultHighOutputLatency float64
	DefaultSampleRate        float64
	IsDefaultInput           bool
	IsDefaultOutput          bool
}

// Devices returns a list of available audio devices.
func Devices() ([]DeviceInfo, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	count := int(C.Pa_GetDeviceCount())
	if count < 0 {
		return nil, paError(C.PaError(count))
	}

	defaultInput := int(C.Pa_GetDefaultInputDevice())
	defaultOutput := int(C.Pa_GetDefaultOutputDevice())

	devices := make([]DeviceInfo, count)
	for i := 0; i < count; i++ {
		info := C.Pa_GetDeviceInfo(C.PaDeviceIndex(i))
		if info == nil {
			continue
		}
		devices[i] = DeviceInfo{
			Index:                    i,
			Name:                     C.GoString(info.name),
			MaxInputChannels:         int(info.maxInputChannels),
			MaxOutputChannels:        int(info.maxOutputChannels),
			DefaultLowInputLatency:   float64(info.defaultLowInputLatency),
			DefaultHighInputLatency:  float64(info.defaultHighInputLatency),
			DefaultLowOutputLatency:  float64(info.defaultLowOutputLatency),
			DefaultHighOutputLatency: float64(info.defaultHighOutputLatency),
			DefaultSampleRate:        float64(info.defaultSampleRate),
			IsDefaultInput:           i == defaultInput,
			IsDefaultOutput:          i == defaultOutput,
		}
	}
	return devices, nil
}

// FindInput resolves a device by index or by case-insensitive name
// substring. An empty name selects the default input device.
func FindInput(name string) (*DeviceInfo, error) {
	devices, err := Devices()
	if err != nil {
		return nil, err
	}
	if name == "" {
		for i := range devices {
			if devices[i].IsDefaultInput {
				return &devices[i], nil
			}
		}
		return nil, capture.ErrDeviceNotFound
	}
	if idx, err := strconv.Atoi(name); err == nil {
		if idx >= 0 && idx < len(devices) && devices[idx].MaxInputChannels > 0 {
			return &devices[idx], nil
		}
		return nil, capture.ErrDeviceNotFound
	}
	needle := strings.ToLower(name)
	for i := range devices {
		d := &devices[i]
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), needle) {
			return d, nil
		}
	}
	return nil, capture.ErrDeviceNotFound
}
