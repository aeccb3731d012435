// Package main is the entry point for the mixrec CLI.
//
// Usage:
//
//	mixrec [flags] <command> [subcommand] [args]
//
// Commands:
//
//	record    - Record the configured sources into one mixed WAV file
//	devices   - List audio input devices
//	sessions  - Inspect past recording sessions (list, show, delete)
//	config    - Inspect or create the configuration file
//	version   - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/mixrec/cmd/mixrec/commands"
	"github.com/haivivi/mixrec/pkg/audio/portaudio"
)

// portAudio adds device listing to the PortAudio capture driver.
type portAudio struct {
	portaudio.Driver
}

func (portAudio) Devices() ([]commands.Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	var out []commands.Device
	for _, d := range infos {
		if d.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, commands.Device{
			Index:      d.Index,
			Name:       d.Name,
			Inputs:     d.MaxInputChannels,
			SampleRate: d.DefaultSampleRate,
			Default:    d.IsDefaultInput,
		})
	}
	return out, nil
}

func main() {
	commands.SetAudio(portAudio{})
	err := commands.Execute()
	portaudio.Terminate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
