package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/mixrec/pkg/audio/capture"
)

// Device is an audio input device.
type Device struct {
	Index      int     `json:"index" yaml:"index"`
	Name       string  `json:"name" yaml:"name"`
	Inputs     int     `json:"inputs" yaml:"inputs"`
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
	Default    bool    `json:"default" yaml:"default"`
}

// Audio is the capture backend of the binary.
type Audio interface {
	capture.Driver
	// Devices lists input devices.
	Devices() ([]Device, error)
}

var audio Audio

// SetAudio installs the capture backend. Commands that touch devices fail
// without one; `record --simulate` does not need it.
func SetAudio(a Audio) {
	audio = a
}

var errNoAudio = errors.New("no audio backend available in this build")

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices",
	Long: `List the audio input devices usable as sources.

The index or any part of the name can be used as a source device in the
config file or with --mic-device / --monitor-device. System audio is
recorded from a loopback device such as BlackHole (macOS) or a PulseAudio
monitor source (Linux).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if audio == nil {
			return errNoAudio
		}
		devices, err := audio.Devices()
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}
		if structured() {
			return output(cmd, devices)
		}
		if len(devices) == 0 {
			printf(cmd, "No input devices found.\n")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "INDEX\tNAME\tCHANNELS\tRATE\t")
		for _, d := range devices {
			name := d.Name
			if d.Default {
				name += " (default)"
			}
			fmt.Fprintf(tw, "%d\t%s\t%d\t%.0f\t\n", d.Index, name, d.Inputs, d.SampleRate)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
