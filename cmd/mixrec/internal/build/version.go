// Package build holds version information injected with -ldflags:
//
//	go build -ldflags "-X github.com/haivivi/mixrec/cmd/mixrec/internal/build.Version=v0.3.0 \
//	  -X github.com/haivivi/mixrec/cmd/mixrec/internal/build.Commit=$(git rev-parse --short HEAD)"
package build

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is the structured form of the version, for --format output.
type Info struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
	Go      string `json:"go" yaml:"go"`
	Arch    string `json:"arch" yaml:"arch"`
}

// Get returns the build information.
func Get() Info {
	return Info{
		Version: Version,
		Commit:  Commit,
		Date:    Date,
		Go:      runtime.Version(),
		Arch:    runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns a one-line version string.
func String() string {
	return fmt.Sprintf("mixrec %s (%s) built %s %s/%s",
		Version, Commit, Date, runtime.GOOS, runtime.GOARCH)
}
