package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfigFileName is the config file inside the app directory.
const ConfigFileName = "config.yaml"

// Paths locates an application's per-user files:
//
//	<UserConfigDir>/<app>/config.yaml
//	<UserConfigDir>/<app>/journal/
//	<UserConfigDir>/<app>/logs/
//
// The root can be moved with the <APP>_HOME environment variable.
type Paths struct {
	AppName string
	Dir     string
}

// NewPaths resolves the directory of app.
func NewPaths(app string) (*Paths, error) {
	if dir := os.Getenv(strings.ToUpper(app) + "_HOME"); dir != "" {
		return &Paths{AppName: app, Dir: dir}, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine config directory: %w", err)
	}
	return &Paths{AppName: app, Dir: filepath.Join(base, app)}, nil
}

func (p *Paths) ConfigFile() string { return filepath.Join(p.Dir, ConfigFileName) }
func (p *Paths) JournalDir() string { return filepath.Join(p.Dir, "journal") }
func (p *Paths) LogDir() string     { return filepath.Join(p.Dir, "logs") }

// LogPath returns a file name inside LogDir.
func (p *Paths) LogPath(name string) string {
	return filepath.Join(p.LogDir(), name)
}

// EnsureDir creates the app directory.
func (p *Paths) EnsureDir() error {
	return os.MkdirAll(p.Dir, 0o755)
}
