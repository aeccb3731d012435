package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// Local stores files under a directory on disk.
type Local struct {
	root string
}

var _ FileStore = (*Local)(nil)

// NewLocal returns a Local rooted at dir, creating dir if needed.
func NewLocal(dir string) (*Local, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: root}, nil
}

// Path maps a slash-separated store path to a file under the root.
func (l *Local) Path(p string) string {
	return filepath.Join(l.root, filepath.FromSlash(p))
}

// Create truncates or creates the file at p. The WAV sink needs the
// *os.File for seeking back to the header.
func (l *Local) Create(p string) (*os.File, error) {
	full := l.Path(p)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	return os.Create(full)
}

func (l *Local) Write(_ context.Context, p string) (io.WriteCloser, error) {
	f, err := l.Create(p)
	if err != nil {
		return nil, err
	}
	return f, nil
}
