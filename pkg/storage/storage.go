// Package storage defines FileStore, the destination of the files a
// recording session produces: the transcript while recording, and the
// recording, transcript and report when a session is archived.
//
// Local writes to a directory; S3Store writes to Amazon S3 or any
// S3-compatible object store.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"strings"
)

// FileStore is a destination for files written in one pass.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Write opens the named file for writing, replacing any previous
	// content. Parent directories are created as needed. The data is only
	// guaranteed to be stored once Close returns nil.
	Write(ctx context.Context, path string) (io.WriteCloser, error)
}

// Uploader is implemented by stores that can upload a seekable body in one
// request instead of streaming it through Write.
type Uploader interface {
	Upload(ctx context.Context, path string, body io.ReadSeeker, size int64) error
}

// ContentType guesses the MIME type of path from its extension.
func ContentType(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".wav":
		return "audio/wav"
	case ".txt":
		return "text/plain; charset=utf-8"
	}
	if t := mime.TypeByExtension(path.Ext(p)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Archive copies local files into dst. files maps local file names to
// destination paths. It stops at the first failure.
func Archive(ctx context.Context, dst FileStore, files map[string]string) error {
	for src, to := range files {
		if err := archiveFile(ctx, dst, src, to); err != nil {
			return fmt.Errorf("storage: archive %s: %w", src, err)
		}
	}
	return nil
}

func archiveFile(ctx context.Context, dst FileStore, src, to string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	if up, ok := dst.(Uploader); ok {
		st, err := f.Stat()
		if err != nil {
			return err
		}
		return up.Upload(ctx, to, f, st.Size())
	}

	w, err := dst.Write(ctx, to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
