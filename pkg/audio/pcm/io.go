package pcm

import "io"

// Writer consumes chunks in order.
type Writer interface {
	Write(*Chunk) error
}

// WriteCloser is a Writer that must be closed to flush what it buffered.
type WriteCloser interface {
	Writer
	io.Closer
}

// Discard is a WriteCloser that drops every chunk.
var Discard WriteCloser = discard{}

type discard struct{}

func (discard) Write(*Chunk) error { return nil }

func (discard) Close() error { return nil }
