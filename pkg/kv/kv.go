// Package kv is a small key-value store with hierarchical keys, used to
// keep the session journal.
//
// Keys are string paths such as Key{"session", "20261016T101500Z", "report"}
// joined with a separator byte. Iteration is lexicographic by encoded key,
// so keys built from fixed-width timestamps list in time order.
//
// Badger is the on-disk implementation; Memory serves tests and dry runs.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Key is a hierarchical path. Segments must not contain the separator.
type Key []string

// String joins the key with ':' for display.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Entry is a key-value pair.
type Entry struct {
	Key   Key
	Value []byte
}

// ListOptions controls List.
type ListOptions struct {
	// Reverse iterates from the largest key down.
	Reverse bool
	// Limit stops after this many entries. Zero means no limit.
	Limit int
}

// Store is a key-value store with path keys.
// Implementations are safe for concurrent use.
type Store interface {
	// Get returns ErrNotFound if key is not present.
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key Key) error

	// List iterates over the entries strictly below prefix. An empty prefix
	// lists everything.
	List(ctx context.Context, prefix Key, opts ListOptions) iter.Seq2[Entry, error]

	// BatchSet and BatchDelete apply all changes atomically.
	BatchSet(ctx context.Context, entries []Entry) error
	BatchDelete(ctx context.Context, keys []Key) error

	Close() error
}

// DefaultSeparator joins key segments.
const DefaultSeparator byte = ':'

// Options configures key encoding.
type Options struct {
	Separator byte
}

func (o *Options) sep() byte {
	if o != nil && o.Separator != 0 {
		return o.Separator
	}
	return DefaultSeparator
}

func (o *Options) encode(k Key) []byte {
	return []byte(strings.Join(k, string(o.sep())))
}

func (o *Options) decode(b []byte) Key {
	return strings.Split(string(b), string(o.sep()))
}

// prefixBytes returns the encoded prefix followed by a separator, so that
// "a:b" does not match "a:bc". An empty prefix matches everything.
func (o *Options) prefixBytes(prefix Key) []byte {
	if len(prefix) == 0 {
		return nil
	}
	return append(o.encode(prefix), o.sep())
}
