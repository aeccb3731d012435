// Package journal keeps a history of recording sessions: the final report
// and the speaker timeline of every session, encoded with msgpack in a kv
// store.
//
// Entries are keyed by start time so that listing is chronological:
//
//	session:<start>:<id>  -> Entry
//	id:<id>               -> <start>
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/mixrec/pkg/diarize"
	"github.com/haivivi/mixrec/pkg/kv"
	"github.com/haivivi/mixrec/pkg/recorder"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("journal: session not found")

const stampLayout = "20060102T150405.000000000Z"

// Entry is one journaled session.
type Entry struct {
	Report   recorder.Report `json:"report" yaml:"report" msgpack:"report"`
	Timeline []diarize.Span  `json:"timeline,omitempty" yaml:"timeline,omitempty" msgpack:"timeline,omitempty"`
	// Artifacts names the files the session produced, such as the
	// recording and the transcript.
	Artifacts map[string]string `json:"artifacts,omitempty" yaml:"artifacts,omitempty" msgpack:"artifacts,omitempty"`
}

// Option configures a Journal.
type Option func(*Journal)

// WithRetention keeps only the newest n sessions. Zero keeps everything.
func WithRetention(n int) Option {
	return func(j *Journal) { j.retention = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// WithArtifacts attaches artifact paths to every recorded entry.
func WithArtifacts(a map[string]string) Option {
	return func(j *Journal) { j.artifacts = a }
}

// Journal stores session entries in a kv.Store.
type Journal struct {
	store     kv.Store
	retention int
	artifacts map[string]string
	logger    *slog.Logger
}

var _ recorder.Journal = (*Journal)(nil)

// New returns a Journal on store. Closing the journal closes the store.
func New(store kv.Store, opts ...Option) *Journal {
	j := &Journal{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Open opens a Badger-backed journal in dir.
func Open(dir string, opts ...Option) (*Journal, error) {
	j := New(nil, opts...)
	store, err := kv.NewBadger(kv.BadgerOptions{Dir: dir, Logger: j.logger})
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	j.store = store
	return j, nil
}

func sessionKey(stamp, id string) kv.Key { return kv.Key{"session", stamp, id} }
func idKey(id string) kv.Key             { return kv.Key{"id", id} }

// Record stores the final report of a session and its speaker timeline.
func (j *Journal) Record(ctx context.Context, r *recorder.Report, timeline []diarize.Span) error {
	if r.ID == "" || strings.ContainsRune(r.ID, ':') {
		return fmt.Errorf("journal: invalid session id %q", r.ID)
	}
	started := r.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	stamp := started.UTC().Format(stampLayout)

	b, err := msgpack.Marshal(&Entry{Report: *r, Timeline: timeline, Artifacts: j.artifacts})
	if err != nil {
		return fmt.Errorf("journal: encode %s: %w", r.ID, err)
	}
	err = j.store.BatchSet(ctx, []kv.Entry{
		{Key: sessionKey(stamp, r.ID), Value: b},
		{Key: idKey(r.ID), Value: []byte(stamp)},
	})
	if err != nil {
		return fmt.Errorf("journal: write %s: %w", r.ID, err)
	}
	j.logger.Debug("journal: session recorded", "session", r.ID, "spans", len(timeline))

	if j.retention > 0 {
		if err := j.prune(ctx); err != nil {
			j.logger.Warn("journal: prune failed", "error", err)
		}
	}
	return nil
}

// List returns up to limit entries, newest first, without their timelines.
// A limit of zero lists everything.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	var out []Entry
	for e, err := range j.store.List(ctx, kv.Key{"session"}, kv.ListOptions{Reverse: true, Limit: limit}) {
		if err != nil {
			return nil, fmt.Errorf("journal: list: %w", err)
		}
		var ent Entry
		if err := msgpack.Unmarshal(e.Value, &ent); err != nil {
			return nil, fmt.Errorf("journal: decode %v: %w", e.Key, err)
		}
		ent.Timeline = nil
		out = append(out, ent)
	}
	return out, nil
}

// Get returns the entry of session id.
func (j *Journal) Get(ctx context.Context, id string) (*Entry, error) {
	stamp, err := j.store.Get(ctx, idKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	b, err := j.store.Get(ctx, sessionKey(string(stamp), id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	var ent Entry
	if err := msgpack.Unmarshal(b, &ent); err != nil {
		return nil, fmt.Errorf("journal: decode %s: %w", id, err)
	}
	return &ent, nil
}

// Delete removes session id. Unknown IDs are ignored.
func (j *Journal) Delete(ctx context.Context, id string) error {
	stamp, err := j.store.Get(ctx, idKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return j.store.BatchDelete(ctx, []kv.Key{sessionKey(string(stamp), id), idKey(id)})
}

func (j *Journal) prune(ctx context.Context) error {
	var stale []kv.Key
	n := 0
	for e, err := range j.store.List(ctx, kv.Key{"session"}, kv.ListOptions{Reverse: true}) {
		if err != nil {
			return err
		}
		if n++; n <= j.retention {
			continue
		}
		// e.Key is session:<stamp>:<id>.
		stale = append(stale, e.Key, idKey(e.Key[len(e.Key)-1]))
	}
	if len(stale) == 0 {
		return nil
	}
	j.logger.Debug("journal: pruning sessions", "count", len(stale)/2)
	return j.store.BatchDelete(ctx, stale)
}

// Close closes the underlying store.
func (j *Journal) Close() error {
	return j.store.Close()
}
