package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Badger is a Store backed by BadgerDB v4.
type Badger struct {
	db   *badger.DB
	opts *Options
}

var _ Store = (*Badger)(nil)

// BadgerOptions configures a Badger store.
type BadgerOptions struct {
	Options *Options

	// Dir holds the data files. Required unless InMemory is set.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// Logger receives badger's warnings and errors. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// NewBadger opens a BadgerDB-backed Store.
func NewBadger(bopts BadgerOptions) (*Badger, error) {
	if !bopts.InMemory && bopts.Dir == "" {
		return nil, errors.New("kv: BadgerOptions.Dir is required for on-disk mode")
	}
	logger := bopts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts := badger.DefaultOptions(bopts.Dir).
		WithLogger(slogLogger{logger.With("component", "badger")})
	if bopts.InMemory {
		dbOpts = dbOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("kv: open badger %s: %w", bopts.Dir, err)
	}
	return &Badger{db: db, opts: bopts.Options}, nil
}

func (b *Badger) Get(_ context.Context, key Key) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.opts.encode(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (b *Badger) Set(_ context.Context, key Key, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.opts.encode(key), value)
	})
}

func (b *Badger) Delete(_ context.Context, key Key) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.opts.encode(key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *Badger) List(ctx context.Context, prefix Key, opts ListOptions) iter.Seq2[Entry, error] {
	p := b.opts.prefixBytes(prefix)
	return func(yield func(Entry, error) bool) {
		err := b.db.View(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.Prefix = p
			iterOpts.Reverse = opts.Reverse
			it := txn.NewIterator(iterOpts)
			defer it.Close()

			// In reverse mode Seek finds the largest key <= the seek key.
			seek := p
			if opts.Reverse && len(p) > 0 {
				seek = append(append([]byte{}, p...), 0xff)
			}
			n := 0
			for it.Seek(seek); it.ValidForPrefix(p); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				item := it.Item()
				val, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				if !yield(Entry{Key: b.opts.decode(item.KeyCopy(nil)), Value: val}, nil) {
					return nil
				}
				if n++; opts.Limit > 0 && n >= opts.Limit {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield(Entry{}, err)
		}
	}
}

func (b *Badger) BatchSet(_ context.Context, entries []Entry) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, e := range entries {
		if err := wb.Set(b.opts.encode(e.Key), e.Value); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (b *Badger) BatchDelete(_ context.Context, keys []Key) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(b.opts.encode(key)); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// slogLogger routes badger's log output to slog. Info and debug messages
// are demoted to debug.
type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Errorf(f string, v ...any)   { s.l.Error(msg(f, v)) }
func (s slogLogger) Warningf(f string, v ...any) { s.l.Warn(msg(f, v)) }
func (s slogLogger) Infof(f string, v ...any)    { s.l.Debug(msg(f, v)) }
func (s slogLogger) Debugf(f string, v ...any)   { s.l.Debug(msg(f, v)) }

func msg(f string, v []any) string {
	return strings.TrimSpace(fmt.Sprintf(f, v...))
}
