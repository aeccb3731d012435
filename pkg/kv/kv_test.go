package kv_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/haivivi/mixrec/pkg/kv"
)

var backends = []struct {
	name string
	open func(t *testing.T, opts *kv.Options) kv.Store
}{
	{"memory", func(t *testing.T, opts *kv.Options) kv.Store {
		return kv.NewMemory(opts)
	}},
	{"badger", func(t *testing.T, opts *kv.Options) kv.Store {
		s, err := kv.NewBadger(kv.BadgerOptions{
			Options: opts,
			Dir:     t.TempDir(),
			Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		if err != nil {
			t.Fatalf("NewBadger: %v", err)
		}
		return s
	}},
}

func eachBackend(t *testing.T, opts *kv.Options, fn func(t *testing.T, s kv.Store)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, opts)
			t.Cleanup(func() { s.Close() })
			fn(t, s)
		})
	}
}

func keys(t *testing.T, s kv.Store, prefix kv.Key, opts kv.ListOptions) []string {
	t.Helper()
	var out []string
	for e, err := range s.List(context.Background(), prefix, opts) {
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		out = append(out, e.Key.String()+"="+string(e.Value))
	}
	return out
}

func TestGetSetDelete(t *testing.T) {
	eachBackend(t, nil, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		key := kv.Key{"session", "a", "report"}

		if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("Get missing = %v, want ErrNotFound", err)
		}
		if err := s.Set(ctx, key, []byte("v1")); err != nil {
			t.Fatal(err)
		}
		if err := s.Set(ctx, key, []byte("v2")); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, key)
		if err != nil || string(got) != "v2" {
			t.Fatalf("Get = %q, %v", got, err)
		}
		got[0] = 'x'
		if again, _ := s.Get(ctx, key); string(again) != "v2" {
			t.Fatalf("stored value aliased by Get result: %q", again)
		}
		if err := s.Delete(ctx, key); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("Get after delete = %v", err)
		}
		if err := s.Delete(ctx, kv.Key{"no", "such"}); err != nil {
			t.Fatalf("Delete missing: %v", err)
		}
	})
}

func TestList(t *testing.T) {
	eachBackend(t, nil, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		err := s.BatchSet(ctx, []kv.Entry{
			{Key: kv.Key{"s", "2"}, Value: []byte("b")},
			{Key: kv.Key{"s", "1"}, Value: []byte("a")},
			{Key: kv.Key{"s", "3"}, Value: []byte("c")},
			{Key: kv.Key{"sx", "1"}, Value: []byte("boundary")},
			{Key: kv.Key{"t", "1"}, Value: []byte("other")},
		})
		if err != nil {
			t.Fatal(err)
		}

		tests := []struct {
			name   string
			prefix kv.Key
			opts   kv.ListOptions
			want   []string
		}{
			{"forward", kv.Key{"s"}, kv.ListOptions{}, []string{"s:1=a", "s:2=b", "s:3=c"}},
			{"reverse", kv.Key{"s"}, kv.ListOptions{Reverse: true}, []string{"s:3=c", "s:2=b", "s:1=a"}},
			{"limit", kv.Key{"s"}, kv.ListOptions{Limit: 2}, []string{"s:1=a", "s:2=b"}},
			{"reverse limit", kv.Key{"s"}, kv.ListOptions{Reverse: true, Limit: 1}, []string{"s:3=c"}},
			{"all", nil, kv.ListOptions{}, []string{"s:1=a", "s:2=b", "s:3=c", "sx:1=boundary", "t:1=other"}},
			{"all reverse", nil, kv.ListOptions{Reverse: true, Limit: 2}, []string{"t:1=other", "sx:1=boundary"}},
			{"empty", kv.Key{"none"}, kv.ListOptions{}, nil},
		}
		for _, tt := range tests {
			if got := keys(t, s, tt.prefix, tt.opts); !slices.Equal(got, tt.want) {
				t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
			}
		}

		if err := s.BatchDelete(ctx, []kv.Key{{"s", "1"}, {"s", "3"}}); err != nil {
			t.Fatal(err)
		}
		if got := keys(t, s, kv.Key{"s"}, kv.ListOptions{}); !slices.Equal(got, []string{"s:2=b"}) {
			t.Errorf("after BatchDelete: %v", got)
		}
	})
}

func TestListEarlyBreak(t *testing.T) {
	eachBackend(t, nil, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		for _, k := range []string{"a", "b", "c"} {
			s.Set(ctx, kv.Key{"p", k}, []byte(k))
		}
		n := 0
		for _, err := range s.List(ctx, kv.Key{"p"}, kv.ListOptions{}) {
			if err != nil {
				t.Fatal(err)
			}
			n++
			break
		}
		if n != 1 {
			t.Errorf("iterated %d entries after break", n)
		}
	})
}

func TestCustomSeparator(t *testing.T) {
	eachBackend(t, &kv.Options{Separator: '/'}, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		s.Set(ctx, kv.Key{"a", "b:c"}, []byte("1"))
		got := keys(t, s, kv.Key{"a"}, kv.ListOptions{})
		if !slices.Equal(got, []string{"a:b:c=1"}) {
			t.Errorf("got %v", got)
		}
	})
}

func TestBadgerInMemory(t *testing.T) {
	s, err := kv.NewBadger(kv.BadgerOptions{InMemory: true, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Set(context.Background(), kv.Key{"k"}, []byte("v")); err != nil {
		t.Fatal(err)
	}
}

func TestBadgerDirRequired(t *testing.T) {
	if _, err := kv.NewBadger(kv.BadgerOptions{}); err == nil {
		t.Fatal("expected error without Dir")
	}
}
