package buffer

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestQueue(t *testing.T) {
	t.Run("fifo", func(t *testing.T) {
		q := NewQueue[int](3)
		for i := 1; i <= 3; i++ {
			if err := q.TryPush(i); err != nil {
				t.Fatalf("push %d: %v", i, err)
			}
		}
		for want := 1; want <= 3; want++ {
			v, err := q.Pop()
			if err != nil {
				t.Fatalf("pop: %v", err)
			}
			if v != want {
				t.Errorf("pop = %d, want %d", v, want)
			}
		}
	})

	t.Run("drop newest when full", func(t *testing.T) {
		q := NewQueue[int](2)
		q.TryPush(1)
		q.TryPush(2)
		if err := q.TryPush(3); !errors.Is(err, ErrFull) {
			t.Fatalf("push to full queue: err = %v, want ErrFull", err)
		}
		got := q.Drain()
		if len(got) != 2 || got[0] != 1 || got[1] != 2 {
			t.Errorf("drain = %v, want [1 2]", got)
		}
	})

	t.Run("wraps around", func(t *testing.T) {
		q := NewQueue[int](2)
		for i := 0; i < 10; i++ {
			if err := q.TryPush(i); err != nil {
				t.Fatalf("push %d: %v", i, err)
			}
			v, ok := q.TryPop()
			if !ok || v != i {
				t.Fatalf("try pop = %d,%v want %d,true", v, ok, i)
			}
		}
		if _, ok := q.TryPop(); ok {
			t.Error("try pop on empty queue returned ok")
		}
	})

	t.Run("close write drains", func(t *testing.T) {
		q := NewQueue[string](4)
		q.TryPush("a")
		q.TryPush("b")
		q.CloseWrite()
		if err := q.TryPush("c"); !errors.Is(err, io.ErrClosedPipe) {
			t.Errorf("push after close write: err = %v", err)
		}
		for _, want := range []string{"a", "b"} {
			v, err := q.Pop()
			if err != nil || v != want {
				t.Fatalf("pop = %q,%v want %q", v, err, want)
			}
		}
		if _, err := q.Pop(); err != io.EOF {
			t.Errorf("pop after drain: err = %v, want io.EOF", err)
		}
	})

	t.Run("pop unblocks on close write", func(t *testing.T) {
		q := NewQueue[int](1)
		done := make(chan error, 1)
		go func() {
			_, err := q.Pop()
			done <- err
		}()
		time.Sleep(10 * time.Millisecond)
		q.CloseWrite()
		select {
		case err := <-done:
			if err != io.EOF {
				t.Errorf("pop err = %v, want io.EOF", err)
			}
		case <-time.After(time.Second):
			t.Fatal("pop did not unblock")
		}
	})

	t.Run("close discards", func(t *testing.T) {
		q := NewQueue[int](2)
		q.TryPush(1)
		q.Close()
		if _, err := q.Pop(); !errors.Is(err, io.ErrClosedPipe) {
			t.Errorf("pop after close: err = %v", err)
		}
	})
}

func TestQueuePushBlocks(t *testing.T) {
	q := NewQueue[int](1)
	q.TryPush(1)

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(context.Background(), 2)
	}()

	select {
	case err := <-pushed:
		t.Fatalf("push returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	if v, _ := q.Pop(); v != 1 {
		t.Fatalf("pop = %d, want 1", v)
	}
	if err := <-pushed; err != nil {
		t.Fatalf("push: %v", err)
	}
	if v, _ := q.Pop(); v != 2 {
		t.Fatalf("pop = %d, want 2", v)
	}
}

func TestQueuePushContext(t *testing.T) {
	q := NewQueue[int](1)
	q.TryPush(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Push(ctx, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("push err = %v, want deadline exceeded", err)
	}
	if q.Len() != 1 {
		t.Errorf("len = %d, want 1", q.Len())
	}
}

func TestQueueTryPushConstantTime(t *testing.T) {
	q := NewQueue[int](8)
	for i := 0; i < 8; i++ {
		q.TryPush(i)
	}
	start := time.Now()
	for i := 0; i < 10000; i++ {
		if err := q.TryPush(i); !errors.Is(err, ErrFull) {
			t.Fatalf("push %d: err = %v", i, err)
		}
	}
	if d := time.Since(start); d > time.Second {
		t.Errorf("10000 rejected pushes took %v", d)
	}
}
