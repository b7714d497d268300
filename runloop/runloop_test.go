package runloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueue_Post_And_Close(t *testing.T) {
	q := New(8)
	q.Start()
	defer q.Close()

	var count int64
	for i := 0; i < 10; i++ {
		if err := q.Post(func(ctx context.Context) {
			atomic.AddInt64(&count, 1)
		}); err != nil {
			t.Fatalf("post: %v", err)
		}
	}

	// RunSync is ordered after everything posted before it.
	if err := q.RunSync(func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if c := atomic.LoadInt64(&count); c != 10 {
		t.Fatalf("want 10 tasks applied, got %d", c)
	}
}

func TestQueue_RunSync_ReturnsError(t *testing.T) {
	q := New(0)
	q.Start()
	defer q.Close()

	want := errors.New("boom")
	if err := q.RunSync(func(ctx context.Context) error { return want }); err != want {
		t.Fatalf("RunSync err = %v, want %v", err, want)
	}
}

func TestQueue_OnLoop(t *testing.T) {
	q := New(0)
	q.Start()
	defer q.Close()

	if q.OnLoop() {
		t.Fatal("test goroutine reported as loop thread")
	}
	var inside bool
	if err := q.RunSync(func(ctx context.Context) error {
		inside = q.OnLoop()
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if !inside {
		t.Fatal("task did not observe itself on the loop")
	}
}

func TestQueue_RunSync_RefusesOnLoop(t *testing.T) {
	q := New(0)
	q.Start()
	defer q.Close()

	var nested error
	if err := q.RunSync(func(ctx context.Context) error {
		nested = q.RunSync(func(context.Context) error { return nil })
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(nested, ErrReentrant) {
		t.Fatalf("nested RunSync err = %v, want ErrReentrant", nested)
	}
}

func TestQueue_ClosedRejectsWork(t *testing.T) {
	q := New(0)
	if err := q.RunSync(func(context.Context) error { return nil }); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("RunSync before Start = %v", err)
	}
	q.Start()
	q.Close()
	if err := q.Post(func(context.Context) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Post after Close = %v, want ErrClosed", err)
	}
}

func TestAfterFunc_RunsOnLoop(t *testing.T) {
	q := New(0)
	q.Start()
	defer q.Close()

	fired := make(chan bool, 1)
	AfterFunc(q, 5*time.Millisecond, func(ctx context.Context) {
		fired <- q.OnLoop()
	})
	select {
	case onLoop := <-fired:
		if !onLoop {
			t.Fatal("timer task ran off the loop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestAfterFunc_StopPreventsRun(t *testing.T) {
	q := New(0)
	q.Start()
	defer q.Close()

	var ran atomic.Bool
	tm := AfterFunc(q, 20*time.Millisecond, func(ctx context.Context) { ran.Store(true) })
	if !tm.Stop() {
		t.Fatal("Stop on a pending timer should report true")
	}
	if tm.Stop() {
		t.Fatal("second Stop should report false")
	}
	time.Sleep(60 * time.Millisecond)
	_ = q.RunSync(func(context.Context) error { return nil })
	if ran.Load() {
		t.Fatal("stopped timer ran")
	}
}
