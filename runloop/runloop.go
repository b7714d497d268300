// Package runloop serializes work onto a single thread.
//
// ImageCaptureCore delivers every delegate callback on the thread that runs
// the main run loop, and the controller mutates its state only there. Loop
// abstracts that thread; Queue is a goroutine-backed implementation for
// tests and headless use, appkit.Loop is the Cocoa one.
package runloop

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrClosed     = errors.New("run loop closed")
	ErrNotStarted = errors.New("run loop not started")
	ErrReentrant  = errors.New("RunSync called on the loop thread")
)

// Task is a unit of work run on the loop thread. It should be quick and
// must not block on the loop itself. ctx is canceled on shutdown.
type Task func(ctx context.Context)

// Loop is the thread the controller lives on.
type Loop interface {
	// Post enqueues t and returns immediately.
	Post(t Task) error
	// RunSync runs fn on the loop and waits for its result. It refuses to
	// run when called from the loop thread.
	RunSync(fn func(ctx context.Context) error) error
	// OnLoop reports whether the caller is running on the loop thread.
	OnLoop() bool
}

// Queue runs tasks on one locked OS thread.
type Queue struct {
	ch      chan Task
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	gid     atomic.Uint64
}

// New creates a queue with a fixed buffer.
func New(buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{ch: make(chan Task, buffer), ctx: ctx, cancel: cancel}
}

// Start begins the worker. Safe to call multiple times.
func (q *Queue) Start() {
	if !q.started.CompareAndSwap(false, true) {
		return
	}
	ready := make(chan struct{})
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		q.gid.Store(goid())
		close(ready)

		for {
			select {
			case <-q.ctx.Done():
				q.drain()
				return
			case t := <-q.ch:
				if t != nil {
					t(q.ctx)
				}
			}
		}
	}()
	<-ready
}

// drain runs what is already buffered, best effort.
func (q *Queue) drain() {
	deadline := time.After(10 * time.Millisecond)
	for {
		select {
		case t := <-q.ch:
			if t != nil {
				t(q.ctx)
			}
		case <-deadline:
			return
		default:
			return
		}
	}
}

// Post implements Loop.
func (q *Queue) Post(t Task) error {
	if q == nil || q.ch == nil {
		return ErrNotStarted
	}
	if q.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case q.ch <- t:
		return nil
	case <-q.ctx.Done():
		return ErrClosed
	}
}

// RunSync implements Loop.
func (q *Queue) RunSync(fn func(ctx context.Context) error) error {
	if q.OnLoop() {
		return ErrReentrant
	}
	if !q.started.Load() {
		return ErrNotStarted
	}
	done := make(chan error, 1)
	if err := q.Post(func(ctx context.Context) {
		done <- fn(ctx)
	}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-q.ctx.Done():
		// the task may still have run during drain
		select {
		case err := <-done:
			return err
		default:
			return ErrClosed
		}
	}
}

// OnLoop implements Loop.
func (q *Queue) OnLoop() bool {
	id := q.gid.Load()
	return id != 0 && id == goid()
}

// Close stops the worker and waits for it to finish.
func (q *Queue) Close() {
	if q == nil {
		return
	}
	q.cancel()
	q.wg.Wait()
}

// goid parses the current goroutine id from the stack header
// ("goroutine 17 [running]:").
func goid() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

// Timer is a task scheduled onto a loop by AfterFunc.
type Timer struct {
	t       *time.Timer
	stopped atomic.Bool
}

// AfterFunc posts task to l after d. A timer stopped before the task runs on
// the loop never runs it, even if the post already happened.
func AfterFunc(l Loop, d time.Duration, task Task) *Timer {
	tm := &Timer{}
	tm.t = time.AfterFunc(d, func() {
		_ = l.Post(func(ctx context.Context) {
			if tm.stopped.Load() {
				return
			}
			tm.stopped.Store(true)
			task(ctx)
		})
	})
	return tm
}

// Stop cancels the timer. It reports whether the task was still pending.
func (tm *Timer) Stop() bool {
	if tm == nil {
		return false
	}
	tm.t.Stop()
	return !tm.stopped.Swap(true)
}
