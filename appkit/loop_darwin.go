//go:build darwin && cgo

// Package appkit runs the Cocoa main loop and implements runloop.Loop on
// the GCD main queue.
//
// ImageCaptureCore delivers callbacks on the main thread, so the program's
// main goroutine must end up in Loop.Run:
//
//	func main() {
//		loop := appkit.Main()
//		go work(loop)
//		loop.Run()
//	}
package appkit

/*
#cgo CFLAGS: -x objective-c -fblocks
#cgo LDFLAGS: -framework Cocoa
#include "native/appkit.m"
*/
import "C"
import (
	"context"
	"errors"
	"runtime"
	"runtime/cgo"
	"sync"
	"sync/atomic"

	"github.com/shaban/imagecapture/runloop"
)

// ErrNotMainThread is returned by Run when called off the main thread.
var ErrNotMainThread = errors.New("appkit: Run must be called on the main thread")

// The main goroutine stays on the main thread.
func init() { runtime.LockOSThread() }

// Loop is the Cocoa main thread.
type Loop struct {
	ctx     context.Context
	cancel  context.CancelFunc
	closed  atomic.Bool
	running atomic.Bool

	// Regular makes the process a regular app with a Dock icon. The default
	// is an accessory process.
	Regular bool
}

var (
	mainOnce sync.Once
	mainLoop *Loop
)

// Main returns the process-wide main loop.
func Main() *Loop {
	mainOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		mainLoop = &Loop{ctx: ctx, cancel: cancel}
	})
	return mainLoop
}

// Run services the main queue until Stop. It must be called on the main
// thread, normally at the end of main.
func (l *Loop) Run() error {
	if !l.OnLoop() {
		return ErrNotMainThread
	}
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("appkit: loop already running")
	}
	defer l.running.Store(false)
	regular := C.int(0)
	if l.Regular {
		regular = 1
	}
	C.appkit_run(regular)
	return nil
}

// Stop makes Run return and rejects further tasks. Safe from any goroutine.
func (l *Loop) Stop() {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}
	l.cancel()
	C.appkit_stop()
}

// Activate brings the application to the front.
func (l *Loop) Activate() { C.appkit_activate() }

// Post implements runloop.Loop.
func (l *Loop) Post(t runloop.Task) error {
	if l.closed.Load() {
		return runloop.ErrClosed
	}
	C.appkit_dispatch(C.uintptr_t(cgo.NewHandle(t)))
	return nil
}

// RunSync implements runloop.Loop. It blocks until Run services the main
// queue.
func (l *Loop) RunSync(fn func(ctx context.Context) error) error {
	if l.OnLoop() {
		return runloop.ErrReentrant
	}
	done := make(chan error, 1)
	if err := l.Post(func(ctx context.Context) { done <- fn(ctx) }); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-l.ctx.Done():
		return runloop.ErrClosed
	}
}

// OnLoop implements runloop.Loop.
func (l *Loop) OnLoop() bool { return C.appkit_is_main() != 0 }

var _ runloop.Loop = (*Loop)(nil)
