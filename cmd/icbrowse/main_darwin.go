//go:build darwin && cgo

// Command icbrowse lists, watches and imports from cameras through
// ImageCaptureCore.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	imagecapture "github.com/shaban/imagecapture"
	"github.com/shaban/imagecapture/appkit"
	"github.com/shaban/imagecapture/icc"
	"github.com/shaban/imagecapture/runloop"
)

func openFramework(loop runloop.Loop) (imagecapture.Framework, error) { return icc.New(loop) }

func main() {
	loop := appkit.Main()
	code := make(chan int, 1)
	go func() {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := execute(ctx, loop); err != nil {
			code <- 1
		} else {
			code <- 0
		}
		loop.Stop()
	}()
	if err := loop.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(<-code)
}
