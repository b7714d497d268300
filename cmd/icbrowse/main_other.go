//go:build !(darwin && cgo)

// Command icbrowse lists, watches and imports from cameras through
// ImageCaptureCore. Without macOS and cgo only the journal command works.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	imagecapture "github.com/shaban/imagecapture"
	"github.com/shaban/imagecapture/runloop"
)

var errUnsupported = errors.New("ImageCaptureCore requires macOS and cgo")

func openFramework(runloop.Loop) (imagecapture.Framework, error) {
	return imagecapture.Framework{}, errUnsupported
}

func main() {
	loop := runloop.New(64)
	loop.Start()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, loop)
	stop()
	loop.Close()
	if err != nil {
		os.Exit(1)
	}
}
