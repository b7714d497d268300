//go:build darwin && cgo

package appkit

/*
#include <stdint.h>
*/
import "C"
import (
	"runtime/cgo"

	"github.com/shaban/imagecapture/runloop"
)

//export goAppkitRunTask
func goAppkitRunTask(h C.uintptr_t) {
	hd := cgo.Handle(h)
	t, ok := hd.Value().(runloop.Task)
	hd.Delete()
	if ok && t != nil {
		t(Main().ctx)
	}
}
