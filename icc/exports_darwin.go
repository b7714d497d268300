//go:build darwin && cgo

package icc

/*
#include <stddef.h>
#include <stdint.h>
*/
import "C"
import (
	"runtime/cgo"
	"unsafe"

	"github.com/shaban/imagecapture/delegate"
	"github.com/shaban/imagecapture/device"
	"github.com/shaban/imagecapture/objc"
)

// route resolves a receiver's reference to its live registration. A zero
// reference means the receiver was released; the callback goes nowhere.
func route(ref C.uintptr_t, callback string) *delegate.Registration {
	if ref == 0 {
		return nil
	}
	rr, ok := cgo.Handle(ref).Value().(receiverRef)
	if !ok {
		return nil
	}
	reg, ok := rr.d.Resolve(rr.tok)
	if !ok {
		if r, isReg := rr.d.(*delegate.Registry); isReg {
			r.DropUnknown(rr.tok, callback)
		}
		return nil
	}
	return reg
}

func id(p unsafe.Pointer) objc.ID { return objc.FromPointer(p) }

//export goIccBrowserDidAdd
func goIccBrowserDidAdd(ref C.uintptr_t, dev unsafe.Pointer, more C.int) {
	if reg := route(ref, "deviceBrowser:didAddDevice:moreComing:"); reg != nil {
		reg.BrowserDidAddDevice(id(dev), more != 0)
	}
}

//export goIccBrowserDidRemove
func goIccBrowserDidRemove(ref C.uintptr_t, dev unsafe.Pointer, more C.int) {
	if reg := route(ref, "deviceBrowser:didRemoveDevice:moreGoing:"); reg != nil {
		reg.BrowserDidRemoveDevice(id(dev), more != 0)
	}
}

//export goIccDidOpenSession
func goIccDidOpenSession(ref C.uintptr_t, dev, nserr unsafe.Pointer) {
	if reg := route(ref, "device:didOpenSessionWithError:"); reg != nil {
		reg.DeviceDidOpenSession(id(dev), objc.DecodeError(id(nserr)))
	}
}

//export goIccDidCloseSession
func goIccDidCloseSession(ref C.uintptr_t, dev, nserr unsafe.Pointer) {
	if reg := route(ref, "device:didCloseSessionWithError:"); reg != nil {
		reg.DeviceDidCloseSession(id(dev), objc.DecodeError(id(nserr)))
	}
}

//export goIccDidRemoveDevice
func goIccDidRemoveDevice(ref C.uintptr_t, dev unsafe.Pointer) {
	if reg := route(ref, "didRemoveDevice:"); reg != nil {
		reg.DidRemoveDevice(id(dev))
	}
}

//export goIccDidBecomeReady
func goIccDidBecomeReady(ref C.uintptr_t, dev unsafe.Pointer) {
	if reg := route(ref, "deviceDidBecomeReadyWithCompleteContentCatalog:"); reg != nil {
		reg.DeviceDidBecomeReady(id(dev))
	}
}

//export goIccDidAddItems
func goIccDidAddItems(ref C.uintptr_t, dev, items unsafe.Pointer) {
	if reg := route(ref, "cameraDevice:didAddItems:"); reg != nil {
		reg.DidAddItems(id(dev), objc.DecodeArray(id(items)))
	}
}

//export goIccDidRemoveItems
func goIccDidRemoveItems(ref C.uintptr_t, dev, items unsafe.Pointer) {
	if reg := route(ref, "cameraDevice:didRemoveItems:"); reg != nil {
		reg.DidRemoveItems(id(dev), objc.DecodeArray(id(items)))
	}
}

//export goIccDidDeleteFiles
func goIccDidDeleteFiles(ref C.uintptr_t, dev, deleted, failed, nserr unsafe.Pointer, token C.uint64_t) {
	if reg := route(ref, "requestDeleteFiles:completion"); reg != nil {
		reg.DidDeleteFiles(id(dev), uint64(token),
			objc.DecodeArray(id(deleted)), objc.DecodeArray(id(failed)), objc.DecodeError(id(nserr)))
	}
}

//export goIccDidDownloadFile
func goIccDidDownloadFile(ref C.uintptr_t, dev, file, nserr, saved, ancillary unsafe.Pointer, token C.uint64_t) {
	if reg := route(ref, "didDownloadFile:error:options:contextInfo:"); reg != nil {
		res := device.DownloadResult{
			SavedFilename:  objc.DecodeString(id(saved)),
			AncillaryFiles: objc.DecodeStrings(id(ancillary)),
		}
		reg.DidDownloadFile(id(dev), id(file), uint64(token), res, objc.DecodeError(id(nserr)))
	}
}

// The upload callback carries no device; the receiver is per device, so
// its owner stands in.
//
//export goIccDidUploadFile
func goIccDidUploadFile(ref C.uintptr_t, path, nserr unsafe.Pointer, token C.uint64_t) {
	if reg := route(ref, "didUploadFile:error:contextInfo:"); reg != nil {
		reg.DidUploadFile(reg.Owner(), objc.DecodeString(id(path)), uint64(token), objc.DecodeError(id(nserr)))
	}
}

//export goIccDidReadData
func goIccDidReadData(ref C.uintptr_t, dev, file, bytes unsafe.Pointer, n C.size_t, nserr unsafe.Pointer, token C.uint64_t) {
	if reg := route(ref, "didReadData:fromFile:error:contextInfo:"); reg != nil {
		reg.DidReadData(id(dev), id(file), uint64(token), goBytes(bytes, n), objc.DecodeError(id(nserr)))
	}
}

// Like uploads, PTP callbacks carry no device.
//
//export goIccDidSendPTPCommand
func goIccDidSendPTPCommand(ref C.uintptr_t, data unsafe.Pointer, dataLen C.size_t, resp unsafe.Pointer, respLen C.size_t, nserr unsafe.Pointer, token C.uint64_t) {
	if reg := route(ref, "didSendPTPCommand:inData:response:error:contextInfo:"); reg != nil {
		reg.DidSendPTPCommand(reg.Owner(), uint64(token), goBytes(data, dataLen), goBytes(resp, respLen), objc.DecodeError(id(nserr)))
	}
}

func goBytes(p unsafe.Pointer, n C.size_t) []byte {
	if p == nil || n == 0 {
		return nil
	}
	return C.GoBytes(p, C.int(n))
}
