//go:build darwin && cgo

// Package icc binds the device model, the device browser and the delegate
// runtime to ImageCaptureCore.
//
// Everything here must run on the main thread, which is the thread the
// framework delivers callbacks on. Pair it with appkit.Loop:
//
//	loop := appkit.Main()
//	fw, err := icc.New(loop)
package icc

/*
#cgo CFLAGS: -x objective-c -fobjc-exceptions -fblocks
#cgo LDFLAGS: -framework Foundation -framework ImageCaptureCore
#include "native/icc.m"
*/
import "C"
import (
	"context"
	"errors"
	"fmt"
	"runtime/cgo"
	"time"
	"unsafe"

	imagecapture "github.com/shaban/imagecapture"
	"github.com/shaban/imagecapture/delegate"
	"github.com/shaban/imagecapture/device"
	"github.com/shaban/imagecapture/objc"
	"github.com/shaban/imagecapture/runloop"
)

// Browse mask bits from ICDeviceTypeMask and ICDeviceLocationTypeMask.
const (
	maskCamera  = 0x00000001
	maskScanner = 0x00000002
	maskLocal   = 0x00000100
	maskRemote  = 0x0000FE00
)

// Bridge implements device.Native, device.Browser and delegate.Runtime on
// top of ImageCaptureCore.
type Bridge struct {
	browser  objc.ID
	browsing bool
}

// New creates the device browser on loop and returns the framework context
// a Controller needs.
func New(loop runloop.Loop) (imagecapture.Framework, error) {
	b := &Bridge{}
	create := func(context.Context) error {
		p := C.icc_browser_new()
		if p == nil {
			return errors.New("icc: cannot create ICDeviceBrowser")
		}
		b.browser = objc.FromPointer(p)
		return nil
	}
	var err error
	if loop.OnLoop() {
		err = create(context.Background())
	} else {
		err = loop.RunSync(create)
	}
	if err != nil {
		return imagecapture.Framework{}, err
	}
	return imagecapture.Framework{Native: b, Browser: b, Runtime: b}, nil
}

func exception(ex *C.icc_exception, sel string) error {
	defer C.free(unsafe.Pointer(ex.name))
	defer C.free(unsafe.Pointer(ex.reason))
	return &objc.Exception{Name: C.GoString(ex.name), Reason: C.GoString(ex.reason), Selector: sel}
}

// Attribute reads return the zero value when the receiver throws.

func str(obj objc.ID, sel string) string {
	v, err := objc.SendID(obj, sel)
	if err != nil {
		return ""
	}
	return objc.DecodeString(v)
}

func boolean(obj objc.ID, sel string) bool {
	v, _ := objc.SendBool(obj, sel)
	return v
}

func integer(obj objc.ID, sel string) int {
	v, _ := objc.SendInt(obj, sel)
	return v
}

// device.Browser

func (b *Bridge) StartBrowsing(rcv objc.ID, mask device.BrowseMask) error {
	var bits C.uint
	if mask.Cameras {
		bits |= maskCamera
	}
	if mask.Scanners {
		bits |= maskScanner
	}
	if mask.Local {
		bits |= maskLocal
	}
	if mask.Remote {
		bits |= maskRemote
	}
	var ex C.icc_exception
	if C.icc_browser_start(b.browser.Pointer(), rcv.Pointer(), bits, &ex) == 0 {
		return exception(&ex, "start")
	}
	b.browsing = true
	return nil
}

func (b *Bridge) StopBrowsing() error {
	var ex C.icc_exception
	if C.icc_browser_stop(b.browser.Pointer(), &ex) == 0 {
		return exception(&ex, "stop")
	}
	b.browsing = false
	return nil
}

func (b *Bridge) IsBrowsing() bool { return b.browsing }

// delegate.Runtime

type receiverRef struct {
	d   delegate.Dispatcher
	tok delegate.Token
}

func (b *Bridge) ClassExists(name string) bool {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return C.icc_class_exists(cname) != 0
}

func (b *Bridge) DefineClass(name string, role delegate.Role) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	switch C.icc_define_class(cname, C.int(role)) {
	case 0:
		return nil
	case -1:
		return fmt.Errorf("%w: class %s already exists", delegate.ErrRegistrationConflict, name)
	}
	return fmt.Errorf("icc: runtime refused class %s", name)
}

// NewReceiver stores a cgo handle, never a Go pointer, in the receiver.
func (b *Bridge) NewReceiver(class string, d delegate.Dispatcher, tok delegate.Token) (objc.ID, error) {
	cname := C.CString(class)
	defer C.free(unsafe.Pointer(cname))
	h := cgo.NewHandle(receiverRef{d: d, tok: tok})
	p := C.icc_receiver_new(cname, C.uintptr_t(h))
	if p == nil {
		h.Delete()
		return objc.Nil, fmt.Errorf("icc: class %s is not defined", class)
	}
	return objc.FromPointer(p), nil
}

func (b *Bridge) ReleaseReceiver(rcv objc.ID) {
	if ref := C.icc_receiver_release(rcv.Pointer()); ref != 0 {
		cgo.Handle(ref).Delete()
	}
}

// device.DeviceNative

// ICDeviceType values.
const (
	icDeviceTypeCamera  = 1
	icDeviceTypeScanner = 2
)

func (b *Bridge) DeviceType(dev objc.ID) device.Type {
	switch integer(dev, "type") & 0xFF {
	case icDeviceTypeCamera:
		return device.TypeCamera
	case icDeviceTypeScanner:
		return device.TypeScanner
	}
	return device.TypeOther
}

func (b *Bridge) Name(dev objc.ID) string { return str(dev, "name") }

func (b *Bridge) TransportType(dev objc.ID) device.Transport {
	return device.ParseTransport(str(dev, "transportType"))
}

func (b *Bridge) LocationDescription(dev objc.ID) string { return str(dev, "locationDescription") }
func (b *Bridge) IsRemote(dev objc.ID) bool              { return boolean(dev, "isRemote") }
func (b *Bridge) HasOpenSession(dev objc.ID) bool        { return boolean(dev, "hasOpenSession") }

func (b *Bridge) Capabilities(dev objc.ID) device.Capabilities {
	arr, err := objc.SendID(dev, "capabilities")
	if err != nil {
		return 0
	}
	return device.ParseCapabilities(objc.DecodeStrings(arr))
}

func (b *Bridge) UUIDString(dev objc.ID) string { return str(dev, "UUIDString") }

func (b *Bridge) SerialNumber(dev objc.ID) string {
	if !objc.RespondsTo(dev, "serialNumberString") {
		return ""
	}
	return str(dev, "serialNumberString")
}

func (b *Bridge) USBVendorID(dev objc.ID) int  { return integer(dev, "usbVendorID") }
func (b *Bridge) USBProductID(dev objc.ID) int { return integer(dev, "usbProductID") }

func (b *Bridge) SetDelegate(dev, rcv objc.ID) error {
	return objc.SendVoidID(dev, "setDelegate:", rcv)
}

func (b *Bridge) RequestOpenSession(dev objc.ID) error {
	return objc.SendVoid(dev, "requestOpenSession")
}

func (b *Bridge) RequestCloseSession(dev objc.ID) error {
	return objc.SendVoid(dev, "requestCloseSession")
}

func (b *Bridge) RequestEjectOrDisconnect(dev objc.ID) error {
	return objc.SendVoid(dev, "requestEjectOrDisconnect")
}

func (b *Bridge) RequestYield(dev objc.ID) error {
	return objc.SendVoid(dev, "requestYield")
}

// device.CameraNative

func (b *Bridge) BatteryLevelAvailable(cam objc.ID) bool { return boolean(cam, "batteryLevelAvailable") }
func (b *Bridge) BatteryLevel(cam objc.ID) int           { return integer(cam, "batteryLevel") }

func (b *Bridge) ContentCatalogPercentCompleted(cam objc.ID) int {
	return integer(cam, "contentCatalogPercentCompleted")
}

func (b *Bridge) MediaFiles(cam objc.ID) []objc.ID {
	arr, err := objc.SendID(cam, "mediaFiles")
	if err != nil {
		return nil
	}
	return objc.DecodeArray(arr)
}

func (b *Bridge) MountPoint(cam objc.ID) (string, bool) {
	mp := str(cam, "mountPoint")
	return mp, mp != ""
}

func (b *Bridge) TimeOffset(cam objc.ID) time.Duration {
	secs, _ := objc.SendDouble(cam, "timeOffset")
	return time.Duration(secs * float64(time.Second))
}

func (b *Bridge) TetheredCaptureEnabled(cam objc.ID) bool {
	return boolean(cam, "tetheredCaptureEnabled")
}

func (b *Bridge) IsAccessRestrictedAppleDevice(cam objc.ID) bool {
	return objc.RespondsTo(cam, "isAccessRestrictedAppleDevice") && boolean(cam, "isAccessRestrictedAppleDevice")
}

func (b *Bridge) RequestSyncClock(cam objc.ID) error { return objc.SendVoid(cam, "requestSyncClock") }
func (b *Bridge) RequestTakePicture(cam objc.ID) error {
	return objc.SendVoid(cam, "requestTakePicture")
}
func (b *Bridge) RequestEnableTethering(cam objc.ID) error {
	return objc.SendVoid(cam, "requestEnableTethering")
}
func (b *Bridge) RequestDisableTethering(cam objc.ID) error {
	return objc.SendVoid(cam, "requestDisableTethering")
}
func (b *Bridge) CancelDelete(cam objc.ID) error   { return objc.SendVoid(cam, "cancelDelete") }
func (b *Bridge) CancelDownload(cam objc.ID) error { return objc.SendVoid(cam, "cancelDownload") }

func (b *Bridge) RequestDeleteFiles(cam objc.ID, files []objc.ID, rcv objc.ID, tok uint64) error {
	ptrs := C.malloc(C.size_t(len(files)) * C.size_t(unsafe.Sizeof(uintptr(0))))
	defer C.free(ptrs)
	arr := unsafe.Slice((*unsafe.Pointer)(ptrs), len(files))
	for i, f := range files {
		arr[i] = f.Pointer()
	}
	var ex C.icc_exception
	if C.icc_request_delete(cam.Pointer(), (*unsafe.Pointer)(ptrs), C.size_t(len(files)), rcv.Pointer(), C.uint64_t(tok), &ex) == 0 {
		return exception(&ex, "requestDeleteFiles:deleteFailed:completion:")
	}
	return nil
}

func (b *Bridge) RequestDownloadFile(cam, file objc.ID, opts device.DownloadOptions, rcv objc.ID, tok uint64) error {
	dir, err := nsString(opts.Directory)
	if err != nil {
		return err
	}
	defer objc.Release(dir)
	saveAs, err := nsString(opts.SaveAs)
	if err != nil {
		return err
	}
	defer objc.Release(saveAs)

	var ex C.icc_exception
	if C.icc_request_download(cam.Pointer(), file.Pointer(), dir.Pointer(), saveAs.Pointer(),
		cbool(opts.Overwrite), cbool(opts.DeleteAfterDownload), cbool(opts.Sidecars),
		rcv.Pointer(), C.uint64_t(tok), &ex) == 0 {
		return exception(&ex, "requestDownloadFile:options:downloadDelegate:didDownloadSelector:contextInfo:")
	}
	return nil
}

func (b *Bridge) RequestUploadFile(cam objc.ID, path string, rcv objc.ID, tok uint64) error {
	nspath, err := nsString(path)
	if err != nil {
		return err
	}
	defer objc.Release(nspath)

	var ex C.icc_exception
	if C.icc_request_upload(cam.Pointer(), nspath.Pointer(), rcv.Pointer(), C.uint64_t(tok), &ex) == 0 {
		return exception(&ex, "requestUploadFile:options:uploadDelegate:didUploadSelector:contextInfo:")
	}
	return nil
}

// nsString encodes a non-empty s as an owned NSString; "" stays nil.
// Release accepts nil.
func nsString(s string) (objc.ID, error) {
	if s == "" {
		return objc.Nil, nil
	}
	str, err := objc.EncodeString(s)
	if err != nil {
		return objc.Nil, fmt.Errorf("%w: %q", device.ErrInvalidArgument, s)
	}
	return str, nil
}

func (b *Bridge) RequestReadDataFromFile(cam, file objc.ID, offset, length int64, rcv objc.ID, tok uint64) error {
	var ex C.icc_exception
	if C.icc_request_read(cam.Pointer(), file.Pointer(), C.longlong(offset), C.longlong(length),
		rcv.Pointer(), C.uint64_t(tok), &ex) == 0 {
		return exception(&ex, "requestReadDataFromFile:atOffset:length:readDelegate:didReadDataSelector:contextInfo:")
	}
	return nil
}

func (b *Bridge) RequestSendPTPCommand(cam objc.ID, command, outData []byte, rcv objc.ID, tok uint64) error {
	cmd := C.CBytes(command)
	defer C.free(cmd)
	var out unsafe.Pointer
	if len(outData) > 0 {
		out = C.CBytes(outData)
		defer C.free(out)
	}
	var ex C.icc_exception
	if C.icc_request_ptp(cam.Pointer(), cmd, C.size_t(len(command)), out, C.size_t(len(outData)),
		rcv.Pointer(), C.uint64_t(tok), &ex) == 0 {
		return exception(&ex, "requestSendPTPCommand:outData:sendCommandDelegate:didSendCommandSelector:contextInfo:")
	}
	return nil
}

func cbool(v bool) C.int {
	if v {
		return 1
	}
	return 0
}

// device.FileNative

func (b *Bridge) FileName(file objc.ID) string { return str(file, "name") }
func (b *Bridge) FileUTI(file objc.ID) string  { return str(file, "UTI") }

func (b *Bridge) FileSize(file objc.ID) int64 {
	return int64(integer(file, "fileSize"))
}

var (
	_ device.Native    = (*Bridge)(nil)
	_ device.Browser   = (*Bridge)(nil)
	_ delegate.Runtime = (*Bridge)(nil)
)
