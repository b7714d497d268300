package delegate

import (
	"sync/atomic"

	"github.com/shaban/imagecapture/device"
	"github.com/shaban/imagecapture/objc"
)

// BrowserHandlers receive ICDeviceBrowserDelegate callbacks.
type BrowserHandlers struct {
	DeviceAdded   func(dev objc.ID, moreComing bool)
	DeviceRemoved func(dev objc.ID, moreGoing bool)
}

// SessionHandlers receive ICCameraDeviceDelegate and transfer callbacks for
// one device. Nil handlers are skipped.
type SessionHandlers struct {
	SessionOpened       func(err error)
	SessionClosed       func(err error)
	DeviceRemoved       func()
	ContentCatalogReady func()
	ItemsAdded          func(items []objc.ID)
	ItemsRemoved        func(items []objc.ID)
	DeleteCompleted     func(token uint64, deleted, failed []objc.ID, err error)
	DownloadCompleted   func(file objc.ID, token uint64, res device.DownloadResult, err error)
	UploadCompleted     func(path string, token uint64, err error)
	ReadCompleted       func(file objc.ID, token uint64, data []byte, err error)
	PTPCompleted        func(token uint64, data, response []byte, err error)
}

// Registration is one live receiver.
type Registration struct {
	reg      *Registry
	token    Token
	role     Role
	receiver objc.ID
	owner    objc.ID
	browser  BrowserHandlers
	session  SessionHandlers
	released atomic.Bool
}

func (r *Registration) Token() Token      { return r.token }
func (r *Registration) Role() Role        { return r.role }
func (r *Registration) Receiver() objc.ID { return r.receiver }

// Owner is the device a session registration belongs to (objc.Nil for the
// browser).
func (r *Registration) Owner() objc.ID { return r.owner }

func (r *Registration) Released() bool { return r.released.Load() }

// Release destroys the receiver. It succeeds exactly once.
func (r *Registration) Release() error {
	if !r.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	r.reg.release(r)
	return nil
}

func (r *Registration) accept(callback string, want Role, dev objc.ID) bool {
	d := Drop{Role: r.role, Token: r.token, Callback: callback}
	switch {
	case r.released.Load():
		d.Reason = "released"
	case r.role != want:
		d.Reason = "role mismatch"
	case want == RoleDeviceSession && dev != r.owner:
		d.Reason = "foreign device " + dev.String()
	default:
		return true
	}
	r.reg.drop(d)
	return false
}

// BrowserDidAddDevice routes deviceBrowser:didAddDevice:moreComing:.
func (r *Registration) BrowserDidAddDevice(dev objc.ID, moreComing bool) {
	if r.accept("deviceBrowser:didAddDevice:moreComing:", RoleBrowser, dev) && r.browser.DeviceAdded != nil {
		r.browser.DeviceAdded(dev, moreComing)
	}
}

// BrowserDidRemoveDevice routes deviceBrowser:didRemoveDevice:moreGoing:.
func (r *Registration) BrowserDidRemoveDevice(dev objc.ID, moreGoing bool) {
	if r.accept("deviceBrowser:didRemoveDevice:moreGoing:", RoleBrowser, dev) && r.browser.DeviceRemoved != nil {
		r.browser.DeviceRemoved(dev, moreGoing)
	}
}

func (r *Registration) DeviceDidOpenSession(dev objc.ID, err error) {
	if r.accept("device:didOpenSessionWithError:", RoleDeviceSession, dev) && r.session.SessionOpened != nil {
		r.session.SessionOpened(err)
	}
}

func (r *Registration) DeviceDidCloseSession(dev objc.ID, err error) {
	if r.accept("device:didCloseSessionWithError:", RoleDeviceSession, dev) && r.session.SessionClosed != nil {
		r.session.SessionClosed(err)
	}
}

func (r *Registration) DidRemoveDevice(dev objc.ID) {
	if r.accept("didRemoveDevice:", RoleDeviceSession, dev) && r.session.DeviceRemoved != nil {
		r.session.DeviceRemoved()
	}
}

func (r *Registration) DeviceDidBecomeReady(dev objc.ID) {
	if r.accept("deviceDidBecomeReadyWithCompleteContentCatalog:", RoleDeviceSession, dev) &&
		r.session.ContentCatalogReady != nil {
		r.session.ContentCatalogReady()
	}
}

func (r *Registration) DidAddItems(dev objc.ID, items []objc.ID) {
	if r.accept("cameraDevice:didAddItems:", RoleDeviceSession, dev) && r.session.ItemsAdded != nil {
		r.session.ItemsAdded(items)
	}
}

func (r *Registration) DidRemoveItems(dev objc.ID, items []objc.ID) {
	if r.accept("cameraDevice:didRemoveItems:", RoleDeviceSession, dev) && r.session.ItemsRemoved != nil {
		r.session.ItemsRemoved(items)
	}
}

// DidDeleteFiles routes the completion block of
// requestDeleteFiles:deleteFailed:completion:. The block captures the
// request token.
func (r *Registration) DidDeleteFiles(dev objc.ID, token uint64, deleted, failed []objc.ID, err error) {
	if r.accept("requestDeleteFiles:completion", RoleDeviceSession, dev) && r.session.DeleteCompleted != nil {
		r.session.DeleteCompleted(token, deleted, failed, err)
	}
}

// The transfer callbacks carry the file's device; the registry checks it
// against the owner like every other session callback.

func (r *Registration) DidDownloadFile(dev, file objc.ID, token uint64, res device.DownloadResult, err error) {
	if r.accept("didDownloadFile:error:options:contextInfo:", RoleDeviceSession, dev) &&
		r.session.DownloadCompleted != nil {
		r.session.DownloadCompleted(file, token, res, err)
	}
}

func (r *Registration) DidUploadFile(dev objc.ID, path string, token uint64, err error) {
	if r.accept("didUploadFile:error:contextInfo:", RoleDeviceSession, dev) && r.session.UploadCompleted != nil {
		r.session.UploadCompleted(path, token, err)
	}
}

func (r *Registration) DidReadData(dev, file objc.ID, token uint64, data []byte, err error) {
	if r.accept("didReadData:fromFile:error:contextInfo:", RoleDeviceSession, dev) && r.session.ReadCompleted != nil {
		r.session.ReadCompleted(file, token, data, err)
	}
}

func (r *Registration) DidSendPTPCommand(dev objc.ID, token uint64, data, response []byte, err error) {
	if r.accept("didSendPTPCommand:inData:response:error:contextInfo:", RoleDeviceSession, dev) &&
		r.session.PTPCompleted != nil {
		r.session.PTPCompleted(token, data, response, err)
	}
}
