// Package device models ImageCaptureCore devices on top of a typed native
// boundary.
//
// A Device wraps a weak reference into framework-owned memory. Attributes are
// queried on every call and never cached, and the wrapper refuses to touch
// the handle once Invalidate has been called for a removal event. Requests
// are fire-and-forget at this layer: completion arrives later through the
// delegate callbacks wired up by the controller.
//
// Device values must only be used on the run loop thread.
package device

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/shaban/imagecapture/objc"
)

var (
	ErrInvalidHandle     = errors.New("invalid device handle")
	ErrCapabilityMissing = errors.New("capability missing")
	ErrNotCamera         = errors.New("device is not a camera")
	ErrNativeCallFailed  = errors.New("native call failed")
	ErrForeignFile       = errors.New("file does not belong to device")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// NativeError wraps a failure reported by the native layer.
func NativeError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrNativeCallFailed, op, err)
}

// Device is a generic ICDevice.
type Device struct {
	handle  objc.ID
	native  Native
	removed atomic.Bool
}

// New wraps a device handle delivered by the browser.
func New(n Native, handle objc.ID) *Device {
	return &Device{handle: handle, native: n}
}

// Handle returns the raw native reference.
func (d *Device) Handle() objc.ID { return d.handle }

// Invalidate marks the handle dead. Called exactly when the framework reports
// the device removed; every later call fails with ErrInvalidHandle.
func (d *Device) Invalidate() { d.removed.Store(true) }

// Valid reports whether the handle may still be dereferenced.
func (d *Device) Valid() bool {
	return d != nil && !d.handle.IsNil() && !d.removed.Load()
}

func (d *Device) check(op string) error {
	if !d.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidHandle, op)
	}
	return nil
}

// Info reads all generic attributes.
func (d *Device) Info() (Info, error) {
	if err := d.check("info"); err != nil {
		return Info{}, err
	}
	n, h := d.native, d.handle
	return Info{
		Type:                n.DeviceType(h),
		Name:                n.Name(h),
		Transport:           n.TransportType(h),
		LocationDescription: n.LocationDescription(h),
		IsRemote:            n.IsRemote(h),
		HasOpenSession:      n.HasOpenSession(h),
		Capabilities:        n.Capabilities(h),
		UUID:                n.UUIDString(h),
		SerialNumber:        n.SerialNumber(h),
		USBVendorID:         n.USBVendorID(h),
		USBProductID:        n.USBProductID(h),
	}, nil
}

func (d *Device) Name() (string, error) {
	if err := d.check("name"); err != nil {
		return "", err
	}
	return d.native.Name(d.handle), nil
}

func (d *Device) Type() (Type, error) {
	if err := d.check("type"); err != nil {
		return TypeOther, err
	}
	return d.native.DeviceType(d.handle), nil
}

func (d *Device) Capabilities() (Capabilities, error) {
	if err := d.check("capabilities"); err != nil {
		return 0, err
	}
	return d.native.Capabilities(d.handle), nil
}

func (d *Device) HasOpenSession() (bool, error) {
	if err := d.check("hasOpenSession"); err != nil {
		return false, err
	}
	return d.native.HasOpenSession(d.handle), nil
}

// SetDelegate installs the synthesized session receiver (objc.Nil clears it).
func (d *Device) SetDelegate(receiver objc.ID) error {
	if err := d.check("setDelegate"); err != nil {
		return err
	}
	return NativeError("setDelegate", d.native.SetDelegate(d.handle, receiver))
}

func (d *Device) RequestOpenSession() error {
	if err := d.check("requestOpenSession"); err != nil {
		return err
	}
	return NativeError("requestOpenSession", d.native.RequestOpenSession(d.handle))
}

func (d *Device) RequestCloseSession() error {
	if err := d.check("requestCloseSession"); err != nil {
		return err
	}
	return NativeError("requestCloseSession", d.native.RequestCloseSession(d.handle))
}

func (d *Device) RequestEjectOrDisconnect() error {
	if err := d.check("requestEjectOrDisconnect"); err != nil {
		return err
	}
	return NativeError("requestEjectOrDisconnect", d.native.RequestEjectOrDisconnect(d.handle))
}

func (d *Device) RequestYield() error {
	if err := d.check("requestYield"); err != nil {
		return err
	}
	return NativeError("requestYield", d.native.RequestYield(d.handle))
}

// Camera narrows the device to an ICCameraDevice.
func (d *Device) Camera() (*Camera, error) {
	t, err := d.Type()
	if err != nil {
		return nil, err
	}
	if t != TypeCamera {
		return nil, fmt.Errorf("%w: %s", ErrNotCamera, t)
	}
	return &Camera{Device: d}, nil
}
