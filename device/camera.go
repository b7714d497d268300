package device

import (
	"fmt"

	"github.com/shaban/imagecapture/objc"
)

// Camera is an ICCameraDevice.
type Camera struct {
	*Device
}

// Status reads the camera-specific attributes.
func (c *Camera) Status() (CameraStatus, error) {
	if err := c.check("status"); err != nil {
		return CameraStatus{}, err
	}
	n, h := c.native, c.handle
	st := CameraStatus{
		BatteryLevelAvailable:          n.BatteryLevelAvailable(h),
		ContentCatalogPercentCompleted: clampPercent(n.ContentCatalogPercentCompleted(h)),
		TimeOffset:                     n.TimeOffset(h),
		TetheredCaptureEnabled:         n.TetheredCaptureEnabled(h),
		AccessRestricted:               n.IsAccessRestrictedAppleDevice(h),
	}
	if st.BatteryLevelAvailable {
		st.BatteryLevel = clampPercent(n.BatteryLevel(h))
	}
	st.MountPoint, st.HasMountPoint = n.MountPoint(h)
	return st, nil
}

func clampPercent(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// MediaFiles lists every image, movie and audio file on the camera, flat.
func (c *Camera) MediaFiles() ([]File, error) {
	if err := c.check("mediaFiles"); err != nil {
		return nil, err
	}
	raw := c.native.MediaFiles(c.handle)
	files := make([]File, 0, len(raw))
	for _, h := range raw {
		if !h.IsNil() {
			files = append(files, File{handle: h, owner: c.Device})
		}
	}
	return files, nil
}

// FilesOfType lists the media files whose UTI is uti.
func (c *Camera) FilesOfType(uti string) ([]File, error) {
	all, err := c.MediaFiles()
	if err != nil {
		return nil, err
	}
	var out []File
	for _, f := range all {
		if c.native.FileUTI(f.handle) == uti {
			out = append(out, f)
		}
	}
	return out, nil
}

// FileFor wraps a file handle delivered by a camera callback.
func (c *Camera) FileFor(h objc.ID) File {
	return File{handle: h, owner: c.Device}
}

func (c *Camera) require(op string, caps ...Capability) error {
	if err := c.check(op); err != nil {
		return err
	}
	have := c.native.Capabilities(c.handle)
	for _, cap := range caps {
		if have.Has(cap) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s requires %s", ErrCapabilityMissing, op, NewCapabilities(caps...))
}

func (c *Camera) RequestSyncClock() error {
	if err := c.require("requestSyncClock", CanSyncClock); err != nil {
		return err
	}
	return NativeError("requestSyncClock", c.native.RequestSyncClock(c.handle))
}

func (c *Camera) RequestEnableTethering() error {
	if err := c.require("requestEnableTethering", CanTakePicture); err != nil {
		return err
	}
	return NativeError("requestEnableTethering", c.native.RequestEnableTethering(c.handle))
}

func (c *Camera) RequestDisableTethering() error {
	if err := c.require("requestDisableTethering", CanTakePicture); err != nil {
		return err
	}
	return NativeError("requestDisableTethering", c.native.RequestDisableTethering(c.handle))
}

func (c *Camera) RequestTakePicture() error {
	if err := c.require("requestTakePicture", CanTakePicture); err != nil {
		return err
	}
	return NativeError("requestTakePicture", c.native.RequestTakePicture(c.handle))
}

// RequestDeleteFiles deletes files; receiver gets the completion callback
// with token.
func (c *Camera) RequestDeleteFiles(files []File, receiver objc.ID, token uint64) error {
	if err := c.require("requestDeleteFiles", CanDeleteOneFile, CanDeleteAllFiles); err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no files to delete", ErrInvalidArgument)
	}
	handles := make([]objc.ID, 0, len(files))
	for _, f := range files {
		if err := c.owns(f); err != nil {
			return err
		}
		handles = append(handles, f.handle)
	}
	return NativeError("requestDeleteFiles", c.native.RequestDeleteFiles(c.handle, handles, receiver, token))
}

func (c *Camera) CancelDelete() error {
	if err := c.check("cancelDelete"); err != nil {
		return err
	}
	return NativeError("cancelDelete", c.native.CancelDelete(c.handle))
}

func (c *Camera) RequestDownloadFile(f File, opts DownloadOptions, receiver objc.ID, token uint64) error {
	if err := c.check("requestDownloadFile"); err != nil {
		return err
	}
	if err := c.owns(f); err != nil {
		return err
	}
	return NativeError("requestDownloadFile",
		c.native.RequestDownloadFile(c.handle, f.handle, opts, receiver, token))
}

func (c *Camera) CancelDownload() error {
	if err := c.check("cancelDownload"); err != nil {
		return err
	}
	return NativeError("cancelDownload", c.native.CancelDownload(c.handle))
}

func (c *Camera) RequestUploadFile(path string, receiver objc.ID, token uint64) error {
	if err := c.require("requestUploadFile", CanReceiveFile); err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("%w: empty upload path", ErrInvalidArgument)
	}
	return NativeError("requestUploadFile",
		c.native.RequestUploadFile(c.handle, path, receiver, token))
}

func (c *Camera) RequestReadDataFromFile(f File, offset, length int64, receiver objc.ID, token uint64) error {
	if err := c.check("requestReadDataFromFile"); err != nil {
		return err
	}
	if offset < 0 || length <= 0 {
		return fmt.Errorf("%w: offset %d length %d", ErrInvalidArgument, offset, length)
	}
	if err := c.owns(f); err != nil {
		return err
	}
	return NativeError("requestReadDataFromFile",
		c.native.RequestReadDataFromFile(c.handle, f.handle, offset, length, receiver, token))
}

// RequestSendPTPCommand sends a raw PTP command container, with optional
// data phase, to the camera.
func (c *Camera) RequestSendPTPCommand(command, outData []byte, receiver objc.ID, token uint64) error {
	if err := c.require("requestSendPTPCommand", CanAcceptPTPCommands); err != nil {
		return err
	}
	if len(command) == 0 {
		return fmt.Errorf("%w: empty PTP command", ErrInvalidArgument)
	}
	return NativeError("requestSendPTPCommand",
		c.native.RequestSendPTPCommand(c.handle, command, outData, receiver, token))
}

func (c *Camera) owns(f File) error {
	if f.handle.IsNil() || f.owner != c.Device {
		return fmt.Errorf("%w: %s", ErrForeignFile, f.handle)
	}
	return nil
}

// File is an ICCameraFile on a camera. It is immutable for this package and
// shares its owner's validity.
type File struct {
	handle objc.ID
	owner  *Device
}

// Handle returns the raw native reference.
func (f File) Handle() objc.ID { return f.handle }

// Owner returns the camera device the file was listed from.
func (f File) Owner() *Device { return f.owner }

// Info reads the file attributes.
func (f File) Info() (FileInfo, error) {
	if f.handle.IsNil() || !f.owner.Valid() {
		return FileInfo{}, fmt.Errorf("%w: file %s", ErrInvalidHandle, f.handle)
	}
	n := f.owner.native
	return FileInfo{
		Name: n.FileName(f.handle),
		UTI:  n.FileUTI(f.handle),
		Size: n.FileSize(f.handle),
	}, nil
}
