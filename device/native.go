package device

import (
	"time"

	"github.com/shaban/imagecapture/objc"
)

// DeviceNative is the set of typed adapters for ICDevice selectors. Every
// method expects an ICDevice receiver.
type DeviceNative interface {
	DeviceType(dev objc.ID) Type
	Name(dev objc.ID) string
	TransportType(dev objc.ID) Transport
	LocationDescription(dev objc.ID) string
	IsRemote(dev objc.ID) bool
	HasOpenSession(dev objc.ID) bool
	Capabilities(dev objc.ID) Capabilities
	UUIDString(dev objc.ID) string
	SerialNumber(dev objc.ID) string
	USBVendorID(dev objc.ID) int
	USBProductID(dev objc.ID) int

	SetDelegate(dev, delegate objc.ID) error
	RequestOpenSession(dev objc.ID) error
	RequestCloseSession(dev objc.ID) error
	RequestEjectOrDisconnect(dev objc.ID) error
	RequestYield(dev objc.ID) error
}

// CameraNative is the set of typed adapters for ICCameraDevice selectors.
// Every method expects an ICCameraDevice receiver; receiver is the
// synthesized delegate object that gets the completion callback and token is
// passed through as the contextInfo pointer value.
type CameraNative interface {
	BatteryLevelAvailable(cam objc.ID) bool
	BatteryLevel(cam objc.ID) int
	ContentCatalogPercentCompleted(cam objc.ID) int
	MediaFiles(cam objc.ID) []objc.ID
	MountPoint(cam objc.ID) (string, bool)
	TimeOffset(cam objc.ID) time.Duration
	TetheredCaptureEnabled(cam objc.ID) bool
	IsAccessRestrictedAppleDevice(cam objc.ID) bool

	RequestSyncClock(cam objc.ID) error
	RequestEnableTethering(cam objc.ID) error
	RequestDisableTethering(cam objc.ID) error
	RequestTakePicture(cam objc.ID) error
	RequestDeleteFiles(cam objc.ID, files []objc.ID, receiver objc.ID, token uint64) error
	CancelDelete(cam objc.ID) error
	RequestDownloadFile(cam, file objc.ID, opts DownloadOptions, receiver objc.ID, token uint64) error
	CancelDownload(cam objc.ID) error
	RequestUploadFile(cam objc.ID, path string, receiver objc.ID, token uint64) error
	RequestReadDataFromFile(cam, file objc.ID, offset, length int64, receiver objc.ID, token uint64) error
	RequestSendPTPCommand(cam objc.ID, command, outData []byte, receiver objc.ID, token uint64) error
}

// FileNative is the set of typed adapters for ICCameraFile selectors.
type FileNative interface {
	FileName(file objc.ID) string
	FileUTI(file objc.ID) string
	FileSize(file objc.ID) int64
}

// Native is the full device-model boundary to ImageCaptureCore.
type Native interface {
	DeviceNative
	CameraNative
	FileNative
}

// Browser drives an ICDeviceBrowser.
type Browser interface {
	StartBrowsing(delegate objc.ID, mask BrowseMask) error
	StopBrowsing() error
	IsBrowsing() bool
}
