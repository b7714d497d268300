package imagecapture

import (
	"github.com/google/uuid"

	"github.com/shaban/imagecapture/device"
)

// DeviceRef identifies a device in notifications. Name and Type are read
// once at discovery so they stay available after removal.
type DeviceRef struct {
	ID    uuid.UUID
	Name  string
	Type  device.Type
	State State
}

// Handlers are the caller's notification callbacks. All of them run on the
// loop thread; nil handlers are skipped. Errors with no handler to go to
// reach Config.ErrorHandler.
type Handlers struct {
	// DevicesChanged fires once per browser batch, after the last device of
	// the batch was registered.
	DevicesChanged func(devices []DeviceRef)
	DeviceAdded    func(DeviceRef)
	DeviceRemoved  func(DeviceRef)

	// SessionOpened is the "device ready" notification on success.
	SessionOpened func(DeviceRef, error)
	SessionClosed func(DeviceRef, error)
	StateChanged  func(ref DeviceRef, from State)

	ContentCatalogReady func(DeviceRef)
	ItemsAdded          func(DeviceRef, []device.File)
	ItemsRemoved        func(DeviceRef, []device.File)

	// Default completion handlers for requests issued without one.
	TransferCompleted func(TransferResult)
	DeleteCompleted   func(DeleteResult)
}
