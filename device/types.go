package device

import (
	"strings"
	"time"
)

// Type is the coarse device class reported by -[ICDevice type].
type Type int

const (
	TypeOther Type = iota
	TypeCamera
	TypeScanner
)

func (t Type) String() string {
	switch t {
	case TypeCamera:
		return "camera"
	case TypeScanner:
		return "scanner"
	default:
		return "other"
	}
}

// Transport mirrors the ICTransportType* string constants.
type Transport string

const (
	TransportUSB         Transport = "usb"
	TransportFireWire    Transport = "firewire"
	TransportBluetooth   Transport = "bluetooth"
	TransportTCPIP       Transport = "tcpip"
	TransportMassStorage Transport = "mass-storage"
	TransportExFAT       Transport = "exfat"
	TransportUnknown     Transport = "unknown"
)

// ParseTransport maps a native ICTransportType* value to a Transport.
func ParseTransport(native string) Transport {
	switch native {
	case "ICTransportTypeUSB":
		return TransportUSB
	case "ICTransportTypeFireWire":
		return TransportFireWire
	case "ICTransportTypeBluetooth":
		return TransportBluetooth
	case "ICTransportTypeTCPIP":
		return TransportTCPIP
	case "ICTransportTypeMassStorage":
		return TransportMassStorage
	case "ICTransportTypeExFAT":
		return TransportExFAT
	}
	return TransportUnknown
}

// Capability is one tag of the framework's closed capability vocabulary.
type Capability uint8

const (
	CanTakePicture Capability = 1 << iota
	CanDeleteOneFile
	CanDeleteAllFiles
	CanSyncClock
	CanReceiveFile
	CanAcceptPTPCommands
)

var capabilityNames = []struct {
	cap    Capability
	name   string
	native string
}{
	{CanTakePicture, "can-take-picture", "ICCameraDeviceCanTakePicture"},
	{CanDeleteOneFile, "can-delete-one-file", "ICCameraDeviceCanDeleteOneFile"},
	{CanDeleteAllFiles, "can-delete-all-files", "ICCameraDeviceCanDeleteAllFiles"},
	{CanSyncClock, "can-sync-clock", "ICCameraDeviceCanSyncClock"},
	{CanReceiveFile, "can-receive-file", "ICCameraDeviceCanReceiveFile"},
	{CanAcceptPTPCommands, "can-accept-ptp-commands", "ICCameraDeviceCanAcceptPTPCommands"},
}

func (c Capability) String() string {
	for _, n := range capabilityNames {
		if n.cap == c {
			return n.name
		}
	}
	return "unknown"
}

// ParseCapability accepts either the tag name ("can-sync-clock") or the
// framework constant ("ICCameraDeviceCanSyncClock"). Unknown names report false.
func ParseCapability(s string) (Capability, bool) {
	for _, n := range capabilityNames {
		if s == n.name || s == n.native {
			return n.cap, true
		}
	}
	return 0, false
}

// Capabilities is a set of Capability tags.
type Capabilities uint8

// NewCapabilities builds a set from individual tags.
func NewCapabilities(caps ...Capability) Capabilities {
	var s Capabilities
	for _, c := range caps {
		s |= Capabilities(c)
	}
	return s
}

// ParseCapabilities decodes native capability strings, ignoring unknown tags.
func ParseCapabilities(names []string) Capabilities {
	var s Capabilities
	for _, n := range names {
		if c, ok := ParseCapability(n); ok {
			s |= Capabilities(c)
		}
	}
	return s
}

// Has reports whether c is in the set.
func (s Capabilities) Has(c Capability) bool { return s&Capabilities(c) != 0 }

// List returns the tags in vocabulary order.
func (s Capabilities) List() []Capability {
	var out []Capability
	for _, n := range capabilityNames {
		if s.Has(n.cap) {
			out = append(out, n.cap)
		}
	}
	return out
}

func (s Capabilities) String() string {
	names := make([]string, 0, len(capabilityNames))
	for _, c := range s.List() {
		names = append(names, c.String())
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// Info is a point-in-time reading of the generic device attributes.
type Info struct {
	Type                Type
	Name                string
	Transport           Transport
	LocationDescription string
	IsRemote            bool
	HasOpenSession      bool
	Capabilities        Capabilities
	UUID                string
	SerialNumber        string
	USBVendorID         int
	USBProductID        int
}

// CameraStatus is a point-in-time reading of the camera-specific attributes.
type CameraStatus struct {
	BatteryLevelAvailable          bool
	BatteryLevel                   int // 0–100, meaningful only when BatteryLevelAvailable
	ContentCatalogPercentCompleted int // 0–100
	MountPoint                     string
	HasMountPoint                  bool
	TimeOffset                     time.Duration
	TetheredCaptureEnabled         bool
	AccessRestricted               bool
}

// FileInfo describes one media file on a camera.
type FileInfo struct {
	Name string
	UTI  string
	Size int64
}

// DownloadOptions map to the framework's download option keys
// (ICDownloadsDirectoryURL, ICSaveAsFilename, ICOverwrite,
// ICDeleteAfterSuccessfulDownload, ICDownloadSidecarFiles).
type DownloadOptions struct {
	Directory           string
	SaveAs              string
	Overwrite           bool
	DeleteAfterDownload bool
	Sidecars            bool
}

// DownloadResult is the payload of a successful download completion
// (ICSavedFilename, ICSavedAncillaryFiles).
type DownloadResult struct {
	SavedFilename  string
	AncillaryFiles []string
}

// BrowseMask selects which devices the browser reports.
type BrowseMask struct {
	Cameras  bool
	Scanners bool
	Local    bool
	Remote   bool
}

// DefaultBrowseMask browses local and remote cameras.
func DefaultBrowseMask() BrowseMask {
	return BrowseMask{Cameras: true, Local: true, Remote: true}
}
