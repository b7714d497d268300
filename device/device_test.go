package device

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaban/imagecapture/objc"
)

type fakeCamera struct {
	typ     Type
	name    string
	caps    Capabilities
	battery int
	files   []objc.ID
}

// fakeNative records request selectors and serves attributes from a table.
type fakeNative struct {
	cams     map[objc.ID]*fakeCamera
	names    map[objc.ID]string
	utis     map[objc.ID]string
	calls    []string
	failNext error
}

func newFakeNative() *fakeNative {
	return &fakeNative{cams: map[objc.ID]*fakeCamera{}, names: map[objc.ID]string{}, utis: map[objc.ID]string{}}
}

func (f *fakeNative) call(sel string) error {
	f.calls = append(f.calls, sel)
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeNative) DeviceType(dev objc.ID) Type                { return f.cams[dev].typ }
func (f *fakeNative) Name(dev objc.ID) string                    { return f.cams[dev].name }
func (f *fakeNative) TransportType(objc.ID) Transport            { return TransportUSB }
func (f *fakeNative) LocationDescription(objc.ID) string         { return "USB" }
func (f *fakeNative) IsRemote(objc.ID) bool                      { return false }
func (f *fakeNative) HasOpenSession(objc.ID) bool                { return false }
func (f *fakeNative) Capabilities(dev objc.ID) Capabilities      { return f.cams[dev].caps }
func (f *fakeNative) UUIDString(objc.ID) string                  { return "00000000-0000-0000-0000-000000000001" }
func (f *fakeNative) SerialNumber(objc.ID) string                { return "SN1" }
func (f *fakeNative) USBVendorID(objc.ID) int                    { return 0x04a9 }
func (f *fakeNative) USBProductID(objc.ID) int                   { return 0x3294 }
func (f *fakeNative) SetDelegate(_, _ objc.ID) error             { return f.call("setDelegate:") }
func (f *fakeNative) RequestOpenSession(objc.ID) error           { return f.call("requestOpenSession") }
func (f *fakeNative) RequestCloseSession(objc.ID) error          { return f.call("requestCloseSession") }
func (f *fakeNative) RequestEjectOrDisconnect(objc.ID) error     { return f.call("requestEjectOrDisconnect") }
func (f *fakeNative) RequestYield(objc.ID) error                 { return f.call("requestYield") }
func (f *fakeNative) BatteryLevelAvailable(dev objc.ID) bool     { return f.cams[dev].battery >= 0 }
func (f *fakeNative) BatteryLevel(dev objc.ID) int               { return f.cams[dev].battery }
func (f *fakeNative) ContentCatalogPercentCompleted(objc.ID) int { return 140 }
func (f *fakeNative) MediaFiles(dev objc.ID) []objc.ID           { return f.cams[dev].files }
func (f *fakeNative) MountPoint(objc.ID) (string, bool)          { return "", false }
func (f *fakeNative) TimeOffset(objc.ID) time.Duration           { return 2 * time.Second }
func (f *fakeNative) TetheredCaptureEnabled(objc.ID) bool        { return false }
func (f *fakeNative) IsAccessRestrictedAppleDevice(objc.ID) bool { return false }
func (f *fakeNative) RequestSyncClock(objc.ID) error             { return f.call("requestSyncClock") }
func (f *fakeNative) RequestEnableTethering(objc.ID) error       { return f.call("requestEnableTethering") }
func (f *fakeNative) RequestDisableTethering(objc.ID) error      { return f.call("requestDisableTethering") }
func (f *fakeNative) RequestTakePicture(objc.ID) error           { return f.call("requestTakePicture") }
func (f *fakeNative) RequestDeleteFiles(_ objc.ID, _ []objc.ID, _ objc.ID, _ uint64) error {
	return f.call("requestDeleteFiles:")
}
func (f *fakeNative) CancelDelete(objc.ID) error { return f.call("cancelDelete") }
func (f *fakeNative) RequestDownloadFile(_, _ objc.ID, _ DownloadOptions, _ objc.ID, _ uint64) error {
	return f.call("requestDownloadFile:")
}
func (f *fakeNative) CancelDownload(objc.ID) error { return f.call("cancelDownload") }
func (f *fakeNative) RequestUploadFile(_ objc.ID, _ string, _ objc.ID, _ uint64) error {
	return f.call("requestUploadFile:")
}
func (f *fakeNative) RequestReadDataFromFile(_, _ objc.ID, _, _ int64, _ objc.ID, _ uint64) error {
	return f.call("requestReadDataFromFile:")
}
func (f *fakeNative) RequestSendPTPCommand(_ objc.ID, _, _ []byte, _ objc.ID, _ uint64) error {
	return f.call("requestSendPTPCommand:")
}
func (f *fakeNative) FileName(file objc.ID) string { return f.names[file] }
func (f *fakeNative) FileUTI(file objc.ID) string {
	if uti, ok := f.utis[file]; ok {
		return uti
	}
	return "public.jpeg"
}
func (f *fakeNative) FileSize(objc.ID) int64 { return 4096 }

func newCamera(t *testing.T, caps Capabilities) (*fakeNative, *Camera) {
	t.Helper()
	n := newFakeNative()
	n.cams[0x100] = &fakeCamera{
		typ:     TypeCamera,
		name:    "EOS 80D",
		caps:    caps,
		battery: 80,
		files:   []objc.ID{0x201, 0, 0x202},
	}
	n.names[0x201] = "IMG_0001.JPG"
	n.names[0x202] = "IMG_0002.JPG"
	cam, err := New(n, 0x100).Camera()
	require.NoError(t, err)
	return n, cam
}

func TestDeviceInfo(t *testing.T) {
	_, cam := newCamera(t, NewCapabilities(CanSyncClock))

	info, err := cam.Info()
	require.NoError(t, err)
	assert.Equal(t, TypeCamera, info.Type)
	assert.Equal(t, "EOS 80D", info.Name)
	assert.Equal(t, TransportUSB, info.Transport)
	assert.True(t, info.Capabilities.Has(CanSyncClock))
	assert.False(t, info.Capabilities.Has(CanTakePicture))
}

func TestCameraStatusClampsPercentages(t *testing.T) {
	_, cam := newCamera(t, 0)

	st, err := cam.Status()
	require.NoError(t, err)
	assert.True(t, st.BatteryLevelAvailable)
	assert.Equal(t, 80, st.BatteryLevel)
	assert.Equal(t, 100, st.ContentCatalogPercentCompleted)
	assert.Equal(t, 2*time.Second, st.TimeOffset)
	assert.False(t, st.HasMountPoint)
}

func TestNotCamera(t *testing.T) {
	n := newFakeNative()
	n.cams[0x300] = &fakeCamera{typ: TypeScanner, name: "Scanner"}

	_, err := New(n, 0x300).Camera()
	assert.ErrorIs(t, err, ErrNotCamera)
}

func TestInvalidatedDeviceRefusesEveryCall(t *testing.T) {
	n, cam := newCamera(t, NewCapabilities(CanTakePicture, CanSyncClock))
	files, err := cam.MediaFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)

	cam.Invalidate()
	assert.False(t, cam.Valid())

	_, err = cam.Info()
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.ErrorIs(t, cam.RequestOpenSession(), ErrInvalidHandle)
	assert.ErrorIs(t, cam.RequestSyncClock(), ErrInvalidHandle)
	assert.ErrorIs(t, cam.RequestTakePicture(), ErrInvalidHandle)
	_, err = files[0].Info()
	assert.ErrorIs(t, err, ErrInvalidHandle)

	assert.Empty(t, n.calls, "no native call may follow invalidation")
}

func TestNilHandleIsInvalid(t *testing.T) {
	d := New(newFakeNative(), objc.Nil)
	assert.False(t, d.Valid())
	_, err := d.Name()
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestCapabilityGate(t *testing.T) {
	tests := []struct {
		name string
		caps Capabilities
		call func(*Camera) error
		sel  string
	}{
		{"sync clock", NewCapabilities(CanSyncClock), (*Camera).RequestSyncClock, "requestSyncClock"},
		{"take picture", NewCapabilities(CanTakePicture), (*Camera).RequestTakePicture, "requestTakePicture"},
		{"tethering", NewCapabilities(CanTakePicture), (*Camera).RequestEnableTethering, "requestEnableTethering"},
		{"upload", NewCapabilities(CanReceiveFile), func(c *Camera) error {
			return c.RequestUploadFile("/tmp/a.jpg", 0x900, 1)
		}, "requestUploadFile:"},
		{"ptp", NewCapabilities(CanAcceptPTPCommands), func(c *Camera) error {
			return c.RequestSendPTPCommand([]byte{0x0c, 0, 0, 0, 1, 0, 0x01, 0x10}, nil, 0x900, 1)
		}, "requestSendPTPCommand:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, cam := newCamera(t, 0)
			assert.ErrorIs(t, tt.call(cam), ErrCapabilityMissing)
			assert.Empty(t, n.calls)

			n, cam = newCamera(t, tt.caps)
			require.NoError(t, tt.call(cam))
			assert.Equal(t, []string{tt.sel}, n.calls)
		})
	}
}

func TestDeleteAcceptsEitherDeleteCapability(t *testing.T) {
	for _, c := range []Capability{CanDeleteOneFile, CanDeleteAllFiles} {
		n, cam := newCamera(t, NewCapabilities(c))
		files, err := cam.MediaFiles()
		require.NoError(t, err)
		require.NoError(t, cam.RequestDeleteFiles(files[:1], 0x900, 1))
		assert.Equal(t, []string{"requestDeleteFiles:"}, n.calls)
	}

	_, cam := newCamera(t, NewCapabilities(CanDeleteOneFile))
	assert.ErrorIs(t, cam.RequestDeleteFiles(nil, 0x900, 1), ErrInvalidArgument)
}

func TestMediaFilesSkipsNilAndReadsInfo(t *testing.T) {
	_, cam := newCamera(t, 0)

	files, err := cam.MediaFiles()
	require.NoError(t, err)
	require.Len(t, files, 2)

	info, err := files[1].Info()
	require.NoError(t, err)
	assert.Equal(t, "IMG_0002.JPG", info.Name)
	assert.Equal(t, int64(4096), info.Size)
	assert.Same(t, cam.Device, files[1].Owner())
}

func TestFilesOfType(t *testing.T) {
	n, cam := newCamera(t, 0)
	n.utis[0x202] = "com.canon.cr2-raw-image"

	raw, err := cam.FilesOfType("com.canon.cr2-raw-image")
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, objc.ID(0x202), raw[0].Handle())

	none, err := cam.FilesOfType("public.mpeg-4")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPTPCommandMustNotBeEmpty(t *testing.T) {
	n, cam := newCamera(t, NewCapabilities(CanAcceptPTPCommands))
	assert.ErrorIs(t, cam.RequestSendPTPCommand(nil, nil, 0x900, 1), ErrInvalidArgument)
	assert.Empty(t, n.calls)
}

func TestForeignFileRejected(t *testing.T) {
	_, a := newCamera(t, NewCapabilities(CanDeleteOneFile))
	_, b := newCamera(t, NewCapabilities(CanDeleteOneFile))
	files, err := b.MediaFiles()
	require.NoError(t, err)

	assert.ErrorIs(t, a.RequestDownloadFile(files[0], DownloadOptions{}, 0x900, 1), ErrForeignFile)
	assert.ErrorIs(t, a.RequestDeleteFiles(files, 0x900, 1), ErrForeignFile)
}

func TestReadArgumentsValidated(t *testing.T) {
	n, cam := newCamera(t, 0)
	files, err := cam.MediaFiles()
	require.NoError(t, err)

	assert.ErrorIs(t, cam.RequestReadDataFromFile(files[0], -1, 10, 0x900, 1), ErrInvalidArgument)
	assert.ErrorIs(t, cam.RequestReadDataFromFile(files[0], 0, 0, 0x900, 1), ErrInvalidArgument)
	assert.Empty(t, n.calls)
	require.NoError(t, cam.RequestReadDataFromFile(files[0], 0, 512, 0x900, 1))
}

func TestNativeFailureIsWrapped(t *testing.T) {
	n, cam := newCamera(t, 0)
	boom := &objc.Exception{Name: "NSInvalidArgumentException", Reason: "boom", Selector: "requestOpenSession"}
	n.failNext = boom

	err := cam.RequestOpenSession()
	assert.ErrorIs(t, err, ErrNativeCallFailed)
	var ex *objc.Exception
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, "boom", ex.Reason)
}

func TestCapabilityParsing(t *testing.T) {
	caps := ParseCapabilities([]string{"ICCameraDeviceCanSyncClock", "can-take-picture", "ICCameraDeviceCanFly"})
	assert.Equal(t, []Capability{CanTakePicture, CanSyncClock}, caps.List())
	assert.Equal(t, "{can-take-picture, can-sync-clock}", caps.String())

	_, ok := ParseCapability("nope")
	assert.False(t, ok)
	assert.Equal(t, TransportExFAT, ParseTransport("ICTransportTypeExFAT"))
	assert.Equal(t, TransportUnknown, ParseTransport("ICTransportTypeCarrierPigeon"))
}
