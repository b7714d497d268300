package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shaban/imagecapture/delegate"
	"github.com/shaban/imagecapture/device"
	"github.com/shaban/imagecapture/objc"
	"github.com/shaban/imagecapture/runloop"
)

// Simulator is an in-memory ImageCaptureCore. It implements device.Native,
// device.Browser and delegate.Runtime, and delivers every callback by
// posting it to the run loop the way the framework delivers on the main
// thread. Tests drive the "hardware" side with Plug, ConfirmOpen and friends.
type Simulator struct {
	loop runloop.Loop

	mu        sync.Mutex
	next      objc.ID
	devices   map[objc.ID]*SimDevice
	files     map[objc.ID]*SimFile
	order     []objc.ID
	browsing  bool
	browser   objc.ID
	mask      device.BrowseMask
	classes   map[string]delegate.Role
	foreign   map[string]bool
	receivers map[objc.ID]binding
	released  int
	calls     []Call
	failNext  map[string]error

	// OnNewReceiver runs inside NewReceiver before it returns.
	OnNewReceiver func()
}

type binding struct {
	d   delegate.Dispatcher
	tok delegate.Token
}

// SimDevice describes a simulated device. Handle is assigned by Plug.
type SimDevice struct {
	Handle       objc.ID
	Type         device.Type
	Name         string
	Transport    device.Transport
	Capabilities device.Capabilities
	Battery      int // negative means unavailable
	Files        []*SimFile

	delegate    objc.ID
	open        bool
	transferRcv objc.ID
	deleteRcv   objc.ID
}

// SimFile is a media file on a SimDevice. Handle is assigned by Plug.
type SimFile struct {
	Handle objc.ID
	Name   string
	UTI    string
	Size   int64
}

// Call is one recorded native request.
type Call struct {
	Selector string
	Device   objc.ID
	Token    uint64
}

// NewSimulator creates a simulator delivering callbacks on loop.
func NewSimulator(loop runloop.Loop) *Simulator {
	return &Simulator{
		loop:      loop,
		next:      0x1000,
		devices:   make(map[objc.ID]*SimDevice),
		files:     make(map[objc.ID]*SimFile),
		classes:   make(map[string]delegate.Role),
		foreign:   make(map[string]bool),
		receivers: make(map[objc.ID]binding),
		failNext:  make(map[string]error),
	}
}

// Camera returns a camera description with the given capabilities.
func Camera(name string, caps ...device.Capability) *SimDevice {
	return &SimDevice{
		Type:         device.TypeCamera,
		Name:         name,
		Transport:    device.TransportUSB,
		Capabilities: device.NewCapabilities(caps...),
		Battery:      75,
	}
}

func (s *Simulator) alloc() objc.ID {
	s.next += 0x10
	return s.next
}

func (s *Simulator) post(fn func()) {
	if err := s.loop.Post(func(context.Context) { fn() }); err != nil {
		panic(fmt.Sprintf("simulator post: %v", err))
	}
}

// Hardware side

// Plug connects d and, while browsing, reports it to the browser delegate.
func (s *Simulator) Plug(d *SimDevice, moreComing bool) objc.ID {
	s.mu.Lock()
	d.Handle = s.alloc()
	for _, f := range d.Files {
		f.Handle = s.alloc()
		s.files[f.Handle] = f
	}
	s.devices[d.Handle] = d
	s.order = append(s.order, d.Handle)
	browsing, browser := s.browsing, s.browser
	s.mu.Unlock()

	if browsing {
		h := d.Handle
		s.post(func() {
			if reg := s.resolve(browser, "deviceBrowser:didAddDevice:moreComing:"); reg != nil {
				reg.BrowserDidAddDevice(h, moreComing)
			}
		})
	}
	return d.Handle
}

// Unplug removes the device. Like the framework, it tells the device's
// delegate first and the browser second.
func (s *Simulator) Unplug(h objc.ID, moreGoing bool) {
	s.mu.Lock()
	d := s.devices[h]
	browsing, browser := s.browsing, s.browser
	s.mu.Unlock()
	if d == nil {
		return
	}
	s.post(func() {
		if reg := s.resolve(s.delegateOf(h), "didRemoveDevice:"); reg != nil {
			reg.DidRemoveDevice(h)
		}
		if browsing {
			if reg := s.resolve(browser, "deviceBrowser:didRemoveDevice:moreGoing:"); reg != nil {
				reg.BrowserDidRemoveDevice(h, moreGoing)
			}
		}
		s.mu.Lock()
		delete(s.devices, h)
		for i, o := range s.order {
			if o == h {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	})
}

// ConfirmOpen answers a pending open request.
func (s *Simulator) ConfirmOpen(h objc.ID, err error) {
	s.post(func() {
		s.mu.Lock()
		if d := s.devices[h]; d != nil && err == nil {
			d.open = true
		}
		s.mu.Unlock()
		if reg := s.resolve(s.delegateOf(h), "device:didOpenSessionWithError:"); reg != nil {
			reg.DeviceDidOpenSession(h, err)
		}
	})
}

// ConfirmClose answers a pending close request, or closes on the device's
// own initiative.
func (s *Simulator) ConfirmClose(h objc.ID, err error) {
	s.post(func() {
		s.mu.Lock()
		if d := s.devices[h]; d != nil && err == nil {
			d.open = false
		}
		s.mu.Unlock()
		if reg := s.resolve(s.delegateOf(h), "device:didCloseSessionWithError:"); reg != nil {
			reg.DeviceDidCloseSession(h, err)
		}
	})
}

func (s *Simulator) CatalogReady(h objc.ID) {
	s.post(func() {
		if reg := s.resolve(s.delegateOf(h), "deviceDidBecomeReadyWithCompleteContentCatalog:"); reg != nil {
			reg.DeviceDidBecomeReady(h)
		}
	})
}

// AddFile puts a new file on the device and reports it, as after a capture.
func (s *Simulator) AddFile(h objc.ID, f *SimFile) objc.ID {
	s.mu.Lock()
	f.Handle = s.alloc()
	s.files[f.Handle] = f
	if d := s.devices[h]; d != nil {
		d.Files = append(d.Files, f)
	}
	s.mu.Unlock()
	fh := f.Handle
	s.post(func() {
		if reg := s.resolve(s.delegateOf(h), "cameraDevice:didAddItems:"); reg != nil {
			reg.DidAddItems(h, []objc.ID{fh})
		}
	})
	return fh
}

// CompleteDownload delivers a download completion for token.
func (s *Simulator) CompleteDownload(h, file objc.ID, token uint64, res device.DownloadResult, err error) {
	s.post(func() {
		if reg := s.resolve(s.transferReceiver(h), "didDownloadFile:error:options:contextInfo:"); reg != nil {
			reg.DidDownloadFile(h, file, token, res, err)
		}
	})
}

func (s *Simulator) CompleteUpload(h objc.ID, path string, token uint64, err error) {
	s.post(func() {
		if reg := s.resolve(s.transferReceiver(h), "didUploadFile:error:contextInfo:"); reg != nil {
			reg.DidUploadFile(h, path, token, err)
		}
	})
}

func (s *Simulator) CompleteRead(h, file objc.ID, token uint64, data []byte, err error) {
	s.post(func() {
		if reg := s.resolve(s.transferReceiver(h), "didReadData:fromFile:error:contextInfo:"); reg != nil {
			reg.DidReadData(h, file, token, data, err)
		}
	})
}

// CompleteDelete runs the completion block of the delete issued with token.
func (s *Simulator) CompleteDelete(h objc.ID, token uint64, deleted, failed []objc.ID, err error) {
	s.post(func() {
		s.mu.Lock()
		rcv := objc.Nil
		if d := s.devices[h]; d != nil {
			rcv = d.deleteRcv
		}
		s.mu.Unlock()
		if reg := s.resolve(rcv, "requestDeleteFiles:completion"); reg != nil {
			reg.DidDeleteFiles(h, token, deleted, failed, err)
		}
	})
}

// CompletePTP answers a PTP command with its data-in phase and response.
func (s *Simulator) CompletePTP(h objc.ID, token uint64, data, response []byte, err error) {
	s.post(func() {
		if reg := s.resolve(s.transferReceiver(h), "didSendPTPCommand:inData:response:error:contextInfo:"); reg != nil {
			reg.DidSendPTPCommand(h, token, data, response, err)
		}
	})
}

// Inspection

// Calls returns the recorded native requests.
func (s *Simulator) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount counts recorded requests with the given selector.
func (s *Simulator) CallCount(selector string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Selector == selector {
			n++
		}
	}
	return n
}

// LastToken returns the contextInfo of the latest call with selector.
func (s *Simulator) LastToken(selector string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].Selector == selector {
			return s.calls[i].Token
		}
	}
	return 0
}

// FailNext makes the next call of selector return err.
func (s *Simulator) FailNext(selector string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[selector] = err
}

// AddForeignClass claims an Objective-C class name as if another library
// had registered it.
func (s *Simulator) AddForeignClass(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.foreign[name] = true
}

// LiveReceivers counts receivers not yet released.
func (s *Simulator) LiveReceivers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.receivers)
}

// Released counts released receivers.
func (s *Simulator) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// DelegateOf returns the delegate currently installed on a device.
func (s *Simulator) DelegateOf(h objc.ID) objc.ID { return s.delegateOf(h) }

func (s *Simulator) delegateOf(h objc.ID) objc.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.devices[h]; d != nil {
		return d.delegate
	}
	return objc.Nil
}

func (s *Simulator) transferReceiver(h objc.ID) objc.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.devices[h]; d != nil {
		return d.transferRcv
	}
	return objc.Nil
}

// resolve maps a receiver to its live registration. Callbacks to a
// released receiver go nowhere, like messages to a zeroed ivar.
func (s *Simulator) resolve(rcv objc.ID, callback string) *delegate.Registration {
	if rcv.IsNil() {
		return nil
	}
	s.mu.Lock()
	b, ok := s.receivers[rcv]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	reg, ok := b.d.Resolve(b.tok)
	if !ok {
		if r, isReg := b.d.(*delegate.Registry); isReg {
			r.DropUnknown(b.tok, callback)
		}
		return nil
	}
	return reg
}

func (s *Simulator) record(sel string, h objc.ID, tok uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Selector: sel, Device: h, Token: tok})
	if err, ok := s.failNext[sel]; ok {
		delete(s.failNext, sel)
		return err
	}
	return nil
}

func (s *Simulator) dev(h objc.ID) *SimDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.devices[h]; d != nil {
		return d
	}
	return &SimDevice{Battery: -1}
}

// device.DeviceNative

func (s *Simulator) DeviceType(h objc.ID) device.Type           { return s.dev(h).Type }
func (s *Simulator) Name(h objc.ID) string                      { return s.dev(h).Name }
func (s *Simulator) TransportType(h objc.ID) device.Transport   { return s.dev(h).Transport }
func (s *Simulator) LocationDescription(objc.ID) string         { return "simulated" }
func (s *Simulator) IsRemote(objc.ID) bool                      { return false }
func (s *Simulator) Capabilities(h objc.ID) device.Capabilities { return s.dev(h).Capabilities }
func (s *Simulator) SerialNumber(h objc.ID) string              { return fmt.Sprintf("SIM-%x", uint64(h)) }
func (s *Simulator) USBVendorID(objc.ID) int                    { return 0x04a9 }
func (s *Simulator) USBProductID(objc.ID) int                   { return 0x3294 }

func (s *Simulator) HasOpenSession(h objc.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.devices[h]
	return d != nil && d.open
}

func (s *Simulator) UUIDString(h objc.ID) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012x", uint64(h))
}

func (s *Simulator) SetDelegate(h, rcv objc.ID) error {
	if err := s.record("setDelegate:", h, 0); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.devices[h]; d != nil {
		d.delegate = rcv
	}
	return nil
}

func (s *Simulator) RequestOpenSession(h objc.ID) error  { return s.record("requestOpenSession", h, 0) }
func (s *Simulator) RequestCloseSession(h objc.ID) error { return s.record("requestCloseSession", h, 0) }
func (s *Simulator) RequestYield(h objc.ID) error        { return s.record("requestYield", h, 0) }

func (s *Simulator) RequestEjectOrDisconnect(h objc.ID) error {
	return s.record("requestEjectOrDisconnect", h, 0)
}

// device.CameraNative

func (s *Simulator) BatteryLevelAvailable(h objc.ID) bool       { return s.dev(h).Battery >= 0 }
func (s *Simulator) BatteryLevel(h objc.ID) int                 { return s.dev(h).Battery }
func (s *Simulator) ContentCatalogPercentCompleted(objc.ID) int { return 100 }
func (s *Simulator) MountPoint(objc.ID) (string, bool)          { return "", false }
func (s *Simulator) TimeOffset(objc.ID) time.Duration           { return 0 }
func (s *Simulator) TetheredCaptureEnabled(objc.ID) bool        { return false }
func (s *Simulator) IsAccessRestrictedAppleDevice(objc.ID) bool { return false }

func (s *Simulator) MediaFiles(h objc.ID) []objc.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.devices[h]
	if d == nil {
		return nil
	}
	out := make([]objc.ID, 0, len(d.Files))
	for _, f := range d.Files {
		out = append(out, f.Handle)
	}
	return out
}

func (s *Simulator) RequestSyncClock(h objc.ID) error { return s.record("requestSyncClock", h, 0) }
func (s *Simulator) RequestTakePicture(h objc.ID) error {
	return s.record("requestTakePicture", h, 0)
}
func (s *Simulator) RequestEnableTethering(h objc.ID) error {
	return s.record("requestEnableTethering", h, 0)
}
func (s *Simulator) RequestDisableTethering(h objc.ID) error {
	return s.record("requestDisableTethering", h, 0)
}
func (s *Simulator) CancelDelete(h objc.ID) error   { return s.record("cancelDelete", h, 0) }
func (s *Simulator) CancelDownload(h objc.ID) error { return s.record("cancelDownload", h, 0) }

func (s *Simulator) RequestDeleteFiles(h objc.ID, _ []objc.ID, rcv objc.ID, tok uint64) error {
	if err := s.record("requestDeleteFiles:deleteFailed:completion:", h, tok); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.devices[h]; d != nil {
		d.deleteRcv = rcv
	}
	return nil
}

func (s *Simulator) RequestDownloadFile(h, _ objc.ID, _ device.DownloadOptions, rcv objc.ID, tok uint64) error {
	return s.transfer("requestDownloadFile:options:downloadDelegate:didDownloadSelector:contextInfo:", h, rcv, tok)
}

func (s *Simulator) RequestUploadFile(h objc.ID, _ string, rcv objc.ID, tok uint64) error {
	return s.transfer("requestUploadFile:options:uploadDelegate:didUploadSelector:contextInfo:", h, rcv, tok)
}

func (s *Simulator) RequestReadDataFromFile(h, _ objc.ID, _, _ int64, rcv objc.ID, tok uint64) error {
	return s.transfer("requestReadDataFromFile:atOffset:length:readDelegate:didReadDataSelector:contextInfo:", h, rcv, tok)
}

func (s *Simulator) RequestSendPTPCommand(h objc.ID, _, _ []byte, rcv objc.ID, tok uint64) error {
	return s.transfer("requestSendPTPCommand:outData:sendCommandDelegate:didSendCommandSelector:contextInfo:", h, rcv, tok)
}

func (s *Simulator) transfer(sel string, h, rcv objc.ID, tok uint64) error {
	if err := s.record(sel, h, tok); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.devices[h]; d != nil {
		d.transferRcv = rcv
	}
	return nil
}

// device.FileNative

func (s *Simulator) file(h objc.ID) *SimFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.files[h]; f != nil {
		return f
	}
	return &SimFile{}
}

func (s *Simulator) FileName(h objc.ID) string { return s.file(h).Name }
func (s *Simulator) FileUTI(h objc.ID) string  { return s.file(h).UTI }
func (s *Simulator) FileSize(h objc.ID) int64  { return s.file(h).Size }

// device.Browser

// StartBrowsing reports every plugged device to the new browser delegate.
func (s *Simulator) StartBrowsing(rcv objc.ID, mask device.BrowseMask) error {
	if err := s.record("start", objc.Nil, 0); err != nil {
		return err
	}
	s.mu.Lock()
	s.browsing = true
	s.browser = rcv
	s.mask = mask
	present := append([]objc.ID(nil), s.order...)
	s.mu.Unlock()

	for i, h := range present {
		h, more := h, i < len(present)-1
		s.post(func() {
			if reg := s.resolve(rcv, "deviceBrowser:didAddDevice:moreComing:"); reg != nil {
				reg.BrowserDidAddDevice(h, more)
			}
		})
	}
	return nil
}

func (s *Simulator) StopBrowsing() error {
	if err := s.record("stop", objc.Nil, 0); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.browsing = false
	s.browser = objc.Nil
	return nil
}

func (s *Simulator) IsBrowsing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browsing
}

// Mask returns the mask of the last StartBrowsing call.
func (s *Simulator) Mask() device.BrowseMask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mask
}

// delegate.Runtime

func (s *Simulator) ClassExists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.classes[name]
	return ok || s.foreign[name]
}

func (s *Simulator) DefineClass(name string, role delegate.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[name] = role
	return nil
}

func (s *Simulator) NewReceiver(class string, d delegate.Dispatcher, tok delegate.Token) (objc.ID, error) {
	if s.OnNewReceiver != nil {
		s.OnNewReceiver()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rcv := s.alloc()
	s.receivers[rcv] = binding{d: d, tok: tok}
	return rcv, nil
}

func (s *Simulator) ReleaseReceiver(rcv objc.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receivers[rcv]; ok {
		delete(s.receivers, rcv)
		s.released++
	}
}

var (
	_ device.Native    = (*Simulator)(nil)
	_ device.Browser   = (*Simulator)(nil)
	_ delegate.Runtime = (*Simulator)(nil)
)
