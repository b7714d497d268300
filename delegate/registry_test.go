package delegate

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaban/imagecapture/objc"
)

type fakeRuntime struct {
	mu       sync.Mutex
	foreign  map[string]bool
	defined  map[string]Role
	next     objc.ID
	bound    map[objc.ID]Token
	released []objc.ID
	gate     chan struct{} // when set, NewReceiver blocks until closed
	entered  chan struct{}
	failNew  error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		foreign: map[string]bool{},
		defined: map[string]Role{},
		next:    0x1000,
		bound:   map[objc.ID]Token{},
	}
}

func (f *fakeRuntime) ClassExists(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.defined[name]
	return ok || f.foreign[name]
}

func (f *fakeRuntime) DefineClass(name string, role Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defined[name] = role
	return nil
}

func (f *fakeRuntime) NewReceiver(_ string, _ Dispatcher, tok Token) (objc.ID, error) {
	if f.entered != nil {
		close(f.entered)
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNew != nil {
		return objc.Nil, f.failNew
	}
	f.next += 0x10
	f.bound[f.next] = tok
	return f.next, nil
}

func (f *fakeRuntime) ReleaseReceiver(recv objc.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bound, recv)
	f.released = append(f.released, recv)
}

func TestRegisterBrowserOnce(t *testing.T) {
	rt := newFakeRuntime()
	r := NewRegistry(rt, Options{ClassPrefix: "TestOnce"})

	reg, err := r.RegisterBrowser(BrowserHandlers{})
	require.NoError(t, err)
	assert.Equal(t, RoleBrowser, reg.Role())
	assert.False(t, reg.Receiver().IsNil())
	assert.Equal(t, "TestOnceBrowserDelegate", r.ClassName(RoleBrowser))

	_, err = r.RegisterBrowser(BrowserHandlers{})
	assert.ErrorIs(t, err, ErrRegistrationConflict)

	require.NoError(t, reg.Release())
	_, err = r.RegisterBrowser(BrowserHandlers{})
	assert.NoError(t, err, "browser slot is free again after release")
}

func TestConcurrentBrowserRegistrationConflicts(t *testing.T) {
	rt := newFakeRuntime()
	rt.gate = make(chan struct{})
	rt.entered = make(chan struct{})
	r := NewRegistry(rt, Options{ClassPrefix: "TestRace"})

	var (
		first    *Registration
		firstErr error
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = r.RegisterBrowser(BrowserHandlers{})
	}()

	select {
	case <-rt.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first registration never reached the runtime")
	}

	_, err := r.RegisterBrowser(BrowserHandlers{})
	assert.ErrorIs(t, err, ErrRegistrationConflict)

	close(rt.gate)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, 1, r.Live())
	assert.Equal(t, RoleBrowser, first.Role())
}

func TestForeignClassConflicts(t *testing.T) {
	rt := newFakeRuntime()
	rt.foreign["TestForeignBrowserDelegate"] = true
	r := NewRegistry(rt, Options{ClassPrefix: "TestForeign"})

	_, err := r.RegisterBrowser(BrowserHandlers{})
	assert.ErrorIs(t, err, ErrRegistrationConflict)
	assert.Zero(t, r.Live())
}

func TestDefineIsIdempotentAcrossRegistries(t *testing.T) {
	rt := newFakeRuntime()
	a := NewRegistry(rt, Options{ClassPrefix: "TestShared"})
	b := NewRegistry(rt, Options{ClassPrefix: "TestShared"})

	require.NoError(t, a.Define(RoleDeviceSession))
	require.NoError(t, a.Define(RoleDeviceSession))
	require.NoError(t, b.Define(RoleDeviceSession))
}

func TestReleaseExactlyOnce(t *testing.T) {
	rt := newFakeRuntime()
	r := NewRegistry(rt, Options{ClassPrefix: "TestRelease"})

	reg, err := r.RegisterSession(0x42, SessionHandlers{})
	require.NoError(t, err)
	recv := reg.Receiver()

	require.NoError(t, reg.Release())
	assert.ErrorIs(t, reg.Release(), ErrReleased)
	assert.Equal(t, []objc.ID{recv}, rt.released)

	_, ok := r.Resolve(reg.Token())
	assert.False(t, ok)
	_, err = r.RegisterSession(0x42, SessionHandlers{})
	assert.NoError(t, err, "release frees the device's slot")
}

func TestSessionPerDevice(t *testing.T) {
	r := NewRegistry(newFakeRuntime(), Options{ClassPrefix: "TestPerDevice"})

	_, err := r.RegisterSession(0x42, SessionHandlers{})
	require.NoError(t, err)
	_, err = r.RegisterSession(0x42, SessionHandlers{})
	assert.ErrorIs(t, err, ErrRegistrationConflict)
	_, err = r.RegisterSession(0x43, SessionHandlers{})
	assert.NoError(t, err)
	_, err = r.RegisterSession(objc.Nil, SessionHandlers{})
	assert.Error(t, err)
	assert.Equal(t, 2, r.Live())

	r.ReleaseAll()
	assert.Zero(t, r.Live())
}

func TestReceiverFailureFreesSlot(t *testing.T) {
	rt := newFakeRuntime()
	rt.failNew = errors.New("alloc failed")
	r := NewRegistry(rt, Options{ClassPrefix: "TestFail"})

	_, err := r.RegisterBrowser(BrowserHandlers{})
	require.Error(t, err)

	rt.failNew = nil
	_, err = r.RegisterBrowser(BrowserHandlers{})
	assert.NoError(t, err)
}

func TestCallbacksRouteToHandlers(t *testing.T) {
	var (
		opened   error
		openedN  int
		removed  bool
		readData []byte
		delTok   uint64
		deleted  []objc.ID
		response []byte
	)
	r := NewRegistry(newFakeRuntime(), Options{ClassPrefix: "TestRoute"})
	reg, err := r.RegisterSession(0x42, SessionHandlers{
		SessionOpened: func(err error) { opened = err; openedN++ },
		DeviceRemoved: func() { removed = true },
		ReadCompleted: func(_ objc.ID, _ uint64, data []byte, _ error) { readData = data },
		DeleteCompleted: func(tok uint64, ok, _ []objc.ID, _ error) {
			delTok, deleted = tok, ok
		},
		PTPCompleted: func(_ uint64, _, resp []byte, _ error) { response = resp },
	})
	require.NoError(t, err)

	got, ok := r.Resolve(reg.Token())
	require.True(t, ok)
	require.Same(t, reg, got)

	boom := errors.New("busy")
	got.DeviceDidOpenSession(0x42, boom)
	got.DidRemoveDevice(0x42)
	got.DidReadData(0x42, 0x77, 9, []byte("abc"), nil)
	got.DidDeleteFiles(0x42, 11, []objc.ID{0x77}, nil, nil)
	got.DidSendPTPCommand(0x42, 12, nil, []byte{0x01, 0x20}, nil)
	got.DeviceDidBecomeReady(0x42) // nil handler is skipped

	assert.Equal(t, 1, openedN)
	assert.Same(t, boom, opened)
	assert.True(t, removed)
	assert.Equal(t, []byte("abc"), readData)
	assert.Equal(t, uint64(11), delTok)
	assert.Equal(t, []objc.ID{0x77}, deleted)
	assert.Equal(t, []byte{0x01, 0x20}, response)
}

func TestStaleAndMisroutedCallbacksAreDropped(t *testing.T) {
	var drops []Drop
	calls := 0
	r := NewRegistry(newFakeRuntime(), Options{
		ClassPrefix: "TestDrop",
		OnDrop:      func(d Drop) { drops = append(drops, d) },
	})
	reg, err := r.RegisterSession(0x42, SessionHandlers{
		SessionClosed: func(error) { calls++ },
	})
	require.NoError(t, err)

	reg.DeviceDidCloseSession(0x99, nil)
	reg.BrowserDidAddDevice(0x42, false)
	require.NoError(t, reg.Release())
	reg.DeviceDidCloseSession(0x42, nil)
	r.DropUnknown(12345, "device:didOpenSessionWithError:")

	assert.Zero(t, calls)
	require.Len(t, drops, 4)
	assert.Contains(t, drops[0].Reason, "foreign device")
	assert.Equal(t, "role mismatch", drops[1].Reason)
	assert.Equal(t, "released", drops[2].Reason)
	assert.Equal(t, Token(12345), drops[3].Token)
}
