package imagecapture

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/shaban/imagecapture/device"
	"github.com/shaban/imagecapture/internal/testutil"
	"github.com/shaban/imagecapture/objc"
	"github.com/shaban/imagecapture/runloop"
)

type outcome struct {
	ref DeviceRef
	err error
}

// recorder collects every handler invocation and reported error.
type recorder struct {
	mu        sync.Mutex
	added     []DeviceRef
	removed   []DeviceRef
	opened    []outcome
	closed    []outcome
	changed   [][]DeviceRef
	transfers []TransferResult
	deletes   []DeleteResult
	items     []device.File
	catalog   int
	errs      []error
}

func (r *recorder) HandleError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		DevicesChanged: func(refs []DeviceRef) { r.with(func() { r.changed = append(r.changed, refs) }) },
		DeviceAdded:    func(d DeviceRef) { r.with(func() { r.added = append(r.added, d) }) },
		DeviceRemoved:  func(d DeviceRef) { r.with(func() { r.removed = append(r.removed, d) }) },
		SessionOpened: func(d DeviceRef, err error) {
			r.with(func() { r.opened = append(r.opened, outcome{d, err}) })
		},
		SessionClosed: func(d DeviceRef, err error) {
			r.with(func() { r.closed = append(r.closed, outcome{d, err}) })
		},
		ContentCatalogReady: func(DeviceRef) { r.with(func() { r.catalog++ }) },
		ItemsAdded: func(_ DeviceRef, files []device.File) {
			r.with(func() { r.items = append(r.items, files...) })
		},
		TransferCompleted: func(res TransferResult) { r.with(func() { r.transfers = append(r.transfers, res) }) },
		DeleteCompleted:   func(res DeleteResult) { r.with(func() { r.deletes = append(r.deletes, res) }) },
	}
}

func (r *recorder) with(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

func (r *recorder) Opened() []outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]outcome(nil), r.opened...)
}

func (r *recorder) Closed() []outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]outcome(nil), r.closed...)
}

func (r *recorder) Transfers() []TransferResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TransferResult(nil), r.transfers...)
}

func (r *recorder) Deletes() []DeleteResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DeleteResult(nil), r.deletes...)
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

type harness struct {
	t    *testing.T
	loop *runloop.Queue
	sim  *testutil.Simulator
	rec  *recorder
	ctrl *Controller
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	return buildHarness(t, mutate, nil)
}

// newBareHarness leaves Handlers.TransferCompleted and DeleteCompleted
// unset, so results of requests issued without a done func fall through to
// the error handler.
func newBareHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	return buildHarness(t, mutate, func(hs *Handlers) {
		hs.TransferCompleted = nil
		hs.DeleteCompleted = nil
	})
}

func buildHarness(t *testing.T, mutate func(*Config), handlers func(*Handlers)) *harness {
	t.Helper()
	loop := testutil.StartLoop(t)
	sim := testutil.NewSimulator(loop)
	rec := &recorder{}
	cfg := Config{
		ErrorHandler: rec,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	hs := rec.handlers()
	if handlers != nil {
		handlers(&hs)
	}
	ctrl, err := New(loop, Framework{Native: sim, Browser: sim, Runtime: sim}, cfg, hs)
	require.NoError(t, err)
	return &harness{t: t, loop: loop, sim: sim, rec: rec, ctrl: ctrl}
}

func (h *harness) flush() { testutil.Flush(h.t, h.loop) }

func (h *harness) start() {
	h.t.Helper()
	require.NoError(h.t, h.ctrl.Start())
	h.flush()
}

// plug connects a device and returns its native handle and controller id.
func (h *harness) plug(d *testutil.SimDevice) (objc.ID, uuid.UUID) {
	h.t.Helper()
	handle := h.sim.Plug(d, false)
	h.flush()
	return handle, h.idOf(handle)
}

func (h *harness) idOf(handle objc.ID) uuid.UUID {
	h.t.Helper()
	var id uuid.UUID
	require.NoError(h.t, h.ctrl.Do(func() error {
		e, ok := h.ctrl.byHandle[handle]
		if !ok {
			return fmt.Errorf("device %s not known to the controller", handle)
		}
		id = e.id
		return nil
	}))
	return id
}

// openCamera plugs a camera and confirms the auto-open.
func (h *harness) openCamera(name string, caps ...device.Capability) (objc.ID, uuid.UUID) {
	h.t.Helper()
	handle, id := h.plug(testutil.Camera(name, caps...))
	h.sim.ConfirmOpen(handle, nil)
	h.flush()
	h.requireState(id, Open)
	return handle, id
}

func (h *harness) requireState(id uuid.UUID, want State) {
	h.t.Helper()
	got, err := h.ctrl.State(id)
	require.NoError(h.t, err)
	require.Equal(h.t, want, got)
}
