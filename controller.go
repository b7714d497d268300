package imagecapture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaban/imagecapture/delegate"
	"github.com/shaban/imagecapture/device"
	"github.com/shaban/imagecapture/journal"
	"github.com/shaban/imagecapture/objc"
	"github.com/shaban/imagecapture/runloop"
)

// Framework is the process-wide native context: the device model boundary,
// the device browser and the delegate runtime. icc.New returns the real one.
type Framework struct {
	Native  device.Native
	Browser device.Browser
	Runtime delegate.Runtime
}

// Controller discovers devices and drives their session lifecycle.
//
// All state lives on the loop thread. Exported methods may be called from
// any goroutine; they marshal onto the loop and run inline when already
// there, so they are safe to call from inside handlers.
type Controller struct {
	// Core identity (UUID hybrid pattern)
	id uuid.UUID

	loop     runloop.Loop
	fw       Framework
	cfg      Config
	h        Handlers
	log      *slog.Logger
	registry *delegate.Registry

	started    bool
	browserReg *delegate.Registration
	devices    map[uuid.UUID]*entry
	byHandle   map[objc.ID]*entry
	order      []uuid.UUID
	lastToken  Token
}

// New creates a controller bound to loop and the native framework.
func New(loop runloop.Loop, fw Framework, cfg Config, h Handlers) (*Controller, error) {
	if loop == nil {
		return nil, fmt.Errorf("run loop is required")
	}
	if fw.Native == nil || fw.Browser == nil || fw.Runtime == nil {
		return nil, fmt.Errorf("framework is incomplete")
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	id := uuid.New()
	log := cfg.Logger.With("controller", id.String())
	c := &Controller{
		id:       id,
		loop:     loop,
		fw:       fw,
		cfg:      cfg,
		h:        h,
		log:      log,
		devices:  make(map[uuid.UUID]*entry),
		byHandle: make(map[objc.ID]*entry),
	}
	c.registry = delegate.NewRegistry(fw.Runtime, delegate.Options{
		ClassPrefix: cfg.ClassPrefix,
		Logger:      log,
		OnDrop: func(d delegate.Drop) {
			c.cfg.Journal.Record(journal.Event{
				Timestamp: time.Now(),
				Kind:      journal.KindError,
				Error: &journal.ErrorData{
					Message: "callback dropped: " + d.Reason,
					Context: fmt.Sprintf("%s token=%d %s", d.Role, d.Token, d.Callback),
				},
			})
		},
	})
	return c, nil
}

// ID returns the controller's identity.
func (c *Controller) ID() uuid.UUID { return c.id }

// do runs fn on the loop thread and waits for it.
func (c *Controller) do(fn func() error) error {
	if c.loop.OnLoop() {
		return fn()
	}
	return c.loop.RunSync(func(context.Context) error { return fn() })
}

// Do runs fn on the loop thread with the controller's state stable, e.g.
// to call several device accessors consistently.
func (c *Controller) Do(fn func() error) error { return c.do(fn) }

// onLoop guards a native callback. Callbacks must arrive on the loop thread;
// one that does not is reported and re-posted there, or panics in debug mode.
func (c *Controller) onLoop(op string, fn func()) {
	if c.loop.OnLoop() {
		fn()
		return
	}
	err := fmt.Errorf("%w: %s delivered off the loop thread", ErrThreadViolation, op)
	if c.cfg.Debug {
		panic(err)
	}
	c.report(err)
	if perr := c.loop.Post(func(context.Context) { fn() }); perr != nil {
		c.report(fmt.Errorf("re-post %s: %w", op, perr))
	}
}

func (c *Controller) report(err error) {
	if err == nil {
		return
	}
	c.cfg.Journal.Record(journal.Event{
		Timestamp: time.Now(),
		Kind:      journal.KindError,
		Error:     &journal.ErrorData{Message: err.Error()},
	})
	c.cfg.ErrorHandler.HandleError(err)
}

// Start registers the browser delegate and starts browsing.
func (c *Controller) Start() error {
	return c.do(func() error {
		if c.started {
			return ErrAlreadyStarted
		}
		reg, err := c.registry.RegisterBrowser(delegate.BrowserHandlers{
			DeviceAdded: func(dev objc.ID, more bool) {
				c.onLoop("deviceAdded", func() { c.deviceAdded(dev, more) })
			},
			DeviceRemoved: func(dev objc.ID, more bool) {
				c.onLoop("deviceRemoved", func() { c.browserRemoved(dev, more) })
			},
		})
		if err != nil {
			return err
		}
		if err := c.fw.Browser.StartBrowsing(reg.Receiver(), c.cfg.Browse.mask()); err != nil {
			_ = reg.Release()
			return fmt.Errorf("start browsing: %w", err)
		}
		c.browserReg = reg
		c.started = true
		c.log.Info("browsing started", "mask", fmt.Sprintf("%+v", c.cfg.Browse.mask()))
		return nil
	})
}

// Stop closes every open session, fails pending requests with
// ErrSessionClosed, releases all delegates and stops browsing. Sessions
// that were open or closing get SessionClosed; opens still in flight get
// SessionOpened with ErrSessionClosed.
func (c *Controller) Stop() error {
	return c.do(func() error {
		if !c.started {
			return ErrNotStarted
		}
		for _, id := range c.order {
			e := c.devices[id]
			if e == nil || e.state.Terminal() {
				continue
			}
			prev := e.state
			switch prev {
			case Open:
				if err := e.dev.RequestCloseSession(); err != nil {
					c.report(fmt.Errorf("close %s on stop: %w", e.label, err))
				}
			case Opening:
				c.requestDone(e, RequestOpen, e.reqStart, 0, ErrSessionClosed)
			case Closing:
				c.requestDone(e, RequestClose, e.reqStart, 0, ErrSessionClosed)
			}
			c.stopTimers(e)
			c.failPending(e, ErrSessionClosed)
			c.releaseDelegate(e, true)
			c.setState(e, Closed, "stop")

			switch prev {
			case Open, Closing:
				c.notifyClosed(e, nil)
			case Opening:
				c.notifyOpened(e, fmt.Errorf("%w: %s stopped while opening", ErrSessionClosed, e.label))
			}
		}
		var err error
		if c.fw.Browser.IsBrowsing() {
			if serr := c.fw.Browser.StopBrowsing(); serr != nil {
				err = fmt.Errorf("stop browsing: %w", serr)
			}
		}
		c.registry.ReleaseAll()
		c.browserReg = nil
		c.devices = make(map[uuid.UUID]*entry)
		c.byHandle = make(map[objc.ID]*entry)
		c.order = nil
		c.started = false
		c.log.Info("browsing stopped")
		return err
	})
}

// Devices returns a snapshot of every device that has not been removed, in
// discovery order.
func (c *Controller) Devices() []DeviceRef {
	var out []DeviceRef
	_ = c.do(func() error {
		out = c.snapshot()
		return nil
	})
	return out
}

func (c *Controller) snapshot() []DeviceRef {
	out := make([]DeviceRef, 0, len(c.order))
	for _, id := range c.order {
		if e := c.devices[id]; e != nil && e.state != Removed {
			out = append(out, e.ref())
		}
	}
	return out
}

// State reports a device's session state.
func (c *Controller) State(id uuid.UUID) (State, error) {
	var s State
	err := c.do(func() error {
		e, err := c.lookup(id)
		if err != nil {
			return err
		}
		s = e.state
		return nil
	})
	return s, err
}

// Device returns the device model for id. Use it on the loop thread only,
// e.g. from a handler or inside Do.
func (c *Controller) Device(id uuid.UUID) (*device.Device, error) {
	var d *device.Device
	err := c.do(func() error {
		e, err := c.lookup(id)
		if err != nil {
			return err
		}
		d = e.dev
		return nil
	})
	return d, err
}

// Camera returns the camera model for id. Same threading rule as Device.
func (c *Controller) Camera(id uuid.UUID) (*device.Camera, error) {
	var cam *device.Camera
	err := c.do(func() error {
		var err error
		cam, err = c.camera(id)
		return err
	})
	return cam, err
}

// Info reads a device's attributes on the loop thread.
func (c *Controller) Info(id uuid.UUID) (device.Info, error) {
	var info device.Info
	err := c.do(func() error {
		e, err := c.lookup(id)
		if err != nil {
			return err
		}
		info, err = e.dev.Info()
		return err
	})
	return info, err
}

// CameraStatus reads the camera attributes on the loop thread.
func (c *Controller) CameraStatus(id uuid.UUID) (device.CameraStatus, error) {
	var st device.CameraStatus
	err := c.do(func() error {
		cam, err := c.camera(id)
		if err != nil {
			return err
		}
		st, err = cam.Status()
		return err
	})
	return st, err
}

// MediaFiles lists the camera's files with their attributes.
func (c *Controller) MediaFiles(id uuid.UUID) ([]device.File, []device.FileInfo, error) {
	var (
		files []device.File
		infos []device.FileInfo
	)
	err := c.do(func() error {
		cam, err := c.camera(id)
		if err != nil {
			return err
		}
		files, err = cam.MediaFiles()
		if err != nil {
			return err
		}
		infos = make([]device.FileInfo, 0, len(files))
		for _, f := range files {
			fi, err := f.Info()
			if err != nil {
				return err
			}
			infos = append(infos, fi)
		}
		return nil
	})
	return files, infos, err
}

// FilesOfType lists the camera's files with the given UTI, e.g.
// "public.jpeg".
func (c *Controller) FilesOfType(id uuid.UUID, uti string) ([]device.File, error) {
	var files []device.File
	err := c.do(func() error {
		cam, err := c.camera(id)
		if err != nil {
			return err
		}
		files, err = cam.FilesOfType(uti)
		return err
	})
	return files, err
}

func (c *Controller) lookup(id uuid.UUID) (*entry, error) {
	e, ok := c.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return e, nil
}

func (c *Controller) camera(id uuid.UUID) (*device.Camera, error) {
	e, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.dev.Camera()
}

func (c *Controller) nextToken() Token {
	c.lastToken++
	return c.lastToken
}
