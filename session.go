package imagecapture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaban/imagecapture/delegate"
	"github.com/shaban/imagecapture/device"
	"github.com/shaban/imagecapture/journal"
	"github.com/shaban/imagecapture/objc"
	"github.com/shaban/imagecapture/runloop"
)

// entry is the controller's record of one discovered device.
type entry struct {
	id    uuid.UUID
	dev   *device.Device
	label string
	typ   device.Type
	state State
	reg   *delegate.Registration

	openTimer    *runloop.Timer
	closeTimer   *runloop.Timer
	reqStart     time.Time
	openTimedOut bool

	transfer  *pendingTransfer
	del       *pendingDelete
	cancelled map[Token]*runloop.Timer
}

func (e *entry) ref() DeviceRef {
	return DeviceRef{ID: e.id, Name: e.label, Type: e.typ, State: e.state}
}

func stopTimer(t **runloop.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (c *Controller) record(e *entry, ev journal.Event) {
	ev.Timestamp = time.Now()
	if e != nil {
		ev.DeviceID = e.id.String()
		ev.DeviceName = e.label
	}
	c.cfg.Journal.Record(ev)
}

func (c *Controller) setState(e *entry, to State, cause string) {
	from := e.state
	if from == to {
		return
	}
	if !canTransition(from, to) {
		c.report(fmt.Errorf("%s: illegal transition %s -> %s on %s", e.label, from, to, cause))
		return
	}
	e.state = to
	c.log.Debug("session transition", "device", e.id, "from", from, "to", to, "event", cause)
	c.cfg.Metrics.OnStateChange(e.id, from, to)
	c.record(e, journal.Event{
		Kind:  journal.KindState,
		State: &journal.StateChange{From: from.String(), To: to.String(), Cause: cause},
	})
	if c.h.StateChanged != nil {
		c.h.StateChanged(e.ref(), from)
	}
}

// errCancelled only labels metrics and journal entries of cancelled requests.
var errCancelled = errors.New("cancelled")

func (c *Controller) requestStarted(e *entry, kind RequestKind, tok Token) {
	c.cfg.Metrics.OnRequestStart(e.id, kind)
	c.record(e, journal.Event{
		Kind:    journal.KindRequest,
		Request: &journal.Request{Op: string(kind), Phase: journal.PhaseStart, Token: uint64(tok)},
	})
}

func (c *Controller) requestDone(e *entry, kind RequestKind, start time.Time, tok Token, err error) {
	d := time.Since(start)
	phase := journal.PhaseDone
	switch {
	case errors.Is(err, ErrTimeout):
		phase = journal.PhaseTimeout
		c.cfg.Metrics.OnTimeout(e.id, kind)
	case errors.Is(err, errCancelled):
		phase = journal.PhaseCancelled
	}
	c.cfg.Metrics.OnRequestDone(e.id, kind, d, err)
	req := &journal.Request{Op: string(kind), Phase: phase, Token: uint64(tok), Duration: d}
	if err != nil {
		req.Err = err.Error()
	}
	c.record(e, journal.Event{Kind: journal.KindRequest, Request: req})
}

// Browser events

func (c *Controller) deviceAdded(dev objc.ID, more bool) {
	if dev.IsNil() {
		return
	}
	if e, dup := c.byHandle[dev]; dup {
		c.log.Debug("duplicate device added", "device", e.id)
	} else {
		c.addEntry(dev, more)
	}
	if !more && c.h.DevicesChanged != nil {
		c.h.DevicesChanged(c.snapshot())
	}
}

func (c *Controller) addEntry(dev objc.ID, more bool) {
	d := device.New(c.fw.Native, dev)
	info, err := d.Info()
	if err != nil {
		c.report(fmt.Errorf("device added: %w", err))
		return
	}
	e := &entry{
		id:        uuid.New(),
		dev:       d,
		label:     info.Name,
		typ:       info.Type,
		state:     Discovered,
		cancelled: make(map[Token]*runloop.Timer),
	}
	c.devices[e.id] = e
	c.byHandle[dev] = e
	c.order = append(c.order, e.id)

	c.log.Info("device added", "device", e.id, "name", e.label, "type", e.typ,
		"transport", info.Transport, "capabilities", info.Capabilities.String())
	c.record(e, journal.Event{
		Kind:    journal.KindBrowser,
		Browser: &journal.BrowserData{Added: true, Transport: string(info.Transport), More: more},
	})

	if err := c.registerDelegate(e); err != nil {
		c.report(fmt.Errorf("register session delegate for %s: %w", e.label, err))
	}
	if c.h.DeviceAdded != nil {
		c.h.DeviceAdded(e.ref())
	}
	if c.cfg.AutoOpen.applies(e.typ) && e.state == Discovered {
		if err := c.openSession(e); err != nil {
			c.notifyOpened(e, err)
		}
	}
}

func (c *Controller) browserRemoved(dev objc.ID, more bool) {
	if e := c.byHandle[dev]; e != nil {
		c.record(e, journal.Event{
			Kind:    journal.KindBrowser,
			Browser: &journal.BrowserData{Added: false, More: more},
		})
		c.deviceRemoved(e, "DeviceRemoved")
	}
	if !more && c.h.DevicesChanged != nil {
		c.h.DevicesChanged(c.snapshot())
	}
}

// deviceRemoved is terminal and wins over any request in flight. The handle
// is never touched again.
func (c *Controller) deviceRemoved(e *entry, cause string) {
	if e.state == Removed {
		return
	}
	prev := e.state
	e.dev.Invalidate()
	delete(c.byHandle, e.dev.Handle())
	c.stopTimers(e)

	gone := fmt.Errorf("%w: %s was removed", ErrInvalidHandle, e.label)
	switch prev {
	case Opening:
		c.requestDone(e, RequestOpen, e.reqStart, 0, gone)
	case Closing:
		c.requestDone(e, RequestClose, e.reqStart, 0, gone)
	}
	c.failPending(e, gone)
	c.releaseDelegate(e, false)
	c.setState(e, Removed, cause)

	switch prev {
	case Opening:
		c.notifyOpened(e, gone)
	case Closing:
		c.notifyClosed(e, gone)
	}
	c.log.Info("device removed", "device", e.id, "name", e.label, "was", prev)
	if c.h.DeviceRemoved != nil {
		c.h.DeviceRemoved(e.ref())
	}
}

// Delegate lifetime

func (c *Controller) registerDelegate(e *entry) error {
	if e.reg != nil {
		return nil
	}
	reg, err := c.registry.RegisterSession(e.dev.Handle(), c.sessionHandlers(e))
	if err != nil {
		return err
	}
	if err := e.dev.SetDelegate(reg.Receiver()); err != nil {
		_ = reg.Release()
		return err
	}
	e.reg = reg
	return nil
}

// releaseDelegate releases the per-device receiver exactly once. detach
// clears the device's delegate first; it must be false after removal.
func (c *Controller) releaseDelegate(e *entry, detach bool) {
	if e.reg == nil {
		return
	}
	if detach && e.dev.Valid() {
		if err := e.dev.SetDelegate(objc.Nil); err != nil {
			c.log.Debug("clear delegate failed", "device", e.id, "error", err)
		}
	}
	if err := e.reg.Release(); err != nil {
		c.report(fmt.Errorf("release delegate for %s: %w", e.label, err))
	}
	e.reg = nil
}

func (c *Controller) sessionHandlers(e *entry) delegate.SessionHandlers {
	return delegate.SessionHandlers{
		SessionOpened: func(err error) {
			c.onLoop("sessionOpened", func() { c.sessionOpened(e, err) })
		},
		SessionClosed: func(err error) {
			c.onLoop("sessionClosed", func() { c.sessionClosed(e, err) })
		},
		DeviceRemoved: func() {
			c.onLoop("didRemoveDevice", func() { c.deviceRemoved(e, "didRemoveDevice") })
		},
		ContentCatalogReady: func() {
			c.onLoop("contentCatalogReady", func() {
				if c.h.ContentCatalogReady != nil && e.state == Open {
					c.h.ContentCatalogReady(e.ref())
				}
			})
		},
		ItemsAdded: func(items []objc.ID) {
			c.onLoop("itemsAdded", func() { c.itemsChanged(e, items, c.h.ItemsAdded) })
		},
		ItemsRemoved: func(items []objc.ID) {
			c.onLoop("itemsRemoved", func() { c.itemsChanged(e, items, c.h.ItemsRemoved) })
		},
		DeleteCompleted: func(tok uint64, deleted, failed []objc.ID, err error) {
			c.onLoop("deleteCompleted", func() { c.deleteCompleted(e, Token(tok), deleted, failed, err) })
		},
		DownloadCompleted: func(file objc.ID, tok uint64, res device.DownloadResult, err error) {
			c.onLoop("downloadCompleted", func() {
				c.transferCompleted(e, Token(tok), func(r *TransferResult) {
					r.SavedFilename = res.SavedFilename
					r.AncillaryFiles = res.AncillaryFiles
				}, err)
			})
		},
		UploadCompleted: func(_ string, tok uint64, err error) {
			c.onLoop("uploadCompleted", func() { c.transferCompleted(e, Token(tok), nil, err) })
		},
		ReadCompleted: func(_ objc.ID, tok uint64, data []byte, err error) {
			c.onLoop("readCompleted", func() {
				c.transferCompleted(e, Token(tok), func(r *TransferResult) { r.Data = data }, err)
			})
		},
		PTPCompleted: func(tok uint64, data, response []byte, err error) {
			c.onLoop("ptpCompleted", func() {
				c.transferCompleted(e, Token(tok), func(r *TransferResult) {
					r.Data = data
					r.Response = response
				}, err)
			})
		},
	}
}

func (c *Controller) itemsChanged(e *entry, items []objc.ID, h func(DeviceRef, []device.File)) {
	if h == nil || e.state == Removed {
		return
	}
	cam, err := e.dev.Camera()
	if err != nil {
		return
	}
	files := make([]device.File, 0, len(items))
	for _, it := range items {
		if !it.IsNil() {
			files = append(files, cam.FileFor(it))
		}
	}
	h(e.ref(), files)
}

// Open

// OpenSession requests a session for a discovered device. Opening an open
// device succeeds without a native call. Completion arrives through
// Handlers.SessionOpened.
func (c *Controller) OpenSession(id uuid.UUID) error {
	return c.do(func() error {
		e, err := c.lookup(id)
		if err != nil {
			return err
		}
		return c.openSession(e)
	})
}

func (c *Controller) openSession(e *entry) error {
	switch e.state {
	case Open:
		return nil
	case Opening, Closing:
		return fmt.Errorf("%w: %s is %s", ErrConcurrentRequestRejected, e.label, e.state)
	case Removed:
		return fmt.Errorf("%w: %s was removed", ErrInvalidHandle, e.label)
	case Closed, Error:
		return fmt.Errorf("%w: %s is %s", ErrSessionClosed, e.label, e.state)
	}
	if err := c.registerDelegate(e); err != nil {
		return err
	}

	c.setState(e, Opening, "OpenSession")
	e.openTimedOut = false
	e.reqStart = time.Now()
	c.requestStarted(e, RequestOpen, 0)
	e.openTimer = runloop.AfterFunc(c.loop, c.cfg.OpenTimeout, func(context.Context) { c.openTimeout(e) })

	if err := e.dev.RequestOpenSession(); err != nil {
		stopTimer(&e.openTimer)
		c.requestDone(e, RequestOpen, e.reqStart, 0, err)
		c.setState(e, Discovered, "RequestOpenSession failed")
		return err
	}
	return nil
}

func (c *Controller) sessionOpened(e *entry, nerr error) {
	err := nativeFailure("open session", nerr)
	switch {
	case e.state == Opening:
		stopTimer(&e.openTimer)
		c.requestDone(e, RequestOpen, e.reqStart, 0, err)
		if err != nil {
			c.setState(e, Discovered, "SessionOpened(err)")
		} else {
			c.setState(e, Open, "SessionOpened")
		}
		c.notifyOpened(e, err)
	case e.state == Discovered && e.openTimedOut && err == nil:
		e.openTimedOut = false
		c.log.Info("late session open accepted", "device", e.id)
		c.setState(e, Open, "SessionOpened(late)")
		c.notifyOpened(e, nil)
	default:
		c.log.Debug("stale SessionOpened ignored", "device", e.id, "state", e.state, "error", nerr)
	}
}

func (c *Controller) openTimeout(e *entry) {
	if e.state != Opening {
		return
	}
	e.openTimer = nil
	e.openTimedOut = true
	err := fmt.Errorf("%w: open session on %s after %s", ErrTimeout, e.label, c.cfg.OpenTimeout)
	c.requestDone(e, RequestOpen, e.reqStart, 0, err)
	c.setState(e, Discovered, "open timeout")
	c.notifyOpened(e, err)
}

func (c *Controller) notifyOpened(e *entry, err error) {
	if c.h.SessionOpened != nil {
		c.h.SessionOpened(e.ref(), err)
		return
	}
	if err != nil {
		c.report(fmt.Errorf("open %s: %w", e.label, err))
	}
}

// Close

// CloseSession requests the session be closed. Closing a Closed or Error
// device is a no-op success. Completion arrives through
// Handlers.SessionClosed.
func (c *Controller) CloseSession(id uuid.UUID) error {
	return c.do(func() error {
		e, err := c.lookup(id)
		if err != nil {
			return err
		}
		return c.closeSession(e)
	})
}

func (c *Controller) closeSession(e *entry) error {
	switch e.state {
	case Closed, Error:
		return nil
	case Removed:
		return fmt.Errorf("%w: %s was removed", ErrInvalidHandle, e.label)
	case Opening, Closing:
		return fmt.Errorf("%w: %s is %s", ErrConcurrentRequestRejected, e.label, e.state)
	case Discovered:
		// A timed out open may still complete natively; close it so no
		// session is left behind without a receiver.
		if e.openTimedOut {
			e.openTimedOut = false
			if err := e.dev.RequestCloseSession(); err != nil {
				c.log.Debug("close after open timeout failed", "device", e.id, "error", err)
			}
		}
		c.releaseDelegate(e, true)
		c.setState(e, Closed, "CloseSession")
		return nil
	}

	c.setState(e, Closing, "CloseSession")
	e.reqStart = time.Now()
	c.requestStarted(e, RequestClose, 0)
	e.closeTimer = runloop.AfterFunc(c.loop, c.cfg.CloseTimeout, func(context.Context) { c.closeTimeout(e) })

	if err := e.dev.RequestCloseSession(); err != nil {
		stopTimer(&e.closeTimer)
		c.requestDone(e, RequestClose, e.reqStart, 0, err)
		c.failPending(e, ErrSessionClosed)
		c.releaseDelegate(e, true)
		c.setState(e, Error, "RequestCloseSession failed")
		return err
	}
	return nil
}

func (c *Controller) sessionClosed(e *entry, nerr error) {
	err := nativeFailure("close session", nerr)
	switch e.state {
	case Closing:
		stopTimer(&e.closeTimer)
		c.requestDone(e, RequestClose, e.reqStart, 0, err)
		if err != nil {
			c.finishClose(e, Error, "SessionClosed(err)", err)
		} else {
			c.finishClose(e, Closed, "SessionClosed", nil)
		}
	case Open:
		c.finishClose(e, Closed, "SessionClosed(device)", err)
	case Opening:
		stopTimer(&e.openTimer)
		cerr := fmt.Errorf("%w: %s closed while opening", ErrSessionClosed, e.label)
		if err != nil {
			cerr = fmt.Errorf("%w: %w", cerr, err)
		}
		c.requestDone(e, RequestOpen, e.reqStart, 0, cerr)
		c.setState(e, Discovered, "SessionClosed(opening)")
		c.notifyOpened(e, cerr)
	default:
		c.log.Debug("stale SessionClosed ignored", "device", e.id, "state", e.state, "error", nerr)
	}
}

func (c *Controller) closeTimeout(e *entry) {
	if e.state != Closing {
		return
	}
	e.closeTimer = nil
	err := fmt.Errorf("%w: close session on %s after %s", ErrTimeout, e.label, c.cfg.CloseTimeout)
	c.requestDone(e, RequestClose, e.reqStart, 0, err)
	c.finishClose(e, Error, "close timeout", err)
}

func (c *Controller) finishClose(e *entry, to State, cause string, err error) {
	c.failPending(e, fmt.Errorf("%w: %s", ErrSessionClosed, e.label))
	c.releaseDelegate(e, true)
	c.setState(e, to, cause)
	c.notifyClosed(e, err)
}

func (c *Controller) notifyClosed(e *entry, err error) {
	if c.h.SessionClosed != nil {
		c.h.SessionClosed(e.ref(), err)
		return
	}
	if err != nil {
		c.report(fmt.Errorf("close %s: %w", e.label, err))
	}
}

func (c *Controller) stopTimers(e *entry) {
	stopTimer(&e.openTimer)
	stopTimer(&e.closeTimer)
}
