package imagecapture

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaban/imagecapture/device"
	"github.com/shaban/imagecapture/objc"
	"github.com/shaban/imagecapture/runloop"
)

// DeleteResult is delivered once per accepted delete, unless cancelled.
// Failed lists files the camera refused; Err is set only when the request
// as a whole failed.
type DeleteResult struct {
	Token    Token
	Device   DeviceRef
	Context  any
	Deleted  []device.File
	Failed   []device.File
	Duration time.Duration
	Err      error
}

type pendingDelete struct {
	token Token
	ctx   any
	done  func(DeleteResult)
	timer *runloop.Timer
	start time.Time
}

// DeleteFiles deletes files from the camera. At most one delete may be
// pending per device.
func (c *Controller) DeleteFiles(id uuid.UUID, files []device.File, ctx any, done func(DeleteResult)) (Token, error) {
	var tok Token
	err := c.do(func() error {
		e, err := c.lookup(id)
		if err != nil {
			return err
		}
		cam, err := c.openCamera(e)
		if err != nil {
			return err
		}
		if e.del != nil {
			return fmt.Errorf("%w: %s already has a pending delete", ErrConcurrentRequestRejected, e.label)
		}
		d := &pendingDelete{token: c.nextToken(), ctx: ctx, done: done, start: time.Now()}
		e.del = d
		if err := cam.RequestDeleteFiles(files, e.reg.Receiver(), uint64(d.token)); err != nil {
			e.del = nil
			return err
		}
		c.requestStarted(e, RequestDelete, d.token)
		d.timer = runloop.AfterFunc(c.loop, c.cfg.DeleteTimeout, func(context.Context) { c.deleteTimeout(e, d) })
		tok = d.token
		return nil
	})
	return tok, err
}

// CancelDelete aborts the device's pending delete, if any. Its completion
// is never delivered, including a late native one.
func (c *Controller) CancelDelete(id uuid.UUID) error {
	return c.do(func() error {
		e, err := c.lookup(id)
		if err != nil {
			return err
		}
		d := e.del
		if d == nil {
			return nil
		}
		e.del = nil
		d.timer.Stop()
		c.markCancelled(e, d.token)
		c.requestDone(e, RequestDelete, d.start, d.token, errCancelled)

		cam, err := e.dev.Camera()
		if err != nil {
			return err
		}
		return cam.CancelDelete()
	})
}

func (c *Controller) deleteCompleted(e *entry, tok Token, deleted, failed []objc.ID, nerr error) {
	if c.swallowCancelled(e, tok, nerr) {
		return
	}
	d := e.del
	if d == nil || d.token != tok {
		c.unknownToken(e, "delete", tok)
		return
	}
	e.del = nil
	d.timer.Stop()

	err := nativeFailure("delete files", nerr)
	r := c.deleteResult(e, d, err)
	if cam, cerr := e.dev.Camera(); cerr == nil {
		for _, h := range deleted {
			r.Deleted = append(r.Deleted, cam.FileFor(h))
		}
		for _, h := range failed {
			r.Failed = append(r.Failed, cam.FileFor(h))
		}
	}
	c.requestDone(e, RequestDelete, d.start, d.token, err)
	c.deliverDelete(d, r)
}

func (c *Controller) deleteTimeout(e *entry, d *pendingDelete) {
	if e.del != d {
		return
	}
	e.del = nil
	c.markCancelled(e, d.token)
	if cam, err := e.dev.Camera(); err == nil {
		_ = cam.CancelDelete()
	}
	err := fmt.Errorf("%w: delete on %s after %s", ErrTimeout, e.label, c.cfg.DeleteTimeout)
	c.requestDone(e, RequestDelete, d.start, d.token, err)
	c.deliverDelete(d, c.deleteResult(e, d, err))
}

func (c *Controller) deleteResult(e *entry, d *pendingDelete, err error) DeleteResult {
	return DeleteResult{
		Token:    d.token,
		Device:   e.ref(),
		Context:  d.ctx,
		Duration: time.Since(d.start),
		Err:      err,
	}
}

func (c *Controller) deliverDelete(d *pendingDelete, r DeleteResult) {
	switch {
	case d.done != nil:
		d.done(r)
	case c.h.DeleteCompleted != nil:
		c.h.DeleteCompleted(r)
	case r.Err != nil:
		c.report(fmt.Errorf("delete token %d on %s: %w", r.Token, r.Device.Name, r.Err))
	}
}

// Fire-and-forget camera requests. Their effects arrive as ordinary device
// events (a new picture shows up through Handlers.ItemsAdded).

func (c *Controller) TakePicture(id uuid.UUID) error {
	return c.cameraRequest(id, (*device.Camera).RequestTakePicture)
}

func (c *Controller) SyncClock(id uuid.UUID) error {
	return c.cameraRequest(id, (*device.Camera).RequestSyncClock)
}

func (c *Controller) EnableTethering(id uuid.UUID) error {
	return c.cameraRequest(id, (*device.Camera).RequestEnableTethering)
}

func (c *Controller) DisableTethering(id uuid.UUID) error {
	return c.cameraRequest(id, (*device.Camera).RequestDisableTethering)
}

func (c *Controller) cameraRequest(id uuid.UUID, fn func(*device.Camera) error) error {
	return c.do(func() error {
		e, err := c.lookup(id)
		if err != nil {
			return err
		}
		cam, err := c.openCamera(e)
		if err != nil {
			return err
		}
		return fn(cam)
	})
}

// Eject asks the device to eject (mass storage) or disconnect.
func (c *Controller) Eject(id uuid.UUID) error {
	return c.do(func() error {
		e, err := c.lookup(id)
		if err != nil {
			return err
		}
		if e.state == Removed {
			return fmt.Errorf("%w: %s was removed", ErrInvalidHandle, e.label)
		}
		return e.dev.RequestEjectOrDisconnect()
	})
}

// Yield hands the open session to another process that asked for it.
func (c *Controller) Yield(id uuid.UUID) error {
	return c.do(func() error {
		e, err := c.lookup(id)
		if err != nil {
			return err
		}
		switch e.state {
		case Removed:
			return fmt.Errorf("%w: %s was removed", ErrInvalidHandle, e.label)
		case Open:
			return e.dev.RequestYield()
		}
		return fmt.Errorf("%w: %s is %s", ErrSessionClosed, e.label, e.state)
	})
}
