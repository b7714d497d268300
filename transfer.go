package imagecapture

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaban/imagecapture/device"
	"github.com/shaban/imagecapture/journal"
	"github.com/shaban/imagecapture/objc"
	"github.com/shaban/imagecapture/runloop"
)

// Token correlates an asynchronous request with its completion. It is
// passed to the framework as the request's contextInfo.
type Token uint64

// TransferKind is the kind of a file transfer.
type TransferKind int

const (
	TransferDownload TransferKind = iota
	TransferUpload
	TransferRead
	TransferPTP
)

func (k TransferKind) String() string {
	return string(k.requestKind())
}

func (k TransferKind) requestKind() RequestKind {
	switch k {
	case TransferUpload:
		return RequestUpload
	case TransferRead:
		return RequestRead
	case TransferPTP:
		return RequestPTP
	}
	return RequestDownload
}

// TransferResult is delivered exactly once per accepted transfer, unless the
// transfer was cancelled.
type TransferResult struct {
	Token   Token
	Kind    TransferKind
	Device  DeviceRef
	Context any
	Err     error

	File device.File // download and read
	Path string      // upload source

	SavedFilename  string   // download
	AncillaryFiles []string // download sidecars
	Data           []byte   // read, PTP data-in phase
	Response       []byte   // PTP response container

	Duration time.Duration
}

type pendingTransfer struct {
	token Token
	kind  TransferKind
	ctx   any
	done  func(TransferResult)
	timer *runloop.Timer
	start time.Time
	file  device.File
	path  string
}

// DownloadFile copies file from the camera. done (or, when nil,
// Handlers.TransferCompleted) receives the result. At most one transfer
// may be pending per device.
func (c *Controller) DownloadFile(id uuid.UUID, file device.File, opts device.DownloadOptions, ctx any, done func(TransferResult)) (Token, error) {
	return c.startTransfer(id, &pendingTransfer{kind: TransferDownload, ctx: ctx, done: done, file: file},
		func(cam *device.Camera, recv objc.ID, tok uint64) error {
			return cam.RequestDownloadFile(file, opts, recv, tok)
		})
}

// UploadFile copies a local file to the camera.
func (c *Controller) UploadFile(id uuid.UUID, path string, ctx any, done func(TransferResult)) (Token, error) {
	return c.startTransfer(id, &pendingTransfer{kind: TransferUpload, ctx: ctx, done: done, path: path},
		func(cam *device.Camera, recv objc.ID, tok uint64) error {
			return cam.RequestUploadFile(path, recv, tok)
		})
}

// ReadData reads length bytes at offset from file.
func (c *Controller) ReadData(id uuid.UUID, file device.File, offset, length int64, ctx any, done func(TransferResult)) (Token, error) {
	return c.startTransfer(id, &pendingTransfer{kind: TransferRead, ctx: ctx, done: done, file: file},
		func(cam *device.Camera, recv objc.ID, tok uint64) error {
			return cam.RequestReadDataFromFile(file, offset, length, recv, tok)
		})
}

// SendPTPCommand sends a raw PTP command container, with an optional
// data-out phase, to a camera that accepts PTP commands. It shares the
// transfer slot with downloads, uploads and reads. The framework has no way
// to abort a PTP command; the watchdog fails it after TransferTimeout.
func (c *Controller) SendPTPCommand(id uuid.UUID, command, outData []byte, ctx any, done func(TransferResult)) (Token, error) {
	return c.startTransfer(id, &pendingTransfer{kind: TransferPTP, ctx: ctx, done: done},
		func(cam *device.Camera, recv objc.ID, tok uint64) error {
			return cam.RequestSendPTPCommand(command, outData, recv, tok)
		})
}

func (c *Controller) startTransfer(id uuid.UUID, p *pendingTransfer, issue func(*device.Camera, objc.ID, uint64) error) (Token, error) {
	err := c.do(func() error {
		e, err := c.lookup(id)
		if err != nil {
			return err
		}
		cam, err := c.openCamera(e)
		if err != nil {
			return err
		}
		if e.transfer != nil {
			return fmt.Errorf("%w: %s already has a pending %s", ErrConcurrentRequestRejected, e.label, e.transfer.kind)
		}
		p.token = c.nextToken()
		p.start = time.Now()
		e.transfer = p
		if err := issue(cam, e.reg.Receiver(), uint64(p.token)); err != nil {
			e.transfer = nil
			return err
		}
		c.requestStarted(e, p.kind.requestKind(), p.token)
		tok := p.token
		p.timer = runloop.AfterFunc(c.loop, c.cfg.TransferTimeout, func(context.Context) { c.transferTimeout(e, tok) })
		return nil
	})
	if err != nil {
		return 0, err
	}
	return p.token, nil
}

// openCamera validates that e has an open session on a camera.
func (c *Controller) openCamera(e *entry) (*device.Camera, error) {
	switch {
	case e.state == Removed:
		return nil, fmt.Errorf("%w: %s was removed", ErrInvalidHandle, e.label)
	case e.state != Open || e.reg == nil:
		return nil, fmt.Errorf("%w: %s is %s", ErrSessionClosed, e.label, e.state)
	}
	return e.dev.Camera()
}

// CancelDownload aborts the device's pending download, if any. The
// download's completion is never delivered, including a late native one.
func (c *Controller) CancelDownload(id uuid.UUID) error {
	return c.do(func() error {
		e, err := c.lookup(id)
		if err != nil {
			return err
		}
		p := e.transfer
		if p == nil || p.kind != TransferDownload {
			return nil
		}
		e.transfer = nil
		p.timer.Stop()
		c.markCancelled(e, p.token)
		c.requestDone(e, RequestDownload, p.start, p.token, errCancelled)

		cam, err := e.dev.Camera()
		if err != nil {
			return err
		}
		return cam.CancelDownload()
	})
}

// markCancelled remembers tok so a late completion is swallowed. The
// memory is dropped after CancelledTokenTTL.
func (c *Controller) markCancelled(e *entry, tok Token) {
	if old := e.cancelled[tok]; old != nil {
		old.Stop()
	}
	e.cancelled[tok] = runloop.AfterFunc(c.loop, c.cfg.CancelledTokenTTL, func(context.Context) {
		delete(e.cancelled, tok)
	})
}

// swallowCancelled reports whether tok belongs to a cancelled or timed out
// request, forgetting it if so.
func (c *Controller) swallowCancelled(e *entry, tok Token, nerr error) bool {
	t, ok := e.cancelled[tok]
	if !ok {
		return false
	}
	t.Stop()
	delete(e.cancelled, tok)
	c.log.Debug("completion for cancelled token swallowed", "device", e.id, "token", tok, "error", nerr)
	return true
}

func (c *Controller) unknownToken(e *entry, op string, tok Token) {
	c.log.Warn("completion for unknown "+op+" dropped", "device", e.id, "token", tok)
	c.record(e, journal.Event{
		Kind:  journal.KindError,
		Error: &journal.ErrorData{Message: "unknown " + op + " token", Context: fmt.Sprint(tok)},
	})
}

func (c *Controller) transferCompleted(e *entry, tok Token, fill func(*TransferResult), nerr error) {
	if c.swallowCancelled(e, tok, nerr) {
		return
	}
	p := e.transfer
	if p == nil || p.token != tok {
		c.unknownToken(e, "transfer", tok)
		return
	}
	e.transfer = nil
	p.timer.Stop()

	err := nativeFailure(p.kind.String(), nerr)
	r := c.transferResult(e, p, err)
	if fill != nil && err == nil {
		fill(&r)
	}
	c.requestDone(e, p.kind.requestKind(), p.start, p.token, err)
	c.deliverTransfer(p, r)
}

func (c *Controller) transferTimeout(e *entry, tok Token) {
	p := e.transfer
	if p == nil || p.token != tok {
		return
	}
	e.transfer = nil
	c.markCancelled(e, tok)
	if p.kind == TransferDownload {
		if cam, err := e.dev.Camera(); err == nil {
			_ = cam.CancelDownload()
		}
	}
	err := fmt.Errorf("%w: %s on %s after %s", ErrTimeout, p.kind, e.label, c.cfg.TransferTimeout)
	c.requestDone(e, p.kind.requestKind(), p.start, p.token, err)
	c.deliverTransfer(p, c.transferResult(e, p, err))
}

func (c *Controller) transferResult(e *entry, p *pendingTransfer, err error) TransferResult {
	return TransferResult{
		Token:    p.token,
		Kind:     p.kind,
		Device:   e.ref(),
		Context:  p.ctx,
		Err:      err,
		File:     p.file,
		Path:     p.path,
		Duration: time.Since(p.start),
	}
}

func (c *Controller) deliverTransfer(p *pendingTransfer, r TransferResult) {
	switch {
	case p.done != nil:
		p.done(r)
	case c.h.TransferCompleted != nil:
		c.h.TransferCompleted(r)
	case r.Err != nil:
		c.report(fmt.Errorf("%s token %d on %s: %w", r.Kind, r.Token, r.Device.Name, r.Err))
	default:
		c.log.Debug("transfer completed", "device", r.Device.ID, "kind", r.Kind, "token", r.Token)
	}
}

// failPending terminates whatever request the device still has in flight.
func (c *Controller) failPending(e *entry, err error) {
	if p := e.transfer; p != nil {
		e.transfer = nil
		p.timer.Stop()
		c.markCancelled(e, p.token)
		c.requestDone(e, p.kind.requestKind(), p.start, p.token, err)
		c.deliverTransfer(p, c.transferResult(e, p, err))
	}
	if d := e.del; d != nil {
		e.del = nil
		d.timer.Stop()
		c.markCancelled(e, d.token)
		c.requestDone(e, RequestDelete, d.start, d.token, err)
		c.deliverDelete(d, c.deleteResult(e, d, err))
	}
}
