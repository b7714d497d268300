package imagecapture

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaban/imagecapture/delegate"
	"github.com/shaban/imagecapture/device"
)

var (
	ErrNativeCallFailed          = device.ErrNativeCallFailed
	ErrInvalidHandle             = device.ErrInvalidHandle
	ErrCapabilityMissing         = device.ErrCapabilityMissing
	ErrNotCamera                 = device.ErrNotCamera
	ErrRegistrationConflict      = delegate.ErrRegistrationConflict
	ErrConcurrentRequestRejected = errors.New("concurrent request rejected")
	ErrTimeout                   = errors.New("request timed out")
	ErrThreadViolation           = errors.New("single-writer thread violation")
	ErrSessionClosed             = errors.New("session not open")
	ErrNotStarted                = errors.New("controller not started")
	ErrAlreadyStarted            = errors.New("controller already started")
	ErrUnknownDevice             = errors.New("unknown device")
)

// nativeFailure wraps an error object reported by a delegate callback.
func nativeFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrNativeCallFailed, op, err)
}

// ErrorHandler receives every error that has no caller handler to go to.
type ErrorHandler interface {
	HandleError(error)
}

// DefaultErrorHandler logs errors at error level.
type DefaultErrorHandler struct {
	Logger *slog.Logger
}

func (h *DefaultErrorHandler) HandleError(err error) {
	l := h.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Error("imagecapture error", "error", err)
}

// LoggingErrorHandler wraps another handler and logs errors
type LoggingErrorHandler struct {
	underlying ErrorHandler
	logger     func(error)
}

// NewLoggingErrorHandler creates a new logging error handler
func NewLoggingErrorHandler(underlying ErrorHandler, logger func(error)) *LoggingErrorHandler {
	return &LoggingErrorHandler{underlying: underlying, logger: logger}
}

func (h *LoggingErrorHandler) HandleError(err error) {
	if h.logger != nil {
		h.logger(err)
	}
	if h.underlying != nil {
		h.underlying.HandleError(err)
	}
}

// PanicErrorHandler panics on any error (useful for development)
type PanicErrorHandler struct{}

func (h *PanicErrorHandler) HandleError(err error) {
	panic(fmt.Sprintf("imagecapture error: %v", err))
}
