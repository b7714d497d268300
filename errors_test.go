package imagecapture

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaban/imagecapture/objc"
)

func TestNativeFailure(t *testing.T) {
	assert.NoError(t, nativeFailure("open session", nil))

	nerr := &objc.Error{Domain: "com.apple.ImageCaptureCore", Code: -9923, Description: "device busy"}
	err := nativeFailure("open session", nerr)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNativeCallFailed)
	var oe *objc.Error
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, -9923, oe.Code)
	assert.Contains(t, err.Error(), "open session")
	assert.Contains(t, err.Error(), "device busy")
}

func TestDefaultErrorHandlerLogs(t *testing.T) {
	var buf bytes.Buffer
	h := &DefaultErrorHandler{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	h.HandleError(ErrTimeout)
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "request timed out")
}

func TestLoggingErrorHandlerForwards(t *testing.T) {
	var logged []error
	rec := &recorder{}
	h := NewLoggingErrorHandler(rec, func(err error) { logged = append(logged, err) })
	h.HandleError(ErrCapabilityMissing)

	assert.Equal(t, []error{ErrCapabilityMissing}, logged)
	assert.Equal(t, []error{ErrCapabilityMissing}, rec.Errors())

	// Both parts are optional.
	assert.NotPanics(t, func() { NewLoggingErrorHandler(nil, nil).HandleError(ErrTimeout) })
}

func TestPanicErrorHandler(t *testing.T) {
	assert.PanicsWithValue(t, "imagecapture error: unknown device", func() {
		(&PanicErrorHandler{}).HandleError(ErrUnknownDevice)
	})
}
