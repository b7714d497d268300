package imagecapture

import (
	"time"

	"github.com/google/uuid"
)

// RequestKind names an asynchronous request tracked by a watchdog.
type RequestKind string

const (
	RequestOpen     RequestKind = "open"
	RequestClose    RequestKind = "close"
	RequestDownload RequestKind = "download"
	RequestUpload   RequestKind = "upload"
	RequestRead     RequestKind = "read"
	RequestDelete   RequestKind = "delete"
	RequestPTP      RequestKind = "ptp"
)

// MetricsHook lets callers observe session transitions and request
// durations. Methods run on the loop thread and must return quickly.
type MetricsHook interface {
	OnStateChange(device uuid.UUID, from, to State)

	// Request lifecycle. OnRequestDone fires once per started request,
	// including timeouts and cancellations.
	OnRequestStart(device uuid.UUID, kind RequestKind)
	OnRequestDone(device uuid.UUID, kind RequestKind, duration time.Duration, err error)

	OnTimeout(device uuid.UUID, kind RequestKind)
}

type nopMetrics struct{}

func (nopMetrics) OnStateChange(uuid.UUID, State, State)                      {}
func (nopMetrics) OnRequestStart(uuid.UUID, RequestKind)                      {}
func (nopMetrics) OnRequestDone(uuid.UUID, RequestKind, time.Duration, error) {}
func (nopMetrics) OnTimeout(uuid.UUID, RequestKind)                           {}
