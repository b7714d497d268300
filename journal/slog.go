package journal

import (
	"context"
	"log/slog"
)

// SlogSink writes events to an slog.Logger at debug level, errors at warn.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Record(e Event) {
	attrs := []slog.Attr{slog.String("kind", e.Kind.String())}
	if e.DeviceID != "" {
		attrs = append(attrs, slog.String("device", e.DeviceID))
	}
	if e.DeviceName != "" {
		attrs = append(attrs, slog.String("name", e.DeviceName))
	}
	level := slog.LevelDebug

	switch {
	case e.State != nil:
		attrs = append(attrs, slog.String("from", e.State.From), slog.String("to", e.State.To))
		if e.State.Cause != "" {
			attrs = append(attrs, slog.String("event", e.State.Cause))
		}
	case e.Request != nil:
		attrs = append(attrs,
			slog.String("op", e.Request.Op),
			slog.String("phase", e.Request.Phase.String()),
		)
		if e.Request.Token != 0 {
			attrs = append(attrs, slog.Uint64("token", e.Request.Token))
		}
		if e.Request.Duration > 0 {
			attrs = append(attrs, slog.Duration("duration", e.Request.Duration))
		}
		if e.Request.Err != "" {
			attrs = append(attrs, slog.String("error", e.Request.Err))
		}
	case e.Error != nil:
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", e.Error.Message))
		if e.Error.Context != "" {
			attrs = append(attrs, slog.String("context", e.Error.Context))
		}
	case e.Browser != nil:
		attrs = append(attrs, slog.Bool("added", e.Browser.Added), slog.Bool("more", e.Browser.More))
		if e.Browser.Transport != "" {
			attrs = append(attrs, slog.String("transport", e.Browser.Transport))
		}
	}

	s.logger.LogAttrs(context.Background(), level, "journal", attrs...)
}

var _ Sink = (*SlogSink)(nil)
