package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	imagecapture "github.com/shaban/imagecapture"
)

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

// controllerConfig loads the config file viper found, if any, and applies
// environment and flag overrides on top.
func controllerConfig(v *viper.Viper, logger *slog.Logger) (imagecapture.Config, error) {
	var cfg imagecapture.Config
	if path := v.ConfigFileUsed(); path != "" {
		loaded, err := imagecapture.LoadConfig(path)
		if err != nil {
			return imagecapture.Config{}, err
		}
		cfg = loaded
	}

	if v.IsSet("auto_open") {
		cfg.AutoOpen = imagecapture.AutoOpenPolicy(strings.ToLower(v.GetString("auto_open")))
	}
	if v.IsSet("open_timeout") {
		cfg.OpenTimeout = v.GetDuration("open_timeout")
	}
	if v.IsSet("transfer_timeout") {
		cfg.TransferTimeout = v.GetDuration("transfer_timeout")
	}
	if v.GetBool("debug") {
		cfg.Debug = true
	}

	cfg.Logger = logger
	cfg.ErrorHandler = &imagecapture.DefaultErrorHandler{Logger: logger}
	return cfg, nil
}

// matchName reports whether a device name contains query, ignoring case.
func matchName(name, query string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(strings.TrimSpace(query)))
}
