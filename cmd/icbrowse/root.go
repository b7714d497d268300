package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	imagecapture "github.com/shaban/imagecapture"
	"github.com/shaban/imagecapture/journal"
	"github.com/shaban/imagecapture/runloop"
)

// env is the state shared by every command of one invocation.
type env struct {
	loop      runloop.Loop
	framework func(runloop.Loop) (imagecapture.Framework, error)
	v         *viper.Viper
	logger    *slog.Logger
	stats     *requestStats
	closers   []func() error
}

func newEnv(loop runloop.Loop, framework func(runloop.Loop) (imagecapture.Framework, error)) *env {
	return &env{loop: loop, framework: framework, v: viper.New()}
}

// persistent flag name -> viper key
var boundFlags = map[string]string{
	"config":           "config",
	"log-level":        "log_level",
	"journal":          "journal",
	"debug":            "debug",
	"auto-open":        "auto_open",
	"open-timeout":     "open_timeout",
	"transfer-timeout": "transfer_timeout",
	"stats":            "stats",
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "icbrowse",
		Short: "Browse and import from cameras attached to this Mac",
		Long: `icbrowse drives ImageCaptureCore from the command line. It discovers
cameras and scanners, opens device sessions and downloads media files.

Configuration is read from $HOME/.config/icbrowse/config.yaml (or --config),
then ICBROWSE_* environment variables, then flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return e.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e.stats != nil {
				e.stats.print(cmd.ErrOrStderr())
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "config file (default is $HOME/.config/icbrowse/config.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("journal", "", "record a CBOR event journal to this file")
	pf.Bool("debug", false, "panic on callbacks delivered off the main thread")
	pf.String("auto-open", "", "open sessions automatically (cameras, all, none)")
	pf.Duration("open-timeout", 0, "session open timeout")
	pf.Duration("transfer-timeout", 0, "per-file transfer timeout")
	pf.Bool("stats", false, "print request statistics when done")
	for flag, key := range boundFlags {
		_ = e.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(newListCmd(e), newDownloadCmd(e), newWatchCmd(e), newJournalCmd(e))
	return root
}

// execute runs the command line against loop and releases what the command
// opened.
func execute(ctx context.Context, loop runloop.Loop) error {
	e := newEnv(loop, openFramework)
	defer e.close()
	return newRootCmd(e).ExecuteContext(ctx)
}

func (e *env) init() error {
	if path := e.v.GetString("config"); path != "" {
		e.v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			e.v.AddConfigPath(filepath.Join(home, ".config", "icbrowse"))
		}
		e.v.SetConfigName("config")
		e.v.SetConfigType("yaml")
	}
	e.v.SetEnvPrefix("ICBROWSE")
	e.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	e.v.AutomaticEnv()

	if err := e.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	logger, err := newLogger(os.Stderr, e.v.GetString("log_level"))
	if err != nil {
		return err
	}
	e.logger = logger
	return nil
}

// start builds a controller with the configured options and starts
// browsing. The returned stop func stops the controller.
func (e *env) start(h imagecapture.Handlers, mutate func(*imagecapture.Config)) (*imagecapture.Controller, func(), error) {
	fw, err := e.framework(e.loop)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := controllerConfig(e.v, e.logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Journal, err = e.journal(); err != nil {
		return nil, nil, err
	}
	if e.v.GetBool("stats") {
		e.stats = newRequestStats()
		cfg.Metrics = e.stats
	}
	if mutate != nil {
		mutate(&cfg)
	}

	ctrl, err := imagecapture.New(e.loop, fw, cfg, h)
	if err != nil {
		return nil, nil, err
	}
	if err := ctrl.Start(); err != nil {
		return nil, nil, fmt.Errorf("start browsing: %w", err)
	}
	stop := func() {
		if err := ctrl.Stop(); err != nil {
			e.logger.Warn("stop controller", "error", err)
		}
	}
	return ctrl, stop, nil
}

// journal returns the event sink: debug logging, plus a file when
// --journal is set.
func (e *env) journal() (journal.Sink, error) {
	sink := journal.Sink(journal.NewSlogSink(e.logger))
	path := e.v.GetString("journal")
	if path == "" {
		return sink, nil
	}
	w, err := journal.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create journal: %w", err)
	}
	e.closers = append(e.closers, w.Close)
	return journal.Multi(sink, w), nil
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && e.logger != nil {
			e.logger.Warn("close", "error", err)
		}
	}
	e.closers = nil
}
