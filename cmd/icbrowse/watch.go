package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	imagecapture "github.com/shaban/imagecapture"
	"github.com/shaban/imagecapture/device"
)

func newWatchCmd(e *env) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Log device and session events until interrupted",
		Long: `Browse for devices and log every notification. Sessions are opened
according to the auto-open policy (cameras by default).

Examples:
  icbrowse watch
  icbrowse watch --auto-open all --journal /tmp/icbrowse.icj
  icbrowse watch --for 1m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return e.runWatch(ctx)
		},
	}
	cmd.Flags().DurationVar(&duration, "for", 0, "stop after this long (0 waits for an interrupt)")
	return cmd
}

func (e *env) runWatch(ctx context.Context) error {
	log := e.logger
	_, stop, err := e.start(imagecapture.Handlers{
		DevicesChanged: func(refs []imagecapture.DeviceRef) {
			log.Info("devices changed", "count", len(refs))
		},
		DeviceAdded: func(ref imagecapture.DeviceRef) {
			log.Info("device added", "device", ref.Name, "type", ref.Type, "id", ref.ID)
		},
		DeviceRemoved: func(ref imagecapture.DeviceRef) {
			log.Info("device removed", "device", ref.Name, "id", ref.ID)
		},
		SessionOpened: func(ref imagecapture.DeviceRef, err error) {
			if err != nil {
				log.Warn("session open failed", "device", ref.Name, "error", err)
				return
			}
			log.Info("session opened", "device", ref.Name)
		},
		SessionClosed: func(ref imagecapture.DeviceRef, err error) {
			if err != nil {
				log.Warn("session closed with error", "device", ref.Name, "error", err)
				return
			}
			log.Info("session closed", "device", ref.Name)
		},
		StateChanged: func(ref imagecapture.DeviceRef, from imagecapture.State) {
			log.Debug("state changed", "device", ref.Name, "from", from, "to", ref.State)
		},
		ContentCatalogReady: func(ref imagecapture.DeviceRef) {
			log.Info("content catalog ready", "device", ref.Name)
		},
		ItemsAdded: func(ref imagecapture.DeviceRef, files []device.File) {
			log.Info("items added", "device", ref.Name, "count", len(files))
		},
		ItemsRemoved: func(ref imagecapture.DeviceRef, files []device.File) {
			log.Info("items removed", "device", ref.Name, "count", len(files))
		},
	}, nil)
	if err != nil {
		return err
	}
	defer stop()

	<-ctx.Done()
	log.Info("watch finished", "reason", ctx.Err())
	return nil
}
