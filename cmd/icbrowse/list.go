package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	imagecapture "github.com/shaban/imagecapture"
	"github.com/shaban/imagecapture/device"
)

func newListCmd(e *env) *cobra.Command {
	var (
		wait time.Duration
		open bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List attached cameras and scanners",
		Long: `List the devices the browser reports within --wait.

With --open, a session is opened on every camera so battery level and file
count can be shown.

Examples:
  icbrowse list
  icbrowse list --open --wait 10s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.runList(cmd.Context(), cmd.OutOrStdout(), wait, open)
		},
	}
	cmd.Flags().DurationVarP(&wait, "wait", "w", 3*time.Second, "how long to wait for devices")
	cmd.Flags().BoolVar(&open, "open", false, "open a session on each camera and show its status")
	return cmd
}

type sessionEvent struct {
	ref imagecapture.DeviceRef
	err error
}

func (e *env) runList(ctx context.Context, out io.Writer, wait time.Duration, open bool) error {
	batches := make(chan []imagecapture.DeviceRef, 8)
	opened := make(chan sessionEvent, 16)

	ctrl, stop, err := e.start(imagecapture.Handlers{
		DevicesChanged: func(refs []imagecapture.DeviceRef) {
			select {
			case batches <- refs:
			default:
			}
		},
		SessionOpened: func(ref imagecapture.DeviceRef, err error) {
			select {
			case opened <- sessionEvent{ref, err}:
			default:
			}
		},
	}, func(cfg *imagecapture.Config) {
		cfg.AutoOpen = imagecapture.AutoOpenNone
		if open {
			cfg.AutoOpen = imagecapture.AutoOpenCameras
		}
	})
	if err != nil {
		return err
	}
	defer stop()

	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	expired := false
	select {
	case <-batches:
	case <-deadline.C:
		expired = true
	case <-ctx.Done():
		return ctx.Err()
	}
	refs := ctrl.Devices()
	if len(refs) == 0 {
		fmt.Fprintln(out, "No devices found.")
		return nil
	}

	results := make(map[uuid.UUID]error)
	if open && !expired {
		want := 0
		for _, r := range refs {
			if r.Type == device.TypeCamera {
				want++
			}
		}
	collect:
		for len(results) < want {
			select {
			case ev := <-opened:
				results[ev.ref.ID] = ev.err
			case <-deadline.C:
				break collect
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tTRANSPORT\tSTATE\tCAPABILITIES\tDETAIL")
	for _, r := range refs {
		info, err := ctrl.Info(r.ID)
		if err != nil {
			e.logger.Warn("read device info", "device", r.Name, "error", err)
			continue
		}
		state, _ := ctrl.State(r.ID)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			info.Name, info.Type, info.Transport, state, info.Capabilities, detail(ctrl, r, state, results[r.ID]))
	}
	return tw.Flush()
}

// detail summarizes an open camera, or why its session failed.
func detail(ctrl *imagecapture.Controller, r imagecapture.DeviceRef, state imagecapture.State, openErr error) string {
	if openErr != nil {
		return "open failed: " + openErr.Error()
	}
	if r.Type != device.TypeCamera || state != imagecapture.Open {
		return ""
	}
	st, err := ctrl.CameraStatus(r.ID)
	if err != nil {
		return ""
	}
	d := ""
	if st.BatteryLevelAvailable {
		d = fmt.Sprintf("battery %d%% ", st.BatteryLevel)
	}
	files, _, err := ctrl.MediaFiles(r.ID)
	if err == nil {
		d += fmt.Sprintf("%d files", len(files))
	}
	return d
}
