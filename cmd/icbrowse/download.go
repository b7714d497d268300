package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	imagecapture "github.com/shaban/imagecapture"
	"github.com/shaban/imagecapture/device"
)

type downloadFlags struct {
	dir         string
	overwrite   bool
	sidecars    bool
	deleteAfter bool
	limit       int
	wait        time.Duration
}

func newDownloadCmd(e *env) *cobra.Command {
	var f downloadFlags
	cmd := &cobra.Command{
		Use:   "download <camera>",
		Short: "Download the media files of a camera",
		Long: `Open a session on the first camera whose name contains <camera>
(case-insensitive) and download its files one at a time.

Examples:
  icbrowse download "EOS 80D" --dir ~/Pictures/import
  icbrowse download canon --sidecars --delete-after
  icbrowse download canon -n 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runDownload(cmd.Context(), cmd.OutOrStdout(), args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.dir, "dir", "d", ".", "destination directory")
	cmd.Flags().BoolVar(&f.overwrite, "overwrite", false, "overwrite existing files")
	cmd.Flags().BoolVar(&f.sidecars, "sidecars", false, "also download sidecar files")
	cmd.Flags().BoolVar(&f.deleteAfter, "delete-after", false, "delete each file from the camera once downloaded")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "download at most this many files (0 for all)")
	cmd.Flags().DurationVarP(&f.wait, "wait", "w", 30*time.Second, "how long to wait for the camera to open")
	return cmd
}

func (e *env) runDownload(ctx context.Context, out io.Writer, query string, f downloadFlags) error {
	dir, err := filepath.Abs(f.dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	found := make(chan imagecapture.DeviceRef, 16)
	opened := make(chan sessionEvent, 16)
	catalog := make(chan struct{}, 1)
	ctrl, stop, err := e.start(imagecapture.Handlers{
		DeviceAdded: func(ref imagecapture.DeviceRef) {
			if ref.Type != device.TypeCamera || !matchName(ref.Name, query) {
				return
			}
			select {
			case found <- ref:
			default:
			}
		},
		SessionOpened: func(ref imagecapture.DeviceRef, err error) {
			select {
			case opened <- sessionEvent{ref, err}:
			default:
			}
		},
		ContentCatalogReady: func(imagecapture.DeviceRef) {
			select {
			case catalog <- struct{}{}:
			default:
			}
		},
	}, func(cfg *imagecapture.Config) { cfg.AutoOpen = imagecapture.AutoOpenNone })
	if err != nil {
		return err
	}
	defer stop()

	deadline := time.NewTimer(f.wait)
	defer deadline.Stop()

	var (
		cam     imagecapture.DeviceRef
		openErr error
	)
wait:
	for {
		select {
		case ref := <-found:
			if err := ctrl.OpenSession(ref.ID); err != nil {
				e.logger.Warn("open session", "device", ref.Name, "error", err)
			}
		case ev := <-opened:
			if ev.err != nil {
				openErr = fmt.Errorf("open %s: %w", ev.ref.Name, ev.err)
				e.logger.Warn("open session", "device", ev.ref.Name, "error", ev.err)
				continue
			}
			cam = ev.ref
			break wait
		case <-deadline.C:
			if openErr != nil {
				return openErr
			}
			return fmt.Errorf("no camera matching %q opened within %s", query, f.wait)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if st, err := ctrl.CameraStatus(cam.ID); err == nil && st.ContentCatalogPercentCompleted < 100 {
		e.logger.Info("waiting for content catalog", "device", cam.Name, "percent", st.ContentCatalogPercentCompleted)
		select {
		case <-catalog:
		case <-deadline.C:
			e.logger.Warn("content catalog incomplete", "device", cam.Name)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	files, infos, err := ctrl.MediaFiles(cam.ID)
	if err != nil {
		return err
	}
	if f.limit > 0 && len(files) > f.limit {
		files, infos = files[:f.limit], infos[:f.limit]
	}
	fmt.Fprintf(out, "%s: %d files\n", cam.Name, len(files))

	opts := device.DownloadOptions{
		Directory:           dir,
		Overwrite:           f.overwrite,
		Sidecars:            f.sidecars,
		DeleteAfterDownload: f.deleteAfter,
	}
	done := make(chan imagecapture.TransferResult, 1)
	failed := 0
	for i, file := range files {
		if _, err := ctrl.DownloadFile(cam.ID, file, opts, infos[i].Name, func(r imagecapture.TransferResult) { done <- r }); err != nil {
			return fmt.Errorf("download %s: %w", infos[i].Name, err)
		}
		select {
		case r := <-done:
			if r.Err != nil {
				failed++
				fmt.Fprintf(out, "  failed %s: %v\n", infos[i].Name, r.Err)
				if errors.Is(r.Err, imagecapture.ErrSessionClosed) || errors.Is(r.Err, imagecapture.ErrInvalidHandle) {
					return fmt.Errorf("%s went away: %w", cam.Name, r.Err)
				}
				continue
			}
			fmt.Fprintf(out, "  saved %s (%s)\n", filepath.Join(dir, r.SavedFilename), r.Duration.Round(time.Millisecond))
			for _, a := range r.AncillaryFiles {
				fmt.Fprintf(out, "  saved %s\n", filepath.Join(dir, a))
			}
		case <-ctx.Done():
			if err := ctrl.CancelDownload(cam.ID); err != nil {
				e.logger.Warn("cancel download", "error", err)
			}
			return ctx.Err()
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(files))
	}
	return nil
}
