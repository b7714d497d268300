package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shaban/imagecapture/journal"
)

func newJournalCmd(*env) *cobra.Command {
	var (
		deviceID string
		kind     string
		asYAML   bool
	)
	cmd := &cobra.Command{
		Use:   "journal <file>",
		Short: "Print a recorded event journal",
		Long: `Decode a journal written with --journal and print one line per event.

Examples:
  icbrowse journal /tmp/icbrowse.icj
  icbrowse journal /tmp/icbrowse.icj --kind state --device 6f1c...
  icbrowse journal /tmp/icbrowse.icj --yaml`,
		Args: cobra.ExactArgs(1),
		// Reading a journal needs no config, logger or camera.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := journal.Filter{DeviceID: deviceID}
			if kind != "" {
				k, ok := journal.ParseKind(kind)
				if !ok {
					return fmt.Errorf("unknown event kind %q (state, request, error, browser)", kind)
				}
				filter.Kind = &k
			}
			r, err := journal.Open(args[0], filter)
			if err != nil {
				return err
			}
			defer r.Close()
			events, err := r.All()
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if asYAML {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(events)
			}
			for _, ev := range events {
				printEvent(cmd.OutOrStdout(), ev)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&deviceID, "device", "", "only events for this device id")
	cmd.Flags().StringVar(&kind, "kind", "", "only events of this kind (state, request, error, browser)")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print events as YAML")
	return cmd
}

func printEvent(w io.Writer, ev journal.Event) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-7s", ev.Timestamp.Format(time.RFC3339Nano), ev.Kind)
	if ev.DeviceName != "" {
		fmt.Fprintf(&b, " %q", ev.DeviceName)
	}
	switch {
	case ev.State != nil:
		fmt.Fprintf(&b, " %s -> %s", ev.State.From, ev.State.To)
		if ev.State.Cause != "" {
			fmt.Fprintf(&b, " (%s)", ev.State.Cause)
		}
	case ev.Request != nil:
		fmt.Fprintf(&b, " %s %s", ev.Request.Op, ev.Request.Phase)
		if ev.Request.Token != 0 {
			fmt.Fprintf(&b, " token=%d", ev.Request.Token)
		}
		if ev.Request.Duration > 0 {
			fmt.Fprintf(&b, " took=%s", ev.Request.Duration)
		}
		if ev.Request.Err != "" {
			fmt.Fprintf(&b, " err=%q", ev.Request.Err)
		}
	case ev.Error != nil:
		fmt.Fprintf(&b, " %s", ev.Error.Message)
		if ev.Error.Context != "" {
			fmt.Fprintf(&b, " [%s]", ev.Error.Context)
		}
	case ev.Browser != nil:
		verb := "removed"
		if ev.Browser.Added {
			verb = "added"
		}
		fmt.Fprintf(&b, " %s", verb)
		if ev.Browser.Transport != "" {
			fmt.Fprintf(&b, " via %s", ev.Browser.Transport)
		}
		if ev.Browser.More {
			b.WriteString(" (more coming)")
		}
	}
	fmt.Fprintln(w, b.String())
}
