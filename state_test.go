package imagecapture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaban/imagecapture/device"
)

func TestTerminalStatesNeverReachOpen(t *testing.T) {
	all := []State{Discovered, Opening, Open, Closing, Closed, Removed, Error}
	for _, from := range all {
		if !from.Terminal() {
			continue
		}
		for _, to := range all {
			if to == Removed {
				continue
			}
			if canTransition(from, to) {
				t.Errorf("terminal %s must not move to %s", from, to)
			}
		}
	}
}

func TestRemovalFromEveryState(t *testing.T) {
	for _, s := range []State{Discovered, Opening, Open, Closing, Closed, Error} {
		if !canTransition(s, Removed) {
			t.Errorf("%s -> Removed should be legal", s)
		}
	}
	if canTransition(Removed, Removed) {
		t.Error("Removed -> Removed should not be a transition")
	}
}

func TestLegalTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Discovered, Opening, true},
		{Opening, Open, true},
		{Opening, Discovered, true},
		{Open, Closing, true},
		{Closing, Closed, true},
		{Closing, Error, true},
		{Open, Opening, false},
		{Closing, Open, false},
		{Discovered, Closing, false},
	}
	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	if Open.String() != "Open" {
		t.Errorf("Open.String() = %q", Open.String())
	}
	if got := State(42).String(); got != "State(42)" {
		t.Errorf("State(42).String() = %q", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.AutoOpen != AutoOpenCameras {
		t.Errorf("AutoOpen = %q, want cameras", c.AutoOpen)
	}
	if c.OpenTimeout != DefaultOpenTimeout || c.TransferTimeout != DefaultTransferTimeout {
		t.Errorf("timeouts not defaulted: %+v", c)
	}
	if c.ClassPrefix != "GoICC" {
		t.Errorf("ClassPrefix = %q", c.ClassPrefix)
	}
	if c.Logger == nil || c.ErrorHandler == nil || c.Metrics == nil || c.Journal == nil {
		t.Error("ambient hooks not defaulted")
	}
	if c.Browse.mask() != device.DefaultBrowseMask() {
		t.Error("empty browse config should use the default mask")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "icc.yaml")
	data := `
auto_open: all
open_timeout: 5s
transfer_timeout: 90s
class_prefix: MyApp
browse:
  cameras: true
  local: true
debug: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.AutoOpen != AutoOpenAll {
		t.Errorf("AutoOpen = %q", c.AutoOpen)
	}
	if c.OpenTimeout != 5*time.Second || c.TransferTimeout != 90*time.Second {
		t.Errorf("timeouts = %s, %s", c.OpenTimeout, c.TransferTimeout)
	}
	if c.CloseTimeout != DefaultCloseTimeout {
		t.Errorf("CloseTimeout = %s, want default", c.CloseTimeout)
	}
	if c.ClassPrefix != "MyApp" || !c.Debug {
		t.Errorf("unexpected config %+v", c)
	}
	want := device.BrowseMask{Cameras: true, Local: true}
	if c.Browse.mask() != want {
		t.Errorf("mask = %+v, want %+v", c.Browse.mask(), want)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	for name, data := range map[string]string{
		"policy":   "auto_open: sometimes\n",
		"negative": "open_timeout: -1s\n",
		"yaml":     "auto_open: [\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "icc.yaml")
			if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
