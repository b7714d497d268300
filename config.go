package imagecapture

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaban/imagecapture/device"
	"github.com/shaban/imagecapture/journal"
)

// AutoOpenPolicy decides which discovered devices get a session without an
// explicit OpenSession call.
type AutoOpenPolicy string

const (
	AutoOpenCameras AutoOpenPolicy = "cameras"
	AutoOpenAll     AutoOpenPolicy = "all"
	AutoOpenNone    AutoOpenPolicy = "none"
)

func (p AutoOpenPolicy) applies(t device.Type) bool {
	switch p {
	case AutoOpenAll:
		return true
	case AutoOpenCameras:
		return t == device.TypeCamera
	}
	return false
}

// Default timeouts. The framework has no intrinsic timeout for any request.
const (
	DefaultOpenTimeout       = 30 * time.Second
	DefaultCloseTimeout      = 10 * time.Second
	DefaultTransferTimeout   = 2 * time.Minute
	DefaultDeleteTimeout     = time.Minute
	DefaultCancelledTokenTTL = time.Minute
)

// Config holds controller configuration. Zero values take defaults.
type Config struct {
	AutoOpen          AutoOpenPolicy `yaml:"auto_open"`
	OpenTimeout       time.Duration  `yaml:"open_timeout"`
	CloseTimeout      time.Duration  `yaml:"close_timeout"`
	TransferTimeout   time.Duration  `yaml:"transfer_timeout"`
	DeleteTimeout     time.Duration  `yaml:"delete_timeout"`
	CancelledTokenTTL time.Duration  `yaml:"cancelled_token_ttl"`
	ClassPrefix       string         `yaml:"class_prefix"`
	Browse            BrowseConfig   `yaml:"browse"`
	// Debug turns thread violations into panics.
	Debug bool `yaml:"debug"`

	Logger       *slog.Logger `yaml:"-"`
	ErrorHandler ErrorHandler `yaml:"-"` // Optional: defaults to DefaultErrorHandler
	Metrics      MetricsHook  `yaml:"-"`
	Journal      journal.Sink `yaml:"-"`
}

// BrowseConfig selects what the device browser reports. An all-false value
// means the default mask.
type BrowseConfig struct {
	Cameras  bool `yaml:"cameras"`
	Scanners bool `yaml:"scanners"`
	Local    bool `yaml:"local"`
	Remote   bool `yaml:"remote"`
}

func (b BrowseConfig) mask() device.BrowseMask {
	if b == (BrowseConfig{}) {
		return device.DefaultBrowseMask()
	}
	return device.BrowseMask{Cameras: b.Cameras, Scanners: b.Scanners, Local: b.Local, Remote: b.Remote}
}

// DefaultConfig returns a config with every default filled in.
func DefaultConfig() Config {
	var c Config
	_ = c.normalize()
	return c
}

// LoadConfig reads a YAML config file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.normalize(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) normalize() error {
	switch c.AutoOpen {
	case "":
		c.AutoOpen = AutoOpenCameras
	case AutoOpenCameras, AutoOpenAll, AutoOpenNone:
	default:
		return fmt.Errorf("unknown auto_open policy %q", c.AutoOpen)
	}

	for _, d := range []struct {
		name string
		v    *time.Duration
		def  time.Duration
	}{
		{"open_timeout", &c.OpenTimeout, DefaultOpenTimeout},
		{"close_timeout", &c.CloseTimeout, DefaultCloseTimeout},
		{"transfer_timeout", &c.TransferTimeout, DefaultTransferTimeout},
		{"delete_timeout", &c.DeleteTimeout, DefaultDeleteTimeout},
		{"cancelled_token_ttl", &c.CancelledTokenTTL, DefaultCancelledTokenTTL},
	} {
		if *d.v < 0 {
			return fmt.Errorf("%s must not be negative, got %s", d.name, *d.v)
		}
		if *d.v == 0 {
			*d.v = d.def
		}
	}

	if c.ClassPrefix == "" {
		c.ClassPrefix = "GoICC"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ErrorHandler == nil {
		c.ErrorHandler = &DefaultErrorHandler{Logger: c.Logger}
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
	if c.Journal == nil {
		c.Journal = journal.Nop{}
	}
	return nil
}
