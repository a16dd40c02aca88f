package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written as "1s" or "100ms" in
// both TOML and YAML files.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type WindowConfig struct {
	Title  string `toml:"title" yaml:"title"`
	X      uint32 `toml:"x" yaml:"x"`
	Y      uint32 `toml:"y" yaml:"y"`
	Width  uint32 `toml:"width" yaml:"width"`
	Height uint32 `toml:"height" yaml:"height"`
}

type RendererConfig struct {
	// Number of frames the CPU may record ahead of the GPU.
	FramesInFlight int      `toml:"frames_in_flight" yaml:"frames_in_flight"`
	FenceTimeout   Duration `toml:"fence_timeout" yaml:"fence_timeout"`
	AcquireTimeout Duration `toml:"acquire_timeout" yaml:"acquire_timeout"`
	Validation     bool     `toml:"validation" yaml:"validation"`
	// fifo or mailbox
	PresentMode string `toml:"present_mode" yaml:"present_mode"`
}

type BackgroundConfig struct {
	CycleLength uint32 `toml:"cycle_length" yaml:"cycle_length"`
}

type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

type RunConfig struct {
	// How long to sleep per iteration while the window is minimized.
	SuspendSleep Duration `toml:"suspend_sleep" yaml:"suspend_sleep"`
	// Log frame statistics every N frames, 0 disables.
	StatsEvery uint64 `toml:"stats_every" yaml:"stats_every"`
	// Stop after N frames, 0 runs until quit.
	MaxFrames uint64 `toml:"max_frames" yaml:"max_frames"`
}

type Config struct {
	Window     WindowConfig     `toml:"window" yaml:"window"`
	Renderer   RendererConfig   `toml:"renderer" yaml:"renderer"`
	Background BackgroundConfig `toml:"background" yaml:"background"`
	Log        LogConfig        `toml:"log" yaml:"log"`
	Run        RunConfig        `toml:"run" yaml:"run"`
}

const (
	DefaultFramesInFlight = 2
	DefaultCycleLength    = 200
	PresentModeFifo       = "fifo"
	PresentModeMailbox    = "mailbox"
)

func DefaultConfig() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "Lumen",
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			FramesInFlight: DefaultFramesInFlight,
			FenceTimeout:   Duration{time.Second},
			AcquireTimeout: Duration{time.Second},
			Validation:     true,
			PresentMode:    PresentModeFifo,
		},
		Background: BackgroundConfig{
			CycleLength: DefaultCycleLength,
		},
		Log: LogConfig{
			Level: "debug",
		},
		Run: RunConfig{
			SuspendSleep: Duration{100 * time.Millisecond},
			StatsEvery:   600,
		},
	}
}

func (c *Config) Validate() error {
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return fmt.Errorf("%w: window size must be non-zero, got %dx%d", ErrInvalidConfig, c.Window.Width, c.Window.Height)
	}
	if c.Renderer.FramesInFlight < 2 {
		return fmt.Errorf("%w: renderer.frames_in_flight must be at least 2, got %d", ErrInvalidConfig, c.Renderer.FramesInFlight)
	}
	if c.Renderer.FenceTimeout.Duration <= 0 {
		return fmt.Errorf("%w: renderer.fence_timeout must be positive", ErrInvalidConfig)
	}
	if c.Renderer.AcquireTimeout.Duration <= 0 {
		return fmt.Errorf("%w: renderer.acquire_timeout must be positive", ErrInvalidConfig)
	}
	switch c.Renderer.PresentMode {
	case PresentModeFifo, PresentModeMailbox:
	default:
		return fmt.Errorf("%w: unknown renderer.present_mode %q", ErrInvalidConfig, c.Renderer.PresentMode)
	}
	if c.Background.CycleLength == 0 {
		return fmt.Errorf("%w: background.cycle_length must be non-zero", ErrInvalidConfig)
	}
	if c.Run.SuspendSleep.Duration <= 0 {
		return fmt.Errorf("%w: run.suspend_sleep must be positive", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads the file at path on top of DefaultConfig. An empty path
// returns the defaults. The format is chosen by extension: .toml, .yaml or .yml.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes data in the format named by ext on top of DefaultConfig
// and validates the result. Unknown keys are rejected.
func ParseConfig(data []byte, ext string) (*Config, error) {
	cfg := DefaultConfig()
	switch strings.ToLower(ext) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// an empty document leaves the defaults untouched
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config format %q", ErrInvalidConfig, ext)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
