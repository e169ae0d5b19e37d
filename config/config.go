// Package config provides configuration loading and access for the viewer.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"image/color"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all viewer configuration parameters.
type Config struct {
	Screen     ScreenConfig     `yaml:"screen"`
	Connection ConnectionConfig `yaml:"connection"`
	Control    ControlConfig    `yaml:"control"`
	Render     RenderConfig     `yaml:"render"`
	Palette    PaletteConfig    `yaml:"palette"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds window and frame rate parameters.
type ScreenConfig struct {
	Title     string `yaml:"title"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	MinWidth  int    `yaml:"min_width"`  // resize floor
	MinHeight int    `yaml:"min_height"` // resize floor
	TargetFPS int    `yaml:"target_fps"`
	MinFPS    int    `yaml:"min_fps"`
	MaxFPS    int    `yaml:"max_fps"`
	FPSStep   int    `yaml:"fps_step"` // up/down arrow increment
}

// ConnectionConfig holds the simulation websocket parameters.
type ConnectionConfig struct {
	URI              string        `yaml:"uri"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"` // 0 waits indefinitely
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ValidateFrames   bool          `yaml:"validate_frames"` // JSON schema check before decode
}

// ControlConfig holds playback delay parameters.
type ControlConfig struct {
	InitialDelayMS int     `yaml:"initial_delay_ms"`
	StepMS         int     `yaml:"step_ms"` // left/right arrow increment
	SendsPerSecond float64 `yaml:"sends_per_second"`
	Burst          int     `yaml:"burst"`
}

// RenderConfig holds drawing parameters.
type RenderConfig struct {
	BorderOffset float32 `yaml:"border_offset"` // horizontal pixel shift of the world
	LineWidth    float32 `yaml:"line_width"`
	PointRadius  float32 `yaml:"point_radius"`
	FontSize     int32   `yaml:"font_size"`
	Labels       bool    `yaml:"labels"` // draw entity property values
}

// Color is an RGBA quadruple written as [r, g, b, a] in YAML.
type Color [4]uint8

// RGBA converts c to a color.RGBA.
func (c Color) RGBA() color.RGBA {
	return color.RGBA{R: c[0], G: c[1], B: c[2], A: c[3]}
}

// PaletteConfig holds layer and overlay colors.
type PaletteConfig struct {
	Background Color   `yaml:"background"`
	Vectors    []Color `yaml:"vectors"` // entity colors, cycled by layer id
	Rasters    []Color `yaml:"rasters"` // raster base colors, cycled by layer id
	Polygon    Color   `yaml:"polygon"`
	Line       Color   `yaml:"line"`
	Ring       Color   `yaml:"ring"`
	Point      Color   `yaml:"point"`
	Label      Color   `yaml:"label"`
	HUD        Color   `yaml:"hud"`
	BarBorder  Color   `yaml:"bar_border"`
	BarFill    Color   `yaml:"bar_fill"`
}

// TelemetryConfig holds stats collection parameters.
type TelemetryConfig struct {
	StatsWindow     time.Duration `yaml:"stats_window"`     // ingest stats window
	PerfWindow      int           `yaml:"perf_window"`      // frames per perf window
	BookmarkHistory int           `yaml:"bookmark_history"` // windows in the bookmark rolling average
}

// DerivedConfig holds values computed from other config values.
type DerivedConfig struct {
	ScreenW32 float32
	ScreenH32 float32
}

var global *Config

// Init loads configuration from the given path (or embedded defaults if
// empty) and installs it as the global config.
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Set installs cfg as the global config.
func Set(cfg *Config) {
	global = cfg
}

// Cfg returns the global config. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load reads the embedded defaults and overlays the file at path, if any.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize validates the config and recomputes derived values. Call it
// after changing fields by hand, e.g. from command-line flags.
func (c *Config) Finalize() error {
	if err := c.validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.Connection.URI)
	if err != nil {
		return fmt.Errorf("%w: connection.uri: %v", ErrInvalid, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: connection.uri must use ws or wss, got %q", ErrInvalid, c.Connection.URI)
	}
	if c.Screen.MinFPS < 1 || c.Screen.MaxFPS < c.Screen.MinFPS {
		return fmt.Errorf("%w: screen fps bounds [%d, %d]", ErrInvalid, c.Screen.MinFPS, c.Screen.MaxFPS)
	}
	if c.Screen.Width < c.Screen.MinWidth || c.Screen.Height < c.Screen.MinHeight {
		return fmt.Errorf("%w: screen %dx%d is below the minimum %dx%d", ErrInvalid,
			c.Screen.Width, c.Screen.Height, c.Screen.MinWidth, c.Screen.MinHeight)
	}
	if c.Control.InitialDelayMS < 0 {
		return fmt.Errorf("%w: control.initial_delay_ms is negative", ErrInvalid)
	}
	if len(c.Palette.Vectors) == 0 || len(c.Palette.Rasters) == 0 {
		return fmt.Errorf("%w: palette needs at least one vector and one raster color", ErrInvalid)
	}
	return nil
}

func (c *Config) computeDerived() {
	c.Derived.ScreenW32 = float32(c.Screen.Width)
	c.Derived.ScreenH32 = float32(c.Screen.Height)

	// Out-of-range target is pulled into bounds rather than rejected.
	c.Screen.TargetFPS = min(max(c.Screen.TargetFPS, c.Screen.MinFPS), c.Screen.MaxFPS)
}

// WriteYAML saves the config to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
