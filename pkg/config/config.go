// Package config provides configuration loading and management.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/glhdr/pkg/adapters/framedump"
	"github.com/user/glhdr/pkg/orchestrator"
	"github.com/user/glhdr/pkg/ports"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// Config represents the full configuration for glhdr.
type Config struct {
	// Input/Output
	Mode      string `yaml:"mode"`
	Input     string `yaml:"input"`
	OutputDir string `yaml:"output_dir"`

	// Encoding
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	Bitrate        int     `yaml:"bitrate"`
	FPS            int     `yaml:"fps"`
	CaptureSeconds float64 `yaml:"capture_seconds"`
	HDR            bool    `yaml:"hdr"`

	// Playback
	Pacing         string `yaml:"pacing"`
	PaceIntervalMs int    `yaml:"pace_interval_ms"`

	// Preview
	PreviewDir     string  `yaml:"preview_dir"`
	PreviewWidth   int     `yaml:"preview_width"`
	PreviewHeight  int     `yaml:"preview_height"`
	PreviewEvery   int     `yaml:"preview_every"`
	PreviewScale   float64 `yaml:"preview_scale"`
	PreviewOverlay bool    `yaml:"preview_overlay"`
	PreviewFormat  string  `yaml:"preview_format"`

	// Tools
	FFmpegPath string `yaml:"ffmpeg_path"`
	LogLevel   string `yaml:"log_level"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Mode:      string(orchestrator.ModeCapture),
		OutputDir: ".",

		Width:          1920,
		Height:         1080,
		Bitrate:        10_000_000,
		FPS:            30,
		CaptureSeconds: 5,
		HDR:            true,

		Pacing:         string(orchestrator.PacingFixed),
		PaceIntervalMs: 33,

		PreviewWidth:  1280,
		PreviewHeight: 720,
		PreviewEvery:  1,
		PreviewScale:  1,
		PreviewFormat: "png",

		LogLevel: "info",
	}
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes YAML into cfg. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate checks the values that the orchestrator does not.
func (c Config) Validate() error {
	if _, err := orchestrator.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("%w: mode %q", ErrInvalid, c.Mode)
	}
	if c.PaceIntervalMs <= 0 {
		return fmt.Errorf("%w: pace_interval_ms must be positive", ErrInvalid)
	}
	if c.CaptureSeconds < 0 {
		return fmt.Errorf("%w: capture_seconds must not be negative", ErrInvalid)
	}
	if c.PreviewEvery < 0 || c.PreviewScale < 0 {
		return fmt.Errorf("%w: preview_every and preview_scale must not be negative", ErrInvalid)
	}
	if _, err := c.ImageFormat(); err != nil {
		return err
	}
	if c.LogLevel != "" && ports.ParseLogLevel(c.LogLevel).String() != c.LogLevel {
		return fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
	return nil
}

// ImageFormat returns the preview snapshot format.
func (c Config) ImageFormat() (ports.ImageFormat, error) {
	switch c.PreviewFormat {
	case "", "png":
		return ports.FormatPNG, nil
	case "jpg", "jpeg":
		return ports.FormatJPEG, nil
	}
	return 0, fmt.Errorf("%w: preview_format %q", ErrInvalid, c.PreviewFormat)
}

// ToOrchestratorConfig converts Config to orchestrator.Config.
func (c Config) ToOrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		Mode:      orchestrator.Mode(c.Mode),
		InputPath: c.Input,
		OutputDir: c.OutputDir,

		Width:           c.Width,
		Height:          c.Height,
		BitrateBps:      c.Bitrate,
		FPS:             c.FPS,
		CaptureDuration: time.Duration(c.CaptureSeconds * float64(time.Second)),
		HDR:             c.HDR,

		Pacing:       orchestrator.Pacing(c.Pacing),
		PaceInterval: time.Duration(c.PaceIntervalMs) * time.Millisecond,
	}
}

// PreviewOptions returns the options of the snapshot preview window.
func (c Config) PreviewOptions() framedump.Options {
	format, _ := c.ImageFormat()
	return framedump.Options{
		Dir:     c.PreviewDir,
		Width:   c.PreviewWidth,
		Height:  c.PreviewHeight,
		Every:   c.PreviewEvery,
		Scale:   c.PreviewScale,
		Overlay: c.PreviewOverlay,
		Format:  format,
	}
}
