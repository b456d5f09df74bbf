package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/glhdr/pkg/orchestrator"
	"github.com/user/glhdr/pkg/ports"
)

func TestDefaults_MatchRecorderSettings(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	oc := cfg.ToOrchestratorConfig()
	want := orchestrator.DefaultConfig()
	if oc.Width != want.Width || oc.Height != want.Height || oc.BitrateBps != want.BitrateBps || oc.FPS != want.FPS {
		t.Errorf("encoding = %dx%d %d bps %d fps", oc.Width, oc.Height, oc.BitrateBps, oc.FPS)
	}
	if oc.CaptureDuration != 5*time.Second {
		t.Errorf("CaptureDuration = %v, want 5s", oc.CaptureDuration)
	}
	if oc.PaceInterval != 33*time.Millisecond || oc.Pacing != orchestrator.PacingFixed {
		t.Errorf("pacing = %s %v", oc.Pacing, oc.PaceInterval)
	}
	if !oc.HDR || oc.Mode != orchestrator.ModeCapture {
		t.Errorf("mode %s hdr %t", oc.Mode, oc.HDR)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glhdr.yaml")
	data := []byte(`
mode: both
input: /videos/hlg.mp4
capture_seconds: 1.5
pacing: pts
preview_dir: /tmp/previews
preview_every: 10
preview_format: jpg
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Mode != "both" || cfg.Input != "/videos/hlg.mp4" {
		t.Errorf("mode %q input %q", cfg.Mode, cfg.Input)
	}
	// Unset keys keep their defaults.
	if cfg.Width != 1920 || cfg.Bitrate != 10_000_000 || !cfg.HDR {
		t.Errorf("defaults lost: %+v", cfg)
	}
	oc := cfg.ToOrchestratorConfig()
	if oc.CaptureDuration != 1500*time.Millisecond {
		t.Errorf("CaptureDuration = %v", oc.CaptureDuration)
	}
	if oc.Pacing != orchestrator.PacingPTS {
		t.Errorf("Pacing = %s", oc.Pacing)
	}

	opts := cfg.PreviewOptions()
	if opts.Dir != "/tmp/previews" || opts.Every != 10 || opts.Format != ports.FormatJPEG {
		t.Errorf("PreviewOptions = %+v", opts)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("colour: red\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("unknown key should be rejected")
	}
}

func TestParse_Empty(t *testing.T) {
	cfg := Defaults()
	if err := Parse([]byte("\n# nothing\n"), &cfg); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg != Defaults() {
		t.Error("empty document changed the defaults")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"mode", func(c *Config) { c.Mode = "record" }},
		{"pace interval", func(c *Config) { c.PaceIntervalMs = 0 }},
		{"capture seconds", func(c *Config) { c.CaptureSeconds = -1 }},
		{"preview every", func(c *Config) { c.PreviewEvery = -1 }},
		{"preview format", func(c *Config) { c.PreviewFormat = "gif" }},
		{"log level", func(c *Config) { c.LogLevel = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}
