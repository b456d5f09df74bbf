// Package main provides the CLI entry point for glhdr.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/ideamans/go-l10n"

	"github.com/user/glhdr/pkg/adapters/ffmpegcodec"
	"github.com/user/glhdr/pkg/adapters/framedump"
	"github.com/user/glhdr/pkg/adapters/ggrenderer"
	"github.com/user/glhdr/pkg/adapters/hevcrecorder"
	"github.com/user/glhdr/pkg/adapters/logger"
	"github.com/user/glhdr/pkg/adapters/mp4extractor"
	"github.com/user/glhdr/pkg/adapters/nullsink"
	"github.com/user/glhdr/pkg/adapters/osfilesystem"
	"github.com/user/glhdr/pkg/adapters/softgl"
	"github.com/user/glhdr/pkg/config"
	"github.com/user/glhdr/pkg/framesource"
	"github.com/user/glhdr/pkg/orchestrator"
	"github.com/user/glhdr/pkg/ports"
	"github.com/user/glhdr/pkg/summarizer"
)

// CLI defines the command-line interface with subcommands.
type CLI struct {
	Capture CaptureCmd `cmd:"" help:"Record an HDR video through the shader pipeline into an HEVC MP4."`
	Preview PreviewCmd `cmd:"" help:"Play a video through the shader pipeline into a preview window."`
	Probe   ProbeCmd   `cmd:"" help:"Show the tracks of a video and the one playback would select."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// SessionFlags are shared by the capture and preview commands. Pointer
// fields override the configuration file only when given.
type SessionFlags struct {
	Input  string `arg:"" help:"Input MP4 file path."`
	Config string `short:"c" type:"existingfile" help:"YAML configuration file."`

	// Playback
	Pacing         *string `help:"Frame pacing (fixed or pts)."`
	PaceIntervalMs *int    `help:"Fixed pacing interval in milliseconds."`
	SDR            bool    `help:"Render 8-bit SDR instead of 10-bit HLG."`

	// Preview
	PreviewDir     *string  `help:"Directory for preview snapshots (default: discard preview frames)."`
	PreviewEvery   *int     `help:"Save one preview frame out of N."`
	PreviewScale   *float64 `help:"Scale factor of preview snapshots."`
	PreviewOverlay bool     `help:"Annotate preview snapshots with frame number and timestamp."`

	// Tools
	FFmpegPath *string `help:"Path to ffmpeg executable (falls back to FFMPEG_PATH env, then system default)."`
	Summary    string  `short:"s" help:"Output execution summary to file (Markdown format)."`

	// Logging options
	LogLevel *string `short:"l" help:"Log level (debug, info, warn, error)."`
	Quiet    bool    `short:"Q" help:"Suppress all log output."`
}

// CaptureCmd defines the capture subcommand.
type CaptureCmd struct {
	SessionFlags `embed:""`

	OutputDir *string  `short:"o" help:"Directory for the recorded MP4."`
	Seconds   *float64 `short:"t" help:"Capture duration in seconds."`
	Width     *int     `short:"W" help:"Output video width (default: 1920)."`
	Height    *int     `short:"H" help:"Output video height (default: 1080)."`
	Bitrate   *int     `short:"b" help:"Output bitrate in bits per second."`
	FPS       *int     `help:"Output frame rate."`
}

// PreviewCmd defines the preview subcommand.
type PreviewCmd struct {
	SessionFlags `embed:""`

	Width  *int `short:"W" help:"Preview window width."`
	Height *int `short:"H" help:"Preview window height."`
}

// ProbeCmd defines the probe subcommand.
type ProbeCmd struct {
	Input string `arg:"" help:"Input MP4 file path."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

var version = "dev"

func main() {
	cli := CLI{}

	ctx := kong.Parse(&cli,
		kong.Name("glhdr"),
		kong.Description("Play 10-bit HLG video through a GLES shader pipeline into a recorder or a preview."),
		kong.UsageOnError(),
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

// Run executes the capture command.
func (cmd *CaptureCmd) Run() error {
	cfg, err := cmd.load()
	if err != nil {
		return err
	}
	cfg.Mode = string(orchestrator.ModeCapture)
	if cmd.PreviewDir != nil {
		cfg.Mode = string(orchestrator.ModeBoth)
	}
	if cmd.OutputDir != nil {
		cfg.OutputDir = *cmd.OutputDir
	}
	if cmd.Seconds != nil {
		cfg.CaptureSeconds = *cmd.Seconds
	}
	if cmd.Width != nil {
		cfg.Width = *cmd.Width
	}
	if cmd.Height != nil {
		cfg.Height = *cmd.Height
	}
	if cmd.Bitrate != nil {
		cfg.Bitrate = *cmd.Bitrate
	}
	if cmd.FPS != nil {
		cfg.FPS = *cmd.FPS
	}
	return cmd.run(cfg)
}

// Run executes the preview command.
func (cmd *PreviewCmd) Run() error {
	cfg, err := cmd.load()
	if err != nil {
		return err
	}
	cfg.Mode = string(orchestrator.ModePreview)
	if cmd.Width != nil {
		cfg.PreviewWidth = *cmd.Width
	}
	if cmd.Height != nil {
		cfg.PreviewHeight = *cmd.Height
	}
	return cmd.run(cfg)
}

// load reads the configuration file, if any, and applies the shared flags.
func (f *SessionFlags) load() (config.Config, error) {
	cfg := config.Defaults()
	if f.Config != "" {
		var err error
		if cfg, err = config.LoadFromFile(f.Config); err != nil {
			return cfg, err
		}
	}
	cfg.Input = f.Input
	if f.Pacing != nil {
		cfg.Pacing = *f.Pacing
	}
	if f.PaceIntervalMs != nil {
		cfg.PaceIntervalMs = *f.PaceIntervalMs
	}
	if f.SDR {
		cfg.HDR = false
	}
	if f.PreviewDir != nil {
		cfg.PreviewDir = *f.PreviewDir
	}
	if f.PreviewEvery != nil {
		cfg.PreviewEvery = *f.PreviewEvery
	}
	if f.PreviewScale != nil {
		cfg.PreviewScale = *f.PreviewScale
	}
	if f.PreviewOverlay {
		cfg.PreviewOverlay = true
	}
	if f.FFmpegPath != nil {
		cfg.FFmpegPath = *f.FFmpegPath
	}
	if f.LogLevel != nil {
		cfg.LogLevel = *f.LogLevel
	}
	return cfg, nil
}

func (f *SessionFlags) newLogger(cfg config.Config) ports.Logger {
	if f.Quiet {
		return logger.NewNoop()
	}
	return logger.NewConsole(ports.ParseLogLevel(cfg.LogLevel))
}

// run wires the adapters for cfg and plays one session.
func (f *SessionFlags) run(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := f.newLogger(cfg)
	if cfg.FFmpegPath != "" {
		ffmpegcodec.SetFFmpegPath(cfg.FFmpegPath)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Warn("Interrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Create adapters
	fs := osfilesystem.New()
	mode := orchestrator.Mode(cfg.Mode)
	deps := orchestrator.Deps{
		EGL:        softgl.NewDisplay(),
		Extractor:  mp4extractor.New(fs, log),
		Decoder:    ffmpegcodec.NewDecoder(log),
		FileSystem: fs,
		Logger:     log,
	}
	if mode.Captures() {
		deps.Recorder = hevcrecorder.New(fs, log)
	}
	if mode.Previews() {
		window, err := previewWindow(fs, log, cfg)
		if err != nil {
			return err
		}
		deps.Preview = window
	}

	session := orchestrator.New(deps)
	result, err := session.Run(ctx, cfg.ToOrchestratorConfig())
	if err != nil {
		return err
	}

	if result.OutputPath != "" {
		log.Info("Output saved to %s", result.OutputPath)
	}
	if cfg.PreviewDir != "" && mode.Previews() {
		log.Info("Preview frames saved to %s", cfg.PreviewDir)
	}
	if f.Summary != "" {
		writeSummary(fs, log, f.Summary, result)
	}
	return nil
}

// previewWindow returns a snapshot window when a preview directory is
// configured and a discarding window otherwise.
func previewWindow(fs ports.FileSystem, log ports.Logger, cfg config.Config) (ports.NativeWindow, error) {
	if cfg.PreviewDir == "" {
		return nullsink.New(cfg.PreviewWidth, cfg.PreviewHeight), nil
	}
	w, err := framedump.New(fs, ggrenderer.New(), log, cfg.PreviewOptions())
	if err != nil {
		return nil, err
	}
	return w, nil
}

func writeSummary(fs ports.FileSystem, log ports.Logger, path string, result orchestrator.RunResult) {
	var size int64
	if result.OutputPath != "" {
		if info, err := os.Stat(result.OutputPath); err == nil {
			size = info.Size()
		}
	}
	formatter := summarizer.NewMarkdownFormatter(
		summarizer.WithTranslator(l10n.T),
		summarizer.WithVersion(version),
	)
	if err := summarizer.NewWriter(formatter, fs).Write(path, summarizer.FromRunResult(result, size)); err != nil {
		log.Warn("Failed to write summary: %v", err)
		return
	}
	log.Info("Summary saved to %s", path)
}

// Run executes the probe command.
func (cmd *ProbeCmd) Run() error {
	fs := osfilesystem.New()
	ext := mp4extractor.New(fs, logger.NewNoop())
	defer ext.Release()

	if err := ext.SetDataSource(cmd.Input); err != nil {
		return fmt.Errorf("open %s: %w", cmd.Input, err)
	}
	fmt.Println(l10n.F("%s: %d tracks", filepath.Base(cmd.Input), ext.TrackCount()))
	for i, n := 0, ext.TrackCount(); i < n; i++ {
		f, err := ext.TrackFormat(i)
		if err != nil {
			return err
		}
		if f.IsVideo() {
			fmt.Println(l10n.F("  #%d %s %dx%d, %d-bit, %s", i, f.MIME, f.Width, f.Height, f.BitDepth, f.Duration))
		} else {
			fmt.Println(l10n.F("  #%d %s, %s", i, f.MIME, f.Duration))
		}
	}

	track, err := framesource.SelectVideoTrack(ext)
	if err != nil {
		return err
	}
	f := track.Format
	fmt.Println(l10n.F("Selected track %d (HDR %t, colour %d/%d/%d)",
		track.Index, f.Color.IsHDR(), f.Color.Primaries, f.Color.Transfer, f.Color.Matrix))
	return nil
}

// Run executes the version command.
func (cmd *VersionCmd) Run() error {
	fmt.Println(l10n.F("glhdr version %s", version))
	return nil
}
