package summarizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/glhdr/pkg/media"
)

// MarkdownFormatter renders a Summary as a Markdown document with two
// column tables.
type MarkdownFormatter struct {
	translate func(string) string
	version   string
}

// MarkdownOption configures a MarkdownFormatter.
type MarkdownOption func(*MarkdownFormatter)

// WithTranslator translates headings and row labels.
func WithTranslator(t func(string) string) MarkdownOption {
	return func(f *MarkdownFormatter) { f.translate = t }
}

// WithVersion adds a "Generated by" footer naming the version.
func WithVersion(v string) MarkdownOption {
	return func(f *MarkdownFormatter) { f.version = v }
}

// NewMarkdownFormatter creates a formatter. Labels are English unless a
// translator is given.
func NewMarkdownFormatter(opts ...MarkdownOption) *MarkdownFormatter {
	f := &MarkdownFormatter{translate: func(s string) string { return s }}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) string {
	t := f.translate
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", t("Playback Summary"))
	fmt.Fprintf(&b, "%s: %s\n\n", t("Generated"), s.GeneratedAt.Format(time.RFC3339))

	f.section(&b, t("Source"), [][2]string{
		{t("Input"), s.Input.Path},
		{t("Codec"), s.Input.MIME},
		{t("Resolution"), fmt.Sprintf("%dx%d", s.Input.Width, s.Input.Height)},
		{t("Bit Depth"), fmt.Sprintf("%d", s.Input.BitDepth)},
		{t("Colour"), describeColor(s.Input.Color)},
		{t("Track Duration"), formatDuration(s.Input.Duration)},
	})

	played := t("No")
	if s.Playback.Ended {
		played = t("Yes")
	}
	f.section(&b, t("Playback"), [][2]string{
		{t("Mode"), s.Mode},
		{t("Shader"), s.Playback.Shader},
		{t("Frames Decoded"), fmt.Sprintf("%d", s.Playback.FramesDecoded)},
		{t("Frames Dropped"), fmt.Sprintf("%d", s.Playback.FramesDropped)},
		{t("Frames Presented"), fmt.Sprintf("%d", s.Playback.FramesPresented)},
		{t("Reached End"), played},
		{t("Elapsed"), formatDuration(s.Playback.Elapsed)},
	})

	if s.Output.Path != "" {
		dynamic := "SDR (BT.709)"
		if s.Output.HDR {
			dynamic = "HDR (BT.2020 HLG)"
		}
		f.section(&b, t("Capture Output"), [][2]string{
			{t("File"), s.Output.Path},
			{t("Resolution"), fmt.Sprintf("%dx%d", s.Output.Width, s.Output.Height)},
			{t("Frame Rate"), fmt.Sprintf("%d fps", s.Output.FPS)},
			{t("Bitrate"), fmt.Sprintf("%.1f Mbps", float64(s.Output.BitrateBps)/1e6)},
			{t("Dynamic Range"), dynamic},
			{t("Frames Encoded"), fmt.Sprintf("%d", s.Output.FramesEncoded)},
			{t("File Size"), formatBytes(s.Output.FileSize)},
		})
	}

	if f.version != "" {
		fmt.Fprintf(&b, "---\n\n%s glhdr %s\n", t("Generated by"), f.version)
	}
	return b.String()
}

func (f *MarkdownFormatter) section(b *strings.Builder, title string, rows [][2]string) {
	fmt.Fprintf(b, "## %s\n\n", title)
	fmt.Fprintf(b, "| %s | %s |\n|---|---|\n", f.translate("Item"), f.translate("Value"))
	for _, r := range rows {
		fmt.Fprintf(b, "| %s | %s |\n", r[0], r[1])
	}
	b.WriteString("\n")
}

func describeColor(c media.ColorInfo) string {
	var primaries, transfer string
	switch c.Primaries {
	case media.PrimariesBT2020:
		primaries = "BT.2020"
	case media.PrimariesBT709:
		primaries = "BT.709"
	default:
		primaries = fmt.Sprintf("primaries %d", c.Primaries)
	}
	switch c.Transfer {
	case media.TransferHLG:
		transfer = "HLG"
	case media.TransferPQ:
		transfer = "PQ"
	case media.TransferBT709:
		transfer = "BT.709"
	default:
		transfer = fmt.Sprintf("transfer %d", c.Transfer)
	}
	if c.Primaries == 0 && c.Transfer == 0 {
		return "unspecified"
	}
	return primaries + " " + transfer
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f s", d.Seconds())
}

// formatBytes formats a byte count with binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMG"[exp])
}
