package report

import (
	"fmt"
	"sort"
	"strings"
)

// MarkdownFormatter formats a Report as Markdown.
type MarkdownFormatter struct {
	translate func(string) string
	version   string
}

// MarkdownOption configures a MarkdownFormatter.
type MarkdownOption func(*MarkdownFormatter)

// WithTranslator sets the function used to translate headings and labels.
func WithTranslator(fn func(string) string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.translate = fn
	}
}

// WithVersion sets the tool version printed in the footer.
func WithVersion(version string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.version = version
	}
}

// NewMarkdownFormatter creates a MarkdownFormatter.
func NewMarkdownFormatter(opts ...MarkdownOption) *MarkdownFormatter {
	f := &MarkdownFormatter{
		translate: func(s string) string { return s },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(r *Report) string {
	t := f.translate
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", t("Video Report"))

	fmt.Fprintf(&sb, "## %s\n\n", t("File"))
	row := f.tableStart(&sb)
	row(t("Path"), r.File.Path)
	if r.File.Size > 0 {
		row(t("Size"), formatBytes(r.File.Size))
	}
	if r.File.Backend != "" {
		row(t("Backend"), r.File.Backend)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "## %s\n\n", t("Stream"))
	row = f.tableStart(&sb)
	row(t("Codec"), r.Stream.Codec)
	row(t("Dimensions"), fmt.Sprintf("%dx%d", r.Stream.Width, r.Stream.Height))
	row(t("Time Base"), r.Stream.TimeBase.String())
	row(t("Frame Rate"), r.Stream.FrameRate.String())
	row(t("PTS Increment"), fmt.Sprintf("%d", r.Stream.PTSIncrement))
	row(t("Decoder"), r.Stream.Decoder)
	row(t("Pixel Layout"), r.Stream.Layout)
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "## %s\n\n", t("Frame Index"))
	row = f.tableStart(&sb)
	row(t("Frames"), fmt.Sprintf("%d", r.Index.Frames))
	row(t("Packets"), fmt.Sprintf("%d", r.Index.Packets))
	row(t("Keyframes"), fmt.Sprintf("%d", r.Index.Keyframes))
	if r.Index.Keyframes > 0 {
		row(t("GOP Size"), fmt.Sprintf("%d / %.1f / %d", r.Index.GOPMin, r.Index.GOPAvg, r.Index.GOPMax))
	}
	sb.WriteString("\n")

	if r.Engine.Passes > 0 || r.Cache.Hits > 0 {
		fmt.Fprintf(&sb, "## %s\n\n", t("Decode Activity"))
		row = f.tableStart(&sb)
		row(t("Cache Hits"), fmt.Sprintf("%d", r.Cache.Hits))
		row(t("Cache Misses"), fmt.Sprintf("%d", r.Cache.Misses))
		row(t("Decode Passes"), fmt.Sprintf("%d", r.Engine.Passes))
		row(t("Seeks"), fmt.Sprintf("%d", r.Engine.Seeks))
		if r.Engine.StartFallbacks > 0 {
			row(t("Seek Fallbacks"), fmt.Sprintf("%d", r.Engine.StartFallbacks))
		}
		row(t("Packets Submitted"), fmt.Sprintf("%d", r.Engine.PacketsSubmitted))
		row(t("Pictures Decoded"), fmt.Sprintf("%d", r.Engine.PicturesDecoded))
		row(t("Pictures Captured"), fmt.Sprintf("%d", r.Engine.PicturesCaptured))
		sb.WriteString("\n")
	}

	if r.Timing.OpenMs > 0 || r.Timing.ReadMs > 0 {
		fmt.Fprintf(&sb, "## %s\n\n", t("Timing"))
		row = f.tableStart(&sb)
		row(t("Open"), fmt.Sprintf("%d ms", r.Timing.OpenMs))
		if r.Timing.ReadMs > 0 {
			row(t("Read"), fmt.Sprintf("%d ms", r.Timing.ReadMs))
		}
		sb.WriteString("\n")
	}

	if len(r.Stream.Metadata) > 0 {
		fmt.Fprintf(&sb, "## %s\n\n", t("Metadata"))
		keys := make([]string, 0, len(r.Stream.Metadata))
		for k := range r.Stream.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		row = f.tableStart(&sb)
		for _, k := range keys {
			row(k, r.Stream.Metadata[k])
		}
		sb.WriteString("\n")
	}

	sb.WriteString("---\n\n")
	footer := fmt.Sprintf("%s %s", t("Generated at"), r.GeneratedAt.Format("2006-01-02 15:04:05"))
	if f.version != "" {
		footer += fmt.Sprintf(" (gopseek %s)", f.version)
	}
	sb.WriteString(footer + "\n")

	return sb.String()
}

// tableStart writes a two-column table header and returns a row writer.
func (f *MarkdownFormatter) tableStart(sb *strings.Builder) func(name, value string) {
	fmt.Fprintf(sb, "| %s | %s |\n|---|---|\n", f.translate("Item"), f.translate("Value"))
	return func(name, value string) {
		fmt.Fprintf(sb, "| %s | %s |\n", name, value)
	}
}

// formatBytes formats a byte count using binary units.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit && exp < 2; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMG"[exp])
}
