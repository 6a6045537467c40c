package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/gopseek/pkg/adapters/ggrenderer"
	"github.com/user/gopseek/pkg/adapters/osfilesystem"
	"github.com/user/gopseek/pkg/adapters/smartbackend"
	"github.com/user/gopseek/pkg/config"
	"github.com/user/gopseek/pkg/ports"
	"github.com/user/gopseek/pkg/report"
	"github.com/user/gopseek/pkg/sheet"
	"github.com/user/gopseek/pkg/video"
)

// opened is a video handle together with how it was opened.
type opened struct {
	*video.Handle
	backend  smartbackend.Info
	openTime time.Duration
}

// open selects a backend for path and opens it.
func (e *env) open(path string) (*opened, error) {
	kind, err := smartbackend.ParseKind(e.cfg.Backend)
	if err != nil {
		return nil, err
	}
	layout, err := e.cfg.PixelLayout()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	backend, info, err := smartbackend.ForFile(path, smartbackend.Options{
		Kind:       kind,
		FFmpegPath: e.cfg.FFmpegPath,
		Logger:     e.log,
	})
	if err != nil {
		return nil, err
	}

	h, err := video.Open(path, video.Options{Backend: backend, Logger: e.log, Layout: layout})
	if err != nil {
		return nil, err
	}
	return &opened{Handle: h, backend: info, openTime: time.Since(start)}, nil
}

// closeInto closes h and reports the error through err when nothing else failed.
func closeInto(h *opened, err *error) {
	if cerr := h.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

// outputPath returns explicit when set, else a name derived from the input
// file inside the configured output directory.
func (e *env) outputPath(explicit, input, suffix string) string {
	if explicit != "" {
		return explicit
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(e.cfg.OutputDir, base+suffix)
}

func parseFrameArg(s, name string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be a frame number: %q", name, s)
	}
	return n, nil
}

func requireArgs(c *cli.Context, n int, usage string) error {
	if c.NArg() != n {
		return fmt.Errorf("%s: %s", l10n.T("Usage"), usage)
	}
	return nil
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     l10n.T("Show stream parameters and frame index statistics"),
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "stats",
				Usage: l10n.T("Decode every frame and report cache and decoder activity"),
			},
			&cli.StringFlag{
				Name:     "report",
				Aliases:  []string{"r"},
				Usage:    l10n.T("Write the report to a Markdown file"),
				Category: l10n.T(catOutput),
			},
		},
		Action: func(c *cli.Context) (err error) {
			if err := requireArgs(c, 1, "info FILE"); err != nil {
				return err
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.cancel()

			path := c.Args().First()
			h, err := e.open(path)
			if err != nil {
				return err
			}
			defer closeInto(h, &err)

			var readTime time.Duration
			if c.Bool("stats") {
				start := time.Now()
				for n := 0; n < h.FrameCount(); n++ {
					if e.ctx.Err() != nil {
						break
					}
					if _, err := h.ReadFrame(n, h.Layout()); err != nil {
						return err
					}
				}
				readTime = time.Since(start)
			}

			var size int64
			if st, err := osfilesystem.New().Stat(path); err == nil {
				size = st.Size
			}
			r := report.NewBuilder().
				WithFile(path, size, string(h.backend.Kind)).
				WithStream(h.Info(), h.Layout()).
				WithIndex(h.Index()).
				WithStats(h.CacheStats(), h.EngineStats()).
				WithTiming(h.openTime, readTime).
				Build()

			formatter := report.NewMarkdownFormatter(report.WithTranslator(l10n.T), report.WithVersion(version))
			if out := c.String("report"); out != "" {
				if err := report.NewWriter(osfilesystem.New(), formatter).Write(out, r); err != nil {
					e.log.Error("Failed to write report: %s", err.Error())
					return err
				}
				e.log.Info("Report saved to %s", out)
				return nil
			}
			fmt.Fprint(c.App.Writer, formatter.Format(r))
			return nil
		},
	}
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     l10n.T("Dump the decode position of every frame"),
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "keyframes",
				Usage: l10n.T("List keyframes only"),
			},
		},
		Action: func(c *cli.Context) (err error) {
			if err := requireArgs(c, 1, "index FILE"); err != nil {
				return err
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.cancel()

			h, err := e.open(c.Args().First())
			if err != nil {
				return err
			}
			defer closeInto(h, &err)

			ix := h.Index()
			keyframes := make(map[int]bool, len(ix.Keyframes))
			for _, k := range ix.Keyframes {
				keyframes[k] = true
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "frame\tpts\tdts\tkey")
			for n, dts := range ix.DecodePosition {
				if c.Bool("keyframes") && !keyframes[n] {
					continue
				}
				key := ""
				if keyframes[n] {
					key = "K"
				}
				fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", n, int64(n)*ix.PTSIncrement, dts, key)
			}
			return tw.Flush()
		},
	}
}

func frameCommand() *cli.Command {
	return &cli.Command{
		Name:      "frame",
		Usage:     l10n.T("Export one decoded frame as PNG or JPEG"),
		ArgsUsage: "FILE N",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    l10n.T("Output image path (.png, .jpg)"),
				Category: l10n.T(catOutput),
			},
			&cli.IntFlag{
				Name:     "quality",
				Usage:    l10n.T("JPEG quality (1-100)"),
				Value:    90,
				Category: l10n.T(catOutput),
			},
		},
		Action: func(c *cli.Context) (err error) {
			if err := requireArgs(c, 2, "frame FILE N"); err != nil {
				return err
			}
			n, err := parseFrameArg(c.Args().Get(1), "N")
			if err != nil {
				return err
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.cancel()

			path := c.Args().First()
			h, err := e.open(path)
			if err != nil {
				return err
			}
			defer closeInto(h, &err)

			img, err := h.ReadImage(n, h.Layout())
			if err != nil {
				return err
			}

			out := e.outputPath(c.String("output"), path, fmt.Sprintf("-%06d.png", n))
			data, err := ggrenderer.New().EncodeImage(img, ports.FormatForPath(out), c.Int("quality"))
			if err != nil {
				return fmt.Errorf("encode frame: %w", err)
			}
			if err := osfilesystem.New().WriteFile(out, data); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
			e.log.Info("Output saved to %s", out)
			return nil
		},
	}
}

func rangeCommand() *cli.Command {
	return &cli.Command{
		Name:      "range",
		Usage:     l10n.T("Dump a range of decoded frames as raw pixels"),
		ArgsUsage: "FILE FIRST LAST",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    l10n.T("Output raw file path"),
				Category: l10n.T(catOutput),
			},
			&cli.IntFlag{
				Name:  "chunk",
				Usage: l10n.T("Decode at most this many frames per request (0 = whole range)"),
			},
		},
		Action: func(c *cli.Context) (err error) {
			if err := requireArgs(c, 3, "range FILE FIRST LAST"); err != nil {
				return err
			}
			first, err := parseFrameArg(c.Args().Get(1), "FIRST")
			if err != nil {
				return err
			}
			last, err := parseFrameArg(c.Args().Get(2), "LAST")
			if err != nil {
				return err
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.cancel()

			path := c.Args().First()
			h, err := e.open(path)
			if err != nil {
				return err
			}
			defer closeInto(h, &err)

			layout := h.Layout()
			out := e.outputPath(c.String("output"), path, fmt.Sprintf("-%06d-%06d.%s", first, last, layout))
			w, err := osfilesystem.New().Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := writeRange(w, h, first, last, layout, c.Int("chunk")); err != nil {
				w.Close()
				return err
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("write range: %w", err)
			}
			info := h.Info()
			e.log.Info("Wrote %d frames of %dx%d %s to %s", last-first+1, info.Width, info.Height, layout, out)
			return nil
		},
	}
}

// rangeReader is the part of *video.Handle a range dump needs.
type rangeReader interface {
	FrameSize(layout ports.PixelLayout) int
	ReadFrameRangeInto(a, b int, layout ports.PixelLayout, dst []byte) error
}

// writeRange decodes [first, last] into w. A positive chunk splits the range
// into requests of at most chunk frames sharing one buffer; zero decodes the
// range in one request.
func writeRange(w io.Writer, r rangeReader, first, last int, layout ports.PixelLayout, chunk int) error {
	if last < first {
		// Let the handle report the invalid range.
		return r.ReadFrameRangeInto(first, last, layout, nil)
	}
	if chunk <= 0 || chunk > last-first+1 {
		chunk = last - first + 1
	}
	frameSize := r.FrameSize(layout)
	buf := make([]byte, chunk*frameSize)
	for a := first; a <= last; a += chunk {
		b := a + chunk - 1
		if b > last {
			b = last
		}
		dst := buf[:(b-a+1)*frameSize]
		if err := r.ReadFrameRangeInto(a, b, layout, dst); err != nil {
			return err
		}
		if _, err := w.Write(dst); err != nil {
			return fmt.Errorf("write range: %w", err)
		}
	}
	return nil
}

func sheetCommand() *cli.Command {
	return &cli.Command{
		Name:      "sheet",
		Usage:     l10n.T("Render a contact sheet of evenly spaced frames"),
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    l10n.T("Output PNG path"),
				Category: l10n.T(catOutput),
			},
			&cli.IntFlag{
				Name:     "count",
				Aliases:  []string{"n"},
				Usage:    l10n.T("Number of thumbnails"),
				Category: l10n.T(catSheet),
			},
			&cli.BoolFlag{
				Name:     "keyframes",
				Usage:    l10n.T("Use keyframes instead of evenly spaced frames"),
				Category: l10n.T(catSheet),
			},
			&cli.IntFlag{
				Name:     "columns",
				Usage:    l10n.T("Number of columns"),
				Category: l10n.T(catSheet),
			},
			&cli.IntFlag{
				Name:     "thumb-width",
				Usage:    l10n.T("Thumbnail width in pixels"),
				Category: l10n.T(catSheet),
			},
			&cli.StringFlag{
				Name:     "background-color",
				Usage:    l10n.T("Background color (hex, e.g., #1a1a2e)"),
				Category: l10n.T(catSheet),
			},
			&cli.BoolFlag{
				Name:     "no-label",
				Usage:    l10n.T("Do not print frame numbers"),
				Category: l10n.T(catSheet),
			},
		},
		Action: func(c *cli.Context) (err error) {
			if err := requireArgs(c, 1, "sheet FILE"); err != nil {
				return err
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.cancel()
			applySheetFlags(c, &e.cfg)

			path := c.Args().First()
			h, err := e.open(path)
			if err != nil {
				return err
			}
			defer closeInto(h, &err)

			ix := h.Index()
			frames := sheet.Pick(h.FrameCount(), e.cfg.Sheet.Count)
			if c.Bool("keyframes") {
				frames = ix.Keyframes
				if e.cfg.Sheet.Count > 0 && len(frames) > e.cfg.Sheet.Count {
					frames = frames[:e.cfg.Sheet.Count]
				}
			}

			renderer := ggrenderer.New()
			builder := sheet.New(renderer, e.log, e.cfg.ToSheetConfig())
			img, err := builder.Build(e.ctx, h, sheet.Request{
				Frames:    frames,
				Keyframes: ix.Keyframes,
				Layout:    h.Layout(),
			})
			if err != nil {
				return err
			}

			out := e.outputPath(c.String("output"), path, "-sheet.png")
			if err := builder.Save(osfilesystem.New(), out, img); err != nil {
				return err
			}
			e.log.Info("Output saved to %s", out)
			return nil
		},
	}
}

// applySheetFlags overrides the sheet section with flags that were set.
func applySheetFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("count") {
		cfg.Sheet.Count = c.Int("count")
	}
	if c.IsSet("columns") {
		cfg.Sheet.Columns = c.Int("columns")
	}
	if c.IsSet("thumb-width") {
		cfg.Sheet.ThumbWidth = c.Int("thumb-width")
	}
	if c.IsSet("background-color") {
		cfg.Sheet.BackgroundColor = c.String("background-color")
	}
	if c.Bool("no-label") {
		cfg.Sheet.Label = false
	}
}
