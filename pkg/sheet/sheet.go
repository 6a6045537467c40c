// Package sheet renders contact sheets: a grid of thumbnails of selected
// frames, labeled with their frame numbers, with keyframes outlined.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sort"
	"sync"

	"github.com/user/gopseek/pkg/ports"
)

// ErrNoFrames is returned when a sheet is requested without frames.
var ErrNoFrames = errors.New("sheet: no frames requested")

// Config controls the sheet geometry and colors.
type Config struct {
	Columns       int
	ThumbWidth    int
	Gap           int
	Label         bool
	FontSize      float64
	FontPath      string
	Background    color.Color
	TextColor     color.Color
	KeyframeColor color.Color
	Workers       int
}

// DefaultConfig returns the default sheet configuration.
func DefaultConfig() Config {
	return Config{
		Columns:       5,
		ThumbWidth:    192,
		Gap:           8,
		Label:         true,
		FontSize:      12,
		Background:    color.RGBA{R: 0x1a, G: 0x1a, B: 0x2e, A: 0xff},
		TextColor:     color.White,
		KeyframeColor: color.RGBA{R: 0x4a, G: 0xde, B: 0x80, A: 0xff},
		Workers:       runtime.NumCPU(),
	}
}

// Source provides decoded frames. *video.Handle satisfies it.
type Source interface {
	FrameCount() int
	ReadImage(n int, layout ports.PixelLayout) (image.Image, error)
}

// Request selects the frames of one sheet.
type Request struct {
	Frames    []int
	Keyframes []int
	Layout    ports.PixelLayout
}

// Builder renders sheets through a renderer.
type Builder struct {
	renderer ports.Renderer
	logger   ports.Logger
	cfg      Config
}

// New creates a Builder. Zero config fields take their defaults.
func New(renderer ports.Renderer, logger ports.Logger, cfg Config) *Builder {
	def := DefaultConfig()
	if cfg.Columns <= 0 {
		cfg.Columns = def.Columns
	}
	if cfg.ThumbWidth <= 0 {
		cfg.ThumbWidth = def.ThumbWidth
	}
	if cfg.Gap < 0 {
		cfg.Gap = 0
	}
	if cfg.FontSize <= 0 {
		cfg.FontSize = def.FontSize
	}
	if cfg.Background == nil {
		cfg.Background = def.Background
	}
	if cfg.TextColor == nil {
		cfg.TextColor = def.TextColor
	}
	if cfg.KeyframeColor == nil {
		cfg.KeyframeColor = def.KeyframeColor
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return &Builder{
		renderer: renderer,
		logger:   logger.WithComponent("sheet"),
		cfg:      cfg,
	}
}

// Pick returns count frame numbers evenly spread over [0, frameCount),
// always including the first and last frame.
func Pick(frameCount, count int) []int {
	if frameCount <= 0 || count <= 0 {
		return nil
	}
	if count >= frameCount {
		frames := make([]int, frameCount)
		for i := range frames {
			frames[i] = i
		}
		return frames
	}
	if count == 1 {
		return []int{0}
	}
	frames := make([]int, count)
	for i := range frames {
		frames[i] = i * (frameCount - 1) / (count - 1)
	}
	return frames
}

// Geometry is the computed sheet layout.
type Geometry struct {
	Width, Height int
	ThumbWidth    int
	ThumbHeight   int
	LabelHeight   int
	Columns, Rows int
	Gap           int
}

// Cell returns the top-left corner of the i-th thumbnail.
func (g Geometry) Cell(i int) (x, y int) {
	col, row := i%g.Columns, i/g.Columns
	x = g.Gap + col*(g.ThumbWidth+g.Gap)
	y = g.Gap + row*(g.ThumbHeight+g.LabelHeight+g.Gap)
	return x, y
}

// ComputeGeometry lays out count thumbnails of a srcW x srcH video.
func (b *Builder) ComputeGeometry(count, srcW, srcH int) Geometry {
	cols := b.cfg.Columns
	if count < cols {
		cols = count
	}
	rows := (count + cols - 1) / cols
	thumbH := 1
	if srcW > 0 {
		thumbH = srcH * b.cfg.ThumbWidth / srcW
	}
	if thumbH < 1 {
		thumbH = 1
	}
	labelH := 0
	if b.cfg.Label {
		labelH = int(b.cfg.FontSize*1.6 + 0.5)
	}
	return Geometry{
		Width:       cols*b.cfg.ThumbWidth + (cols+1)*b.cfg.Gap,
		Height:      rows*(thumbH+labelH) + (rows+1)*b.cfg.Gap,
		ThumbWidth:  b.cfg.ThumbWidth,
		ThumbHeight: thumbH,
		LabelHeight: labelH,
		Columns:     cols,
		Rows:        rows,
		Gap:         b.cfg.Gap,
	}
}

// Build reads the requested frames from src and renders the sheet.
// Frames are read one at a time in ascending order so that neighbors share
// a decode; thumbnails are scaled by a worker pool.
func (b *Builder) Build(ctx context.Context, src Source, req Request) (image.Image, error) {
	if len(req.Frames) == 0 {
		return nil, ErrNoFrames
	}

	order := make([]int, len(req.Frames))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return req.Frames[order[i]] < req.Frames[order[j]] })

	images := make([]image.Image, len(req.Frames))
	for _, i := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := src.ReadImage(req.Frames[i], req.Layout)
		if err != nil {
			return nil, fmt.Errorf("read frame %d: %w", req.Frames[i], err)
		}
		images[i] = img
	}

	bounds := images[0].Bounds()
	geo := b.ComputeGeometry(len(images), bounds.Dx(), bounds.Dy())
	b.logger.Debug("Rendering sheet of %d frames: %dx%d, %d columns", len(images), geo.Width, geo.Height, geo.Columns)

	thumbs, err := b.scaleParallel(ctx, images, geo.ThumbWidth, geo.ThumbHeight)
	if err != nil {
		return nil, err
	}

	keyframes := make(map[int]bool, len(req.Keyframes))
	for _, k := range req.Keyframes {
		keyframes[k] = true
	}

	canvas := b.renderer.CreateCanvas(geo.Width, geo.Height, b.cfg.Background)
	for i, thumb := range thumbs {
		x, y := geo.Cell(i)
		canvas.DrawImage(thumb, x, y)

		frame := req.Frames[i]
		if keyframes[frame] {
			canvas.DrawRectStroke(x, y, geo.ThumbWidth, geo.ThumbHeight, b.cfg.KeyframeColor, 2)
		}
		if b.cfg.Label {
			label := fmt.Sprintf("#%d", frame)
			if keyframes[frame] {
				label += " K"
			}
			style := ports.TextStyle{FontSize: b.cfg.FontSize, FontPath: b.cfg.FontPath, Color: b.cfg.TextColor, Align: ports.AlignCenter}
			canvas.DrawText(label, x+geo.ThumbWidth/2, y+geo.ThumbHeight+geo.LabelHeight/2, style)
		}
	}
	return canvas.ToImage(), nil
}

// indexedImage holds a scaled thumbnail with its position.
type indexedImage struct {
	index int
	img   image.Image
}

// scaleParallel resizes images with a worker pool, preserving order.
func (b *Builder) scaleParallel(ctx context.Context, images []image.Image, w, h int) ([]image.Image, error) {
	jobs := make(chan int, len(images))
	results := make(chan indexedImage, len(images))

	var wg sync.WaitGroup
	for n := 0; n < b.cfg.Workers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				results <- indexedImage{index: i, img: b.renderer.ResizeImage(images[i], w, h)}
			}
		}()
	}

	for i := range images {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	thumbs := make([]image.Image, len(images))
	done := 0
	for r := range results {
		thumbs[r.index] = r.img
		done++
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if done != len(images) {
		return nil, fmt.Errorf("scaled %d of %d thumbnails", done, len(images))
	}
	return thumbs, nil
}

// Save encodes img as PNG and writes it through fs.
func (b *Builder) Save(fs ports.FileSystem, path string, img image.Image) error {
	data, err := b.renderer.EncodeImage(img, ports.FormatPNG, 0)
	if err != nil {
		return fmt.Errorf("encode sheet: %w", err)
	}
	if err := fs.WriteFile(path, data); err != nil {
		return fmt.Errorf("write sheet: %w", err)
	}
	return nil
}
