// Package ggrenderer draws contact sheets with gg and scales thumbnails
// with x/image/draw.
package ggrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/user/gopseek/pkg/ports"
)

// Renderer is a ports.Renderer. The zero value is not usable; call New.
type Renderer struct {
	scaler draw.Scaler
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithScaler replaces the Catmull-Rom kernel used for thumbnails.
// draw.ApproxBiLinear is much faster on long sheets.
func WithScaler(s draw.Scaler) Option {
	return func(r *Renderer) { r.scaler = s }
}

func New(opts ...Option) *Renderer {
	r := &Renderer{scaler: draw.CatmullRom}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) CreateCanvas(width, height int, bg color.Color) ports.Canvas {
	dc := gg.NewContext(width, height)
	dc.SetColor(bg)
	dc.Clear()
	return &Canvas{dc: dc}
}

func (r *Renderer) EncodeImage(img image.Image, format ports.ImageFormat, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case ports.FormatPNG:
		err = png.Encode(&buf, img)
	case ports.FormatJPEG:
		opts := &jpeg.Options{Quality: jpeg.DefaultQuality}
		if quality > 0 {
			opts.Quality = min(quality, 100)
		}
		err = jpeg.Encode(&buf, img, opts)
	default:
		return nil, fmt.Errorf("unsupported image format %d", format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %dx%d frame: %w", img.Bounds().Dx(), img.Bounds().Dy(), err)
	}
	return buf.Bytes(), nil
}

// ResizeImage scales img into a new RGBA image. Gray frames come out gray
// since every channel is scaled alike.
func (r *Renderer) ResizeImage(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	r.scaler.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

var _ ports.Renderer = (*Renderer)(nil)

// Canvas is a gg context plus the font face last loaded into it.
type Canvas struct {
	dc   *gg.Context
	face struct {
		path string
		size float64
	}
}

func (c *Canvas) DrawImage(img image.Image, x, y int) {
	c.dc.DrawImage(img, x, y)
}

// DrawRectStroke outlines a keyframe thumbnail.
func (c *Canvas) DrawRectStroke(x, y, w, h int, col color.Color, strokeWidth float64) {
	c.dc.Push()
	defer c.dc.Pop()
	c.dc.SetColor(col)
	c.dc.SetLineWidth(strokeWidth)
	c.dc.DrawRectangle(float64(x), float64(y), float64(w), float64(h))
	c.dc.Stroke()
}

// DrawText falls back to gg's built-in face when the style has no font
// path or the font cannot be loaded; FontSize is then ignored.
func (c *Canvas) DrawText(text string, x, y int, style ports.TextStyle) {
	if p := style.FontPath; p != "" && (p != c.face.path || style.FontSize != c.face.size) {
		if err := c.dc.LoadFontFace(p, style.FontSize); err == nil {
			c.face.path, c.face.size = p, style.FontSize
		}
	}
	c.dc.SetColor(style.Color)
	c.dc.DrawStringAnchored(text, float64(x), float64(y), anchorX(style.Align), 0.5)
}

func anchorX(a ports.TextAlign) float64 {
	switch a {
	case ports.AlignCenter:
		return 0.5
	case ports.AlignRight:
		return 1
	}
	return 0
}

func (c *Canvas) ToImage() image.Image {
	return c.dc.Image()
}

var _ ports.Canvas = (*Canvas)(nil)
