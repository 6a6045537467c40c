package ports

import (
	"image"
	"image/color"
	"path/filepath"
	"strings"
)

// Renderer draws contact sheets and encodes exported frames.
type Renderer interface {
	CreateCanvas(width, height int, bg color.Color) Canvas

	// EncodeImage encodes img. quality applies to JPEG only; zero or less
	// selects the encoder default.
	EncodeImage(img image.Image, format ImageFormat, quality int) ([]byte, error)

	// ResizeImage scales img to exactly width x height. It must be safe to
	// call from several goroutines.
	ResizeImage(img image.Image, width, height int) image.Image
}

// Canvas is a sheet being drawn.
type Canvas interface {
	DrawImage(img image.Image, x, y int)
	DrawRectStroke(x, y, w, h int, c color.Color, strokeWidth float64)

	// DrawText draws text vertically centered on y. x is the left edge,
	// center or right edge depending on style.Align.
	DrawText(text string, x, y int, style TextStyle)

	ToImage() image.Image
}

// TextStyle configures DrawText. An empty FontPath uses the built-in face.
type TextStyle struct {
	FontSize float64
	FontPath string
	Color    color.Color
	Align    TextAlign
}

type TextAlign int

const (
	AlignLeft TextAlign = iota
	AlignCenter
	AlignRight
)

// ImageFormat selects the encoding of exported images.
type ImageFormat int

const (
	FormatJPEG ImageFormat = iota
	FormatPNG
)

// FormatForPath picks JPEG for .jpg and .jpeg paths and PNG otherwise.
func FormatForPath(path string) ImageFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG
	default:
		return FormatPNG
	}
}
