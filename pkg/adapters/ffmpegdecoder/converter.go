package ffmpegdecoder

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/user/gopseek/pkg/ports"
)

// Converter writes decoded rgb24 pictures in a fixed layout.
type Converter struct {
	width  int
	height int
	layout ports.PixelLayout
}

// NewConverter creates a converter for stream pictures.
func NewConverter(stream ports.StreamInfo, layout ports.PixelLayout) (*Converter, error) {
	switch layout {
	case ports.LayoutGray, ports.LayoutRGB:
	default:
		return nil, fmt.Errorf("ffmpegdecoder: unsupported layout %s", layout)
	}
	return &Converter{width: stream.Width, height: stream.Height, layout: layout}, nil
}

// Convert copies or converts pic into dst.
func (c *Converter) Convert(pic ports.Picture, dst []byte) error {
	p, ok := pic.(*Picture)
	if !ok {
		return fmt.Errorf("ffmpegdecoder: foreign picture %T", pic)
	}
	if p.Width != c.width || p.Height != c.height {
		return fmt.Errorf("ffmpegdecoder: picture is %dx%d, converter is %dx%d", p.Width, p.Height, c.width, c.height)
	}
	if want := c.layout.FrameSize(c.width, c.height); len(dst) != want {
		return fmt.Errorf("ffmpegdecoder: destination is %d bytes, want %d", len(dst), want)
	}

	if c.layout == ports.LayoutRGB {
		copy(dst, p.Pix)
		return nil
	}
	gray := &image.Gray{Pix: dst, Stride: c.width, Rect: image.Rect(0, 0, c.width, c.height)}
	src := &rgbImage{pix: p.Pix, w: c.width, h: c.height}
	draw.Draw(gray, gray.Bounds(), src, image.Point{}, draw.Src)
	return nil
}

// Close is a no-op; the converter holds no process.
func (c *Converter) Close() error {
	return nil
}

// rgbImage adapts packed rgb24 bytes to image.Image.
type rgbImage struct {
	pix  []byte
	w, h int
}

func (m *rgbImage) ColorModel() color.Model { return color.RGBAModel }

func (m *rgbImage) Bounds() image.Rectangle { return image.Rect(0, 0, m.w, m.h) }

func (m *rgbImage) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return color.RGBA{}
	}
	i := (y*m.w + x) * 3
	return color.RGBA{R: m.pix[i], G: m.pix[i+1], B: m.pix[i+2], A: 255}
}

var _ ports.Converter = (*Converter)(nil)
