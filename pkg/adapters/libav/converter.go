//go:build libav

package libav

import (
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/user/gopseek/pkg/ports"
)

// converter scales decoded frames to packed gray8 or rgb24.
type converter struct {
	*astikit.Closer
	layout ports.PixelLayout
	width  int
	height int
	dstFmt astiav.PixelFormat
	sws    *astiav.SoftwareScaleContext
	srcFmt astiav.PixelFormat
	dst    *astiav.Frame
}

func newConverter(stream ports.StreamInfo, layout ports.PixelLayout) (*converter, error) {
	c := &converter{
		Closer: astikit.NewCloser(),
		layout: layout,
		width:  stream.Width,
		height: stream.Height,
	}
	switch layout {
	case ports.LayoutGray:
		c.dstFmt = astiav.PixelFormatGray8
	case ports.LayoutRGB:
		c.dstFmt = astiav.PixelFormatRgb24
	default:
		return nil, fmt.Errorf("libav: unsupported layout %s", layout)
	}
	c.dst = astiav.AllocFrame()
	c.Closer.Add(c.dst.Free)
	c.dst.SetWidth(c.width)
	c.dst.SetHeight(c.height)
	c.dst.SetPixelFormat(c.dstFmt)
	if err := c.dst.AllocBuffer(1); err != nil {
		c.Closer.Close()
		return nil, fmt.Errorf("unable to allocate frame buffer: %w", err)
	}
	return c, nil
}

// context returns a scale context for the source format, creating it on
// first use or when the decoder changes format.
func (c *converter) context(src *astiav.Frame) (*astiav.SoftwareScaleContext, error) {
	if c.sws != nil && c.srcFmt == src.PixelFormat() {
		return c.sws, nil
	}
	if c.sws != nil {
		c.sws.Free()
		c.sws = nil
	}
	sws, err := astiav.CreateSoftwareScaleContext(
		src.Width(), src.Height(), src.PixelFormat(),
		c.width, c.height, c.dstFmt,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create scale context: %w", err)
	}
	c.sws = sws
	c.srcFmt = src.PixelFormat()
	return sws, nil
}

func (c *converter) Convert(pic ports.Picture, dst []byte) error {
	p, ok := pic.(*picture)
	if !ok {
		return fmt.Errorf("libav: foreign picture %T", pic)
	}
	if want := c.layout.FrameSize(c.width, c.height); len(dst) != want {
		return fmt.Errorf("libav: destination is %d bytes, want %d", len(dst), want)
	}
	sws, err := c.context(p.frame)
	if err != nil {
		return err
	}
	if err := sws.ScaleFrame(p.frame, c.dst); err != nil {
		return fmt.Errorf("unable to scale frame: %w", err)
	}
	data, err := c.dst.Data().Bytes(1)
	if err != nil {
		return fmt.Errorf("unable to read scaled frame: %w", err)
	}
	if len(data) != len(dst) {
		return fmt.Errorf("libav: scaled frame is %d bytes, want %d", len(data), len(dst))
	}
	copy(dst, data)
	return nil
}

func (c *converter) Close() error {
	if c.sws != nil {
		c.sws.Free()
		c.sws = nil
	}
	return c.Closer.Close()
}

var _ ports.Converter = (*converter)(nil)
