package video

import (
	"image"

	"github.com/user/gopseek/pkg/ports"
)

// ReadImage returns frame n as an *image.Gray or *image.RGBA.
func (h *Handle) ReadImage(n int, layout ports.PixelLayout) (image.Image, error) {
	data, err := h.ReadFrame(n, layout)
	if err != nil {
		return nil, err
	}
	return ToImage(data, layout, h.stream.Width, h.stream.Height), nil
}

// ToImage wraps one frame of row-major pixels in an image. Gray frames are
// used in place; RGB frames are expanded to RGBA.
func ToImage(data []byte, layout ports.PixelLayout, width, height int) image.Image {
	rect := image.Rect(0, 0, width, height)
	if layout == ports.LayoutGray {
		return &image.Gray{Pix: data, Stride: width, Rect: rect}
	}
	img := image.NewRGBA(rect)
	for i, j := 0, 0; i+2 < len(data) && j+3 < len(img.Pix); i, j = i+3, j+4 {
		img.Pix[j] = data[i]
		img.Pix[j+1] = data[i+1]
		img.Pix[j+2] = data[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}
