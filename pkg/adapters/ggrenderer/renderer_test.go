package ggrenderer

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"golang.org/x/image/draw"

	"github.com/user/gopseek/pkg/ports"
)

func TestRenderer_CreateCanvas(t *testing.T) {
	r := New()

	canvas := r.CreateCanvas(100, 60, color.White)
	img := canvas.ToImage()
	bounds := img.Bounds()
	if bounds.Dx() != 100 || bounds.Dy() != 60 {
		t.Errorf("expected 100x60, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	red, green, blue, _ := img.At(50, 30).RGBA()
	if red != 0xffff || green != 0xffff || blue != 0xffff {
		t.Error("expected canvas cleared to the background color")
	}
}

func TestRenderer_EncodePNG(t *testing.T) {
	r := New()
	img := image.NewGray(image.Rect(0, 0, 30, 20))

	data, err := r.EncodeImage(img, ports.FormatPNG, 0)
	if err != nil {
		t.Fatalf("EncodeImage failed: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode failed: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 30 || b.Dy() != 20 {
		t.Errorf("expected 30x20, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestRenderer_EncodeJPEG(t *testing.T) {
	r := New()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))

	data, err := r.EncodeImage(img, ports.FormatJPEG, 0)
	if err != nil {
		t.Fatalf("EncodeImage failed: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("jpeg.Decode failed: %v", err)
	}

	if _, err := r.EncodeImage(img, ports.ImageFormat(42), 0); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRenderer_ResizeImage(t *testing.T) {
	r := New()
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	resized := r.ResizeImage(img, 50, 25)
	if b := resized.Bounds(); b.Dx() != 50 || b.Dy() != 25 {
		t.Errorf("expected 50x25, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestCanvas_DrawRectStroke(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(100, 100, color.White)
	canvas.DrawRectStroke(10, 10, 30, 30, color.Black, 2)

	red, _, _, _ := canvas.ToImage().At(10, 25).RGBA()
	if red == 0xffff {
		t.Error("expected dark pixel on the border")
	}
	red, _, _, _ = canvas.ToImage().At(25, 25).RGBA()
	if red != 0xffff {
		t.Error("expected the inside to stay white")
	}
}

func TestCanvas_DrawImage(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(100, 100, color.White)

	small := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			small.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	canvas.DrawImage(small, 10, 10)

	_, green, _, _ := canvas.ToImage().At(15, 15).RGBA()
	if green != 0 {
		t.Error("expected red pixel from drawn image")
	}
}

func TestCanvas_DrawText(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(200, 50, color.White)

	style := ports.TextStyle{
		FontSize: 14,
		Color:    color.Black,
		Align:    ports.AlignCenter,
	}
	canvas.DrawText("#120 K", 100, 25, style)

	img := canvas.ToImage()
	dark := false
	for x := 60; x < 140 && !dark; x++ {
		for y := 15; y < 35; y++ {
			if r, _, _, _ := img.At(x, y).RGBA(); r < 0x8000 {
				dark = true
				break
			}
		}
	}
	if !dark {
		t.Error("expected text pixels around the anchor")
	}
}

func TestFormatForPath(t *testing.T) {
	tests := map[string]ports.ImageFormat{
		"frame.png":      ports.FormatPNG,
		"frame.JPG":      ports.FormatJPEG,
		"out/frame.jpeg": ports.FormatJPEG,
		"frame":          ports.FormatPNG,
	}
	for path, want := range tests {
		if got := ports.FormatForPath(path); got != want {
			t.Errorf("FormatForPath(%q) = %d, want %d", path, got, want)
		}
	}
}

func TestRenderer_WithScaler(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	for _, r := range []*Renderer{New(), New(WithScaler(draw.NearestNeighbor))} {
		out := r.ResizeImage(src, 2, 2)
		got, _, _, _ := out.At(1, 1).RGBA()
		if v := int(got >> 8); v < 199 || v > 201 {
			t.Errorf("%T: resized gray value = %d, want 200", r.scaler, v)
		}
	}
}

func TestRenderer_EncodeJPEGQualityClamp(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	if _, err := New().EncodeImage(img, ports.FormatJPEG, 250); err != nil {
		t.Errorf("quality above 100 should be clamped, got %v", err)
	}
}
