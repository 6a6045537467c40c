package engine

import (
	"fmt"

	"github.com/user/gopseek/pkg/ports"
)

// Workspace holds the per-request conversion state. It is created at the
// start of a request and closed on every exit path.
type Workspace struct {
	conv      ports.Converter
	layout    ports.PixelLayout
	frameSize int
}

// NewWorkspace creates a converter to layout for the engine's stream.
func (e *Engine) NewWorkspace(layout ports.PixelLayout) (*Workspace, error) {
	conv, err := e.backend.NewConverter(e.stream, layout)
	if err != nil {
		return nil, fmt.Errorf("create %s converter: %w", layout, err)
	}
	return &Workspace{
		conv:      conv,
		layout:    layout,
		frameSize: e.FrameSize(layout),
	}, nil
}

// Convert writes pic into dst, which must be exactly one frame long.
func (w *Workspace) Convert(pic ports.Picture, dst []byte) error {
	if len(dst) != w.frameSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrBufferSize, len(dst), w.frameSize)
	}
	return w.conv.Convert(pic, dst)
}

// Close releases the converter.
func (w *Workspace) Close() error {
	if w.conv == nil {
		return nil
	}
	err := w.conv.Close()
	w.conv = nil
	return err
}
