package engine

import (
	"fmt"

	"github.com/user/gopseek/pkg/ports"
)

// rangePlan captures frames [start, end] into a caller buffer, tracking
// which frames arrived with a bitmap sized to the request.
type rangePlan struct {
	start     int
	end       int
	dst       []byte
	frameSize int
	seen      []bool
	captured  int
}

func (p *rangePlan) Packet(ports.Packet) bool {
	return true
}

func (p *rangePlan) Slot(frame int) ([]byte, error) {
	if frame < p.start || frame > p.end || p.seen[frame-p.start] {
		return nil, nil
	}
	p.seen[frame-p.start] = true
	p.captured++
	off := (frame - p.start) * p.frameSize
	return p.dst[off : off+p.frameSize], nil
}

func (p *rangePlan) Done() bool {
	return p.captured == len(p.seen)
}

func (p *rangePlan) firstMissing() int {
	for i, ok := range p.seen {
		if !ok {
			return p.start + i
		}
	}
	return -1
}

// RangeSize returns the buffer length ReadRange needs for [start, end].
func (e *Engine) RangeSize(start, end int, layout ports.PixelLayout) int {
	return (end - start + 1) * e.FrameSize(layout)
}

// ReadRange decodes frames start..end inclusive into dst with one seek.
// dst must be exactly RangeSize bytes. Frames are laid out consecutively.
func (e *Engine) ReadRange(start, end int, layout ports.PixelLayout, dst []byte) error {
	if start < 0 || end >= e.index.FrameCount() || start > end {
		return fmt.Errorf("%w: %d-%d of %d", ErrOutOfRange, start, end, e.index.FrameCount())
	}
	if want := e.RangeSize(start, end, layout); len(dst) != want {
		return fmt.Errorf("%w: %d bytes, want %d", ErrBufferSize, len(dst), want)
	}

	p := &rangePlan{
		start:     start,
		end:       end,
		dst:       dst,
		frameSize: e.FrameSize(layout),
		seen:      make([]bool, end-start+1),
	}
	if err := e.Run(p, start, layout); err != nil {
		return err
	}
	if !p.Done() {
		return e.NotFound(p.firstMissing(), start, end, p.captured)
	}
	e.log.Debug("Decoded frames %d-%d", start, end)
	return nil
}
