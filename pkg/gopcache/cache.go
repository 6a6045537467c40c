// Package gopcache keeps the decoded frames of the most recently decoded GOP
// so that nearby single-frame reads do not seek again.
package gopcache

import (
	"fmt"

	"github.com/user/gopseek/pkg/engine"
	"github.com/user/gopseek/pkg/frameindex"
	"github.com/user/gopseek/pkg/ports"
)

// Stats counts cache activity.
type Stats struct {
	Hits   int
	Misses int
	Fills  int
}

// Cache is a single-slot window of consecutive decoded frames.
// The zero value is an empty cache.
type Cache struct {
	startFrame int
	count      int
	layout     ports.PixelLayout
	frameSize  int
	buf        []byte
	stats      Stats
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{}
}

// Window returns the cached frame range. count is zero when empty.
func (c *Cache) Window() (start, count int, layout ports.PixelLayout) {
	return c.startFrame, c.count, c.layout
}

// Stats returns the hit, miss and fill counters.
func (c *Cache) Stats() Stats {
	return c.stats
}

// Contains reports whether frame is cached in layout.
func (c *Cache) Contains(frame int, layout ports.PixelLayout) bool {
	return c.count > 0 && c.layout == layout &&
		frame >= c.startFrame && frame < c.startFrame+c.count
}

// Invalidate empties the cache without releasing its buffer.
func (c *Cache) Invalidate() {
	c.count = 0
	c.startFrame = 0
}

// Release empties the cache and drops its buffer.
func (c *Cache) Release() {
	c.Invalidate()
	c.buf = nil
}

// Frame returns the cached bytes of frame, filling the cache from the GOP
// containing frame on a miss. The returned slice is only valid until the
// next call.
func (c *Cache) Frame(e *engine.Engine, frame int, layout ports.PixelLayout) ([]byte, error) {
	if c.Contains(frame, layout) {
		c.stats.Hits++
		return c.slot(frame - c.startFrame), nil
	}
	c.stats.Misses++
	if err := c.fill(e, frame, layout); err != nil {
		return nil, err
	}
	return c.slot(frame - c.startFrame), nil
}

func (c *Cache) slot(i int) []byte {
	off := i * c.frameSize
	return c.buf[off : off+c.frameSize]
}

// grow makes room for n frames, keeping existing contents.
func (c *Cache) grow(n int) {
	need := n * c.frameSize
	if need <= cap(c.buf) {
		c.buf = c.buf[:need]
		return
	}
	newCap := 2 * cap(c.buf)
	if newCap < need {
		newCap = need
	}
	buf := make([]byte, need, newCap)
	copy(buf, c.buf)
	c.buf = buf
}

func (c *Cache) fill(e *engine.Engine, target int, layout ports.PixelLayout) error {
	c.Invalidate()
	c.layout = layout
	c.frameSize = e.FrameSize(layout)
	c.buf = c.buf[:0]

	p := &fillPlan{cache: c, inc: e.Index().PTSIncrement, target: target, first: -1}
	if err := e.Run(p, target, layout); err != nil {
		c.Invalidate()
		return err
	}
	if !p.hasTarget() {
		c.Invalidate()
		return e.NotFound(target, p.first, p.first+p.count-1, p.count)
	}
	c.startFrame = p.first
	c.count = p.count
	c.stats.Fills++
	return nil
}

// fillPlan accumulates every picture of the GOP containing target.
// A keyframe seen before the target's packet restarts accumulation; a
// keyframe seen after it ends the pass and the decoder is drained so the
// tail of the GOP is kept.
type fillPlan struct {
	cache      *Cache
	inc        int64
	target     int
	restart    int
	first      int
	count      int
	targetSeen bool
}

func (p *fillPlan) Packet(pkt ports.Packet) bool {
	if pkt.Keyframe {
		if p.targetSeen {
			return false
		}
		p.restart = int(pkt.PTS / p.inc)
		p.first = -1
		p.count = 0
	}
	if pkt.PTS/p.inc == int64(p.target) {
		p.targetSeen = true
	}
	return true
}

func (p *fillPlan) Slot(frame int) ([]byte, error) {
	if frame < p.restart {
		return nil, nil
	}
	if p.count == 0 {
		p.first = frame
	} else if frame != p.first+p.count {
		return nil, fmt.Errorf("%w: frame %d decoded after %d", frameindex.ErrTimingDrift, frame, p.first+p.count-1)
	}
	p.count++
	p.cache.grow(p.count)
	return p.cache.slot(p.count - 1), nil
}

func (p *fillPlan) Done() bool {
	return false
}

func (p *fillPlan) hasTarget() bool {
	return p.count > 0 && p.target >= p.first && p.target < p.first+p.count
}
