// Package video is the caller-facing API: open a file once, then read
// decoded frames by presentation number.
package video

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/user/gopseek/pkg/adapters/logger"
	"github.com/user/gopseek/pkg/engine"
	"github.com/user/gopseek/pkg/frameindex"
	"github.com/user/gopseek/pkg/gopcache"
	"github.com/user/gopseek/pkg/ports"
)

// GrayscaleTag is the container metadata key that selects gray output.
const GrayscaleTag = "is_grayscale"

// Options configures Open.
type Options struct {
	// Backend provides the demuxer, decoder and converter. Required.
	Backend ports.Backend

	// Logger receives debug output. Defaults to a no-op logger.
	Logger ports.Logger

	// Layout overrides the default pixel layout when set.
	Layout *ports.PixelLayout
}

// Handle is an open video. It owns the demuxer session, the decoder and the
// GOP cache. A Handle is not safe for concurrent use.
type Handle struct {
	path    string
	backend ports.Backend
	demux   ports.Demuxer
	dec     ports.Decoder
	stream  ports.StreamInfo
	index   *frameindex.Index
	eng     *engine.Engine
	cache   *gopcache.Cache
	layout  ports.PixelLayout
	log     ports.Logger
	closed  bool
}

// Open opens path, validates its timing and builds the frame index.
// On failure every partially acquired resource is released.
func Open(path string, opts Options) (h *Handle, err error) {
	if opts.Backend == nil {
		return nil, &Error{Kind: KindOpenFailed, Op: "open", Path: path, Frame: -1, Start: -1, End: -1,
			Err: fmt.Errorf("%w: no backend", ErrOpenFailed)}
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNoop()
	}
	log = log.WithComponent("video")

	fail := func(err error) error {
		if classify(err) == KindUnknown {
			err = fmt.Errorf("%w: %w", ErrOpenFailed, err)
		}
		e := newError("open", err)
		e.Path = path
		return e
	}

	demux, err := opts.Backend.OpenContainer(path)
	if err != nil {
		return nil, fail(fmt.Errorf("%w: %w", ErrOpenFailed, err))
	}
	defer func() {
		if err != nil {
			demux.Close()
		}
	}()

	stream, err := demux.VideoStream()
	if err != nil {
		return nil, fail(err)
	}
	if stream.HardwareDecoder {
		return nil, fail(fmt.Errorf("%w: %s", ErrHardwareDecoder, stream.DecoderName))
	}

	index, err := frameindex.Build(demux, stream, log.WithComponent("frameindex"))
	if err != nil {
		return nil, fail(err)
	}

	dec, err := opts.Backend.NewDecoder(stream)
	if err != nil {
		return nil, fail(fmt.Errorf("%w: create decoder: %w", ErrOpenFailed, err))
	}

	layout := DefaultLayout(stream)
	if opts.Layout != nil {
		layout = *opts.Layout
	}

	h = &Handle{
		path:    path,
		backend: opts.Backend,
		demux:   demux,
		dec:     dec,
		stream:  stream,
		index:   index,
		eng:     engine.New(opts.Backend, demux, dec, stream, index, log),
		cache:   gopcache.New(),
		layout:  layout,
		log:     log,
	}
	log.Debug("Opened %s: %dx%d %s, %d frames, pts increment %d, decoder %s",
		path, stream.Width, stream.Height, stream.Codec, index.FrameCount(), index.PTSIncrement, stream.DecoderName)
	return h, nil
}

// DefaultLayout picks gray when the container is tagged grayscale or the
// coded pixels carry luma only, and RGB otherwise.
func DefaultLayout(stream ports.StreamInfo) ports.PixelLayout {
	if v, ok := stream.Metadata[GrayscaleTag]; ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			if b {
				return ports.LayoutGray
			}
			return ports.LayoutRGB
		}
	}
	if stream.GrayPixels {
		return ports.LayoutGray
	}
	return ports.LayoutRGB
}

// Path returns the opened file path.
func (h *Handle) Path() string {
	return h.path
}

// FrameCount returns the number of frames.
func (h *Handle) FrameCount() int {
	return h.index.FrameCount()
}

// Info returns the selected video stream.
func (h *Handle) Info() ports.StreamInfo {
	return h.stream
}

// Index returns the frame index.
func (h *Handle) Index() *frameindex.Index {
	return h.index
}

// Layout returns the default pixel layout.
func (h *Handle) Layout() ports.PixelLayout {
	return h.layout
}

// FrameSize returns the bytes of one frame in layout.
func (h *Handle) FrameSize(layout ports.PixelLayout) int {
	return h.eng.FrameSize(layout)
}

// CacheStats returns the GOP cache counters.
func (h *Handle) CacheStats() gopcache.Stats {
	return h.cache.Stats()
}

// EngineStats returns the decode work counters.
func (h *Handle) EngineStats() engine.Stats {
	return h.eng.Stats()
}

// ReadFrame returns a copy of frame n in layout, serving it from the GOP
// cache when possible.
func (h *Handle) ReadFrame(n int, layout ports.PixelLayout) ([]byte, error) {
	if err := h.checkFrame("read frame", n); err != nil {
		return nil, err
	}
	data, err := h.cache.Frame(h.eng, n, layout)
	if err != nil {
		e := newError("read frame", err)
		e.Path = h.path
		e.Frame = n
		return nil, e.withNotFound(err)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// ReadFrameRange returns frames a..b inclusive, concatenated in layout.
func (h *Handle) ReadFrameRange(a, b int, layout ports.PixelLayout) ([]byte, error) {
	if err := h.checkRange(a, b); err != nil {
		return nil, err
	}
	dst := make([]byte, h.eng.RangeSize(a, b, layout))
	if err := h.ReadFrameRangeInto(a, b, layout, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// ReadFrameRangeInto decodes frames a..b inclusive into dst, which must
// hold exactly (b-a+1) frames.
func (h *Handle) ReadFrameRangeInto(a, b int, layout ports.PixelLayout, dst []byte) error {
	if err := h.checkRange(a, b); err != nil {
		return err
	}
	if err := h.eng.ReadRange(a, b, layout, dst); err != nil {
		e := newError("read range", err)
		e.Path = h.path
		e.Start, e.End = a, b
		return e.withNotFound(err)
	}
	return nil
}

// Close releases the decoder, the demuxer session and the cache.
// Closing twice returns ErrClosed.
func (h *Handle) Close() error {
	if h.closed {
		return newError("close", ErrClosed)
	}
	h.closed = true
	h.cache.Release()

	var result *multierror.Error
	if err := h.dec.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close decoder: %w", err))
	}
	if err := h.demux.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close demuxer: %w", err))
	}
	h.log.Debug("Closed %s", h.path)
	return result.ErrorOrNil()
}

func (h *Handle) checkFrame(op string, n int) error {
	if h.closed {
		return newError(op, ErrClosed)
	}
	if n < 0 || n >= h.FrameCount() {
		e := newError(op, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, n, h.FrameCount()))
		e.Frame = n
		return e
	}
	return nil
}

func (h *Handle) checkRange(a, b int) error {
	if h.closed {
		return newError("read range", ErrClosed)
	}
	var err error
	switch {
	case a > b:
		err = fmt.Errorf("%w: start %d after end %d", ErrInvalidRange, a, b)
	case a < 0 || b >= h.FrameCount():
		err = fmt.Errorf("%w: %d-%d not in [0, %d)", ErrIndexOutOfRange, a, b, h.FrameCount())
	}
	if err != nil {
		e := newError("read range", err)
		e.Start, e.End = a, b
		return e
	}
	return nil
}

// IsClosed reports whether err means the handle was already closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}
