// Package engine implements the seek-once, decode-forward primitive shared
// by the GOP cache and the range decoder.
package engine

import (
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/user/gopseek/pkg/frameindex"
	"github.com/user/gopseek/pkg/ports"
)

var (
	// ErrFrameNotFound is returned when a pass ends before every wanted
	// frame was decoded.
	ErrFrameNotFound = errors.New("engine: frame not found")

	// ErrDecodeFailed is returned when the decoder rejects a packet or fails
	// to produce a picture.
	ErrDecodeFailed = errors.New("engine: decode failed")

	// ErrBufferSize is returned when a destination buffer has the wrong length.
	ErrBufferSize = errors.New("engine: destination buffer size mismatch")

	// ErrOutOfRange is returned for frames outside the index.
	ErrOutOfRange = errors.New("engine: frame outside index")
)

// NotFoundError reports a short pass with the context needed to diagnose it.
// DTSFrom, DTSTo and Packets describe the packets the pass submitted.
type NotFoundError struct {
	Frame    int // first frame that was not captured
	Start    int
	End      int
	Captured int
	Packets  int
	DTSFrom  int64
	DTSTo    int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("engine: frame %d not found (range %d-%d, captured %d, %d packets, dts %d-%d)",
		e.Frame, e.Start, e.End, e.Captured, e.Packets, e.DTSFrom, e.DTSTo)
}

func (e *NotFoundError) Unwrap() error {
	return ErrFrameNotFound
}

// Plan decides which decoded frames a pass captures and where they go.
type Plan interface {
	// Packet is called for each video packet before it is submitted.
	// Returning false ends the pass without submitting the packet.
	Packet(pkt ports.Packet) bool

	// Slot returns the destination for a decoded frame, or nil to drop it.
	Slot(frame int) ([]byte, error)

	// Done reports whether the pass has everything it wants.
	Done() bool
}

// Stats counts the work done by an engine.
type Stats struct {
	Passes           int
	Seeks            int
	StartFallbacks   int
	PacketsSubmitted int
	PicturesDecoded  int
	PicturesCaptured int
}

// Pass describes the packets submitted by the most recent Run.
type Pass struct {
	Packets  int
	FirstDTS int64
	LastDTS  int64
}

// Engine drives one demuxer session and one decoder.
// It is not safe for concurrent use.
type Engine struct {
	backend ports.Backend
	demux   ports.Demuxer
	dec     ports.Decoder
	stream  ports.StreamInfo
	index   *frameindex.Index
	log     ports.Logger
	stats   Stats
	pass    Pass
}

// New creates an engine over an open session.
func New(backend ports.Backend, demux ports.Demuxer, dec ports.Decoder, stream ports.StreamInfo, index *frameindex.Index, log ports.Logger) *Engine {
	return &Engine{
		backend: backend,
		demux:   demux,
		dec:     dec,
		stream:  stream,
		index:   index,
		log:     log.WithComponent("engine"),
	}
}

// Index returns the frame index the engine seeks with.
func (e *Engine) Index() *frameindex.Index {
	return e.index
}

// Stream returns the stream being decoded.
func (e *Engine) Stream() ports.StreamInfo {
	return e.stream
}

// FrameSize returns the bytes per frame for layout.
func (e *Engine) FrameSize(layout ports.PixelLayout) int {
	return layout.FrameSize(e.stream.Width, e.stream.Height)
}

// Stats returns the accumulated work counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// LastPass returns what the most recent Run submitted.
func (e *Engine) LastPass() Pass {
	return e.pass
}

// NotFound builds the error for a pass that ended before frame was
// captured, filling the scanned span from the last pass.
func (e *Engine) NotFound(frame, start, end, captured int) *NotFoundError {
	return &NotFoundError{
		Frame:    frame,
		Start:    start,
		End:      end,
		Captured: captured,
		Packets:  e.pass.Packets,
		DTSFrom:  e.pass.FirstDTS,
		DTSTo:    e.pass.LastDTS,
	}
}

// Run seeks to the keyframe at or before seekFrame and decodes forward,
// handing decoded frames to the plan until it is done or the stream ends.
func (e *Engine) Run(p Plan, seekFrame int, layout ports.PixelLayout) (err error) {
	if seekFrame < 0 || seekFrame >= e.index.FrameCount() {
		return fmt.Errorf("%w: %d", ErrOutOfRange, seekFrame)
	}

	ws, err := e.NewWorkspace(layout)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	e.stats.Passes++
	e.pass = Pass{}
	if err := e.seek(seekFrame); err != nil {
		return err
	}

	for !p.Done() {
		pkt, err := e.demux.ReadPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read packet: %w", err)
		}
		if pkt.StreamIndex != e.index.StreamIndex {
			continue
		}
		if !p.Packet(pkt) {
			break
		}
		if err := e.dec.SubmitPacket(pkt); err != nil {
			return fmt.Errorf("%w: packet at dts %d: %v", ErrDecodeFailed, pkt.DTS, err)
		}
		e.stats.PacketsSubmitted++
		if e.pass.Packets == 0 {
			e.pass.FirstDTS = pkt.DTS
		}
		e.pass.LastDTS = pkt.DTS
		e.pass.Packets++
		if err := e.drain(p, ws); err != nil {
			return err
		}
	}
	if p.Done() {
		return nil
	}

	if err := e.dec.SubmitEOF(); err != nil {
		return fmt.Errorf("%w: end of stream: %v", ErrDecodeFailed, err)
	}
	return e.drain(p, ws)
}

func (e *Engine) seek(frame int) error {
	dts := e.index.DecodePosition[frame]
	e.stats.Seeks++
	e.log.Debug("Seeking to frame %d (dts %d)", frame, dts)
	if err := e.demux.SeekBackward(dts); err != nil {
		e.stats.StartFallbacks++
		e.log.Debug("Seek to dts %d failed, decoding from the start: %v", dts, err)
		if err := e.demux.SeekStart(); err != nil {
			return fmt.Errorf("seek to start: %w", err)
		}
	}
	e.dec.Flush()
	return nil
}

// drain receives pictures until the decoder wants more input or ends.
func (e *Engine) drain(p Plan, ws *Workspace) error {
	for !p.Done() {
		pic, err := e.dec.ReceivePicture()
		if errors.Is(err, ports.ErrWouldBlock) || err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		}
		e.stats.PicturesDecoded++

		frame, err := e.index.FrameOf(pic.PTS())
		if err != nil {
			return err
		}
		dst, err := p.Slot(frame)
		if err != nil {
			return err
		}
		if dst == nil {
			continue
		}
		if err := ws.Convert(pic, dst); err != nil {
			return fmt.Errorf("%w: convert frame %d: %v", ErrDecodeFailed, frame, err)
		}
		e.stats.PicturesCaptured++
	}
	return nil
}
