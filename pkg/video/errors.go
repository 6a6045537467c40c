package video

import (
	"errors"
	"fmt"
	"strings"

	"github.com/user/gopseek/pkg/engine"
	"github.com/user/gopseek/pkg/frameindex"
	"github.com/user/gopseek/pkg/ports"
)

// Errors returned by Open.
var (
	ErrNoVideo          = ports.ErrNoVideoStream
	ErrBadFrameRate     = frameindex.ErrBadFrameRate
	ErrOpenGOP          = frameindex.ErrOpenGOP
	ErrMisalignedTiming = frameindex.ErrMisalignedTiming
	ErrMissingPTS       = frameindex.ErrMissingPTS
	ErrDuplicatePTS     = frameindex.ErrDuplicatePTS
	ErrNoFrames         = frameindex.ErrNoFrames
	ErrOpenFailed       = errors.New("video: cannot open container")
	ErrHardwareDecoder  = errors.New("video: no software decoder available")
)

// Errors returned by reads.
var (
	ErrIndexOutOfRange = errors.New("video: frame index out of range")
	ErrInvalidRange    = errors.New("video: invalid frame range")
	ErrDecodeFailed    = engine.ErrDecodeFailed
	ErrFrameNotFound   = engine.ErrFrameNotFound
	ErrTimingDrift     = frameindex.ErrTimingDrift
	ErrBufferSize      = engine.ErrBufferSize
	ErrClosed          = errors.New("video: handle closed")
)

// Kind is a stable, machine-readable error category.
type Kind string

const (
	KindUnknown          Kind = "unknown"
	KindNoVideo          Kind = "no-video"
	KindBadFrameRate     Kind = "bad-framerate"
	KindOpenGOP          Kind = "open-gop"
	KindMisalignedTiming Kind = "misaligned-timing"
	KindMissingPTS       Kind = "missing-pts"
	KindDuplicatePTS     Kind = "duplicate-pts"
	KindNoFrames         Kind = "no-frames"
	KindOpenFailed       Kind = "open-failed"
	KindHardwareDecoder  Kind = "hardware-decoder"
	KindIndexOutOfRange  Kind = "index-out-of-range"
	KindInvalidRange     Kind = "invalid-range"
	KindDecodeFailed     Kind = "decode-failed"
	KindNotFound         Kind = "not-found"
	KindTimingDrift      Kind = "timing-drift"
	KindBufferSize       Kind = "buffer-size"
	KindClosed           Kind = "closed"
)

// Fatal reports whether errors of this kind prevent a handle from opening.
func (k Kind) Fatal() bool {
	switch k {
	case KindNoVideo, KindBadFrameRate, KindOpenGOP, KindMisalignedTiming,
		KindMissingPTS, KindDuplicatePTS, KindNoFrames, KindOpenFailed, KindHardwareDecoder:
		return true
	}
	return false
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrClosed, KindClosed},
	{ErrNoVideo, KindNoVideo},
	{ErrBadFrameRate, KindBadFrameRate},
	{ErrOpenGOP, KindOpenGOP},
	{ErrMisalignedTiming, KindMisalignedTiming},
	{ErrMissingPTS, KindMissingPTS},
	{ErrDuplicatePTS, KindDuplicatePTS},
	{ErrNoFrames, KindNoFrames},
	{ErrHardwareDecoder, KindHardwareDecoder},
	{ErrIndexOutOfRange, KindIndexOutOfRange},
	{ErrInvalidRange, KindInvalidRange},
	{ErrBufferSize, KindBufferSize},
	{ErrTimingDrift, KindTimingDrift},
	{ErrFrameNotFound, KindNotFound},
	{ErrDecodeFailed, KindDecodeFailed},
	{ErrOpenFailed, KindOpenFailed},
}

// KindOf classifies err by the sentinel it wraps.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var verr *Error
	if errors.As(err, &verr) && verr.Kind != "" {
		return verr.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// Error carries the kind of a failure and the request it happened in.
// Frame, Start and End are -1 when not applicable.
type Error struct {
	Kind    Kind
	Op      string
	Path    string
	Frame   int
	Start   int
	End     int
	DTSFrom int64
	DTSTo   int64
	Packets int
	Err     error
}

func newError(op string, err error) *Error {
	return &Error{Kind: classify(err), Op: op, Frame: -1, Start: -1, End: -1, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("video: ")
	b.WriteString(e.Op)
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	if e.Frame >= 0 {
		fmt.Fprintf(&b, " frame %d", e.Frame)
	}
	if e.Start >= 0 && e.End >= 0 {
		fmt.Fprintf(&b, " range %d-%d", e.Start, e.End)
	}
	if e.Packets > 0 {
		fmt.Fprintf(&b, " (%d packets)", e.Packets)
	}
	if e.DTSFrom != 0 || e.DTSTo != 0 {
		fmt.Fprintf(&b, " dts %d-%d", e.DTSFrom, e.DTSTo)
	}
	fmt.Fprintf(&b, " [%s]: %v", e.Kind, e.Err)
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// withNotFound copies the engine's short-pass context into e.
func (e *Error) withNotFound(err error) *Error {
	var nf *engine.NotFoundError
	if errors.As(err, &nf) {
		e.DTSFrom = nf.DTSFrom
		e.DTSTo = nf.DTSTo
		e.Packets = nf.Packets
		if e.Frame < 0 {
			e.Frame = nf.Frame
		}
	}
	return e
}
