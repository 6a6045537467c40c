// Package frameindex validates stream timing and maps presentation frame
// numbers to the decode timestamps used for seeking.
package frameindex

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/user/gopseek/pkg/nalu"
	"github.com/user/gopseek/pkg/ports"
)

var (
	// ErrBadFrameRate is returned when the nominal frame rate is unknown or
	// does not produce a whole number of time base ticks per frame.
	ErrBadFrameRate = errors.New("frameindex: frame rate cannot be mapped to time base")

	// ErrOpenGOP is returned when the bitstream contains open-GOP structure.
	ErrOpenGOP = errors.New("frameindex: open GOP structure")

	// ErrMisalignedTiming is returned when a presentation timestamp is not a
	// multiple of the per-frame tick increment.
	ErrMisalignedTiming = errors.New("frameindex: presentation timestamp not aligned to frame grid")

	// ErrMissingPTS is returned when a frame has no packet presenting it.
	ErrMissingPTS = errors.New("frameindex: frames without presentation timestamp")

	// ErrDuplicatePTS is returned when more than one packet presents a frame.
	ErrDuplicatePTS = errors.New("frameindex: frames with duplicate presentation timestamp")

	// ErrNoFrames is returned when the stream has no video packets.
	ErrNoFrames = errors.New("frameindex: no video frames")

	// ErrTimingDrift is returned by FrameOf when a timestamp seen at decode
	// time does not divide by the increment.
	ErrTimingDrift = errors.New("frameindex: timestamp drift")
)

// Index maps presentation frame numbers to decode timestamps.
// It is read-only after Build.
type Index struct {
	// DecodePosition[i] is the decode timestamp of the packet presenting frame i.
	DecodePosition []int64

	// PTSIncrement is the number of time base ticks per frame.
	PTSIncrement int64

	// Keyframes lists presentation frame numbers of keyframe packets, ascending.
	Keyframes []int

	// Packets is the number of video packets counted in the first pass.
	Packets int

	StreamIndex int
	TimeBase    ports.Rational
	FrameRate   ports.Rational
}

// FrameCount returns the number of frames in the index.
func (ix *Index) FrameCount() int {
	return len(ix.DecodePosition)
}

// FrameOf converts a presentation timestamp to a frame number.
func (ix *Index) FrameOf(pts int64) (int, error) {
	if pts%ix.PTSIncrement != 0 {
		return 0, fmt.Errorf("%w: pts %d is not a multiple of %d", ErrTimingDrift, pts, ix.PTSIncrement)
	}
	return int(pts / ix.PTSIncrement), nil
}

// KeyframeAtOrBefore returns the last keyframe number <= frame, or -1.
func (ix *Index) KeyframeAtOrBefore(frame int) int {
	i := sort.SearchInts(ix.Keyframes, frame+1)
	if i == 0 {
		return -1
	}
	return ix.Keyframes[i-1]
}

// GOPSizes returns the distance between consecutive keyframes, with the
// last GOP running to the end of the stream.
func (ix *Index) GOPSizes() []int {
	sizes := make([]int, 0, len(ix.Keyframes))
	for i, k := range ix.Keyframes {
		next := ix.FrameCount()
		if i+1 < len(ix.Keyframes) {
			next = ix.Keyframes[i+1]
		}
		sizes = append(sizes, next-k)
	}
	return sizes
}

// PTSIncrement computes the ticks per frame for a time base and frame rate.
// tb is seconds per tick and fr is frames per second.
func PTSIncrement(tb, fr ports.Rational) (int64, error) {
	if !tb.Valid() || !fr.Valid() {
		return 0, fmt.Errorf("%w: time base %s, frame rate %s", ErrBadFrameRate, tb, fr)
	}
	num := tb.Den * fr.Den
	den := tb.Num * fr.Num
	if den <= 0 || num <= 0 || num%den != 0 {
		return 0, fmt.Errorf("%w: time base %s, frame rate %s", ErrBadFrameRate, tb, fr)
	}
	return num / den, nil
}

// Build reads the whole stream twice and returns the validated index.
// The demuxer is left positioned at the start of the stream.
func Build(demux ports.Demuxer, stream ports.StreamInfo, log ports.Logger) (*Index, error) {
	inc, err := PTSIncrement(stream.TimeBase, stream.FrameRate)
	if err != nil {
		return nil, err
	}

	packets, err := countPackets(demux, stream)
	if err != nil {
		return nil, err
	}
	if packets == 0 {
		return nil, ErrNoFrames
	}
	log.Debug("Counted %d video packets", packets)

	if err := demux.SeekStart(); err != nil {
		return nil, fmt.Errorf("seek to start: %w", err)
	}

	ix := &Index{
		DecodePosition: make([]int64, packets),
		PTSIncrement:   inc,
		Packets:        packets,
		StreamIndex:    stream.Index,
		TimeBase:       stream.TimeBase,
		FrameRate:      stream.FrameRate,
	}
	hits := make([]int, packets)
	unmapped := 0

	for {
		pkt, err := demux.ReadPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read packet: %w", err)
		}
		if pkt.StreamIndex != stream.Index {
			continue
		}
		if !pkt.HasPTS {
			return nil, fmt.Errorf("%w: packet at dts %d has no pts", ErrMissingPTS, pkt.DTS)
		}
		if pkt.PTS%inc != 0 {
			return nil, fmt.Errorf("%w: pts %d, increment %d", ErrMisalignedTiming, pkt.PTS, inc)
		}
		frame := pkt.PTS / inc
		if frame < 0 || frame >= int64(packets) {
			unmapped++
			continue
		}
		hits[frame]++
		ix.DecodePosition[frame] = pkt.DTS
		if pkt.Keyframe && hits[frame] == 1 {
			ix.Keyframes = append(ix.Keyframes, int(frame))
		}
	}

	missing, duplicate := 0, 0
	for _, n := range hits {
		switch {
		case n == 0:
			missing++
		case n > 1:
			duplicate++
		}
	}
	if duplicate > 0 {
		return nil, fmt.Errorf("%w: %d of %d frames", ErrDuplicatePTS, duplicate, packets)
	}
	if missing > 0 {
		return nil, fmt.Errorf("%w: %d of %d frames (%d packets outside the frame range)", ErrMissingPTS, missing, packets, unmapped)
	}

	sort.Ints(ix.Keyframes)

	if err := demux.SeekStart(); err != nil {
		return nil, fmt.Errorf("seek to start: %w", err)
	}

	log.Debug("Indexed %d frames, pts increment %d, %d keyframes", packets, inc, len(ix.Keyframes))
	return ix, nil
}

func countPackets(demux ports.Demuxer, stream ports.StreamInfo) (int, error) {
	n := 0
	for {
		pkt, err := demux.ReadPacket()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read packet: %w", err)
		}
		if pkt.StreamIndex != stream.Index {
			continue
		}
		if u, ok := nalu.OpenGOPUnit(stream.Codec, pkt.Units); ok {
			return 0, fmt.Errorf("%w: %s unit in packet %d (dts %d)", ErrOpenGOP, nalu.Describe(stream.Codec, u), n, pkt.DTS)
		}
		n++
	}
}
