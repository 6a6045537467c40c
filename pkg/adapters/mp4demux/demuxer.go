// Package mp4demux is a pure-Go demuxer for progressive and fragmented MP4
// files built on mp4ff. It exposes the first video track as packets in
// decode order and supports keyframe-anchored backward seeking.
package mp4demux

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/gopseek/pkg/nalu"
	"github.com/user/gopseek/pkg/ports"
)

var (
	// ErrNoKeyframe is returned by SeekBackward when no keyframe precedes the target.
	ErrNoKeyframe = errors.New("mp4demux: no keyframe at or before target")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("mp4demux: demuxer closed")
)

// sample_is_non_sync_sample bit of ISO/IEC 14496-12 sample flags.
const nonSyncFlag = 0x00010000

// sample is one video sample in decode order.
type sample struct {
	dts    int64
	pts    int64
	dur    uint32
	key    bool
	offset int64
	size   uint32
	data   []byte // set for fragmented files
}

// Demuxer reads video samples from an MP4 file.
type Demuxer struct {
	reader  io.ReadSeeker
	closer  io.Closer
	stream  ports.StreamInfo
	noVideo bool
	samples []sample
	pos     int
	closed  bool
}

// Open opens an MP4 file.
func Open(path string) (*Demuxer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	d, err := NewFromReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	d.closer = f
	return d, nil
}

// NewFromReader parses an MP4 from reader. The reader must stay valid until
// Close for progressive files.
func NewFromReader(reader io.ReadSeeker) (*Demuxer, error) {
	mp4File, err := mp4.DecodeFile(reader)
	if err != nil {
		return nil, fmt.Errorf("decode mp4: %w", err)
	}

	d := &Demuxer{reader: reader}
	var moov *mp4.MoovBox
	if mp4File.IsFragmented() && mp4File.Init != nil {
		moov = mp4File.Init.Moov
	} else {
		moov = mp4File.Moov
	}
	if moov == nil {
		return nil, fmt.Errorf("no moov box found")
	}

	trak := findVideoTrack(moov)
	if trak == nil {
		d.noVideo = true
		return d, nil
	}

	d.stream = streamInfo(trak)

	if mp4File.IsFragmented() {
		err = d.loadFragmented(mp4File, moov, trak)
	} else {
		err = d.loadProgressive(trak)
	}
	if err != nil {
		return nil, err
	}
	if shift := editShift(trak); shift != 0 {
		for i := range d.samples {
			d.samples[i].pts -= shift
		}
	}
	d.stream.FrameRate = frameRate(d.samples, d.stream.TimeBase.Den)
	return d, nil
}

// editShift returns the media time of the first non-empty edit, which
// moves the first presented sample to zero. Empty edits and rate changes
// are not applied.
func editShift(trak *mp4.TrakBox) int64 {
	if trak.Edts == nil {
		return 0
	}
	for _, elst := range trak.Edts.Elst {
		for _, entry := range elst.Entries {
			if entry.MediaTime >= 0 {
				return entry.MediaTime
			}
		}
	}
	return 0
}

func findVideoTrack(moov *mp4.MoovBox) *mp4.TrakBox {
	for _, trak := range moov.Traks {
		if trak.Mdia != nil && trak.Mdia.Hdlr != nil && trak.Mdia.Hdlr.HandlerType == "vide" {
			return trak
		}
	}
	return nil
}

func streamInfo(trak *mp4.TrakBox) ports.StreamInfo {
	info := ports.StreamInfo{
		Index:       int(trak.Tkhd.TrackID),
		Codec:       ports.CodecUnknown,
		TimeBase:    ports.Rational{Num: 1, Den: 1000},
		LengthSize:  4,
		Metadata:    map[string]string{},
	}
	if trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale != 0 {
		info.TimeBase = ports.Rational{Num: 1, Den: int64(trak.Mdia.Mdhd.Timescale)}
	}
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return info
	}
	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		vse, ok := child.(*mp4.VisualSampleEntryBox)
		if !ok {
			continue
		}
		info.Width = int(vse.Width)
		info.Height = int(vse.Height)
		switch child.Type() {
		case "avc1", "avc3":
			info.Codec = ports.CodecH264
			if vse.AvcC != nil {
				info.CodecConfig = boxPayload(vse.AvcC)
				if cfg, err := nalu.ParseAVCC(info.CodecConfig); err == nil {
					info.LengthSize = cfg.LengthSize
					info.ParameterSets = cfg.ParameterSets
				}
			}
		case "hvc1", "hev1":
			info.Codec = ports.CodecHEVC
			if vse.HvcC != nil {
				info.CodecConfig = boxPayload(vse.HvcC)
				if cfg, err := nalu.ParseHVCC(info.CodecConfig); err == nil {
					info.LengthSize = cfg.LengthSize
					info.ParameterSets = cfg.ParameterSets
				}
			}
		case "av01":
			info.Codec = ports.CodecAV1
		}
		break
	}
	return info
}

// boxPayload encodes a box and strips its 8 byte header.
func boxPayload(box mp4.Box) []byte {
	var buf bytes.Buffer
	if err := box.Encode(&buf); err != nil || buf.Len() < 8 {
		return nil
	}
	return buf.Bytes()[8:]
}

func (d *Demuxer) loadProgressive(trak *mp4.TrakBox) error {
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
		return fmt.Errorf("no sample table found")
	}
	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz == nil || stbl.Stsc == nil {
		return fmt.Errorf("missing stsz or stsc box")
	}

	syncSamples := make(map[uint32]bool)
	if stbl.Stss != nil {
		for _, nr := range stbl.Stss.SampleNumber {
			syncSamples[nr] = true
		}
	}

	sampleCount := stbl.Stsz.SampleNumber
	d.samples = make([]sample, 0, sampleCount)
	prevChunk := -1
	var offset uint64
	for nr := uint32(1); nr <= sampleCount; nr++ {
		chunkNr, _, err := stbl.Stsc.ChunkNrFromSampleNr(int(nr))
		if err != nil {
			return fmt.Errorf("sample %d: get chunk nr: %w", nr, err)
		}
		if chunkNr != prevChunk {
			offset, err = chunkOffset(stbl, chunkNr)
			if err != nil {
				return fmt.Errorf("sample %d: %w", nr, err)
			}
			prevChunk = chunkNr
		}
		size := stbl.Stsz.GetSampleSize(int(nr))

		var dts uint64
		var dur uint32
		if stbl.Stts != nil {
			dts, dur = stbl.Stts.GetDecodeTime(nr)
		}
		var cto int64
		if stbl.Ctts != nil {
			cto = int64(stbl.Ctts.GetCompositionTimeOffset(nr))
		}

		d.samples = append(d.samples, sample{
			dts:    int64(dts),
			pts:    int64(dts) + cto,
			dur:    dur,
			key:    syncSamples[nr] || stbl.Stss == nil,
			offset: int64(offset),
			size:   size,
		})
		offset += uint64(size)
	}
	return nil
}

func chunkOffset(stbl *mp4.StblBox, chunkNr int) (uint64, error) {
	switch {
	case stbl.Stco != nil:
		off, err := stbl.Stco.GetOffset(chunkNr)
		if err != nil {
			return 0, fmt.Errorf("get chunk offset: %w", err)
		}
		return off, nil
	case stbl.Co64 != nil:
		if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
			return 0, fmt.Errorf("chunk nr %d out of range", chunkNr)
		}
		return stbl.Co64.ChunkOffset[chunkNr-1], nil
	default:
		return 0, fmt.Errorf("no stco or co64 box")
	}
}

func (d *Demuxer) loadFragmented(mp4File *mp4.File, moov *mp4.MoovBox, trak *mp4.TrakBox) error {
	trackID := trak.Tkhd.TrackID
	var trex *mp4.TrexBox
	if moov.Mvex != nil {
		for _, t := range moov.Mvex.Trexs {
			if t.TrackID == trackID {
				trex = t
				break
			}
		}
	}

	for _, seg := range mp4File.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			ours := false
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID == trackID {
					ours = true
				}
			}
			if !ours {
				continue
			}
			samples, err := frag.GetFullSamples(trex)
			if err != nil {
				return fmt.Errorf("get samples: %w", err)
			}
			for _, s := range samples {
				d.samples = append(d.samples, sample{
					dts:  int64(s.DecodeTime),
					pts:  int64(s.DecodeTime) + int64(s.CompositionTimeOffset),
					dur:  s.Dur,
					key:  s.Flags&nonSyncFlag == 0,
					size: uint32(len(s.Data)),
					data: s.Data,
				})
			}
		}
	}
	return nil
}

// frameRate derives the nominal rate from the most common sample duration.
func frameRate(samples []sample, timescale int64) ports.Rational {
	counts := make(map[uint32]int)
	for _, s := range samples {
		if s.dur > 0 {
			counts[s.dur]++
		}
	}
	var best uint32
	for dur, n := range counts {
		if n > counts[best] || (n == counts[best] && dur < best) {
			best = dur
		}
	}
	if best == 0 {
		return ports.Rational{}
	}
	num, den := timescale, int64(best)
	g := gcd(num, den)
	return ports.Rational{Num: num / g, Den: den / g}
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}

// VideoStream returns the first video track.
func (d *Demuxer) VideoStream() (ports.StreamInfo, error) {
	if d.noVideo {
		return ports.StreamInfo{}, ports.ErrNoVideoStream
	}
	return d.stream, nil
}

// SetDecoderName records the decoder a backend pairs with this demuxer.
func (d *Demuxer) SetDecoderName(name string) {
	d.stream.DecoderName = name
}

// SampleCount returns the number of video samples.
func (d *Demuxer) SampleCount() int {
	return len(d.samples)
}

// ReadPacket returns the next video sample.
func (d *Demuxer) ReadPacket() (ports.Packet, error) {
	if d.closed {
		return ports.Packet{}, ErrClosed
	}
	if d.noVideo || d.pos >= len(d.samples) {
		return ports.Packet{}, io.EOF
	}
	s := d.samples[d.pos]
	data, err := d.sampleData(s)
	if err != nil {
		return ports.Packet{}, fmt.Errorf("sample %d: %w", d.pos+1, err)
	}
	d.pos++

	pkt := ports.Packet{
		StreamIndex: d.stream.Index,
		DTS:         s.dts,
		PTS:         s.pts,
		HasPTS:      true,
		Keyframe:    s.key,
		Data:        data,
	}
	units, err := nalu.Units(d.stream.Codec, data, d.stream.LengthSize)
	if err != nil {
		return ports.Packet{}, fmt.Errorf("sample %d: %w", d.pos, err)
	}
	pkt.Units = units
	return pkt, nil
}

func (d *Demuxer) sampleData(s sample) ([]byte, error) {
	if s.data != nil {
		return s.data, nil
	}
	if _, err := d.reader.Seek(s.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to sample: %w", err)
	}
	data := make([]byte, s.size)
	if _, err := io.ReadFull(d.reader, data); err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	return data, nil
}

// SeekBackward positions at the last keyframe whose dts is <= dts.
func (d *Demuxer) SeekBackward(dts int64) error {
	if d.closed {
		return ErrClosed
	}
	// samples are in decode order, so dts is non-decreasing
	i := sort.Search(len(d.samples), func(i int) bool { return d.samples[i].dts > dts })
	for i--; i >= 0; i-- {
		if d.samples[i].key {
			d.pos = i
			return nil
		}
	}
	return fmt.Errorf("%w: dts %d", ErrNoKeyframe, dts)
}

// SeekStart positions at the first sample.
func (d *Demuxer) SeekStart() error {
	if d.closed {
		return ErrClosed
	}
	d.pos = 0
	return nil
}

// Close releases the underlying file.
func (d *Demuxer) Close() error {
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	d.samples = nil
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

var _ ports.Demuxer = (*Demuxer)(nil)
