package mocks

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/user/gopseek/pkg/ports"
)

// HEVC unit types emitted by the synthetic stream.
const (
	unitTrail = 1
	unitIDR   = 19
	unitCRA   = 21
)

// StreamSpec describes a synthetic GOP-structured video stream.
type StreamSpec struct {
	Frames    int
	GOP       int   // keyframe interval when Keyframes is empty
	Keyframes []int // explicit keyframe frame numbers
	Width     int
	Height    int
	TimeBase  ports.Rational
	FrameRate ports.Rational
	Codec     ports.Codec

	// BFrames reorders each GOP as I P B P B ... in decode order.
	BFrames bool

	// AudioStream interleaves one packet of stream 1 after each video packet.
	AudioStream bool

	// Fault injection, keyed by presentation frame number.
	OpenGOPFrames    []int // carry a CRA unit
	DropFrames       []int // packet omitted from the container
	DuplicateFrames  []int // packet presents the previous frame again
	MisalignedFrames []int // pts shifted by one tick
	NoPTSFrames      []int

	NoVideo         bool
	HardwareDecoder bool
	GrayPixels      bool
	Metadata        map[string]string
}

// DefaultStream returns a 90 frame stream at 30 fps with keyframes every
// 30 frames and a 1/30 time base.
func DefaultStream() StreamSpec {
	return StreamSpec{
		Frames:    90,
		GOP:       30,
		Width:     8,
		Height:    4,
		TimeBase:  ports.Rational{Num: 1, Den: 30},
		FrameRate: ports.Rational{Num: 30, Den: 1},
		Codec:     ports.CodecHEVC,
	}
}

func (s StreamSpec) increment() int64 {
	if s.TimeBase.Num == 0 || s.FrameRate.Num == 0 {
		return 1
	}
	inc := (s.TimeBase.Den * s.FrameRate.Den) / (s.TimeBase.Num * s.FrameRate.Num)
	if inc <= 0 {
		return 1
	}
	return inc
}

func (s StreamSpec) isKeyframe(frame int) bool {
	if len(s.Keyframes) > 0 {
		for _, k := range s.Keyframes {
			if k == frame {
				return true
			}
		}
		return false
	}
	gop := s.GOP
	if gop <= 0 {
		gop = s.Frames
	}
	return frame%gop == 0
}

// decodeOrder returns presentation frame numbers in decode order.
func (s StreamSpec) decodeOrder() []int {
	order := make([]int, 0, s.Frames)
	for f := 0; f < s.Frames; {
		end := f + 1
		for end < s.Frames && !s.isKeyframe(end) {
			end++
		}
		order = append(order, f)
		i := f + 1
		for ; s.BFrames && i+1 < end; i += 2 {
			order = append(order, i+1, i)
		}
		for ; i < end; i++ {
			order = append(order, i)
		}
		f = end
	}
	return order
}

func contains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Packets builds the container packets in decode order.
func (s StreamSpec) Packets() []ports.Packet {
	inc := s.increment()
	var packets []ports.Packet
	dtsBase := int64(0)
	if s.BFrames {
		dtsBase = -inc
	}
	for i, frame := range s.decodeOrder() {
		if contains(s.DropFrames, frame) {
			continue
		}
		pts := int64(frame) * inc
		if contains(s.DuplicateFrames, frame) && frame > 0 {
			pts = int64(frame-1) * inc
		}
		if contains(s.MisalignedFrames, frame) {
			pts++
		}
		key := s.isKeyframe(frame)
		unit := uint8(unitTrail)
		if key {
			unit = unitIDR
		}
		if contains(s.OpenGOPFrames, frame) {
			unit = unitCRA
		}
		payload := []byte{unit << 1, 0x01, byte(frame), byte(frame >> 8)}
		pkt := ports.Packet{
			StreamIndex: 0,
			DTS:         dtsBase + int64(i)*inc,
			PTS:         pts,
			HasPTS:      !contains(s.NoPTSFrames, frame),
			Keyframe:    key,
			Data:        payload,
		}
		if s.Codec == ports.CodecHEVC || s.Codec == ports.CodecH264 {
			pkt.Units = []ports.Unit{{Type: unit, Payload: payload}}
		}
		packets = append(packets, pkt)
		if s.AudioStream {
			packets = append(packets, ports.Packet{StreamIndex: 1, DTS: pkt.DTS, PTS: pkt.DTS, HasPTS: true, Keyframe: true})
		}
	}
	return packets
}

// PixelValue is the deterministic content of a synthetic frame.
func PixelValue(frame, x, y, channel int) byte {
	return byte(frame*7 + x*3 + y*5 + channel*11)
}

// ExpectedFrame returns the bytes a converter produces for a frame.
func ExpectedFrame(layout ports.PixelLayout, width, height, frame int) []byte {
	out := make([]byte, layout.FrameSize(width, height))
	fillFrame(out, layout, width, height, frame)
	return out
}

func fillFrame(dst []byte, layout ports.PixelLayout, width, height, frame int) {
	bpp := layout.BytesPerPixel()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < bpp; c++ {
				dst[(y*width+x)*bpp+c] = PixelValue(frame, x, y, c)
			}
		}
	}
}

// Backend is a synthetic implementation of ports.Backend. It records seeks
// and decode work so tests can assert how much was done per request.
type Backend struct {
	Spec StreamSpec

	OpenContainerFunc func(path string) (ports.Demuxer, error)
	NewDecoderFunc    func(stream ports.StreamInfo) (ports.Decoder, error)
	NewConverterFunc  func(stream ports.StreamInfo, layout ports.PixelLayout) (ports.Converter, error)

	// SeekBackwardErr makes every SeekBackward fail, forcing the start fallback.
	SeekBackwardErr error
	// ReadPacketErr is returned by ReadPacket once ReadPacketErrAt packets
	// have been read from one demuxer.
	ReadPacketErr   error
	ReadPacketErrAt int
	// SubmitErrFrames makes the decoder reject packets of these frames.
	SubmitErrFrames []int
	// PTSShift alters picture timestamps at decode time.
	PTSShift func(pts int64) int64

	mu               sync.Mutex
	seeks            int
	seekStarts       int
	submitted        []int
	flushes          int
	convertersOpen   int
	convertersMade   int
	demuxersOpen     int
	decodersOpen     int
	packetsRead      int
}

// NewBackend creates a synthetic backend for spec.
func NewBackend(spec StreamSpec) *Backend {
	return &Backend{Spec: spec}
}

// Counters is a snapshot of recorded work.
type Counters struct {
	Seeks          int // SeekBackward calls
	SeekStarts     int
	Flushes        int
	Submitted      []int // frame numbers submitted to decoders, in order
	PacketsRead    int
	ConvertersMade int
	ConvertersOpen int
	DemuxersOpen   int
	DecodersOpen   int
}

// Counters returns a snapshot of recorded work.
func (b *Backend) Counters() Counters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counters{
		Seeks:          b.seeks,
		SeekStarts:     b.seekStarts,
		Flushes:        b.flushes,
		Submitted:      append([]int(nil), b.submitted...),
		PacketsRead:    b.packetsRead,
		ConvertersMade: b.convertersMade,
		ConvertersOpen: b.convertersOpen,
		DemuxersOpen:   b.demuxersOpen,
		DecodersOpen:   b.decodersOpen,
	}
}

// ResetCounters clears recorded work.
func (b *Backend) ResetCounters() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seeks = 0
	b.seekStarts = 0
	b.flushes = 0
	b.submitted = nil
	b.packetsRead = 0
	b.convertersMade = 0
}

// Name returns "synthetic".
func (b *Backend) Name() string {
	return "synthetic"
}

// OpenContainer opens a demuxer over the synthetic packets.
func (b *Backend) OpenContainer(path string) (ports.Demuxer, error) {
	if b.OpenContainerFunc != nil {
		return b.OpenContainerFunc(path)
	}
	b.mu.Lock()
	b.demuxersOpen++
	b.mu.Unlock()
	return &Demuxer{backend: b, packets: b.Spec.Packets()}, nil
}

// NewDecoder creates a synthetic decoder.
func (b *Backend) NewDecoder(stream ports.StreamInfo) (ports.Decoder, error) {
	if b.NewDecoderFunc != nil {
		return b.NewDecoderFunc(stream)
	}
	depth := 0
	if b.Spec.BFrames {
		depth = 1
	}
	b.mu.Lock()
	b.decodersOpen++
	b.mu.Unlock()
	return &Decoder{backend: b, depth: depth, inc: b.Spec.increment()}, nil
}

// NewConverter creates a synthetic converter.
func (b *Backend) NewConverter(stream ports.StreamInfo, layout ports.PixelLayout) (ports.Converter, error) {
	if b.NewConverterFunc != nil {
		return b.NewConverterFunc(stream, layout)
	}
	b.mu.Lock()
	b.convertersMade++
	b.convertersOpen++
	b.mu.Unlock()
	return &Converter{backend: b, layout: layout, width: stream.Width, height: stream.Height}, nil
}

// Demuxer is a synthetic ports.Demuxer.
type Demuxer struct {
	backend *Backend
	packets []ports.Packet
	pos     int
	closed  bool
}

// VideoStream returns the synthetic stream description.
func (d *Demuxer) VideoStream() (ports.StreamInfo, error) {
	s := d.backend.Spec
	if s.NoVideo {
		return ports.StreamInfo{}, ports.ErrNoVideoStream
	}
	return ports.StreamInfo{
		Index:           0,
		Codec:           s.Codec,
		Width:           s.Width,
		Height:          s.Height,
		TimeBase:        s.TimeBase,
		FrameRate:       s.FrameRate,
		DecoderName:     "synthetic",
		HardwareDecoder: s.HardwareDecoder,
		GrayPixels:      s.GrayPixels,
		Metadata:        s.Metadata,
	}, nil
}

// ReadPacket returns the next packet or io.EOF.
func (d *Demuxer) ReadPacket() (ports.Packet, error) {
	if d.closed {
		return ports.Packet{}, errors.New("mocks: demuxer closed")
	}
	if d.backend.ReadPacketErr != nil && d.pos >= d.backend.ReadPacketErrAt {
		return ports.Packet{}, d.backend.ReadPacketErr
	}
	if d.pos >= len(d.packets) {
		return ports.Packet{}, io.EOF
	}
	pkt := d.packets[d.pos]
	d.pos++
	d.backend.mu.Lock()
	d.backend.packetsRead++
	d.backend.mu.Unlock()
	return pkt, nil
}

// SeekBackward positions at the last keyframe with dts <= target.
func (d *Demuxer) SeekBackward(dts int64) error {
	d.backend.mu.Lock()
	d.backend.seeks++
	d.backend.mu.Unlock()
	if d.backend.SeekBackwardErr != nil {
		return d.backend.SeekBackwardErr
	}
	target := -1
	for i, p := range d.packets {
		if p.StreamIndex != 0 || !p.Keyframe {
			continue
		}
		if p.DTS > dts {
			break
		}
		target = i
	}
	if target < 0 {
		return fmt.Errorf("mocks: no keyframe at or before dts %d", dts)
	}
	d.pos = target
	return nil
}

// SeekStart positions at the first packet.
func (d *Demuxer) SeekStart() error {
	d.backend.mu.Lock()
	d.backend.seekStarts++
	d.backend.mu.Unlock()
	d.pos = 0
	return nil
}

// Close releases the demuxer.
func (d *Demuxer) Close() error {
	if d.closed {
		return errors.New("mocks: demuxer closed twice")
	}
	d.closed = true
	d.backend.mu.Lock()
	d.backend.demuxersOpen--
	d.backend.mu.Unlock()
	return nil
}

// Picture is a synthetic decoded picture.
type Picture struct {
	Frame int
	pts   int64
}

// PTS returns the presentation timestamp.
func (p *Picture) PTS() int64 {
	return p.pts
}

// Decoder is a synthetic ports.Decoder. It drops packets until a keyframe
// after each Flush and emits pictures in presentation order.
type Decoder struct {
	backend  *Backend
	depth    int
	inc      int64
	primed   bool
	eof      bool
	pending  []*Picture
	ready    []*Picture
	closed   bool
	received int
}

// SubmitPacket feeds one packet.
func (d *Decoder) SubmitPacket(pkt ports.Packet) error {
	if d.closed {
		return errors.New("mocks: decoder closed")
	}
	if pkt.StreamIndex != 0 {
		return fmt.Errorf("mocks: packet of stream %d", pkt.StreamIndex)
	}
	frame := int(pkt.Data[2]) | int(pkt.Data[3])<<8
	if contains(d.backend.SubmitErrFrames, frame) {
		return fmt.Errorf("mocks: corrupt packet for frame %d", frame)
	}
	d.backend.mu.Lock()
	d.backend.submitted = append(d.backend.submitted, frame)
	d.backend.mu.Unlock()

	if pkt.Keyframe {
		d.primed = true
	}
	if !d.primed {
		return nil
	}
	pts := pkt.PTS
	if d.backend.PTSShift != nil {
		pts = d.backend.PTSShift(pts)
	}
	d.pending = append(d.pending, &Picture{Frame: frame, pts: pts})
	sort.Slice(d.pending, func(i, j int) bool { return d.pending[i].pts < d.pending[j].pts })
	for len(d.pending) > d.depth {
		d.ready = append(d.ready, d.pending[0])
		d.pending = d.pending[1:]
	}
	return nil
}

// SubmitEOF releases every held picture.
func (d *Decoder) SubmitEOF() error {
	d.eof = true
	d.ready = append(d.ready, d.pending...)
	d.pending = nil
	return nil
}

// ReceivePicture returns the next ready picture.
func (d *Decoder) ReceivePicture() (ports.Picture, error) {
	if len(d.ready) > 0 {
		pic := d.ready[0]
		d.ready = d.ready[1:]
		d.received++
		return pic, nil
	}
	if d.eof {
		return nil, io.EOF
	}
	return nil, ports.ErrWouldBlock
}

// Flush drops all state.
func (d *Decoder) Flush() {
	d.backend.mu.Lock()
	d.backend.flushes++
	d.backend.mu.Unlock()
	d.primed = false
	d.eof = false
	d.pending = nil
	d.ready = nil
}

// Close releases the decoder.
func (d *Decoder) Close() error {
	if d.closed {
		return errors.New("mocks: decoder closed twice")
	}
	d.closed = true
	d.backend.mu.Lock()
	d.backend.decodersOpen--
	d.backend.mu.Unlock()
	return nil
}

// Converter fills frames with PixelValue content.
type Converter struct {
	backend *Backend
	layout  ports.PixelLayout
	width   int
	height  int
	closed  bool
}

// Convert writes the picture's content into dst.
func (c *Converter) Convert(pic ports.Picture, dst []byte) error {
	p, ok := pic.(*Picture)
	if !ok {
		return fmt.Errorf("mocks: unexpected picture type %T", pic)
	}
	if len(dst) != c.layout.FrameSize(c.width, c.height) {
		return fmt.Errorf("mocks: destination is %d bytes, want %d", len(dst), c.layout.FrameSize(c.width, c.height))
	}
	fillFrame(dst, c.layout, c.width, c.height, p.Frame)
	return nil
}

// Close releases the converter.
func (c *Converter) Close() error {
	if c.closed {
		return errors.New("mocks: converter closed twice")
	}
	c.closed = true
	c.backend.mu.Lock()
	c.backend.convertersOpen--
	c.backend.mu.Unlock()
	return nil
}

var (
	_ ports.Backend   = (*Backend)(nil)
	_ ports.Demuxer   = (*Demuxer)(nil)
	_ ports.Decoder   = (*Decoder)(nil)
	_ ports.Converter = (*Converter)(nil)
)
