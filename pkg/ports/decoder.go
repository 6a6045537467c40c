package ports

import (
	"errors"
	"fmt"
)

var (
	// ErrWouldBlock is returned by Decoder.ReceivePicture when the decoder
	// needs more input before it can emit another picture.
	ErrWouldBlock = errors.New("ports: decoder needs more input")

	// ErrNoVideoStream is returned when a container has no video stream.
	ErrNoVideoStream = errors.New("ports: no video stream")
)

// Codec identifies the coding format of a video stream.
type Codec string

const (
	CodecH264    Codec = "h264"
	CodecHEVC    Codec = "hevc"
	CodecAV1     Codec = "av1"
	CodecUnknown Codec = "unknown"
)

// Rational is a fraction used for time bases and frame rates.
type Rational struct {
	Num int64
	Den int64
}

// String returns the rational as "num/den".
func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Valid reports whether both parts are non-zero.
func (r Rational) Valid() bool {
	return r.Num != 0 && r.Den != 0
}

// PixelLayout is the byte layout of a converted frame.
type PixelLayout int

const (
	// LayoutGray is one byte per pixel, row-major.
	LayoutGray PixelLayout = iota
	// LayoutRGB is three interleaved bytes per pixel, row-major.
	LayoutRGB
)

// String returns the layout name.
func (l PixelLayout) String() string {
	switch l {
	case LayoutGray:
		return "gray"
	case LayoutRGB:
		return "rgb"
	default:
		return "unknown"
	}
}

// BytesPerPixel returns the number of bytes one pixel occupies.
func (l PixelLayout) BytesPerPixel() int {
	if l == LayoutRGB {
		return 3
	}
	return 1
}

// FrameSize returns the size in bytes of one converted frame.
func (l PixelLayout) FrameSize(width, height int) int {
	return width * height * l.BytesPerPixel()
}

// ParsePixelLayout parses "gray" or "rgb".
func ParsePixelLayout(s string) (PixelLayout, error) {
	switch s {
	case "gray", "grey", "grayscale":
		return LayoutGray, nil
	case "rgb", "color":
		return LayoutRGB, nil
	default:
		return LayoutGray, fmt.Errorf("unknown pixel layout %q", s)
	}
}

// StreamInfo describes the selected video elementary stream.
type StreamInfo struct {
	Index     int
	Codec     Codec
	Width     int
	Height    int
	TimeBase  Rational
	FrameRate Rational

	// LengthSize is the NAL unit length prefix size in bytes (H.264/HEVC).
	LengthSize int
	// ParameterSets holds the codec configuration NAL units (SPS, PPS, VPS).
	ParameterSets [][]byte
	// CodecConfig is the raw decoder configuration record (avcC/hvcC body).
	CodecConfig []byte

	// DecoderName is the name of the software decoder the backend will use.
	DecoderName string
	// HardwareDecoder is true when the backend could only offer a hardware decoder.
	HardwareDecoder bool
	// GrayPixels is true when the coded pixel format carries luma only.
	GrayPixels bool
	// Metadata holds container-level tags.
	Metadata map[string]string
}

// Unit is one typed sub-unit of a coded packet (a NAL unit for H.264/HEVC).
type Unit struct {
	Type    uint8
	Payload []byte
}

// Packet is one coded access unit read from the demuxer.
type Packet struct {
	StreamIndex int
	DTS         int64
	PTS         int64
	HasPTS      bool
	Keyframe    bool
	Data        []byte
	Units       []Unit
}

// Picture is one decoded picture. Concrete types are backend-specific and
// only understood by the matching Converter.
type Picture interface {
	// PTS returns the presentation timestamp in stream time base units.
	PTS() int64
}

// Demuxer is an open container session.
type Demuxer interface {
	// VideoStream returns the selected video stream or ErrNoVideoStream.
	VideoStream() (StreamInfo, error)

	// ReadPacket returns the next packet in decode order, or io.EOF.
	ReadPacket() (Packet, error)

	// SeekBackward positions the session at the last keyframe whose decode
	// timestamp is at or before dts.
	SeekBackward(dts int64) error

	// SeekStart positions the session at the first packet.
	SeekStart() error

	// Close releases the session.
	Close() error
}

// Decoder decodes packets of one stream into pictures.
type Decoder interface {
	// SubmitPacket feeds one packet.
	SubmitPacket(pkt Packet) error

	// SubmitEOF signals that no more packets will follow until Flush.
	SubmitEOF() error

	// ReceivePicture returns the next picture, ErrWouldBlock, or io.EOF
	// once drained after SubmitEOF.
	ReceivePicture() (Picture, error)

	// Flush drops every buffered packet and reference picture.
	Flush()

	// Close releases the decoder.
	Close() error
}

// Converter converts pictures into a fixed pixel layout.
type Converter interface {
	// Convert writes the picture into dst, which is exactly one frame long.
	Convert(pic Picture, dst []byte) error

	// Close releases the converter.
	Close() error
}

// Backend opens demuxer sessions and creates decoders and converters that
// understand each other's packets and pictures.
type Backend interface {
	// Name returns the backend identifier.
	Name() string

	// OpenContainer opens the file at path.
	OpenContainer(path string) (Demuxer, error)

	// NewDecoder creates a software decoder for the stream.
	NewDecoder(stream StreamInfo) (Decoder, error)

	// NewConverter creates a converter to layout for the stream.
	NewConverter(stream StreamInfo, layout PixelLayout) (Converter, error)
}
