// Package nalu splits length-prefixed H.264/HEVC samples into NAL units and
// classifies the units that make a stream non-seekable (open GOP).
package nalu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/hevc"
	"github.com/user/gopseek/pkg/ports"
)

var (
	// ErrTruncated is returned when a length prefix points past the sample.
	ErrTruncated = errors.New("nalu: truncated sample")

	// ErrLengthSize is returned for a length prefix size other than 1, 2 or 4.
	ErrLengthSize = errors.New("nalu: unsupported length size")
)

// HEVC NAL unit types that signal leading pictures referencing the previous GOP.
const (
	HEVCRaslN    uint8 = 8
	HEVCRaslR    uint8 = 9
	HEVCBlaWLP   uint8 = 16
	HEVCBlaWRadl uint8 = 17
	HEVCBlaNLP   uint8 = 18
	HEVCCra      uint8 = 21
)

// H.264 NAL unit and SEI payload types used by the classifier.
const (
	H264SEI uint8 = 6

	seiRecoveryPoint = 6
)

// AnnexBStream is the length size reported for samples framed with start
// codes instead of length prefixes.
const AnnexBStream = 0

// Split splits an AVCC/HVCC sample into NAL unit payloads without copying.
// lengthSize is the size of each big-endian length prefix in bytes.
func Split(sample []byte, lengthSize int) ([][]byte, error) {
	if lengthSize != 1 && lengthSize != 2 && lengthSize != 4 {
		return nil, fmt.Errorf("%w: %d", ErrLengthSize, lengthSize)
	}
	var units [][]byte
	for offset := 0; offset < len(sample); {
		if offset+lengthSize > len(sample) {
			return nil, ErrTruncated
		}
		var n int
		switch lengthSize {
		case 1:
			n = int(sample[offset])
		case 2:
			n = int(binary.BigEndian.Uint16(sample[offset:]))
		case 4:
			n = int(binary.BigEndian.Uint32(sample[offset:]))
		}
		offset += lengthSize
		if n < 0 || offset+n > len(sample) {
			return nil, ErrTruncated
		}
		if n > 0 {
			units = append(units, sample[offset:offset+n])
		}
		offset += n
	}
	return units, nil
}

// Type returns the NAL unit type of a unit for the codec.
func Type(codec ports.Codec, unit []byte) (uint8, bool) {
	if len(unit) == 0 {
		return 0, false
	}
	switch codec {
	case ports.CodecH264:
		return uint8(avc.GetNaluType(unit[0])), true
	case ports.CodecHEVC:
		return uint8(hevc.GetNaluType(unit[0])), true
	default:
		return 0, false
	}
}

// Units splits a sample and tags each unit with its type. A lengthSize of
// AnnexBStream means the sample uses start codes.
// Codecs without NAL units yield nil.
func Units(codec ports.Codec, sample []byte, lengthSize int) ([]ports.Unit, error) {
	if codec != ports.CodecH264 && codec != ports.CodecHEVC {
		return nil, nil
	}
	var raw [][]byte
	if lengthSize == AnnexBStream {
		raw = avc.ExtractNalusFromByteStream(sample)
	} else {
		var err error
		if raw, err = Split(sample, lengthSize); err != nil {
			return nil, err
		}
	}
	units := make([]ports.Unit, 0, len(raw))
	for _, u := range raw {
		t, _ := Type(codec, u)
		units = append(units, ports.Unit{Type: t, Payload: u})
	}
	return units, nil
}

// OpenGOPUnit returns the first unit in units that marks an open GOP.
func OpenGOPUnit(codec ports.Codec, units []ports.Unit) (ports.Unit, bool) {
	for _, u := range units {
		if IsOpenGOP(codec, u) {
			return u, true
		}
	}
	return ports.Unit{}, false
}

// IsOpenGOP reports whether a single unit marks an open GOP.
func IsOpenGOP(codec ports.Codec, u ports.Unit) bool {
	switch codec {
	case ports.CodecHEVC:
		switch u.Type {
		case HEVCCra, HEVCBlaWLP, HEVCBlaWRadl, HEVCBlaNLP, HEVCRaslN, HEVCRaslR:
			return true
		}
	case ports.CodecH264:
		if u.Type == H264SEI {
			return hasRecoveryPoint(u.Payload)
		}
	}
	return false
}

// hasRecoveryPoint walks the SEI messages of an H.264 SEI NAL unit.
func hasRecoveryPoint(unit []byte) bool {
	if len(unit) < 2 {
		return false
	}
	rbsp := unescape(unit[1:])
	pos := 0
	for pos < len(rbsp) {
		if rbsp[pos] == 0x80 && pos == len(rbsp)-1 {
			return false
		}
		payloadType := 0
		for pos < len(rbsp) && rbsp[pos] == 0xff {
			payloadType += 255
			pos++
		}
		if pos >= len(rbsp) {
			return false
		}
		payloadType += int(rbsp[pos])
		pos++

		payloadSize := 0
		for pos < len(rbsp) && rbsp[pos] == 0xff {
			payloadSize += 255
			pos++
		}
		if pos >= len(rbsp) {
			return false
		}
		payloadSize += int(rbsp[pos])
		pos++

		if payloadType == seiRecoveryPoint {
			return true
		}
		pos += payloadSize
	}
	return false
}

// unescape removes emulation prevention bytes (00 00 03).
func unescape(b []byte) []byte {
	out := make([]byte, 0, len(b))
	zeros := 0
	for _, c := range b {
		if zeros >= 2 && c == 0x03 {
			zeros = 0
			continue
		}
		out = append(out, c)
		if c == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

// Describe names a unit for error messages.
func Describe(codec ports.Codec, u ports.Unit) string {
	name := TypeName(codec, u.Type)
	if codec == ports.CodecH264 && u.Type == H264SEI && hasRecoveryPoint(u.Payload) {
		return name + " with recovery point"
	}
	return name
}

// TypeName returns a readable name for a unit type.
func TypeName(codec ports.Codec, t uint8) string {
	switch codec {
	case ports.CodecHEVC:
		if name, ok := hevcNames[t]; ok {
			return name
		}
	case ports.CodecH264:
		if name, ok := h264Names[t]; ok {
			return name
		}
	}
	return fmt.Sprintf("type %d", t)
}

var hevcNames = map[uint8]string{
	0:            "TRAIL_N",
	1:            "TRAIL_R",
	HEVCRaslN:    "RASL_N",
	HEVCRaslR:    "RASL_R",
	HEVCBlaWLP:   "BLA_W_LP",
	HEVCBlaWRadl: "BLA_W_RADL",
	HEVCBlaNLP:   "BLA_N_LP",
	19:           "IDR_W_RADL",
	20:           "IDR_N_LP",
	HEVCCra:      "CRA_NUT",
	32:           "VPS",
	33:           "SPS",
	34:           "PPS",
	35:           "AUD",
	39:           "SEI_PREFIX",
}

var h264Names = map[uint8]string{
	1:       "non-IDR slice",
	5:       "IDR slice",
	H264SEI: "SEI",
	7:       "SPS",
	8:       "PPS",
	9:       "AUD",
}
