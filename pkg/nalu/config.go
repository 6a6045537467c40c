package nalu

import (
	"encoding/binary"
	"errors"
)

// ErrBadConfig is returned for a malformed decoder configuration record.
var ErrBadConfig = errors.New("nalu: malformed decoder configuration record")

// Config is the part of an avcC/hvcC record needed to decode samples.
type Config struct {
	LengthSize    int
	ParameterSets [][]byte
}

// ParseAVCC parses an AVCDecoderConfigurationRecord (the avcC box payload,
// also the H.264 extradata of MP4-style streams).
func ParseAVCC(b []byte) (Config, error) {
	if len(b) < 7 || b[0] != 1 {
		return Config{}, ErrBadConfig
	}
	cfg := Config{LengthSize: int(b[4]&0x03) + 1}
	pos := 5
	numSPS := int(b[pos] & 0x1f)
	pos++
	for i := 0; i < numSPS; i++ {
		u, next, err := readUnit(b, pos)
		if err != nil {
			return Config{}, err
		}
		cfg.ParameterSets = append(cfg.ParameterSets, u)
		pos = next
	}
	if pos >= len(b) {
		return Config{}, ErrBadConfig
	}
	numPPS := int(b[pos])
	pos++
	for i := 0; i < numPPS; i++ {
		u, next, err := readUnit(b, pos)
		if err != nil {
			return Config{}, err
		}
		cfg.ParameterSets = append(cfg.ParameterSets, u)
		pos = next
	}
	return cfg, nil
}

// ParseHVCC parses an HEVCDecoderConfigurationRecord. lengthSizeMinusOne is
// the low two bits of byte 21.
func ParseHVCC(b []byte) (Config, error) {
	if len(b) < 23 || b[0] != 1 {
		return Config{}, ErrBadConfig
	}
	cfg := Config{LengthSize: int(b[21]&0x03) + 1}
	numArrays := int(b[22])
	pos := 23
	for i := 0; i < numArrays; i++ {
		if pos+3 > len(b) {
			return Config{}, ErrBadConfig
		}
		numNalus := int(binary.BigEndian.Uint16(b[pos+1:]))
		pos += 3
		for j := 0; j < numNalus; j++ {
			u, next, err := readUnit(b, pos)
			if err != nil {
				return Config{}, err
			}
			cfg.ParameterSets = append(cfg.ParameterSets, u)
			pos = next
		}
	}
	return cfg, nil
}

// HEVCLengthSize returns the length prefix size from hvcC extradata, or 4
// when the record is too short to carry it.
func HEVCLengthSize(extradata []byte) int {
	if len(extradata) > 21 && extradata[0] == 1 {
		return int(extradata[21]&0x03) + 1
	}
	return 4
}

func readUnit(b []byte, pos int) ([]byte, int, error) {
	if pos+2 > len(b) {
		return nil, 0, ErrBadConfig
	}
	n := int(binary.BigEndian.Uint16(b[pos:]))
	pos += 2
	if pos+n > len(b) {
		return nil, 0, ErrBadConfig
	}
	return b[pos : pos+n], pos + n, nil
}

// AnnexB joins units with 4 byte start codes.
func AnnexB(units ...[]byte) []byte {
	size := 0
	for _, u := range units {
		size += 4 + len(u)
	}
	out := make([]byte, 0, size)
	for _, u := range units {
		out = append(out, 0, 0, 0, 1)
		out = append(out, u...)
	}
	return out
}

// ToAnnexB converts a length-prefixed sample to Annex B. Samples already
// framed with start codes are returned as is.
func ToAnnexB(sample []byte, lengthSize int) ([]byte, error) {
	if lengthSize == AnnexBStream {
		return sample, nil
	}
	units, err := Split(sample, lengthSize)
	if err != nil {
		return nil, err
	}
	return AnnexB(units...), nil
}
