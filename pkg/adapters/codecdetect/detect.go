// Package codecdetect detects the video codec of an MP4 file from its
// sample descriptions without reading any samples.
package codecdetect

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/gopseek/pkg/ports"
)

var (
	// ErrNotMP4 is returned when the input does not parse as MP4.
	ErrNotMP4 = errors.New("codecdetect: not an mp4 file")

	// ErrNoVideoTrack is returned when the file has no video track.
	ErrNoVideoTrack = errors.New("codecdetect: no video track found")
)

// DetectFromFile detects the video codec used in an MP4 file.
func DetectFromFile(path string) (ports.Codec, error) {
	f, err := os.Open(path)
	if err != nil {
		return ports.CodecUnknown, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return DetectFromReader(f)
}

// DetectFromReader detects the video codec from an io.ReadSeeker and
// rewinds it afterwards.
func DetectFromReader(reader io.ReadSeeker) (ports.Codec, error) {
	mp4File, err := mp4.DecodeFile(reader)
	if err != nil {
		return ports.CodecUnknown, fmt.Errorf("%w: %v", ErrNotMP4, err)
	}

	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return ports.CodecUnknown, fmt.Errorf("seek: %w", err)
	}

	return detectFromMP4File(mp4File)
}

// DetectFromBytes detects the video codec from MP4 data bytes.
func DetectFromBytes(data []byte) (ports.Codec, error) {
	return DetectFromReader(bytes.NewReader(data))
}

func detectFromMP4File(mp4File *mp4.File) (ports.Codec, error) {
	var traks []*mp4.TrakBox
	if mp4File.IsFragmented() && mp4File.Init != nil && mp4File.Init.Moov != nil {
		traks = mp4File.Init.Moov.Traks
	} else if mp4File.Moov != nil {
		traks = mp4File.Moov.Traks
	}

	for _, trak := range traks {
		if codec, ok := detectCodecFromTrack(trak); ok {
			return codec, nil
		}
	}
	return ports.CodecUnknown, ErrNoVideoTrack
}

// detectCodecFromTrack reports the codec of a video track; ok is false for
// other tracks.
func detectCodecFromTrack(trak *mp4.TrakBox) (ports.Codec, bool) {
	if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
		return ports.CodecUnknown, false
	}
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return ports.CodecUnknown, true
	}

	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		switch child.Type() {
		case "avc1", "avc3":
			return ports.CodecH264, true
		case "hvc1", "hev1":
			return ports.CodecHEVC, true
		case "av01":
			return ports.CodecAV1, true
		}
	}
	return ports.CodecUnknown, true
}
