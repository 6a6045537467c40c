package ffmpegdecoder

import (
	"github.com/user/gopseek/pkg/adapters/mp4demux"
	"github.com/user/gopseek/pkg/ports"
)

// BackendName identifies the MP4 + ffmpeg backend.
const BackendName = "mp4"

// Backend pairs the pure-Go MP4 demuxer with the ffmpeg subprocess decoder.
type Backend struct{}

// NewBackend creates the backend. It fails when ffmpeg cannot be found.
func NewBackend() (*Backend, error) {
	if _, err := FindFFmpeg(); err != nil {
		return nil, err
	}
	return &Backend{}, nil
}

// Name returns "mp4".
func (b *Backend) Name() string {
	return BackendName
}

// OpenContainer opens an MP4 file.
func (b *Backend) OpenContainer(path string) (ports.Demuxer, error) {
	d, err := mp4demux.Open(path)
	if err != nil {
		return nil, err
	}
	if info, err := d.VideoStream(); err == nil {
		switch info.Codec {
		case ports.CodecH264:
			d.SetDecoderName("ffmpeg/h264")
		case ports.CodecHEVC:
			d.SetDecoderName("ffmpeg/hevc")
		}
	}
	return d, nil
}

// NewDecoder creates an ffmpeg decoder for stream.
func (b *Backend) NewDecoder(stream ports.StreamInfo) (ports.Decoder, error) {
	return New(stream)
}

// NewConverter creates an rgb24 converter for stream.
func (b *Backend) NewConverter(stream ports.StreamInfo, layout ports.PixelLayout) (ports.Converter, error) {
	return NewConverter(stream, layout)
}

var _ ports.Backend = (*Backend)(nil)
