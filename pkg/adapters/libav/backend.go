//go:build libav

package libav

import (
	"github.com/user/gopseek/pkg/adapters/logger"
	"github.com/user/gopseek/pkg/ports"
)

// Available reports whether the libav backend is compiled in.
func Available() bool {
	return true
}

// Backend opens files with libavformat, decodes with a libavcodec software
// decoder and converts with libswscale.
type Backend struct {
	log ports.Logger
}

// NewBackend creates the backend.
func NewBackend(log ports.Logger) (ports.Backend, error) {
	if log == nil {
		log = logger.NewNoop()
	}
	return &Backend{log: log.WithComponent("libav")}, nil
}

// Name returns "libav".
func (b *Backend) Name() string {
	return BackendName
}

// OpenContainer opens path with libavformat.
func (b *Backend) OpenContainer(path string) (ports.Demuxer, error) {
	return openDemuxer(path, b.log)
}

// NewDecoder creates a software decoder for stream.
func (b *Backend) NewDecoder(stream ports.StreamInfo) (ports.Decoder, error) {
	return newDecoder(stream)
}

// NewConverter creates a libswscale converter for stream.
func (b *Backend) NewConverter(stream ports.StreamInfo, layout ports.PixelLayout) (ports.Converter, error) {
	return newConverter(stream, layout)
}
