// Package smartbackend selects the backend for a file: libav when it is
// compiled in, otherwise the MP4 demuxer with the ffmpeg decoder.
package smartbackend

import (
	"errors"
	"fmt"

	"github.com/user/gopseek/pkg/adapters/codecdetect"
	"github.com/user/gopseek/pkg/adapters/ffmpegdecoder"
	"github.com/user/gopseek/pkg/adapters/libav"
	"github.com/user/gopseek/pkg/adapters/logger"
	"github.com/user/gopseek/pkg/ports"
)

// Kind names a backend choice.
type Kind string

const (
	// KindAuto picks libav when available, else mp4.
	KindAuto Kind = "auto"
	// KindMP4 is the pure-Go MP4 demuxer with the ffmpeg subprocess decoder.
	KindMP4 Kind = ffmpegdecoder.BackendName
	// KindLibav is go-astiav end to end.
	KindLibav Kind = libav.BackendName
)

var (
	// ErrUnknownBackend is returned for an unrecognized backend name.
	ErrUnknownBackend = errors.New("smartbackend: unknown backend")

	// ErrUnsupportedCodec is returned when no available backend handles the codec.
	ErrUnsupportedCodec = errors.New("smartbackend: unsupported codec")

	// ErrNoBackendAvailable is returned when neither libav nor ffmpeg is usable.
	ErrNoBackendAvailable = errors.New("smartbackend: no backend available")
)

// Options configures backend selection.
type Options struct {
	// Kind is the requested backend. Empty means auto.
	Kind Kind
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string
	// Logger is passed to backends that log.
	Logger ports.Logger
}

// Info describes the selection.
type Info struct {
	// Codec is the detected codec, or unknown when detection was skipped.
	Codec ports.Codec
	// Kind is the backend that was chosen.
	Kind Kind
}

// ParseKind parses a backend name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindAuto:
		return KindAuto, nil
	case KindMP4, KindLibav:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

// ForFile returns a backend able to open path.
//
// The selection flow:
//   - libav: used for every container and codec when compiled in
//   - mp4: H.264 and HEVC in MP4, needs an ffmpeg binary
func ForFile(path string, opts Options) (ports.Backend, Info, error) {
	if opts.FFmpegPath != "" {
		ffmpegdecoder.SetFFmpegPath(opts.FFmpegPath)
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNoop()
	}
	log = log.WithComponent("backend")

	kind := opts.Kind
	if kind == "" {
		kind = KindAuto
	}

	switch kind {
	case KindLibav:
		b, err := libav.NewBackend(log)
		if err != nil {
			return nil, Info{}, err
		}
		return b, Info{Codec: ports.CodecUnknown, Kind: KindLibav}, nil

	case KindMP4:
		codec, err := codecdetect.DetectFromFile(path)
		if err != nil {
			return nil, Info{}, err
		}
		b, err := mp4Backend(codec)
		if err != nil {
			return nil, Info{Codec: codec}, err
		}
		return b, Info{Codec: codec, Kind: KindMP4}, nil

	case KindAuto:
		if libav.Available() {
			b, err := libav.NewBackend(log)
			if err == nil {
				log.Debug("Selected backend %s for %s", KindLibav, path)
				return b, Info{Codec: ports.CodecUnknown, Kind: KindLibav}, nil
			}
			log.Warn("libav backend failed, trying mp4: %v", err)
		}
		codec, err := codecdetect.DetectFromFile(path)
		if err != nil {
			return nil, Info{}, fmt.Errorf("%w: %v", ErrNoBackendAvailable, err)
		}
		b, err := mp4Backend(codec)
		if err != nil {
			return nil, Info{Codec: codec}, err
		}
		log.Debug("Selected backend %s for %s (%s)", KindMP4, path, codec)
		return b, Info{Codec: codec, Kind: KindMP4}, nil

	default:
		return nil, Info{}, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}

func mp4Backend(codec ports.Codec) (ports.Backend, error) {
	switch codec {
	case ports.CodecH264, ports.CodecHEVC:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
	}
	b, err := ffmpegdecoder.NewBackend()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoBackendAvailable, err)
	}
	return b, nil
}

// Available lists the backends usable in this build and environment.
func Available() []Kind {
	var kinds []Kind
	if libav.Available() {
		kinds = append(kinds, KindLibav)
	}
	if ffmpegdecoder.IsAvailable() {
		kinds = append(kinds, KindMP4)
	}
	return kinds
}
