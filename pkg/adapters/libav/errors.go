// Package libav is a backend built on FFmpeg's libraries through go-astiav.
// It is compiled in with the libav build tag and needs cgo plus the
// FFmpeg development libraries.
package libav

import "errors"

// BackendName identifies the libav backend.
const BackendName = "libav"

var (
	// ErrUnavailable is returned when the binary was built without libav.
	ErrUnavailable = errors.New("libav: backend not compiled in (build with -tags libav)")

	// ErrNoDecoder is returned when libavcodec has no decoder for the stream.
	ErrNoDecoder = errors.New("libav: no decoder for codec")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("libav: closed")
)
