//go:build !libav

package libav

import "github.com/user/gopseek/pkg/ports"

// Available reports whether the libav backend is compiled in.
func Available() bool {
	return false
}

// NewBackend fails without the libav build tag.
func NewBackend(log ports.Logger) (ports.Backend, error) {
	return nil, ErrUnavailable
}
