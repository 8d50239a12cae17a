//go:build !linux || !(amd64 || arm64)

package propmem

import "errors"

// ErrUnsupported is returned on platforms without the shared-memory and
// wait-on-address primitives this package depends on.
var ErrUnsupported = errors.New("property areas not supported on this platform")

func init() {
	unmapMemory = func([]byte) error { return nil }
}

// CreateArea is not supported on this platform.
func CreateArea(path string, capacity uint64) (*Writable, error) {
	return nil, ErrUnsupported
}

// OpenWritableArea is not supported on this platform.
func OpenWritableArea(path string) (*Writable, error) {
	return nil, ErrUnsupported
}

// OpenArea is not supported on this platform.
func OpenArea(path string) (*Area, error) {
	return nil, ErrUnsupported
}
