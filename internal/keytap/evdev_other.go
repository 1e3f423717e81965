//go:build !linux

package keytap

import "context"

// Evdev is only available on Linux.
type Evdev struct {
	Devices []string
}

// FindKeyboards returns ErrNotAvailable on this platform.
func FindKeyboards() ([]string, error) {
	return nil, ErrNotAvailable
}

// Run returns ErrNotAvailable on this platform.
func (e *Evdev) Run(ctx context.Context, h Handler) error {
	return ErrNotAvailable
}
