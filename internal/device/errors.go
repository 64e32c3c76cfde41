package device

import (
	"errors"
	"fmt"
)

var (
	ErrCapture  = errors.New("capturing photo")
	ErrLocation = errors.New("getting location")
	// ErrPermissionDenied also matches ErrLocation.
	ErrPermissionDenied = fmt.Errorf("%w: permission denied", ErrLocation)
)
