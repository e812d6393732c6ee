package vm

import (
	"errors"
	"fmt"
)

// ErrPageNotMapped is returned when a translation or permission query hits an
// address with no current mapping.
var ErrPageNotMapped = errors.New("page not mapped")

// ErrPagePermissionViolation is returned when a mapping exists but does not
// grant the requested access type.
var ErrPagePermissionViolation = errors.New("page permission violation")

// A PageError reports a failed page operation together with the faulting
// address and the attempted access.
type PageError struct {
	Addr   uint64
	Access AccessType
	Err    error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("%s access at 0x%x: %v", e.Access, e.Addr, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}
