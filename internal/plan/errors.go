package plan

import (
	"errors"
	"fmt"
)

var errNegativeSize = errors.New("size must not be negative")

// UnknownSectionError reports a remote component the device has no record of.
type UnknownSectionError struct {
	Section string
}

func (e *UnknownSectionError) Error() string {
	return fmt.Sprintf("found unknown section %q that is not already present on device", e.Section)
}

// FormatError reports a field whose value has the wrong shape.
type FormatError struct {
	Section string
	Field   string
	Value   string
	Err     error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("section %q: invalid %s %q: %v", e.Section, e.Field, e.Value, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
