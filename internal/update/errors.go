package update

import (
	"fmt"
	"strings"
)

// SizeMismatchError reports a payload whose length differs from the manifest.
type SizeMismatchError struct {
	File     string
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("retrieved non matching size for %s: got %d bytes, expected %d", e.File, e.Actual, e.Expected)
}

// IOError reports a failure writing a payload to the device.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("error writing %s to device: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// UnsupportedDeviceError reports a model outside the allow-list.
type UnsupportedDeviceError struct {
	Model     string
	Supported []string
}

func (e *UnsupportedDeviceError) Error() string {
	return fmt.Sprintf("device model %q is not supported by this tool (supported: %s); use --force to continue anyway",
		e.Model, strings.Join(e.Supported, ", "))
}
