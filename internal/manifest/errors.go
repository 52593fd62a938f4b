package manifest

import "fmt"

// ParseError reports manifest text that is not well-formed.
type ParseError struct {
	Source string
	Line   int // 0 when the position is unknown
	Err    error
}

func (e *ParseError) Error() string {
	src := e.Source
	if src == "" {
		src = "manifest"
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", src, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", src, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a manifest file that does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("manifest not found: %s", e.Path)
}

// MissingFieldError reports a required field absent from a section.
type MissingFieldError struct {
	Source  string
	Section string
	Field   string
}

func (e *MissingFieldError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("section %q in %s manifest is missing the %s field", e.Section, e.Source, e.Field)
	}
	return fmt.Sprintf("section %q is missing the %s field", e.Section, e.Field)
}
