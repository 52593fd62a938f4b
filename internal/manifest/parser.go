package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
)

var (
	errKeyOutsideSection = errors.New("key/value line before any section header")
	errUnterminated      = errors.New("unterminated section header")
	errEmptySection      = errors.New("empty section name")
	errQuotedValue       = errors.New("values must not start with a backtick or triple quote")
)

// loadOptions mirror the dialect the device firmware writes: keys are
// case-insensitive, values are taken verbatim (no inline comments, no
// quote stripping, no backslash continuation).
var loadOptions = ini.LoadOptions{
	InsensitiveKeys:            true,
	IgnoreInlineComment:        true,
	IgnoreContinuation:         true,
	PreserveSurroundedQuote:    true,
	AllowShadows:               true,
	AllowDuplicateShadowValues: true,
	KeyValueDelimiters:         "=:",
}

// Parse parses manifest text.
func Parse(text string) (*Manifest, error) {
	return ParseBytes("", []byte(text))
}

// ParseBytes parses manifest data. source labels the manifest in errors.
func ParseBytes(source string, data []byte) (*Manifest, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	if err := checkStructure(source, data); err != nil {
		return nil, err
	}

	f, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}

	defaults := f.Section(ini.DefaultSection)

	m := newManifest(source)
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		s := newSection(source, sec.Name())
		// DEFAULT values are inherited by every section unless overridden.
		for _, k := range defaults.Keys() {
			s.set(k.Name(), k.Value())
		}
		for _, k := range sec.Keys() {
			if vals := k.ValueWithShadows(); len(vals) > 1 {
				return nil, &ParseError{
					Source: source,
					Err:    fmt.Errorf("duplicate key %q in section %q", k.Name(), sec.Name()),
				}
			}
			s.set(k.Name(), k.Value())
		}
		m.add(s)
	}

	return m, nil
}

// ParseFile reads and parses the manifest at path on the host filesystem.
func ParseFile(path string) (*Manifest, error) {
	return ParseFileFS(afero.NewOsFs(), path)
}

// ParseFileFS reads and parses the manifest at path in fsys.
func ParseFileFS(fsys afero.Fs, path string) (*Manifest, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return ParseBytes(path, data)
}

// checkStructure rejects layouts the key/value loader would silently accept:
// keys before the first header (they would land in DEFAULT), repeated
// section headers (they would be merged), repeated keys, and values the
// loader would unquote or continue onto the following lines.
func checkStructure(source string, data []byte) error {
	seen := make(map[string]bool)
	var keys map[string]bool
	inSection := false

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			end := strings.LastIndex(line, "]")
			if end < 0 {
				return &ParseError{Source: source, Line: lineNo, Err: errUnterminated}
			}
			name := strings.TrimSpace(line[1:end])
			if name == "" {
				return &ParseError{Source: source, Line: lineNo, Err: errEmptySection}
			}
			if seen[name] {
				return &ParseError{Source: source, Line: lineNo, Err: fmt.Errorf("duplicate section %q", name)}
			}
			seen[name] = true
			keys = make(map[string]bool)
			inSection = true
			continue
		}

		if !inSection {
			return &ParseError{Source: source, Line: lineNo, Err: errKeyOutsideSection}
		}
		i := strings.IndexAny(line, "=:")
		if i < 0 {
			return &ParseError{Source: source, Line: lineNo, Err: fmt.Errorf("malformed line %q (expected key = value)", line)}
		}

		key := strings.ToLower(strings.TrimSpace(line[:i]))
		if keys[key] {
			return &ParseError{Source: source, Line: lineNo, Err: fmt.Errorf("duplicate key %q", key)}
		}
		keys[key] = true

		value := strings.TrimSpace(line[i+1:])
		if strings.HasPrefix(value, "`") || strings.HasPrefix(value, `"""`) {
			return &ParseError{Source: source, Line: lineNo, Err: errQuotedValue}
		}
	}
	if err := scanner.Err(); err != nil {
		return &ParseError{Source: source, Err: err}
	}
	return nil
}
