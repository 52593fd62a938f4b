// Package manifest parses the INI-style component manifests kept on the
// device (System/device.txt) and published next to the firmware payloads
// (release.ini).
package manifest

import (
	"fmt"
	"sort"
	"strings"
)

// Well-known section and field names.
const (
	FieldSize    = "Size"
	FieldVersion = "Version"
	FieldName    = "Name"

	// SectionModel holds the device SKU in the local manifest.
	SectionModel = "MODEL"
	FieldModel   = "model"
)

// Manifest is a read-only snapshot of a parsed manifest.
// Sections keep the order in which they were declared.
type Manifest struct {
	source   string
	order    []string
	sections map[string]*Section
}

// Section is a named group of fields describing one component.
// Field names are case-insensitive.
type Section struct {
	name   string
	source string
	keys   []string
	fields map[string]string
}

func newManifest(source string) *Manifest {
	return &Manifest{
		source:   source,
		sections: make(map[string]*Section),
	}
}

func (m *Manifest) add(s *Section) {
	m.order = append(m.order, s.name)
	m.sections[s.name] = s
}

// Source returns the label the manifest was parsed from (a path, "local" or "remote").
func (m *Manifest) Source() string {
	return m.source
}

// Sections returns the sections in declared order.
func (m *Manifest) Sections() []*Section {
	out := make([]*Section, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.sections[name])
	}
	return out
}

// Section looks up a section by its exact name.
func (m *Manifest) Section(name string) (*Section, bool) {
	s, ok := m.sections[name]
	return s, ok
}

// Has reports whether a section with the given name exists.
func (m *Manifest) Has(name string) bool {
	_, ok := m.sections[name]
	return ok
}

// Len returns the number of sections.
func (m *Manifest) Len() int {
	return len(m.order)
}

// Model returns the device SKU recorded in the MODEL section.
func (m *Manifest) Model() (string, error) {
	s, ok := m.Section(SectionModel)
	if !ok {
		return "", &MissingFieldError{Source: m.source, Section: SectionModel, Field: FieldModel}
	}
	model, err := s.Require(FieldModel)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(model) == "" {
		return "", &MissingFieldError{Source: m.source, Section: SectionModel, Field: FieldModel}
	}
	return model, nil
}

func newSection(source, name string) *Section {
	return &Section{
		name:   name,
		source: source,
		fields: make(map[string]string),
	}
}

func (s *Section) set(key, value string) {
	key = strings.ToLower(key)
	if _, exists := s.fields[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.fields[key] = value
}

// Name returns the section name.
func (s *Section) Name() string {
	return s.name
}

// Get returns the value of a field and whether it is present.
func (s *Section) Get(field string) (string, bool) {
	v, ok := s.fields[strings.ToLower(field)]
	return v, ok
}

// Has reports whether the field is present.
func (s *Section) Has(field string) bool {
	_, ok := s.Get(field)
	return ok
}

// Require returns the value of a field or a *MissingFieldError.
func (s *Section) Require(field string) (string, error) {
	v, ok := s.Get(field)
	if !ok {
		return "", &MissingFieldError{Source: s.source, Section: s.name, Field: field}
	}
	return v, nil
}

// Keys returns the (lower-cased) field names in declared order.
func (s *Section) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// String renders the section back into INI form with sorted keys.
func (s *Section) String() string {
	keys := s.Keys()
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", s.name)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s = %s\n", k, s.fields[k])
	}
	return b.String()
}
