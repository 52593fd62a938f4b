// Package device gives access to a mounted GPS device: its component
// manifest and the files updates are written to.
//
// All device reads and writes go through an afero filesystem rooted at the
// mount point, so nothing can be written outside the device.
package device

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/adamancini/firmup/internal/manifest"
)

// DefaultInfoFile is where the device records its installed components.
const DefaultInfoFile = "System/device.txt"

// Device is a mounted device.
type Device struct {
	root     string
	fs       afero.Fs
	infoFile string
}

// Option configures a Device.
type Option func(*Device)

// WithInfoFile overrides the manifest location relative to the device root.
func WithInfoFile(path string) Option {
	return func(d *Device) {
		if path != "" {
			d.infoFile = path
		}
	}
}

// Open checks that root is a directory and returns the device mounted there.
func Open(root string, opts ...Option) (*Device, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("unable to open device %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("unable to open device %q: not a directory", root)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), root), root, opts...), nil
}

// New returns a device backed by fsys, whose root corresponds to root.
// root is only used for display.
func New(fsys afero.Fs, root string, opts ...Option) *Device {
	d := &Device{
		root:     root,
		fs:       fsys,
		infoFile: DefaultInfoFile,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Root returns the mount point.
func (d *Device) Root() string {
	return d.root
}

// InfoFile returns the manifest path relative to the root.
func (d *Device) InfoFile() string {
	return d.infoFile
}

// Path returns the host path of a device-relative name.
func (d *Device) Path(name string) string {
	return filepath.Join(d.root, filepath.FromSlash(normalize(name)))
}

// Manifest reads the installed component manifest.
func (d *Device) Manifest() (*manifest.Manifest, error) {
	m, err := manifest.ParseFileFS(d.fs, filepath.FromSlash(d.infoFile))
	if err != nil {
		var nf *manifest.NotFoundError
		if errors.As(err, &nf) {
			return nil, &manifest.NotFoundError{Path: d.Path(d.infoFile)}
		}
		return nil, err
	}
	return m, nil
}

// ReadFile reads a device-relative file.
func (d *Device) ReadFile(name string) ([]byte, error) {
	if err := ValidateRelPath(name); err != nil {
		return nil, err
	}
	return afero.ReadFile(d.fs, filepath.FromSlash(normalize(name)))
}

// Exists reports whether a device-relative file exists.
func (d *Device) Exists(name string) (bool, error) {
	if err := ValidateRelPath(name); err != nil {
		return false, err
	}
	return afero.Exists(d.fs, filepath.FromSlash(normalize(name)))
}

// Persist replaces the file at name with data. Missing parent directories
// are created. The file is truncated and rewritten in full, then its size is
// checked against len(data).
func (d *Device) Persist(name string, data []byte) error {
	if err := ValidateRelPath(name); err != nil {
		return err
	}
	p := filepath.FromSlash(normalize(name))

	if dir := filepath.Dir(p); dir != "." {
		if err := d.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d.Path(filepath.ToSlash(dir)), err)
		}
	}

	if err := afero.WriteFile(d.fs, p, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", d.Path(name), err)
	}

	info, err := d.fs.Stat(p)
	if err != nil {
		return fmt.Errorf("failed to verify %s: %w", d.Path(name), err)
	}
	if info.Size() != int64(len(data)) {
		return fmt.Errorf("short write to %s: %d of %d bytes on disk", d.Path(name), info.Size(), len(data))
	}
	return nil
}

// ValidateRelPath rejects names that are empty, absolute, or escape the device root.
func ValidateRelPath(relPath string) error {
	cleaned := filepath.Clean(filepath.FromSlash(normalize(relPath)))

	if cleaned == "" || cleaned == "." {
		return fmt.Errorf("invalid path: empty or current directory")
	}

	if filepath.IsAbs(cleaned) || strings.HasPrefix(filepath.ToSlash(cleaned), "/") {
		return fmt.Errorf("invalid path: must be relative, got absolute path %q", relPath)
	}

	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("invalid path: path traversal not allowed in %q", relPath)
	}

	return nil
}

// normalize turns the backslash separators some manifests use into slashes.
func normalize(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}
