package device

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/adamancini/firmup/internal/manifest"
)

const deviceTxt = "[MODEL]\nmodel = Rider15neo\n\n[Firmware]\nVersion = 1.0\nSize = 100\n"

func newMemDevice(t *testing.T) (*Device, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "System/device.txt", []byte(deviceTxt), 0644); err != nil {
		t.Fatalf("failed to seed device: %v", err)
	}
	return New(fs, "/media/RIDER"), fs
}

func TestManifest(t *testing.T) {
	d, _ := newMemDevice(t)

	m, err := d.Manifest()
	if err != nil {
		t.Fatalf("Manifest() error = %v", err)
	}
	model, err := m.Model()
	if err != nil || model != "Rider15neo" {
		t.Errorf("Model() = %q, %v", model, err)
	}
}

func TestManifestNotFound(t *testing.T) {
	d := New(afero.NewMemMapFs(), "/media/RIDER")

	_, err := d.Manifest()
	var nf *manifest.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
	want := filepath.Join("/media/RIDER", "System", "device.txt")
	if nf.Path != want {
		t.Errorf("Path = %s, want %s", nf.Path, want)
	}
}

func TestManifestCustomInfoFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "info.txt", []byte(deviceTxt), 0644)

	d := New(fs, "/dev", WithInfoFile("info.txt"))
	if _, err := d.Manifest(); err != nil {
		t.Fatalf("Manifest() error = %v", err)
	}
	if d.InfoFile() != "info.txt" {
		t.Errorf("InfoFile() = %s", d.InfoFile())
	}
}

func TestPersistOverwrites(t *testing.T) {
	d, fs := newMemDevice(t)

	if err := afero.WriteFile(fs, "System/fw.bin", []byte("old firmware that is longer"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := d.Persist("System/fw.bin", []byte("new")); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	got, err := afero.ReadFile(fs, "System/fw.bin")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Errorf("content = %q, want full overwrite with %q", got, "new")
	}
}

func TestPersistCreatesParents(t *testing.T) {
	d, fs := newMemDevice(t)

	if err := d.Persist("Map/EU/maps.dat", []byte("x")); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if ok, _ := afero.Exists(fs, "Map/EU/maps.dat"); !ok {
		t.Error("file was not created")
	}
}

func TestPersistBackslashName(t *testing.T) {
	d, fs := newMemDevice(t)

	if err := d.Persist(`System\gps.bin`, []byte("x")); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if ok, _ := afero.Exists(fs, filepath.Join("System", "gps.bin")); !ok {
		t.Error("backslash name should map to a nested file")
	}
}

func TestPersistRejectsUnsafePaths(t *testing.T) {
	d, _ := newMemDevice(t)

	for _, name := range []string{"", ".", "../escape.bin", "System/../../escape.bin", "/etc/passwd"} {
		if err := d.Persist(name, []byte("x")); err == nil {
			t.Errorf("Persist(%q) should fail", name)
		}
	}
}

func TestPersistReadOnlyFs(t *testing.T) {
	base, _ := newMemDevice(t)
	d := New(afero.NewReadOnlyFs(base.fs), "/media/RIDER")

	if err := d.Persist("update.ini", []byte("x")); err == nil {
		t.Error("expected error writing to read-only device")
	}
}

func TestReadFileAndExists(t *testing.T) {
	d, _ := newMemDevice(t)

	ok, err := d.Exists("System/device.txt")
	if err != nil || !ok {
		t.Errorf("Exists() = %v, %v", ok, err)
	}
	ok, _ = d.Exists("System/none.bin")
	if ok {
		t.Error("Exists() should be false for missing file")
	}

	data, err := d.ReadFile("System/device.txt")
	if err != nil || string(data) != deviceTxt {
		t.Errorf("ReadFile() = %q, %v", data, err)
	}
}

func TestOpen(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "System"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "System", "device.txt"), []byte(deviceTxt), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := Open(root)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := d.Manifest(); err != nil {
		t.Fatalf("Manifest() error = %v", err)
	}

	if err := d.Persist("update.ini", []byte("[A]\n")); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "update.ini")); err != nil {
		t.Errorf("file not written under root: %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing device path")
	}

	file := filepath.Join(t.TempDir(), "file")
	_ = os.WriteFile(file, nil, 0644)
	if _, err := Open(file); err == nil {
		t.Error("expected error for non-directory device path")
	}
}

func TestValidateRelPath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"update.ini", false},
		{"System/fw.bin", false},
		{"./System/fw.bin", false},
		{"..hidden", false},
		{"", true},
		{".", true},
		{"..", true},
		{"../x", true},
		{"a/../../x", true},
		{"/abs", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := ValidateRelPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRelPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}
