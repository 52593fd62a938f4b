package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/adamancini/firmup/internal/device"
)

// newTestManager returns a manager on an in-memory filesystem whose clock
// advances one second per backup.
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManagerFS(afero.NewMemMapFs(), "/cache/firmup/backups", "v1.0.0")
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return m
}

func newTestDevice(t *testing.T, files map[string]string) (*device.Device, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		if err := afero.WriteFile(fs, name, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return device.New(fs, "/media/RIDER"), fs
}

func TestManager_Create(t *testing.T) {
	manager := newTestManager(t)

	s, err := manager.Create("/media/RIDER", "Rider15neo", "before update")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	b := s.Backup()
	if b.ID != "2026-03-01-120001" {
		t.Errorf("Create() ID = %v", b.ID)
	}
	if b.FirmupVersion != "v1.0.0" || b.Model != "Rider15neo" || b.Note != "before update" {
		t.Errorf("Create() backup = %+v", b)
	}

	// Verify index was written
	got, err := manager.Get(b.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Device != "/media/RIDER" || len(got.Files) != 0 {
		t.Errorf("Get() = %+v", got)
	}
}

func TestManager_CreateSameSecond(t *testing.T) {
	manager := newTestManager(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return fixed }

	first, err := manager.Create("/d", "m", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := manager.Create("/d", "m", "")
	if err != nil {
		t.Fatal(err)
	}
	if first.Backup().ID == second.Backup().ID {
		t.Errorf("IDs collide: %s", first.Backup().ID)
	}
	if second.Backup().ID != "2026-03-01-120000-2" {
		t.Errorf("second ID = %s", second.Backup().ID)
	}
}

func TestSession_Capture(t *testing.T) {
	manager := newTestManager(t)
	dev, _ := newTestDevice(t, map[string]string{"System/fw.bin": "old firmware"})

	s, err := manager.Create(dev.Root(), "Rider15neo", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Capture(dev, "System/fw.bin"); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if err := s.Capture(dev, "update.ini"); err != nil {
		t.Fatalf("Capture() missing file error = %v", err)
	}
	// A second capture of the same file is ignored.
	if err := s.Capture(dev, `System\fw.bin`); err != nil {
		t.Fatal(err)
	}

	b, err := manager.Get(s.Backup().ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Files) != 2 {
		t.Fatalf("Files = %+v, want 2 entries", b.Files)
	}
	if f := b.Files[0]; f.Path != "System/fw.bin" || !f.Existed || f.Size != int64(len("old firmware")) {
		t.Errorf("Files[0] = %+v", f)
	}
	if f := b.Files[1]; f.Path != "update.ini" || f.Existed {
		t.Errorf("Files[1] = %+v", f)
	}

	data, err := manager.ReadFile(b.ID, "System/fw.bin")
	if err != nil || string(data) != "old firmware" {
		t.Errorf("ReadFile() = %q, %v", data, err)
	}
}

func TestGuard_PersistBacksUpFirst(t *testing.T) {
	manager := newTestManager(t)
	dev, fs := newTestDevice(t, map[string]string{"System/fw.bin": "v1"})

	s, err := manager.Create(dev.Root(), "Rider15neo", "")
	if err != nil {
		t.Fatal(err)
	}
	guard := s.Guard(dev)

	if err := guard.Persist("System/fw.bin", []byte("v2")); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if err := guard.Persist("System/fw.bin", []byte("v3")); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	onDevice, _ := afero.ReadFile(fs, "System/fw.bin")
	if string(onDevice) != "v3" {
		t.Errorf("device content = %q, want v3", onDevice)
	}
	saved, _ := manager.ReadFile(s.Backup().ID, "System/fw.bin")
	if string(saved) != "v1" {
		t.Errorf("backup content = %q, want the original v1", saved)
	}
}

func TestGuard_NoWriteWhenBackupFails(t *testing.T) {
	manager := NewManagerFS(afero.NewMemMapFs(), "/cache", "v1.0.0")
	dev, fs := newTestDevice(t, map[string]string{"System/fw.bin": "v1"})

	s, err := manager.Create(dev.Root(), "m", "")
	if err != nil {
		t.Fatal(err)
	}
	manager.fs = afero.NewReadOnlyFs(manager.fs)

	if err := s.Guard(dev).Persist("System/fw.bin", []byte("v2")); err == nil {
		t.Fatal("expected error when the backup cannot be written")
	}
	onDevice, _ := afero.ReadFile(fs, "System/fw.bin")
	if string(onDevice) != "v1" {
		t.Errorf("device content = %q, want untouched v1", onDevice)
	}
}

func TestManager_Restore(t *testing.T) {
	manager := newTestManager(t)
	dev, fs := newTestDevice(t, map[string]string{
		"System/fw.bin": "v1",
		"update.ini":    "[Firmware]\nVersion = 1\n",
	})

	s, err := manager.Create(dev.Root(), "Rider15neo", "")
	if err != nil {
		t.Fatal(err)
	}
	guard := s.Guard(dev)
	for name, content := range map[string]string{
		"System/fw.bin":  "v2",
		"System/new.bin": "added",
		"update.ini":     "[Firmware]\nVersion = 2\n",
	} {
		if err := guard.Persist(name, []byte(content)); err != nil {
			t.Fatal(err)
		}
	}

	result, err := manager.Restore("latest", dev)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(result.Restored) != 2 || len(result.Skipped) != 1 || result.Skipped[0] != "System/new.bin" {
		t.Errorf("Restore() = %+v", result)
	}

	fw, _ := afero.ReadFile(fs, "System/fw.bin")
	ini, _ := afero.ReadFile(fs, "update.ini")
	if string(fw) != "v1" || string(ini) != "[Firmware]\nVersion = 1\n" {
		t.Errorf("restored content = %q, %q", fw, ini)
	}
}

func TestManager_RestoreDamaged(t *testing.T) {
	manager := newTestManager(t)
	dev, _ := newTestDevice(t, map[string]string{"System/fw.bin": "v1"})

	s, _ := manager.Create(dev.Root(), "m", "")
	if err := s.Capture(dev, "System/fw.bin"); err != nil {
		t.Fatal(err)
	}
	_ = afero.WriteFile(manager.fs, manager.filePath(s.Backup().ID, "System/fw.bin"), []byte("truncated!"), 0644)

	if _, err := manager.Restore(s.Backup().ID, dev); err == nil {
		t.Error("Restore() expected error for damaged backup")
	}
}

func TestManager_List(t *testing.T) {
	manager := newTestManager(t)

	if _, err := manager.Create("/d", "Rider15neo", "First"); err != nil {
		t.Fatal(err)
	}
	if _, err := manager.Create("/d", "Rider15neo", "Second"); err != nil {
		t.Fatal(err)
	}
	// Stray entries are ignored
	_ = afero.WriteFile(manager.fs, filepath.Join(manager.BackupDir(), "notes.txt"), []byte("x"), 0644)
	_ = manager.fs.MkdirAll(filepath.Join(manager.BackupDir(), "empty"), 0755)

	backups, err := manager.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("List() count = %v, want 2", len(backups))
	}
	if backups[0].Note != "Second" || backups[1].Note != "First" {
		t.Errorf("List() order = %s, %s; want newest first", backups[0].Note, backups[1].Note)
	}
}

func TestManager_ListEmpty(t *testing.T) {
	manager := newTestManager(t)

	backups, err := manager.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("List() count = %v, want 0", len(backups))
	}
}

func TestManager_GetLatest(t *testing.T) {
	manager := newTestManager(t)

	_, _ = manager.Create("/d", "m", "First")
	_, _ = manager.Create("/d", "m", "Latest")

	bak, err := manager.Get("latest")
	if err != nil {
		t.Fatalf("Get('latest') error = %v", err)
	}
	if bak.Note != "Latest" {
		t.Errorf("Get('latest') Note = %v, want 'Latest'", bak.Note)
	}
}

func TestManager_GetErrors(t *testing.T) {
	manager := newTestManager(t)

	for _, id := range []string{"nonexistent", "latest", "../etc", ""} {
		if _, err := manager.Get(id); err == nil {
			t.Errorf("Get(%q) expected error", id)
		}
	}
}

func TestManager_Delete(t *testing.T) {
	manager := newTestManager(t)

	s, err := manager.Create("/d", "m", "To delete")
	if err != nil {
		t.Fatal(err)
	}

	if err := manager.Delete(s.Backup().ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := manager.Get(s.Backup().ID); err == nil {
		t.Error("Get() expected error after delete")
	}
	if err := manager.Delete("nonexistent"); err == nil {
		t.Error("Delete() expected error for nonexistent backup")
	}
}

func TestNewManagerWithDir(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManagerWithDir(tmpDir, "v1.0.0")

	if manager.BackupDir() != tmpDir {
		t.Errorf("BackupDir() = %v, want %v", manager.BackupDir(), tmpDir)
	}

	s, err := manager.Create("/d", "m", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, s.Backup().ID, "backup.json")); err != nil {
		t.Errorf("backup index not written on disk: %v", err)
	}
}

func TestDefaultDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg-cache")

	dir, err := DefaultDir()
	if err != nil {
		t.Fatal(err)
	}
	if dir != filepath.Join("/tmp/xdg-cache", "firmup", "backups") {
		t.Errorf("DefaultDir() = %s", dir)
	}
}

func TestManagerGuard_StartsOnFirstWrite(t *testing.T) {
	manager := newTestManager(t)
	dev, _ := newTestDevice(t, map[string]string{"update.ini": "old"})

	guard := manager.Guard(dev, dev.Root(), "Rider15neo", "firmup update")
	if guard.Backup() != nil {
		t.Fatal("Backup() should be nil before any write")
	}
	if backups, _ := manager.List(); len(backups) != 0 {
		t.Fatalf("backup created before first write: %v", backups)
	}

	if err := guard.Persist("update.ini", []byte("new")); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	b := guard.Backup()
	if b == nil || b.Note != "firmup update" || len(b.Files) != 1 {
		t.Fatalf("Backup() = %+v", b)
	}
	if backups, _ := manager.List(); len(backups) != 1 {
		t.Errorf("List() = %v, want one backup", backups)
	}
}

func TestManagerGuard_StartFailure(t *testing.T) {
	manager := NewManagerFS(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/cache", "v1.0.0")
	dev, fs := newTestDevice(t, map[string]string{"update.ini": "old"})

	if err := manager.Guard(dev, dev.Root(), "m", "").Persist("update.ini", []byte("new")); err == nil {
		t.Fatal("expected error when the backup cannot start")
	}
	if got, _ := afero.ReadFile(fs, "update.ini"); string(got) != "old" {
		t.Errorf("device content = %q, want untouched", got)
	}
}
