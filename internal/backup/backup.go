// Package backup keeps host-side copies of device files before an update
// overwrites them, so a failed or unwanted update can be rolled back.
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const (
	indexFile = "backup.json"
	filesDir  = "files"
	idLayout  = "2006-01-02-150405"
)

// Backup is one snapshot of the device files touched by an update.
type Backup struct {
	ID            string      `json:"id" yaml:"id"`
	CreatedAt     time.Time   `json:"created_at" yaml:"created_at"`
	Note          string      `json:"note,omitempty" yaml:"note,omitempty"`
	FirmupVersion string      `json:"firmup_version" yaml:"firmup_version"`
	Device        string      `json:"device" yaml:"device"`
	Model         string      `json:"model" yaml:"model"`
	Files         []FileEntry `json:"files" yaml:"files"`
}

// FileEntry records one device file as it was before the update.
// Existed is false when the update created the file.
type FileEntry struct {
	Path    string `json:"path" yaml:"path"`
	Size    int64  `json:"size" yaml:"size"`
	Existed bool   `json:"existed" yaml:"existed"`
}

// Size returns the number of bytes saved in the backup.
func (b *Backup) Size() int64 {
	var total int64
	for _, f := range b.Files {
		total += f.Size
	}
	return total
}

// BackupInfo provides summary information about a backup for listing.
type BackupInfo struct {
	ID        string    `json:"id" yaml:"id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Note      string    `json:"note,omitempty" yaml:"note,omitempty"`
	Model     string    `json:"model" yaml:"model"`
	Files     int       `json:"files" yaml:"files"`
	Size      int64     `json:"size" yaml:"size"`
}

// Manager handles backup operations.
type Manager struct {
	fs        afero.Fs
	backupDir string
	version   string
	now       func() time.Time
}

// NewManagerWithDir creates a backup manager with a custom directory.
func NewManagerWithDir(backupDir, version string) *Manager {
	return NewManagerFS(afero.NewOsFs(), backupDir, version)
}

// NewManagerFS creates a backup manager storing backups in fsys.
func NewManagerFS(fsys afero.Fs, backupDir, version string) *Manager {
	return &Manager{
		fs:        fsys,
		backupDir: backupDir,
		version:   version,
		now:       time.Now,
	}
}

// DefaultDir returns the default backup directory path.
func DefaultDir() (string, error) {
	// Use XDG_CACHE_HOME or default to ~/.cache
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "firmup", "backups"), nil
}

// BackupDir returns the backup directory path.
func (m *Manager) BackupDir() string {
	return m.backupDir
}

// Create starts an empty backup for the device at root.
// Files are added with Session.Capture as the update proceeds.
func (m *Manager) Create(root, model, note string) (*Session, error) {
	if err := m.fs.MkdirAll(m.backupDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	now := m.now()
	id := now.Format(idLayout)
	for i := 2; ; i++ {
		exists, err := afero.DirExists(m.fs, m.dir(id))
		if err != nil {
			return nil, fmt.Errorf("failed to check backup directory: %w", err)
		}
		if !exists {
			break
		}
		id = fmt.Sprintf("%s-%d", now.Format(idLayout), i)
	}

	b := &Backup{
		ID:            id,
		CreatedAt:     now,
		Note:          note,
		FirmupVersion: m.version,
		Device:        root,
		Model:         model,
		Files:         []FileEntry{},
	}

	if err := m.fs.MkdirAll(m.dir(id), 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup %s: %w", id, err)
	}
	if err := m.save(b); err != nil {
		return nil, err
	}

	return &Session{manager: m, backup: b, seen: map[string]bool{}}, nil
}

// List returns all backups sorted by creation time (newest first).
func (m *Manager) List() ([]BackupInfo, error) {
	entries, err := afero.ReadDir(m.fs, m.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []BackupInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := []BackupInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		b, err := m.load(entry.Name())
		if err != nil {
			continue
		}

		backups = append(backups, BackupInfo{
			ID:        b.ID,
			CreatedAt: b.CreatedAt,
			Note:      b.Note,
			Model:     b.Model,
			Files:     len(b.Files),
			Size:      b.Size(),
		})
	}

	// Sort by creation time, newest first
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// Get retrieves a backup by ID. Use "latest" to get the most recent backup.
func (m *Manager) Get(id string) (*Backup, error) {
	if id == "latest" {
		backups, err := m.List()
		if err != nil {
			return nil, err
		}
		if len(backups) == 0 {
			return nil, fmt.Errorf("no backups found")
		}
		id = backups[0].ID
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	return m.load(id)
}

// ReadFile returns the saved content of a file in a backup.
func (m *Manager) ReadFile(id, path string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(m.fs, m.filePath(id, path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from backup %s: %w", path, id, err)
	}
	return data, nil
}

// Delete removes a backup by ID.
func (m *Manager) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	exists, err := afero.DirExists(m.fs, m.dir(id))
	if err != nil {
		return fmt.Errorf("failed to check backup %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("backup not found: %s", id)
	}

	if err := m.fs.RemoveAll(m.dir(id)); err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}

	return nil
}

func (m *Manager) dir(id string) string {
	return filepath.Join(m.backupDir, id)
}

func (m *Manager) filePath(id, path string) string {
	return filepath.Join(m.dir(id), filesDir, filepath.FromSlash(normalize(path)))
}

// save writes the backup index.
func (m *Manager) save(b *Backup) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal backup: %w", err)
	}
	if err := afero.WriteFile(m.fs, filepath.Join(m.dir(b.ID), indexFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write backup index: %w", err)
	}
	return nil
}

// load reads and parses a backup index.
func (m *Manager) load(id string) (*Backup, error) {
	data, err := afero.ReadFile(m.fs, filepath.Join(m.dir(id), indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("backup not found: %s", id)
		}
		return nil, fmt.Errorf("failed to read backup file: %w", err)
	}

	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse backup file: %w", err)
	}

	return &b, nil
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid backup id %q", id)
	}
	return nil
}

func normalize(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}
