package backup

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Device is the device-side file access a backup needs.
type Device interface {
	ReadFile(name string) ([]byte, error)
	Exists(name string) (bool, error)
	Persist(name string, data []byte) error
}

// Session adds files to a backup created by Manager.Create.
type Session struct {
	manager *Manager
	backup  *Backup
	seen    map[string]bool
}

// Backup returns the backup being recorded.
func (s *Session) Backup() *Backup {
	return s.backup
}

// Capture saves the current content of name from d. A file is captured at
// most once per session, so the backup keeps the content from before the
// first overwrite. The index is rewritten after every capture.
func (s *Session) Capture(d Device, name string) error {
	key := normalize(name)
	if s.seen[key] {
		return nil
	}

	exists, err := d.Exists(name)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", name, err)
	}

	entry := FileEntry{Path: key, Existed: exists}
	if exists {
		data, err := d.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}

		dst := s.manager.filePath(s.backup.ID, key)
		if err := s.manager.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("failed to create backup directory: %w", err)
		}
		if err := afero.WriteFile(s.manager.fs, dst, data, 0644); err != nil {
			return fmt.Errorf("failed to back up %s: %w", name, err)
		}
		entry.Size = int64(len(data))
	}

	s.backup.Files = append(s.backup.Files, entry)
	s.seen[key] = true
	return s.manager.save(s.backup)
}

// Guard returns a persister that captures each file before writing it to d.
func (s *Session) Guard(d Device) *Guard {
	return &Guard{session: s, device: d}
}

// Guard returns a persister that starts a new backup on its first write, so
// runs that never write anything leave no backup behind.
func (m *Manager) Guard(d Device, root, model, note string) *Guard {
	return &Guard{
		device: d,
		start: func() (*Session, error) {
			return m.Create(root, model, note)
		},
	}
}

// Guard writes to a device after backing up the file being replaced.
type Guard struct {
	session *Session
	device  Device
	start   func() (*Session, error)
}

// Persist captures name and then writes data to it. Nothing is written when
// the capture fails.
func (g *Guard) Persist(name string, data []byte) error {
	if g.session == nil {
		s, err := g.start()
		if err != nil {
			return fmt.Errorf("failed to start backup, not overwriting %s: %w", name, err)
		}
		g.session = s
	}
	if err := g.session.Capture(g.device, name); err != nil {
		return fmt.Errorf("backup failed, not overwriting %s: %w", name, err)
	}
	return g.device.Persist(name, data)
}

// Backup returns the backup written so far, or nil if nothing was written.
func (g *Guard) Backup() *Backup {
	if g.session == nil {
		return nil
	}
	return g.session.Backup()
}
