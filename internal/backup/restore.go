package backup

import "fmt"

// Writer writes whole files to a device.
type Writer interface {
	Persist(name string, data []byte) error
}

// RestoreResult lists what a restore did.
type RestoreResult struct {
	Restored []string `json:"restored" yaml:"restored"`
	// Skipped files did not exist before the update and are left in place.
	Skipped []string `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Restore writes every saved file of backup id back to w.
func (m *Manager) Restore(id string, w Writer) (*RestoreResult, error) {
	b, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{}
	for _, f := range b.Files {
		if !f.Existed {
			result.Skipped = append(result.Skipped, f.Path)
			continue
		}

		data, err := m.ReadFile(b.ID, f.Path)
		if err != nil {
			return result, err
		}
		if int64(len(data)) != f.Size {
			return result, fmt.Errorf("backup %s is damaged: %s has %d bytes, expected %d", b.ID, f.Path, len(data), f.Size)
		}
		if err := w.Persist(f.Path, data); err != nil {
			return result, fmt.Errorf("failed to restore %s: %w", f.Path, err)
		}
		result.Restored = append(result.Restored, f.Path)
	}

	return result, nil
}
