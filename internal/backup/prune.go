package backup

import (
	"fmt"
)

// DefaultKeepCount is the default number of backups to retain per device model.
const DefaultKeepCount = 10

// PruneResult contains information about what was pruned.
type PruneResult struct {
	Deleted []BackupInfo `json:"deleted" yaml:"deleted"`
	Kept    int          `json:"kept" yaml:"kept"`
}

// Prune removes old backups, keeping the most recent keep backups of each
// device model. Backups of one device never push out those of another.
func (m *Manager) Prune(keep int) (*PruneResult, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep count must be non-negative")
	}

	backups, err := m.List()
	if err != nil {
		return nil, err
	}

	result := &PruneResult{Deleted: []BackupInfo{}}
	seen := map[string]int{}

	// List is newest first, so the first keep of each model survive.
	for _, b := range backups {
		seen[b.Model]++
		if seen[b.Model] <= keep {
			result.Kept++
			continue
		}
		if err := m.Delete(b.ID); err != nil {
			return nil, fmt.Errorf("failed to delete backup %s: %w", b.ID, err)
		}
		result.Deleted = append(result.Deleted, b)
	}

	return result, nil
}
