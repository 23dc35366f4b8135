package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotStore persists built snapshots so a restart does not have to
// re-embed an unchanged corpus.
type SnapshotStore struct {
	path string
}

// NewSnapshotStore stores snapshots at path.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Save writes snap via a temporary file and rename so a crash never leaves a
// truncated snapshot behind.
func (s *SnapshotStore) Save(snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".policy-snapshot-*")
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("publish snapshot file: %w", err)
	}
	return nil
}

// Load reads the persisted snapshot.
func (s *SnapshotStore) Load() (*Snapshot, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	for _, c := range snap.Chunks {
		if len(c.Vector) != snap.Dimension {
			return nil, fmt.Errorf("snapshot %s: chunk %s has dimension %d, expected %d", s.path, c.ID, len(c.Vector), snap.Dimension)
		}
	}
	return &snap, nil
}
