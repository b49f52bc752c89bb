package activation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/entrhq/promptdeck/pkg/logging"
	"github.com/entrhq/promptdeck/pkg/preset"
)

// snapshotSuffix names the per-preset activation snapshot document, stored
// beside the raw sources so re-extraction cannot erase it.
const snapshotSuffix = "_activation.json"

// SnapshotEntry records whether one fragment, identified by display name,
// was active when the snapshot was taken.
type SnapshotEntry struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// SnapshotStore persists a name→active table per preset so activation state
// survives a reload that recreates fragment objects. Re-association is by
// display name: a renamed fragment silently loses its active status.
type SnapshotStore struct {
	dir string
	log *logging.Logger
}

// NewSnapshotStore creates a snapshot store writing into dir, normally the
// raw sources folder.
func NewSnapshotStore(dir string, log *logging.Logger) *SnapshotStore {
	if log == nil {
		log = logging.Nop()
	}
	return &SnapshotStore{dir: dir, log: log}
}

func (s *SnapshotStore) path(presetName string) string {
	return filepath.Join(s.dir, presetName+snapshotSuffix)
}

// Save records one entry per body fragment of the preset, marking those
// currently active in the tracker.
func (s *SnapshotStore) Save(presetName string, body []*preset.Fragment, t *Tracker) error {
	entries := make([]SnapshotEntry, 0, len(body))
	for _, f := range body {
		entries = append(entries, SnapshotEntry{Name: f.Name, Active: t.IsActive(f.ID)})
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("activation: marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("activation: create snapshot directory: %w", err)
	}
	if err := os.WriteFile(s.path(presetName), data, 0600); err != nil {
		return fmt.Errorf("activation: write snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot of a preset as a name→active table. A missing
// snapshot yields an empty table, not an error.
func (s *SnapshotStore) Load(presetName string) (map[string]bool, error) {
	raw, err := os.ReadFile(s.path(presetName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("activation: read snapshot: %w", err)
	}
	var entries []SnapshotEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("activation: parse snapshot: %w", err)
	}
	table := make(map[string]bool, len(entries))
	for _, e := range entries {
		table[e.Name] = e.Active
	}
	return table, nil
}

// Restore re-activates the body fragments the snapshot marks active, in body
// order. Names no longer present in the body are dropped silently.
func (s *SnapshotStore) Restore(presetName string, body []*preset.Fragment, t *Tracker) error {
	table, err := s.Load(presetName)
	if err != nil {
		return err
	}
	if len(table) == 0 {
		return nil
	}
	var indices []int
	for i, f := range body {
		if table[f.Name] {
			indices = append(indices, i)
		}
	}
	if len(indices) > 0 {
		t.Activate(body, indices)
		s.log.Infof("restored %d active fragments for preset %s", len(indices), presetName)
	}
	return nil
}
