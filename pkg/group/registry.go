// Package group maintains named, saved selections of body-fragment positions
// per preset. Group documents are persisted beside the raw sources rather
// than inside the derived tree, so re-extraction cannot erase them.
package group

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/entrhq/promptdeck/pkg/logging"
)

// groupsSuffix names the per-preset group document.
const groupsSuffix = "_groups.json"

var (
	// ErrEmptyName is returned when a group name is empty.
	ErrEmptyName = errors.New("group: group name must not be empty")

	// ErrExists is returned by Create when the name is already taken.
	ErrExists = errors.New("group: group already exists")

	// ErrNotFound is returned when the named group does not exist.
	ErrNotFound = errors.New("group: group not found")

	// ErrNoValidIndices is returned by Create when no index survives
	// validation.
	ErrNoValidIndices = errors.New("group: no valid fragment indices")
)

// Registry holds the group index-map of one preset at a time. Indices point
// into the current body list of that preset; they are validated at create
// and update time only, so later fragment deletion can leave them dangling
// until the group is next used.
type Registry struct {
	dir    string
	preset string
	groups map[string][]int
	log    *logging.Logger
}

// NewRegistry creates a registry persisting group documents into dir,
// normally the raw sources folder.
func NewRegistry(dir string, log *logging.Logger) *Registry {
	if log == nil {
		log = logging.Nop()
	}
	return &Registry{
		dir:    dir,
		groups: make(map[string][]int),
		log:    log,
	}
}

func (r *Registry) path(presetName string) string {
	return filepath.Join(r.dir, presetName+groupsSuffix)
}

// LoadFor replaces the registry content with the persisted document of the
// given preset. A missing document yields an empty registry, not an error.
func (r *Registry) LoadFor(presetName string) error {
	r.preset = presetName
	r.groups = make(map[string][]int)

	raw, err := os.ReadFile(r.path(presetName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.log.Infof("no group document for preset %s", presetName)
			return nil
		}
		return fmt.Errorf("group: read document: %w", err)
	}
	if err := json.Unmarshal(raw, &r.groups); err != nil {
		r.groups = make(map[string][]int)
		return fmt.Errorf("group: parse document: %w", err)
	}
	r.log.Infof("loaded %d groups for preset %s", len(r.groups), presetName)
	return nil
}

// ResetFor scopes the registry to a preset with no groups, without touching
// any persisted document. Used when a brand-new preset is created.
func (r *Registry) ResetFor(presetName string) {
	r.preset = presetName
	r.groups = make(map[string][]int)
}

// persist writes the given map for the current preset. The in-memory state
// is only replaced after a successful write.
func (r *Registry) persist(groups map[string][]int) error {
	data, err := json.MarshalIndent(groups, "", "  ")
	if err != nil {
		return fmt.Errorf("group: marshal document: %w", err)
	}
	if err := os.MkdirAll(r.dir, 0750); err != nil {
		return fmt.Errorf("group: create document directory: %w", err)
	}
	if err := os.WriteFile(r.path(r.preset), data, 0600); err != nil {
		return fmt.Errorf("group: write document: %w", err)
	}
	r.groups = groups
	return nil
}

// validate keeps the indices that fall inside the current body length,
// preserving request order and dropping duplicates. Invalid indices are
// logged and skipped, never fatal to the batch.
func (r *Registry) validate(indices []int, bodyLen int) []int {
	valid := make([]int, 0, len(indices))
	seen := make(map[int]bool, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= bodyLen {
			r.log.Warnf("invalid fragment index: %d", idx)
			continue
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		valid = append(valid, idx)
	}
	return valid
}

// Create registers a new group. It fails on an empty or duplicate name, and
// when no index survives validation against the current body length.
// The surviving indices are returned.
func (r *Registry) Create(name string, indices []int, bodyLen int) ([]int, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if _, ok := r.groups[name]; ok {
		return nil, ErrExists
	}
	valid := r.validate(indices, bodyLen)
	if len(valid) == 0 {
		return nil, ErrNoValidIndices
	}

	next := r.copyGroups()
	next[name] = valid
	if err := r.persist(next); err != nil {
		return nil, err
	}
	r.log.Infof("created group %q with %d indices", name, len(valid))
	return valid, nil
}

// Update replaces the indices of an existing group. Unlike Create, an
// all-invalid index list is permitted and yields an empty group.
func (r *Registry) Update(name string, indices []int, bodyLen int) ([]int, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if _, ok := r.groups[name]; !ok {
		return nil, ErrNotFound
	}
	valid := r.validate(indices, bodyLen)

	next := r.copyGroups()
	next[name] = valid
	if err := r.persist(next); err != nil {
		return nil, err
	}
	r.log.Infof("updated group %q with %d indices", name, len(valid))
	return valid, nil
}

// Delete removes a group and persists the document. Deleting an unknown
// group fails with ErrNotFound.
func (r *Registry) Delete(name string) error {
	if _, ok := r.groups[name]; !ok {
		return ErrNotFound
	}
	next := r.copyGroups()
	delete(next, name)
	if err := r.persist(next); err != nil {
		return err
	}
	r.log.Infof("deleted group %q", name)
	return nil
}

// Get returns the indices of a group, or an empty list when unknown.
func (r *Registry) Get(name string) []int {
	indices := r.groups[name]
	out := make([]int, len(indices))
	copy(out, indices)
	return out
}

// Has reports whether a group exists.
func (r *Registry) Has(name string) bool {
	_, ok := r.groups[name]
	return ok
}

// Names returns all group names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of the full name→indices map.
func (r *Registry) All() map[string][]int {
	return r.copyGroups()
}

func (r *Registry) copyGroups() map[string][]int {
	out := make(map[string][]int, len(r.groups))
	for name, indices := range r.groups {
		c := make([]int, len(indices))
		copy(c, indices)
		out[name] = c
	}
	return out
}
