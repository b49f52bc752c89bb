// Package activation maintains the ordered, duplicate-free list of fragments
// currently injected into outbound requests, scoped to exactly one preset,
// plus an optional durable snapshot of that state.
package activation

import (
	"errors"

	"github.com/entrhq/promptdeck/pkg/logging"
	"github.com/entrhq/promptdeck/pkg/preset"
)

// ErrIndexOutOfRange is returned by Deactivate for positions outside the
// active list.
var ErrIndexOutOfRange = errors.New("activation: index out of range")

// Tracker holds the active fragment list for the currently selected preset.
// Entries are independent copies; membership is tested by fragment ID, which
// encodes full-value equality, so fragments with identical values collapse
// to one slot.
//
// Operations run request/response with no concurrent callers, so the tracker
// performs no internal locking.
type Tracker struct {
	preset string
	active []*preset.Fragment
	log    *logging.Logger
}

// NewTracker creates an empty tracker bound to no preset.
func NewTracker(log *logging.Logger) *Tracker {
	if log == nil {
		log = logging.Nop()
	}
	return &Tracker{log: log}
}

// Preset returns the preset the tracker is currently scoped to.
func (t *Tracker) Preset() string {
	return t.preset
}

// Reset scopes the tracker to a preset, discarding all current activation
// state. Switching presets never carries activations over.
func (t *Tracker) Reset(presetName string) {
	t.preset = presetName
	t.active = nil
}

// Active returns the active fragments in activation order.
func (t *Tracker) Active() []*preset.Fragment {
	out := make([]*preset.Fragment, len(t.active))
	copy(out, t.active)
	return out
}

// Count returns the number of active fragments.
func (t *Tracker) Count() int {
	return len(t.active)
}

// IsActive reports whether a fragment ID is currently active.
func (t *Tracker) IsActive(id string) bool {
	for _, f := range t.active {
		if f.ID == id {
			return true
		}
	}
	return false
}

// Activate appends the fragments at the given body indices to the active
// list. Out-of-range indices are skipped with a warning and never abort the
// batch; fragments already active are skipped and excluded from the result.
// The returned slice holds the newly activated fragments in request order.
func (t *Tracker) Activate(body []*preset.Fragment, indices []int) []*preset.Fragment {
	var newly []*preset.Fragment
	for _, idx := range indices {
		if idx < 0 || idx >= len(body) {
			t.log.Warnf("invalid fragment index: %d", idx)
			continue
		}
		f := body[idx]
		if t.IsActive(f.ID) {
			continue
		}
		c := f.Copy()
		t.active = append(t.active, c)
		newly = append(newly, c)
	}
	return newly
}

// Deactivate removes the active entry at the given position and returns it.
func (t *Tracker) Deactivate(index int) (*preset.Fragment, error) {
	if index < 0 || index >= len(t.active) {
		return nil, ErrIndexOutOfRange
	}
	f := t.active[index]
	t.active = append(t.active[:index], t.active[index+1:]...)
	return f, nil
}

// DeactivateByID removes every active entry whose ID appears in ids.
// Removal proceeds in reverse index order so unprocessed positions never
// shift; the removed fragments are returned in their original left-to-right
// order.
func (t *Tracker) DeactivateByID(ids []string) []*preset.Fragment {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var positions []int
	for i, f := range t.active {
		if wanted[f.ID] {
			positions = append(positions, i)
		}
	}

	removed := make([]*preset.Fragment, 0, len(positions))
	for i := len(positions) - 1; i >= 0; i-- {
		idx := positions[i]
		removed = append(removed, t.active[idx])
		t.active = append(t.active[:idx], t.active[idx+1:]...)
	}

	// removed was collected back-to-front; restore left-to-right order.
	for i, j := 0, len(removed)-1; i < j; i, j = i+1, j-1 {
		removed[i], removed[j] = removed[j], removed[i]
	}
	return removed
}

// Clear empties the active list and returns the prior count.
func (t *Tracker) Clear() int {
	count := len(t.active)
	t.active = nil
	return count
}
