// Package orchestrator composes the preset store, activation tracker, group
// registry, and snapshot store behind the management surface consumed by a
// command layer, and owns the single mutation point applied to outbound
// model requests.
//
// Execution is single-threaded request/response: every operation runs to
// completion before the next is accepted, so no component below this one
// performs internal locking. The only suspension point is the two-phase
// pending-input flow in pending.go.
package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/promptdeck/pkg/activation"
	"github.com/entrhq/promptdeck/pkg/config"
	"github.com/entrhq/promptdeck/pkg/group"
	"github.com/entrhq/promptdeck/pkg/llm/tokenizer"
	"github.com/entrhq/promptdeck/pkg/logging"
	"github.com/entrhq/promptdeck/pkg/preset"
	"github.com/entrhq/promptdeck/pkg/types"
)

var (
	// ErrNoPreset is returned when an operation needs a selected preset
	// and none is.
	ErrNoPreset = errors.New("orchestrator: no preset selected")

	// ErrNoFragments is returned when the selected preset has no body
	// fragments to operate on.
	ErrNoFragments = errors.New("orchestrator: no fragments in current preset")

	// ErrPresetIndex is returned for preset indices outside the list.
	ErrPresetIndex = errors.New("orchestrator: preset index out of range")

	// ErrGroupEmpty is returned when activating a group that is unknown
	// or holds no indices.
	ErrGroupEmpty = errors.New("orchestrator: group not found or empty")
)

// Orchestrator wires the prompt management layers together.
type Orchestrator struct {
	cfg       *config.Config
	store     *preset.Store
	tracker   *activation.Tracker
	snapshots *activation.SnapshotStore
	groups    *group.Registry
	tok       *tokenizer.Tokenizer
	log       *logging.Logger

	current string
	pending map[string]*PendingOp
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithTokenizer attaches a tokenizer used for fragment token counts.
// Without one, counts fall back to an approximation.
func WithTokenizer(tok *tokenizer.Tokenizer) Option {
	return func(o *Orchestrator) {
		o.tok = tok
	}
}

// New builds the orchestrator, loads the derived tree (extracting when it is
// missing or empty), and selects the first preset. A load that yields no
// presets is not fatal; the orchestrator starts with nothing selected.
func New(cfg *config.Config, log *logging.Logger, opts ...Option) (*Orchestrator, error) {
	if log == nil {
		log = logging.Nop()
	}

	extractor, err := preset.NewExtractor(cfg.SourcesDir, cfg.OutputPath(), cfg.SourcePattern, log)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:     cfg,
		store:   preset.NewStore(cfg.OutputPath(), extractor, log),
		tracker: activation.NewTracker(log),
		groups:  group.NewRegistry(cfg.SourcesDir, log),
		log:     log,
		pending: make(map[string]*PendingOp),
	}
	if cfg.SnapshotEnabled {
		o.snapshots = activation.NewSnapshotStore(cfg.SourcesDir, log)
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := o.store.Load(); err != nil {
		log.Warnf("initial load: %v", err)
	}
	o.selectFirstPreset()
	return o, nil
}

// selectFirstPreset points the orchestrator at the first loaded preset, or
// at nothing when none loaded.
func (o *Orchestrator) selectFirstPreset() {
	names := o.store.Presets()
	if len(names) == 0 {
		o.current = ""
		o.tracker.Reset("")
		o.groups.ResetFor("")
		return
	}
	o.setCurrent(names[0])
}

// setCurrent switches the selected preset: activation state is cleared (no
// carry-over), the preset's group document is loaded, and, when snapshots
// are enabled, its durable activation state is restored.
func (o *Orchestrator) setCurrent(name string) {
	o.current = name
	o.tracker.Reset(name)
	if err := o.groups.LoadFor(name); err != nil {
		o.log.Errorf("loading groups for %s: %v", name, err)
	}
	if o.snapshots != nil {
		if err := o.snapshots.Restore(name, o.store.Prompts(name), o.tracker); err != nil {
			o.log.Errorf("restoring activation snapshot for %s: %v", name, err)
		}
	}
	o.log.Infof("selected preset %s", name)
}

// syncSnapshot persists the current activation state when snapshots are
// enabled. Failures are logged, never fatal to the triggering operation.
func (o *Orchestrator) syncSnapshot() {
	if o.snapshots == nil || o.current == "" {
		return
	}
	if err := o.snapshots.Save(o.current, o.store.Prompts(o.current), o.tracker); err != nil {
		o.log.Errorf("saving activation snapshot for %s: %v", o.current, err)
	}
}

// Presets returns the loaded preset names in listing order.
func (o *Orchestrator) Presets() []string {
	return o.store.Presets()
}

// Current returns the selected preset name, or "".
func (o *Orchestrator) Current() string {
	return o.current
}

// SwitchPreset selects the preset at the given listing index and returns its
// name.
func (o *Orchestrator) SwitchPreset(index int) (string, error) {
	names := o.store.Presets()
	if len(names) == 0 {
		return "", ErrNoPreset
	}
	if index < 0 || index >= len(names) {
		return "", fmt.Errorf("%w: %d", ErrPresetIndex, index)
	}
	o.setCurrent(names[index])
	return o.current, nil
}

// CreatePreset creates a new empty preset and selects it.
func (o *Orchestrator) CreatePreset(name string) error {
	if err := o.store.Create(name); err != nil {
		return err
	}
	o.current = name
	o.tracker.Reset(name)
	o.groups.ResetFor(name)
	return nil
}

// RefreshStats summarizes a Refresh run.
type RefreshStats struct {
	PresetCount   int
	FragmentCount int
}

// Refresh forces re-extraction from the raw sources and a full reload. The
// active set is cleared and the first preset re-selected, restoring its
// snapshot like any other selection.
func (o *Orchestrator) Refresh() (*RefreshStats, error) {
	if err := o.store.Refresh(); err != nil {
		return nil, err
	}
	o.tracker.Clear()
	o.selectFirstPreset()

	stats := &RefreshStats{}
	for _, name := range o.store.Presets() {
		stats.PresetCount++
		stats.FragmentCount += len(o.store.Prompts(name))
	}
	return stats, nil
}

// FragmentInfo is one row of the fragment listing.
type FragmentInfo struct {
	Index       int
	Name        string
	Active      bool
	UserCreated bool
	Tokens      int
}

// Fragments lists the current preset's body fragments with active markers
// and token counts.
func (o *Orchestrator) Fragments() []FragmentInfo {
	body := o.currentBody()
	out := make([]FragmentInfo, 0, len(body))
	for i, f := range body {
		out = append(out, FragmentInfo{
			Index:       i,
			Name:        f.Name,
			Active:      o.tracker.IsActive(f.ID),
			UserCreated: f.UserCreated,
			Tokens:      o.tok.CountTokens(f.Content),
		})
	}
	return out
}

// ViewFragment returns the fragment at the given body index along with its
// active flag and token count.
func (o *Orchestrator) ViewFragment(index int) (*preset.Fragment, bool, int, error) {
	body := o.currentBody()
	if len(body) == 0 {
		return nil, false, 0, ErrNoFragments
	}
	if index < 0 || index >= len(body) {
		return nil, false, 0, preset.ErrIndexOutOfRange
	}
	f := body[index]
	return f, o.tracker.IsActive(f.ID), o.tok.CountTokens(f.Content), nil
}

// PrefixText returns the current preset's merged prefix block, or "".
func (o *Orchestrator) PrefixText() string {
	if o.current == "" {
		return ""
	}
	return o.store.Prefix(o.current)
}

// ActiveFragments returns the active set in activation order.
func (o *Orchestrator) ActiveFragments() []*preset.Fragment {
	return o.tracker.Active()
}

// AddFragment persists a user-authored fragment in the current preset.
func (o *Orchestrator) AddFragment(name, content string) (*preset.Fragment, error) {
	if o.current == "" {
		return nil, ErrNoPreset
	}
	f, err := o.store.AddFragment(o.current, name, content)
	if err != nil {
		return nil, err
	}
	o.syncSnapshot()
	return f, nil
}

// DeleteFragment removes the user-created fragment at the given body index.
// A matching active entry is removed as well; non-user fragments fail with
// body list and active set unchanged.
func (o *Orchestrator) DeleteFragment(index int) (*preset.Fragment, error) {
	if o.current == "" {
		return nil, ErrNoPreset
	}
	f, err := o.store.DeleteFragment(o.current, index)
	if err != nil {
		return nil, err
	}
	o.tracker.DeactivateByID([]string{f.ID})
	o.syncSnapshot()
	return f, nil
}

// Activate activates the fragment at the given body index. The bool result
// is true when the fragment was already active (no change).
func (o *Orchestrator) Activate(index int) (*preset.Fragment, bool, error) {
	body := o.currentBody()
	if len(body) == 0 {
		return nil, false, ErrNoFragments
	}
	if index < 0 || index >= len(body) {
		return nil, false, preset.ErrIndexOutOfRange
	}
	f := body[index]
	if o.tracker.IsActive(f.ID) {
		return f, true, nil
	}
	newly := o.tracker.Activate(body, []int{index})
	if len(newly) == 0 {
		return nil, false, fmt.Errorf("orchestrator: activating fragment %d failed", index)
	}
	o.syncSnapshot()
	return newly[0], false, nil
}

// ActivateGroup activates every fragment of a named group, best-effort:
// dangling indices are skipped, already-active fragments are not duplicated.
// The newly activated fragments are returned; an empty result with a nil
// error means the group was already fully active.
func (o *Orchestrator) ActivateGroup(name string) ([]*preset.Fragment, error) {
	body := o.currentBody()
	if len(body) == 0 {
		return nil, ErrNoFragments
	}
	if name == "" {
		return nil, group.ErrEmptyName
	}
	indices := o.groups.Get(name)
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrGroupEmpty, name)
	}
	newly := o.tracker.Activate(body, indices)
	if len(newly) > 0 {
		o.syncSnapshot()
	}
	return newly, nil
}

// Deactivate removes the active entry at the given position.
func (o *Orchestrator) Deactivate(index int) (*preset.Fragment, error) {
	f, err := o.tracker.Deactivate(index)
	if err != nil {
		return nil, err
	}
	o.syncSnapshot()
	return f, nil
}

// ClearActive empties the active set and returns the prior count.
func (o *Orchestrator) ClearActive() int {
	count := o.tracker.Clear()
	if count > 0 {
		o.syncSnapshot()
	}
	return count
}

// CreateGroup registers a named group over the current body list and returns
// the indices that survived validation.
func (o *Orchestrator) CreateGroup(name string, indices []int) ([]int, error) {
	if o.current == "" {
		return nil, ErrNoPreset
	}
	return o.groups.Create(name, indices, len(o.currentBody()))
}

// UpdateGroup replaces a group's indices and returns the surviving ones.
// Unlike CreateGroup, an all-invalid list yields an empty group.
func (o *Orchestrator) UpdateGroup(name string, indices []int) ([]int, error) {
	if o.current == "" {
		return nil, ErrNoPreset
	}
	return o.groups.Update(name, indices, len(o.currentBody()))
}

// DeleteGroup removes a named group.
func (o *Orchestrator) DeleteGroup(name string) error {
	if o.current == "" {
		return ErrNoPreset
	}
	return o.groups.Delete(name)
}

// Groups returns the current preset's group map.
func (o *Orchestrator) Groups() map[string][]int {
	return o.groups.All()
}

// GroupNames returns the group names in listing order.
func (o *Orchestrator) GroupNames() []string {
	return o.groups.Names()
}

// Group returns the indices of one group, empty when unknown.
func (o *Orchestrator) Group(name string) []int {
	return o.groups.Get(name)
}

// HasGroup reports whether the named group exists.
func (o *Orchestrator) HasGroup(name string) bool {
	return o.groups.Has(name)
}

// Apply mutates an outbound request in place: the selected preset's prefix
// block is prepended to the system instruction (or set when empty), then the
// blank-line separated contents of the active fragments are prepended to the
// user content. Prefix is always applied before activation, and both before
// the request leaves the process.
func (o *Orchestrator) Apply(req *types.CompletionRequest) {
	prefix := o.PrefixText()
	if prefix != "" {
		if req.SystemPrompt != "" {
			req.SystemPrompt = prefix + "\n\n" + req.SystemPrompt
		} else {
			req.SystemPrompt = prefix
		}
	}

	active := o.tracker.Active()
	if len(active) > 0 {
		contents := make([]string, 0, len(active))
		for _, f := range active {
			contents = append(contents, f.Content)
		}
		req.UserPrompt = strings.Join(contents, "\n\n") + "\n\n" + req.UserPrompt
	}
}

// currentBody returns the body list of the selected preset.
func (o *Orchestrator) currentBody() []*preset.Fragment {
	if o.current == "" {
		return nil
	}
	return o.store.Prompts(o.current)
}
