package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/entrhq/promptdeck/pkg/logging"
)

var (
	// ErrPresetExists is returned by Create when the preset folder is
	// already present on disk.
	ErrPresetExists = errors.New("preset: preset already exists")

	// ErrPresetNotFound is returned when an operation names an unknown
	// preset.
	ErrPresetNotFound = errors.New("preset: preset not found")

	// ErrIndexOutOfRange is returned for fragment indices outside the
	// current body list.
	ErrIndexOutOfRange = errors.New("preset: fragment index out of range")

	// ErrNotUserCreated is returned when deleting a fragment that was not
	// authored through AddFragment.
	ErrNotUserCreated = errors.New("preset: fragment was not created by the user")

	// ErrEmptyField is returned when a required name or content is empty.
	ErrEmptyField = errors.New("preset: name and content must not be empty")
)

// Store owns the in-memory presets loaded from the derived fragment tree.
// All mutation of preset state goes through its methods; callers never reach
// into the underlying containers.
//
// Operations are request/response and run to completion before the next one
// is accepted, so the store performs no internal locking.
type Store struct {
	outputDir string
	extractor *Extractor
	log       *logging.Logger

	presets  map[string][]*Fragment
	prefixes map[string]string
}

// NewStore creates a store over the derived tree at outputDir. The extractor
// is invoked once by Load when the tree is missing or empty; it may be nil to
// disable that fallback.
func NewStore(outputDir string, extractor *Extractor, log *logging.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	return &Store{
		outputDir: outputDir,
		extractor: extractor,
		log:       log,
		presets:   make(map[string][]*Fragment),
		prefixes:  make(map[string]string),
	}
}

// Load reads every preset directory of the derived tree into memory. When
// the tree is missing or yields nothing, extraction is triggered once and
// the scan repeated. Load succeeds only if at least one preset directory
// produced a non-empty fragment list.
func (s *Store) Load() error {
	s.presets = make(map[string][]*Fragment)
	s.prefixes = make(map[string]string)

	if err := s.scan(); err != nil {
		return err
	}
	if len(s.presets) == 0 && s.extractor != nil {
		s.log.Infof("derived tree empty, running extraction")
		if _, err := s.extractor.ExtractAll(); err != nil {
			return fmt.Errorf("preset: extraction: %w", err)
		}
		if err := s.scan(); err != nil {
			return err
		}
	}
	if len(s.presets) == 0 {
		return fmt.Errorf("preset: no presets loaded from %s", s.outputDir)
	}
	return nil
}

// Refresh forces re-extraction from the raw sources before reloading the
// derived tree. User-created fragment records are untouched; extracted
// records are rewritten in place.
func (s *Store) Refresh() error {
	if s.extractor != nil {
		if _, err := s.extractor.ExtractAll(); err != nil {
			return fmt.Errorf("preset: extraction: %w", err)
		}
	}
	return s.Load()
}

// scan walks the derived tree once, populating presets and prefixes.
func (s *Store) scan() error {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("preset: read derived tree: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		fragments, prefix, err := s.loadPresetDir(filepath.Join(s.outputDir, name))
		if err != nil {
			s.log.Errorf("loading preset %s: %v", name, err)
			continue
		}
		if len(fragments) == 0 && prefix == "" {
			s.log.Warnf("preset directory %s is empty, skipping", name)
			continue
		}
		sort.Slice(fragments, func(i, j int) bool {
			return fragments[i].Name < fragments[j].Name
		})
		s.presets[name] = fragments
		s.prefixes[name] = prefix
		s.log.Infof("loaded preset %s with %d fragments", name, len(fragments))
	}
	return nil
}

// fragmentRecord mirrors the on-disk fragment shape with raw content so a
// non-string value is stringified rather than rejected.
type fragmentRecord struct {
	Name        string          `json:"name"`
	Content     json.RawMessage `json:"content"`
	IsPrefix    bool            `json:"is_prefix"`
	Identifier  string          `json:"identifier"`
	Enabled     *bool           `json:"enabled"`
	UserCreated bool            `json:"user_created"`
	CreatedAt   json.RawMessage `json:"created_at"`
	File        string          `json:"file"`
}

// loadPresetDir reads all fragment records of one preset directory. Only the
// first prefix record encountered is honored; later ones are logged and
// ignored. Body fragments with whitespace-only string content are dropped.
func (s *Store) loadPresetDir(dir string) ([]*Fragment, string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, "", fmt.Errorf("read: %w", err)
	}

	var fragments []*Fragment
	prefix := ""
	prefixSeen := false

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			s.log.Errorf("reading %s: %v", path, err)
			continue
		}
		var rec fragmentRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.log.Errorf("parsing %s: %v", path, err)
			continue
		}

		content := coerceContent(rec.Content)

		if rec.IsPrefix || entry.Name() == PrefixFilename {
			if prefixSeen {
				s.log.Warnf("ignoring extra prefix record %s", path)
				continue
			}
			prefixSeen = true
			prefix = content
			continue
		}

		if strings.TrimSpace(content) == "" {
			continue
		}
		f := &Fragment{
			Name:        rec.Name,
			Content:     content,
			Identifier:  rec.Identifier,
			Enabled:     rec.Enabled,
			UserCreated: rec.UserCreated,
			File:        entry.Name(),
		}
		if len(rec.CreatedAt) > 0 {
			var created time.Time
			if err := json.Unmarshal(rec.CreatedAt, &created); err == nil {
				f.CreatedAt = &created
			}
		}
		f.EnsureID()
		fragments = append(fragments, f)
	}
	return fragments, prefix, nil
}

// Presets returns the loaded preset names in sorted order.
func (s *Store) Presets() []string {
	names := make([]string, 0, len(s.presets))
	for name := range s.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Prompts returns the ordered body fragments of a preset. Unknown presets
// yield an empty list, never an error.
func (s *Store) Prompts(name string) []*Fragment {
	fragments := s.presets[name]
	out := make([]*Fragment, len(fragments))
	copy(out, fragments)
	return out
}

// Prefix returns the merged prefix text of a preset, or "" when unknown.
func (s *Store) Prefix(name string) string {
	return s.prefixes[name]
}

// Has reports whether a preset is loaded.
func (s *Store) Has(name string) bool {
	_, ok := s.presets[name]
	return ok
}

// Create makes a new empty preset folder and registers it in memory. It
// fails if the folder already exists so existing user data is never
// silently clobbered.
func (s *Store) Create(name string) error {
	if name == "" {
		return ErrEmptyField
	}
	dir := filepath.Join(s.outputDir, name)
	if _, err := os.Stat(dir); err == nil {
		return ErrPresetExists
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("preset: create preset folder: %w", err)
	}
	s.presets[name] = nil
	s.prefixes[name] = ""
	s.log.Infof("created preset %s", name)
	return nil
}

// AddFragment persists a user-authored fragment to the preset directory and
// appends it to the in-memory body list. The file is written first; a write
// failure leaves memory unchanged.
func (s *Store) AddFragment(presetName, name, content string) (*Fragment, error) {
	if presetName == "" {
		return nil, ErrPresetNotFound
	}
	if name == "" || content == "" {
		return nil, ErrEmptyField
	}
	if !s.Has(presetName) {
		return nil, ErrPresetNotFound
	}

	f := NewUserFragment(name, content)
	dir := filepath.Join(s.outputDir, presetName)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("preset: create preset folder: %w", err)
	}
	if err := writeFragmentFile(filepath.Join(dir, f.File), f); err != nil {
		return nil, err
	}

	s.presets[presetName] = append(s.presets[presetName], f)
	s.log.Infof("added fragment %q to preset %s", name, presetName)
	return f, nil
}

// DeleteFragment removes the user-created fragment at the given body index,
// deleting its recorded on-disk file. Extracted fragments cannot be deleted.
func (s *Store) DeleteFragment(presetName string, index int) (*Fragment, error) {
	if presetName == "" || !s.Has(presetName) {
		return nil, ErrPresetNotFound
	}
	body := s.presets[presetName]
	if index < 0 || index >= len(body) {
		return nil, ErrIndexOutOfRange
	}
	f := body[index]
	if !f.UserCreated {
		return nil, ErrNotUserCreated
	}

	if f.File != "" {
		path := filepath.Join(s.outputDir, presetName, f.File)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("preset: delete %s: %w", path, err)
		}
	} else {
		s.log.Warnf("fragment %q has no recorded file, removed from memory only", f.Name)
	}

	s.presets[presetName] = append(body[:index], body[index+1:]...)
	s.log.Infof("deleted fragment %q from preset %s", f.Name, presetName)
	return f, nil
}
