package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/entrhq/promptdeck/pkg/logging"
)

// Extractor parses raw preset export files, computes fragment order,
// partitions prefix from body, and writes the derived fragment tree.
type Extractor struct {
	sourcesDir string
	outputDir  string
	pattern    glob.Glob
	log        *logging.Logger
}

// NewExtractor creates an extractor reading exports from sourcesDir that
// match pattern (e.g. "*.json") and writing the derived tree to outputDir.
func NewExtractor(sourcesDir, outputDir, pattern string, log *logging.Logger) (*Extractor, error) {
	if pattern == "" {
		pattern = "*.json"
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("preset: compile source pattern %q: %w", pattern, err)
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Extractor{
		sourcesDir: sourcesDir,
		outputDir:  outputDir,
		pattern:    g,
		log:        log,
	}, nil
}

// export document shapes. prompt_order is held raw so a malformed section
// degrades to file-declaration order instead of failing the whole document.
type exportDocument struct {
	Prompts     []exportPrompt  `json:"prompts"`
	PromptOrder json.RawMessage `json:"prompt_order"`
}

type exportPrompt struct {
	Name       *string         `json:"name"`
	Content    json.RawMessage `json:"content"`
	Identifier string          `json:"identifier"`
}

type orderScope struct {
	CharacterID *int         `json:"character_id"`
	Order       []orderEntry `json:"order"`
}

type orderEntry struct {
	Identifier string `json:"identifier"`
	Enabled    *bool  `json:"enabled"`
}

// ExtractAll processes every export file in the sources folder and persists
// the derived tree. An unreadable or unparseable export is skipped with its
// siblings still processed; an empty sources folder is not an error.
// The result maps preset name to its retained body fragments.
func (e *Extractor) ExtractAll() (map[string][]*Fragment, error) {
	if err := os.MkdirAll(e.outputDir, 0750); err != nil {
		return nil, fmt.Errorf("preset: create output directory: %w", err)
	}

	entries, err := os.ReadDir(e.sourcesDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			e.log.Warnf("sources folder %s does not exist", e.sourcesDir)
			return map[string][]*Fragment{}, nil
		}
		return nil, fmt.Errorf("preset: read sources folder: %w", err)
	}

	result := make(map[string][]*Fragment)
	for _, entry := range entries {
		if entry.IsDir() || !e.pattern.Match(entry.Name()) {
			continue
		}
		path := filepath.Join(e.sourcesDir, entry.Name())
		presetName := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))

		body, prefix, err := e.extractFile(path)
		if err != nil {
			e.log.Errorf("skipping export %s: %v", path, err)
			continue
		}
		if len(body) == 0 {
			e.log.Infof("no valid fragments in %s", path)
			continue
		}

		if err := e.persistPreset(presetName, body, prefix); err != nil {
			e.log.Errorf("persisting preset %s: %v", presetName, err)
			continue
		}
		result[presetName] = body
	}
	return result, nil
}

// extractFile parses one export and returns its body and prefix fragments in
// final order.
func (e *Extractor) extractFile(path string) (body, prefix []*Fragment, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read: %w", err)
	}

	var doc exportDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse: %w", err)
	}
	if len(doc.Prompts) == 0 {
		e.log.Warnf("no prompts section in %s", path)
		return nil, nil, nil
	}

	// Fragments with no identifier at all are dropped up front.
	prompts := make([]exportPrompt, 0, len(doc.Prompts))
	for _, p := range doc.Prompts {
		if p.Identifier != "" {
			prompts = append(prompts, p)
		}
	}

	ordered := e.orderPrompts(prompts, doc.PromptOrder)

	// Partition at the first sentinel occurrence. The sentinel itself
	// belongs to the body.
	boundary := -1
	for i, item := range ordered {
		if item.prompt.Identifier == SentinelIdentifier {
			boundary = i
			break
		}
	}

	for i, item := range ordered {
		p := item.prompt
		if p.Name == nil || p.Content == nil {
			e.log.Warnf("prompt %q in %s is missing name or content", p.Identifier, path)
			continue
		}
		content := coerceContent(p.Content)
		if strings.TrimSpace(content) == "" {
			continue
		}
		f := &Fragment{
			Name:       *p.Name,
			Content:    content,
			Identifier: p.Identifier,
			Enabled:    item.enabled,
			IsPrefix:   boundary != -1 && i < boundary,
		}
		f.EnsureID()
		if f.IsPrefix {
			prefix = append(prefix, f)
		} else {
			body = append(body, f)
		}
	}
	return body, prefix, nil
}

// orderedPrompt pairs a prompt with the enabled flag of the order entry that
// named it, if any.
type orderedPrompt struct {
	prompt  exportPrompt
	enabled *bool
}

// orderPrompts builds the full ordered sequence: prompts named by the chosen
// order first, then any prompt omitted from the order in file-declaration
// order. A missing or malformed order section yields file-declaration order.
func (e *Extractor) orderPrompts(prompts []exportPrompt, rawOrder json.RawMessage) []orderedPrompt {
	orderEntries := e.selectOrder(rawOrder)

	byIdentifier := make(map[string]exportPrompt, len(prompts))
	for _, p := range prompts {
		byIdentifier[p.Identifier] = p
	}

	var out []orderedPrompt
	consumed := make(map[string]bool, len(orderEntries))
	for _, entry := range orderEntries {
		if consumed[entry.Identifier] {
			continue
		}
		if p, ok := byIdentifier[entry.Identifier]; ok {
			enabled := entry.Enabled
			out = append(out, orderedPrompt{prompt: p, enabled: enabled})
			consumed[entry.Identifier] = true
		}
	}
	for _, p := range prompts {
		if !consumed[p.Identifier] {
			out = append(out, orderedPrompt{prompt: p})
			consumed[p.Identifier] = true
		}
	}
	return out
}

// selectOrder picks the order array of the maximum character_id scope; when
// the maximum is duplicated the last occurrence wins. Any malformed shape
// degrades to nil (file-declaration order).
func (e *Extractor) selectOrder(rawOrder json.RawMessage) []orderEntry {
	if len(rawOrder) == 0 {
		e.log.Warnf("no prompt_order section, using file-declaration order")
		return nil
	}
	var scopes []orderScope
	if err := json.Unmarshal(rawOrder, &scopes); err != nil {
		e.log.Warnf("malformed prompt_order section, using file-declaration order: %v", err)
		return nil
	}

	maxID := -1
	var selected []orderEntry
	for _, scope := range scopes {
		if scope.CharacterID == nil || scope.Order == nil {
			continue
		}
		if *scope.CharacterID >= maxID {
			maxID = *scope.CharacterID
			selected = scope.Order
		}
	}
	if selected == nil {
		e.log.Warnf("no valid order scope found, using file-declaration order")
		return nil
	}

	out := make([]orderEntry, 0, len(selected))
	for _, entry := range selected {
		if entry.Identifier == "" {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// persistPreset writes one record per body fragment plus the merged prefix
// record for a preset.
func (e *Extractor) persistPreset(presetName string, body, prefix []*Fragment) error {
	dir := filepath.Join(e.outputDir, presetName)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("preset: create preset directory: %w", err)
	}

	for _, f := range body {
		f.File = SanitizeName(f.Name) + ".json"
		if err := writeFragmentFile(filepath.Join(dir, f.File), f); err != nil {
			e.log.Errorf("writing fragment %q: %v", f.Name, err)
			continue
		}
	}

	if len(prefix) == 0 {
		return nil
	}
	merged := &Fragment{
		Name:     "System Prompt Prefix",
		Content:  MergePrefix(prefix),
		IsPrefix: true,
		File:     PrefixFilename,
	}
	merged.EnsureID()
	if err := writeFragmentFile(filepath.Join(dir, PrefixFilename), merged); err != nil {
		return fmt.Errorf("preset: write prefix record: %w", err)
	}
	return nil
}

// MergePrefix synthesizes the prefix block text: the trimmed concatenation of
// the retained prefix fragments, each preceded by a provenance header and
// separated by a blank line.
func MergePrefix(prefix []*Fragment) string {
	var b strings.Builder
	for _, f := range prefix {
		content := strings.TrimSpace(f.Content)
		if content == "" {
			continue
		}
		b.WriteString(provenanceHeader(f.Name, f.Identifier))
		b.WriteString("\n")
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

// writeFragmentFile persists a fragment record as indented JSON.
func writeFragmentFile(path string, f *Fragment) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("preset: marshal fragment: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("preset: write %s: %w", path, err)
	}
	return nil
}
