// Package preset implements preset extraction from raw export files and the
// file-backed store of derived prompt fragments.
//
// A preset is one subdirectory of the derived tree holding one JSON record per
// body fragment plus one merged prefix record at the reserved filename. The
// extractor produces that tree from third-party export files; the store loads
// it and owns all mutation of the in-memory presets.
package preset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const (
	// PrefixFilename is the reserved filename of the merged prefix record
	// inside each preset directory.
	PrefixFilename = "prompt_prefix.json"

	// SentinelIdentifier marks the prefix boundary in source ordering.
	// Everything strictly before the first occurrence is prefix material;
	// the sentinel itself and everything after it is body.
	SentinelIdentifier = "personaDescription"

	// userFilePrefix marks records created through AddFragment rather than
	// extraction.
	userFilePrefix = "user_"
)

// fragmentNamespace is the fixed UUID namespace for deriving fragment IDs.
var fragmentNamespace = uuid.MustParse("a6c2f0d4-52f1-4b8e-9d57-3f1f6a8f0c21")

// Fragment is one named block of prompt text, extracted from an export file
// or authored by the user.
type Fragment struct {
	// ID is an opaque identifier assigned at load/creation time and used
	// for all membership tests. It is derived deterministically from the
	// (name, identifier, content) triple, so fragments carrying identical
	// values share one ID across reloads.
	ID string `json:"-"`

	Name       string `json:"name"`
	Content    string `json:"content"`
	IsPrefix   bool   `json:"is_prefix"`
	Identifier string `json:"identifier"`

	// Enabled carries the order-entry flag from the source export. It is
	// preserved verbatim and never interpreted.
	Enabled *bool `json:"enabled,omitempty"`

	UserCreated bool       `json:"user_created,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`

	// File is the on-disk filename this fragment was persisted under,
	// recorded at creation time so deletion never has to guess.
	File string `json:"file,omitempty"`
}

// FragmentID derives the opaque fragment ID for a value triple.
func FragmentID(name, identifier, content string) string {
	material := name + "\x00" + identifier + "\x00" + content
	return uuid.NewSHA1(fragmentNamespace, []byte(material)).String()
}

// EnsureID populates ID from the fragment's current values if unset.
func (f *Fragment) EnsureID() {
	if f.ID == "" {
		f.ID = FragmentID(f.Name, f.Identifier, f.Content)
	}
}

// Copy returns an independent copy of the fragment.
func (f *Fragment) Copy() *Fragment {
	c := *f
	return &c
}

// NewUserFragment builds a user-authored fragment. The identifier is
// synthesized from the name and the target filename is fixed at creation.
func NewUserFragment(name, content string) *Fragment {
	now := time.Now().UTC()
	f := &Fragment{
		Name:        name,
		Content:     content,
		Identifier:  userFilePrefix + slugify(name),
		UserCreated: true,
		CreatedAt:   &now,
	}
	f.File = userFileName(name)
	f.EnsureID()
	return f
}

// SanitizeName converts a display name into a safe filename stem: letters,
// digits, underscores and hyphens are kept, spaces become underscores, and
// everything else is replaced with an underscore.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
}

// slugify lowercases a name into an identifier-safe slug.
func slugify(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

// userFileName returns the on-disk filename for a user fragment.
func userFileName(name string) string {
	stem := SanitizeName(name)
	if !strings.HasPrefix(stem, userFilePrefix) {
		stem = userFilePrefix + stem
	}
	return stem + ".json"
}

// coerceContent renders a raw JSON content value as a string. String values
// are used as-is; anything else is kept as its compact JSON text rather than
// rejected.
func coerceContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}

// provenanceHeader renders the header line that precedes one fragment inside
// the merged prefix block.
func provenanceHeader(name, identifier string) string {
	return fmt.Sprintf("<!-- %s (identifier: %s) -->", name, identifier)
}
