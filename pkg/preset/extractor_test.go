package preset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exportFixture is a minimal preset export document for tests.
const exportFixture = `{
  "prompts": [
    {"name": "Persona", "content": "The persona block.", "identifier": "personaDescription"},
    {"name": "Main", "content": "You are helpful.", "identifier": "main"},
    {"name": "Style", "content": "Write tersely.", "identifier": "styleGuide"},
    {"name": "Omitted", "content": "Declared but not ordered.", "identifier": "omitted"},
    {"name": "Blank", "content": "   ", "identifier": "blank"},
    {"name": "NoID", "content": "dropped"}
  ],
  "prompt_order": [
    {"character_id": 100001, "order": [
      {"identifier": "main", "enabled": true},
      {"identifier": "personaDescription", "enabled": true},
      {"identifier": "styleGuide", "enabled": false}
    ]}
  ]
}`

func writeExport(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
}

func newTestExtractor(t *testing.T, sources, output string) *Extractor {
	t.Helper()
	e, err := NewExtractor(sources, output, "*.json", nil)
	require.NoError(t, err)
	return e
}

func TestExtractAll(t *testing.T) {
	sources := t.TempDir()
	output := t.TempDir()
	writeExport(t, sources, "deck.json", exportFixture)

	result, err := newTestExtractor(t, sources, output).ExtractAll()
	require.NoError(t, err)
	require.Contains(t, result, "deck")

	body := result["deck"]
	require.Len(t, body, 3)

	// "main" precedes the sentinel so it is prefix; the sentinel itself
	// opens the body, ordered entries first, then omitted prompts in
	// declaration order.
	assert.Equal(t, "Persona", body[0].Name)
	assert.Equal(t, "Style", body[1].Name)
	assert.Equal(t, "Omitted", body[2].Name)

	assert.False(t, body[0].IsPrefix)
	require.NotNil(t, body[1].Enabled)
	assert.False(t, *body[1].Enabled)
	assert.Nil(t, body[2].Enabled)
}

func TestExtractAllWritesDerivedTree(t *testing.T) {
	sources := t.TempDir()
	output := t.TempDir()
	writeExport(t, sources, "deck.json", exportFixture)

	_, err := newTestExtractor(t, sources, output).ExtractAll()
	require.NoError(t, err)

	dir := filepath.Join(output, "deck")
	for _, file := range []string{"Persona.json", "Style.json", "Omitted.json", PrefixFilename} {
		_, err := os.Stat(filepath.Join(dir, file))
		assert.NoError(t, err, "expected %s", file)
	}

	raw, err := os.ReadFile(filepath.Join(dir, PrefixFilename))
	require.NoError(t, err)
	var rec Fragment
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.True(t, rec.IsPrefix)
	assert.Contains(t, rec.Content, "<!-- Main (identifier: main) -->")
	assert.Contains(t, rec.Content, "You are helpful.")
}

func TestExtractAllNoSentinel(t *testing.T) {
	sources := t.TempDir()
	output := t.TempDir()
	writeExport(t, sources, "deck.json", `{
		"prompts": [
			{"name": "A", "content": "aa", "identifier": "a"},
			{"name": "B", "content": "bb", "identifier": "b"}
		]
	}`)

	result, err := newTestExtractor(t, sources, output).ExtractAll()
	require.NoError(t, err)

	// Without the sentinel everything is body and no prefix record exists.
	require.Len(t, result["deck"], 2)
	_, err = os.Stat(filepath.Join(output, "deck", PrefixFilename))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractAllOrderWithoutSentinel(t *testing.T) {
	sources := t.TempDir()
	output := t.TempDir()
	writeExport(t, sources, "deck.json", `{
		"prompts": [
			{"name": "A", "content": "aa", "identifier": "a"},
			{"name": "B", "content": "bb", "identifier": "b"},
			{"name": "C", "content": "cc", "identifier": "c"}
		],
		"prompt_order": [
			{"character_id": 1, "order": [
				{"identifier": "c"}, {"identifier": "a"}, {"identifier": "b"}
			]}
		]
	}`)

	result, err := newTestExtractor(t, sources, output).ExtractAll()
	require.NoError(t, err)

	body := result["deck"]
	require.Len(t, body, 3)
	assert.Equal(t, "C", body[0].Name)
	assert.Equal(t, "A", body[1].Name)
	assert.Equal(t, "B", body[2].Name)
	for _, f := range body {
		assert.False(t, f.IsPrefix)
	}
}

func TestExtractAllLastMaxScopeWins(t *testing.T) {
	sources := t.TempDir()
	output := t.TempDir()
	writeExport(t, sources, "deck.json", `{
		"prompts": [
			{"name": "A", "content": "aa", "identifier": "a"},
			{"name": "B", "content": "bb", "identifier": "b"}
		],
		"prompt_order": [
			{"character_id": 7, "order": [{"identifier": "a"}, {"identifier": "b"}]},
			{"character_id": 7, "order": [{"identifier": "b"}, {"identifier": "a"}]}
		]
	}`)

	result, err := newTestExtractor(t, sources, output).ExtractAll()
	require.NoError(t, err)

	body := result["deck"]
	require.Len(t, body, 2)
	assert.Equal(t, "B", body[0].Name)
	assert.Equal(t, "A", body[1].Name)
}

func TestExtractAllMalformedOrderFallsBack(t *testing.T) {
	sources := t.TempDir()
	output := t.TempDir()
	writeExport(t, sources, "deck.json", `{
		"prompts": [
			{"name": "B", "content": "bb", "identifier": "b"},
			{"name": "A", "content": "aa", "identifier": "a"}
		],
		"prompt_order": {"not": "an array"}
	}`)

	result, err := newTestExtractor(t, sources, output).ExtractAll()
	require.NoError(t, err)

	body := result["deck"]
	require.Len(t, body, 2)
	assert.Equal(t, "B", body[0].Name, "declaration order on malformed prompt_order")
	assert.Equal(t, "A", body[1].Name)
}

func TestExtractAllDuplicateOrderEntries(t *testing.T) {
	sources := t.TempDir()
	output := t.TempDir()
	writeExport(t, sources, "deck.json", `{
		"prompts": [
			{"name": "A", "content": "aa", "identifier": "a"}
		],
		"prompt_order": [
			{"character_id": 1, "order": [{"identifier": "a"}, {"identifier": "a"}]}
		]
	}`)

	result, err := newTestExtractor(t, sources, output).ExtractAll()
	require.NoError(t, err)
	assert.Len(t, result["deck"], 1)
}

func TestExtractAllNonStringContent(t *testing.T) {
	sources := t.TempDir()
	output := t.TempDir()
	writeExport(t, sources, "deck.json", `{
		"prompts": [
			{"name": "Odd", "content": {"nested": true}, "identifier": "odd"}
		]
	}`)

	result, err := newTestExtractor(t, sources, output).ExtractAll()
	require.NoError(t, err)

	body := result["deck"]
	require.Len(t, body, 1)
	assert.Equal(t, `{"nested":true}`, body[0].Content)
}

func TestExtractAllSkipsBrokenSibling(t *testing.T) {
	sources := t.TempDir()
	output := t.TempDir()
	writeExport(t, sources, "broken.json", `{nope`)
	writeExport(t, sources, "good.json", `{
		"prompts": [{"name": "A", "content": "aa", "identifier": "a"}]
	}`)

	result, err := newTestExtractor(t, sources, output).ExtractAll()
	require.NoError(t, err)
	assert.NotContains(t, result, "broken")
	assert.Contains(t, result, "good")
}

func TestExtractAllEmptySources(t *testing.T) {
	result, err := newTestExtractor(t, t.TempDir(), t.TempDir()).ExtractAll()
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestExtractAllMissingSources(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	result, err := newTestExtractor(t, missing, t.TempDir()).ExtractAll()
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestExtractAllPatternFilter(t *testing.T) {
	sources := t.TempDir()
	output := t.TempDir()
	writeExport(t, sources, "deck.json", `{
		"prompts": [{"name": "A", "content": "aa", "identifier": "a"}]
	}`)
	writeExport(t, sources, "notes.txt", "not an export")

	e, err := NewExtractor(sources, output, "*.json", nil)
	require.NoError(t, err)
	result, err := e.ExtractAll()
	require.NoError(t, err)
	assert.Len(t, result, 1)
}
