package preset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoadedStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	sources := t.TempDir()
	output := t.TempDir()
	writeExport(t, sources, "deck.json", exportFixture)

	store := NewStore(output, newTestExtractor(t, sources, output), nil)
	require.NoError(t, store.Load())
	return store, sources, output
}

func TestLoadTriggersExtraction(t *testing.T) {
	store, _, _ := newLoadedStore(t)

	require.Equal(t, []string{"deck"}, store.Presets())

	body := store.Prompts("deck")
	require.Len(t, body, 3)
	// The scan orders body fragments by name.
	assert.Equal(t, "Omitted", body[0].Name)
	assert.Equal(t, "Persona", body[1].Name)
	assert.Equal(t, "Style", body[2].Name)

	prefix := store.Prefix("deck")
	assert.Contains(t, prefix, "You are helpful.")
}

func TestRefreshIsIdempotent(t *testing.T) {
	store, _, _ := newLoadedStore(t)
	namesBefore := fragmentNames(store.Prompts("deck"))
	prefixBefore := store.Prefix("deck")

	require.NoError(t, store.Refresh())

	assert.Equal(t, namesBefore, fragmentNames(store.Prompts("deck")))
	assert.Equal(t, prefixBefore, store.Prefix("deck"))
}

func TestRefreshKeepsUserFragments(t *testing.T) {
	store, _, _ := newLoadedStore(t)
	_, err := store.AddFragment("deck", "My Note", "remember this")
	require.NoError(t, err)

	require.NoError(t, store.Refresh())
	assert.Contains(t, fragmentNames(store.Prompts("deck")), "My Note")
}

func fragmentNames(fragments []*Fragment) []string {
	names := make([]string, 0, len(fragments))
	for _, f := range fragments {
		names = append(names, f.Name)
	}
	return names
}

func TestLoadFailsWithNothingToLoad(t *testing.T) {
	sources := t.TempDir()
	output := t.TempDir()
	store := NewStore(output, newTestExtractor(t, sources, output), nil)
	assert.Error(t, store.Load())
}

func TestLoadWithoutExtractorReadsExistingTree(t *testing.T) {
	store, _, output := newLoadedStore(t)
	_ = store

	reload := NewStore(output, nil, nil)
	require.NoError(t, reload.Load())
	assert.Equal(t, []string{"deck"}, reload.Presets())
}

func TestLoadAssignsStableIDs(t *testing.T) {
	store, _, output := newLoadedStore(t)
	first := store.Prompts("deck")

	reload := NewStore(output, nil, nil)
	require.NoError(t, reload.Load())
	second := reload.Prompts("deck")

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID, "IDs must survive a reload")
	}
}

func TestLoadIgnoresExtraPrefixRecord(t *testing.T) {
	store, _, output := newLoadedStore(t)
	_ = store

	// A second record claiming is_prefix must not displace the reserved one
	// or show up in the body.
	extra := &Fragment{Name: "Rogue", Content: "rogue prefix", IsPrefix: true, File: "Rogue.json"}
	require.NoError(t, writeFragmentFile(filepath.Join(output, "deck", "Rogue.json"), extra))

	reload := NewStore(output, nil, nil)
	require.NoError(t, reload.Load())

	assert.Len(t, reload.Prompts("deck"), 3)
}

func TestPromptsUnknownPreset(t *testing.T) {
	store, _, _ := newLoadedStore(t)
	assert.Empty(t, store.Prompts("nope"))
	assert.Equal(t, "", store.Prefix("nope"))
	assert.False(t, store.Has("nope"))
}

func TestCreatePreset(t *testing.T) {
	store, _, output := newLoadedStore(t)

	require.NoError(t, store.Create("fresh"))
	assert.True(t, store.Has("fresh"))
	assert.Empty(t, store.Prompts("fresh"))

	info, err := os.Stat(filepath.Join(output, "fresh"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.ErrorIs(t, store.Create("fresh"), ErrPresetExists)
	assert.ErrorIs(t, store.Create(""), ErrEmptyField)
}

func TestAddFragment(t *testing.T) {
	store, _, output := newLoadedStore(t)

	f, err := store.AddFragment("deck", "My Note", "remember this")
	require.NoError(t, err)
	assert.True(t, f.UserCreated)

	_, err = os.Stat(filepath.Join(output, "deck", f.File))
	assert.NoError(t, err)

	body := store.Prompts("deck")
	require.Len(t, body, 4)
	assert.Equal(t, "My Note", body[3].Name, "user fragments append at the end")
}

func TestAddFragmentValidation(t *testing.T) {
	store, _, _ := newLoadedStore(t)

	_, err := store.AddFragment("deck", "", "content")
	assert.ErrorIs(t, err, ErrEmptyField)
	_, err = store.AddFragment("deck", "name", "")
	assert.ErrorIs(t, err, ErrEmptyField)
	_, err = store.AddFragment("nope", "name", "content")
	assert.ErrorIs(t, err, ErrPresetNotFound)
}

func TestAddFragmentSurvivesReload(t *testing.T) {
	store, _, output := newLoadedStore(t)
	_, err := store.AddFragment("deck", "My Note", "remember this")
	require.NoError(t, err)

	reload := NewStore(output, nil, nil)
	require.NoError(t, reload.Load())

	var found *Fragment
	for _, f := range reload.Prompts("deck") {
		if f.Name == "My Note" {
			found = f
		}
	}
	require.NotNil(t, found)
	assert.True(t, found.UserCreated)
	assert.NotNil(t, found.CreatedAt)
}

func TestDeleteFragment(t *testing.T) {
	store, _, output := newLoadedStore(t)
	added, err := store.AddFragment("deck", "My Note", "remember this")
	require.NoError(t, err)

	body := store.Prompts("deck")
	deleted, err := store.DeleteFragment("deck", len(body)-1)
	require.NoError(t, err)
	assert.Equal(t, added.ID, deleted.ID)

	_, err = os.Stat(filepath.Join(output, "deck", added.File))
	assert.True(t, os.IsNotExist(err))
	assert.Len(t, store.Prompts("deck"), 3)
}

func TestDeleteFragmentRejectsExtracted(t *testing.T) {
	store, _, _ := newLoadedStore(t)

	_, err := store.DeleteFragment("deck", 0)
	assert.ErrorIs(t, err, ErrNotUserCreated)
	assert.Len(t, store.Prompts("deck"), 3, "failed delete leaves the body unchanged")
}

func TestDeleteFragmentIndexOutOfRange(t *testing.T) {
	store, _, _ := newLoadedStore(t)

	_, err := store.DeleteFragment("deck", 99)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = store.DeleteFragment("deck", -1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}
