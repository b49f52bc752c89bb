package group

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	r := NewRegistry(dir, nil)
	require.NoError(t, r.LoadFor("deck"))
	return r, dir
}

func TestCreate(t *testing.T) {
	r, dir := newTestRegistry(t)

	kept, err := r.Create("combat", []int{2, 0, 5, 2}, 4)
	require.NoError(t, err)
	// Order preserved, duplicate and out-of-range indices dropped.
	assert.Equal(t, []int{2, 0}, kept)
	assert.Equal(t, []int{2, 0}, r.Get("combat"))

	_, err = os.Stat(filepath.Join(dir, "deck_groups.json"))
	assert.NoError(t, err)
}

func TestCreateErrors(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Create("", []int{0}, 3)
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = r.Create("combat", []int{7, -1}, 3)
	assert.ErrorIs(t, err, ErrNoValidIndices)

	_, err = r.Create("combat", []int{0}, 3)
	require.NoError(t, err)
	_, err = r.Create("combat", []int{1}, 3)
	assert.ErrorIs(t, err, ErrExists)
}

func TestUpdate(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Create("combat", []int{0, 1}, 4)
	require.NoError(t, err)

	kept, err := r.Update("combat", []int{3, 9}, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, kept)
	assert.Equal(t, []int{3}, r.Get("combat"))
}

func TestUpdateAllInvalidYieldsEmptyGroup(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Create("combat", []int{0}, 4)
	require.NoError(t, err)

	kept, err := r.Update("combat", []int{9, 10}, 4)
	require.NoError(t, err)
	assert.Empty(t, kept)
	assert.True(t, r.Has("combat"), "the group survives, just empty")
	assert.Empty(t, r.Get("combat"))
}

func TestUpdateUnknown(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Update("nope", []int{0}, 4)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Create("combat", []int{0}, 4)
	require.NoError(t, err)

	require.NoError(t, r.Delete("combat"))
	assert.False(t, r.Has("combat"))
	assert.ErrorIs(t, r.Delete("combat"), ErrNotFound)
}

func TestPersistenceRoundTrip(t *testing.T) {
	r, dir := newTestRegistry(t)
	_, err := r.Create("combat", []int{2, 0}, 4)
	require.NoError(t, err)
	_, err = r.Create("lore", []int{1}, 4)
	require.NoError(t, err)

	reload := NewRegistry(dir, nil)
	require.NoError(t, reload.LoadFor("deck"))

	assert.Equal(t, []string{"combat", "lore"}, reload.Names())
	assert.Equal(t, []int{2, 0}, reload.Get("combat"))
}

func TestLoadForMissingDocument(t *testing.T) {
	r := NewRegistry(t.TempDir(), nil)
	require.NoError(t, r.LoadFor("deck"))
	assert.Empty(t, r.Names())
}

func TestLoadForReplacesState(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Create("combat", []int{0}, 4)
	require.NoError(t, err)

	// No document exists for the other preset.
	require.NoError(t, r.LoadFor("other"))
	assert.False(t, r.Has("combat"))
}

func TestGetReturnsCopy(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Create("combat", []int{0, 1}, 4)
	require.NoError(t, err)

	got := r.Get("combat")
	got[0] = 99
	assert.Equal(t, []int{0, 1}, r.Get("combat"))
}

func TestResetFor(t *testing.T) {
	r, dir := newTestRegistry(t)
	_, err := r.Create("combat", []int{0}, 4)
	require.NoError(t, err)

	r.ResetFor("fresh")
	assert.Empty(t, r.Names())

	// The persisted document of the previous preset is untouched.
	reload := NewRegistry(dir, nil)
	require.NoError(t, reload.LoadFor("deck"))
	assert.True(t, reload.Has("combat"))
}
