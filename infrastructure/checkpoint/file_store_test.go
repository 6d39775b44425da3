package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scoredRecord struct {
	ItemID    string  `json:"item_id"`
	Composite float64 `json:"composite"`
}

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	saved := []scoredRecord{
		{ItemID: "a1", Composite: 0.82},
		{ItemID: "b2", Composite: 0.64},
	}
	require.NoError(t, store.Save("scoring", saved))

	var loaded []scoredRecord
	found, err := store.Load("scoring", &loaded)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, saved, loaded)
}

func TestFileStoreLoadAbsentStage(t *testing.T) {
	store := newTestStore(t)

	var out []scoredRecord
	found, err := store.Load("scoring", &out)
	require.NoError(t, err)
	assert.False(t, found, "absent stage must report found=false, not an error")
	assert.Empty(t, out)
}

func TestFileStoreAbsentDistinctFromEmpty(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("scoring", []scoredRecord{}))

	var out []scoredRecord
	found, err := store.Load("scoring", &out)
	require.NoError(t, err)
	assert.True(t, found, "a saved empty record is present, not absent")
	assert.Empty(t, out)
}

func TestFileStoreSaveOverwrites(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("scoring", []scoredRecord{{ItemID: "a1", Composite: 0.5}}))
	require.NoError(t, store.Save("scoring", []scoredRecord{{ItemID: "b2", Composite: 0.9}}))

	var out []scoredRecord
	found, err := store.Load("scoring", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, out, 1)
	assert.Equal(t, "b2", out[0].ItemID)
}

func TestFileStoreClear(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("analysis", map[string]int{"done": 3}))
	require.NoError(t, store.Clear("analysis"))

	var out map[string]int
	found, err := store.Load("analysis", &out)
	require.NoError(t, err)
	assert.False(t, found)

	// Clearing again is a no-op.
	require.NoError(t, store.Clear("analysis"))
}

func TestFileStoreCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "scoring.json"), []byte("{not json"), 0o644))

	var out []scoredRecord
	_, err = store.Load("scoring", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt checkpoint")
}

func TestFileStoreRejectsBadStageNames(t *testing.T) {
	store := newTestStore(t)

	for _, stage := range []string{"", "../escape", "a/b", `a\b`} {
		assert.Error(t, store.Save(stage, nil), "stage %q should be rejected", stage)
	}
}

func TestFileStoreNoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save("scoring", []scoredRecord{{ItemID: "a1"}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "scoring.json", entries[0].Name())
}

func TestFileStoreIndependentStages(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("analysis", map[string]string{"phase": "done"}))
	require.NoError(t, store.Save("scoring", []scoredRecord{{ItemID: "a1"}}))
	require.NoError(t, store.Clear("analysis"))

	var scores []scoredRecord
	found, err := store.Load("scoring", &scores)
	require.NoError(t, err)
	assert.True(t, found, "clearing one stage must not touch another")
}
