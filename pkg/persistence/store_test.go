package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

func newTestSkill(name string) *skilltypes.Skill {
	return &skilltypes.Skill{
		Name:         name,
		Description:  "a test skill",
		Code:         "def execute(parameters):\n    return {\"success\": True}\n",
		Dependencies: []string{"numpy"},
		Parameters:   json.RawMessage(`{"type":"object","properties":{}}`),
	}
}

func TestSaveAssignsGaplessVersions(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	sk := newTestSkill("versioned")
	v1, err := store.Save(sk, "initial")
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	sk.Code = "def execute(parameters):\n    return {\"success\": True, \"result\": 2}\n"
	v2, err := store.Save(sk, "second")
	require.NoError(t, err)
	assert.Equal(t, 2, v2)
	assert.Equal(t, 2, store.CurrentVersion("versioned"))

	records, err := store.Versions("versioned")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Version)
	assert.Equal(t, 2, records[1].Version)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	original := newTestSkill("roundtrip")
	original.EntryPoint = "handle"
	_, err = store.Save(original, "initial")
	require.NoError(t, err)

	loaded, err := store.Load("roundtrip", 0)
	require.NoError(t, err)
	assert.Equal(t, original.Code, loaded.Code)
	assert.Equal(t, original.Description, loaded.Description)
	assert.Equal(t, original.Dependencies, loaded.Dependencies)
	assert.Equal(t, "handle", loaded.EntryPoint)
	assert.Equal(t, 1, loaded.Version)
	assert.Equal(t, skilltypes.StatusActive, loaded.Status)
	assert.JSONEq(t, string(original.Parameters), string(loaded.Parameters))
}

func TestLoadSpecificVersion(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	sk := newTestSkill("history")
	firstCode := sk.Code
	_, err = store.Save(sk, "v1")
	require.NoError(t, err)

	sk.Code = "def execute(parameters):\n    return {\"success\": False}\n"
	_, err = store.Save(sk, "v2")
	require.NoError(t, err)

	old, err := store.Load("history", 1)
	require.NoError(t, err)
	assert.Equal(t, firstCode, old.Code)
	assert.Equal(t, 1, old.Version)

	_, err = store.Load("history", 9)
	require.Error(t, err)
	assert.True(t, skilltypes.IsKind(err, skilltypes.ErrSkillNotFound))
}

func TestLoadUnknownSkill(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("nope", 0)
	require.Error(t, err)
	assert.True(t, skilltypes.IsKind(err, skilltypes.ErrSkillNotFound))
}

func TestDeleteRemovesAllVersions(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	sk := newTestSkill("doomed")
	_, err = store.Save(sk, "")
	require.NoError(t, err)
	_, err = store.Save(sk, "")
	require.NoError(t, err)

	require.NoError(t, store.Delete("doomed"))
	assert.Equal(t, 0, store.CurrentVersion("doomed"))
	assert.NoDirExists(t, filepath.Join(dir, "doomed"))

	err = store.Delete("doomed")
	require.Error(t, err)
	assert.True(t, skilltypes.IsKind(err, skilltypes.ErrSkillNotFound))
}

func TestListSortedByName(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := store.Save(newTestSkill(name), "")
		require.NoError(t, err)
	}

	skills, err := store.List()
	require.NoError(t, err)
	require.Len(t, skills, 3)
	assert.Equal(t, "alpha", skills[0].Name)
	assert.Equal(t, "mid", skills[1].Name)
	assert.Equal(t, "zeta", skills[2].Name)
}

func TestRestoreAppendsNewVersion(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	sk := newTestSkill("rollback")
	goodCode := sk.Code
	_, err = store.Save(sk, "good")
	require.NoError(t, err)

	sk.Code = "def execute(parameters):\n    raise RuntimeError()\n"
	_, err = store.Save(sk, "bad")
	require.NoError(t, err)

	restored, err := store.Restore("rollback", 1)
	require.NoError(t, err)
	assert.Equal(t, goodCode, restored.Code)

	latest, err := store.Load("rollback", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)
	assert.Equal(t, goodCode, latest.Code)
}

func TestIndexRebuiltWhenMissing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	_, err = store.Save(newTestSkill("survivor"), "")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "index.json")))

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.CurrentVersion("survivor"))

	loaded, err := reopened.Load("survivor", 0)
	require.NoError(t, err)
	assert.Equal(t, "survivor", loaded.Name)
}

func TestIndexRebuiltWhenCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	_, err = store.Save(newTestSkill("survivor"), "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.json"), []byte("garbage"), 0o644))

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.CurrentVersion("survivor"))
}

func TestConcurrentSavesSameName(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	const writers = 8
	versions := make(chan int, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := store.Save(newTestSkill("contended"), "")
			assert.NoError(t, err)
			versions <- v
		}()
	}
	wg.Wait()
	close(versions)

	// Every writer got a distinct version and together they cover 1..N.
	seen := make(map[int]bool)
	for v := range versions {
		assert.False(t, seen[v], "version %d assigned twice", v)
		seen[v] = true
	}
	for v := 1; v <= writers; v++ {
		assert.True(t, seen[v], "version %d never assigned", v)
	}

	assert.Equal(t, writers, store.CurrentVersion("contended"))
	records, err := store.Versions("contended")
	require.NoError(t, err)
	require.Len(t, records, writers)
	for i, record := range records {
		assert.Equal(t, i+1, record.Version)
	}
}

func TestConcurrentSavesDifferentNames(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	names := []string{"one", "two", "three", "four"}
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				_, err := store.Save(newTestSkill(name), "")
				assert.NoError(t, err)
			}
		}(name)
	}
	wg.Wait()

	for _, name := range names {
		assert.Equal(t, 5, store.CurrentVersion(name))
		records, err := store.Versions(name)
		require.NoError(t, err)
		for i, record := range records {
			assert.Equal(t, i+1, record.Version)
		}
	}
}
