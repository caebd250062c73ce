package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoskill-ai/autoskill/pkg/persistence"
	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

func newStoreWithSkills(t *testing.T, names ...string) *persistence.Store {
	t.Helper()
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)
	for _, name := range names {
		_, err := store.Save(&skilltypes.Skill{
			Name:        name,
			Description: "skill " + name,
			Code:        "def execute(parameters):\n    return {\"success\": True}\n",
		}, "")
		require.NoError(t, err)
	}
	return store
}

func TestNewRegistryLoadsFromStore(t *testing.T) {
	store := newStoreWithSkills(t, "alpha", "beta")
	r, err := NewRegistry(store)
	require.NoError(t, err)

	assert.Equal(t, 2, r.Len())
	sk, err := r.Lookup("alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, sk.Version)
	assert.True(t, r.Exists("beta"))
}

func TestLookupUnknown(t *testing.T) {
	r, err := NewRegistry(newStoreWithSkills(t))
	require.NoError(t, err)

	_, err = r.Lookup("ghost")
	require.Error(t, err)
	assert.True(t, skilltypes.IsKind(err, skilltypes.ErrSkillNotFound))
}

func TestListSorted(t *testing.T) {
	r, err := NewRegistry(newStoreWithSkills(t, "zeta", "alpha"))
	require.NoError(t, err)

	infos := r.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha", infos[0].Name)
	assert.Equal(t, "zeta", infos[1].Name)
}

func TestReloadReconciles(t *testing.T) {
	store := newStoreWithSkills(t, "keeper", "goner")
	r, err := NewRegistry(store)
	require.NoError(t, err)

	// Mutate disk behind the registry's back.
	require.NoError(t, store.Delete("goner"))
	_, err = store.Save(&skilltypes.Skill{
		Name: "newcomer",
		Code: "def execute(parameters):\n    return {\"success\": True}\n",
	}, "")
	require.NoError(t, err)
	_, err = store.Save(&skilltypes.Skill{
		Name: "keeper",
		Code: "def execute(parameters):\n    return {\"success\": True, \"result\": 2}\n",
	}, "")
	require.NoError(t, err)

	require.NoError(t, r.Reload())

	assert.False(t, r.Exists("goner"))
	assert.True(t, r.Exists("newcomer"))

	// Disk version wins.
	keeper, err := r.Lookup("keeper")
	require.NoError(t, err)
	assert.Equal(t, 2, keeper.Version)
}

func TestRegisterAndRemove(t *testing.T) {
	r, err := NewRegistry(newStoreWithSkills(t))
	require.NoError(t, err)

	r.Register(&skilltypes.Skill{Name: "manual", Version: 1})
	assert.True(t, r.Exists("manual"))

	r.Remove("manual")
	assert.False(t, r.Exists("manual"))
	r.Remove("manual") // no-op
}

func TestWatchReloadsOnChange(t *testing.T) {
	store := newStoreWithSkills(t)
	r, err := NewRegistry(store)
	require.NoError(t, err)

	require.NoError(t, r.Watch(context.Background()))
	defer r.Close()

	assert.Error(t, r.Watch(context.Background()), "second watcher refused")

	_, err = store.Save(&skilltypes.Skill{
		Name: "latecomer",
		Code: "def execute(parameters):\n    return {\"success\": True}\n",
	}, "")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return r.Exists("latecomer") }, 3*time.Second, 20*time.Millisecond)
}

func TestCloseWithPendingDebounce(t *testing.T) {
	store := newStoreWithSkills(t)
	r, err := NewRegistry(store)
	require.NoError(t, err)

	require.NoError(t, r.Watch(context.Background()))

	// Queue filesystem events so a debounce timer is armed, then close
	// before it fires.
	for i := 0; i < 3; i++ {
		_, err := store.Save(&skilltypes.Skill{
			Name: "burst",
			Code: "def execute(parameters):\n    return {\"success\": True}\n",
		}, "")
		require.NoError(t, err)
	}
	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "close is idempotent")

	// The watcher can be restarted after a close.
	require.NoError(t, r.Watch(context.Background()))
	require.NoError(t, r.Close())
}
