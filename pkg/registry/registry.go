// Package registry keeps the in-memory catalog of loaded skills. The
// persistence store is the durable source of truth; the registry is a cache
// over it that supports fast lookups and explicit reconciliation via Reload.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/autoskill-ai/autoskill/pkg/logger"
	"github.com/autoskill-ai/autoskill/pkg/persistence"
	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

// Registry is the in-memory skill catalog. Reads proceed concurrently;
// mutations swap entries under a short write lock so lookups never block
// behind a store round-trip.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*skilltypes.Skill
	store  *persistence.Store

	watcherMu sync.Mutex
	watcher   *fsnotify.Watcher
	done      chan struct{}
}

// NewRegistry builds a registry and populates it from the store.
func NewRegistry(store *persistence.Store) (*Registry, error) {
	r := &Registry{
		skills: make(map[string]*skilltypes.Skill),
		store:  store,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register inserts or replaces a skill in the catalog.
func (r *Registry) Register(sk *skilltypes.Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[sk.Name] = sk
}

// Lookup returns the current in-memory skill for a name.
func (r *Registry) Lookup(name string) (*skilltypes.Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sk, ok := r.skills[name]
	if !ok {
		return nil, skilltypes.NewError(skilltypes.ErrSkillNotFound, "skill %q not found", name)
	}
	return sk, nil
}

// Exists reports whether a name is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.skills[name]
	return ok
}

// List returns summaries of all registered skills, sorted by name.
func (r *Registry) List() []skilltypes.Info {
	r.mu.RLock()
	infos := make([]skilltypes.Info, 0, len(r.skills))
	for _, sk := range r.skills {
		infos = append(infos, skilltypes.InfoOf(sk))
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Remove drops a skill from the catalog. Removing an absent name is a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.skills, name)
}

// Len returns the number of registered skills.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills)
}

// Reload re-reads the persistence store and reconciles the catalog: skills
// removed on disk are dropped, skills added on disk are loaded, and version
// mismatches resolve in favor of the on-disk version.
func (r *Registry) Reload() error {
	skills, err := r.store.List()
	if err != nil {
		return errors.Wrap(err, "failed to list skills from store")
	}

	fresh := make(map[string]*skilltypes.Skill, len(skills))
	for _, sk := range skills {
		fresh[sk.Name] = sk
	}

	r.mu.Lock()
	r.skills = fresh
	r.mu.Unlock()
	return nil
}

// Watch starts an fsnotify watcher on the skills directory and reloads the
// catalog when files change on disk. Events are debounced so a burst of
// writes triggers one reload. Watch returns immediately; Close stops it.
func (r *Registry) Watch(ctx context.Context) error {
	r.watcherMu.Lock()
	defer r.watcherMu.Unlock()
	if r.watcher != nil {
		return errors.New("registry watcher already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create filesystem watcher")
	}
	if err := watcher.Add(r.store.Dir()); err != nil {
		watcher.Close()
		return errors.Wrap(err, "failed to watch skills directory")
	}

	r.watcher = watcher
	r.done = make(chan struct{})

	go r.watchLoop(ctx, watcher, r.done)
	return nil
}

func (r *Registry) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	const debounce = 200 * time.Millisecond
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.G(ctx).WithError(err).Warn("skills directory watcher error")
		case <-timerC:
			if err := r.Reload(); err != nil {
				logger.G(ctx).WithError(err).Warn("failed to reload skills after filesystem change")
			}
		}
	}
}

// Close stops the watcher if one is running.
func (r *Registry) Close() error {
	r.watcherMu.Lock()
	defer r.watcherMu.Unlock()
	if r.watcher == nil {
		return nil
	}
	close(r.done)
	err := r.watcher.Close()
	r.watcher = nil
	r.done = nil
	return err
}
