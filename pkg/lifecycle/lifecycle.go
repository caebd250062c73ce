// Package lifecycle is the public facade of the skill engine. A Manager
// owns the full pipeline: generation, validation, fingerprint dedup,
// versioned persistence, isolated execution, the reflection repair loop,
// and the execution journal. Embedding applications and the CLI talk to
// this package only.
package lifecycle

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/autoskill-ai/autoskill/pkg/backend"
	"github.com/autoskill-ai/autoskill/pkg/executor"
	"github.com/autoskill-ai/autoskill/pkg/fingerprint"
	"github.com/autoskill-ai/autoskill/pkg/generator"
	"github.com/autoskill-ai/autoskill/pkg/isolation"
	"github.com/autoskill-ai/autoskill/pkg/journal"
	"github.com/autoskill-ai/autoskill/pkg/logger"
	"github.com/autoskill-ai/autoskill/pkg/persistence"
	"github.com/autoskill-ai/autoskill/pkg/reflection"
	"github.com/autoskill-ai/autoskill/pkg/registry"
	"github.com/autoskill-ai/autoskill/pkg/templates"
	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
	"github.com/autoskill-ai/autoskill/pkg/validator"
)

// Manager orchestrates the skill lifecycle. Safe for concurrent use;
// mutations of the same skill serialize on a per-name lock.
type Manager struct {
	store     *persistence.Store
	registry  *registry.Registry
	index     *fingerprint.Index
	templates *templates.Registry
	generator *generator.Generator
	isolation *isolation.Manager
	journal   *journal.Journal

	// mu guards config, executor, and reflector, which are swapped
	// together when the default isolation level changes.
	mu        sync.RWMutex
	config    skilltypes.Config
	executor  *executor.Executor
	reflector *reflection.Engine

	nameMu sync.Mutex
	names  map[string]*sync.Mutex
}

// New builds a fully wired manager. The backend provides both completions
// and embeddings; config.SkillsDir must be set.
func New(config skilltypes.Config, b backend.Backend) (*Manager, error) {
	if config.SkillsDir == "" {
		return nil, errors.New("skills directory is required")
	}

	store, err := persistence.NewStore(config.SkillsDir)
	if err != nil {
		return nil, err
	}
	reg, err := registry.NewRegistry(store)
	if err != nil {
		return nil, err
	}
	index, err := fingerprint.NewIndex(config.SkillsDir, b, config.FingerprintTopK)
	if err != nil {
		return nil, err
	}
	tmpl, err := templates.NewRegistry(config.TemplatesDir)
	if err != nil {
		return nil, err
	}
	val, err := validator.New(config.Security)
	if err != nil {
		return nil, err
	}

	journalPath := config.JournalPath
	if journalPath == "" {
		journalPath = filepath.Join(config.SkillsDir, "journal.db")
	}
	jnl, err := journal.Open(journalPath)
	if err != nil {
		return nil, err
	}

	isoManager := isolation.NewManager(filepath.Join(config.SkillsDir, ".venvs"), config.Interpreter)
	exec := executor.New(isoManager, config)
	gen := generator.New(b, val, tmpl, index, config)

	return &Manager{
		config:    config,
		store:     store,
		registry:  reg,
		index:     index,
		templates: tmpl,
		generator: gen,
		isolation: isoManager,
		executor:  exec,
		reflector: reflection.New(gen, exec, config.MaxReflectionRounds),
		journal:   jnl,
		names:     make(map[string]*sync.Mutex),
	}, nil
}

func (m *Manager) lockName(name string) func() {
	m.nameMu.Lock()
	lock, ok := m.names[name]
	if !ok {
		lock = &sync.Mutex{}
		m.names[name] = lock
	}
	m.nameMu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// CreateSkill synthesizes, validates, persists, and registers a new skill.
// A near-duplicate description fails with DuplicateSkillError unless the
// request forces regeneration; a forced regeneration creates a new skill
// and leaves the existing one untouched. A fingerprinting failure rolls
// the persisted skill back, except when the backend has no embedding
// support or the request forced past dedup.
func (m *Manager) CreateSkill(ctx context.Context, req generator.Request) (*skilltypes.Skill, error) {
	unlock := m.lockName(req.Name)
	defer unlock()

	if m.registry.Exists(req.Name) {
		return nil, skilltypes.NewError(skilltypes.ErrDuplicateSkill, "skill %q already exists; use UpdateSkill to regenerate it", req.Name)
	}

	sk, err := m.generator.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	version, err := m.store.Save(sk, "initial generation")
	if err != nil {
		return nil, err
	}
	sk.Version = version

	if err := m.index.Add(ctx, sk.Name, req.Description); err != nil {
		if errors.Is(err, backend.ErrEmbeddingUnsupported) || req.Force {
			logger.G(ctx).WithError(err).WithField("skill", sk.Name).Warn("skipping fingerprint for new skill")
		} else {
			// An unfingerprinted active skill would dodge future dedup,
			// so the save is rolled back.
			if delErr := m.store.Delete(sk.Name); delErr != nil {
				logger.G(ctx).WithError(delErr).WithField("skill", sk.Name).Error("failed to roll back unfingerprinted skill")
			}
			return nil, skilltypes.WrapError(skilltypes.ErrGeneration, err, "failed to fingerprint skill %q", sk.Name)
		}
	}

	m.registry.Register(sk)
	logger.G(ctx).WithField("skill", sk.Name).WithField("version", version).Info("skill created")
	return sk, nil
}

// ExecuteSkill runs a registered skill. Unknown names fail with
// SkillNotFound unless auto-create is enabled, in which case the name is
// used as the task description for synthesis. A runtime failure triggers
// the reflection repair loop; a successful repair is persisted as a new
// version before the result is returned. When repair is exhausted the
// last failing result is returned together with a ReflectionExhausted
// error.
func (m *Manager) ExecuteSkill(ctx context.Context, name string, parameters map[string]any) (*skilltypes.ExecutionResult, error) {
	m.mu.RLock()
	autoCreate := m.config.AutoCreate
	maxRounds := m.config.MaxReflectionRounds
	exec := m.executor
	reflector := m.reflector
	m.mu.RUnlock()

	sk, err := m.registry.Lookup(name)
	if err != nil {
		if !autoCreate || !skilltypes.IsKind(err, skilltypes.ErrSkillNotFound) {
			return nil, err
		}
		sk, err = m.CreateSkill(ctx, generator.Request{Name: name, Description: name})
		if err != nil {
			return nil, err
		}
	}

	result, err := exec.Execute(ctx, sk, parameters)
	if err != nil {
		return nil, err
	}
	m.record(ctx, sk.Version, result)

	if result.Success || result.Error == nil || result.Error.Kind != skilltypes.ErrExecution {
		return result, nil
	}
	if maxRounds <= 0 {
		return result, nil
	}

	outcome, repairErr := reflector.Repair(ctx, sk, parameters, result.Error)
	if outcome != nil && outcome.Result != nil {
		result = outcome.Result
	}
	if repairErr != nil {
		if outcome != nil && outcome.Result != nil {
			m.record(ctx, sk.Version, outcome.Result)
		}
		return result, repairErr
	}

	// The repaired run is journaled under the version it is persisted as,
	// so usage history lines up with the code that actually ran.
	recordVersion := sk.Version
	if outcome.Repaired {
		unlock := m.lockName(name)
		version, err := m.store.Save(outcome.Skill, "reflection repair")
		if err == nil {
			outcome.Skill.Version = version
			m.registry.Register(outcome.Skill)
			recordVersion = version
		} else {
			logger.G(ctx).WithError(err).WithField("skill", name).Error("failed to persist repaired skill")
		}
		unlock()
	}
	if outcome.Result != nil {
		m.record(ctx, recordVersion, outcome.Result)
	}
	return result, nil
}

// UpdateSkill regenerates an existing skill from a new task description
// and persists the result as the next version. Dedup is skipped: the
// caller explicitly wants this skill rewritten.
func (m *Manager) UpdateSkill(ctx context.Context, name, description string) (*skilltypes.Skill, error) {
	unlock := m.lockName(name)
	defer unlock()

	existing, err := m.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	req := generator.Request{
		Name:           name,
		Description:    description,
		Template:       existing.Template,
		IsolationLevel: existing.IsolationLevel,
		Force:          true,
	}
	sk, err := m.generator.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	version, err := m.store.Save(sk, "updated: "+description)
	if err != nil {
		return nil, err
	}
	sk.Version = version

	if err := m.index.Remove(name); err != nil {
		logger.G(ctx).WithError(err).WithField("skill", name).Warn("failed to drop stale skill fingerprint")
	} else if err := m.index.Add(ctx, name, description); err != nil {
		logger.G(ctx).WithError(err).WithField("skill", name).Warn("failed to refresh skill fingerprint")
	}

	m.registry.Register(sk)
	logger.G(ctx).WithField("skill", name).WithField("version", version).Info("skill updated")
	return sk, nil
}

// DeleteSkill removes a skill: all persisted versions, its fingerprint,
// journal entries, registry entry, and any cached virtual environment.
func (m *Manager) DeleteSkill(ctx context.Context, name string) error {
	unlock := m.lockName(name)
	defer unlock()

	if err := m.store.Delete(name); err != nil {
		return err
	}
	m.registry.Remove(name)
	if err := m.index.Remove(name); err != nil {
		logger.G(ctx).WithError(err).WithField("skill", name).Warn("failed to remove skill fingerprint")
	}
	if err := m.journal.Prune(ctx, name); err != nil {
		logger.G(ctx).WithError(err).WithField("skill", name).Warn("failed to prune journal entries")
	}
	if venv, err := m.isolation.Get(isolation.LevelVenv); err == nil {
		if cleaner, ok := venv.(interface{ Cleanup(string) error }); ok {
			if err := cleaner.Cleanup(name); err != nil {
				logger.G(ctx).WithError(err).WithField("skill", name).Warn("failed to remove cached environment")
			}
		}
	}
	logger.G(ctx).WithField("skill", name).Info("skill deleted")
	return nil
}

// RestoreSkill rolls a skill back by re-saving an old version as the next
// one, then re-registers it.
func (m *Manager) RestoreSkill(ctx context.Context, name string, version int) (*skilltypes.Skill, error) {
	unlock := m.lockName(name)
	defer unlock()

	sk, err := m.store.Restore(name, version)
	if err != nil {
		return nil, err
	}
	m.registry.Register(sk)
	logger.G(ctx).WithField("skill", name).WithField("restored_from", version).Info("skill restored")
	return sk, nil
}

// ListSkills returns summaries of all registered skills, sorted by name.
func (m *Manager) ListSkills() []skilltypes.Info {
	return m.registry.List()
}

// SkillDetail is the full picture of one skill: its summary, version
// history, and usage statistics.
type SkillDetail struct {
	Info     skilltypes.Info             `json:"info"`
	Code     string                      `json:"code"`
	Versions []persistence.VersionRecord `json:"versions"`
	Usage    *journal.UsageStats         `json:"usage"`
}

// GetSkillInfo assembles the detail view of one skill.
func (m *Manager) GetSkillInfo(ctx context.Context, name string) (*SkillDetail, error) {
	sk, err := m.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	versions, err := m.store.Versions(name)
	if err != nil {
		return nil, err
	}
	usage, err := m.journal.Stats(ctx, name)
	if err != nil {
		return nil, err
	}
	return &SkillDetail{
		Info:     skilltypes.InfoOf(sk),
		Code:     sk.Code,
		Versions: versions,
		Usage:    usage,
	}, nil
}

// SetSkillStatus changes a skill's lifecycle status (for example to
// quarantine a misbehaving skill). The change is persisted as a new
// version.
func (m *Manager) SetSkillStatus(ctx context.Context, name string, status skilltypes.Status) (*skilltypes.Skill, error) {
	unlock := m.lockName(name)
	defer unlock()

	existing, err := m.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	updated := *existing
	updated.Status = status
	version, err := m.store.Save(&updated, "status changed to "+string(status))
	if err != nil {
		return nil, err
	}
	updated.Version = version
	m.registry.Register(&updated)
	return &updated, nil
}

// ReloadSkills re-reads the skills directory and reconciles the registry.
func (m *Manager) ReloadSkills() error {
	return m.registry.Reload()
}

// Watch starts reloading the registry automatically on filesystem changes.
func (m *Manager) Watch(ctx context.Context) error {
	return m.registry.Watch(ctx)
}

// IsolationLevel returns the default isolation level.
func (m *Manager) IsolationLevel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.IsolationLevel
}

// SetIsolationLevel changes the default isolation level for subsequent
// executions. The level must name a registered strategy.
func (m *Manager) SetIsolationLevel(level string) error {
	if _, err := m.isolation.Get(level); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.IsolationLevel = level
	m.executor = executor.New(m.isolation, m.config)
	m.reflector = reflection.New(m.generator, m.executor, m.config.MaxReflectionRounds)
	return nil
}

// SkillIsolation returns the effective isolation level of one skill.
func (m *Manager) SkillIsolation(name string) (string, error) {
	sk, err := m.registry.Lookup(name)
	if err != nil {
		return "", err
	}
	if sk.IsolationLevel == "" {
		return m.IsolationLevel(), nil
	}
	return sk.IsolationLevel, nil
}

// SetSkillIsolation pins a skill to an isolation level, persisted as a new
// version.
func (m *Manager) SetSkillIsolation(ctx context.Context, name, level string) (*skilltypes.Skill, error) {
	if _, err := m.isolation.Get(level); err != nil {
		return nil, err
	}

	unlock := m.lockName(name)
	defer unlock()

	existing, err := m.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	updated := *existing
	updated.IsolationLevel = level
	version, err := m.store.Save(&updated, "isolation set to "+level)
	if err != nil {
		return nil, err
	}
	updated.Version = version
	m.registry.Register(&updated)
	return &updated, nil
}

// RegisterStrategy adds a custom isolation strategy at runtime.
func (m *Manager) RegisterStrategy(s isolation.Strategy) {
	m.isolation.Register(s)
}

// Strategies lists the registered isolation strategy names.
func (m *Manager) Strategies() []string {
	return m.isolation.Names()
}

// ListTemplates returns the available prompt templates.
func (m *Manager) ListTemplates() []templates.Template {
	return m.templates.List()
}

// UsageHistory returns the most recent executions of a skill.
func (m *Manager) UsageHistory(ctx context.Context, name string, limit int) ([]journal.Entry, error) {
	return m.journal.History(ctx, name, limit)
}

// Close releases the journal, the registry watcher, and cached
// environments.
func (m *Manager) Close() error {
	var firstErr error
	if err := m.registry.Close(); err != nil {
		firstErr = err
	}
	if err := m.journal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.isolation.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (m *Manager) record(ctx context.Context, version int, result *skilltypes.ExecutionResult) {
	if err := m.journal.Record(ctx, version, result); err != nil {
		logger.G(ctx).WithError(err).WithField("skill", result.SkillName).Warn("failed to journal execution")
	}
}
