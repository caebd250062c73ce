// Package isolation provides pluggable execution environments for generated
// skill code. Three strategy families exist: "none" runs skills with the
// host interpreter, "venv" provisions a cached virtual environment per skill
// for dependency isolation, and callers may register custom strategies by
// name at runtime.
//
// Every strategy honors the execution timeout, and every spawned resource
// (process group, temp directory) is released on all exit paths, including
// timeout and crashes inside skill code.
package isolation

import (
	"context"
	"sort"
	"sync"
	"time"

	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

// Isolation level names for the built-in strategies.
const (
	LevelNone = "none"
	LevelVenv = "venv"
)

// DefaultEntryPoint is the function looked up in skill code when the
// ExecSpec does not name one.
const DefaultEntryPoint = "execute"

// ExecSpec describes one execution request handed to a strategy.
type ExecSpec struct {
	SkillName    string
	Code         string
	EntryPoint   string
	Parameters   map[string]any
	Dependencies []string
	Timeout      time.Duration
	Interpreter  string
	// MemoryCeiling caps the skill process resident set in bytes.
	// Zero means unlimited.
	MemoryCeiling uint64
}

func (s ExecSpec) entryPoint() string {
	if s.EntryPoint == "" {
		return DefaultEntryPoint
	}
	return s.EntryPoint
}

// Strategy executes skill code inside a particular environment. Execute
// never returns a Go error for skill-level failures; everything is folded
// into the ExecutionResult.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, spec ExecSpec) *skilltypes.ExecutionResult
}

// Manager resolves strategy names to implementations and accepts runtime
// registration of custom strategies.
type Manager struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewManager creates a manager pre-populated with the built-in strategies.
// venvDir is where virtual environments live; interpreter is the host
// interpreter used by "none" and to provision venvs.
func NewManager(venvDir, interpreter string) *Manager {
	m := &Manager{strategies: make(map[string]Strategy)}
	m.strategies[LevelNone] = NewHostStrategy(interpreter)
	m.strategies[LevelVenv] = NewVenvStrategy(venvDir, interpreter)
	return m
}

// Register adds a custom strategy under its name, replacing any previous
// registration.
func (m *Manager) Register(strategy Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[strategy.Name()] = strategy
}

// Get resolves a strategy by name.
func (m *Manager) Get(name string) (Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	strategy, ok := m.strategies[name]
	if !ok {
		return nil, skilltypes.NewError(skilltypes.ErrUnknownIsolation, "isolation strategy %q is not registered", name)
	}
	return strategy, nil
}

// Names lists the registered strategy names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.strategies))
	for name := range m.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases resources held by built-in strategies (cached venvs).
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, strategy := range m.strategies {
		if closer, ok := strategy.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}
