package isolation

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"github.com/autoskill-ai/autoskill/pkg/logger"
	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

const (
	venvProvisionAttempts = 3
	venvProvisionDelay    = time.Second
	venvProvisionTimeout  = 5 * time.Minute
)

// VenvStrategy provisions one virtual environment per skill and installs
// the skill's declared dependencies into it. Environments are cached on
// disk and reused across executions; a change in the dependency set
// triggers a reinstall into the same environment.
type VenvStrategy struct {
	dir         string
	interpreter string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewVenvStrategy creates the "venv" isolation strategy rooted at dir.
func NewVenvStrategy(dir, interpreter string) *VenvStrategy {
	return &VenvStrategy{
		dir:         dir,
		interpreter: interpreter,
		locks:       make(map[string]*sync.Mutex),
	}
}

func (s *VenvStrategy) Name() string {
	return LevelVenv
}

func (s *VenvStrategy) Execute(ctx context.Context, spec ExecSpec) *skilltypes.ExecutionResult {
	venvPython, err := s.provision(ctx, spec)
	if err != nil {
		return &skilltypes.ExecutionResult{
			SkillName: spec.SkillName,
			Isolation: LevelVenv,
			Error: &skilltypes.ExecutionError{
				Kind:    skilltypes.ErrEnvironmentProvision,
				Message: err.Error(),
			},
		}
	}
	return runSkill(ctx, venvPython, spec, LevelVenv)
}

// Close removes nothing: cached environments survive so later runs can
// reuse them. Cleanup removes them explicitly.
func (s *VenvStrategy) Close() error {
	return nil
}

// Cleanup deletes the cached environment for a skill. Missing environments
// are fine.
func (s *VenvStrategy) Cleanup(name string) error {
	lock := s.skillLock(name)
	lock.Lock()
	defer lock.Unlock()
	if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
		return errors.Wrapf(err, "failed to remove environment for %q", name)
	}
	return nil
}

func (s *VenvStrategy) skillLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[name] = lock
	}
	return lock
}

// provision ensures the skill's environment exists with its dependencies
// installed and returns the path of the environment's interpreter.
func (s *VenvStrategy) provision(ctx context.Context, spec ExecSpec) (string, error) {
	lock := s.skillLock(spec.SkillName)
	lock.Lock()
	defer lock.Unlock()

	venvDir := filepath.Join(s.dir, spec.SkillName)
	venvPython := venvInterpreter(venvDir)
	depsMarker := filepath.Join(venvDir, ".deps")
	wantDeps := depsDigest(spec.Dependencies)

	if _, err := os.Stat(venvPython); err == nil {
		if have, err := os.ReadFile(depsMarker); err == nil && string(have) == wantDeps {
			return venvPython, nil
		}
	} else {
		if err := s.createVenv(ctx, venvDir); err != nil {
			return "", err
		}
	}

	if len(spec.Dependencies) > 0 {
		if err := s.installDeps(ctx, venvPython, spec.Dependencies); err != nil {
			return "", err
		}
	}
	if err := os.WriteFile(depsMarker, []byte(wantDeps), 0o644); err != nil {
		return "", skilltypes.WrapError(skilltypes.ErrEnvironmentProvision, err, "failed to record installed dependencies")
	}
	return venvPython, nil
}

func (s *VenvStrategy) createVenv(ctx context.Context, venvDir string) error {
	interpreter := s.interpreter
	if interpreter == "" {
		interpreter = "python3"
	}
	err := retry.Do(
		func() error {
			// A failed create leaves a broken tree; start clean each attempt.
			if err := os.RemoveAll(venvDir); err != nil {
				return err
			}
			return runProvisionCommand(ctx, interpreter, "-m", "venv", venvDir)
		},
		retry.Attempts(venvProvisionAttempts),
		retry.Delay(venvProvisionDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("virtual environment creation failed, retrying")
		}),
	)
	if err != nil {
		return skilltypes.WrapError(skilltypes.ErrEnvironmentProvision, err, "failed to create virtual environment at %s", venvDir)
	}
	return nil
}

func (s *VenvStrategy) installDeps(ctx context.Context, venvPython string, deps []string) error {
	args := append([]string{"-m", "pip", "install", "--quiet"}, deps...)
	err := retry.Do(
		func() error {
			return runProvisionCommand(ctx, venvPython, args...)
		},
		retry.Attempts(venvProvisionAttempts),
		retry.Delay(venvProvisionDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("dependency install failed, retrying")
		}),
	)
	if err != nil {
		return skilltypes.WrapError(skilltypes.ErrEnvironmentProvision, err, "failed to install dependencies %s", strings.Join(deps, ", "))
	}
	return nil
}

func runProvisionCommand(ctx context.Context, bin string, args ...string) error {
	cmdCtx, cancel := context.WithTimeout(ctx, venvProvisionTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, bin, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	setSysProcAttr(cmd)
	setCancelFunc(cmd)
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "%s %s: %s", bin, strings.Join(args, " "), strings.TrimSpace(output.String()))
	}
	return nil
}

func venvInterpreter(venvDir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venvDir, "Scripts", "python.exe")
	}
	return filepath.Join(venvDir, "bin", "python")
}

// depsDigest is order-insensitive so a reordered requirements list does not
// force a reinstall.
func depsDigest(deps []string) string {
	sorted := make([]string, len(deps))
	copy(sorted, deps)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}
