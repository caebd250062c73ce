package isolation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/autoskill-ai/autoskill/pkg/logger"
	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

// runnerScript is the harness written next to the skill source. It loads the
// skill module from its file path, invokes the entry point with the decoded
// parameters, and emits a single JSON envelope on stdout. Bare return values
// are wrapped so the Go side always sees {"success": ..., "result": ...}.
const runnerScript = `import importlib.util
import json
import sys
import traceback


def main():
    skill_path = sys.argv[1]
    entry_point = sys.argv[2]
    parameters = json.loads(sys.argv[3])

    spec = importlib.util.spec_from_file_location("skill", skill_path)
    module = importlib.util.module_from_spec(spec)
    sys.modules["skill"] = module
    spec.loader.exec_module(module)

    fn = getattr(module, entry_point, None)
    if fn is None:
        raise AttributeError("entry point %r not found in skill" % entry_point)

    result = fn(parameters)
    if isinstance(result, dict) and "success" in result:
        envelope = result
    else:
        envelope = {"success": True, "result": result}
    print(json.dumps(envelope, default=str))
    return 0 if envelope.get("success") else 1


if __name__ == "__main__":
    try:
        sys.exit(main())
    except Exception as exc:
        print(json.dumps({
            "success": False,
            "error": str(exc),
            "trace": traceback.format_exc(),
        }))
        sys.exit(1)
`

// runnerEnvelope mirrors the JSON printed by runnerScript.
type runnerEnvelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Trace   string          `json:"trace,omitempty"`
}

// runSkill materializes the skill source and runner harness in a temp
// directory, executes the harness with the given interpreter binary, and
// normalizes the outcome into an ExecutionResult. The temp directory is
// removed on every exit path, and the interpreter's whole process group is
// killed if the context ends first.
func runSkill(ctx context.Context, interpreter string, spec ExecSpec, level string) *skilltypes.ExecutionResult {
	result := &skilltypes.ExecutionResult{
		ID:        uuid.New().String(),
		SkillName: spec.SkillName,
		Isolation: level,
	}

	workDir, err := os.MkdirTemp("", "autoskill-run-*")
	if err != nil {
		result.Error = &skilltypes.ExecutionError{
			Kind:    skilltypes.ErrExecution,
			Message: "failed to create working directory: " + err.Error(),
		}
		return result
	}
	defer os.RemoveAll(workDir)

	skillPath := filepath.Join(workDir, "skill.py")
	runnerPath := filepath.Join(workDir, "runner.py")
	if err := os.WriteFile(skillPath, []byte(spec.Code), 0o644); err == nil {
		err = os.WriteFile(runnerPath, []byte(runnerScript), 0o644)
	}
	if err != nil {
		result.Error = &skilltypes.ExecutionError{
			Kind:    skilltypes.ErrExecution,
			Message: "failed to stage skill code: " + err.Error(),
		}
		return result
	}

	params := spec.Parameters
	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		result.Error = &skilltypes.ExecutionError{
			Kind:    skilltypes.ErrExecution,
			Message: "failed to encode parameters: " + err.Error(),
		}
		return result
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, interpreter, runnerPath, skillPath, spec.entryPoint(), string(paramsJSON))
	cmd.Dir = workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setSysProcAttr(cmd)
	setCancelFunc(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		result.Error = &skilltypes.ExecutionError{
			Kind:    skilltypes.ErrExecution,
			Message: "failed to start interpreter: " + err.Error(),
		}
		return result
	}

	var memExceeded atomic.Bool
	watchdogDone := make(chan struct{})
	if spec.MemoryCeiling > 0 {
		go watchMemory(runCtx, cmd, spec.MemoryCeiling, &memExceeded, watchdogDone)
	} else {
		close(watchdogDone)
	}

	runErr := cmd.Wait()
	result.Duration = time.Since(start)
	<-watchdogDone

	if memExceeded.Load() {
		result.Error = &skilltypes.ExecutionError{
			Kind:    skilltypes.ErrExecution,
			Message: fmt.Sprintf("skill exceeded memory ceiling of %d bytes", spec.MemoryCeiling),
			Trace:   stderr.String(),
		}
		return result
	}

	if runCtx.Err() == context.DeadlineExceeded {
		logger.G(ctx).WithField("skill", spec.SkillName).WithField("timeout", spec.Timeout).Warn("skill execution timed out")
		result.Error = &skilltypes.ExecutionError{
			Kind:    skilltypes.ErrTimeout,
			Message: "execution exceeded timeout of " + spec.Timeout.String(),
			Trace:   stderr.String(),
		}
		return result
	}

	envelope, parseErr := parseEnvelope(stdout.String())
	if parseErr != nil {
		msg := "skill process failed"
		if runErr != nil {
			msg = runErr.Error()
		}
		result.Error = &skilltypes.ExecutionError{
			Kind:    skilltypes.ErrExecution,
			Message: msg,
			Trace:   strings.TrimSpace(stderr.String() + "\n" + stdout.String()),
		}
		return result
	}

	if !envelope.Success {
		result.Error = &skilltypes.ExecutionError{
			Kind:    skilltypes.ErrExecution,
			Message: envelope.Error,
			Trace:   envelope.Trace,
		}
		return result
	}

	result.Success = true
	result.Output = envelope.Result
	return result
}

// watchMemory polls the interpreter's resident set and kills its process
// group when the ceiling is crossed. Polling stops when the process exits
// or the context ends.
func watchMemory(ctx context.Context, cmd *exec.Cmd, ceiling uint64, exceeded *atomic.Bool, done chan struct{}) {
	defer close(done)

	proc, err := process.NewProcess(int32(cmd.Process.Pid))
	if err != nil {
		return
	}
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			running, err := proc.IsRunning()
			if err != nil || !running {
				return
			}
			mem, err := proc.MemoryInfo()
			if err != nil {
				continue
			}
			if mem.RSS > ceiling {
				exceeded.Store(true)
				if cmd.Cancel != nil {
					_ = cmd.Cancel()
				}
				return
			}
		}
	}
}

// parseEnvelope decodes the last non-empty stdout line as the runner
// envelope. Skill code is free to print to stdout before the harness emits
// its final line, so only the last line is authoritative.
func parseEnvelope(stdout string) (*runnerEnvelope, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var envelope runnerEnvelope
		if err := json.Unmarshal([]byte(line), &envelope); err != nil {
			return nil, err
		}
		return &envelope, nil
	}
	return nil, skilltypes.NewError(skilltypes.ErrExecution, "skill process produced no output")
}
