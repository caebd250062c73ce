package isolation

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

type fakeStrategy struct {
	name string
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Execute(ctx context.Context, spec ExecSpec) *skilltypes.ExecutionResult {
	return &skilltypes.ExecutionResult{SkillName: spec.SkillName, Success: true, Isolation: f.name}
}

func TestManagerBuiltins(t *testing.T) {
	m := NewManager(t.TempDir(), "python3")
	assert.Equal(t, []string{LevelNone, LevelVenv}, m.Names())

	none, err := m.Get(LevelNone)
	require.NoError(t, err)
	assert.Equal(t, LevelNone, none.Name())

	venv, err := m.Get(LevelVenv)
	require.NoError(t, err)
	assert.Equal(t, LevelVenv, venv.Name())
}

func TestManagerUnknownStrategy(t *testing.T) {
	m := NewManager(t.TempDir(), "python3")
	_, err := m.Get("docker")
	require.Error(t, err)
	assert.True(t, skilltypes.IsKind(err, skilltypes.ErrUnknownIsolation))
}

func TestManagerRegisterCustom(t *testing.T) {
	m := NewManager(t.TempDir(), "python3")
	m.Register(&fakeStrategy{name: "firecracker"})

	strategy, err := m.Get("firecracker")
	require.NoError(t, err)
	result := strategy.Execute(context.Background(), ExecSpec{SkillName: "demo"})
	assert.True(t, result.Success)
	assert.Equal(t, "firecracker", result.Isolation)
}

func TestManagerRegisterReplacesBuiltin(t *testing.T) {
	m := NewManager(t.TempDir(), "python3")
	m.Register(&fakeStrategy{name: LevelNone})

	strategy, err := m.Get(LevelNone)
	require.NoError(t, err)
	_, isFake := strategy.(*fakeStrategy)
	assert.True(t, isFake)
}

func TestParseEnvelope(t *testing.T) {
	t.Run("success payload", func(t *testing.T) {
		envelope, err := parseEnvelope(`{"success": true, "result": 42}`)
		require.NoError(t, err)
		assert.True(t, envelope.Success)
		assert.JSONEq(t, "42", string(envelope.Result))
	})

	t.Run("last line wins over skill prints", func(t *testing.T) {
		stdout := "debugging noise\n{\"success\": true, \"result\": \"ok\"}\n"
		envelope, err := parseEnvelope(stdout)
		require.NoError(t, err)
		assert.True(t, envelope.Success)
	})

	t.Run("failure payload", func(t *testing.T) {
		envelope, err := parseEnvelope(`{"success": false, "error": "boom", "trace": "Traceback..."}`)
		require.NoError(t, err)
		assert.False(t, envelope.Success)
		assert.Equal(t, "boom", envelope.Error)
		assert.Equal(t, "Traceback...", envelope.Trace)
	})

	t.Run("empty output", func(t *testing.T) {
		_, err := parseEnvelope("")
		require.Error(t, err)
	})

	t.Run("garbage output", func(t *testing.T) {
		_, err := parseEnvelope("Segmentation fault")
		require.Error(t, err)
	})
}

func TestDepsDigestOrderInsensitive(t *testing.T) {
	a := depsDigest([]string{"numpy", "pandas>=2.0"})
	b := depsDigest([]string{"pandas>=2.0", "numpy"})
	c := depsDigest([]string{"numpy"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func requirePython(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available")
	}
	return path
}

func TestHostStrategyExecute(t *testing.T) {
	python := requirePython(t)
	s := NewHostStrategy(python)

	result := s.Execute(context.Background(), ExecSpec{
		SkillName:  "adder",
		Code:       "def execute(parameters):\n    return {\"success\": True, \"result\": parameters[\"a\"] + parameters[\"b\"]}\n",
		Parameters: map[string]any{"a": 2, "b": 3},
		Timeout:    30 * time.Second,
	})
	require.NotNil(t, result)
	require.Nil(t, result.Error)
	assert.True(t, result.Success)
	assert.JSONEq(t, "5", string(result.Output))
	assert.Equal(t, LevelNone, result.Isolation)
	assert.NotEmpty(t, result.ID)
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestHostStrategyBareReturnWrapped(t *testing.T) {
	python := requirePython(t)
	s := NewHostStrategy(python)

	result := s.Execute(context.Background(), ExecSpec{
		SkillName: "greeter",
		Code:      "def execute(parameters):\n    return \"hello\"\n",
		Timeout:   30 * time.Second,
	})
	require.True(t, result.Success)
	assert.JSONEq(t, `"hello"`, string(result.Output))
}

func TestHostStrategySkillException(t *testing.T) {
	python := requirePython(t)
	s := NewHostStrategy(python)

	result := s.Execute(context.Background(), ExecSpec{
		SkillName: "crasher",
		Code:      "def execute(parameters):\n    raise ValueError(\"bad input\")\n",
		Timeout:   30 * time.Second,
	})
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, skilltypes.ErrExecution, result.Error.Kind)
	assert.Contains(t, result.Error.Message, "bad input")
	assert.Contains(t, result.Error.Trace, "ValueError")
}

func TestHostStrategyMissingEntryPoint(t *testing.T) {
	python := requirePython(t)
	s := NewHostStrategy(python)

	result := s.Execute(context.Background(), ExecSpec{
		SkillName: "pointless",
		Code:      "def run(parameters):\n    return 1\n",
		Timeout:   30 * time.Second,
	})
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Message, "execute")
}

func TestHostStrategyTimeout(t *testing.T) {
	python := requirePython(t)
	s := NewHostStrategy(python)

	start := time.Now()
	result := s.Execute(context.Background(), ExecSpec{
		SkillName: "sleeper",
		Code:      "import time\n\ndef execute(parameters):\n    time.sleep(30)\n",
		Timeout:   time.Second,
	})
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, skilltypes.ErrTimeout, result.Error.Kind)
}

func TestHostStrategyCustomEntryPoint(t *testing.T) {
	python := requirePython(t)
	s := NewHostStrategy(python)

	result := s.Execute(context.Background(), ExecSpec{
		SkillName:  "custom",
		Code:       "def handle(parameters):\n    return {\"success\": True, \"result\": \"handled\"}\n",
		EntryPoint: "handle",
		Timeout:    30 * time.Second,
	})
	require.True(t, result.Success)
	assert.JSONEq(t, `"handled"`, string(result.Output))
}
