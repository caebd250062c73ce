package reflection

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
	"github.com/autoskill-ai/autoskill/pkg/validator"
)

// scriptedSynth replays canned completions and validation verdicts.
type scriptedSynth struct {
	outputs   []string
	rejectAll bool
	prompts   []string
}

func (s *scriptedSynth) RepairPrompt(sk *skilltypes.Skill, execErr *skilltypes.ExecutionError) string {
	return fmt.Sprintf("fix %s: %s\n%s", sk.Name, execErr.Message, sk.Code)
}

func (s *scriptedSynth) Complete(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.outputs) == 0 {
		return "", fmt.Errorf("no scripted output left")
	}
	out := s.outputs[0]
	s.outputs = s.outputs[1:]
	return out, nil
}

func (s *scriptedSynth) Validate(code string, deps []string) validator.Result {
	if s.rejectAll {
		return validator.Result{OK: false, Violations: []validator.Violation{{Rule: "syntax", Message: "still wrong"}}}
	}
	return validator.Result{OK: true}
}

// scriptedRunner fails the first n executions, then succeeds.
type scriptedRunner struct {
	failuresLeft int
	executed     []*skilltypes.Skill
}

func (r *scriptedRunner) Execute(ctx context.Context, sk *skilltypes.Skill, parameters map[string]any) (*skilltypes.ExecutionResult, error) {
	copied := *sk
	r.executed = append(r.executed, &copied)
	if r.failuresLeft > 0 {
		r.failuresLeft--
		return &skilltypes.ExecutionResult{
			SkillName: sk.Name,
			Success:   false,
			Error: &skilltypes.ExecutionError{
				Kind:    skilltypes.ErrExecution,
				Message: fmt.Sprintf("failure %d", r.failuresLeft),
			},
		}, nil
	}
	return &skilltypes.ExecutionResult{SkillName: sk.Name, Success: true}, nil
}

func codeResponse(body string) string {
	return "CODE\n```python\n" + body + "\n```\nMANIFEST\n```yaml\ndescription: x\n```\nDEPENDENCIES\nnone\n"
}

func failingSkill() *skilltypes.Skill {
	return &skilltypes.Skill{
		Name:   "flaky",
		Status: skilltypes.StatusActive,
		Code:   "def execute(parameters):\n    raise RuntimeError(\"original\")\n",
	}
}

func originalError() *skilltypes.ExecutionError {
	return &skilltypes.ExecutionError{Kind: skilltypes.ErrExecution, Message: "original"}
}

func TestRepairSucceedsFirstRound(t *testing.T) {
	synth := &scriptedSynth{outputs: []string{codeResponse("def execute(parameters):\n    return {\"success\": True}")}}
	runner := &scriptedRunner{}
	e := New(synth, runner, 3)

	outcome, err := e.Repair(context.Background(), failingSkill(), nil, originalError())
	require.NoError(t, err)
	assert.True(t, outcome.Repaired)
	require.NotNil(t, outcome.Skill)
	assert.Contains(t, outcome.Skill.Code, "return {\"success\": True}")
	require.Len(t, outcome.Attempts, 1)
	assert.Equal(t, skilltypes.ReflectionSucceeded, outcome.Attempts[0].Outcome)
	assert.Equal(t, "original", outcome.Attempts[0].PriorError)
	assert.NotEmpty(t, outcome.Attempts[0].Diff)
}

func TestRepairConvergesAfterFailures(t *testing.T) {
	synth := &scriptedSynth{outputs: []string{
		codeResponse("def execute(parameters):\n    return bad_first_try()"),
		codeResponse("def execute(parameters):\n    return {\"success\": True}"),
	}}
	runner := &scriptedRunner{failuresLeft: 1}
	e := New(synth, runner, 3)

	outcome, err := e.Repair(context.Background(), failingSkill(), nil, originalError())
	require.NoError(t, err)
	assert.True(t, outcome.Repaired)
	require.Len(t, outcome.Attempts, 2)
	assert.Equal(t, skilltypes.ReflectionStillFailing, outcome.Attempts[0].Outcome)
	assert.Equal(t, skilltypes.ReflectionSucceeded, outcome.Attempts[1].Outcome)

	// Round two is prompted with round one's code and error, not the
	// original ones.
	require.Len(t, synth.prompts, 2)
	assert.Contains(t, synth.prompts[1], "bad_first_try")
	assert.Contains(t, synth.prompts[1], "failure 0")
}

func TestRepairExhaustsBudget(t *testing.T) {
	synth := &scriptedSynth{outputs: []string{
		codeResponse("def execute(parameters):\n    return attempt_one()"),
		codeResponse("def execute(parameters):\n    return attempt_two()"),
	}}
	runner := &scriptedRunner{failuresLeft: 10}
	e := New(synth, runner, 2)

	outcome, err := e.Repair(context.Background(), failingSkill(), nil, originalError())
	require.Error(t, err)
	assert.True(t, skilltypes.IsKind(err, skilltypes.ErrReflectionExhausted))
	assert.False(t, outcome.Repaired)
	assert.Len(t, outcome.Attempts, 2)
	for _, attempt := range outcome.Attempts {
		assert.Equal(t, skilltypes.ReflectionStillFailing, attempt.Outcome)
	}
}

func TestRepairValidationRejectionSkipsExecution(t *testing.T) {
	synth := &scriptedSynth{
		outputs:   []string{codeResponse("whatever"), codeResponse("whatever")},
		rejectAll: true,
	}
	runner := &scriptedRunner{}
	e := New(synth, runner, 2)

	outcome, err := e.Repair(context.Background(), failingSkill(), nil, originalError())
	require.Error(t, err)
	assert.True(t, skilltypes.IsKind(err, skilltypes.ErrReflectionExhausted))
	assert.Empty(t, runner.executed, "rejected code must never run")
	require.Len(t, outcome.Attempts, 2)
	for _, attempt := range outcome.Attempts {
		assert.Equal(t, skilltypes.ReflectionRejected, attempt.Outcome)
	}
}

func TestRepairResponseWithoutCode(t *testing.T) {
	synth := &scriptedSynth{outputs: []string{
		"Sorry, I cannot fix this.",
		codeResponse("def execute(parameters):\n    return {\"success\": True}"),
	}}
	runner := &scriptedRunner{}
	e := New(synth, runner, 3)

	outcome, err := e.Repair(context.Background(), failingSkill(), nil, originalError())
	require.NoError(t, err)
	assert.True(t, outcome.Repaired)
	require.Len(t, outcome.Attempts, 2)
	assert.Equal(t, skilltypes.ReflectionRejected, outcome.Attempts[0].Outcome)
	assert.Equal(t, skilltypes.ReflectionSucceeded, outcome.Attempts[1].Outcome)
}

func TestRepairDoesNotMutateOriginal(t *testing.T) {
	synth := &scriptedSynth{outputs: []string{codeResponse("def execute(parameters):\n    return {\"success\": True}")}}
	e := New(synth, &scriptedRunner{}, 3)

	sk := failingSkill()
	originalCode := sk.Code
	outcome, err := e.Repair(context.Background(), sk, nil, originalError())
	require.NoError(t, err)
	assert.Equal(t, originalCode, sk.Code)
	assert.NotEqual(t, originalCode, outcome.Skill.Code)
}
