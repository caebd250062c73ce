// Package reflection implements the bounded repair loop: when a skill
// fails at runtime, the engine re-prompts the model with the failing code
// and the error, validates the repaired code, and re-executes it. The loop
// ends on success or when the round budget is spent. Nothing is persisted
// here; the caller decides what to do with a successful repair.
package reflection

import (
	"context"

	"github.com/aymanbagabas/go-udiff"

	"github.com/autoskill-ai/autoskill/pkg/generator"
	"github.com/autoskill-ai/autoskill/pkg/logger"
	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
	"github.com/autoskill-ai/autoskill/pkg/validator"
)

// Synthesizer is the slice of the generator the repair loop needs.
type Synthesizer interface {
	RepairPrompt(sk *skilltypes.Skill, execErr *skilltypes.ExecutionError) string
	Complete(ctx context.Context, prompt string) (string, error)
	Validate(code string, deps []string) validator.Result
}

// Runner re-executes candidate code.
type Runner interface {
	Execute(ctx context.Context, sk *skilltypes.Skill, parameters map[string]any) (*skilltypes.ExecutionResult, error)
}

// Outcome is the result of a repair session.
type Outcome struct {
	// Repaired reports whether a candidate eventually executed successfully.
	Repaired bool
	// Skill carries the repaired code when Repaired is true.
	Skill *skilltypes.Skill
	// Result is the final execution result (the successful one, or the
	// last failure).
	Result *skilltypes.ExecutionResult
	// Attempts records every round for diagnostics.
	Attempts []skilltypes.ReflectionAttempt
}

// Engine drives repair sessions.
type Engine struct {
	synth     Synthesizer
	runner    Runner
	maxRounds int
}

// New creates a repair engine. maxRounds below 1 is clamped to 1.
func New(synth Synthesizer, runner Runner, maxRounds int) *Engine {
	if maxRounds < 1 {
		maxRounds = 1
	}
	return &Engine{synth: synth, runner: runner, maxRounds: maxRounds}
}

// Repair runs up to maxRounds repair rounds against the failing skill.
// Each round feeds the previous round's error back to the model, so the
// session converges on the latest candidate rather than thrashing on the
// original code. When the budget is spent without a success the returned
// error has kind ReflectionExhausted; the Outcome still carries the
// attempt log.
func (e *Engine) Repair(ctx context.Context, sk *skilltypes.Skill, parameters map[string]any, execErr *skilltypes.ExecutionError) (*Outcome, error) {
	outcome := &Outcome{}
	current := *sk
	priorErr := execErr

	for round := 1; round <= e.maxRounds; round++ {
		log := logger.G(ctx).WithField("skill", sk.Name).WithField("round", round)
		attempt := skilltypes.ReflectionAttempt{
			Index:      round,
			PriorError: priorErr.Message,
		}

		prompt := e.synth.RepairPrompt(&current, priorErr)
		output, err := e.synth.Complete(ctx, prompt)
		if err != nil {
			return outcome, skilltypes.WrapError(skilltypes.ErrGeneration, err, "repair completion failed for skill %q", sk.Name)
		}

		code, err := generator.ExtractCode(output)
		if err != nil {
			log.WithError(err).Warn("repair response contains no code")
			attempt.Outcome = skilltypes.ReflectionRejected
			outcome.Attempts = append(outcome.Attempts, attempt)
			continue
		}
		attempt.Source = code
		attempt.Diff = udiff.Unified("before", "after", current.Code, code)

		if result := e.synth.Validate(code, current.Dependencies); !result.OK {
			log.WithField("violations", len(result.Violations)).Info("repaired code rejected by validator")
			attempt.Outcome = skilltypes.ReflectionRejected
			outcome.Attempts = append(outcome.Attempts, attempt)
			continue
		}

		candidate := current
		candidate.Code = code
		execResult, err := e.runner.Execute(ctx, &candidate, parameters)
		if err != nil {
			return outcome, err
		}
		outcome.Result = execResult

		if execResult.Success {
			log.Info("skill repaired")
			attempt.Outcome = skilltypes.ReflectionSucceeded
			outcome.Attempts = append(outcome.Attempts, attempt)
			outcome.Repaired = true
			outcome.Skill = &candidate
			return outcome, nil
		}

		attempt.Outcome = skilltypes.ReflectionStillFailing
		outcome.Attempts = append(outcome.Attempts, attempt)
		current = candidate
		if execResult.Error != nil {
			priorErr = execResult.Error
		}
		log.WithField("error", priorErr.Message).Info("repaired code still failing")
	}

	return outcome, skilltypes.NewError(skilltypes.ErrReflectionExhausted,
		"skill %q still failing after %d repair rounds: %s", sk.Name, e.maxRounds, priorErr.Message)
}
