package isolation

import (
	"context"

	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

// HostStrategy runs skills with the host interpreter and whatever packages
// are already installed. Dependencies declared by the skill are assumed
// present; nothing is installed.
type HostStrategy struct {
	interpreter string
}

// NewHostStrategy creates the "none" isolation strategy.
func NewHostStrategy(interpreter string) *HostStrategy {
	return &HostStrategy{interpreter: interpreter}
}

func (s *HostStrategy) Name() string {
	return LevelNone
}

func (s *HostStrategy) Execute(ctx context.Context, spec ExecSpec) *skilltypes.ExecutionResult {
	interpreter := spec.Interpreter
	if interpreter == "" {
		interpreter = s.interpreter
	}
	return runSkill(ctx, interpreter, spec, LevelNone)
}
