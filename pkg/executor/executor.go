// Package executor dispatches skill invocations to an isolation strategy
// and normalizes every outcome into an ExecutionResult. Skill-level
// failures (exceptions, timeouts, memory kills) come back inside the
// result; only infrastructure problems such as an unknown isolation
// strategy surface as Go errors.
package executor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/autoskill-ai/autoskill/pkg/isolation"
	"github.com/autoskill-ai/autoskill/pkg/logger"
	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

// Executor runs skills through the isolation manager.
type Executor struct {
	manager *isolation.Manager
	config  skilltypes.Config
	tracer  trace.Tracer
}

// New creates an executor bound to an isolation manager and runtime config.
func New(manager *isolation.Manager, config skilltypes.Config) *Executor {
	return &Executor{
		manager: manager,
		config:  config,
		tracer:  otel.Tracer("autoskill.executor"),
	}
}

// Execute runs one skill invocation. The skill's own isolation level wins
// over the configured default. Quarantined skills refuse to run.
func (e *Executor) Execute(ctx context.Context, sk *skilltypes.Skill, parameters map[string]any) (*skilltypes.ExecutionResult, error) {
	if sk.Status == skilltypes.StatusQuarantined {
		return nil, skilltypes.NewError(skilltypes.ErrExecution, "skill %q is quarantined and cannot be executed", sk.Name)
	}
	if sk.Status == skilltypes.StatusDeprecated {
		logger.G(ctx).WithField("skill", sk.Name).Warn("executing deprecated skill")
	}

	level := sk.IsolationLevel
	if level == "" {
		level = e.config.IsolationLevel
	}
	strategy, err := e.manager.Get(level)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "skill.execute", trace.WithAttributes(
		attribute.String("skill.name", sk.Name),
		attribute.Int("skill.version", sk.Version),
		attribute.String("skill.isolation", level),
	))
	defer span.End()

	start := time.Now()
	result := strategy.Execute(ctx, isolation.ExecSpec{
		SkillName:     sk.Name,
		Code:          sk.Code,
		EntryPoint:    sk.EntryPoint,
		Parameters:    parameters,
		Dependencies:  sk.Dependencies,
		Timeout:       e.config.ExecutionTimeout,
		Interpreter:   e.config.Interpreter,
		MemoryCeiling: e.config.MemoryCeiling,
	})

	log := logger.G(ctx).WithField("skill", sk.Name).WithField("duration", time.Since(start))
	if result.Success {
		span.SetStatus(codes.Ok, "")
		log.Debug("skill execution succeeded")
	} else if result.Error != nil {
		span.SetStatus(codes.Error, result.Error.Message)
		span.SetAttributes(attribute.String("skill.error_kind", string(result.Error.Kind)))
		log.WithField("error_kind", result.Error.Kind).WithField("error", result.Error.Message).Warn("skill execution failed")
	}
	return result, nil
}

// Strategies lists the registered isolation strategy names.
func (e *Executor) Strategies() []string {
	return e.manager.Names()
}
