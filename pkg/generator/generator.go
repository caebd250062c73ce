// Package generator synthesizes skill code from task descriptions. A
// generation pass first checks the fingerprint index for an existing skill
// covering the same capability, then prompts the backend and validates the
// response, re-prompting with the validator's feedback until the code is
// accepted or the retry budget runs out.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/autoskill-ai/autoskill/pkg/backend"
	"github.com/autoskill-ai/autoskill/pkg/fingerprint"
	"github.com/autoskill-ai/autoskill/pkg/logger"
	"github.com/autoskill-ai/autoskill/pkg/templates"
	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
	"github.com/autoskill-ai/autoskill/pkg/validator"
)

// DefaultTemplate seeds generation when the request names none.
const DefaultTemplate = "base_skill"

// Request describes one skill to synthesize.
type Request struct {
	Name           string
	Description    string
	Template       string
	IsolationLevel string
	// Force skips near-duplicate detection.
	Force bool
}

// DuplicateError reports that an existing skill already covers the
// requested capability. Matches are ordered by descending similarity.
type DuplicateError struct {
	Matches []skilltypes.Match
	err     *skilltypes.Error
}

func newDuplicateError(matches []skilltypes.Match, threshold float64) *DuplicateError {
	best := matches[0]
	return &DuplicateError{
		Matches: matches,
		err: skilltypes.NewError(skilltypes.ErrDuplicateSkill,
			"skill %q already covers this capability (similarity %.2f >= %.2f)",
			best.SkillName, best.Score, threshold),
	}
}

func (e *DuplicateError) Error() string { return e.err.Error() }

func (e *DuplicateError) Unwrap() error { return e.err }

// Best returns the closest existing skill.
func (e *DuplicateError) Best() skilltypes.Match { return e.Matches[0] }

// Generator drives the synthesis loop.
type Generator struct {
	backend   backend.Backend
	validator *validator.Validator
	templates *templates.Registry
	index     *fingerprint.Index
	config    skilltypes.Config
	tracer    trace.Tracer
}

// New wires a generator from its collaborators.
func New(b backend.Backend, v *validator.Validator, t *templates.Registry, idx *fingerprint.Index, config skilltypes.Config) *Generator {
	return &Generator{
		backend:   b,
		validator: v,
		templates: t,
		index:     idx,
		config:    config,
		tracer:    otel.Tracer("autoskill.generator"),
	}
}

// Generate synthesizes a new skill. On a near-duplicate hit the returned
// error is a *DuplicateError (kind DuplicateSkillError) unless the request
// forces regeneration.
func (g *Generator) Generate(ctx context.Context, req Request) (*skilltypes.Skill, error) {
	if req.Name == "" {
		return nil, skilltypes.NewError(skilltypes.ErrGeneration, "skill name is required")
	}
	if req.Description == "" {
		return nil, skilltypes.NewError(skilltypes.ErrGeneration, "task description is required")
	}

	if !req.Force {
		if err := g.checkDuplicate(ctx, req.Description); err != nil {
			return nil, err
		}
	}

	templateName := req.Template
	if templateName == "" {
		templateName = DefaultTemplate
	}
	tmpl, ok := g.templates.Get(templateName)
	if !ok {
		return nil, skilltypes.NewError(skilltypes.ErrGeneration, "unknown template %q", templateName)
	}

	basePrompt := buildPrompt(&tmpl, req.Name, req.Description)
	prompt := basePrompt

	attempts := g.config.MaxGenerationRetries
	if attempts < 1 {
		attempts = 1
	}

	ctx, span := g.tracer.Start(ctx, "skill.generate", trace.WithAttributes(
		attribute.String("skill.name", req.Name),
		attribute.String("skill.template", tmpl.Name),
	))
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		log := logger.G(ctx).WithField("skill", req.Name).WithField("attempt", attempt)

		output, err := g.backend.Complete(ctx, prompt, backend.CompleteConfig{})
		if err != nil {
			return nil, skilltypes.WrapError(skilltypes.ErrGeneration, err, "model completion failed for skill %q", req.Name)
		}

		parts, err := splitSections(output)
		if err != nil {
			log.WithError(err).Warn("model response missing required sections, re-prompting")
			lastErr = err
			prompt = buildRepairPrompt(basePrompt, output,
				"The response did not contain the required CODE section.\n")
			continue
		}

		manifest, err := parseManifest(parts.Manifest)
		if err != nil {
			log.WithError(err).Warn("model returned malformed manifest, re-prompting")
			lastErr = err
			prompt = buildRepairPrompt(basePrompt, parts.Code,
				"The MANIFEST section was not valid YAML.\n")
			continue
		}
		deps := parseDependencies(parts.Dependencies)

		result := g.validator.Check(parts.Code, deps)
		if !result.OK {
			log.WithField("violations", len(result.Violations)).Info("generated code rejected by validator, re-prompting")
			lastErr = result.Err()
			prompt = buildRepairPrompt(basePrompt, parts.Code, result.Feedback())
			continue
		}

		log.Info("skill code accepted")
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.Int("skill.generation_attempts", attempt))
		return g.buildSkill(req, &tmpl, parts.Code, manifest, deps)
	}

	span.SetStatus(codes.Error, "generation retries exhausted")
	return nil, skilltypes.WrapError(skilltypes.ErrGeneration, lastErr,
		"skill %q still invalid after %d generation attempts", req.Name, attempts)
}

func (g *Generator) checkDuplicate(ctx context.Context, description string) error {
	matches, err := g.index.Similar(ctx, description)
	if err != nil {
		if errors.Is(err, backend.ErrEmbeddingUnsupported) {
			logger.G(ctx).Warn("backend does not support embeddings, skipping duplicate detection")
			return nil
		}
		return skilltypes.WrapError(skilltypes.ErrGeneration, err, "duplicate check failed")
	}
	if len(matches) > 0 && matches[0].Score >= g.config.FingerprintThreshold {
		return newDuplicateError(matches, g.config.FingerprintThreshold)
	}
	return nil
}

func (g *Generator) buildSkill(req Request, tmpl *templates.Template, code string, manifest *manifestDoc, deps []string) (*skilltypes.Skill, error) {
	description := req.Description
	if manifest.Description != "" {
		description = manifest.Description
	}

	var params json.RawMessage
	if len(manifest.Parameters) > 0 {
		data, err := json.Marshal(manifest.Parameters)
		if err != nil {
			return nil, skilltypes.WrapError(skilltypes.ErrGeneration, err, "failed to encode parameter schema")
		}
		params = data
	}

	now := time.Now()
	return &skilltypes.Skill{
		Name:           req.Name,
		Description:    description,
		Code:           code,
		EntryPoint:     manifest.EntryPoint,
		Status:         skilltypes.StatusActive,
		Template:       tmpl.Name,
		Dependencies:   deps,
		Parameters:     params,
		IsolationLevel: req.IsolationLevel,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// RepairPrompt builds the re-prompt used by the reflection loop: the
// original description plus the failing code and its runtime error.
func (g *Generator) RepairPrompt(sk *skilltypes.Skill, execErr *skilltypes.ExecutionError) string {
	templateName := sk.Template
	if templateName == "" {
		templateName = DefaultTemplate
	}
	tmpl, ok := g.templates.Get(templateName)
	if !ok {
		tmpl, _ = g.templates.Get(DefaultTemplate)
	}

	base := buildPrompt(&tmpl, sk.Name, sk.Description)
	feedback := fmt.Sprintf("Running the code failed with: %s\n", execErr.Message)
	if execErr.Trace != "" {
		feedback += fmt.Sprintf("\nTraceback:\n%s\n", execErr.Trace)
	}
	return buildRepairPrompt(base, sk.Code, feedback)
}

// Complete exposes the underlying backend for collaborators that share the
// generator's model configuration.
func (g *Generator) Complete(ctx context.Context, prompt string) (string, error) {
	return g.backend.Complete(ctx, prompt, backend.CompleteConfig{})
}

// Validate re-runs static validation on repaired code.
func (g *Generator) Validate(code string, deps []string) validator.Result {
	return g.validator.Check(code, deps)
}

// ExtractCode pulls the CODE section (or sole fenced block) out of a model
// response. Used by the reflection loop when re-prompting for repairs.
func ExtractCode(output string) (string, error) {
	parts, err := splitSections(output)
	if err != nil {
		return "", err
	}
	return parts.Code, nil
}
