// Package skill defines the shared data model for the skill lifecycle
// engine: skills, fingerprints, execution results, reflection attempts,
// and the error taxonomy used across package boundaries.
package skill

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a skill.
type Status string

const (
	StatusActive      Status = "active"
	StatusQuarantined Status = "quarantined"
	StatusDeprecated  Status = "deprecated"
)

// Skill is a named, versioned, executable unit of capability. The name is
// immutable once registered; the version is a monotonic integer starting at 1.
type Skill struct {
	Name           string          `json:"name" yaml:"name"`
	Description    string          `json:"description" yaml:"description"`
	Code           string          `json:"code" yaml:"-"`
	EntryPoint     string          `json:"entry_point,omitempty" yaml:"entry_point,omitempty"`
	Version        int             `json:"version" yaml:"version"`
	Status         Status          `json:"status" yaml:"status"`
	Template       string          `json:"template,omitempty" yaml:"template,omitempty"`
	Dependencies   []string        `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Parameters     json.RawMessage `json:"parameters,omitempty" yaml:"-"`
	IsolationLevel string          `json:"isolation_level,omitempty" yaml:"isolation_level,omitempty"`
	CreatedAt      time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" yaml:"updated_at"`
}

// Fingerprint is the embedding vector computed from a skill's task
// description at creation time. It is never mutated after creation.
type Fingerprint struct {
	SkillName   string    `json:"skill_name"`
	Description string    `json:"description"`
	Vector      []float64 `json:"vector"`
	CreatedAt   time.Time `json:"created_at"`
}

// Match is one entry of a similarity search result, ordered by descending score.
type Match struct {
	SkillName string  `json:"skill_name"`
	Score     float64 `json:"score"`
}

// ExecutionError carries the normalized failure detail of one invocation.
type ExecutionError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Trace   string    `json:"trace,omitempty"`
}

func (e *ExecutionError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// ExecutionResult is the outcome of one skill invocation. It is ephemeral:
// produced by the executor, consumed by the caller and the reflection engine.
type ExecutionResult struct {
	ID        string          `json:"id"`
	SkillName string          `json:"skill_name"`
	Success   bool            `json:"success"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     *ExecutionError `json:"error,omitempty"`
	Duration  time.Duration   `json:"duration"`
	Isolation string          `json:"isolation"`
}

// ReflectionOutcome is the terminal classification of one repair round.
type ReflectionOutcome string

const (
	ReflectionSucceeded    ReflectionOutcome = "succeeded"
	ReflectionStillFailing ReflectionOutcome = "still_failing"
	ReflectionRejected     ReflectionOutcome = "validation_rejected"
)

// ReflectionAttempt records one round of the repair loop. Attempt i+1 is
// derived from attempt i's error; the chain ends on success or budget
// exhaustion.
type ReflectionAttempt struct {
	Index      int               `json:"index"`
	PriorError string            `json:"prior_error"`
	Diff       string            `json:"diff,omitempty"`
	Source     string            `json:"source"`
	Outcome    ReflectionOutcome `json:"outcome"`
}

// Info is the externally visible summary of a registered skill.
type Info struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Version      int             `json:"version"`
	Status       Status          `json:"status"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
	Dependencies []string        `json:"dependencies,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// InfoOf builds the external summary for a skill.
func InfoOf(s *Skill) Info {
	return Info{
		Name:         s.Name,
		Description:  s.Description,
		Version:      s.Version,
		Status:       s.Status,
		Parameters:   s.Parameters,
		Dependencies: s.Dependencies,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}
