package skill

import "fmt"

// ErrorKind classifies every failure that can cross a package boundary.
type ErrorKind string

const (
	ErrValidation           ErrorKind = "ValidationError"
	ErrGeneration           ErrorKind = "GenerationError"
	ErrDuplicateSkill       ErrorKind = "DuplicateSkillError"
	ErrSkillNotFound        ErrorKind = "SkillNotFound"
	ErrUnknownIsolation     ErrorKind = "UnknownIsolationStrategy"
	ErrEnvironmentProvision ErrorKind = "EnvironmentProvisionError"
	ErrExecution            ErrorKind = "ExecutionError"
	ErrTimeout              ErrorKind = "TimeoutError"
	ErrReflectionExhausted  ErrorKind = "ReflectionExhausted"
	ErrPersistence          ErrorKind = "PersistenceError"
)

// Error is the structured error type surfaced by the lifecycle facade. The
// Kind is stable and machine-matchable; the message is for humans.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches against another *Error by kind, so errors.Is works with
// kind-only sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError creates a structured error with the given kind and message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a structured error wrapping a cause.
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the error kind, walking the unwrap chain. Unclassified
// errors report ErrExecution as a conservative default.
func KindOf(err error) ErrorKind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ErrExecution
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
