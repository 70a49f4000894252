package sandbox

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindTimeout       ErrorKind = "timeout"
	KindEngine        ErrorKind = "engine"
	KindMissingOutput ErrorKind = "missing_output"
	KindInternal      ErrorKind = "internal"
)

// Sentinels matched by ExecutionError.Is.
var (
	ErrExecutionTimeout = errors.New("execution timed out")
	ErrEngine           = errors.New("engine failed")
	ErrMissingOutput    = errors.New("engine produced no output")
)

// ExecutionError is a failed execution. Log holds whatever the engine printed.
type ExecutionError struct {
	Kind   ErrorKind
	Detail string
	Log    string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Is(target error) bool {
	switch target {
	case ErrExecutionTimeout:
		return e.Kind == KindTimeout
	case ErrEngine:
		return e.Kind == KindEngine
	case ErrMissingOutput:
		return e.Kind == KindMissingOutput
	}
	return false
}
