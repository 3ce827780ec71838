package contract

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrAuth                = errors.New("authentication failed")
	ErrCredential          = errors.New("no usable provider credential")
	ErrModelInvoke         = errors.New("model invoke failed")
	ErrSchemaViolation     = errors.New("model response violates schema")
	ErrPromptMissing       = errors.New("required prompt is missing")
	ErrToolFailure         = errors.New("tool failed")
	ErrAmbiguousSideEffect = errors.New("side effect outcome is unknown")
	ErrCalendarUnavailable = errors.New("calendar is unavailable")
)
