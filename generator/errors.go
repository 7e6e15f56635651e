package generator

import (
	"errors"
	"fmt"
	"time"

	"thesis_generator/ratelimit"
)

// Kind classifies a GenerationError.
type Kind string

const (
	KindRateLimit  Kind = "rate_limit"
	KindValidation Kind = "validation"
	KindTransport  Kind = "transport"
	KindRecovery   Kind = "recovery"
)

// GenerationError is the only error Agent.Generate returns.
type GenerationError struct {
	Kind    Kind
	Message string
	// RetryAfter is set for KindRateLimit.
	RetryAfter time.Duration
	Err        error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("thesis generation (%s): %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("thesis generation (%s): %s", e.Kind, e.Message)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// UserMessage is the short text shown to end users; diagnostics stay in logs.
func (e *GenerationError) UserMessage() string {
	switch e.Kind {
	case KindRateLimit:
		if e.Message == string(ratelimit.ReasonCooldown) {
			mins := ratelimit.Decision{RetryAfter: e.RetryAfter}.WaitMinutes()
			return fmt.Sprintf("Too many requests. Please wait %d minutes.", mins)
		}
		return "Rate limit exceeded. Please try again later."
	case KindValidation:
		var verr *ValidationError
		if errors.As(e.Err, &verr) {
			return verr.UserMessage()
		}
		return "Invalid input."
	case KindRecovery:
		return "The generated thesis could not be read. Please try again."
	default:
		return "The thesis service is unavailable. Please try again later."
	}
}

var (
	ErrTopicEmpty        = errors.New("topic empty")
	ErrTopicTooShort     = errors.New("topic too short")
	ErrTopicTooLong      = errors.New("topic too long")
	ErrInvalidCharacters = errors.New("invalid characters")
	ErrInvalidField      = errors.New("invalid field")

	// ErrEmptyCompletion: 上游回复里没有任何 choice。
	ErrEmptyCompletion = errors.New("upstream reply has no choices")
)

// ValidationError names the offending field and wraps one of the Err* sentinels.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if errors.Is(e.Err, ErrInvalidField) {
		return "invalid " + e.Field
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) UserMessage() string {
	switch {
	case errors.Is(e.Err, ErrTopicEmpty):
		return "Topic cannot be empty"
	case errors.Is(e.Err, ErrTopicTooShort):
		return fmt.Sprintf("Topic must be at least %d characters long", MinTopicLength)
	case errors.Is(e.Err, ErrTopicTooLong):
		return fmt.Sprintf("Topic must not exceed %d characters", MaxTopicLength)
	case errors.Is(e.Err, ErrInvalidCharacters):
		return "Invalid characters detected"
	default:
		return "Invalid " + e.Field
	}
}

// RecoveryError: 回复无法修复成合法 JSON，或修复后结构检查失败。
type RecoveryError struct {
	Reason string
	Err    error
}

func (e *RecoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse response: %s: %v", e.Reason, e.Err)
	}
	return "failed to parse response: " + e.Reason
}

func (e *RecoveryError) Unwrap() error { return e.Err }

// RevisionError is returned by Agent.RevisionSuggestions.
type RevisionError struct {
	Err error
}

func (e *RevisionError) Error() string {
	return "failed to get revision suggestions: " + e.Err.Error()
}

func (e *RevisionError) Unwrap() error { return e.Err }
