package platform

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound means the source content no longer resolves; retrying cannot help
	ErrNotFound = errors.New("source content not found")
	// ErrTransient covers every other delivery failure
	ErrTransient = errors.New("transient platform error")
)

// RateLimitError carries the wait the platform requires before the next call
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Class is one of the three failure classes a platform call can end in
type Class int

const (
	ClassNone Class = iota
	ClassNotFound
	ClassRateLimited
	ClassTransient
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassNotFound:
		return "not_found"
	case ClassRateLimited:
		return "rate_limited"
	default:
		return "transient"
	}
}

// Classify maps an error to its failure class; anything unrecognised is transient
func Classify(err error) (Class, time.Duration) {
	if err == nil {
		return ClassNone, 0
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return ClassRateLimited, rl.RetryAfter
	}
	if errors.Is(err, ErrNotFound) {
		return ClassNotFound, 0
	}
	return ClassTransient, 0
}

// AsTransient wraps err so that it is reported as ErrTransient while keeping the cause
func AsTransient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
