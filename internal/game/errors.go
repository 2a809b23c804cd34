package game

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrGameNotFound means no live session exists for the user/kind.
	ErrGameNotFound = errors.New("game not found")

	// ErrGameLimitExceeded means the coarse cap on live sessions was reached.
	ErrGameLimitExceeded = errors.New("game limit exceeded")

	// ErrGameInProgress is matched by *InProgressError.
	ErrGameInProgress = errors.New("game in progress")

	// ErrRateLimited is matched by *RateLimitError.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// InProgressError is returned by create when a live session already exists.
// SessionID lets clients treat the retry as idempotent.
type InProgressError struct {
	SessionID string
}

func (e *InProgressError) Error() string {
	if e.SessionID == "" {
		return ErrGameInProgress.Error()
	}
	return fmt.Sprintf("game in progress: %s", e.SessionID)
}

// Is matches ErrGameInProgress.
func (e *InProgressError) Is(target error) bool { return target == ErrGameInProgress }

// RateLimitError is returned when a user has used up the rolling window.
type RateLimitError struct {
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("exceeded the maximum of %d games in the last %s; the limit resets in %s",
		e.Limit, e.Window, e.RetryAfter)
}

// Is matches ErrRateLimited.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
