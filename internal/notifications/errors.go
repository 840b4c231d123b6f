package notifications

import (
	"errors"
	"fmt"
	"time"
)

// Dispatch errors.
var (
	ErrNotConfigured  = errors.New("telegram notifications are not configured")
	ErrEditTargetGone = errors.New("message to edit is no longer available")
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrNoChanges      = errors.New("change set is empty")
)

// FailureCategory classifies transport failures for operators.
type FailureCategory string

// Failure categories.
const (
	CategoryInvalidCredential  FailureCategory = "invalid_credential"
	CategoryInvalidDestination FailureCategory = "invalid_destination"
	CategoryRateLimited        FailureCategory = "rate_limited"
	CategoryMessageGone        FailureCategory = "message_gone"
	CategoryNotModified        FailureCategory = "not_modified"
	CategoryUnavailable        FailureCategory = "unavailable"
	CategoryUnknown            FailureCategory = "unknown"
)

// Hint returns a short operator-facing explanation of the category.
func (c FailureCategory) Hint() string {
	switch c {
	case CategoryInvalidCredential:
		return "check that the bot token is correct"
	case CategoryInvalidDestination:
		return "check the chat ID and that the bot was added to the chat and not blocked"
	case CategoryRateLimited:
		return "telegram is throttling the bot, retry later"
	case CategoryMessageGone:
		return "the referenced message was deleted or is too old to change"
	case CategoryUnavailable:
		return "telegram API is unreachable or returned a server error"
	default:
		return ""
	}
}

// CategorizedError is implemented by transport errors that know their category.
type CategorizedError interface {
	error
	Category() FailureCategory
}

// CategoryOf returns the failure category of err.
func CategoryOf(err error) FailureCategory {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category()
	}
	return CategoryUnknown
}

// RetryAfterOf returns how long a throttled transport asked the caller to
// wait before repeating the request, or zero.
func RetryAfterOf(err error) time.Duration {
	var rd interface{ RetryDelay() time.Duration }
	if errors.As(err, &rd) {
		return rd.RetryDelay()
	}
	return 0
}

// DispatchError is a transport failure for a single dispatcher operation.
type DispatchError struct {
	Op       string
	Category FailureCategory
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
