package telegram

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/task-garden/internal/notifications"
)

// RateLimitError indicates Telegram throttled the bot.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("telegram rate limited, retry after %s: %s", e.RetryAfter, e.Message)
}

// IsRetryable returns true as the request can be repeated after RetryAfter.
func (e *RateLimitError) IsRetryable() bool { return true }

// RetryDelay returns how long Telegram asked to wait.
func (e *RateLimitError) RetryDelay() time.Duration { return e.RetryAfter }

// Category implements notifications.CategorizedError.
func (e *RateLimitError) Category() notifications.FailureCategory {
	return notifications.CategoryRateLimited
}

// PermanentError indicates a request that will keep failing if repeated.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("telegram error %d: %s", e.Code, e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }

// Category implements notifications.CategorizedError.
func (e *PermanentError) Category() notifications.FailureCategory {
	msg := strings.ToLower(e.Message)

	switch {
	case e.Code == http.StatusUnauthorized:
		return notifications.CategoryInvalidCredential
	case strings.Contains(msg, "message is not modified"):
		return notifications.CategoryNotModified
	case strings.Contains(msg, "message to edit not found"),
		strings.Contains(msg, "message to delete not found"),
		strings.Contains(msg, "message can't be edited"),
		strings.Contains(msg, "message can't be deleted"):
		return notifications.CategoryMessageGone
	case strings.Contains(msg, "chat not found"),
		strings.Contains(msg, "bot was blocked"),
		strings.Contains(msg, "bot was kicked"),
		strings.Contains(msg, "not a member"),
		e.Code == http.StatusForbidden:
		return notifications.CategoryInvalidDestination
	case e.Code == http.StatusNotFound:
		// The Bot API answers an unknown token with a bare 404.
		return notifications.CategoryInvalidCredential
	default:
		return notifications.CategoryUnknown
	}
}

// RetryableError indicates a temporary failure.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("telegram error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("telegram error: %s", e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }

// Category implements notifications.CategorizedError.
func (e *RetryableError) Category() notifications.FailureCategory {
	return notifications.CategoryUnavailable
}
