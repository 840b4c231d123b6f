package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/task-garden/internal/pkg/ctxlog"
)

// ErrorMapping defines how a domain error maps to an HTTP response.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // if empty, uses err.Error()
}

// ResolveError returns the status and message of the first mapping whose
// error matches err.
func ResolveError(err error, mappings []ErrorMapping) (int, string, bool) {
	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}
		if m.Message != "" {
			return m.Status, m.Message, true
		}
		return m.Status, err.Error(), true
	}
	return 0, "", false
}

// HandleError writes the mapped response for err. Unmapped errors are logged
// and answered with 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	if status, message, ok := ResolveError(err, mappings); ok {
		if status >= http.StatusInternalServerError {
			ctxlog.FromContext(ctx).Error("request failed", "status", status, "error", err)
		}
		Error(w, status, message)
		return
	}

	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
