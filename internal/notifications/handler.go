package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bissquit/task-garden/internal/pkg/ctxlog"
	"github.com/bissquit/task-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrNotConfigured, Status: http.StatusServiceUnavailable, Message: "telegram notifications are not configured"},
	{Error: ErrEmptyMessage, Status: http.StatusBadRequest, Message: "message text is empty"},
}

// Handler exposes the Telegram control API.
type Handler struct {
	dispatcher *Dispatcher
	poller     *ReminderPoller
	// lifecycleCtx bounds polling started over HTTP.
	lifecycleCtx context.Context
	validator    *validator.Validate
}

// NewHandler creates a new notifications handler.
func NewHandler(lifecycleCtx context.Context, dispatcher *Dispatcher, poller *ReminderPoller) *Handler {
	return &Handler{
		dispatcher:   dispatcher,
		poller:       poller,
		lifecycleCtx: lifecycleCtx,
		validator:    validator.New(),
	}
}

// RegisterRoutes registers telegram control routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/telegram", func(r chi.Router) {
		r.Get("/", h.GetStatus)
		r.Post("/test", h.SendTest)
		r.Post("/test-connection", h.TestConnection)
		r.Post("/messages", h.SendMessage)
		r.Post("/reminders/start", h.StartReminders)
		r.Post("/reminders/stop", h.StopReminders)
		r.Post("/reminders/check", h.CheckReminders)
	})
}

// StatusResponse describes the integration state.
type StatusResponse struct {
	Configured       bool             `json:"configured"`
	ConfigError      string           `json:"config_error,omitempty"`
	ConnectionTest   ConnectionResult `json:"connection_test"`
	RemindersRunning bool             `json:"reminders_running"`
}

// SendTestRequest represents request body for a test message.
type SendTestRequest struct {
	Message string `json:"message" validate:"max=4000"`
}

// SendTestResponse is returned by POST /telegram/test.
type SendTestResponse struct {
	Connection ConnectionResult `json:"connection"`
	Message    *MessageHandle   `json:"message,omitempty"`
}

// SendMessageRequest represents request body for a manual message.
type SendMessageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

// RemindersStateResponse reports whether reminder polling is active.
type RemindersStateResponse struct {
	Running bool `json:"running"`
}

// GetStatus handles GET /telegram.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	httputil.Success(w, http.StatusOK, StatusResponse{
		Configured:       h.dispatcher.IsConfigured(),
		ConfigError:      h.dispatcher.ConfigError(),
		ConnectionTest:   h.dispatcher.TestConnection(r.Context()),
		RemindersRunning: h.poller.IsRunning(),
	})
}

// SendTest handles POST /telegram/test.
func (h *Handler) SendTest(w http.ResponseWriter, r *http.Request) {
	var req SendTestRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	if !h.dispatcher.IsConfigured() {
		httputil.HandleError(r.Context(), w, ErrNotConfigured, errorMappings)
		return
	}

	connection := h.dispatcher.TestConnection(r.Context())
	if !connection.OK {
		httputil.Error(w, http.StatusBadGateway, fmt.Sprintf("connection test failed: %s", connection.Error))
		return
	}

	message := req.Message
	if message == "" {
		message = DefaultTestMessage
	}

	handle, err := h.dispatcher.SendText(r.Context(), message)
	if err != nil {
		h.handleDispatchError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, SendTestResponse{Connection: connection, Message: handle})
}

// TestConnection handles POST /telegram/test-connection.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	httputil.Success(w, http.StatusOK, h.dispatcher.TestConnection(r.Context()))
}

// SendMessage handles POST /telegram/messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	handle, err := h.dispatcher.SendText(r.Context(), req.Text)
	if err != nil {
		h.handleDispatchError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, handle)
}

// StartReminders handles POST /telegram/reminders/start.
func (h *Handler) StartReminders(w http.ResponseWriter, r *http.Request) {
	if !h.dispatcher.IsConfigured() {
		httputil.HandleError(r.Context(), w, ErrNotConfigured, errorMappings)
		return
	}

	h.poller.Start(h.lifecycleCtx)
	httputil.Success(w, http.StatusOK, RemindersStateResponse{Running: h.poller.IsRunning()})
}

// StopReminders handles POST /telegram/reminders/stop.
func (h *Handler) StopReminders(w http.ResponseWriter, _ *http.Request) {
	h.poller.Stop()
	httputil.Success(w, http.StatusOK, RemindersStateResponse{Running: h.poller.IsRunning()})
}

// CheckReminders handles POST /telegram/reminders/check.
func (h *Handler) CheckReminders(w http.ResponseWriter, r *http.Request) {
	httputil.Success(w, http.StatusOK, h.poller.CheckNow(r.Context()))
}

func (h *Handler) handleDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) {
		ctxlog.FromContext(r.Context()).Warn("telegram dispatch failed",
			"operation", dispatchErr.Op,
			"category", dispatchErr.Category,
			"error", dispatchErr.Err,
		)
		msg := fmt.Sprintf("telegram request failed: %s", dispatchErr.Category)
		if hint := dispatchErr.Category.Hint(); hint != "" {
			msg += " (" + hint + ")"
		}
		httputil.Error(w, http.StatusBadGateway, msg)
		return
	}
	httputil.HandleError(r.Context(), w, err, errorMappings)
}

// decodeOptionalJSON decodes the body into v, accepting an empty body.
func decodeOptionalJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
