package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTestMessage is sent by the connection test when no text is given.
const DefaultTestMessage = "🤖 Test message from Task Garden\n\n✅ Telegram integration is working correctly!"

// DefaultMaxRetryWait is the longest rate-limit pause a dispatch waits out before giving up.
const DefaultMaxRetryWait = 5 * time.Second

// Dispatcher operation names used in logs and metrics.
const (
	opSendCreated  = "send_created"
	opSendUpdated  = "send_updated"
	opSendReminder = "send_reminder"
	opSendText     = "send_text"
	opEdit         = "edit"
	opDelete       = "delete"
	opGetMe        = "get_me"
)

// BotInfo identifies the bot behind the configured credential.
type BotInfo struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Transport performs raw Bot API calls. Implementations send text as MarkdownV2.
type Transport interface {
	SendMessage(ctx context.Context, chatID, text string) (int64, error)
	EditMessageText(ctx context.Context, chatID string, messageID int64, text string) error
	DeleteMessage(ctx context.Context, chatID string, messageID int64) error
	GetMe(ctx context.Context) (*BotInfo, error)
}

// MessageHandle identifies a message in the destination chat.
type MessageHandle struct {
	MessageID int64  `json:"message_id"`
	ChatID    string `json:"chat_id"`
	Edited    bool   `json:"edited"`
}

// ConnectionResult is the outcome of a credential check.
type ConnectionResult struct {
	OK       bool            `json:"success"`
	Username string          `json:"username,omitempty"`
	Error    string          `json:"error,omitempty"`
	Category FailureCategory `json:"category,omitempty"`
}

// Dispatcher owns the single outbound Telegram channel and decides
// between editing a task's existing message and sending a new one.
type Dispatcher struct {
	config       TransportConfig
	transport    Transport
	renderer     *Renderer
	logger       *slog.Logger
	now          func() time.Time
	maxRetryWait time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDispatcherMaxRetryWait bounds the rate-limit pause a send or edit waits
// out before its single retry. Zero disables the retry.
func WithDispatcherMaxRetryWait(wait time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if wait >= 0 {
			d.maxRetryWait = wait
		}
	}
}

// WithDispatcherClock overrides the clock used for message timestamps.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(config TransportConfig, transport Transport, renderer *Renderer, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		config:       config,
		transport:    transport,
		renderer:     renderer,
		logger:       slog.Default(),
		now:          time.Now,
		maxRetryWait: DefaultMaxRetryWait,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// IsConfigured reports whether notifications can be sent.
func (d *Dispatcher) IsConfigured() bool {
	return d.config.Configured
}

// ConfigError returns the reason notifications are disabled, if any.
func (d *Dispatcher) ConfigError() string {
	return d.config.Error
}

// SendCreated announces a new task.
func (d *Dispatcher) SendCreated(ctx context.Context, task TaskSnapshot) (*MessageHandle, error) {
	if !d.IsConfigured() {
		return nil, ErrNotConfigured
	}

	text, err := d.render(NotificationPayload{MessageType: MessageTypeCreated, Task: task})
	if err != nil {
		return nil, err
	}

	return d.send(ctx, opSendCreated, text, slog.String("task_id", task.ID))
}

// SendUpdated mirrors a task change into the chat. When previousMessageID is
// set the existing message is edited in place; if that fails for any reason a
// new message is sent and its handle returned so the caller can store the new id.
func (d *Dispatcher) SendUpdated(ctx context.Context, update TaskUpdate, previousMessageID *int64) (*MessageHandle, error) {
	if !d.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if update.Changes.IsEmpty() {
		return nil, ErrNoChanges
	}

	text, err := d.render(NotificationPayload{
		MessageType: MessageTypeUpdated,
		Task:        update.Task,
		Changes:     update.Changes,
	})
	if err != nil {
		return nil, err
	}

	if previousMessageID != nil {
		handle, err := d.EditMessage(ctx, *previousMessageID, text)
		if err == nil {
			return handle, nil
		}
		d.logger.Info("edit failed, sending new message",
			"task_id", update.Task.ID,
			"message_id", *previousMessageID,
			"category", CategoryOf(err),
			"error", err,
		)
	}

	return d.send(ctx, opSendUpdated, text, slog.String("task_id", update.Task.ID))
}

// SendReminder sends an overdue reminder. Reminders are never edits.
func (d *Dispatcher) SendReminder(ctx context.Context, task TaskSnapshot, hoursOverdue int) (*MessageHandle, error) {
	if !d.IsConfigured() {
		return nil, ErrNotConfigured
	}

	text, err := d.render(NotificationPayload{
		MessageType:  MessageTypeReminder,
		Task:         task,
		HoursOverdue: hoursOverdue,
	})
	if err != nil {
		return nil, err
	}

	return d.send(ctx, opSendReminder, text,
		slog.String("task_id", task.ID),
		slog.Int("hours_overdue", hoursOverdue),
	)
}

// SendText sends operator-supplied plain text. The text is escaped, not templated.
func (d *Dispatcher) SendText(ctx context.Context, text string) (*MessageHandle, error) {
	if !d.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if text == "" {
		return nil, ErrEmptyMessage
	}

	return d.send(ctx, opSendText, EscapeMarkdown(text))
}

// EditMessage replaces the text of an existing message. An edit that would
// not change the text counts as success. A deleted or uneditable message
// yields an error matching ErrEditTargetGone.
func (d *Dispatcher) EditMessage(ctx context.Context, messageID int64, text string) (*MessageHandle, error) {
	if !d.IsConfigured() {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	err := d.retryOnRateLimit(ctx, opEdit, func() error {
		return d.transport.EditMessageText(ctx, d.config.ChatID, messageID, text)
	})
	recordNotificationDuration(opEdit, time.Since(start))

	handle := &MessageHandle{MessageID: messageID, ChatID: d.config.ChatID, Edited: true}

	if err != nil {
		category := CategoryOf(err)
		switch category {
		case CategoryNotModified:
			recordNotificationSent(opEdit, "unchanged")
			d.logger.Debug("message already up to date", "message_id", messageID)
			return handle, nil
		case CategoryMessageGone:
			recordNotificationSent(opEdit, "gone")
			return nil, &DispatchError{Op: opEdit, Category: category, Err: fmt.Errorf("%w: %w", ErrEditTargetGone, err)}
		}
		return nil, d.fail(opEdit, err, slog.Int64("message_id", messageID))
	}

	recordNotificationSent(opEdit, "success")
	d.logger.Debug("telegram message edited", "message_id", messageID)
	return handle, nil
}

// DeleteMessage removes a message from the chat. A message that is already
// gone is not an error.
func (d *Dispatcher) DeleteMessage(ctx context.Context, messageID int64) error {
	if !d.IsConfigured() {
		return ErrNotConfigured
	}

	start := time.Now()
	err := d.transport.DeleteMessage(ctx, d.config.ChatID, messageID)
	recordNotificationDuration(opDelete, time.Since(start))

	if err != nil {
		if CategoryOf(err) == CategoryMessageGone {
			recordNotificationSent(opDelete, "gone")
			return nil
		}
		return d.fail(opDelete, err, slog.Int64("message_id", messageID))
	}

	recordNotificationSent(opDelete, "success")
	return nil
}

// TestConnection verifies the bot credential.
func (d *Dispatcher) TestConnection(ctx context.Context) ConnectionResult {
	if !d.IsConfigured() {
		return ConnectionResult{Error: d.config.Error}
	}

	bot, err := d.transport.GetMe(ctx)
	if err != nil {
		dispatchErr := d.fail(opGetMe, err)
		return ConnectionResult{Error: dispatchErr.Error(), Category: dispatchErr.Category}
	}

	recordNotificationSent(opGetMe, "success")
	d.logger.Info("telegram connection verified", "bot_username", bot.Username)
	return ConnectionResult{OK: true, Username: bot.Username}
}

func (d *Dispatcher) render(payload NotificationPayload) (string, error) {
	payload.GeneratedAt = d.now()
	text, err := d.renderer.Render(payload)
	if err != nil {
		d.logger.Error("failed to render notification", "message_type", payload.MessageType, "error", err)
		return "", fmt.Errorf("render %s notification: %w", payload.MessageType, err)
	}
	return text, nil
}

func (d *Dispatcher) send(ctx context.Context, op, text string, attrs ...any) (*MessageHandle, error) {
	start := time.Now()
	var messageID int64
	err := d.retryOnRateLimit(ctx, op, func() error {
		var err error
		messageID, err = d.transport.SendMessage(ctx, d.config.ChatID, text)
		return err
	})
	recordNotificationDuration(op, time.Since(start))

	if err != nil {
		return nil, d.fail(op, err, attrs...)
	}

	recordNotificationSent(op, "success")
	d.logger.Debug("telegram message sent", append([]any{"operation", op, "message_id", messageID}, attrs...)...)

	return &MessageHandle{MessageID: messageID, ChatID: d.config.ChatID}, nil
}

// retryOnRateLimit runs call and repeats it once when the transport was
// throttled for no longer than maxRetryWait.
func (d *Dispatcher) retryOnRateLimit(ctx context.Context, op string, call func() error) error {
	err := call()
	if err == nil || CategoryOf(err) != CategoryRateLimited {
		return err
	}
	wait := RetryAfterOf(err)
	if wait <= 0 || wait > d.maxRetryWait {
		return err
	}

	recordNotificationSent(op, "throttled")
	d.logger.Info("telegram rate limited, retrying", "operation", op, "retry_after", wait)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return err
	case <-timer.C:
	}
	return call()
}

func (d *Dispatcher) fail(op string, err error, attrs ...any) *DispatchError {
	category := CategoryOf(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		category = CategoryUnavailable
	}

	recordNotificationSent(op, "failed")

	args := append([]any{"operation", op, "category", category, "error", err}, attrs...)
	if hint := category.Hint(); hint != "" {
		args = append(args, "hint", hint)
	}
	d.logger.Warn("telegram request failed", args...)

	return &DispatchError{Op: op, Category: category, Err: err}
}
