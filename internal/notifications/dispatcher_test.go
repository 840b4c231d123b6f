package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bissquit/task-garden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, cfg TransportConfig, transport Transport) *Dispatcher {
	t.Helper()
	renderer, err := NewRenderer()
	require.NoError(t, err)
	return NewDispatcher(cfg, transport, renderer, WithDispatcherClock(func() time.Time { return renderNow }))
}

func statusUpdate() TaskUpdate {
	task := shipV2Snapshot()
	task.Status = domain.TaskStatusDone
	return TaskUpdate{
		Task:    task,
		Changes: ChangeSet{Status: &StatusChange{From: domain.TaskStatusTodo, To: domain.TaskStatusDone}},
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestDispatcher_NotConfigured(t *testing.T) {
	transport := newMockTransport()
	d := newTestDispatcher(t, NewTransportConfig("", ""), transport)
	ctx := context.Background()

	assert.False(t, d.IsConfigured())
	assert.Equal(t, configErrMissing, d.ConfigError())

	_, err := d.SendCreated(ctx, shipV2Snapshot())
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = d.SendUpdated(ctx, statusUpdate(), int64Ptr(5))
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = d.SendReminder(ctx, shipV2Snapshot(), 6)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = d.SendText(ctx, "hello")
	assert.ErrorIs(t, err, ErrNotConfigured)

	assert.ErrorIs(t, d.DeleteMessage(ctx, 5), ErrNotConfigured)

	result := d.TestConnection(ctx)
	assert.False(t, result.OK)
	assert.Equal(t, configErrMissing, result.Error)

	assert.Empty(t, transport.sent)
	assert.Empty(t, transport.edits)
}

func TestDispatcher_SendCreated(t *testing.T) {
	transport := newMockTransport()
	d := newTestDispatcher(t, configuredTransport(), transport)

	handle, err := d.SendCreated(context.Background(), shipV2Snapshot())

	require.NoError(t, err)
	assert.Equal(t, int64(101), handle.MessageID)
	assert.Equal(t, testChatID, handle.ChatID)
	assert.False(t, handle.Edited)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, testChatID, transport.sent[0].ChatID)
	assert.Contains(t, transport.sent[0].Text, "NEW TASK CREATED")
}

func TestDispatcher_SendUpdated_NoPreviousMessageSendsNew(t *testing.T) {
	transport := newMockTransport()
	d := newTestDispatcher(t, configuredTransport(), transport)

	handle, err := d.SendUpdated(context.Background(), statusUpdate(), nil)

	require.NoError(t, err)
	assert.Equal(t, int64(101), handle.MessageID)
	assert.False(t, handle.Edited)
	assert.Empty(t, transport.edits)
	require.Len(t, transport.sent, 1)
	assert.Contains(t, transport.sent[0].Text, "TODO → DONE")
}

func TestDispatcher_SendUpdated_EditsInPlace(t *testing.T) {
	transport := newMockTransport()
	d := newTestDispatcher(t, configuredTransport(), transport)

	handle, err := d.SendUpdated(context.Background(), statusUpdate(), int64Ptr(55))

	require.NoError(t, err)
	assert.Equal(t, int64(55), handle.MessageID)
	assert.True(t, handle.Edited)
	require.Len(t, transport.edits, 1)
	assert.Equal(t, int64(55), transport.edits[0].MessageID)
	assert.Empty(t, transport.sent)
}

func TestDispatcher_SendUpdated_NotModifiedIsSuccess(t *testing.T) {
	transport := newMockTransport()
	transport.editErr = &apiError{category: CategoryNotModified, msg: "message is not modified"}
	d := newTestDispatcher(t, configuredTransport(), transport)

	handle, err := d.SendUpdated(context.Background(), statusUpdate(), int64Ptr(55))

	require.NoError(t, err)
	assert.Equal(t, int64(55), handle.MessageID)
	assert.Empty(t, transport.sent)
}

func TestDispatcher_SendUpdated_FallsBackToSend(t *testing.T) {
	editErrors := []error{
		&apiError{category: CategoryMessageGone, msg: "message to edit not found"},
		&apiError{category: CategoryUnknown, msg: "can't parse entities"},
		errors.New("connection reset"),
	}

	for _, editErr := range editErrors {
		t.Run(editErr.Error(), func(t *testing.T) {
			transport := newMockTransport()
			transport.editErr = editErr
			d := newTestDispatcher(t, configuredTransport(), transport)

			handle, err := d.SendUpdated(context.Background(), statusUpdate(), int64Ptr(55))

			require.NoError(t, err)
			assert.Equal(t, int64(101), handle.MessageID, "new id replaces the stale one")
			assert.False(t, handle.Edited)
			assert.Len(t, transport.edits, 1)
			assert.Len(t, transport.sent, 1)
		})
	}
}

func TestDispatcher_SendUpdated_FallbackSendFails(t *testing.T) {
	transport := newMockTransport()
	transport.editErr = &apiError{category: CategoryMessageGone, msg: "message to edit not found"}
	transport.sendErr = &apiError{category: CategoryInvalidDestination, msg: "chat not found"}
	d := newTestDispatcher(t, configuredTransport(), transport)

	handle, err := d.SendUpdated(context.Background(), statusUpdate(), int64Ptr(55))

	assert.Nil(t, handle)
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, opSendUpdated, dispatchErr.Op)
	assert.Equal(t, CategoryInvalidDestination, dispatchErr.Category)
}

func TestDispatcher_SendUpdated_EmptyChangeSet(t *testing.T) {
	transport := newMockTransport()
	d := newTestDispatcher(t, configuredTransport(), transport)

	_, err := d.SendUpdated(context.Background(), TaskUpdate{Task: shipV2Snapshot()}, int64Ptr(55))

	assert.ErrorIs(t, err, ErrNoChanges)
	assert.Empty(t, transport.sent)
	assert.Empty(t, transport.edits)
}

func TestDispatcher_EditMessage_TargetGone(t *testing.T) {
	transport := newMockTransport()
	transport.editErr = &apiError{category: CategoryMessageGone, msg: "message can't be edited"}
	d := newTestDispatcher(t, configuredTransport(), transport)

	_, err := d.EditMessage(context.Background(), 9, "text")

	assert.ErrorIs(t, err, ErrEditTargetGone)
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, CategoryMessageGone, dispatchErr.Category)
}

func TestDispatcher_SendReminder_NeverEdits(t *testing.T) {
	transport := newMockTransport()
	d := newTestDispatcher(t, configuredTransport(), transport)

	first, err := d.SendReminder(context.Background(), shipV2Snapshot(), 6)
	require.NoError(t, err)
	second, err := d.SendReminder(context.Background(), shipV2Snapshot(), 12)
	require.NoError(t, err)

	assert.NotEqual(t, first.MessageID, second.MessageID)
	assert.Empty(t, transport.edits)
	require.Len(t, transport.sent, 2)
	assert.Contains(t, transport.sent[0].Text, "6 hours overdue")
	assert.Contains(t, transport.sent[1].Text, "12 hours overdue")
}

func TestDispatcher_SendText(t *testing.T) {
	transport := newMockTransport()
	d := newTestDispatcher(t, configuredTransport(), transport)

	_, err := d.SendText(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	handle, err := d.SendText(context.Background(), DefaultTestMessage)
	require.NoError(t, err)
	assert.NotZero(t, handle.MessageID)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, EscapeMarkdown(DefaultTestMessage), transport.sent[0].Text)
}

func TestDispatcher_SendFailureIsCategorized(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category FailureCategory
	}{
		{name: "bad token", err: &apiError{category: CategoryInvalidCredential, msg: "Unauthorized"}, category: CategoryInvalidCredential},
		{name: "bad chat", err: &apiError{category: CategoryInvalidDestination, msg: "chat not found"}, category: CategoryInvalidDestination},
		{name: "throttled", err: &apiError{category: CategoryRateLimited, msg: "Too Many Requests"}, category: CategoryRateLimited},
		{name: "timeout", err: context.DeadlineExceeded, category: CategoryUnavailable},
		{name: "plain error", err: errors.New("boom"), category: CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newMockTransport()
			transport.sendErr = tt.err
			d := newTestDispatcher(t, configuredTransport(), transport)

			handle, err := d.SendCreated(context.Background(), shipV2Snapshot())

			assert.Nil(t, handle)
			var dispatchErr *DispatchError
			require.ErrorAs(t, err, &dispatchErr)
			assert.Equal(t, tt.category, dispatchErr.Category)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDispatcher_RetriesOnceAfterShortRateLimit(t *testing.T) {
	throttled := &apiError{category: CategoryRateLimited, msg: "Too Many Requests", retryAfter: 10 * time.Millisecond}

	tests := []struct {
		name      string
		errs      []error
		maxWait   time.Duration
		wantCalls int
		wantErr   bool
	}{
		{name: "retry succeeds", errs: []error{throttled}, maxWait: time.Second, wantCalls: 2},
		{name: "retry throttled again", errs: []error{throttled, throttled}, maxWait: time.Second, wantCalls: 2, wantErr: true},
		{name: "wait too long", errs: []error{throttled}, maxWait: time.Millisecond, wantCalls: 1, wantErr: true},
		{name: "retry disabled", errs: []error{throttled}, maxWait: 0, wantCalls: 1, wantErr: true},
		{
			name:      "no retry hint",
			errs:      []error{&apiError{category: CategoryRateLimited, msg: "Too Many Requests"}},
			maxWait:   time.Second,
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name:      "not throttled",
			errs:      []error{&apiError{category: CategoryUnknown, msg: "boom", retryAfter: time.Millisecond}},
			maxWait:   time.Second,
			wantCalls: 1,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newMockTransport()
			transport.sendErrs = tt.errs
			renderer, err := NewRenderer()
			require.NoError(t, err)
			d := NewDispatcher(configuredTransport(), transport, renderer, WithDispatcherMaxRetryWait(tt.maxWait))

			handle, err := d.SendCreated(context.Background(), shipV2Snapshot())

			assert.Equal(t, tt.wantCalls, transport.sendCalls)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, handle)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(101), handle.MessageID)
		})
	}
}

func TestDispatcher_RateLimitRetryStopsOnCancel(t *testing.T) {
	transport := newMockTransport()
	transport.sendErrs = []error{&apiError{category: CategoryRateLimited, msg: "Too Many Requests", retryAfter: time.Second}}
	d := newTestDispatcher(t, configuredTransport(), transport)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := d.SendText(ctx, "hello")

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, CategoryRateLimited, dispatchErr.Category)
	assert.Equal(t, 1, transport.sendCalls)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDispatcher_EditRetriesAfterShortRateLimit(t *testing.T) {
	transport := &flakyEditTransport{
		mockTransport: newMockTransport(),
		first:         &apiError{category: CategoryRateLimited, msg: "Too Many Requests", retryAfter: 5 * time.Millisecond},
	}
	d := newTestDispatcher(t, configuredTransport(), transport)

	handle, err := d.EditMessage(context.Background(), 55, "text")

	require.NoError(t, err)
	assert.True(t, handle.Edited)
	assert.Len(t, transport.edits, 2)
}

func TestDispatcher_DeleteMessage(t *testing.T) {
	transport := newMockTransport()
	d := newTestDispatcher(t, configuredTransport(), transport)

	require.NoError(t, d.DeleteMessage(context.Background(), 77))
	assert.Equal(t, []int64{77}, transport.deleted)

	transport.deleteErr = &apiError{category: CategoryMessageGone, msg: "message to delete not found"}
	assert.NoError(t, d.DeleteMessage(context.Background(), 78))

	transport.deleteErr = &apiError{category: CategoryInvalidCredential, msg: "Unauthorized"}
	assert.Error(t, d.DeleteMessage(context.Background(), 79))
}

func TestDispatcher_TestConnection(t *testing.T) {
	transport := newMockTransport()
	d := newTestDispatcher(t, configuredTransport(), transport)

	result := d.TestConnection(context.Background())
	assert.True(t, result.OK)
	assert.Equal(t, "garden_bot", result.Username)

	transport.getMeErr = &apiError{category: CategoryInvalidCredential, msg: "Unauthorized"}
	result = d.TestConnection(context.Background())
	assert.False(t, result.OK)
	assert.Equal(t, CategoryInvalidCredential, result.Category)
	assert.Contains(t, result.Error, "Unauthorized")
}
