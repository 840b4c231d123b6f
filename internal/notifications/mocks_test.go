package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/bissquit/task-garden/internal/domain"
)

const (
	testBotToken = "123456789:ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghi"
	testChatID   = "-1001234567890"
)

// apiError is a transport error with a fixed category.
type apiError struct {
	category   FailureCategory
	msg        string
	retryAfter time.Duration
}

func (e *apiError) Error() string             { return e.msg }
func (e *apiError) Category() FailureCategory { return e.category }
func (e *apiError) RetryDelay() time.Duration { return e.retryAfter }

type sentMessage struct {
	ChatID string
	Text   string
}

type editCall struct {
	MessageID int64
	Text      string
}

// mockTransport implements Transport for testing.
type mockTransport struct {
	mu sync.Mutex

	nextID  int64
	sent    []sentMessage
	edits   []editCall
	deleted []int64

	sendCalls int
	sendErrs  []error
	sendErr   error
	editErr   error
	deleteErr error
	getMeErr  error
}

func newMockTransport() *mockTransport {
	return &mockTransport{nextID: 100}
}

func (m *mockTransport) SendMessage(_ context.Context, chatID, text string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls++
	if len(m.sendErrs) > 0 {
		err := m.sendErrs[0]
		m.sendErrs = m.sendErrs[1:]
		return 0, err
	}
	if m.sendErr != nil {
		return 0, m.sendErr
	}
	m.nextID++
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text})
	return m.nextID, nil
}

func (m *mockTransport) EditMessageText(_ context.Context, _ string, messageID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, editCall{MessageID: messageID, Text: text})
	return m.editErr
}

func (m *mockTransport) DeleteMessage(_ context.Context, _ string, messageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *mockTransport) GetMe(_ context.Context) (*BotInfo, error) {
	if m.getMeErr != nil {
		return nil, m.getMeErr
	}
	return &BotInfo{ID: 1, Username: "garden_bot", FirstName: "Garden"}, nil
}

func (m *mockTransport) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func configuredTransport() TransportConfig {
	return NewTransportConfig(testBotToken, testChatID)
}

// mockReminderRepository implements ReminderRepository for testing.
type mockReminderRepository struct {
	mu sync.Mutex

	tasks     []*domain.Task
	listErr   error
	dueBefore time.Time
	marked    map[string]int
}

func newMockReminderRepository(tasks ...*domain.Task) *mockReminderRepository {
	return &mockReminderRepository{tasks: tasks, marked: make(map[string]int)}
}

func (m *mockReminderRepository) ListOverdueTasks(_ context.Context, dueBefore time.Time) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dueBefore = dueBefore
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.tasks, nil
}

func (m *mockReminderRepository) MarkReminderSent(_ context.Context, taskID string, checkpoint int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked[taskID] = checkpoint
	for _, t := range m.tasks {
		if t.ID == taskID {
			t.ReminderCheckpoint = checkpoint
		}
	}
	return nil
}

func overdueTask(id string, now time.Time, overdue time.Duration) *domain.Task {
	due := now.Add(-overdue)
	return &domain.Task{
		ID:       id,
		Title:    "Task " + id,
		Status:   domain.TaskStatusTodo,
		DueDate:  &due,
		User:     domain.User{ID: "u1", Email: "alice@example.com"},
		Priority: domain.Priority{ID: "p-high", Name: "High", Level: 3},
	}
}

// flakyEditTransport fails the first edit with a fixed error.
type flakyEditTransport struct {
	*mockTransport
	first error
}

func (f *flakyEditTransport) EditMessageText(ctx context.Context, chatID string, messageID int64, text string) error {
	err := f.mockTransport.EditMessageText(ctx, chatID, messageID, text)
	if f.first != nil {
		err, f.first = f.first, nil
	}
	return err
}
