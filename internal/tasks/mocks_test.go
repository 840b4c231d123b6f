package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/task-garden/internal/domain"
	"github.com/bissquit/task-garden/internal/notifications"
)

// memoryRepository implements Repository in memory.
type memoryRepository struct {
	mu sync.Mutex

	tasks       map[string]*domain.Task
	comments    map[string]*domain.Comment
	attachments map[string]*domain.Attachment
	users       map[string]*domain.User
	priorities  map[string]domain.Priority
	projects    map[string]domain.Project

	updateErr error
	clock     time.Time
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		tasks:       make(map[string]*domain.Task),
		comments:    make(map[string]*domain.Comment),
		attachments: make(map[string]*domain.Attachment),
		users: map[string]*domain.User{
			"u-alice": {ID: "u-alice", Name: "Alice", Email: "alice@example.com"},
			"u-bob":   {ID: "u-bob", Email: "bob@example.com"},
		},
		priorities: map[string]domain.Priority{
			"p-low":  {ID: "p-low", Name: "Low", Level: 1},
			"p-high": {ID: "p-high", Name: "High", Level: 3},
		},
		projects: map[string]domain.Project{
			"pj-platform": {ID: "pj-platform", Name: "Platform"},
		},
		clock: time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memoryRepository) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memoryRepository) CreateTask(_ context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *task
	stored.CreatedAt = m.tick()
	stored.UpdatedAt = stored.CreatedAt
	m.tasks[task.ID] = &stored
	task.CreatedAt, task.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	return nil
}

// GetTask returns a fresh copy with relations resolved, like the SQL repository.
func (m *memoryRepository) GetTask(_ context.Context, id string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(id)
}

func (m *memoryRepository) load(id string) (*domain.Task, error) {
	stored, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}

	task := *stored
	task.User = *m.users[task.UserID]
	task.Priority = m.priorities[task.PriorityID]
	task.Project = nil
	if task.ProjectID != nil {
		project := m.projects[*task.ProjectID]
		task.Project = &project
	}

	task.Attachments = make([]domain.Attachment, 0)
	for _, a := range m.attachments {
		if a.TaskID == id {
			task.Attachments = append(task.Attachments, *a)
		}
	}
	sort.Slice(task.Attachments, func(i, j int) bool {
		return task.Attachments[i].CreatedAt.Before(task.Attachments[j].CreatedAt)
	})

	task.Comments = make([]domain.Comment, 0)
	for _, c := range m.comments {
		if c.TaskID == id {
			comment := *c
			comment.User = *m.users[c.UserID]
			task.Comments = append(task.Comments, comment)
		}
	}
	sort.Slice(task.Comments, func(i, j int) bool {
		return task.Comments[i].CreatedAt.After(task.Comments[j].CreatedAt)
	})

	return &task, nil
}

func (m *memoryRepository) ListTasks(_ context.Context, filter TaskFilter) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*domain.Task, 0)
	for id, t := range m.tasks {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		task, _ := m.load(id)
		result = append(result, task)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Order < result[j].Order })
	return result, nil
}

func (m *memoryRepository) UpdateTask(_ context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.tasks[task.ID]
	if !ok {
		return ErrTaskNotFound
	}

	checkpoint := stored.ReminderCheckpoint
	if !sameDue(stored.DueDate, task.DueDate) {
		checkpoint = 0
	}

	stored.Title = task.Title
	stored.Description = task.Description
	stored.Status = task.Status
	stored.Order = task.Order
	stored.DueDate = task.DueDate
	stored.PriorityID = task.PriorityID
	stored.ProjectID = task.ProjectID
	stored.ReminderCheckpoint = checkpoint
	stored.UpdatedAt = m.tick()
	return nil
}

func (m *memoryRepository) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *memoryRepository) ApplyBatch(_ context.Context, items []BatchItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		stored, ok := m.tasks[item.ID]
		if !ok {
			return ErrTaskNotFound
		}
		stored.Order = item.Order
		if item.Status != nil {
			stored.Status = *item.Status
		}
	}
	return nil
}

func (m *memoryRepository) NextOrder(_ context.Context, status domain.TaskStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := 0
	for _, t := range m.tasks {
		if t.Status == status && t.Order >= next {
			next = t.Order + 1
		}
	}
	return next, nil
}

func (m *memoryRepository) SetTelegramMessageID(_ context.Context, taskID string, messageID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	stored.TelegramMessageID = messageID
	return nil
}

func (m *memoryRepository) CreateComment(_ context.Context, comment *domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	comment.CreatedAt = m.tick()
	comment.UpdatedAt = comment.CreatedAt
	stored := *comment
	m.comments[comment.ID] = &stored
	return nil
}

func (m *memoryRepository) GetComment(_ context.Context, id string) (*domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.comments[id]
	if !ok {
		return nil, ErrCommentNotFound
	}
	comment := *stored
	comment.User = *m.users[comment.UserID]
	return &comment, nil
}

func (m *memoryRepository) UpdateComment(_ context.Context, comment *domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.comments[comment.ID]
	if !ok {
		return ErrCommentNotFound
	}
	stored.Content = comment.Content
	stored.UpdatedAt = m.tick()
	return nil
}

func (m *memoryRepository) DeleteComment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[id]; !ok {
		return ErrCommentNotFound
	}
	delete(m.comments, id)
	return nil
}

func (m *memoryRepository) CreateAttachment(_ context.Context, attachment *domain.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	attachment.CreatedAt = m.tick()
	stored := *attachment
	m.attachments[attachment.ID] = &stored
	return nil
}

func (m *memoryRepository) DeleteAttachment(_ context.Context, taskID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attachments[id]
	if !ok || a.TaskID != taskID {
		return ErrAttachmentNotFound
	}
	delete(m.attachments, id)
	return nil
}

func (m *memoryRepository) GetUser(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *user
	return &u, nil
}

func (m *memoryRepository) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return ErrEmailExists
		}
	}
	user.CreatedAt = m.tick()
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *memoryRepository) GetPriority(_ context.Context, id string) (*domain.Priority, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.priorities[id]
	if !ok {
		return nil, ErrPriorityNotFound
	}
	return &p, nil
}

func (m *memoryRepository) ListPriorities(_ context.Context) ([]domain.Priority, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.Priority, 0, len(m.priorities))
	for _, p := range m.priorities {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Level < result[j].Level })
	return result, nil
}

func (m *memoryRepository) GetProject(_ context.Context, id string) (*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return &p, nil
}

func (m *memoryRepository) ListProjects(_ context.Context) ([]domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.Project, 0, len(m.projects))
	for _, p := range m.projects {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *memoryRepository) CreateProject(_ context.Context, project *domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[project.ID] = *project
	return nil
}

func sameDue(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

type updatedCall struct {
	Update     notifications.TaskUpdate
	PreviousID *int64
}

// recordingNotifier implements Notifier and records every call.
type recordingNotifier struct {
	mu sync.Mutex

	configured bool
	nextID     int64
	sendErr    error
	deleteErr  error

	created []notifications.TaskSnapshot
	updated []updatedCall
	deleted []int64
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{configured: true, nextID: 500}
}

func (n *recordingNotifier) IsConfigured() bool { return n.configured }

func (n *recordingNotifier) SendCreated(_ context.Context, task notifications.TaskSnapshot) (*notifications.MessageHandle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return nil, n.sendErr
	}
	n.created = append(n.created, task)
	n.nextID++
	return &notifications.MessageHandle{MessageID: n.nextID}, nil
}

// SendUpdated edits in place when a previous id exists, mirroring the dispatcher.
func (n *recordingNotifier) SendUpdated(_ context.Context, update notifications.TaskUpdate, previousMessageID *int64) (*notifications.MessageHandle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return nil, n.sendErr
	}
	n.updated = append(n.updated, updatedCall{Update: update, PreviousID: previousMessageID})
	if previousMessageID != nil {
		return &notifications.MessageHandle{MessageID: *previousMessageID, Edited: true}, nil
	}
	n.nextID++
	return &notifications.MessageHandle{MessageID: n.nextID}, nil
}

func (n *recordingNotifier) DeleteMessage(_ context.Context, messageID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, messageID)
	return n.deleteErr
}
