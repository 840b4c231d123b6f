package tasks

import (
	"context"

	"github.com/bissquit/task-garden/internal/domain"
)

// Repository defines the interface for task data operations.
// Task reads return the task with user, priority, project, attachments
// and comments loaded.
type Repository interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)
	// UpdateTask writes mutable fields. The reminder checkpoint is reset
	// when the due date changes.
	UpdateTask(ctx context.Context, task *domain.Task) error
	DeleteTask(ctx context.Context, id string) error
	ApplyBatch(ctx context.Context, items []BatchItem) error
	NextOrder(ctx context.Context, status domain.TaskStatus) (int, error)
	SetTelegramMessageID(ctx context.Context, taskID string, messageID *int64) error

	CreateComment(ctx context.Context, comment *domain.Comment) error
	GetComment(ctx context.Context, id string) (*domain.Comment, error)
	UpdateComment(ctx context.Context, comment *domain.Comment) error
	DeleteComment(ctx context.Context, id string) error

	CreateAttachment(ctx context.Context, attachment *domain.Attachment) error
	DeleteAttachment(ctx context.Context, taskID, id string) error

	GetUser(ctx context.Context, id string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
	GetPriority(ctx context.Context, id string) (*domain.Priority, error)
	ListPriorities(ctx context.Context) ([]domain.Priority, error)
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
	CreateProject(ctx context.Context, project *domain.Project) error
}

// TaskFilter contains filter options for listing tasks.
type TaskFilter struct {
	Status    *domain.TaskStatus
	ProjectID *string
	UserID    *string
}

// BatchItem moves a task to a new position and optionally a new column.
type BatchItem struct {
	ID     string             `json:"id" validate:"required"`
	Order  int                `json:"order" validate:"min=0"`
	Status *domain.TaskStatus `json:"status,omitempty"`
}
