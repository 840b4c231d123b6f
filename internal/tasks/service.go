// Package tasks provides the task board API and drives chat notifications
// for every task mutation.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/task-garden/internal/domain"
	"github.com/bissquit/task-garden/internal/notifications"
	"github.com/bissquit/task-garden/internal/pkg/metrics"
	"github.com/google/uuid"
)

// Notifier mirrors task changes into the chat.
type Notifier interface {
	IsConfigured() bool
	SendCreated(ctx context.Context, task notifications.TaskSnapshot) (*notifications.MessageHandle, error)
	SendUpdated(ctx context.Context, update notifications.TaskUpdate, previousMessageID *int64) (*notifications.MessageHandle, error)
	DeleteMessage(ctx context.Context, messageID int64) error
}

// Config controls notification side effects of task mutations.
type Config struct {
	// DeleteMessageOnTaskDelete removes the mirrored chat message when its task is deleted.
	DeleteMessageOnTaskDelete bool
}

// Service implements task business logic.
type Service struct {
	repo     Repository
	notifier Notifier
	config   Config
	logger   *slog.Logger
}

// NewService creates a new task service.
func NewService(repo Repository, notifier Notifier, config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		config:   config,
		logger:   logger,
	}
}

// CreateTaskInput holds data for creating a task.
type CreateTaskInput struct {
	Title       string
	Description string
	Status      domain.TaskStatus
	DueDate     *time.Time
	PriorityID  string
	ProjectID   *string
	Order       *int
}

// UpdateTaskInput holds a partial task update. Nil fields are left unchanged.
type UpdateTaskInput struct {
	Title        *string
	Description  *string
	Status       *domain.TaskStatus
	DueDate      *time.Time
	ClearDueDate bool
	PriorityID   *string
	ProjectID    *string
	ClearProject bool
	Order        *int
}

// CreateTask creates a task owned by userID and announces it in the chat.
func (s *Service) CreateTask(ctx context.Context, input CreateTaskInput, userID string) (*domain.Task, error) {
	status := input.Status
	if status == "" {
		status = domain.TaskStatusTodo
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.validateReferences(ctx, input.PriorityID, input.ProjectID); err != nil {
		return nil, err
	}

	var order int
	if input.Order != nil {
		order = *input.Order
	} else {
		next, err := s.repo.NextOrder(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("next order: %w", err)
		}
		order = next
	}

	task := &domain.Task{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Status:      status,
		Order:       order,
		DueDate:     input.DueDate,
		UserID:      userID,
		PriorityID:  input.PriorityID,
		ProjectID:   input.ProjectID,
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	created, err := s.repo.GetTask(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("reload task: %w", err)
	}

	metrics.RecordTaskMutation("create")
	s.notifyCreated(ctx, created)
	return created, nil
}

// GetTask returns a task with all relations.
func (s *Service) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return s.repo.GetTask(ctx, id)
}

// ListTasks returns tasks ordered by column position.
func (s *Service) ListTasks(ctx context.Context, filter TaskFilter) ([]*domain.Task, error) {
	return s.repo.ListTasks(ctx, filter)
}

// UpdateTask applies a partial update and mirrors the resulting changes.
func (s *Service) UpdateTask(ctx context.Context, id string, input UpdateTaskInput) (*domain.Task, error) {
	before, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *before

	if input.Title != nil {
		updated.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		updated.Description = *input.Description
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, *input.Status)
		}
		updated.Status = *input.Status
	}
	if input.ClearDueDate {
		updated.DueDate = nil
	} else if input.DueDate != nil {
		updated.DueDate = input.DueDate
	}
	if input.PriorityID != nil {
		updated.PriorityID = *input.PriorityID
	}
	if input.ClearProject {
		updated.ProjectID = nil
	} else if input.ProjectID != nil {
		updated.ProjectID = input.ProjectID
	}
	if input.Order != nil {
		updated.Order = *input.Order
	}

	if err := s.validateReferences(ctx, updated.PriorityID, updated.ProjectID); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTask(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	after, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload task: %w", err)
	}

	metrics.RecordTaskMutation("update")
	changes := notifications.ComputeChanges(notifications.StateFromTask(before), notifications.StateFromTask(after))
	s.notifyUpdated(ctx, after, changes)

	return after, nil
}

// DeleteTask removes a task and, if enabled, its chat message.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	metrics.RecordTaskMutation("delete")

	if !s.config.DeleteMessageOnTaskDelete || task.TelegramMessageID == nil || !s.notifier.IsConfigured() {
		return nil
	}

	if err := s.notifier.DeleteMessage(ctx, *task.TelegramMessageID); err != nil {
		s.logger.Warn("failed to delete task message",
			"task_id", id,
			"message_id", *task.TelegramMessageID,
			"error", err,
		)
	}
	return nil
}

// BatchUpdate reorders tasks, optionally moving them between columns.
// Pure reorders produce no notification.
func (s *Service) BatchUpdate(ctx context.Context, items []BatchItem) ([]*domain.Task, error) {
	before := make(map[string]*domain.Task, len(items))
	for _, item := range items {
		if item.Status != nil && !item.Status.IsValid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, *item.Status)
		}
		task, err := s.repo.GetTask(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		before[item.ID] = task
	}

	if err := s.repo.ApplyBatch(ctx, items); err != nil {
		return nil, fmt.Errorf("apply batch: %w", err)
	}
	metrics.RecordTaskMutation("batch")

	result := make([]*domain.Task, 0, len(items))
	for _, item := range items {
		after, err := s.repo.GetTask(ctx, item.ID)
		if err != nil {
			return nil, fmt.Errorf("reload task %s: %w", item.ID, err)
		}

		changes := notifications.ComputeChanges(notifications.StateFromTask(before[item.ID]), notifications.StateFromTask(after))
		s.notifyUpdated(ctx, after, changes)

		result = append(result, after)
	}

	return result, nil
}

// AddComment adds a comment to a task and mirrors it.
func (s *Service) AddComment(ctx context.Context, taskID, userID, content string) (*domain.Comment, error) {
	if _, err := s.repo.GetTask(ctx, taskID); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	comment := &domain.Comment{
		ID:      uuid.NewString(),
		TaskID:  taskID,
		UserID:  userID,
		User:    *user,
		Content: content,
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}

	s.notifyComment(ctx, taskID, notifications.CommentAdded, user.DisplayName())
	return comment, nil
}

// UpdateComment edits the caller's own comment.
func (s *Service) UpdateComment(ctx context.Context, taskID, commentID, userID, content string) (*domain.Comment, error) {
	comment, err := s.ownedComment(ctx, taskID, commentID, userID)
	if err != nil {
		return nil, err
	}

	comment.Content = content
	if err := s.repo.UpdateComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}

	s.notifyComment(ctx, taskID, notifications.CommentEdited, comment.User.DisplayName())
	return comment, nil
}

// DeleteComment removes the caller's own comment.
func (s *Service) DeleteComment(ctx context.Context, taskID, commentID, userID string) error {
	comment, err := s.ownedComment(ctx, taskID, commentID, userID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteComment(ctx, comment.ID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}

	s.notifyComment(ctx, taskID, notifications.CommentDeleted, comment.User.DisplayName())
	return nil
}

// AddAttachment records an uploaded file against a task.
func (s *Service) AddAttachment(ctx context.Context, taskID string, attachment *domain.Attachment) (*domain.Attachment, error) {
	before, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	attachment.ID = uuid.NewString()
	attachment.TaskID = taskID
	if attachment.OriginalName == "" {
		attachment.OriginalName = attachment.Name
	}
	if err := s.repo.CreateAttachment(ctx, attachment); err != nil {
		return nil, fmt.Errorf("create attachment: %w", err)
	}

	s.notifyReloaded(ctx, before)
	return attachment, nil
}

// DeleteAttachment removes an attachment record from a task.
func (s *Service) DeleteAttachment(ctx context.Context, taskID, attachmentID string) error {
	before, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteAttachment(ctx, taskID, attachmentID); err != nil {
		return err
	}

	s.notifyReloaded(ctx, before)
	return nil
}

// CreateUser registers a user.
func (s *Service) CreateUser(ctx context.Context, name, email string) (*domain.User, error) {
	user := &domain.User{
		ID:    uuid.NewString(),
		Name:  strings.TrimSpace(name),
		Email: strings.ToLower(strings.TrimSpace(email)),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ListPriorities returns all priorities ordered by level.
func (s *Service) ListPriorities(ctx context.Context) ([]domain.Priority, error) {
	return s.repo.ListPriorities(ctx)
}

// ListProjects returns all projects ordered by name.
func (s *Service) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return s.repo.ListProjects(ctx)
}

// CreateProject creates a project.
func (s *Service) CreateProject(ctx context.Context, project *domain.Project) error {
	project.ID = uuid.NewString()
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *Service) ownedComment(ctx context.Context, taskID, commentID, userID string) (*domain.Comment, error) {
	comment, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.TaskID != taskID {
		return nil, ErrCommentNotFound
	}
	if comment.UserID != userID {
		return nil, ErrCommentNotOwned
	}
	return comment, nil
}

func (s *Service) validateReferences(ctx context.Context, priorityID string, projectID *string) error {
	if _, err := s.repo.GetPriority(ctx, priorityID); err != nil {
		return err
	}
	if projectID != nil {
		if _, err := s.repo.GetProject(ctx, *projectID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) notifyCreated(ctx context.Context, task *domain.Task) {
	if !s.notifier.IsConfigured() {
		return
	}

	handle, err := s.notifier.SendCreated(ctx, notifications.SnapshotFromTask(task))
	if err != nil {
		s.logger.Warn("failed to send task created notification", "task_id", task.ID, "error", err)
		return
	}
	s.storeMessageID(ctx, task, handle)
}

func (s *Service) notifyUpdated(ctx context.Context, task *domain.Task, changes notifications.ChangeSet) {
	if changes.IsEmpty() || !s.notifier.IsConfigured() {
		return
	}

	update := notifications.TaskUpdate{
		Task:    notifications.SnapshotFromTask(task),
		Changes: changes,
	}
	handle, err := s.notifier.SendUpdated(ctx, update, task.TelegramMessageID)
	if err != nil {
		s.logger.Warn("failed to send task updated notification",
			"task_id", task.ID,
			"changes", changes.Fields(),
			"error", err,
		)
		return
	}
	s.storeMessageID(ctx, task, handle)
}

// notifyReloaded reloads the task and mirrors whatever changed since before.
func (s *Service) notifyReloaded(ctx context.Context, before *domain.Task) {
	if !s.notifier.IsConfigured() {
		return
	}

	after, err := s.repo.GetTask(ctx, before.ID)
	if err != nil {
		s.logger.Warn("failed to reload task for notification", "task_id", before.ID, "error", err)
		return
	}
	changes := notifications.ComputeChanges(notifications.StateFromTask(before), notifications.StateFromTask(after))
	s.notifyUpdated(ctx, after, changes)
}

func (s *Service) notifyComment(ctx context.Context, taskID string, action notifications.CommentAction, author string) {
	if !s.notifier.IsConfigured() {
		return
	}

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		s.logger.Warn("failed to reload task for comment notification", "task_id", taskID, "error", err)
		return
	}
	s.notifyUpdated(ctx, task, notifications.CommentChange(action, author))
}

// storeMessageID persists the id of the message now mirroring the task.
func (s *Service) storeMessageID(ctx context.Context, task *domain.Task, handle *notifications.MessageHandle) {
	if handle == nil {
		return
	}
	if task.TelegramMessageID != nil && *task.TelegramMessageID == handle.MessageID {
		return
	}

	id := handle.MessageID
	if err := s.repo.SetTelegramMessageID(ctx, task.ID, &id); err != nil {
		s.logger.Warn("failed to store telegram message id",
			"task_id", task.ID,
			"message_id", id,
			"error", err,
		)
		return
	}
	task.TelegramMessageID = &id
}
