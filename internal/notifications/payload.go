package notifications

import (
	"time"

	"github.com/bissquit/task-garden/internal/domain"
)

// MessageType defines the type of notification.
type MessageType string

// Message types.
const (
	MessageTypeCreated  MessageType = "created"  // Task created
	MessageTypeUpdated  MessageType = "updated"  // Task or its comments changed
	MessageTypeReminder MessageType = "reminder" // Task passed an overdue checkpoint
)

// NotificationPayload contains data for rendering a notification.
type NotificationPayload struct {
	MessageType  MessageType  `json:"message_type"`
	Task         TaskSnapshot `json:"task"`
	Changes      ChangeSet    `json:"changes"`
	HoursOverdue int          `json:"hours_overdue,omitempty"`
	GeneratedAt  time.Time    `json:"generated_at"`
}

// TaskSnapshot is a read-only view of a task with all relations resolved.
type TaskSnapshot struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Status      domain.TaskStatus `json:"status"`
	DueDate     *time.Time        `json:"due_date,omitempty"`
	Assignee    string            `json:"assignee"`
	Priority    PriorityInfo      `json:"priority"`
	Project     *ProjectInfo      `json:"project,omitempty"`
	Attachments []AttachmentInfo  `json:"attachments,omitempty"`
	Comments    []CommentInfo     `json:"comments,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// PriorityInfo contains priority data for notification context.
type PriorityInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// ProjectInfo contains project data for notification context.
type ProjectInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AttachmentInfo describes an attached file.
type AttachmentInfo struct {
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size,omitempty"`
}

// CommentInfo describes a comment on the task.
type CommentInfo struct {
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskUpdate pairs the post-mutation task with the changes that produced it.
type TaskUpdate struct {
	Task    TaskSnapshot `json:"task"`
	Changes ChangeSet    `json:"changes"`
}

// SnapshotFromTask builds a snapshot from a fully loaded task.
func SnapshotFromTask(task *domain.Task) TaskSnapshot {
	snapshot := TaskSnapshot{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Status:      task.Status,
		DueDate:     task.DueDate,
		Assignee:    task.User.DisplayName(),
		Priority: PriorityInfo{
			ID:    task.Priority.ID,
			Name:  task.Priority.Name,
			Level: task.Priority.Level,
		},
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}

	if task.Project != nil {
		snapshot.Project = &ProjectInfo{ID: task.Project.ID, Name: task.Project.Name}
	}

	for _, a := range task.Attachments {
		name := a.OriginalName
		if name == "" {
			name = a.Name
		}
		snapshot.Attachments = append(snapshot.Attachments, AttachmentInfo{
			OriginalName: name,
			Size:         a.Size,
		})
	}

	for _, c := range task.Comments {
		snapshot.Comments = append(snapshot.Comments, CommentInfo{
			Author:    c.User.DisplayName(),
			Content:   c.Content,
			CreatedAt: c.CreatedAt,
		})
	}

	return snapshot
}

// StateFromTask extracts the fields compared by ComputeChanges.
func StateFromTask(task *domain.Task) TaskState {
	state := TaskState{
		Title:       task.Title,
		Description: task.Description,
		Status:      task.Status,
		DueDate:     task.DueDate,
		Priority: PriorityInfo{
			ID:    task.Priority.ID,
			Name:  task.Priority.Name,
			Level: task.Priority.Level,
		},
		AttachmentCount: len(task.Attachments),
	}
	if task.Project != nil {
		state.Project = &ProjectInfo{ID: task.Project.ID, Name: task.Project.Name}
	}
	return state
}
