// Package domain contains core business entities.
package domain

import "time"

// TaskStatus represents the kanban column a task belongs to.
type TaskStatus string

// Task statuses.
const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
)

// IsValid checks if the status is known.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// Task represents a unit of work on the board.
type Task struct {
	ID                 string       `json:"id"`
	Title              string       `json:"title"`
	Description        string       `json:"description,omitempty"`
	Status             TaskStatus   `json:"status"`
	Order              int          `json:"order"`
	DueDate            *time.Time   `json:"due_date,omitempty"`
	UserID             string       `json:"user_id"`
	User               User         `json:"user"`
	PriorityID         string       `json:"priority_id"`
	Priority           Priority     `json:"priority"`
	ProjectID          *string      `json:"project_id,omitempty"`
	Project            *Project     `json:"project,omitempty"`
	Attachments        []Attachment `json:"attachments"`
	Comments           []Comment    `json:"comments"`
	TelegramMessageID  *int64       `json:"telegram_message_id,omitempty"`
	ReminderCheckpoint int          `json:"-"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// IsOverdue reports whether the task has a due date in the past and is not done.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.Status != TaskStatusDone && t.DueDate.Before(now)
}

// Priority is a named urgency level.
type Priority struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
	Color string `json:"color,omitempty"`
}

// Project groups tasks.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

// Attachment is a file attached to a task.
type Attachment struct {
	ID           string    `json:"id"`
	TaskID       string    `json:"task_id"`
	Name         string    `json:"name"`
	OriginalName string    `json:"original_name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mime_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// Comment is a note left on a task by a user.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	UserID    string    `json:"user_id"`
	User      User      `json:"user"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
