package notifications

import (
	"time"

	"github.com/bissquit/task-garden/internal/domain"
)

// ChangeField names a task field tracked by ChangeSet.
type ChangeField string

// Tracked fields, in display order.
const (
	FieldTitle       ChangeField = "title"
	FieldDescription ChangeField = "description"
	FieldStatus      ChangeField = "status"
	FieldDueDate     ChangeField = "due_date"
	FieldPriority    ChangeField = "priority"
	FieldProject     ChangeField = "project"
	FieldAttachments ChangeField = "attachments"
	FieldComments    ChangeField = "comments"
)

// CommentAction describes what happened to a comment.
type CommentAction string

// Comment actions.
const (
	CommentAdded   CommentAction = "added"
	CommentEdited  CommentAction = "edited"
	CommentDeleted CommentAction = "deleted"
)

// TaskState holds the task fields that are compared between two versions.
type TaskState struct {
	Title           string
	Description     string
	Status          domain.TaskStatus
	DueDate         *time.Time
	Priority        PriorityInfo
	Project         *ProjectInfo
	AttachmentCount int
}

// TextChange is an old/new pair of strings.
type TextChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// StatusChange is an old/new pair of statuses.
type StatusChange struct {
	From domain.TaskStatus `json:"from"`
	To   domain.TaskStatus `json:"to"`
}

// DueDateChange is an old/new pair of due dates; nil means no due date.
type DueDateChange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// PriorityChange carries resolved names and levels of both priorities.
type PriorityChange struct {
	From PriorityInfo `json:"from"`
	To   PriorityInfo `json:"to"`
}

// ProjectChange carries both projects; nil means no project.
type ProjectChange struct {
	From *ProjectInfo `json:"from,omitempty"`
	To   *ProjectInfo `json:"to,omitempty"`
}

// CountChange is an old/new pair of counts.
type CountChange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// CommentActivity records a comment mutation.
type CommentActivity struct {
	Action CommentAction `json:"action"`
	Author string        `json:"author"`
}

// ChangeSet is a sparse record of what changed in a task. Nil entries did not change.
type ChangeSet struct {
	Title       *TextChange      `json:"title,omitempty"`
	Description *TextChange      `json:"description,omitempty"`
	Status      *StatusChange    `json:"status,omitempty"`
	DueDate     *DueDateChange   `json:"due_date,omitempty"`
	Priority    *PriorityChange  `json:"priority,omitempty"`
	Project     *ProjectChange   `json:"project,omitempty"`
	Attachments *CountChange     `json:"attachments,omitempty"`
	Comments    *CommentActivity `json:"comments,omitempty"`
}

// Fields returns the changed fields in display order.
func (c ChangeSet) Fields() []ChangeField {
	var fields []ChangeField
	if c.Title != nil {
		fields = append(fields, FieldTitle)
	}
	if c.Description != nil {
		fields = append(fields, FieldDescription)
	}
	if c.Status != nil {
		fields = append(fields, FieldStatus)
	}
	if c.DueDate != nil {
		fields = append(fields, FieldDueDate)
	}
	if c.Priority != nil {
		fields = append(fields, FieldPriority)
	}
	if c.Project != nil {
		fields = append(fields, FieldProject)
	}
	if c.Attachments != nil {
		fields = append(fields, FieldAttachments)
	}
	if c.Comments != nil {
		fields = append(fields, FieldComments)
	}
	return fields
}

// Len returns the number of changed fields.
func (c ChangeSet) Len() int {
	return len(c.Fields())
}

// IsEmpty reports whether nothing changed.
func (c ChangeSet) IsEmpty() bool {
	return c.Len() == 0
}

// ComputeChanges compares two versions of a task. Strings are compared
// exactly, due dates at millisecond precision, priority and project by id.
func ComputeChanges(before, after TaskState) ChangeSet {
	var changes ChangeSet

	if before.Title != after.Title {
		changes.Title = &TextChange{From: before.Title, To: after.Title}
	}

	if before.Description != after.Description {
		changes.Description = &TextChange{From: before.Description, To: after.Description}
	}

	if before.Status != after.Status {
		changes.Status = &StatusChange{From: before.Status, To: after.Status}
	}

	if !sameInstant(before.DueDate, after.DueDate) {
		changes.DueDate = &DueDateChange{From: before.DueDate, To: after.DueDate}
	}

	if before.Priority.ID != after.Priority.ID {
		changes.Priority = &PriorityChange{From: before.Priority, To: after.Priority}
	}

	if projectID(before.Project) != projectID(after.Project) {
		changes.Project = &ProjectChange{From: before.Project, To: after.Project}
	}

	if before.AttachmentCount != after.AttachmentCount {
		changes.Attachments = &CountChange{From: before.AttachmentCount, To: after.AttachmentCount}
	}

	return changes
}

// CommentChange returns a change set describing a single comment mutation.
func CommentChange(action CommentAction, author string) ChangeSet {
	return ChangeSet{Comments: &CommentActivity{Action: action, Author: author}}
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Truncate(time.Millisecond).Equal(b.Truncate(time.Millisecond))
}

func projectID(p *ProjectInfo) string {
	if p == nil {
		return ""
	}
	return p.ID
}
