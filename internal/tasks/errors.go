package tasks

import "errors"

// Domain errors for tasks module.
var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrCommentNotFound    = errors.New("comment not found")
	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrPriorityNotFound   = errors.New("priority not found")
	ErrProjectNotFound    = errors.New("project not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrCommentNotOwned    = errors.New("comment belongs to another user")
	ErrInvalidStatus      = errors.New("invalid task status")
	ErrEmailExists        = errors.New("user with this email already exists")
)
