package tasks

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bissquit/task-garden/internal/domain"
	"github.com/bissquit/task-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrTaskNotFound, Status: http.StatusNotFound},
	{Error: ErrCommentNotFound, Status: http.StatusNotFound},
	{Error: ErrAttachmentNotFound, Status: http.StatusNotFound},
	{Error: ErrPriorityNotFound, Status: http.StatusNotFound},
	{Error: ErrProjectNotFound, Status: http.StatusNotFound},
	{Error: ErrUserNotFound, Status: http.StatusNotFound},
	{Error: ErrCommentNotOwned, Status: http.StatusForbidden},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
	{Error: ErrEmailExists, Status: http.StatusConflict},
}

// Handler handles HTTP requests for the tasks module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new tasks handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers task board routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.ListTasks)
		r.Post("/", h.CreateTask)
		r.Post("/batch", h.BatchUpdate)
		r.Get("/{id}", h.GetTask)
		r.Patch("/{id}", h.UpdateTask)
		r.Delete("/{id}", h.DeleteTask)
		r.Post("/{id}/attachments", h.AddAttachment)
		r.Delete("/{id}/attachments/{attachmentID}", h.DeleteAttachment)
		r.Post("/{id}/comments", h.AddComment)
		r.Patch("/{id}/comments/{commentID}", h.UpdateComment)
		r.Delete("/{id}/comments/{commentID}", h.DeleteComment)
	})

	r.Get("/priorities", h.ListPriorities)
	r.Get("/projects", h.ListProjects)
	r.Post("/projects", h.CreateProject)
	r.Post("/users", h.CreateUser)
}

// CreateTaskRequest represents the request body for creating a task.
type CreateTaskRequest struct {
	Title       string     `json:"title" validate:"required,min=1,max=255"`
	Description string     `json:"description" validate:"max=10000"`
	Status      string     `json:"status" validate:"omitempty,oneof=TODO IN_PROGRESS DONE"`
	DueDate     *time.Time `json:"due_date"`
	PriorityID  string     `json:"priority_id" validate:"required"`
	ProjectID   *string    `json:"project_id" validate:"omitempty,min=1"`
	Order       *int       `json:"order" validate:"omitempty,min=0"`
}

// ToInput converts the request to service input.
func (r *CreateTaskRequest) ToInput() CreateTaskInput {
	return CreateTaskInput{
		Title:       r.Title,
		Description: r.Description,
		Status:      domain.TaskStatus(r.Status),
		DueDate:     r.DueDate,
		PriorityID:  r.PriorityID,
		ProjectID:   r.ProjectID,
		Order:       r.Order,
	}
}

// UpdateTaskRequest represents the request body for a partial task update.
type UpdateTaskRequest struct {
	Title        *string    `json:"title" validate:"omitempty,min=1,max=255"`
	Description  *string    `json:"description" validate:"omitempty,max=10000"`
	Status       *string    `json:"status" validate:"omitempty,oneof=TODO IN_PROGRESS DONE"`
	DueDate      *time.Time `json:"due_date"`
	ClearDueDate bool       `json:"clear_due_date"`
	PriorityID   *string    `json:"priority_id" validate:"omitempty,min=1"`
	ProjectID    *string    `json:"project_id" validate:"omitempty,min=1"`
	ClearProject bool       `json:"clear_project"`
	Order        *int       `json:"order" validate:"omitempty,min=0"`
}

// ToInput converts the request to service input.
func (r *UpdateTaskRequest) ToInput() UpdateTaskInput {
	input := UpdateTaskInput{
		Title:        r.Title,
		Description:  r.Description,
		DueDate:      r.DueDate,
		ClearDueDate: r.ClearDueDate,
		PriorityID:   r.PriorityID,
		ProjectID:    r.ProjectID,
		ClearProject: r.ClearProject,
		Order:        r.Order,
	}
	if r.Status != nil {
		status := domain.TaskStatus(*r.Status)
		input.Status = &status
	}
	return input
}

// BatchUpdateRequest represents the request body for reordering tasks.
type BatchUpdateRequest struct {
	Items []BatchItem `json:"items" validate:"required,min=1,max=500,dive"`
}

// CommentRequest represents the request body for adding or editing a comment.
type CommentRequest struct {
	Content string `json:"content" validate:"required,min=1,max=5000"`
}

// AttachmentRequest describes a file already stored by the upload backend.
type AttachmentRequest struct {
	Name         string `json:"name" validate:"required,max=255"`
	OriginalName string `json:"original_name" validate:"max=255"`
	Path         string `json:"path" validate:"required,max=1024"`
	Size         int64  `json:"size" validate:"min=0"`
	MimeType     string `json:"mime_type" validate:"max=255"`
}

// CreateUserRequest represents the request body for registering a user.
type CreateUserRequest struct {
	Name  string `json:"name" validate:"max=255"`
	Email string `json:"email" validate:"required,email"`
}

// CreateProjectRequest represents the request body for creating a project.
type CreateProjectRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
}

// ListTasks handles GET /tasks request.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := TaskFilter{}
	query := r.URL.Query()

	if v := query.Get("status"); v != "" {
		status := domain.TaskStatus(v)
		if !status.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		filter.Status = &status
	}
	if v := query.Get("project_id"); v != "" {
		filter.ProjectID = &v
	}
	if v := query.Get("user_id"); v != "" {
		filter.UserID = &v
	}

	tasks, err := h.service.ListTasks(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, tasks)
}

// CreateTask handles POST /tasks request.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !h.decode(w, r, &req) {
		return
	}

	task, err := h.service.CreateTask(r.Context(), req.ToInput(), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, task)
}

// GetTask handles GET /tasks/{id} request.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, task)
}

// UpdateTask handles PATCH /tasks/{id} request.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var req UpdateTaskRequest
	if !h.decode(w, r, &req) {
		return
	}

	task, err := h.service.UpdateTask(r.Context(), chi.URLParam(r, "id"), req.ToInput())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, task)
}

// DeleteTask handles DELETE /tasks/{id} request.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.NoContent(w)
}

// BatchUpdate handles POST /tasks/batch request.
func (h *Handler) BatchUpdate(w http.ResponseWriter, r *http.Request) {
	var req BatchUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}

	tasks, err := h.service.BatchUpdate(r.Context(), req.Items)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, tasks)
}

// AddAttachment handles POST /tasks/{id}/attachments request.
func (h *Handler) AddAttachment(w http.ResponseWriter, r *http.Request) {
	var req AttachmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	attachment, err := h.service.AddAttachment(r.Context(), chi.URLParam(r, "id"), &domain.Attachment{
		Name:         req.Name,
		OriginalName: req.OriginalName,
		Path:         req.Path,
		Size:         req.Size,
		MimeType:     req.MimeType,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, attachment)
}

// DeleteAttachment handles DELETE /tasks/{id}/attachments/{attachmentID} request.
func (h *Handler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAttachment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "attachmentID")); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.NoContent(w)
}

// AddComment handles POST /tasks/{id}/comments request.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if !h.decode(w, r, &req) {
		return
	}

	comment, err := h.service.AddComment(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()), req.Content)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, comment)
}

// UpdateComment handles PATCH /tasks/{id}/comments/{commentID} request.
func (h *Handler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if !h.decode(w, r, &req) {
		return
	}

	comment, err := h.service.UpdateComment(r.Context(),
		chi.URLParam(r, "id"),
		chi.URLParam(r, "commentID"),
		httputil.GetUserID(r.Context()),
		req.Content,
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, comment)
}

// DeleteComment handles DELETE /tasks/{id}/comments/{commentID} request.
func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteComment(r.Context(),
		chi.URLParam(r, "id"),
		chi.URLParam(r, "commentID"),
		httputil.GetUserID(r.Context()),
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.NoContent(w)
}

// ListPriorities handles GET /priorities request.
func (h *Handler) ListPriorities(w http.ResponseWriter, r *http.Request) {
	priorities, err := h.service.ListPriorities(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, priorities)
}

// ListProjects handles GET /projects request.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.ListProjects(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, projects)
}

// CreateProject handles POST /projects request.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !h.decode(w, r, &req) {
		return
	}

	project := &domain.Project{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
	}
	if err := h.service.CreateProject(r.Context(), project); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, project)
}

// CreateUser handles POST /users request.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.service.CreateUser(r.Context(), req.Name, req.Email)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, user)
}

// decode reads and validates a JSON body, writing the error response on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return false
	}

	if err := h.validator.Struct(v); err != nil {
		httputil.ValidationError(w, err)
		return false
	}
	return true
}
