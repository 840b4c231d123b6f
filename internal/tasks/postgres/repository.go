// Package postgres provides PostgreSQL implementation of the tasks repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/task-garden/internal/domain"
	"github.com/bissquit/task-garden/internal/tasks"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const taskSelect = `
	SELECT t.id, t.title, t.description, t.status, t."order", t.due_date,
	       t.user_id, u.name, u.email, u.created_at,
	       t.priority_id, pr.name, pr.level, pr.color,
	       t.project_id, pj.name, pj.description, pj.color,
	       t.telegram_message_id, t.reminder_checkpoint, t.created_at, t.updated_at
	FROM tasks t
	JOIN users u ON u.id = t.user_id
	JOIN priorities pr ON pr.id = t.priority_id
	LEFT JOIN projects pj ON pj.id = t.project_id
`

// Repository implements tasks.Repository and notifications.ReminderRepository
// using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateTask inserts a task.
func (r *Repository) CreateTask(ctx context.Context, task *domain.Task) error {
	query := `
		INSERT INTO tasks (id, title, description, status, "order", due_date, user_id, priority_id, project_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Status,
		task.Order,
		task.DueDate,
		task.UserID,
		task.PriorityID,
		task.ProjectID,
	).Scan(&task.CreatedAt, &task.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task with all relations.
func (r *Repository) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	if !isUUID(id) {
		return nil, tasks.ErrTaskNotFound
	}

	task, err := scanTask(r.db.QueryRow(ctx, taskSelect+` WHERE t.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tasks.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}

	if err := r.loadRelations(ctx, []*domain.Task{task}); err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks retrieves tasks ordered by column and position.
func (r *Repository) ListTasks(ctx context.Context, filter tasks.TaskFilter) ([]*domain.Task, error) {
	query := taskSelect + ` WHERE 1=1`
	args := make([]any, 0, 3)

	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND t.status = $%d", len(args))
	}
	if filter.ProjectID != nil {
		if !isUUID(*filter.ProjectID) {
			return []*domain.Task{}, nil
		}
		args = append(args, *filter.ProjectID)
		query += fmt.Sprintf(" AND t.project_id = $%d", len(args))
	}
	if filter.UserID != nil {
		if !isUUID(*filter.UserID) {
			return []*domain.Task{}, nil
		}
		args = append(args, *filter.UserID)
		query += fmt.Sprintf(" AND t.user_id = $%d", len(args))
	}
	query += ` ORDER BY t.status, t."order", t.created_at`

	return r.queryTasks(ctx, query, args...)
}

// UpdateTask writes mutable task fields. Moving the due date resets the
// reminder checkpoint so the new deadline gets its own reminders.
func (r *Repository) UpdateTask(ctx context.Context, task *domain.Task) error {
	query := `
		UPDATE tasks
		SET title = $2,
		    description = $3,
		    status = $4,
		    "order" = $5,
		    reminder_checkpoint = CASE WHEN due_date IS DISTINCT FROM $6::timestamptz THEN 0 ELSE reminder_checkpoint END,
		    due_date = $6,
		    priority_id = $7,
		    project_id = $8,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Status,
		task.Order,
		task.DueDate,
		task.PriorityID,
		task.ProjectID,
	).Scan(&task.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tasks.ErrTaskNotFound
		}
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// DeleteTask deletes a task with its comments and attachments.
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	if !isUUID(id) {
		return tasks.ErrTaskNotFound
	}

	result, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tasks.ErrTaskNotFound
	}
	return nil
}

// ApplyBatch updates positions and columns of several tasks atomically.
func (r *Repository) ApplyBatch(ctx context.Context, items []tasks.BatchItem) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	query := `
		UPDATE tasks
		SET "order" = $2,
		    status = COALESCE($3, status),
		    updated_at = NOW()
		WHERE id = $1
	`
	for _, item := range items {
		var status *string
		if item.Status != nil {
			s := string(*item.Status)
			status = &s
		}

		result, err := tx.Exec(ctx, query, item.ID, item.Order, status)
		if err != nil {
			return fmt.Errorf("update task %s: %w", item.ID, err)
		}
		if result.RowsAffected() == 0 {
			return tasks.ErrTaskNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// NextOrder returns the position after the last task in a column.
func (r *Repository) NextOrder(ctx context.Context, status domain.TaskStatus) (int, error) {
	var next int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX("order") + 1, 0) FROM tasks WHERE status = $1`,
		status,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next order: %w", err)
	}
	return next, nil
}

// SetTelegramMessageID stores the id of the chat message mirroring the task.
func (r *Repository) SetTelegramMessageID(ctx context.Context, taskID string, messageID *int64) error {
	result, err := r.db.Exec(ctx,
		`UPDATE tasks SET telegram_message_id = $2 WHERE id = $1`,
		taskID, messageID,
	)
	if err != nil {
		return fmt.Errorf("set telegram message id: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tasks.ErrTaskNotFound
	}
	return nil
}

// ListOverdueTasks returns incomplete tasks due at or before dueBefore.
func (r *Repository) ListOverdueTasks(ctx context.Context, dueBefore time.Time) ([]*domain.Task, error) {
	query := taskSelect + `
		WHERE t.due_date IS NOT NULL
		  AND t.due_date <= $1
		  AND t.status <> 'DONE'
		ORDER BY t.due_date
	`
	return r.queryTasks(ctx, query, dueBefore)
}

// MarkReminderSent records that the reminder for checkpoint was delivered.
// The stored checkpoint never moves backwards.
func (r *Repository) MarkReminderSent(ctx context.Context, taskID string, checkpoint int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE tasks SET reminder_checkpoint = GREATEST(reminder_checkpoint, $2) WHERE id = $1`,
		taskID, checkpoint,
	)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}

// CreateComment inserts a comment.
func (r *Repository) CreateComment(ctx context.Context, comment *domain.Comment) error {
	query := `
		INSERT INTO comments (id, task_id, user_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		comment.ID,
		comment.TaskID,
		comment.UserID,
		comment.Content,
	).Scan(&comment.CreatedAt, &comment.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// GetComment retrieves a comment with its author.
func (r *Repository) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	if !isUUID(id) {
		return nil, tasks.ErrCommentNotFound
	}

	query := `
		SELECT c.id, c.task_id, c.user_id, u.name, u.email, u.created_at, c.content, c.created_at, c.updated_at
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.id = $1
	`
	comment, err := scanComment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tasks.ErrCommentNotFound
		}
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return comment, nil
}

// UpdateComment updates comment content.
func (r *Repository) UpdateComment(ctx context.Context, comment *domain.Comment) error {
	err := r.db.QueryRow(ctx,
		`UPDATE comments SET content = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		comment.ID, comment.Content,
	).Scan(&comment.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tasks.ErrCommentNotFound
		}
		return fmt.Errorf("update comment: %w", err)
	}
	return nil
}

// DeleteComment deletes a comment.
func (r *Repository) DeleteComment(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tasks.ErrCommentNotFound
	}
	return nil
}

// CreateAttachment inserts attachment metadata.
func (r *Repository) CreateAttachment(ctx context.Context, attachment *domain.Attachment) error {
	query := `
		INSERT INTO attachments (id, task_id, name, original_name, path, size, mime_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		attachment.ID,
		attachment.TaskID,
		attachment.Name,
		attachment.OriginalName,
		attachment.Path,
		attachment.Size,
		attachment.MimeType,
	).Scan(&attachment.CreatedAt)

	if err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

// DeleteAttachment deletes an attachment belonging to taskID.
func (r *Repository) DeleteAttachment(ctx context.Context, taskID, id string) error {
	if !isUUID(id) {
		return tasks.ErrAttachmentNotFound
	}

	result, err := r.db.Exec(ctx, `DELETE FROM attachments WHERE id = $1 AND task_id = $2`, id, taskID)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tasks.ErrAttachmentNotFound
	}
	return nil
}

// GetUser retrieves a user by id.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if !isUUID(id) {
		return nil, tasks.ErrUserNotFound
	}

	var user domain.User
	err := r.db.QueryRow(ctx,
		`SELECT id, name, email, created_at FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Name, &user.Email, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tasks.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (id, name, email) VALUES ($1, $2, $3) RETURNING created_at`,
		user.ID, user.Name, user.Email,
	).Scan(&user.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return tasks.ErrEmailExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetPriority retrieves a priority by id.
func (r *Repository) GetPriority(ctx context.Context, id string) (*domain.Priority, error) {
	if !isUUID(id) {
		return nil, tasks.ErrPriorityNotFound
	}

	var priority domain.Priority
	err := r.db.QueryRow(ctx,
		`SELECT id, name, level, color FROM priorities WHERE id = $1`, id,
	).Scan(&priority.ID, &priority.Name, &priority.Level, &priority.Color)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tasks.ErrPriorityNotFound
		}
		return nil, fmt.Errorf("get priority: %w", err)
	}
	return &priority, nil
}

// ListPriorities retrieves priorities ordered by level.
func (r *Repository) ListPriorities(ctx context.Context) ([]domain.Priority, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, level, color FROM priorities ORDER BY level`)
	if err != nil {
		return nil, fmt.Errorf("list priorities: %w", err)
	}
	defer rows.Close()

	priorities := make([]domain.Priority, 0)
	for rows.Next() {
		var p domain.Priority
		if err := rows.Scan(&p.ID, &p.Name, &p.Level, &p.Color); err != nil {
			return nil, fmt.Errorf("scan priority: %w", err)
		}
		priorities = append(priorities, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate priorities: %w", err)
	}
	return priorities, nil
}

// GetProject retrieves a project by id.
func (r *Repository) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	if !isUUID(id) {
		return nil, tasks.ErrProjectNotFound
	}

	var project domain.Project
	err := r.db.QueryRow(ctx,
		`SELECT id, name, description, color FROM projects WHERE id = $1`, id,
	).Scan(&project.ID, &project.Name, &project.Description, &project.Color)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tasks.ErrProjectNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &project, nil
}

// ListProjects retrieves projects ordered by name.
func (r *Repository) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, description, color FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]domain.Project, 0)
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Color); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// CreateProject inserts a project.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO projects (id, name, description, color) VALUES ($1, $2, $3, $4)`,
		project.ID, project.Name, project.Description, project.Color,
	)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (r *Repository) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		result = append(result, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	if err := r.loadRelations(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// loadRelations fills attachments (oldest first) and comments (newest first).
func (r *Repository) loadRelations(ctx context.Context, list []*domain.Task) error {
	if len(list) == 0 {
		return nil
	}

	byID := make(map[string]*domain.Task, len(list))
	ids := make([]string, 0, len(list))
	for _, t := range list {
		t.Attachments = make([]domain.Attachment, 0)
		t.Comments = make([]domain.Comment, 0)
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, task_id, name, original_name, path, size, mime_type, created_at
		FROM attachments
		WHERE task_id = ANY($1::uuid[])
		ORDER BY created_at, id
	`, ids)
	if err != nil {
		return fmt.Errorf("load attachments: %w", err)
	}
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Name, &a.OriginalName, &a.Path, &a.Size, &a.MimeType, &a.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan attachment: %w", err)
		}
		byID[a.TaskID].Attachments = append(byID[a.TaskID].Attachments, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate attachments: %w", err)
	}

	rows, err = r.db.Query(ctx, `
		SELECT c.id, c.task_id, c.user_id, u.name, u.email, u.created_at, c.content, c.created_at, c.updated_at
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.task_id = ANY($1::uuid[])
		ORDER BY c.created_at DESC, c.id
	`, ids)
	if err != nil {
		return fmt.Errorf("load comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return fmt.Errorf("scan comment: %w", err)
		}
		byID[c.TaskID].Comments = append(byID[c.TaskID].Comments, *c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate comments: %w", err)
	}
	return nil
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		task               domain.Task
		projectName        *string
		projectDescription *string
		projectColor       *string
	)

	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Status,
		&task.Order,
		&task.DueDate,
		&task.UserID,
		&task.User.Name,
		&task.User.Email,
		&task.User.CreatedAt,
		&task.PriorityID,
		&task.Priority.Name,
		&task.Priority.Level,
		&task.Priority.Color,
		&task.ProjectID,
		&projectName,
		&projectDescription,
		&projectColor,
		&task.TelegramMessageID,
		&task.ReminderCheckpoint,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.User.ID = task.UserID
	task.Priority.ID = task.PriorityID
	if task.ProjectID != nil {
		task.Project = &domain.Project{
			ID:          *task.ProjectID,
			Name:        deref(projectName),
			Description: deref(projectDescription),
			Color:       deref(projectColor),
		}
	}
	return &task, nil
}

func scanComment(row pgx.Row) (*domain.Comment, error) {
	var c domain.Comment
	err := row.Scan(
		&c.ID,
		&c.TaskID,
		&c.UserID,
		&c.User.Name,
		&c.User.Email,
		&c.User.CreatedAt,
		&c.Content,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.User.ID = c.UserID
	return &c, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
