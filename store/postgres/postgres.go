// Package postgres implements mesh.TaskStore using PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates the pool; Close here releases it.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	mesh "github.com/nevindra/mesh"
)

// Option configures a PostgreSQL Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements mesh.TaskStore backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ mesh.TaskStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the tasks table and indexes. All statements are idempotent.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT PRIMARY KEY,
			task_status TEXT NOT NULL,
			task_name TEXT NOT NULL,
			task_content TEXT NOT NULL,
			submit_time BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(task_status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_submit_time ON tasks(submit_time)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_name ON tasks(task_name)`,
	}
	for _, ddl := range stmts {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// CreateTask inserts a task row.
func (s *Store) CreateTask(ctx context.Context, task mesh.Task) error {
	now := mesh.NowUnix()
	if task.CreatedAt == 0 {
		task.CreatedAt = now
	}
	if task.UpdatedAt == 0 {
		task.UpdatedAt = now
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (task_id, task_status, task_name, task_content, submit_time, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		task.TaskID, string(task.Status), task.Name, task.Content, task.SubmitTime, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	s.logger.Debug("postgres: task created", "task_id", task.TaskID, "status", task.Status)
	return nil
}

// UpdateTaskStatus sets the status and bumps updated_at.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status mesh.TaskStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET task_status = $1, updated_at = $2 WHERE task_id = $3`,
		string(status), mesh.NowUnix(), taskID)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update task status: task %s not found", taskID)
	}
	return nil
}

// GetTask fetches one task by id.
func (s *Store) GetTask(ctx context.Context, taskID string) (mesh.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT task_id, task_status, task_name, task_content, submit_time, created_at, updated_at
		 FROM tasks WHERE task_id = $1`, taskID)
	var t mesh.Task
	var status string
	if err := row.Scan(&t.TaskID, &status, &t.Name, &t.Content, &t.SubmitTime, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return mesh.Task{}, err
	}
	t.Status = mesh.TaskStatus(status)
	return t, nil
}

// QueryTasks returns one page of tasks newest-first plus the total count
// matching the filters.
func (s *Store) QueryTasks(ctx context.Context, q mesh.TaskQuery) ([]mesh.Task, int, error) {
	var clauses []string
	var args []any
	if q.Status != "" {
		args = append(args, string(q.Status))
		clauses = append(clauses, fmt.Sprintf("task_status = $%d", len(args)))
	}
	if q.NameContains != "" {
		args = append(args, "%"+q.NameContains+"%")
		clauses = append(clauses, fmt.Sprintf("task_name LIKE $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	args = append(args, q.PageSize, (q.Page-1)*q.PageSize)
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT task_id, task_status, task_name, task_content, submit_time, created_at, updated_at
		 FROM tasks%s ORDER BY submit_time DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []mesh.Task
	for rows.Next() {
		var t mesh.Task
		var status string
		if err := rows.Scan(&t.TaskID, &status, &t.Name, &t.Content, &t.SubmitTime, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, err
		}
		t.Status = mesh.TaskStatus(status)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("query tasks: %w", err)
	}
	return tasks, total, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
