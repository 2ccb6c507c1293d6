// Package sqlite implements mesh.TaskStore using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	mesh "github.com/nevindra/mesh"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements mesh.TaskStore backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ mesh.TaskStore = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the tasks table and its indexes.
// Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT PRIMARY KEY,
			task_status TEXT NOT NULL,
			task_name TEXT NOT NULL,
			task_content TEXT NOT NULL,
			submit_time INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(task_status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_submit_time ON tasks(submit_time)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_name ON tasks(task_name)`,
	}
	for _, ddl := range stmts {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	s.logger.Debug("sqlite: init done", "duration", time.Since(start))
	return nil
}

// CreateTask inserts a task row. CreatedAt and UpdatedAt are filled from
// the clock when zero.
func (s *Store) CreateTask(ctx context.Context, task mesh.Task) error {
	now := mesh.NowUnix()
	if task.CreatedAt == 0 {
		task.CreatedAt = now
	}
	if task.UpdatedAt == 0 {
		task.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (task_id, task_status, task_name, task_content, submit_time, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.TaskID, string(task.Status), task.Name, task.Content, task.SubmitTime, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	s.logger.Debug("sqlite: task created", "task_id", task.TaskID, "status", task.Status)
	return nil
}

// UpdateTaskStatus sets the status and bumps updated_at.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status mesh.TaskStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET task_status = ?, updated_at = ? WHERE task_id = ?`,
		string(status), mesh.NowUnix(), taskID)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update task status: task %s not found", taskID)
	}
	s.logger.Debug("sqlite: task status updated", "task_id", taskID, "status", status)
	return nil
}

// GetTask fetches one task by id. Returns sql.ErrNoRows when absent.
func (s *Store) GetTask(ctx context.Context, taskID string) (mesh.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT task_id, task_status, task_name, task_content, submit_time, created_at, updated_at
		 FROM tasks WHERE task_id = ?`, taskID)
	return scanTask(row)
}

// QueryTasks returns one page of tasks newest-first plus the total count
// matching the filters.
func (s *Store) QueryTasks(ctx context.Context, q mesh.TaskQuery) ([]mesh.Task, int, error) {
	where, args := buildFilter(q)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	offset := (q.Page - 1) * q.PageSize
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, task_status, task_name, task_content, submit_time, created_at, updated_at
		 FROM tasks`+where+` ORDER BY submit_time DESC LIMIT ? OFFSET ?`,
		append(args, q.PageSize, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []mesh.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("query tasks: %w", err)
	}
	s.logger.Debug("sqlite: tasks queried", "total", total, "returned", len(tasks))
	return tasks, total, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func buildFilter(q mesh.TaskQuery) (string, []any) {
	var clauses []string
	var args []any
	if q.Status != "" {
		clauses = append(clauses, "task_status = ?")
		args = append(args, string(q.Status))
	}
	if q.NameContains != "" {
		clauses = append(clauses, "task_name LIKE ?")
		args = append(args, "%"+q.NameContains+"%")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (mesh.Task, error) {
	var t mesh.Task
	var status string
	if err := r.Scan(&t.TaskID, &status, &t.Name, &t.Content, &t.SubmitTime, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return mesh.Task{}, err
	}
	t.Status = mesh.TaskStatus(status)
	return t, nil
}
