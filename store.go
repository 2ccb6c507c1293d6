package mesh

import "context"

// TaskStore persists task rows. Implementations live in store/sqlite and
// store/postgres. Writes serialize on a single writer; reads may run
// concurrently.
type TaskStore interface {
	// Init creates the schema if it does not exist.
	Init(ctx context.Context) error

	// CreateTask inserts a new task row.
	CreateTask(ctx context.Context, t Task) error

	// UpdateTaskStatus sets the status of an existing task.
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus) error

	// GetTask returns one task by id.
	GetTask(ctx context.Context, taskID string) (Task, error)

	// QueryTasks returns one page of tasks matching q, newest submit_time
	// first, plus the total match count.
	QueryTasks(ctx context.Context, q TaskQuery) ([]Task, int, error)

	Close() error
}
