package server

import (
	"context"
	"log/slog"
	"strings"

	mesh "github.com/nevindra/mesh"
)

// TeamBuilder constructs a fresh TeamContext for one task. Each call must
// return new Agent instances so concurrent tasks never share state.
type TeamBuilder func(name string) (*mesh.TeamContext, error)

const defaultTeam = "general_team"

// Worker turns user input into running tasks: it persists the task row,
// subscribes the submitting connection, and drives one orchestrator
// goroutine per task, translating executor events into client frames.
type Worker struct {
	ctx    context.Context // lifecycle context, cancels in-flight turns
	store  mesh.TaskStore
	bus    *mesh.Bus
	build  TeamBuilder
	logger *slog.Logger
	tracer mesh.Tracer
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerLogger sets a structured logger.
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = l }
}

// WithWorkerTracer sets a tracer passed down to orchestrators.
func WithWorkerTracer(t mesh.Tracer) WorkerOption {
	return func(w *Worker) { w.tracer = t }
}

// NewWorker creates a Worker. ctx is the application lifecycle context;
// canceling it stops in-flight agent turns.
func NewWorker(ctx context.Context, store mesh.TaskStore, bus *mesh.Bus, build TeamBuilder, opts ...WorkerOption) *Worker {
	w := &Worker{
		ctx:    ctx,
		store:  store,
		bus:    bus,
		build:  build,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// HandleUserInput processes one user_input message from connID. Empty or
// whitespace-only text is ignored without side effects. An unknown team
// answers the submitting connection with a failed user_task_submit and
// starts no worker.
func (w *Worker) HandleUserInput(connID, text, team string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if w.bus.Closing() {
		return
	}
	if team == "" {
		team = defaultTeam
	}

	teamCtx, err := w.build(team)
	if err != nil {
		w.logger.Warn("worker: team build failed", "team", team, "err", err)
		_ = w.bus.SendTo(connID, mesh.NewEvent(mesh.EventTaskSubmit, "", mesh.TaskSubmitData{
			Status: "failed",
			Msg:    err.Error(),
		}))
		return
	}

	taskID := mesh.NewTaskID()
	task := mesh.Task{
		TaskID:     taskID,
		Status:     mesh.TaskRunning,
		Name:       mesh.TaskName(text),
		Content:    text,
		SubmitTime: mesh.NowUnix(),
	}
	if err := w.store.CreateTask(w.ctx, task); err != nil {
		w.logger.Error("worker: create task failed", "task_id", taskID, "err", err)
		_ = w.bus.SendTo(connID, mesh.NewEvent(mesh.EventTaskSubmit, "", mesh.TaskSubmitData{
			Status: "failed",
			Msg:    "failed to persist task",
		}))
		return
	}

	w.bus.Subscribe(connID, taskID)
	w.bus.Publish(mesh.NewEvent(mesh.EventTaskSubmit, taskID, mesh.TaskSubmitData{
		Status: "success",
		TaskID: taskID,
		Msg:    "Task submitted successfully",
	}))

	w.bus.WorkerStarted()
	go w.run(taskID, teamCtx, text)
}

// run executes one task to completion and records the final status. The
// task row stays running until the orchestrator emits task_result.
func (w *Worker) run(taskID string, team *mesh.TeamContext, userTask string) {
	defer w.bus.WorkerDone()

	orch := mesh.NewOrchestrator(team,
		mesh.WithOrchestratorEmitter(w.emitter(taskID)),
		mesh.WithOrchestratorLogger(w.logger),
		mesh.WithOrchestratorTracer(w.tracer),
	)

	err := orch.Run(w.ctx, userTask)
	status := mesh.TaskSuccess
	if err != nil {
		status = mesh.TaskFailed
		w.logger.Error("worker: task failed", "task_id", taskID, "err", err)
	}
	if uerr := w.store.UpdateTaskStatus(context.Background(), taskID, status); uerr != nil {
		w.logger.Error("worker: status update failed", "task_id", taskID, "err", uerr)
	}
}

// emitter translates internal executor events to client-facing frames and
// publishes them on the bus under taskID. turn_start stays internal.
func (w *Worker) emitter(taskID string) mesh.EmitFunc {
	return func(t mesh.EventType, data any) {
		switch t {
		case mesh.EventTurnStart:
			return

		case mesh.EventMessageUpdate:
			d, ok := data.(mesh.MessageUpdateData)
			if !ok {
				return
			}
			w.bus.Publish(mesh.NewEvent(mesh.EventAgentThinking, taskID, mesh.AgentThinkingData{
				TaskID:  taskID,
				AgentID: d.AgentID,
				Thought: d.Delta,
			}))

		case mesh.EventToolExecutionStart:
			d, ok := data.(mesh.ToolExecutionStartData)
			if !ok {
				return
			}
			w.bus.Publish(mesh.NewEvent(mesh.EventToolDecision, taskID, mesh.ToolDecisionData{
				TaskID:     taskID,
				AgentID:    d.AgentID,
				ToolID:     d.ToolCallID,
				ToolName:   d.Name,
				Thought:    d.Thought,
				Parameters: d.Arguments,
			}))

		case mesh.EventToolExecutionEnd:
			d, ok := data.(mesh.ToolExecutionEndData)
			if !ok {
				return
			}
			w.bus.Publish(mesh.NewEvent(mesh.EventToolExecute, taskID, mesh.ToolExecuteData{
				TaskID:        taskID,
				AgentID:       d.AgentID,
				ToolID:        d.ToolCallID,
				ToolName:      d.Name,
				Status:        d.Status,
				ExecutionTime: d.Duration,
				ToolResult:    d.Result,
			}))

		default:
			w.bus.Publish(mesh.NewEvent(t, taskID, stampTaskID(data, taskID)))
		}
	}
}

// stampTaskID fills the TaskID field of client-facing payloads that carry
// one, so frames are self-describing even outside their envelope.
func stampTaskID(data any, taskID string) any {
	switch d := data.(type) {
	case mesh.AgentDecisionData:
		d.TaskID = taskID
		return d
	case mesh.AgentResultData:
		d.TaskID = taskID
		return d
	case mesh.TaskResultData:
		d.TaskID = taskID
		return d
	case mesh.TaskSubmitData:
		d.TaskID = taskID
		return d
	}
	return data
}
