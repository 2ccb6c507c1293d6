package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// defaultTeamMaxSteps bounds the whole team's executor turns when the
// configuration does not set a budget.
const defaultTeamMaxSteps = 20

// AgentOutput is one finished agent turn at the team level.
type AgentOutput struct {
	AgentName string `json:"agent_name"`
	Output    string `json:"output"`
}

// TeamContext is the per-run state of one team. Created per task, mutated
// only by its owning Orchestrator.
type TeamContext struct {
	Name        string
	Description string
	Rule        string
	Model       Model
	ModelName   string
	MaxSteps    int
	Agents      []*Agent

	UserTask     string
	CurrentSteps int
	Outputs      []AgentOutput
}

// Orchestrator drives a multi-agent task: pick an agent, run its executor,
// ask the decision model who goes next, repeat until done or the step
// budget runs out.
type Orchestrator struct {
	team   *TeamContext
	emit   EmitFunc
	logger *slog.Logger
	tracer Tracer
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorEmitter sets the event emitter shared with executors.
func WithOrchestratorEmitter(fn EmitFunc) OrchestratorOption {
	return func(o *Orchestrator) { o.emit = fn }
}

// WithOrchestratorLogger sets a structured logger.
func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// WithOrchestratorTracer sets a tracer for run and decision spans.
func WithOrchestratorTracer(t Tracer) OrchestratorOption {
	return func(o *Orchestrator) { o.tracer = t }
}

// NewOrchestrator creates an orchestrator for team.
func NewOrchestrator(team *TeamContext, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		team:   team,
		emit:   func(EventType, any) {},
		logger: nopLogger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes userTask to completion. It emits the terminal task_result
// event itself: success on a clean finish, failed on step exhaustion or a
// non-recoverable executor error (also returned).
func (o *Orchestrator) Run(ctx context.Context, userTask string) error {
	t := o.team
	if len(t.Agents) == 0 {
		err := &ErrConfig{Kind: "team", Name: t.Name}
		o.emit(EventTaskResult, TaskResultData{Status: "failed"})
		return err
	}
	if t.MaxSteps <= 0 {
		t.MaxSteps = defaultTeamMaxSteps
	}
	t.UserTask = userTask
	t.CurrentSteps = 0
	t.Outputs = nil

	var span Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "team.run", StringAttr("team.name", t.Name))
		defer span.End()
	}

	// The first configured agent is the entry point; its subtask is the
	// raw user task.
	current := t.Agents[0]
	subtask := userTask

	for {
		current.Subtask = subtask
		o.emit(EventAgentDecision, AgentDecisionData{
			AgentID:     current.ID,
			AgentName:   current.Name,
			AgentAvatar: current.Avatar,
			SubTask:     subtask,
		})
		o.logger.Info("orchestrator: agent selected", "team", t.Name, "agent", current.Name)

		exec := NewExecutor(current,
			WithTeam(t),
			WithEmitter(o.emit),
			WithExecutorLogger(o.logger),
			WithExecutorTracer(o.tracer),
		)
		answer, err := exec.Run(ctx, o.buildTaskPrompt(current), true)
		if err != nil {
			if span != nil {
				span.Error(err)
			}
			o.emit(EventTaskResult, TaskResultData{Status: "failed"})
			return err
		}
		t.Outputs = append(t.Outputs, AgentOutput{AgentName: current.Name, Output: answer})

		next, nextSubtask := o.selectNext(ctx, current)
		if next == nil {
			o.emit(EventTaskResult, TaskResultData{Status: "success"})
			return nil
		}
		current, subtask = next, nextSubtask
	}
}

// selectNext asks the team's decision model which agent acts next. The
// agent that just finished is filtered from the candidate list so it is
// never immediately re-selected. Any decision failure means done.
func (o *Orchestrator) selectNext(ctx context.Context, justFinished *Agent) (*Agent, string) {
	t := o.team

	type candidate struct {
		ID           int    `json:"id"`
		Name         string `json:"name"`
		Description  string `json:"description"`
		SystemPrompt string `json:"system_prompt"`
	}
	var entries []string
	for i, a := range t.Agents {
		if a.Name == justFinished.Name {
			continue
		}
		b, err := json.Marshal(candidate{ID: i, Name: a.Name, Description: a.Description, SystemPrompt: a.SystemPrompt})
		if err != nil {
			continue
		}
		entries = append(entries, string(b))
	}
	if len(entries) == 0 {
		return nil, ""
	}

	prompt := fmt.Sprintf(agentDecisionPrompt,
		t.Name, t.Description, t.Rule,
		strings.Join(entries, ", "),
		o.formatOutputs(),
		t.UserTask)

	var span Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "team.decision", StringAttr("team.name", t.Name))
		defer span.End()
	}

	temperature := 0.0
	resp, err := t.Model.Call(ctx, ModelRequest{
		Model:       t.ModelName,
		Messages:    []ChatMessage{UserMessage(prompt)},
		Temperature: &temperature,
		JSONFormat:  true,
	})
	if err != nil {
		o.logger.Error("orchestrator: decision call failed", "team", t.Name, "err", err)
		return nil, ""
	}

	var decision struct {
		ID      *int   `json:"id"`
		Subtask string `json:"subtask"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Content)), &decision); err != nil {
		o.logger.Error("orchestrator: unparseable decision", "team", t.Name, "content", resp.Content, "err", err)
		return nil, ""
	}
	if decision.ID == nil || *decision.ID < 0 {
		return nil, ""
	}
	if *decision.ID >= len(t.Agents) {
		o.logger.Warn("orchestrator: decision id out of range", "team", t.Name, "id", *decision.ID)
		return nil, ""
	}
	return t.Agents[*decision.ID], decision.Subtask
}

// buildTaskPrompt renders the per-turn prompt for the selected agent: role
// line, team context with the current time, prior member outputs, and the
// subtask.
func (o *Orchestrator) buildTaskPrompt(a *Agent) string {
	t := o.team
	now := time.Now().Format("2006-01-02 15:04:05")
	return fmt.Sprintf(`## Role
Your role: %s
Your role description: %s
You are handling the subtask as a member of the %s team. Please answer in the same language as the user's original task.

## Current task context:
Current time: %s
Team description: %s

## Other agents output:
%s

## Your sub task
%s`, a.Name, a.Description, t.Name, now, t.Description, o.formatOutputs(), a.Subtask)
}

func (o *Orchestrator) formatOutputs() string {
	var parts []string
	for _, out := range o.team.Outputs {
		parts = append(parts, fmt.Sprintf("member name: %s\noutput content: %s\n\n", out.AgentName, out.Output))
	}
	return strings.Join(parts, "\n")
}

// stripCodeFence removes a surrounding markdown code fence, which some
// models wrap around JSON despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 && !strings.HasPrefix(s, "{") {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

const agentDecisionPrompt = `## Role
You are a team decision expert, please decide whether the next member in the team is needed to complete the user task. If necessary, select the most suitable member and give the subtask that needs to be answered by this member. If not, return {"id": -1} directly.

## Team
Team Name: %s
Team Description: %s
Team Rules: %s

## List of available members:
%s

## Members have replied
%s

## Attention
1. You need to determine whether the next member is needed and which member is the most suitable based on the user's question and the rules of the team
2. If you think the answers given by the executed members are able to answer the user's questions, return {"id": -1} immediately; otherwise, select the next suitable member ID and subtask content in the following JSON structure: {"id": <member_id>, "subtask": ""}
3. Always reply in JSON format with no surrounding text

## User Original Task:
%s`
