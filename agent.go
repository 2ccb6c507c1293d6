package mesh

// defaultAgentMaxSteps bounds an agent's reason/act turns when the
// configuration does not set a limit.
const defaultAgentMaxSteps = 100

// Agent is a named LLM persona: its own system prompt, model, and tool set.
// An agent is owned by exactly one TeamContext for a given run; with
// clear-history runs it carries no state across runs.
type Agent struct {
	ID           string
	Name         string
	Description  string
	SystemPrompt string
	Avatar       string
	Model        Model
	ModelName    string
	Tools        []Tool
	MaxSteps     int

	// Per-run state, owned by the executor.
	Subtask     string
	messages    []ChatMessage
	actions     []AgentAction
	finalAnswer string
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithDescription sets the agent's role description.
func WithDescription(d string) AgentOption {
	return func(a *Agent) { a.Description = d }
}

// WithSystemPrompt sets the agent's system prompt.
func WithSystemPrompt(p string) AgentOption {
	return func(a *Agent) { a.SystemPrompt = p }
}

// WithAvatar sets the avatar reference reported in agent_decision events.
func WithAvatar(av string) AgentOption {
	return func(a *Agent) { a.Avatar = av }
}

// WithTools sets the agent's tool set (pre- and post-process).
func WithTools(tools ...Tool) AgentOption {
	return func(a *Agent) { a.Tools = tools }
}

// WithMaxSteps overrides the per-agent turn budget.
func WithMaxSteps(n int) AgentOption {
	return func(a *Agent) { a.MaxSteps = n }
}

// NewAgent creates an agent talking to model under modelName.
func NewAgent(name string, model Model, modelName string, opts ...AgentOption) *Agent {
	a := &Agent{
		ID:        NewID(),
		Name:      name,
		Model:     model,
		ModelName: modelName,
		MaxSteps:  defaultAgentMaxSteps,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ClearHistory resets the conversation and captured actions.
func (a *Agent) ClearHistory() {
	a.messages = nil
	a.actions = nil
	a.finalAnswer = ""
}

// Messages returns a copy of the agent's conversation history.
func (a *Agent) Messages() []ChatMessage {
	return append([]ChatMessage(nil), a.messages...)
}

// Actions returns a copy of the captured actions.
func (a *Agent) Actions() []AgentAction {
	return append([]AgentAction(nil), a.actions...)
}

// FinalAnswer returns the agent's last final answer.
func (a *Agent) FinalAnswer() string { return a.finalAnswer }

func (a *Agent) capture(action AgentAction) {
	action.AgentName = a.Name
	a.actions = append(a.actions, action)
}

// View returns the read-only capability handed to post-process tools.
func (a *Agent) View() AgentView { return agentView{a} }

type agentView struct{ a *Agent }

func (v agentView) Name() string           { return v.a.Name }
func (v agentView) Subtask() string        { return v.a.Subtask }
func (v agentView) FinalAnswer() string    { return v.a.finalAnswer }
func (v agentView) Actions() []AgentAction { return v.a.Actions() }

var _ AgentView = agentView{}
