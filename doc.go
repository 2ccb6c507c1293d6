// Package mesh is a multi-agent orchestration runtime. Teams of LLM-backed
// agents take turns solving a user-submitted task: each agent runs a
// reason/act loop against a tool-calling model (Executor), a team-level
// decision call picks the next agent or ends the run (Orchestrator), and
// execution events stream to subscribed clients through a per-task event
// bus (Bus).
//
// The root package holds the domain types and the three core engines plus
// the ports they depend on: Model (provider adapters live in provider/),
// Tool (bundled tools in tools/), and TaskStore (implementations in
// store/). Service wiring, configuration, and the HTTP/WebSocket surface
// live under internal/.
package mesh
