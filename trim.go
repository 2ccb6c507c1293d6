package mesh

import "log/slog"

// imageTokenEstimate is the flat per-image cost used by the trimmer.
const imageTokenEstimate = 1200

// minReserveTokens is the floor of the per-request reserve.
const minReserveTokens = 4000

// contextReserve returns the tokens held back from the window for the new
// request: 20% of the window, never less than 4000.
func contextReserve(window int) int {
	if r := window / 5; r > minReserveTokens {
		return r
	}
	return minReserveTokens
}

// estimateMessageTokens estimates one message at bytes/4 (a conservative
// overestimate); images count a flat 1200 tokens each.
func estimateMessageTokens(m ChatMessage) int {
	if len(m.Parts) > 0 {
		total := 0
		for _, p := range m.Parts {
			switch p.Type {
			case "text":
				total += len(p.Text) / 4
			case "image":
				total += imageTokenEstimate
			}
		}
		if total < 1 {
			return 1
		}
		return total
	}
	n := len(m.Content) / 4
	if n < 1 {
		return 1
	}
	return n
}

func estimateTokens(messages []ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += estimateMessageTokens(m)
	}
	return total
}

// trimMessages reduces the history to fit within the model's context window
// minus the reserve. System messages are always retained; other messages
// are kept newest-first until the budget runs out. When the last call
// reported usage, that total seeds the current size instead of estimates.
//
// Pairing is preserved: a tool message never survives without the
// assistant message carrying its matching tool call, and an assistant
// message with tool calls never survives without its tool replies; such
// groups are dropped atomically.
func trimMessages(messages []ChatMessage, model string, lastUsage Usage, logger *slog.Logger) []ChatMessage {
	if len(messages) == 0 {
		return messages
	}
	window := ContextWindow(model)
	budget := window - contextReserve(window)

	current := lastUsage.PromptTokens + lastUsage.CompletionTokens
	if current == 0 {
		current = estimateTokens(messages)
	}
	if current <= budget {
		return messages
	}

	var system, rest []ChatMessage
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	available := budget - estimateTokens(system)

	// Keep from the newest backwards while the budget holds.
	cut := len(rest)
	accumulated := 0
	for i := len(rest) - 1; i >= 0; i-- {
		n := estimateMessageTokens(rest[i])
		if accumulated+n > available {
			break
		}
		accumulated += n
		cut = i
	}
	kept := rest[cut:]

	// The kept suffix may open with orphaned tool replies whose assistant
	// partner was dropped; drop them too.
	for len(kept) > 0 && kept[0].Role == "tool" {
		kept = kept[1:]
	}

	trimmed := make([]ChatMessage, 0, len(system)+len(kept))
	trimmed = append(trimmed, system...)
	trimmed = append(trimmed, kept...)

	if len(trimmed) < len(messages) {
		logger.Info("executor: context trimmed",
			"before", len(messages), "after", len(trimmed),
			"estimated_tokens", current, "budget", budget)
	}
	return trimmed
}
