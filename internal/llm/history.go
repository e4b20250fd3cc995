package llm

import (
	"github.com/tmc/langchaingo/llms"

	"finker/internal/models"
)

// BuildHistory shapes stored messages into the turn format the backend
// expects. The store's "assistant" role becomes the backend's AI role here
// and nowhere else; it is never stored translated. Store order is preserved
// exactly — the backend has no other way to recover multi-turn context.
func BuildHistory(history []models.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(history))
	for _, msg := range history {
		role := llms.ChatMessageTypeAI
		if msg.Role == models.RoleUser {
			role = llms.ChatMessageTypeHuman
		}
		out = append(out, llms.TextParts(role, msg.Content))
	}
	return out
}
