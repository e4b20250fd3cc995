package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"finker/internal/models"
)

func textOf(t *testing.T, msg llms.MessageContent) string {
	t.Helper()
	require.Len(t, msg.Parts, 1)
	part, ok := msg.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return part.Text
}

func TestBuildHistory(t *testing.T) {
	t.Run("should preserve order and translate roles", func(t *testing.T) {
		req := require.New(t)
		history := []models.Message{
			{Role: models.RoleUser, Content: "What is overfitting?"},
			{Role: models.RoleAssistant, Content: "Overfitting is..."},
			{Role: models.RoleUser, Content: "Can you give an example?"},
		}

		turns := BuildHistory(history)
		req.Len(turns, 3)

		req.Equal(llms.ChatMessageTypeHuman, turns[0].Role)
		req.Equal("What is overfitting?", textOf(t, turns[0]))
		req.Equal(llms.ChatMessageTypeAI, turns[1].Role)
		req.Equal("Overfitting is...", textOf(t, turns[1]))
		req.Equal(llms.ChatMessageTypeHuman, turns[2].Role)
		req.Equal("Can you give an example?", textOf(t, turns[2]))
	})

	t.Run("should return an empty slice for empty history", func(t *testing.T) {
		require.Empty(t, BuildHistory(nil))
	})
}
