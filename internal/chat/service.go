// Package chat runs one user-submitted message end to end: resolve the target
// conversation, rebuild its transcript, persist the user turn, call the
// backend with the full context, persist the reply, bump the conversation's
// recency marker, and render the reply for display.
package chat

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"go.uber.org/zap"

	"finker/internal/db"
	"finker/internal/errs"
	"finker/internal/llm"
	"finker/internal/markdown"
	"finker/internal/models"
)

type Service struct {
	store    *db.Database
	llm      *llm.Service
	renderer *markdown.Renderer
	logger   *zap.Logger
}

func New(store *db.Database, llmService *llm.Service, renderer *markdown.Renderer, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		llm:      llmService,
		renderer: renderer,
		logger:   logger,
	}
}

type TurnResult struct {
	ConversationID        int64
	UserMessage           string
	AssistantResponse     string
	AssistantResponseHTML template.HTML
}

// SubmitTurn executes one conversation turn. Each store call is its own short
// transaction; nothing is held open across the remote generation call, whose
// latency is unbounded. The user turn commits before the backend is invoked,
// so a failure later leaves a dangling unanswered turn that the next attempt
// picks up in its reconstructed history.
func (s *Service) SubmitTurn(ctx context.Context, userID, requestedConvID int64, message string) (*TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: empty message", errs.ErrValidation)
	}

	convID, err := s.store.ResolveOrCreateConversation(userID, requestedConvID)
	if err != nil {
		return nil, err
	}

	history, err := s.store.GetConversationHistory(convID, userID)
	if err != nil {
		return nil, err
	}

	userMsg := &models.Message{
		ConvID:  convID,
		UserID:  userID,
		Role:    models.RoleUser,
		Content: message,
	}
	if err := s.store.SaveMessage(userMsg); err != nil {
		return nil, err
	}

	// The just-written user turn is passed explicitly rather than re-read,
	// so it cannot appear twice in the prompt.
	reply, err := s.llm.Generate(ctx, message, history)
	if err != nil {
		s.logger.Error("generation failed",
			zap.Int64("conversation_id", convID),
			zap.Int64("user_id", userID),
			zap.Error(err))
		return nil, err
	}

	assistantMsg := &models.Message{
		ConvID:  convID,
		UserID:  userID,
		Role:    models.RoleAssistant,
		Content: reply,
	}
	if err := s.store.SaveMessage(assistantMsg); err != nil {
		return nil, err
	}

	// The touch doubles as the ownership recheck. If the conversation was
	// deleted underneath us the assistant row is already committed; the turn
	// is still reported as failed rather than pretending nothing happened.
	if _, err := s.store.TouchConversation(convID, userID); err != nil {
		s.logger.Warn("touch failed after assistant reply was written",
			zap.Int64("conversation_id", convID),
			zap.Error(err))
		return nil, err
	}

	return &TurnResult{
		ConversationID:        convID,
		UserMessage:           message,
		AssistantResponse:     reply,
		AssistantResponseHTML: s.renderer.ToSafeHTML(reply),
	}, nil
}
