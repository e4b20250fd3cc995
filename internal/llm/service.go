package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"finker/internal/errs"
	"finker/internal/models"
)

// systemPrompt is the fixed Finker persona. Static configuration, never
// user-controllable.
const systemPrompt = `You are "Finker", an AI assistant and expert in artificial intelligence and computer science.
Your mission is to teach the foundations of AI, machine learning and data science.
- Your name is Finker and you introduce yourself as such
- You explain with clarity, pedagogy and structure
- You adapt your level to the user's level
- You illustrate your points with concrete examples and real-world analogies
- You remember the full context of the conversation so your answers stay coherent
- You are friendly, didactic and encouraging
- You suggest further resources to go deeper into the topics discussed
- You encourage the user to ask questions and explore the subject further
- You keep your introduction short and do not ask the user for too much information`

type Options struct {
	BaseURL     string
	Token       string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type Service struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	timeout     time.Duration
	encoder     *tiktoken.Tiktoken
	logger      *zap.Logger
}

func New(opts Options, logger *zap.Logger) (*Service, error) {
	clientOpts := []openai.Option{openai.WithToken(opts.Token), openai.WithModel(opts.Model)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
	}
	model, err := openai.New(clientOpts...)
	if err != nil {
		return nil, err
	}
	return NewWithModel(model, opts, logger), nil
}

// NewWithModel wires an already-built model; tests inject a fake through it.
func NewWithModel(model llms.Model, opts Options, logger *zap.Logger) *Service {
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 1024
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}

	// The encoder is only used for operational prompt-size logging; if the
	// encoding cannot be loaded the service works without it.
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("token encoder unavailable", zap.Error(err))
		encoder = nil
	}

	return &Service{
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		timeout:     opts.Timeout,
		encoder:     encoder,
		logger:      logger,
	}
}

// Generate runs one backend round-trip: persona, prior turns, then the new
// user turn. The backend's output is consumed as a stream of text fragments
// and concatenated into one complete string; no partial result ever crosses
// this boundary. A remote failure or a blank aggregate is a backend error.
func (s *Service) Generate(ctx context.Context, userMessage string, history []models.Message) (string, error) {
	msgs := make([]llms.MessageContent, 0, len(history)+2)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	msgs = append(msgs, BuildHistory(history)...)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, userMessage))

	s.logPromptSize(msgs)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var sb strings.Builder
	resp, err := s.model.GenerateContent(ctx, msgs,
		llms.WithTemperature(s.temperature),
		llms.WithMaxTokens(s.maxTokens),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			sb.Write(chunk)
			return nil
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrBackend, err)
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" && resp != nil && len(resp.Choices) > 0 {
		// Some backends ignore the streaming func and only fill the response.
		text = resp.Choices[0].Content
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty completion", errs.ErrBackend)
	}
	return text, nil
}

func (s *Service) logPromptSize(msgs []llms.MessageContent) {
	if s.encoder == nil {
		return
	}
	tokens := 0
	for _, msg := range msgs {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				tokens += len(s.encoder.Encode(text.Text, nil, nil))
			}
		}
	}
	s.logger.Debug("prompt assembled",
		zap.Int("turns", len(msgs)),
		zap.Int("approx_tokens", tokens))
}
