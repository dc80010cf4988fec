package llmadvisor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// Config describes one advisor backend.
type Config struct {
	Provider     string // "chatgpt" or "deepseek"
	Model        string
	HistoryLimit int
	Logger       ports.Logger
}

// Advisor implements ports.Advisor on top of an OpenAI-compatible chat API.
type Advisor struct {
	tracer   trace.Tracer
	llm      LLMClient
	provider string
	model    string
	logger   ports.Logger

	mu      sync.Mutex
	history History
}

// New creates an advisor. A nil tracer disables tracing.
func New(tracer trace.Tracer, llm LLMClient, cfg Config) (*Advisor, error) {
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("cryptoSignalBot/advisor")
	}
	if llm == nil {
		return nil, fmt.Errorf("llm client is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for advisor: %w", ports.ErrConfigurationError)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "chatgpt"
	}
	return &Advisor{
		tracer:   tracer,
		llm:      llm,
		provider: provider,
		model:    model,
		logger:   cfg.Logger,
		history:  NewHistory(cfg.HistoryLimit, chatSystemPrompt),
	}, nil
}

// Name returns the provider name.
func (a *Advisor) Name() string {
	return a.provider
}

// Analyze asks the model to comment on an indicator snapshot.
func (a *Advisor) Analyze(ctx context.Context, snap domain.IndicatorSnapshot) (*domain.Advisory, error) {
	ctx, span := a.tracer.Start(ctx, "advisor.analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("advisor.provider", a.provider),
		attribute.String("symbol", snap.Symbol),
	)

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(analysisSystemPrompt),
		openai.UserMessage(BuildAnalysisPrompt(snap)),
	}
	reply, err := a.callLLM(ctx, messages, 0.7, 300)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s analysis failed: %w: %w", a.provider, ports.ErrAdvisorUnavailable, err)
	}

	a.logger.Debug(ctx, "Advisory received", map[string]interface{}{"provider": a.provider, "length": len(reply)})
	return &domain.Advisory{Provider: a.provider, Text: reply}, nil
}

// Chat continues the free-form conversation and returns the reply.
// The history only advances when the call succeeds.
func (a *Advisor) Chat(ctx context.Context, message string) (string, error) {
	ctx, span := a.tracer.Start(ctx, "advisor.chat")
	defer span.End()

	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("empty chat message: %w", ports.ErrInvalidRequest)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	pending := a.history.Append(Message{Role: RoleUser, Content: message})
	reply, err := a.callLLM(ctx, pending.params(), 0.6, 400)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%s chat failed: %w: %w", a.provider, ports.ErrAdvisorUnavailable, err)
	}
	a.history = pending.Append(Message{Role: RoleAssistant, Content: reply})
	return reply, nil
}

// History returns the current conversation.
func (a *Advisor) History() History {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history
}

func (a *Advisor) callLLM(
	ctx context.Context,
	messages []openai.ChatCompletionMessageParamUnion,
	temperature float64,
	maxTokens int64,
) (string, error) {
	ctx, span := a.tracer.Start(ctx, "advisor.llm-call")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", a.model),
		attribute.Int("llm.message_count", len(messages)),
	)

	completion, err := a.llm.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model:       a.model,
		Messages:    messages,
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxTokens),
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}

	reply := strings.TrimSpace(completion.Choices[0].Message.Content)
	span.SetAttributes(attribute.Int("llm.reply_length", len(reply)))
	return reply, nil
}
