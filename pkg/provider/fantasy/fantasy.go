package fantasy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	core "charm.land/fantasy"
	provideropenai "charm.land/fantasy/providers/openai"

	"riddlebot/pkg/config"
	providertypes "riddlebot/pkg/provider/types"
)

const (
	providerName = "fantasy"

	// maxHistoryMessages bounds the replayed history per sender.
	maxHistoryMessages = 40
)

type languageModelProvider interface {
	LanguageModel(ctx context.Context, modelID string) (core.LanguageModel, error)
}

// conversation is the locally kept message history of one sender.
type conversation struct {
	id       string
	mu       sync.Mutex
	messages []core.Message
}

func (c *conversation) snapshot() []core.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := make([]core.Message, len(c.messages))
	copy(history, c.messages)
	return history
}

func (c *conversation) append(messages ...core.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, messages...)
	if overflow := len(c.messages) - maxHistoryMessages; overflow > 0 {
		c.messages = append([]core.Message(nil), c.messages[overflow:]...)
	}
}

// Client generates replies through a charm fantasy agent backed by the
// OpenAI provider. History is kept in process, one conversation per sender.
type Client struct {
	provider        languageModelProvider
	requestTimeout  time.Duration
	modelID         string
	maxOutputTokens *int64
	temperature     *float64
	generate        func(context.Context, core.LanguageModel, core.AgentCall) (*core.AgentResult, error)

	conversations *providertypes.SessionTable[*conversation]
}

func New(cfg *config.Config) (*Client, error) {
	apiKey := resolveAPIKey(cfg.Providers.OpenAI)
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY must be set")
	}

	modelID, err := normalizeOpenAIModel(cfg.Generation.Model)
	if err != nil {
		return nil, err
	}

	providerOptions := []provideropenai.Option{provideropenai.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.Providers.OpenAI.BaseURL); baseURL != "" {
		providerOptions = append(providerOptions, provideropenai.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(cfg.Providers.OpenAI.Organization); organization != "" {
		providerOptions = append(providerOptions, provideropenai.WithOrganization(organization))
	}
	if project := strings.TrimSpace(cfg.Providers.OpenAI.Project); project != "" {
		providerOptions = append(providerOptions, provideropenai.WithProject(project))
	}

	fantasyProvider, err := provideropenai.New(providerOptions...)
	if err != nil {
		return nil, fmt.Errorf("initialize fantasy openai provider: %w", err)
	}

	client := &Client{
		provider:       fantasyProvider,
		requestTimeout: time.Duration(cfg.Providers.OpenAI.RequestTimeoutSeconds) * time.Second,
		modelID:        modelID,
		generate:       generateWithFantasyAgent,
		conversations:  providertypes.NewSessionTable[*conversation](cfg.Generation.MaxSessions),
	}

	if cfg.Generation.MaxTokens > 0 {
		maxTokens := int64(cfg.Generation.MaxTokens)
		client.maxOutputTokens = &maxTokens
	}
	if cfg.Generation.Temperature > 0 {
		temp := cfg.Generation.Temperature
		client.temperature = &temp
	}

	return client, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.provider.LanguageModel(ctx, c.modelID); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}

// Generate replays the sender's history after a fresh system message built
// from systemPrompt, then records the new exchange.
func (c *Client) Generate(ctx context.Context, address string, prompt string, systemPrompt string) (providertypes.PromptResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := slog.Default().With("component", "provider.fantasy")

	address = strings.TrimSpace(address)
	if address == "" {
		return providertypes.PromptResult{}, errors.New("sender address is required")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return providertypes.PromptResult{}, errors.New("prompt is required")
	}

	conv, created, err := c.conversations.GetOrCreate(address, func() (*conversation, error) {
		return &conversation{id: providerName + ":" + address}, nil
	})
	if err != nil {
		return providertypes.PromptResult{}, err
	}

	messages := conv.snapshot()
	if trimmed := strings.TrimSpace(systemPrompt); trimmed != "" {
		systemMessage := core.Message{
			Role:    core.MessageRoleSystem,
			Content: []core.MessagePart{core.TextPart{Text: trimmed}},
		}
		messages = append([]core.Message{systemMessage}, messages...)
	}

	languageModel, err := c.provider.LanguageModel(ctx, c.modelID)
	if err != nil {
		return providertypes.PromptResult{}, fmt.Errorf("resolve language model: %w", err)
	}

	call := core.AgentCall{
		Prompt:          prompt,
		Messages:        messages,
		MaxOutputTokens: c.maxOutputTokens,
		Temperature:     c.temperature,
	}

	generate := c.generate
	if generate == nil {
		generate = generateWithFantasyAgent
	}

	req := providertypes.StartRequest(log, "generate", "conversation_id", conv.id, "conversation_created", created, "history_length", len(messages))
	result, err := generate(ctx, languageModel, call)
	if err != nil {
		return providertypes.PromptResult{}, req.Fail(fmt.Errorf("generate failed: %w", err))
	}

	response := extractText(result.Response.Content)
	if response == "" {
		return providertypes.PromptResult{}, req.Fail(errors.New("generate succeeded but returned no text"))
	}
	req.Done("response_length", len(response))

	conv.append(
		core.NewUserMessage(prompt),
		core.Message{
			Role:    core.MessageRoleAssistant,
			Content: []core.MessagePart{core.TextPart{Text: response}},
		},
	)

	usage := providertypes.TokenUsage{
		InputTokens:         result.TotalUsage.InputTokens,
		OutputTokens:        result.TotalUsage.OutputTokens,
		TotalTokens:         result.TotalUsage.TotalTokens,
		ReasoningTokens:     result.TotalUsage.ReasoningTokens,
		CacheCreationTokens: result.TotalUsage.CacheCreationTokens,
		CacheReadTokens:     result.TotalUsage.CacheReadTokens,
	}

	return providertypes.PromptResult{
		Text: response,
		Metadata: providertypes.PromptMetadata{
			Provider: providerName,
			Model:    c.modelID,
			Session:  conv.id,
			Usage:    providertypes.UsagePointer(usage),
		},
	}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func resolveAPIKey(cfg config.OpenAIProviderConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}

func normalizeOpenAIModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("generation.model is required")
	}

	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 {
		return model, nil
	}

	providerID := strings.TrimSpace(parts[0])
	modelID := strings.TrimSpace(parts[1])
	if providerID == "" || modelID == "" {
		return "", errors.New("model is invalid")
	}
	if providerID != "openai" {
		return "", fmt.Errorf("model provider %q is not supported by fantasy openai provider", providerID)
	}

	return modelID, nil
}

func extractText(content core.ResponseContent) string {
	lines := make([]string, 0)
	for _, part := range content {
		if part.GetType() != core.ContentTypeText {
			continue
		}

		textPart, ok := core.AsContentType[core.TextContent](part)
		if !ok {
			continue
		}

		line := strings.TrimSpace(textPart.Text)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func generateWithFantasyAgent(ctx context.Context, model core.LanguageModel, call core.AgentCall) (*core.AgentResult, error) {
	return core.NewAgent(model).Generate(ctx, call)
}
