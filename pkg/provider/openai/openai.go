package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"riddlebot/pkg/config"
	providertypes "riddlebot/pkg/provider/types"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/conversations"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

const providerName = "openai"

// Client generates replies with the OpenAI Responses API. Each sender address
// gets its own server-side conversation.
type Client struct {
	client         osdk.Client
	model          string
	maxTokens      int64
	requestTimeout time.Duration
	conversations  *providertypes.SessionTable[string]
}

func New(cfg *config.Config) (*Client, error) {
	providerCfg := cfg.Providers.OpenAI
	apiKey := resolveAPIKey(providerCfg)
	if apiKey == "" {
		return nil, errors.New("providers.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	model, err := normalizeModel(cfg.Generation.Model)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(providerCfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(providerCfg.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(providerCfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(providerCfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	return &Client{
		client:         osdk.NewClient(opts...),
		model:          model,
		maxTokens:      int64(cfg.Generation.MaxTokens),
		requestTimeout: requestTimeout,
		conversations:  providertypes.NewSessionTable[string](cfg.Generation.MaxSessions),
	}, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	req := providertypes.StartRequest(providerLogger(), "health")

	if _, err := c.client.Models.List(ctx); err != nil {
		return req.Fail(fmt.Errorf("health check failed: %w", err))
	}
	req.Done()

	return nil
}

// Generate sends prompt into the sender's conversation with systemPrompt as
// the per-request instructions.
func (c *Client) Generate(ctx context.Context, address string, prompt string, systemPrompt string) (providertypes.PromptResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	address = strings.TrimSpace(address)
	if address == "" {
		return providertypes.PromptResult{}, errors.New("sender address is required")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return providertypes.PromptResult{}, errors.New("prompt is required")
	}

	conversationID, created, err := c.conversations.GetOrCreate(address, func() (string, error) {
		return c.createConversation(ctx)
	})
	if err != nil {
		return providertypes.PromptResult{}, err
	}
	req := providertypes.StartRequest(providerLogger(), "generate",
		"conversation_id", conversationID,
		"conversation_created", created,
		"model", c.model,
		"prompt_length", len(prompt),
		"system_prompt_length", len(systemPrompt),
	)

	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: osdk.String(prompt)},
		Conversation: responses.ResponseNewParamsConversationUnion{
			OfConversationObject: &responses.ResponseConversationParam{ID: conversationID},
		},
	}
	if instructions := strings.TrimSpace(systemPrompt); instructions != "" {
		params.Instructions = osdk.String(instructions)
	}
	if c.maxTokens > 0 {
		params.MaxOutputTokens = osdk.Int(c.maxTokens)
	}

	response, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return providertypes.PromptResult{}, req.Fail(fmt.Errorf("generate failed: %w", err))
	}

	text := strings.TrimSpace(response.OutputText())
	if text == "" {
		return providertypes.PromptResult{}, req.Fail(errors.New("generate succeeded but returned no text"))
	}
	req.Done("response_length", len(text))

	usage := providertypes.TokenUsage{
		InputTokens:     response.Usage.InputTokens,
		OutputTokens:    response.Usage.OutputTokens,
		TotalTokens:     response.Usage.TotalTokens,
		ReasoningTokens: response.Usage.OutputTokensDetails.ReasoningTokens,
		CacheReadTokens: response.Usage.InputTokensDetails.CachedTokens,
	}

	return providertypes.PromptResult{
		Text: text,
		Metadata: providertypes.PromptMetadata{
			Provider: providerName,
			Model:    c.model,
			Session:  conversationID,
			Usage:    providertypes.UsagePointer(usage),
		},
	}, nil
}

func (c *Client) createConversation(ctx context.Context) (string, error) {
	conversation, err := c.client.Conversations.New(ctx, conversations.ConversationNewParams{})
	if err != nil {
		return "", fmt.Errorf("create conversation failed: %w", err)
	}
	if conversation == nil || strings.TrimSpace(conversation.ID) == "" {
		return "", errors.New("create conversation returned empty conversation id")
	}

	return strings.TrimSpace(conversation.ID), nil
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.openai")
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

func normalizeModel(model string) (string, error) {
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
	if providerID != providerName {
		return "", fmt.Errorf("model provider %q is not supported by openai provider", providerID)
	}

	return modelID, nil
}
