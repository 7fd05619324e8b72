package opencode

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"riddlebot/pkg/config"
	providertypes "riddlebot/pkg/provider/types"

	sdk "github.com/sst/opencode-sdk-go"
	"github.com/sst/opencode-sdk-go/option"
)

// Client generates replies through an OpenCode server. Each sender address
// is bound to its own OpenCode session.
type Client struct {
	client         *sdk.Client
	requestTimeout time.Duration
	model          string
	sessions       *providertypes.SessionTable[string]
}

type healthResponse struct {
	Healthy bool   `json:"healthy"`
	Version string `json:"version"`
}

func New(cfg *config.Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.Providers.OpenCode.BaseURL)
	if baseURL == "" {
		return nil, errors.New("providers.opencode.base_url is required")
	}

	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if authHeader, ok := buildBasicAuthHeader(cfg.Providers.OpenCode); ok {
		opts = append(opts, option.WithHeader("Authorization", authHeader))
	}

	requestTimeout := time.Duration(cfg.Providers.OpenCode.RequestTimeoutSeconds) * time.Second

	return &Client{
		client:         sdk.NewClient(opts...),
		requestTimeout: requestTimeout,
		model:          strings.TrimSpace(cfg.Generation.Model),
		sessions:       providertypes.NewSessionTable[string](cfg.Generation.MaxSessions),
	}, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	req := providertypes.StartRequest(providerLogger(), "health")

	var response healthResponse
	if err := c.client.Get(ctx, "/global/health", nil, &response); err != nil {
		return req.Fail(fmt.Errorf("health check failed: %w", err))
	}
	if !response.Healthy {
		return req.Fail(errors.New("opencode server reported unhealthy status"))
	}
	req.Done("version", response.Version)
	return nil
}

func (c *Client) createSession(ctx context.Context, title string) (string, error) {
	req := providertypes.StartRequest(providerLogger(), "create_session", "title", title)

	session, err := c.client.Session.New(ctx, sdk.SessionNewParams{Title: sdk.F(title)})
	if err != nil {
		return "", req.Fail(fmt.Errorf("create session failed: %w", err))
	}
	if session.ID == "" {
		return "", req.Fail(errors.New("create session returned empty session id"))
	}
	req.Done("session_id", session.ID)

	return session.ID, nil
}

// Generate prompts the sender's OpenCode session, creating it on first use.
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

	sessionID, _, err := c.sessions.GetOrCreate(address, func() (string, error) {
		return c.createSession(ctx, "riddlebot "+address)
	})
	if err != nil {
		return providertypes.PromptResult{}, err
	}

	req := providertypes.StartRequest(providerLogger(), "prompt",
		"session_id", sessionID,
		"model", c.model,
		"prompt_length", len(prompt),
		"system_prompt_length", len(systemPrompt),
	)

	params := sdk.SessionPromptParams{
		Parts: sdk.F([]sdk.SessionPromptParamsPartUnion{
			sdk.TextPartInputParam{
				Type: sdk.F(sdk.TextPartInputTypeText),
				Text: sdk.F(prompt),
			},
		}),
	}

	if system := strings.TrimSpace(systemPrompt); system != "" {
		params.System = sdk.F(system)
	}

	if providerID, modelID, ok := parseModelRef(c.model); ok {
		params.Model = sdk.F(sdk.SessionPromptParamsModel{
			ProviderID: sdk.F(providerID),
			ModelID:    sdk.F(modelID),
		})
	}

	response, err := c.client.Session.Prompt(ctx, sessionID, params)
	if err != nil {
		return providertypes.PromptResult{}, req.Fail(fmt.Errorf("prompt failed: %w", err))
	}

	text := extractText(response.Parts)
	if text == "" {
		return providertypes.PromptResult{}, req.Fail(errors.New("prompt succeeded but returned no text parts"))
	}
	req.Done("response_length", len(text), "parts_count", len(response.Parts))

	usage := providertypes.TokenUsage{
		InputTokens:     tokenCount(response.Info.Tokens.Input),
		OutputTokens:    tokenCount(response.Info.Tokens.Output),
		TotalTokens:     tokenCount(response.Info.Tokens.Input) + tokenCount(response.Info.Tokens.Output),
		ReasoningTokens: tokenCount(response.Info.Tokens.Reasoning),
		CacheReadTokens: tokenCount(response.Info.Tokens.Cache.Read),
	}

	return providertypes.PromptResult{
		Text: text,
		Metadata: providertypes.PromptMetadata{
			Provider: strings.TrimSpace(response.Info.ProviderID),
			Model:    strings.TrimSpace(response.Info.ModelID),
			Session:  sessionID,
			Usage:    providertypes.UsagePointer(usage),
		},
	}, nil
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.opencode")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

func buildBasicAuthHeader(cfg config.OpenCodeProviderConfig) (string, bool) {
	passwordEnv := strings.TrimSpace(cfg.PasswordEnv)
	if passwordEnv == "" {
		return "", false
	}

	password := strings.TrimSpace(os.Getenv(passwordEnv))
	if password == "" {
		return "", false
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "opencode"
	}

	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return "Basic " + token, true
}

func parseModelRef(input string) (providerID string, modelID string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(input), "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}

	providerID = strings.TrimSpace(parts[0])
	modelID = strings.TrimSpace(parts[1])
	if providerID == "" || modelID == "" {
		return "", "", false
	}

	return providerID, modelID, true
}

func extractText(parts []sdk.Part) string {
	var lines []string
	for _, part := range parts {
		if part.Type == sdk.PartTypeText {
			text := strings.TrimSpace(part.Text)
			if text != "" {
				lines = append(lines, text)
			}
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func tokenCount(value float64) int64 {
	if value <= 0 {
		return 0
	}

	return int64(math.Round(value))
}
