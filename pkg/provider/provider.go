package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"riddlebot/pkg/config"
	providerfantasy "riddlebot/pkg/provider/fantasy"
	provideropenai "riddlebot/pkg/provider/openai"
	"riddlebot/pkg/provider/opencode"
	providertypes "riddlebot/pkg/provider/types"
)

// Client is a text-generation backend with conversation state kept per
// sender address.
type Client interface {
	Health(ctx context.Context) error
	Generate(ctx context.Context, address string, prompt string, systemPrompt string) (providertypes.PromptResult, error)
}

// New builds the client named by generation.provider; openai is the default.
func New(cfg *config.Config) (Client, error) {
	providerID := strings.TrimSpace(cfg.Generation.Provider)
	if providerID == "" {
		providerID = "openai"
	}

	slog.Default().With("component", "provider.factory").Debug("Resolving provider client", "provider", providerID)

	switch providerID {
	case "openai":
		return provideropenai.New(cfg)
	case "fantasy":
		return providerfantasy.New(cfg)
	case "opencode":
		return opencode.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerID)
	}
}
