package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"riddlebot/pkg/bot"
	"riddlebot/pkg/bus"
	"riddlebot/pkg/channel"
	"riddlebot/pkg/channel/telegram"
	"riddlebot/pkg/config"
	"riddlebot/pkg/gateway"
)

const telegramChannelName = "telegram"

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Serve the bot on the enabled chat channels",
	Long:  "Runs the dispatcher behind every enabled channel adapter with health and readiness endpoints.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadRuntime("cmd.gateway")
		if err != nil {
			return err
		}

		runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runGateway(runCtx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

func runGateway(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	adapters, err := enabledAdapters(cfg, log)
	if err != nil {
		return fmt.Errorf("gateway configuration invalid: %w", err)
	}

	events := bus.NewMessageBus()
	defer events.Close()

	b, err := bot.New(ctx, cfg, bot.Options{Events: events})
	if err != nil {
		return fmt.Errorf("assemble bot: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("Failed to close bot resources", "error", err)
		}
	}()

	svc, err := gateway.NewService(cfg, b.Dispatcher, b.Provider, events, adapters, log)
	if err != nil {
		return fmt.Errorf("initialize gateway service: %w", err)
	}

	log.Info("Gateway started",
		"channels", enabledChannelNames(adapters),
		"provider", cfg.Generation.Provider,
		"model", cfg.Generation.Model,
		"skills", len(b.Registry.Skills()),
	)
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("gateway runtime failed: %w", err)
	}

	return nil
}

func enabledAdapters(cfg *config.Config, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 1)

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", telegramChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
