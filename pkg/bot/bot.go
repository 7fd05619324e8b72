// Package bot assembles the dispatcher and its collaborators from config.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"riddlebot/pkg/config"
	"riddlebot/pkg/dispatch"
	"riddlebot/pkg/fallback"
	"riddlebot/pkg/game"
	"riddlebot/pkg/provider"
	"riddlebot/pkg/skill"
	"riddlebot/pkg/users"
)

const (
	BackendStatic = "static"
	BackendSQLite = "sqlite"
)

// Options overrides collaborators that New would otherwise build from config.
type Options struct {
	Events   dispatch.EventPublisher
	Provider provider.Client
}

// Bot is a fully wired dispatcher plus the collaborators it owns.
type Bot struct {
	Dispatcher *dispatch.Dispatcher
	Registry   *skill.Registry
	Provider   provider.Client
	Users      users.Store
	Game       *game.Manager

	closers []io.Closer
}

// New builds the registry, user directory, generation backend and dispatcher.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Bot, error) {
	log := slog.Default().With("component", "bot")
	b := &Bot{}

	store, closer, err := OpenUserStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b.Users = store
	if closer != nil {
		b.closers = append(b.closers, closer)
	}

	directory := buildDirectory(cfg.Users, store, log)

	groups := make([]skill.Group, 0, 2)
	var state fallback.StateFunc
	if cfg.Game.Enabled {
		manager, err := newGameManager(cfg.Game)
		if err != nil {
			return nil, errors.Join(err, b.Close())
		}
		b.Game = manager
		state = manager.Describe
		groups = append(groups, game.Group(manager, walletRecorder{store: store, cache: directory}))
	}
	groups = append(groups, game.HelpGroup(func() string { return b.Registry.Describe() }))

	b.Registry, err = skill.NewRegistry(groups...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("build skill registry: %w", err), b.Close())
	}

	b.Provider = opts.Provider
	if b.Provider == nil {
		b.Provider, err = provider.New(cfg)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("create provider client: %w", err), b.Close())
		}
	}

	settings := gameSettings(cfg.Game)
	generator, err := fallback.New(b.Provider, fallback.Options{
		Persona:          cfg.Generation.Persona,
		MaxSegmentLength: cfg.Bot.MaxMessageLength,
		MaxAttempts:      settings.MaxAttempts,
		MaxHints:         settings.MaxHints,
		State:            state,
	})
	if err != nil {
		return nil, errors.Join(err, b.Close())
	}

	b.Dispatcher, err = dispatch.New(dispatch.Options{
		Registry:  b.Registry,
		Users:     directory,
		Generator: generator,
		Apology:   cfg.Bot.Apology(),
		Events:    opts.Events,
	})
	if err != nil {
		return nil, errors.Join(err, b.Close())
	}

	log.Debug("Bot assembled",
		"skills", len(b.Registry.Skills()),
		"users_backend", userBackend(cfg.Users),
		"auto_register", cfg.Users.AutoRegister,
		"game", cfg.Game.Enabled,
	)

	return b, nil
}

// Close releases resources owned by the bot.
func (b *Bot) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil

	return errors.Join(errs...)
}

// OpenUserStore opens the configured user store and seeds it with the static
// entries. The closer is nil when the store holds no resources.
func OpenUserStore(ctx context.Context, cfg *config.Config) (users.Store, io.Closer, error) {
	switch backend := userBackend(cfg.Users); backend {
	case BackendStatic:
		return users.NewMemoryDirectory(cfg.Users.Static), nil, nil
	case BackendSQLite:
		store, err := users.OpenSQLite(ctx, cfg.Users.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open user store: %w", err)
		}
		if err := seedStatic(ctx, store, cfg.Users.Static); err != nil {
			return nil, nil, errors.Join(err, store.Close())
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unsupported users backend: %s", backend)
	}
}

func userBackend(cfg config.UsersConfig) string {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		return BackendStatic
	}
	return backend
}

// seedStatic inserts configured users that the store does not know yet.
func seedStatic(ctx context.Context, store users.Store, entries []config.UserEntry) error {
	for _, entry := range entries {
		if strings.TrimSpace(entry.Address) == "" {
			continue
		}
		_, ok, err := store.Lookup(ctx, entry.Address)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", entry.Address, err)
		}
		if ok {
			continue
		}

		info := users.Info{Address: entry.Address, Name: entry.Name, Wallet: entry.Wallet}
		if err := store.Save(ctx, info); err != nil {
			return fmt.Errorf("seed user %s: %w", entry.Address, err)
		}
	}

	return nil
}

func buildDirectory(cfg config.UsersConfig, store users.Store, log *slog.Logger) *users.CachedDirectory {
	var next users.Directory = store
	if cfg.AutoRegister {
		next = users.NewAutoRegisterDirectory(store, log)
	}

	return users.NewCachedDirectory(next, cfg.CacheSize, time.Duration(cfg.CacheTTLSeconds)*time.Second)
}

func gameSettings(cfg config.GameConfig) game.Settings {
	settings := game.Settings{
		MaxAttempts: cfg.MaxAttempts,
		MaxHints:    cfg.MaxHints,
		Cooldown:    time.Duration(cfg.CooldownSeconds) * time.Second,
		MaxSessions: cfg.MaxSessions,
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = game.DefaultMaxAttempts
	}
	if settings.MaxHints <= 0 {
		settings.MaxHints = game.DefaultMaxHints
	}
	return settings
}

func newGameManager(cfg config.GameConfig) (*game.Manager, error) {
	catalog, err := game.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	manager, err := game.NewManager(catalog, gameSettings(cfg))
	if err != nil {
		return nil, fmt.Errorf("create game manager: %w", err)
	}

	return manager, nil
}

// walletRecorder stores a winner's wallet and drops the stale cached profile.
type walletRecorder struct {
	store users.Store
	cache *users.CachedDirectory
}

func (w walletRecorder) Save(ctx context.Context, info users.Info) error {
	if err := w.store.Save(ctx, info); err != nil {
		return err
	}
	w.cache.Invalidate(info.Address)
	return nil
}
