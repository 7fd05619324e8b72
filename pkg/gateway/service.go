// Package gateway runs channel adapters against the dispatcher and exposes
// health and readiness over HTTP.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"riddlebot/pkg/bus"
	"riddlebot/pkg/channel"
	"riddlebot/pkg/config"
	"riddlebot/pkg/dispatch"
)

const providerHealthInterval = 30 * time.Second

// Dispatcher runs one dispatch cycle. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg bus.InboundMessage, sender channel.Sender) dispatch.Outcome
}

// HealthChecker reports generation backend health. provider.Client satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Service runs channel adapters against the dispatcher.
type Service struct {
	cfg        *config.Config
	log        *slog.Logger
	dispatcher Dispatcher
	provider   HealthChecker
	events     *bus.MessageBus
	channels   []channel.Adapter
	status     *statusTracker
}

// NewService wires adapters to the dispatcher. events is optional; when set,
// dispatch events are logged and counted in the status payload.
func NewService(cfg *config.Config, dispatcher Dispatcher, health HealthChecker, events *bus.MessageBus, adapters []channel.Adapter, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if health == nil {
		return nil, errors.New("provider health checker is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return &Service{
		cfg:        cfg,
		log:        log.With("component", "gateway.service"),
		dispatcher: dispatcher,
		provider:   health,
		events:     events,
		channels:   adapters,
		status:     newStatusTracker(names...),
	}, nil
}

// Run blocks until ctx ends or an adapter or the status server fails. The
// provider must be healthy at start. Before returning it stops every adapter
// and waits for it, so no dispatch cycle outlives Run.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.status.markStarted(time.Now().UTC())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.checkProviderHealth(ctx); err != nil {
		return err
	}

	if s.events != nil {
		events, unsubscribe := s.events.SubscribeEvents(ctx, 0)
		defer unsubscribe()
		go s.runEventLog(events)
	}

	serverErrors := make(chan error, 1)
	go s.runHealthServer(ctx, serverErrors)
	go s.watchProvider(ctx)

	var adapters sync.WaitGroup
	defer func() {
		cancel()
		adapters.Wait()
	}()

	adapterErrors := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		s.status.setChannel(adapter.Name(), channelState{Running: true})
		adapters.Add(1)
		go func() {
			defer adapters.Done()
			err := adapter.Run(ctx, s.handleInbound)
			s.status.setChannel(adapter.Name(), channelState{Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				adapterErrors <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-adapterErrors:
		return err
	}
}

// handleInbound is the channel.Handler given to every adapter. Dispatch
// failures are already answered and logged by the dispatcher.
func (s *Service) handleInbound(ctx context.Context, inbound bus.InboundMessage, sender channel.Sender) error {
	outcome := s.dispatcher.Dispatch(ctx, inbound, sender)
	s.log.Debug("Inbound message handled",
		"channel", inbound.Channel,
		"chat_id", inbound.ChatID,
		"request_id", outcome.RequestID,
		"branch", outcome.Branch,
		"failed", outcome.Err != nil,
	)

	return nil
}

func (s *Service) watchProvider(ctx context.Context) {
	ticker := time.NewTicker(providerHealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.checkProviderHealth(ctx); err != nil {
				s.log.Warn("Provider health check failed", "error", err)
			}
		}
	}
}

func (s *Service) checkProviderHealth(ctx context.Context) error {
	err := s.provider.Health(ctx)
	s.status.providerChecked(time.Now().UTC(), err)
	if err != nil {
		return fmt.Errorf("provider health check failed: %w", err)
	}
	return nil
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
