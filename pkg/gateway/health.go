package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790

	statusShutdownTimeout = 5 * time.Second
)

func (s *Service) statusAddress() string {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}
	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (s *Service) statusHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	return mux
}

// runHealthServer serves until ctx ends. Listen failures go to errCh.
func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	server := &http.Server{
		Addr:              s.statusAddress(),
		Handler:           s.statusHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.status.ready() {
		s.respondStatus(w, http.StatusServiceUnavailable, "not_ready")
		return
	}
	s.respondStatus(w, http.StatusOK, "ready")
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(s.status.snapshot(status, time.Now().UTC())); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}
