package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Start runs the HTTP server and blocks until an interrupt or terminate
// signal arrives, then shuts everything down in dependency order: listener
// first, then the event bus, then the stores.
func (s *Server) Start() {
	go func() {
		if err := s.E.Start(s.Cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.E.Shutdown(ctx); err != nil {
		slog.Error("Failed to shut down listener", "error", err)
	}

	s.bridge.Shutdown()
	if err := s.bus.Close(); err != nil {
		slog.Error("Failed to close event bus", "error", err)
	}
	if err := s.messages.Close(); err != nil {
		slog.Error("Failed to close message store", "error", err)
	}
	if err := s.db.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}
