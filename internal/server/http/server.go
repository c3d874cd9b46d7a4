// Package http exposes the classifier as a JSON API built with huma.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/ekisa-team/leafsight/internal/service"
)

const shutdownTimeout = 10 * time.Second

// Server serves the HTTP API.
type Server struct {
	srv *http.Server
}

// NewServer creates a server listening on port.
func NewServer(port int, classifier *service.Classifier, maxUploadBytes int64) *Server {
	mux := http.NewServeMux()

	cfg := huma.DefaultConfig("leafsight", "1.0.0")
	cfg.Info.Description = "Tomato leaf disease classification"
	api := humago.New(mux, cfg)

	NewClassifierHandler(api, classifier, maxUploadBytes)

	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Serve accepts connections on l until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", l.Addr().String())
		errCh <- s.srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("Shutting down HTTP server")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured port and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, l)
}
