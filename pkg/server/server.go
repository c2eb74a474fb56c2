package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"chatrelay/pkg/config"
	"chatrelay/pkg/dispatch"
	"chatrelay/pkg/logger"
)

// Server owns the HTTP listener fronting the webhook endpoints. It is meant
// to sit behind a reverse proxy that terminates TLS.
type Server struct {
	server *http.Server
	config *config.Config
	router *dispatch.Router
}

func NewServer(cfg *config.Config, router *dispatch.Router) *Server {
	return &Server{
		config: cfg,
		router: router,
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/{$}", s.handleRoot)
	s.router.Mount(mux)

	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.config.Gateway.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.InfoCF("server", "Starting HTTP server", map[string]interface{}{
		"addr": addr,
	})

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("server", "HTTP server failed", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		logger.InfoC("server", "Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ChatRelay Gateway Running\nTime: %s", time.Now().Format(time.RFC3339))
}
