package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/example/go-voiceclone/internal/config"
)

// ConfigOptions maps the server config section onto handler options.
func ConfigOptions(cfg config.ServerConfig) []Option {
	opts := []Option{
		WithWorkers(cfg.Workers),
	}
	if cfg.MaxTextBytes > 0 {
		opts = append(opts, WithMaxTextBytes(cfg.MaxTextBytes))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, WithRequestTimeout(time.Duration(cfg.RequestTimeout)*time.Second))
	}
	if cfg.ReferenceDir != "" {
		opts = append(opts, WithReferenceDir(cfg.ReferenceDir))
	}
	return opts
}

// Server wires a handler into a net/http.Server with graceful shutdown.
type Server struct {
	addr            string
	handler         http.Handler
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

func New(cfg config.ServerConfig, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := 30 * time.Second
	if cfg.ShutdownTimeout > 0 {
		timeout = time.Duration(cfg.ShutdownTimeout) * time.Second
	}

	return &Server{
		addr:            cfg.ListenAddr,
		handler:         handler,
		shutdownTimeout: timeout,
		logger:          logger,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// Start listens on the configured address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	return s.Serve(ctx, ln)
}

// Serve runs on ln until ctx is cancelled, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("http server listening", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	}
}

// ProbeHTTP checks that a server answers /health at addr.
func ProbeHTTP(ctx context.Context, addr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
