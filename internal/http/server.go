package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	nhttp "net/http"
	"time"

	"go-silk/internal/config"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	http *nhttp.Server
	log  *slog.Logger
}

func NewServer(cfg config.Config, h nhttp.Handler, log *slog.Logger) *Server {
	writeTimeout := 60 * time.Second
	if cfg.RequestTimeout > 0 {
		// leave room for the timeout response itself
		writeTimeout = cfg.RequestTimeout + 5*time.Second
	}
	return &Server{
		http: &nhttp.Server{
			Addr:              ":" + cfg.Port,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       120 * time.Second,
		},
		log: log,
	}
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		s.log.Error("http server listen error", "err", err, "addr", s.http.Addr)
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server starting", "addr", ln.Addr().String())
		errCh <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("http server shutting down")
		c, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(c); err != nil {
			s.log.Error("http server shutdown error", "err", err)
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, nhttp.ErrServerClosed) {
			return nil
		}
		s.log.Error("http server error", "err", err)
		return err
	}
}
