package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"foundry/util/goroutine"

	"go.uber.org/zap"
)

// ListenConfig holds the address and timeouts of the HTTP server.
type ListenConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is a bound HTTP listener serving in the background.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *zap.SugaredLogger

	done <-chan struct{}

	mu  sync.Mutex
	err error
}

// Listen binds the listening socket synchronously and then serves handler in a goroutine. A bind
// failure is returned directly; errors raised while serving are available from Err once Done is
// closed.
func Listen(handler http.Handler, cfg ListenConfig, logger *zap.SugaredLogger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ErrorLog:          zap.NewStdLog(logger.Desugar()),
		},
		ln:     ln,
		logger: logger,
	}
	s.done = goroutine.Go("http-server", logger, s.serve)

	logger.Infof("HTTP server listening on %s", ln.Addr())
	return s, nil
}

func (s *Server) serve() {
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Errorf("HTTP server error: %v", err)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}
}

// Addr returns the bound address. With port 0 this carries the port chosen by the kernel.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *Server) Port() int {
	if tcp, ok := s.ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Close closes the listener and all connections immediately.
func (s *Server) Close() error {
	err := s.srv.Close()
	<-s.done
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return err
}

// Done is closed once the server has stopped serving.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that stopped the server, or nil after a normal close.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
