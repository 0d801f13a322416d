package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultAcceptTimeout bounds each Accept call so the running flag is
// rechecked at least this often.
const DefaultAcceptTimeout = 250 * time.Millisecond

// ConnHandler serves an accepted connection. The handler owns conn and must
// close it before returning. ctx is cancelled when the server stops serving.
type ConnHandler func(ctx context.Context, conn net.Conn)

// BindError reports a failure to bind the listening socket.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("tcpserver: listen %q: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Option customizes a Server.
type Option func(*Server)

// WithAcceptTimeout overrides DefaultAcceptTimeout. Non-positive values are ignored.
func WithAcceptTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.AcceptTimeout = d
		}
	}
}

// Server wraps the TCP listener lifecycle.
type Server struct {
	Addr          string
	AcceptTimeout time.Duration

	logger  *slog.Logger
	running atomic.Bool

	mu       sync.Mutex
	listener net.Listener
}

// New creates a Server bound to addr once ListenAndServe is called.
func New(addr string, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		Addr:          addr,
		AcceptTimeout: DefaultAcceptTimeout,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Running reports whether the accept loop is active.
func (s *Server) Running() bool {
	return s.running.Load()
}

// Shutdown stops the accept loop and closes the listener.
func (s *Server) Shutdown() {
	s.running.Store(false)

	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener != nil {
		_ = listener.Close()
	}
}

// ListenAndServe binds Addr and serves until the context is cancelled,
// Shutdown is called, or the listener fails. A bind failure is returned as
// *BindError.
func (s *Server) ListenAndServe(ctx context.Context, handler ConnHandler) error {
	if handler == nil {
		return errors.New("tcpserver: connection handler required")
	}

	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return &BindError{Addr: s.Addr, Err: err}
	}

	return s.Serve(ctx, listener, handler)
}

// Serve accepts connections on listener and runs handler for each one in its
// own goroutine. It closes listener and waits for every handler to return
// before returning. When ctx is cancelled the returned error is ctx.Err().
//
// Cancellation and Shutdown close listener, which unblocks Accept on any
// listener. Listeners with SetDeadline are also polled every AcceptTimeout.
func (s *Server) Serve(ctx context.Context, listener net.Listener, handler ConnHandler) error {
	if handler == nil {
		return errors.New("tcpserver: connection handler required")
	}

	connCtx, cancel := context.WithCancel(ctx)
	var handlers sync.WaitGroup
	defer func() {
		cancel()
		handlers.Wait()
		s.logger.Info("server stopped", "addr", listener.Addr().String())
	}()
	defer listener.Close()

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.listener = nil
		s.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = listener.Close()
	})
	defer stop()

	deadliner, _ := listener.(interface{ SetDeadline(time.Time) error })

	s.running.Store(true)
	s.logger.Info("server listening", "addr", listener.Addr().String())

	for s.running.Load() {
		if ctx.Err() != nil {
			s.running.Store(false)
			return ctx.Err()
		}

		if deadliner != nil {
			_ = deadliner.SetDeadline(time.Now().Add(s.AcceptTimeout))
		}

		conn, err := listener.Accept()
		if err != nil {
			var netErr net.Error
			switch {
			case ctx.Err() != nil:
				s.running.Store(false)
				return ctx.Err()
			case !s.running.Load():
				return nil
			case errors.As(err, &netErr) && netErr.Timeout():
				continue
			case errors.Is(err, net.ErrClosed):
				s.running.Store(false)
				return fmt.Errorf("tcpserver: listener closed: %w", err)
			}
			s.logger.Warn("accept error", "error", err)
			time.Sleep(s.AcceptTimeout)
			continue
		}

		s.logger.Info("new connection", "remote", conn.RemoteAddr().String())

		handlers.Add(1)
		go func() {
			defer handlers.Done()
			s.serveConn(connCtx, conn, handler)
		}()
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn, handler ConnHandler) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("connection handler panicked", "remote", conn.RemoteAddr().String(), "panic", r)
			_ = conn.Close()
		}
	}()

	handler(ctx, conn)
}
