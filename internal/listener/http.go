package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"
)

const (
	defaultShutdownTimeout   = 10 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
)

// HttpListener serves the REST and websocket surface until its context is canceled.
type HttpListener struct {
	addr            string
	handler         http.Handler
	shutdownTimeout time.Duration
}

type HttpListenerOpt func(*HttpListener)

// WithShutdownTimeout bounds how long in-flight requests get to finish on shutdown.
func WithShutdownTimeout(d time.Duration) HttpListenerOpt {
	return func(l *HttpListener) {
		l.shutdownTimeout = d
	}
}

func NewHttpListener(addr string, handler http.Handler, opts ...HttpListenerOpt) *HttpListener {
	l := &HttpListener{
		addr:            addr,
		handler:         handler,
		shutdownTimeout: defaultShutdownTimeout,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *HttpListener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("address %s is already in use (another server running?)", l.addr)
		}
		return fmt.Errorf("listening on %s: %w", l.addr, err)
	}

	svr := &http.Server{
		Handler:           l.handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		// Requests, and the websockets they upgrade into, end when the worker does.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	done := make(chan struct{})
	defer close(done)

	shutdownErr := make(chan error, 1)
	go func() {
		select {
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
			defer cancel()
			shutdownErr <- svr.Shutdown(sctx)
		case <-done:
			shutdownErr <- nil
		}
	}()

	slog.InfoContext(ctx, "listening for http", "address", ln.Addr().String())

	err = svr.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http on %s: %w", l.addr, err)
	}

	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("shutting down http: %w", err)
	}
	return nil
}
