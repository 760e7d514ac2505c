/*
Package chat contains the relay core.

This file defines the Listener, which owns the server socket. It accepts connections,
admits them through the optional per-IP limiter, and starts a Session for each one.
*/
package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"relaychat/internal/pkg/limiter"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/randx"
)

const maxAcceptBackoff = time.Second

// Listener accepts TCP clients and runs a Session for each.
type Listener struct {
	addr           string
	deps           *Deps
	readBufferSize int
	admission      *limiter.IPRateLimiter

	ln net.Listener

	// wg tracks running sessions so Wait can block until they finish.
	wg sync.WaitGroup

	logger zerolog.Logger
}

// NewListener builds a Listener for addr. admission may be nil to admit every connection.
func NewListener(addr string, deps *Deps, readBufferSize int, admission *limiter.IPRateLimiter) *Listener {
	return &Listener{
		addr:           addr,
		deps:           deps,
		readBufferSize: readBufferSize,
		admission:      admission,
		logger:         logx.Component("listener"),
	}
}

// Listen binds the server socket. A bind failure is returned as is and is not retried.
// Go enables SO_REUSEADDR on listening sockets on Unix platforms.
func (l *Listener) Listen(ctx context.Context) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", l.addr, err)
	}
	l.ln = ln

	l.logger.Info().Str("addr", ln.Addr().String()).Msg("Listening.")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Serve runs the accept loop until ctx is cancelled or the listener is closed.
// It returns nil on an orderly stop.
func (l *Listener) Serve(ctx context.Context) error {
	if l.ln == nil {
		return errors.New("listener: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() {
		_ = l.ln.Close()
	})
	defer stop()

	var backoff time.Duration
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.logger.Info().Msg("Accept loop stopped.")
				return nil
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			l.logger.Error().Err(err).Dur("retry_in", backoff).Msg("Accept failed.")

			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		backoff = 0

		l.admit(ctx, conn)
	}
}

func (l *Listener) admit(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()

	if l.admission != nil && !l.admission.AllowAddr(remote) {
		l.logger.Warn().Str("remote_addr", logx.AnonymizeIP(remote)).Msg("Connection rejected: rate limit exceeded.")
		_ = conn.Close()
		return
	}

	session := NewSession(NewTCPConn(conn, l.readBufferSize), l.deps)
	l.deps.Registry.Add(session)

	l.logger.Info().
		Str("remote_addr", logx.AnonymizeIP(remote)).
		Str("session_id", randx.ShortID(session.ID())).
		Msg("Accepted a new connection.")

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		session.Run(ctx)
	}()
}

// Close stops accepting new connections. Running sessions are unaffected.
func (l *Listener) Close() error {
	if l.ln == nil {
		return nil
	}
	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Wait blocks until every session started by this listener has returned.
func (l *Listener) Wait() {
	l.wg.Wait()
}
