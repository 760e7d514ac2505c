/*
Package chat contains the relay core.

This file defines the Session, one per accepted connection. A session runs the login state
machine on its own goroutine, then the relay loop; once relaying, a write pump drains the
outbound queue filled by Registry deliveries.
*/
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"relaychat/internal/app/credential"
	"relaychat/internal/app/history"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/randx"
)

const sendBufferSize = 256

// deliverTimeout bounds how long a delivery waits on a full outbound queue
// before the slow session is dropped.
var deliverTimeout = 5 * time.Second

// State is a session's position in its lifecycle.
type State int

const (
	StateAwaitingUsername State = iota
	StateAwaitingPassword
	StateAuthenticating
	StateRelaying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingUsername:
		return "awaiting_username"
	case StateAwaitingPassword:
		return "awaiting_password"
	case StateAuthenticating:
		return "authenticating"
	case StateRelaying:
		return "relaying"
	default:
		return "closed"
	}
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Registry    *Registry
	Credentials *credential.Service
	History     history.Store

	// ReplaceDuplicates closes older sessions of an identity when it logs in again.
	ReplaceDuplicates bool
}

// Session is one client connection.
type Session struct {
	id          string
	conn        Conn
	deps        *Deps
	connectedAt time.Time

	// outbound queue drained by writePump.
	send chan []byte

	// closed when the session ends; never reopened.
	done      chan struct{}
	closeOnce sync.Once

	// mu protects identity and state.
	mu       sync.Mutex
	identity string
	state    State

	logger zerolog.Logger
}

// NewSession constructs a Session over conn. It does not register it; see Registry.Add.
func NewSession(conn Conn, deps *Deps) *Session {
	id := randx.SessionID()

	return &Session{
		id:          id,
		conn:        conn,
		deps:        deps,
		connectedAt: time.Now(),
		send:        make(chan []byte, sendBufferSize),
		done:        make(chan struct{}),
		state:       StateAwaitingUsername,
		logger: logx.Component("session").With().
			Str("session_id", randx.ShortID(id)).
			Str("remote_addr", logx.AnonymizeIP(conn.RemoteAddr())).
			Logger(),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Identity returns the bound identity, or "" before login completes.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Info returns a point-in-time view of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionInfo{
		ID:          s.id,
		Identity:    s.identity,
		RemoteAddr:  logx.AnonymizeIP(s.conn.RemoteAddr()),
		State:       s.state.String(),
		ConnectedAt: s.connectedAt,
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run drives the session until the client quits, disconnects or fails login.
// The session is closed and removed from the registry when Run returns.
func (s *Session) Run(ctx context.Context) {
	defer s.Close()

	replay, ok := s.login(ctx)
	if !ok {
		return
	}

	go s.writePump()

	s.relay(ctx, replay)
}

// login runs the username/password exchange. It reports whether the session may relay
// and, if so, whether the identity is returning (history replay enabled).
func (s *Session) login(ctx context.Context) (replay bool, ok bool) {
	if err := s.conn.Write([]byte(PromptUsername)); err != nil {
		s.logger.Info().Err(err).Msg("Client left before username prompt.")
		return false, false
	}
	chunk, err := s.conn.ReadChunk()
	if err != nil {
		s.logger.Info().Err(err).Msg("Client left before sending a username.")
		return false, false
	}
	identity := trimLineEnding(string(chunk))

	s.setState(StateAwaitingPassword)
	if err := s.conn.Write([]byte(PromptPassword)); err != nil {
		s.logger.Info().Err(err).Msg("Client left before password prompt.")
		return false, false
	}
	chunk, err = s.conn.ReadChunk()
	if err != nil {
		s.logger.Info().Err(err).Msg("Client left before sending a password.")
		return false, false
	}
	secret := []byte(trimLineEnding(string(chunk)))

	if identity == "" {
		s.reject(s.logger, errs.NewError(errs.ErrInvalidIdentity), "Empty username rejected.")
		return false, false
	}

	s.setState(StateAuthenticating)
	logger := s.logger.With().Str("identity", identity).Logger()

	outcome, err := s.deps.Credentials.Login(ctx, identity, secret)
	if err != nil {
		logger.Error().Err(err).Msg("Credential backend failed during login.")
		if errors.Is(err, credential.ErrInvalidIdentity) {
			s.reject(logger, errs.NewError(errs.ErrInvalidIdentity), "Username refused by credential backend.")
		} else {
			s.reject(logger, errs.NewError(errs.ErrCredentialBackend), "Login aborted.")
		}
		return false, false
	}

	var reply string
	switch outcome {
	case credential.Registered:
		reply = ReplyRegistered
	case credential.Authenticated:
		reply = ReplyConnected
		replay = true
	default:
		s.reject(logger, errs.NewError(errs.ErrLoginFailed), "Connection denied.")
		return false, false
	}

	s.mu.Lock()
	s.identity = identity
	s.state = StateRelaying
	s.mu.Unlock()

	// Bind before replying; deliveries queue until the write pump starts.
	displaced, member := s.deps.Registry.Bind(s, identity, s.deps.ReplaceDuplicates)
	if !member {
		logger.Warn().Msg("Session closed during login.")
		return false, false
	}
	for _, old := range displaced {
		old.kick(errs.NewError(errs.ErrSessionReplaced))
	}

	if err := s.conn.Write([]byte(reply)); err != nil {
		logger.Info().Err(err).Msg("Client left before login reply.")
		return false, false
	}

	logger.Info().Str("outcome", outcome.String()).Msg("Login succeeded.")
	return replay, true
}

// reject sends the in-band failure reply. Run closes the connection afterwards.
func (s *Session) reject(logger zerolog.Logger, customErr *errs.CustomError, logMsg string) {
	logger.Warn().Int("code", customErr.Code).Msg(logMsg)

	if err := s.conn.Write([]byte(customErr.Message)); err != nil {
		logger.Debug().Err(err).Msg("Failed to send login failure reply.")
	}
}

// relay replays history for returning identities, then forwards every inbound chunk.
func (s *Session) relay(ctx context.Context, replay bool) {
	identity := s.Identity()
	logger := s.logger.With().Str("identity", identity).Logger()

	if replay {
		s.replayHistory(ctx, logger, identity)
	}

	appender, err := s.deps.History.OpenAppender(ctx, identity)
	if err != nil {
		logger.Error().Err(err).Msg("Cannot open history; relaying without persistence.")
	} else {
		defer func() {
			if err := appender.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close history.")
			}
		}()
	}

	for {
		chunk, err := s.conn.ReadChunk()
		if err != nil {
			select {
			case <-s.done:
			default:
				logger.Info().Err(err).Msg("Client disconnected.")
			}
			return
		}

		content := trimLineEnding(string(chunk))
		if content == QuitSentinel {
			logger.Info().Msg("Client sent QUIT.")
			return
		}

		if appender != nil {
			if err := appender.Append(content); err != nil {
				logger.Error().Err(err).Msg("Failed to append history.")
			}
		}

		delivered := s.deps.Registry.Broadcast(chunk, identity)
		logger.Debug().Int("bytes", len(chunk)).Int("delivered", delivered).Msg("Relayed message.")
	}
}

func (s *Session) replayHistory(ctx context.Context, logger zerolog.Logger, identity string) {
	logger.Info().Msg("Loading chat history.")

	lines := 0
	err := s.deps.History.Replay(ctx, identity, func(line string) error {
		s.deps.Registry.Unicast([]byte(line+"\n"), identity)
		lines++
		return nil
	})

	switch {
	case errors.Is(err, history.ErrNoHistory):
		logger.Warn().Msg("Cannot load chat history: none stored.")
	case err != nil:
		logger.Error().Err(err).Msg("Cannot load chat history.")
	default:
		logger.Info().Int("lines", lines).Msg("Chat history replayed.")
	}
}

// Deliver queues msg for the client. It waits up to deliverTimeout on a full queue and
// then drops the session. It reports whether msg was queued.
func (s *Session) Deliver(msg []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	timer := time.NewTimer(deliverTimeout)
	defer timer.Stop()

	select {
	case s.send <- msg:
		return true
	case <-s.done:
		return false
	case <-timer.C:
		s.logger.Warn().
			Int("queue_len", len(s.send)).
			Dur("timeout", deliverTimeout).
			Msg("Client send queue full, dropping session.")
		s.Close()
		return false
	}
}

// writePump writes queued messages to the client until the session ends.
func (s *Session) writePump() {
	for {
		select {
		case msg := <-s.send:
			if err := s.conn.Write(msg); err != nil {
				s.logger.Info().Err(err).Msg("Error writing message.")
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// kick closes a session displaced by a newer login of the same identity.
func (s *Session) kick(reason *errs.CustomError) {
	s.logger.Warn().
		Int("code", reason.Code).
		Str("reason", reason.Message).
		Msg("Closing session replaced by a new login.")
	s.Close()
}

// Close ends the session: it removes the session from the registry, stops the write pump
// and closes the connection. It is safe to call more than once and from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		s.deps.Registry.Remove(s)
		close(s.done)

		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Connection close error.")
		}
	})
}
