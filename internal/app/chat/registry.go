/*
Package chat contains the relay core.

This file defines the Registry, the set of live sessions. The Listener adds a session on
accept; the session binds its identity after login and removes itself when it closes.
Broadcast and Unicast take a snapshot of the targets under the read lock and deliver outside
it, so a slow peer never blocks membership changes.
*/
package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/randx"
)

// SessionInfo is a point-in-time view of one registered session.
type SessionInfo struct {
	ID          string    `json:"id"`
	Identity    string    `json:"identity,omitempty"`
	RemoteAddr  string    `json:"remoteAddr"`
	State       string    `json:"state"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Registry tracks every live session and fans messages out to them.
type Registry struct {
	// sessions maps each member to its bound identity ("" until login completes).
	sessions map[*Session]string

	// mu protects access to the sessions map.
	mu sync.RWMutex

	logger zerolog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[*Session]string),
		logger:   logx.Component("registry"),
	}
}

// Add makes s a member. It receives no traffic until Bind.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s] = ""
	total := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info().
		Str("session_id", randx.ShortID(s.ID())).
		Int("total_sessions", total).
		Msg("Session added.")
}

// Bind attaches identity to member s. With replace set, other members bound to the
// same identity are returned so the caller can close them; otherwise nil.
// Bind reports false if s is no longer a member.
func (r *Registry) Bind(s *Session, identity string, replace bool) ([]*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s]; !ok {
		return nil, false
	}

	var displaced []*Session
	if replace {
		for other, id := range r.sessions {
			if other != s && id == identity {
				displaced = append(displaced, other)
			}
		}
	}

	r.sessions[s] = identity

	r.logger.Info().
		Str("session_id", randx.ShortID(s.ID())).
		Str("identity", identity).
		Int("displaced", len(displaced)).
		Msg("Session bound to identity.")

	return displaced, true
}

// Remove drops s from the registry. It reports whether s was a member.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	identity, ok := r.sessions[s]
	if ok {
		delete(r.sessions, s)
	}
	total := len(r.sessions)
	r.mu.Unlock()

	if ok {
		r.logger.Info().
			Str("session_id", randx.ShortID(s.ID())).
			Str("identity", identity).
			Int("total_sessions", total).
			Msg("Session removed.")
	}
	return ok
}

// Broadcast delivers msg to every bound session whose identity differs from source.
// It returns the number of sessions that accepted the message.
func (r *Registry) Broadcast(msg []byte, source string) int {
	return r.deliver(msg, func(identity string) bool { return identity != source })
}

// Unicast delivers msg to every bound session whose identity equals target.
// It returns the number of sessions that accepted the message.
func (r *Registry) Unicast(msg []byte, target string) int {
	return r.deliver(msg, func(identity string) bool { return identity == target })
}

func (r *Registry) deliver(msg []byte, match func(identity string) bool) int {
	targets := r.snapshot(match)

	delivered := 0
	for _, s := range targets {
		if s.Deliver(msg) {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) snapshot(match func(identity string) bool) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]*Session, 0, len(r.sessions))
	for s, identity := range r.sessions {
		if identity != "" && match(identity) {
			targets = append(targets, s)
		}
	}
	return targets
}

// Lookup returns the member with the given session ID, or nil.
func (r *Registry) Lookup(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for s := range r.sessions {
		if s.ID() == id {
			return s
		}
	}
	return nil
}

// Len returns the number of members, bound or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// Sessions returns a view of every member ordered by connection time.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.RLock()
	infos := make([]SessionInfo, 0, len(r.sessions))
	for s := range r.sessions {
		infos = append(infos, s.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// CloseAll closes every member's connection and returns how many were closed.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	for _, s := range all {
		s.Close()
	}

	r.logger.Info().Int("closed", len(all)).Msg("Closed all sessions.")
	return len(all)
}
