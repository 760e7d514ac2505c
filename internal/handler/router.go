/*
Package handler provides the admin HTTP surface of the relay.

This file defines the main Router, applying logging, CORS and IP-based rate limiting before
delegating to the health check, the operator API and the WebSocket transport.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"relaychat/internal/pkg/auth/jwt"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/resp"
)

// Router sets up the admin HTTP routing table (chi.Router).
// The /api group requires an operator bearer token signed with Config.AdminJWTSecret.
func Router(deps *AppDeps) http.Handler {
	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  deps.Config.ReadBufferSize,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.Environment == "development" {
				return true
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients send no Origin.
				return true
			}
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status":   "ok",
			"service":  "relaychat",
			"sessions": deps.Chat.Registry.Len(),
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(deps.apiLimiter.Middleware)
		api.Use(jwt.RequireOperator(deps.Config.AdminJWTSecret))

		api.Get("/sessions", HandleListSessions(deps))
		api.Delete("/sessions/{id}", HandleDisconnectSession(deps))
		api.Post("/broadcast", HandleBroadcast(deps))
	})

	r.Get("/ws", HandleWebSocket(deps, wsUpgrader))

	return r
}
