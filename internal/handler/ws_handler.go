/*
Package handler provides the admin HTTP surface of the relay.

This file contains HandleWebSocket, which rate-limits, upgrades the connection and runs a relay
Session over it. A WebSocket client speaks the same login and relay protocol as a TCP client,
one frame per chunk.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"relaychat/internal/app/chat"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/randx"
	"relaychat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc that serves relay sessions over WebSocket.
// The handler blocks until the session ends.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.joinLimiter.AllowAddr(r.RemoteAddr) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", logx.AnonymizeIP(r.RemoteAddr))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		session := chat.NewSession(chat.NewWSConn(conn, deps.Config.ReadBufferSize), deps.Chat)
		deps.Chat.Registry.Add(session)

		logx.Info("WebSocket connection established.", "session_id", randx.ShortID(session.ID()))

		session.Run(r.Context())
	}
}
