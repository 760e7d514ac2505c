package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"relaychat/internal/app/chat"
	"relaychat/internal/pkg/auth/jwt"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/randx"
	"relaychat/internal/pkg/req"
	"relaychat/internal/pkg/resp"
)

// SessionsResponse is the payload of GET /api/sessions.
type SessionsResponse struct {
	Count       int                `json:"count"`
	Credentials int                `json:"credentials"`
	Sessions    []chat.SessionInfo `json:"sessions"`
}

// BroadcastRequest is the body of POST /api/broadcast.
type BroadcastRequest struct {
	Message string `json:"message"`
}

// BroadcastResponse reports how many sessions accepted an announcement.
type BroadcastResponse struct {
	Delivered int `json:"delivered"`
}

// HandleListSessions lists every registered session, authenticated or not.
func HandleListSessions(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		credentials, err := deps.Credentials.Count(r.Context())
		if err != nil {
			logx.Error(err, "Failed to count credentials")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		sessions := deps.Chat.Registry.Sessions()
		resp.RespondSuccess(w, r, SessionsResponse{
			Count:       len(sessions),
			Credentials: credentials,
			Sessions:    sessions,
		})
	}
}

// HandleBroadcast relays an operator announcement verbatim to every authenticated session.
func HandleBroadcast(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body BroadcastRequest
		if customErr := req.BindJSON(w, r, &body); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if strings.TrimSpace(body.Message) == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrMessageEmpty))
			return
		}
		if len(body.Message) > deps.Config.ReadBufferSize {
			resp.RespondError(w, r, errs.NewError(errs.ErrMessageContentTooLong, deps.Config.ReadBufferSize))
			return
		}

		// No bound session has the empty identity, so nobody is excluded.
		delivered := deps.Chat.Registry.Broadcast([]byte(body.Message), "")

		operator := ""
		if payload := jwt.GetPayloadFromContext(r); payload != nil {
			operator = payload.ID
		}
		logx.Info("Operator broadcast relayed.", "operator", operator, "delivered", delivered, "bytes", len(body.Message))

		resp.RespondSuccess(w, r, BroadcastResponse{Delivered: delivered})
	}
}

// HandleDisconnectSession closes one session by ID, the way a client QUIT would.
func HandleDisconnectSession(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !randx.IsValidSessionID(id) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		session := deps.Chat.Registry.Lookup(id)
		if session == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrSessionNotFound))
			return
		}

		info := session.Info()
		session.Close()

		logx.Info("Operator disconnected session.", "session_id", randx.ShortID(id), "identity", info.Identity)
		resp.RespondSuccess(w, r, info)
	}
}
