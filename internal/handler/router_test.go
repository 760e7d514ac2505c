package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"relaychat/internal/app/chat"
	"relaychat/internal/app/credential"
	"relaychat/internal/app/history"
	"relaychat/internal/configs"
	"relaychat/internal/pkg/auth/jwt"
	"relaychat/internal/pkg/errs"
)

const testSecret = "test-admin-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*httptest.Server, *AppDeps) {
	t.Helper()

	cfg := &configs.AppConfig{
		Environment:    "development",
		ReadBufferSize: 64,
		AdminJWTSecret: testSecret,
	}
	chatDeps := &chat.Deps{
		Registry:    chat.NewRegistry(),
		Credentials: credential.NewService(credential.NewMemoryStore(), bcrypt.MinCost),
		History:     history.NewFileStore(t.TempDir(), nil),
	}

	deps := NewAppDeps(cfg, chatDeps)
	srv := httptest.NewServer(Router(deps))
	t.Cleanup(func() {
		chatDeps.Registry.CloseAll()
		srv.Close()
		deps.Close()
	})
	return srv, deps
}

func operatorToken(t *testing.T) string {
	t.Helper()

	token, err := jwt.GenerateToken(&jwt.Payload{ID: "test", Role: jwt.RoleOperator}, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return token
}

func do(t *testing.T, method, url, token string, body any) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	r, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(r)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res.StatusCode, env
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWS(t *testing.T, srv *httptest.Server) *wsClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) expect(want string) {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("waiting for %q: %v", want, err)
	}
	if string(msg) != want {
		c.t.Fatalf("received %q, want %q", msg, want)
	}
}

func (c *wsClient) send(msg string) {
	c.t.Helper()

	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		c.t.Fatalf("send %q: %v", msg, err)
	}
}

func (c *wsClient) login(identity, secret, wantReply string) {
	c.t.Helper()

	c.expect(chat.PromptUsername)
	c.send(identity)
	c.expect(chat.PromptPassword)
	c.send(secret)
	c.expect(wantReply)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	status, env := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	if status != http.StatusOK || env.Code != 0 {
		t.Fatalf("GET /health = %d code %d", status, env.Code)
	}
}

func TestAPIRequiresOperatorToken(t *testing.T) {
	srv, _ := newTestServer(t)

	status, env := do(t, http.MethodGet, srv.URL+"/api/sessions", "", nil)
	if status != http.StatusUnauthorized || env.Code != errs.ErrUnauthorized {
		t.Errorf("no token: %d code %d, want 401 code %d", status, env.Code, errs.ErrUnauthorized)
	}

	userToken, _ := jwt.GenerateToken(&jwt.Payload{ID: "x", Role: "viewer"}, testSecret, time.Minute)
	if status, _ := do(t, http.MethodGet, srv.URL+"/api/sessions", userToken, nil); status != http.StatusUnauthorized {
		t.Errorf("non-operator token: %d, want 401", status)
	}
}

func TestWebSocketSessionsRelayAndList(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dialWS(t, srv)
	alice.login("alice", "secret1", chat.ReplyRegistered)
	bob := dialWS(t, srv)
	bob.login("bob", "secret2", chat.ReplyRegistered)

	alice.send("hi bob")
	bob.expect("hi bob")

	status, env := do(t, http.MethodGet, srv.URL+"/api/sessions", operatorToken(t), nil)
	if status != http.StatusOK {
		t.Fatalf("GET /api/sessions = %d", status)
	}

	var data SessionsResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if data.Count != 2 || data.Credentials != 2 {
		t.Errorf("sessions = %+v, want 2 sessions and 2 credentials", data)
	}
	for _, s := range data.Sessions {
		if s.State != "relaying" {
			t.Errorf("session %s state = %q, want relaying", s.ID, s.State)
		}
	}
}

func TestBroadcastReachesAuthenticatedSessions(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dialWS(t, srv)
	alice.login("alice", "secret1", chat.ReplyRegistered)

	pending := dialWS(t, srv)
	pending.expect(chat.PromptUsername)

	status, env := do(t, http.MethodPost, srv.URL+"/api/broadcast", operatorToken(t), BroadcastRequest{Message: "maintenance at noon"})
	if status != http.StatusOK {
		t.Fatalf("POST /api/broadcast = %d (%s)", status, env.Message)
	}

	var data BroadcastResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if data.Delivered != 1 {
		t.Errorf("delivered = %d, want 1", data.Delivered)
	}

	alice.expect("maintenance at noon")
}

func TestBroadcastValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	token := operatorToken(t)

	tests := []struct {
		name     string
		message  string
		wantCode int
	}{
		{"empty", "  ", errs.ErrMessageEmpty},
		{"too long", strings.Repeat("x", 65), errs.ErrMessageContentTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, http.MethodPost, srv.URL+"/api/broadcast", token, BroadcastRequest{Message: tt.message})
			if status != http.StatusBadRequest || env.Code != tt.wantCode {
				t.Errorf("got %d code %d, want 400 code %d", status, env.Code, tt.wantCode)
			}
		})
	}
}

func TestDisconnectSession(t *testing.T) {
	srv, deps := newTestServer(t)

	alice := dialWS(t, srv)
	alice.login("alice", "secret1", chat.ReplyRegistered)

	infos := deps.Chat.Registry.Sessions()
	if len(infos) != 1 {
		t.Fatalf("registry has %d sessions, want 1", len(infos))
	}
	token := operatorToken(t)

	if status, env := do(t, http.MethodDelete, srv.URL+"/api/sessions/not-a-uuid", token, nil); status != http.StatusBadRequest || env.Code != errs.ErrInvalidParams {
		t.Errorf("bad id: %d code %d", status, env.Code)
	}
	if status, env := do(t, http.MethodDelete, srv.URL+"/api/sessions/00000000-0000-0000-0000-000000000000", token, nil); status != http.StatusNotFound || env.Code != errs.ErrSessionNotFound {
		t.Errorf("unknown id: %d code %d", status, env.Code)
	}

	status, _ := do(t, http.MethodDelete, srv.URL+"/api/sessions/"+infos[0].ID, token, nil)
	if status != http.StatusOK {
		t.Fatalf("DELETE session = %d", status)
	}

	_ = alice.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := alice.conn.ReadMessage(); err == nil {
		t.Error("disconnected client can still read")
	}
	if n := deps.Chat.Registry.Len(); n != 0 {
		t.Errorf("registry has %d sessions after disconnect, want 0", n)
	}
}
