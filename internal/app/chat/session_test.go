package chat

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"relaychat/internal/app/credential"
	"relaychat/internal/app/history"
)

const testReadBufferSize = 2048

type harness struct {
	t     *testing.T
	ctx   context.Context
	deps  *Deps
	store *credential.MemoryStore
	dir   string
}

func newHarness(t *testing.T, replace bool) *harness {
	t.Helper()

	dir := t.TempDir()
	store := credential.NewMemoryStore()
	reg := NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		reg.CloseAll()
	})

	return &harness{
		t:     t,
		ctx:   ctx,
		store: store,
		dir:   dir,
		deps: &Deps{
			Registry:          reg,
			Credentials:       credential.NewService(store, bcrypt.MinCost),
			History:           history.NewFileStore(dir, nil),
			ReplaceDuplicates: replace,
		},
	}
}

type client struct {
	t       *testing.T
	conn    net.Conn
	session *Session
}

// connect does what the Listener does for an accepted connection.
func (h *harness) connect() *client {
	h.t.Helper()

	server, peer := net.Pipe()
	s := NewSession(NewTCPConn(server, testReadBufferSize), h.deps)
	h.deps.Registry.Add(s)
	go s.Run(h.ctx)

	h.t.Cleanup(func() { peer.Close() })
	return &client{t: h.t, conn: peer, session: s}
}

func (h *harness) historyOf(identity string) string {
	h.t.Helper()

	data, err := os.ReadFile(filepath.Join(h.dir, history.Key(identity)))
	if err != nil {
		h.t.Fatalf("read history of %q: %v", identity, err)
	}
	return string(data)
}

func (h *harness) waitForHistory(identity, want string) {
	h.t.Helper()

	path := filepath.Join(h.dir, history.Key(identity))
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil && string(data) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatalf("history of %q never became %q", identity, want)
}

func (c *client) send(msg string) {
	c.t.Helper()

	_ = c.conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
	if _, err := c.conn.Write([]byte(msg)); err != nil {
		c.t.Fatalf("send %q: %v", msg, err)
	}
}

func (c *client) expect(want string) {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, len(want))
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		c.t.Fatalf("waiting for %q: %v", want, err)
	}
	if string(buf) != want {
		c.t.Fatalf("received %q, want %q", buf, want)
	}
}

func (c *client) expectClosed() {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 64)
	n, err := c.conn.Read(buf)
	if !errors.Is(err, io.EOF) {
		c.t.Fatalf("read = %q, %v; want EOF", buf[:n], err)
	}
}

func (c *client) expectSilence() {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 64)
	n, err := c.conn.Read(buf)
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		c.t.Fatalf("read = %q, %v; want nothing", buf[:n], err)
	}
}

func (c *client) login(identity, secret, wantReply string) {
	c.t.Helper()

	c.expect(PromptUsername)
	c.send(identity + "\n")
	c.expect(PromptPassword)
	c.send(secret + "\n")
	c.expect(wantReply)
}

func (c *client) waitDone() {
	c.t.Helper()

	select {
	case <-c.session.Done():
	case <-time.After(3 * time.Second):
		c.t.Fatal("session did not end")
	}
}

func (c *client) quit() {
	c.t.Helper()

	c.send(QuitSentinel + "\r\n")
	c.waitDone()
}

func TestFirstLoginRegisters(t *testing.T) {
	h := newHarness(t, false)

	alice := h.connect()
	alice.login("alice", "secret1", ReplyRegistered)

	if n, _ := h.store.Count(h.ctx); n != 1 {
		t.Errorf("credential store has %d entries, want 1", n)
	}
	if got := alice.session.Identity(); got != "alice" {
		t.Errorf("Identity() = %q, want alice", got)
	}
	if got := alice.session.State(); got != StateRelaying {
		t.Errorf("State() = %v, want relaying", got)
	}
}

func TestReturningLogin(t *testing.T) {
	h := newHarness(t, false)

	first := h.connect()
	first.login("alice", "secret1", ReplyRegistered)
	first.quit()

	again := h.connect()
	again.login("alice", "secret1", ReplyConnected)

	if n, _ := h.store.Count(h.ctx); n != 1 {
		t.Errorf("credential store has %d entries, want 1", n)
	}
}

func TestWrongSecretFailsAndCloses(t *testing.T) {
	h := newHarness(t, false)

	first := h.connect()
	first.login("alice", "secret1", ReplyRegistered)
	first.quit()

	intruder := h.connect()
	intruder.login("alice", "guess", ReplyLoginFail)
	intruder.expectClosed()
	intruder.waitDone()

	if h.deps.Registry.Len() != 0 {
		t.Errorf("registry has %d members after failed login, want 0", h.deps.Registry.Len())
	}
}

func TestEmptyUsernameFails(t *testing.T) {
	h := newHarness(t, false)

	c := h.connect()
	c.login("\r", "secret", ReplyLoginFail)
	c.expectClosed()

	if n, _ := h.store.Count(h.ctx); n != 0 {
		t.Errorf("credential store has %d entries, want 0", n)
	}
}

func TestBroadcastIsVerbatimAndSkipsSender(t *testing.T) {
	h := newHarness(t, false)

	alice := h.connect()
	alice.login("alice", "a", ReplyRegistered)
	bob := h.connect()
	bob.login("bob", "b", ReplyRegistered)
	carol := h.connect()
	carol.login("carol", "c", ReplyRegistered)

	alice.send("hi all\r\n")
	bob.expect("hi all\r\n")
	carol.expect("hi all\r\n")
	alice.expectSilence()
}

func TestUnauthenticatedSessionGetsNoTraffic(t *testing.T) {
	h := newHarness(t, false)

	alice := h.connect()
	alice.login("alice", "a", ReplyRegistered)

	lurker := h.connect()
	lurker.expect(PromptUsername)

	alice.send("secret plans")
	alice.send(QuitSentinel)
	alice.waitDone()

	lurker.expectSilence()
}

func TestHistoryReplayInOrder(t *testing.T) {
	h := newHarness(t, false)

	alice := h.connect()
	alice.login("alice", "secret1", ReplyRegistered)
	alice.send("one\n")
	alice.send("two\r\n")
	alice.send("three")
	alice.quit()

	if got, want := h.historyOf("alice"), "one\ntwo\nthree\n"; got != want {
		t.Fatalf("history = %q, want %q", got, want)
	}

	bob := h.connect()
	bob.login("bob", "b", ReplyRegistered)

	back := h.connect()
	back.login("alice", "secret1", ReplyConnected)
	back.expect("one\ntwo\nthree\n")

	bob.expectSilence()
}

func TestRegistrationSkipsReplay(t *testing.T) {
	h := newHarness(t, false)

	c := h.connect()
	c.login("newcomer", "pw", ReplyRegistered)
	c.expectSilence()
}

func TestQuitIsNotStored(t *testing.T) {
	h := newHarness(t, false)

	alice := h.connect()
	alice.login("alice", "a", ReplyRegistered)
	alice.send("kept")
	alice.quit()
	alice.expectClosed()

	if got := h.historyOf("alice"); strings.Contains(got, QuitSentinel) {
		t.Errorf("history %q contains the quit sentinel", got)
	}
}

func TestDisconnectActsLikeQuit(t *testing.T) {
	h := newHarness(t, false)

	alice := h.connect()
	alice.login("alice", "a", ReplyRegistered)
	alice.conn.Close()
	alice.waitDone()

	if h.deps.Registry.Len() != 0 {
		t.Errorf("registry has %d members after disconnect, want 0", h.deps.Registry.Len())
	}
}

func TestDuplicateLoginAllowed(t *testing.T) {
	h := newHarness(t, false)

	first := h.connect()
	first.login("alice", "a", ReplyRegistered)
	second := h.connect()
	second.login("alice", "a", ReplyConnected)

	bob := h.connect()
	bob.login("bob", "b", ReplyRegistered)
	bob.send("to both")

	first.expect("to both")
	second.expect("to both")
}

func TestDuplicateLoginReplacesOlderSession(t *testing.T) {
	h := newHarness(t, true)

	first := h.connect()
	first.login("alice", "a", ReplyRegistered)
	second := h.connect()
	second.login("alice", "a", ReplyConnected)

	first.expectClosed()
	first.waitDone()

	if h.deps.Registry.Len() != 1 {
		t.Errorf("registry has %d members, want 1", h.deps.Registry.Len())
	}
}

func TestAliceBobScenario(t *testing.T) {
	h := newHarness(t, false)

	alice := h.connect()
	alice.login("alice", "secret1", ReplyRegistered)
	alice.send("hello")
	h.waitForHistory("alice", "hello\n")

	bob := h.connect()
	bob.login("bob", "secret2", ReplyRegistered)
	bob.expectSilence()

	alice.send("hi bob")
	bob.expect("hi bob")

	bob.quit()
	bob.expectClosed()

	if n := h.deps.Registry.Unicast([]byte("after"), "bob"); n != 0 {
		t.Errorf("unicast to bob after QUIT reached %d sessions, want 0", n)
	}

	alice.send("still here")
	alice.quit()

	if got, want := h.historyOf("alice"), "hello\nhi bob\nstill here\n"; got != want {
		t.Errorf("alice history = %q, want %q", got, want)
	}
	if h.deps.Registry.Len() != 0 {
		t.Errorf("registry has %d members, want 0", h.deps.Registry.Len())
	}
}

func TestLongIdentityHistoryReplays(t *testing.T) {
	h := newHarness(t, false)
	identity := strings.Repeat("n", 300)

	first := h.connect()
	first.login(identity, "pw", ReplyRegistered)
	first.send("hello")
	first.quit()

	again := h.connect()
	again.login(identity, "pw", ReplyConnected)
	again.expect("hello\n")
}
