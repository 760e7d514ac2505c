/*
Package chat contains the relay core: the connection registry, per-connection sessions with
their login state machine and relay loop, and the TCP listener that admits them.

This file holds the wire protocol literals and the transport abstraction shared by the
TCP and WebSocket front ends.
*/
package chat

import (
	"strings"

	"relaychat/internal/pkg/errs"
)

// Wire protocol literals, sent and compared byte for byte.
const (
	PromptUsername  = "ENTER USERNAME : "
	PromptPassword  = "ENTER PASSWORD : "
	ReplyRegistered = "Registration Successful"
	ReplyConnected  = "Connection Successful"
	ReplyLoginFail  = errs.LoginFailedReply

	// QuitSentinel ends the sender's session. It is never appended to history.
	QuitSentinel = "QUIT"
)

// Conn is one client transport. ReadChunk returns the bytes of a single read,
// bounded by the transport's buffer size; there is no further framing.
type Conn interface {
	ReadChunk() ([]byte, error)
	Write(p []byte) error
	Close() error
	RemoteAddr() string
}

// trimLineEnding drops the trailing CR/LF that line-oriented clients (telnet, netcat) append.
func trimLineEnding(s string) string {
	return strings.TrimRight(s, "\r\n")
}
