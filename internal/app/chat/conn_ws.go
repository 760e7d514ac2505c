package chat

import (
	"time"

	"github.com/gorilla/websocket"
)

type wsConn struct {
	conn *websocket.Conn
}

// NewWSConn adapts a WebSocket connection. Each text or binary frame is one chunk;
// frames larger than readBufferSize end the connection.
func NewWSConn(conn *websocket.Conn, readBufferSize int) Conn {
	conn.SetReadLimit(int64(readBufferSize))
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadChunk() ([]byte, error) {
	_, p, err := c.conn.ReadMessage()
	return p, err
}

func (c *wsConn) Write(p []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, p)
}

// Close sends a best-effort close frame before dropping the connection.
func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
