package chat

import (
	"net"
	"time"
)

// writeWait bounds a single write to a client.
const writeWait = 10 * time.Second

type tcpConn struct {
	conn net.Conn
	buf  []byte
}

// NewTCPConn adapts a net.Conn; each ReadChunk reads at most readBufferSize bytes.
func NewTCPConn(conn net.Conn, readBufferSize int) Conn {
	return &tcpConn{conn: conn, buf: make([]byte, readBufferSize)}
}

func (c *tcpConn) ReadChunk() ([]byte, error) {
	for {
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, c.buf[:n])
			return chunk, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (c *tcpConn) Write(p []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	_, err := c.conn.Write(p)
	return err
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
