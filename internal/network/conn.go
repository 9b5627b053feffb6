package network

import (
	"io"
	"net"
	"time"
)

// TCPConn is an abstraction over a net.Conn that enforces read and write timeouts. The read
// timeout bounds the total time spent reading, measured from the first read, so a client cannot
// hold a connection open by trickling bytes. Each write gets its own deadline.
type TCPConn struct {
	readTimeout  time.Duration
	writeTimeout time.Duration
	readDeadline time.Time

	net.Conn
}

// NewTCPConn creates a TCPConn from a backing net.Conn.
func NewTCPConn(conn net.Conn, readTimeout time.Duration, writeTimeout time.Duration) *TCPConn {
	return &TCPConn{
		Conn:         conn,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// Read sets a read deadline, if this is the first read, followed by reading from the backing
// connection.
func (c *TCPConn) Read(buf []byte) (n int, err error) {
	if c.readTimeout > 0 && c.readDeadline.IsZero() {
		c.readDeadline = time.Now().Add(c.readTimeout)

		if err := c.SetReadDeadline(c.readDeadline); err != nil {
			return 0, err
		}
	}

	return c.Conn.Read(buf)
}

// Write sets a write deadline followed by writing to the backing connection.
func (c *TCPConn) Write(buf []byte) (n int, err error) {
	if c.writeTimeout > 0 {
		if err := c.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}

	return c.Conn.Write(buf)
}

// Shutdown half-closes the connection and then discards up to limit bytes of unread client input
// until the client closes its side or timeout elapses. Closing a socket with unread input makes the
// kernel reset the connection, which can destroy a response the client has not read yet.
func (c *TCPConn) Shutdown(timeout time.Duration, limit int64) error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return err
		}
	}

	if err := c.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}

	_, err := io.Copy(io.Discard, io.LimitReader(c.Conn, limit))

	return err
}
