package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"uwhoisd/internal/metrics"
)

// ServerHandler wraps logic for handling incoming client connections.
type ServerHandler interface {
	// Handle describes the routine to run when the server establishes a successful connection
	// with a client. The passed conn is a net.Conn-implementing TCPConn.
	Handle(ctx context.Context, conn net.Conn) error

	// ConsumeError is a callback invoked when the server fails to establish a connection with a
	// client, or when the handler returns an error.
	ConsumeError(ctx context.Context, err error)
}

const (
	// drainTimeout bounds how long a finished connection waits for the client to close its side.
	drainTimeout = time.Second
	// drainLimit bounds the unread client input discarded from a finished connection.
	drainLimit = 64 << 10
	// maxAcceptDelay caps the backoff between consecutive failed accepts.
	maxAcceptDelay = time.Second
)

// TCPServer describes a server that listens on a TCP address.
type TCPServer struct {
	addr   string
	cxHook metrics.ConnectionLifecycleHook
	opts   TCPServerOpts
}

// TCPServerOpts formalizes TCP server configuration options.
type TCPServerOpts struct {
	// ReadTimeout is the maximum amount of time the server will wait to read from a client
	// after it has established a connection with the server, after which the server will
	// consider the read to have failed.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum amount of time the server is allowed to take to write to a
	// client, after which the server will consider the write to have failed.
	WriteTimeout time.Duration
}

// NewTCPServer creates a TCP server listening on the specified address.
func NewTCPServer(addr string, cxHook metrics.ConnectionLifecycleHook, opts TCPServerOpts) *TCPServer {
	return &TCPServer{addr, cxHook, opts}
}

// ListenAndServe starts listening on the TCP address with which the server was configured and
// serves connections using the specified handler until ctx is done. It returns an error if it
// fails to bind to the initialized address.
func (s *TCPServer) ListenAndServe(ctx context.Context, handler ServerHandler) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: failed to listen on TCP socket: err=%v", err)
	}

	return s.Serve(ctx, ln, handler)
}

// Serve accepts connections on ln, handling each on its own goroutine, until ctx is done. The
// listener is closed on return, after all in-flight connections have been handled.
func (s *TCPServer) Serve(ctx context.Context, ln net.Listener, handler ServerHandler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	var acceptDelay time.Duration

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			// Back off exponentially so that persistent failures, e.g. file descriptor
			// exhaustion, do not spin the loop.
			if acceptDelay == 0 {
				acceptDelay = 5 * time.Millisecond
			} else if acceptDelay *= 2; acceptDelay > maxAcceptDelay {
				acceptDelay = maxAcceptDelay
			}

			s.cxHook.EmitConnectionError()
			handler.ConsumeError(
				ctx,
				fmt.Errorf("server: error accepting connection: retry_in=%v err=%v", acceptDelay, err),
			)

			select {
			case <-time.After(acceptDelay):
			case <-ctx.Done():
				return nil
			}

			continue
		}

		acceptDelay = 0

		tcpConn := NewTCPConn(conn, s.opts.ReadTimeout, s.opts.WriteTimeout)
		s.cxHook.EmitConnectionOpen(0, tcpConn.RemoteAddr())

		wg.Add(1)

		go func() {
			defer func() {
				s.cxHook.EmitConnectionClose(tcpConn.RemoteAddr())
				tcpConn.Shutdown(drainTimeout, drainLimit)
				tcpConn.Close()
				wg.Done()
			}()

			if err := handler.Handle(ctx, tcpConn); err != nil {
				handler.ConsumeError(ctx, err)
			}
		}()
	}
}
