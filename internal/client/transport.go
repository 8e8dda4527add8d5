// Package client implements the client-facing Object/KV/DB APIs: each
// wires the connection pool, the distribution policy, the batch engine and
// the wire message codec together so a caller sees plain method calls while
// operations are transparently grouped, framed and dispatched.
package client

import (
	"context"
	"net"
	"time"

	"github.com/dreamware/julea/internal/pool"
)

// tcpEndpoint adapts a *net.TCPConn to pool.Endpoint.
type tcpEndpoint struct {
	conn net.Conn
}

func (e *tcpEndpoint) Close() error { return e.conn.Close() }

// TCPFactory dials plain TCP connections; the fabric/RDMA transport path
// is not implemented here (see DESIGN.md).
type TCPFactory struct {
	DialTimeout time.Duration
}

// Dial implements pool.EndpointFactory.
func (f *TCPFactory) Dial(ctx context.Context, address string) (pool.Endpoint, error) {
	d := net.Dialer{Timeout: f.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return &tcpEndpoint{conn: conn}, nil
}

// Conn extracts the underlying net.Conn from a pool.Endpoint obtained via
// TCPFactory, for use by the message codec.
func Conn(ep pool.Endpoint) net.Conn {
	return ep.(*tcpEndpoint).conn
}
