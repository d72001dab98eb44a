// Package client implements the dialing side of an EPC peer. A Client
// owns one session over one connection; calls multiplex over it via
// the session's correlation table, and the client may publish its own
// functions for the server to call back.
package client

import (
	"context"
	"io"
	"net"
	"sync"

	"go-epc/registry"
	"go-epc/session"
	"go-epc/sexp"
)

// Client wraps a session whose receive loop runs in a background
// goroutine.
type Client struct {
	sess  *session.Session
	serve chan error

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to an EPC peer and starts the session.
func Dial(network, address string, opts ...session.Option) (*Client, error) {
	return DialContext(context.Background(), network, address, opts...)
}

// DialContext is Dial honoring a context for the connection attempt.
func DialContext(ctx context.Context, network, address string, opts ...session.Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, opts...), nil
}

// NewClient runs a client over an established stream: a dialed TCP
// connection, a websocket adapter, or a pipe. Takes ownership of conn.
func NewClient(conn io.ReadWriteCloser, opts ...session.Option) *Client {
	c := &Client{
		sess:  session.New(conn, nil, opts...),
		serve: make(chan error, 1),
	}
	go func() {
		c.serve <- c.sess.Serve()
	}()
	return c
}

// Session exposes the underlying session.
func (c *Client) Session() *session.Session { return c.sess }

// Registry returns the client's own registry: functions the remote
// peer may call in the server→client direction.
func (c *Client) Registry() *registry.Registry { return c.sess.Registry() }

// Register publishes a handler for the peer to call.
func (c *Client) Register(name string, h registry.Handler, doc string) {
	c.sess.Registry().Register(name, h, doc)
}

// RegisterFunc publishes an ordinary Go function via the reflection
// adapter.
func (c *Client) RegisterFunc(name string, fn any, doc string) error {
	return c.sess.Registry().RegisterFunc(name, fn, doc)
}

// Call invokes the peer's method asynchronously.
func (c *Client) Call(method string, args sexp.List) (*session.Call, error) {
	return c.sess.Call(method, args)
}

// CallWait invokes the peer's method and blocks for the result.
func (c *Client) CallWait(ctx context.Context, method string, args sexp.List) (sexp.Value, error) {
	return c.sess.CallWait(ctx, method, args)
}

// Methods asks the peer for its registered functions.
func (c *Client) Methods() (*session.Call, error) {
	return c.sess.Methods()
}

// MethodsWait is Methods followed by Wait.
func (c *Client) MethodsWait(ctx context.Context) (sexp.Value, error) {
	return c.sess.MethodsWait(ctx)
}

// Closed reports whether the session has ended.
func (c *Client) Closed() bool { return c.sess.Closed() }

// Close tears down the session and waits for the receive loop to
// return, reporting its error if the loop failed. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.sess.Close()
		if serveErr := <-c.serve; serveErr != nil {
			c.closeErr = serveErr
		}
	})
	return c.closeErr
}
