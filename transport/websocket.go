// Package transport adapts alternative byte transports to the
// net.Conn stream a session consumes.
//
// The websocket adapter carries one EPC frame per binary websocket
// message on the write side (the frame layer writes each frame with a
// single Write call) and reassembles incoming messages into a plain
// byte stream on the read side, so the frame reader does not care how
// the peer chunked its output.
package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Upgrade converts an incoming HTTP request into a websocket-backed
// net.Conn ready to hand to a session or server.ServeConn.
func Upgrade(w http.ResponseWriter, r *http.Request) (net.Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketConn(ws), nil
}

// DialWebSocket connects to a websocket EPC endpoint, e.g.
// "ws://127.0.0.1:9876/epc".
func DialWebSocket(ctx context.Context, url string) (net.Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return NewWebSocketConn(ws), nil
}

// NewWebSocketConn wraps an established websocket connection as a
// net.Conn byte stream.
func NewWebSocketConn(ws *websocket.Conn) net.Conn {
	return &wsConn{ws: ws}
}

type wsConn struct {
	ws      *websocket.Conn
	reader  io.Reader  // current incoming message, nil between messages
	writeMu sync.Mutex // one websocket message at a time
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if err == io.EOF {
			// Message exhausted; continue with the next one
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame with a short deadline before closing the
// underlying connection, so the peer sees a clean shutdown rather
// than a reset.
func (c *wsConn) Close() error {
	c.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	writeErr := c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
	c.writeMu.Unlock()

	closeErr := c.ws.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
