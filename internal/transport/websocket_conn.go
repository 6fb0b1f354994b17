// Package transport adapts socket-based carriers into the plain
// io.ReadWriteCloser a yamux session needs, so the orchestrator's UI event
// stream can be multiplexed over a single front-end connection instead of
// requiring one socket per logical channel.
package transport

import (
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConn wraps a gorilla websocket connection as a net.Conn so it
// can carry a yamux session: binary messages become the byte stream, and
// read/write deadlines map onto the websocket's own.
type WebSocketConn struct {
	conn *websocket.Conn
	r    io.Reader
}

func NewWebSocketConn(conn *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{conn: conn}
}

func (w *WebSocketConn) Read(p []byte) (int, error) {
	for {
		if w.r == nil {
			_, r, err := w.conn.NextReader()
			if err != nil {
				return 0, err
			}
			w.r = r
		}
		n, err := w.r.Read(p)
		if err == io.EOF {
			w.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (w *WebSocketConn) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConn) Close() error { return w.conn.Close() }

func (w *WebSocketConn) LocalAddr() net.Addr  { return w.conn.LocalAddr() }
func (w *WebSocketConn) RemoteAddr() net.Addr { return w.conn.RemoteAddr() }

func (w *WebSocketConn) SetDeadline(t time.Time) error {
	if err := w.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return w.conn.SetWriteDeadline(t)
}

func (w *WebSocketConn) SetReadDeadline(t time.Time) error  { return w.conn.SetReadDeadline(t) }
func (w *WebSocketConn) SetWriteDeadline(t time.Time) error { return w.conn.SetWriteDeadline(t) }
