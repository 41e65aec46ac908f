package transport

import (
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout   = 10 * time.Second
	maxInboundSize = 64 << 20
)

// WebSocketConn writes queued frames from a dedicated goroutine so the
// router never waits on a slow peer.
type WebSocketConn struct {
	base
	ws  *websocket.Conn
	out *outbox
}

// NewWebSocketConn wraps ws and starts its writer.
func NewWebSocketConn(id string, kind Kind, ws *websocket.Conn) *WebSocketConn {
	c := &WebSocketConn{
		base: base{id: id, kind: kind},
		ws:   ws,
		out:  newOutbox(),
	}
	ws.SetReadLimit(maxInboundSize)
	go c.writeLoop()
	return c
}

func (c *WebSocketConn) Mode() string { return ModeWebSocket }

func (c *WebSocketConn) Enqueue(frame []byte) error {
	return c.out.push(frame)
}

func (c *WebSocketConn) Drain() [][]byte { return nil }

func (c *WebSocketConn) Done() <-chan struct{} { return c.out.done }

func (c *WebSocketConn) Close() {
	if c.out.close() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	}
}

func (c *WebSocketConn) writeLoop() {
	for {
		select {
		case <-c.out.done:
			return
		case <-c.out.notify:
		}
		for _, frame := range c.out.takeAll() {
			if c.out.isClosed() {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				glog.V(1).Infof("%s %s write failed: %v", c.kind, c.id, err)
				c.Close()
				return
			}
		}
	}
}

// ReadLoop delivers inbound text frames to handle until the peer goes away
// or the connection is closed. It closes the connection before returning.
func (c *WebSocketConn) ReadLoop(handle func(frame []byte)) {
	defer c.Close()
	for {
		messageType, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.V(1).Infof("%s %s read failed: %v", c.kind, c.id, err)
			}
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		handle(frame)
	}
}
