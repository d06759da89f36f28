// Package ws implements the connection protocol: the per-connection state
// machine that authenticates a duplex connection, translates inbound
// frames into hub operations, and tears down cleanly on disconnect. The
// duplex transport is github.com/gorilla/websocket.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sessionhub/internal/domain"
	"sessionhub/internal/wire"
)

const (
	// Transport keep-alive: ping every 20s, drop the peer after 20s
	// without a pong.
	pingInterval = 20 * time.Second
	pongWait     = 20 * time.Second
	writeWait    = 10 * time.Second
)

// Conn wraps a gorilla websocket connection as the hub.Peer this service's
// session hub fans broadcasts out to. gorilla/websocket forbids concurrent
// writers on one connection, so every send goes through writeMu.
type Conn struct {
	ws     *websocket.Conn
	userID domain.UserID

	writeMu sync.Mutex
}

// NewConn wraps an accepted websocket connection. userID is set once
// authentication succeeds via SetUserID; until then it is empty.
func NewConn(wsConn *websocket.Conn) *Conn {
	c := &Conn{ws: wsConn}
	wsConn.SetReadLimit(1 << 16)
	_ = wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return c
}

// SetUserID records the authenticated identity so Send recipients (and the
// hub's Peer.UserID contract) can identify this connection.
func (c *Conn) SetUserID(id domain.UserID) { c.userID = id }

// UserID satisfies hub.Peer.
func (c *Conn) UserID() domain.UserID { return c.userID }

// Send serializes env and writes it as a single text frame.
func (c *Conn) Send(env wire.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// ReadEnvelope blocks for the next inbound text frame and decodes its
// envelope. Malformed frames are reported to the caller, which treats them
// as the "protocol errors are ignored silently" case per §7.
func (c *Conn) ReadEnvelope() (wire.Envelope, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return wire.Envelope{}, err
	}
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return wire.Envelope{}, err
	}
	return env, nil
}

// sendPing writes a control ping frame, used by the keep-alive loop.
func (c *Conn) sendPing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.ws.Close() }
