package websocket

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"crossfire/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Client is one physical websocket connection. roomID and participantID are
// empty until a join or rejoin binds the connection to a logical identity.
type Client struct {
	connID        string
	roomID        string
	participantID string
	conn          *websocket.Conn

	// sendMu guards closed and the close of send. A broadcast snapshots the
	// room's clients outside the hub lock, so it can race the disconnect
	// path; the flag keeps late enqueues off a closed channel.
	sendMu sync.Mutex
	closed bool
	send   chan models.WSMessage
}

// readPump reads envelopes off the wire and hands them to the dispatch
// server. It owns the read side: deadlines, pong handling, teardown.
func (c *Client) readPump(s *Server) {
	defer func() {
		s.handleDisconnect(c)
		s.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		var msg models.WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: read error on %s: %v", c.connID, err)
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.dispatch(c, msg)
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("ws: write error on %s: %v", c.connID, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
