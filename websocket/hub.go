// Package websocket is the signaling layer: it owns physical connections,
// keepalives, and message fan-out. Logical identity (which participant a
// connection speaks for) lives in the session registry, not here.
package websocket

import (
	"log"
	"sync"

	"crossfire/models"
)

// Hub indexes live clients by connection, participant, and room, and fans
// outbound envelopes to them. It implements the Broadcaster/Sender
// interfaces the debate and audio packages declare.
type Hub struct {
	mu            sync.Mutex
	clients       map[*Client]bool
	byParticipant map[string]*Client
	byRoom        map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		byParticipant: make(map[string]*Client),
		byRoom:        make(map[string]map[*Client]bool),
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

// bind attaches a client to its logical identity once the join or rejoin
// resolves. A client is unbound until then and receives only direct replies.
func (h *Hub) bind(c *Client, roomID, participantID string) {
	h.mu.Lock()
	c.roomID = roomID
	c.participantID = participantID
	h.byParticipant[participantID] = c
	if h.byRoom[roomID] == nil {
		h.byRoom[roomID] = make(map[*Client]bool)
	}
	h.byRoom[roomID][c] = true
	h.mu.Unlock()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	if c.participantID != "" && h.byParticipant[c.participantID] == c {
		delete(h.byParticipant, c.participantID)
	}
	if c.roomID != "" {
		if room := h.byRoom[c.roomID]; room != nil {
			delete(room, c)
			if len(room) == 0 {
				delete(h.byRoom, c.roomID)
			}
		}
	}
	h.mu.Unlock()
	c.closeSend()
}

func (h *Hub) roomClients(roomID string) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Client, 0, len(h.byRoom[roomID]))
	for c := range h.byRoom[roomID] {
		out = append(out, c)
	}
	return out
}

// ToRoom sends to every participant in the room.
func (h *Hub) ToRoom(roomID string, msg models.WSMessage) {
	for _, c := range h.roomClients(roomID) {
		c.enqueue(msg)
	}
}

// ToRoomExcept sends to everyone in the room but the sender.
func (h *Hub) ToRoomExcept(roomID, exceptParticipantID string, msg models.WSMessage) {
	for _, c := range h.roomClients(roomID) {
		if c.participantID != exceptParticipantID {
			c.enqueue(msg)
		}
	}
}

// ToParticipant sends to one participant's current connection, wherever
// that lands after any reconnects. Bots have no connection; that send is a
// silent no-op.
func (h *Hub) ToParticipant(participantID string, msg models.WSMessage) {
	h.mu.Lock()
	c, ok := h.byParticipant[participantID]
	h.mu.Unlock()
	if ok {
		c.enqueue(msg)
	}
}

// enqueue hands msg to the write pump. Messages for an already removed
// client are dropped.
func (c *Client) enqueue(msg models.WSMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		// Slow consumer; drop rather than stall the whole room.
		log.Printf("ws: send buffer full for conn %s, dropping %s", c.connID, msg.Type)
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.sendMu.Unlock()
}
