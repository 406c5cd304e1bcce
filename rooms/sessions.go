package rooms

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GracePeriod is how long a dropped participant may rejoin before the
// session is forgotten.
const GracePeriod = 60 * time.Second

// Session binds a durable token to a logical participant, independent of
// whichever physical connection currently carries them.
type Session struct {
	Token         string
	RoomID        string
	ParticipantID string
	Name          string
	ConnID        string
	// Deadline is zero while connected; set when the connection drops.
	Deadline time.Time
}

// SessionRegistry maps tokens and live connection ids to logical identity.
// Every inbound message resolves through it so turn-ownership checks stay
// correct across reconnects.
type SessionRegistry struct {
	mu      sync.Mutex
	byToken map[string]*Session
	byConn  map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byToken: make(map[string]*Session),
		byConn:  make(map[string]*Session),
	}
}

// Create issues a token for a freshly joined participant.
func (r *SessionRegistry) Create(connID, roomID, participantID, name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Session{
		Token:         uuid.NewString(),
		RoomID:        roomID,
		ParticipantID: participantID,
		Name:          name,
		ConnID:        connID,
	}
	r.byToken[s.Token] = s
	r.byConn[connID] = s
	return s.Token
}

// Resolve translates a connection id into the logical session, if any.
func (r *SessionRegistry) Resolve(connID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byConn[connID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// MarkDisconnected detaches the physical connection and starts the grace
// clock. Returns the session so the caller can flag the participant offline.
func (r *SessionRegistry) MarkDisconnected(connID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byConn[connID]
	if !ok {
		return Session{}, false
	}
	delete(r.byConn, connID)
	s.ConnID = ""
	s.Deadline = time.Now().Add(GracePeriod)
	return *s, true
}

// Rejoin rebinds a token to a new connection. Valid only inside the grace
// window; it never creates a new participant record.
func (r *SessionRegistry) Rejoin(token, newConnID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byToken[token]
	if !ok {
		return Session{}, ErrSessionInvalid
	}
	if !s.Deadline.IsZero() && time.Now().After(s.Deadline) {
		delete(r.byToken, token)
		return Session{}, ErrSessionInvalid
	}
	if s.ConnID != "" {
		delete(r.byConn, s.ConnID)
	}
	s.ConnID = newConnID
	s.Deadline = time.Time{}
	r.byConn[newConnID] = s
	log.Printf("session %s rebound to conn %s", token, newConnID)
	return *s, nil
}

// Remove forgets a session on explicit leave.
func (r *SessionRegistry) Remove(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byToken[token]; ok {
		if s.ConnID != "" {
			delete(r.byConn, s.ConnID)
		}
		delete(r.byToken, token)
	}
}

// RemoveByParticipant forgets whatever session carries the participant.
func (r *SessionRegistry) RemoveByParticipant(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, s := range r.byToken {
		if s.ParticipantID == participantID {
			if s.ConnID != "" {
				delete(r.byConn, s.ConnID)
			}
			delete(r.byToken, token)
			return
		}
	}
}

// Sweep drops sessions whose grace window elapsed. Returns the expired
// sessions so the caller can evict the participants from their rooms.
func (r *SessionRegistry) Sweep(now time.Time) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []Session
	for token, s := range r.byToken {
		if !s.Deadline.IsZero() && now.After(s.Deadline) {
			expired = append(expired, *s)
			delete(r.byToken, token)
		}
	}
	return expired
}
