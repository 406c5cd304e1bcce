package models

import "time"

type RoomStatus string

const (
	RoomWaiting    RoomStatus = "waiting"
	RoomReady      RoomStatus = "ready"
	RoomInProgress RoomStatus = "in_progress"
	RoomCompleted  RoomStatus = "completed"
)

type RoomMode string

const (
	ModePvP      RoomMode = "pvp"
	ModePractice RoomMode = "practice"
)

// MaxParticipants is the hard room capacity. Debates are strictly two-party.
const MaxParticipants = 2

// Participant is one debater in a room. Owned exclusively by its Room and
// mutated only through RoomDirectory operations.
type Participant struct {
	ID        string
	Name      string
	Side      Side
	SpeakLang string
	HearLang  string
	Ready     bool
	Connected bool
	IsBot     bool
	PersonaID string
}

// Room is the live record of one debate. Internal state; transported to
// clients only as a RoomSnapshot.
type Room struct {
	ID             string
	Code           string
	Name           string
	Resolution     string
	Status         RoomStatus
	Mode           RoomMode
	HostID         string
	Participants   map[string]*Participant
	CurrentSpeech  SpeechRole
	CurrentSpeaker string
	CreatedAt      time.Time
}

// ParticipantBySide returns the participant holding side, or nil.
func (r *Room) ParticipantBySide(side Side) *Participant {
	for _, p := range r.Participants {
		if p.Side == side {
			return p
		}
	}
	return nil
}

// Bot returns the synthetic participant if the room has one.
func (r *Room) Bot() *Participant {
	for _, p := range r.Participants {
		if p.IsBot {
			return p
		}
	}
	return nil
}

// ReadyToStart reports whether both sides are assigned and both participants
// flagged ready. Derived, never stored.
func (r *Room) ReadyToStart() bool {
	if len(r.Participants) != MaxParticipants {
		return false
	}
	var aff, neg bool
	for _, p := range r.Participants {
		if !p.Ready {
			return false
		}
		switch p.Side {
		case SideAff:
			aff = true
		case SideNeg:
			neg = true
		}
	}
	return aff && neg
}

// ParticipantSnapshot is the client-visible view of a Participant.
type ParticipantSnapshot struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Side      Side   `json:"side"`
	SpeakLang string `json:"speakingLanguage"`
	HearLang  string `json:"listeningLanguage"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
	IsBot     bool   `json:"isBot"`
	PersonaID string `json:"personaId,omitempty"`
}

// RoomSnapshot is the immutable client-visible view of a Room. Participants
// are a list, not a keyed map, so payload shape is stable on the wire.
type RoomSnapshot struct {
	ID             string                `json:"id"`
	Code           string                `json:"code"`
	Name           string                `json:"name"`
	Resolution     string                `json:"resolution"`
	Status         RoomStatus            `json:"status"`
	Mode           RoomMode              `json:"mode"`
	HostID         string                `json:"hostId"`
	Participants   []ParticipantSnapshot `json:"participants"`
	CurrentSpeech  SpeechRole            `json:"currentSpeech,omitempty"`
	CurrentSpeaker string                `json:"currentSpeaker,omitempty"`
}

// Snapshot serializes the room for transport. The copy is deep enough that
// callers can hold it across lock boundaries.
func (r *Room) Snapshot() RoomSnapshot {
	snap := RoomSnapshot{
		ID:             r.ID,
		Code:           r.Code,
		Name:           r.Name,
		Resolution:     r.Resolution,
		Status:         r.Status,
		Mode:           r.Mode,
		HostID:         r.HostID,
		CurrentSpeech:  r.CurrentSpeech,
		CurrentSpeaker: r.CurrentSpeaker,
		Participants:   make([]ParticipantSnapshot, 0, len(r.Participants)),
	}
	for _, p := range r.Participants {
		snap.Participants = append(snap.Participants, ParticipantSnapshot{
			ID:        p.ID,
			Name:      p.Name,
			Side:      p.Side,
			SpeakLang: p.SpeakLang,
			HearLang:  p.HearLang,
			Ready:     p.Ready,
			Connected: p.Connected,
			IsBot:     p.IsBot,
			PersonaID: p.PersonaID,
		})
	}
	return snap
}
