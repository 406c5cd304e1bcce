package rooms

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"crossfire/models"
)

// Directory owns every live room. All mutation goes through its methods so
// two concurrent joins can never both pass the capacity check.
type Directory struct {
	mu      sync.Mutex
	rooms   map[string]*models.Room
	byCode  map[string]string // code -> room id
	idleTTL time.Duration
}

func NewDirectory() *Directory {
	return &Directory{
		rooms:   make(map[string]*models.Room),
		byCode:  make(map[string]string),
		idleTTL: 30 * time.Minute,
	}
}

// Create makes a pvp room with the host as its first participant.
func (d *Directory) Create(hostName, roomName, resolution string) models.RoomSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	host := &models.Participant{
		ID:        uuid.NewString(),
		Name:      hostName,
		Connected: true,
		SpeakLang: "en",
		HearLang:  "en",
	}
	room := d.newRoomLocked(roomName, resolution, models.ModePvP, host)
	log.Printf("room %s created (code %s) by %s", room.ID, room.Code, hostName)
	return room.Snapshot()
}

// CreateBotRoom makes a practice room with the synthetic opponent already
// seated on the opposite side. The room skips `waiting` entirely: with the
// bot pre-populated and always ready, it is born `ready`.
func (d *Directory) CreateBotRoom(hostName, roomName, resolution string, hostSide models.Side, personaID, botName, botLang string) models.RoomSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	if hostSide != models.SideNeg {
		hostSide = models.SideAff
	}
	botSide := models.SideNeg
	if hostSide == models.SideNeg {
		botSide = models.SideAff
	}

	host := &models.Participant{
		ID:        uuid.NewString(),
		Name:      hostName,
		Side:      hostSide,
		Ready:     true,
		Connected: true,
		SpeakLang: "en",
		HearLang:  "en",
	}
	room := d.newRoomLocked(roomName, resolution, models.ModePractice, host)
	bot := &models.Participant{
		ID:        uuid.NewString(),
		Name:      botName,
		Side:      botSide,
		Ready:     true,
		Connected: true,
		IsBot:     true,
		PersonaID: personaID,
		SpeakLang: botLang,
		HearLang:  botLang,
	}
	room.Participants[bot.ID] = bot
	room.Status = models.RoomReady
	log.Printf("practice room %s created, bot persona %s on %s", room.ID, personaID, botSide)
	return room.Snapshot()
}

func (d *Directory) newRoomLocked(name, resolution string, mode models.RoomMode, host *models.Participant) *models.Room {
	code := randomCode()
	for _, taken := d.byCode[code]; taken; _, taken = d.byCode[code] {
		code = randomCode()
	}
	room := &models.Room{
		ID:           uuid.NewString(),
		Code:         code,
		Name:         name,
		Resolution:   resolution,
		Status:       models.RoomWaiting,
		Mode:         mode,
		HostID:       host.ID,
		Participants: map[string]*models.Participant{host.ID: host},
		CreatedAt:    time.Now(),
	}
	d.rooms[room.ID] = room
	d.byCode[code] = room.ID
	return room
}

// AddParticipant seats a newcomer. The whole check-and-insert runs under the
// directory lock so capacity can never be exceeded by a racing second join.
func (d *Directory) AddParticipant(roomID, name string) (models.RoomSnapshot, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[roomID]
	if !ok {
		return models.RoomSnapshot{}, "", ErrRoomNotFound
	}
	if room.Status == models.RoomInProgress || room.Status == models.RoomCompleted {
		return models.RoomSnapshot{}, "", ErrRoomBusy
	}
	if len(room.Participants) >= models.MaxParticipants {
		return models.RoomSnapshot{}, "", ErrRoomFull
	}

	p := &models.Participant{
		ID:        uuid.NewString(),
		Name:      name,
		Connected: true,
		SpeakLang: "en",
		HearLang:  "en",
	}
	room.Participants[p.ID] = p
	return room.Snapshot(), p.ID, nil
}

// ResolveCode returns the room id for a join code.
func (d *Directory) ResolveCode(code string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.byCode[code]
	return id, ok
}

// Get returns a snapshot of the room.
func (d *Directory) Get(roomID string) (models.RoomSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return models.RoomSnapshot{}, ErrRoomNotFound
	}
	return room.Snapshot(), nil
}

// SetSide claims a side for a participant. Fails with the holder's name when
// the other participant got there first.
func (d *Directory) SetSide(roomID, participantID string, side models.Side) (models.RoomSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[roomID]
	if !ok {
		return models.RoomSnapshot{}, ErrRoomNotFound
	}
	p, ok := room.Participants[participantID]
	if !ok {
		return models.RoomSnapshot{}, ErrNotInRoom
	}
	if holder := room.ParticipantBySide(side); holder != nil && holder.ID != participantID {
		return models.RoomSnapshot{}, &SideTakenError{Holder: holder.Name}
	}
	p.Side = side
	d.recomputeStatusLocked(room)
	return room.Snapshot(), nil
}

// SetReady flips a participant's ready flag and re-derives the room status.
func (d *Directory) SetReady(roomID, participantID string, ready bool) (models.RoomSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[roomID]
	if !ok {
		return models.RoomSnapshot{}, ErrRoomNotFound
	}
	p, ok := room.Participants[participantID]
	if !ok {
		return models.RoomSnapshot{}, ErrNotInRoom
	}
	p.Ready = ready
	d.recomputeStatusLocked(room)
	return room.Snapshot(), nil
}

// UpdateParticipant applies mutable profile fields (name, languages).
func (d *Directory) UpdateParticipant(roomID, participantID, name, speakLang, hearLang string) (models.RoomSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[roomID]
	if !ok {
		return models.RoomSnapshot{}, ErrRoomNotFound
	}
	p, ok := room.Participants[participantID]
	if !ok {
		return models.RoomSnapshot{}, ErrNotInRoom
	}
	if name != "" {
		p.Name = name
	}
	if speakLang != "" {
		p.SpeakLang = speakLang
	}
	if hearLang != "" {
		p.HearLang = hearLang
	}
	return room.Snapshot(), nil
}

// recomputeStatusLocked derives waiting<->ready from participant state. Only
// those two statuses are derived; in_progress and completed are explicit.
func (d *Directory) recomputeStatusLocked(room *models.Room) {
	if room.Status != models.RoomWaiting && room.Status != models.RoomReady {
		return
	}
	if room.ReadyToStart() {
		room.Status = models.RoomReady
	} else {
		room.Status = models.RoomWaiting
	}
}

// TransitionStatus is a compare-and-swap on room status. Two simultaneous
// "start debate" requests cannot both pass: the second sees `in_progress`
// and fails the compare.
func (d *Directory) TransitionStatus(roomID string, from, to models.RoomStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if room.Status != from {
		return ErrBadTransition
	}
	room.Status = to
	return nil
}

// SetCurrentSpeech records the live turn on the room.
func (d *Directory) SetCurrentSpeech(roomID string, role models.SpeechRole, speakerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if room, ok := d.rooms[roomID]; ok {
		room.CurrentSpeech = role
		room.CurrentSpeaker = speakerID
	}
}

// SetConnected marks a participant's link state without removing them, used
// for the disconnect grace window.
func (d *Directory) SetConnected(roomID, participantID string, connected bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if room, ok := d.rooms[roomID]; ok {
		if p, ok := room.Participants[participantID]; ok {
			p.Connected = connected
		}
	}
}

// RemoveParticipant takes a participant out of the room. The emptied room is
// destroyed on the spot; cleanup of its timers and sessions is the
// orchestrator's job, signalled by the returned flag.
func (d *Directory) RemoveParticipant(roomID, participantID string) (empty bool, snap models.RoomSnapshot, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[roomID]
	if !ok {
		return false, models.RoomSnapshot{}, ErrRoomNotFound
	}
	if _, ok := room.Participants[participantID]; !ok {
		return false, models.RoomSnapshot{}, ErrNotInRoom
	}
	delete(room.Participants, participantID)

	humansLeft := 0
	for _, p := range room.Participants {
		if !p.IsBot {
			humansLeft++
		}
	}
	if humansLeft == 0 {
		d.destroyLocked(room)
		return true, models.RoomSnapshot{}, nil
	}
	d.recomputeStatusLocked(room)
	return false, room.Snapshot(), nil
}

// Destroy removes a room outright.
func (d *Directory) Destroy(roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if room, ok := d.rooms[roomID]; ok {
		d.destroyLocked(room)
	}
}

func (d *Directory) destroyLocked(room *models.Room) {
	delete(d.rooms, room.ID)
	delete(d.byCode, room.Code)
	log.Printf("room %s destroyed", room.ID)
}

// ReapIdle destroys rooms that never started and sat idle past the TTL.
// Returns the ids so the caller can tear down any attached machinery.
func (d *Directory) ReapIdle(now time.Time) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var reaped []string
	for _, room := range d.rooms {
		if room.Status == models.RoomInProgress {
			continue
		}
		if now.Sub(room.CreatedAt) > d.idleTTL {
			reaped = append(reaped, room.ID)
			d.destroyLocked(room)
		}
	}
	return reaped
}
