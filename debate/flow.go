package debate

import (
	"sync"

	"crossfire/models"
)

// Flow is the per-room ledger of transcripts, extracted arguments, and the
// speech version that fences stale async work.
//
// Every async stage downstream of transcription captures Version at the
// moment it starts and calls IsCurrent immediately before its externally
// visible effect. The version moves exactly once per completed speech, so a
// translation that resolves after the turn ended fails the compare and is
// dropped instead of speaking into the wrong turn.
type Flow struct {
	mu    sync.Mutex
	rooms map[string]*flowEntry
}

type flowEntry struct {
	transcripts map[models.SpeechRole]string
	arguments   []models.Argument
	version     int
}

func NewFlow() *Flow {
	return &Flow{rooms: make(map[string]*flowEntry)}
}

func (f *Flow) entryLocked(roomID string) *flowEntry {
	e, ok := f.rooms[roomID]
	if !ok {
		e = &flowEntry{transcripts: make(map[models.SpeechRole]string)}
		f.rooms[roomID] = e
	}
	return e
}

// AddTranscript appends text to a speech's accumulated transcript.
func (f *Flow) AddTranscript(roomID string, role models.SpeechRole, text string) {
	if text == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.entryLocked(roomID)
	if existing := e.transcripts[role]; existing != "" {
		e.transcripts[role] = existing + " " + text
	} else {
		e.transcripts[role] = text
	}
}

// SetTranscript replaces a speech's transcript wholesale. Bot speeches are
// generated in one piece, not accumulated.
func (f *Flow) SetTranscript(roomID string, role models.SpeechRole, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entryLocked(roomID).transcripts[role] = text
}

// Transcript returns a speech's accumulated text.
func (f *Flow) Transcript(roomID string, role models.SpeechRole) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.rooms[roomID]; ok {
		return e.transcripts[role]
	}
	return ""
}

// AddArguments appends extracted arguments to the room's flow.
func (f *Flow) AddArguments(roomID string, args []models.Argument) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.entryLocked(roomID)
	e.arguments = append(e.arguments, args...)
}

// Arguments returns a copy of the room's argument list.
func (f *Flow) Arguments(roomID string) []models.Argument {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]models.Argument, len(e.arguments))
	copy(out, e.arguments)
	return out
}

// ArgumentsBySide returns a copy of the room's arguments for one side.
func (f *Flow) ArgumentsBySide(roomID string, side models.Side) []models.Argument {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.rooms[roomID]
	if !ok {
		return nil
	}
	var out []models.Argument
	for _, a := range e.arguments {
		if a.Side == side {
			out = append(out, a)
		}
	}
	return out
}

// Version returns the room's current speech version.
func (f *Flow) Version(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.rooms[roomID]; ok {
		return e.version
	}
	return 0
}

// IncrementSpeechVersion bumps the epoch. Called exactly once per completed
// speech, before any completion side-effects are kicked off.
func (f *Flow) IncrementSpeechVersion(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.entryLocked(roomID)
	e.version++
	return e.version
}

// IsCurrent reports whether a captured version still names the live epoch.
func (f *Flow) IsCurrent(roomID string, version int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.rooms[roomID]; ok {
		return e.version == version
	}
	return false
}

// Snapshot copies the room's whole flow for the verdict stage and archive.
func (f *Flow) Snapshot(roomID string) models.FlowSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := models.FlowSnapshot{Transcripts: make(map[models.SpeechRole]string)}
	e, ok := f.rooms[roomID]
	if !ok {
		return snap
	}
	for role, text := range e.transcripts {
		snap.Transcripts[role] = text
	}
	snap.Arguments = make([]models.Argument, len(e.arguments))
	copy(snap.Arguments, e.arguments)
	return snap
}

// Drop forgets a room's flow when the room dies.
func (f *Flow) Drop(roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, roomID)
}
