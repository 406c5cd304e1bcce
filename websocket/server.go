package websocket

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"crossfire/ai"
	"crossfire/audio"
	"crossfire/bot"
	"crossfire/debate"
	"crossfire/models"
	"crossfire/rooms"
)

// Server dispatches inbound envelopes to the domain layers. Every handler
// first resolves the physical connection to its logical participant through
// the session registry, so ownership checks survive reconnects.
type Server struct {
	hub      *Hub
	dir      *rooms.Directory
	sessions *rooms.SessionRegistry
	orch     *debate.Orchestrator
	pipeline *audio.Pipeline
	seq      *audio.Sequencer
	stt      ai.Transcriber
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, dir *rooms.Directory, sessions *rooms.SessionRegistry, orch *debate.Orchestrator, pipeline *audio.Pipeline, seq *audio.Sequencer, stt ai.Transcriber) *Server {
	return &Server{
		hub:      hub,
		dir:      dir,
		sessions: sessions,
		orch:     orch,
		pipeline: pipeline,
		seq:      seq,
		stt:      stt,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Hub exposes the hub for the composition root.
func (s *Server) Hub() *Hub { return s.hub }

// ServeWs upgrades an HTTP request and starts the connection's pumps.
func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("ws: upgrade error:", err)
		return
	}
	client := &Client{
		connID: uuid.NewString(),
		conn:   conn,
		send:   make(chan models.WSMessage, sendBuffer),
	}
	s.hub.add(client)
	go client.writePump()
	go client.readPump(s)
}

// Inbound payload shapes.
type createRoomPayload struct {
	Name       string `json:"name"`
	RoomName   string `json:"roomName"`
	Resolution string `json:"resolution"`
}

type createBotRoomPayload struct {
	Name       string      `json:"name"`
	RoomName   string      `json:"roomName"`
	Resolution string      `json:"resolution"`
	Side       models.Side `json:"side"`
	PersonaID  string      `json:"personaId"`
	Language   string      `json:"language"`
}

type joinRoomPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type rejoinPayload struct {
	SessionToken string `json:"sessionToken"`
}

type readyPayload struct {
	Ready bool `json:"ready"`
}

type participantUpdatePayload struct {
	Name      string      `json:"name"`
	Side      models.Side `json:"side"`
	SpeakLang string      `json:"speakingLanguage"`
	HearLang  string      `json:"listeningLanguage"`
}

type prepPayload struct {
	Side models.Side `json:"side"`
}

type audioChunkPayload struct {
	Audio string `json:"audio"` // base64
}

type voiceSelectPayload struct {
	VoiceID string `json:"voiceId"`
}

type joinedPayload struct {
	Room          models.RoomSnapshot `json:"room"`
	ParticipantID string              `json:"participantId"`
	SessionToken  string              `json:"sessionToken"`
}

func (s *Server) dispatch(c *Client, msg models.WSMessage) {
	switch msg.Type {
	case models.MsgPing:
		c.enqueue(models.WSMessage{Type: models.MsgPong})
	case models.MsgRoomCreate:
		s.handleCreate(c, msg.Payload)
	case models.MsgBotRoomCreate:
		s.handleCreateBotRoom(c, msg.Payload)
	case models.MsgRoomJoin:
		s.handleJoin(c, msg.Payload)
	case models.MsgRoomRejoin:
		s.handleRejoin(c, msg.Payload)
	case models.MsgRoomLeave:
		s.handleLeave(c)
	case models.MsgRoomReady:
		s.handleReady(c, msg.Payload)
	case models.MsgParticipantUpdate:
		s.handleParticipantUpdate(c, msg.Payload)
	case models.MsgRoomStart:
		s.handleStart(c)
	case models.MsgSignal:
		s.handleSignal(c, msg)
	case models.MsgTimerPause:
		s.withSession(c, func(sess rooms.Session) { s.orch.Pause(sess.RoomID) })
	case models.MsgTimerResume:
		s.withSession(c, func(sess rooms.Session) { s.orch.Resume(sess.RoomID) })
	case models.MsgSpeechEnd:
		s.handleSpeechEnd(c, false)
	case models.MsgBotSkip:
		s.handleSpeechEnd(c, true)
	case models.MsgPrepStart:
		s.handlePrepStart(c, msg.Payload)
	case models.MsgPrepEnd:
		s.withSession(c, func(sess rooms.Session) { s.orch.EndPrep(sess.RoomID) })
	case models.MsgAudioStart:
		s.handleAudioStart(c)
	case models.MsgAudioChunk:
		s.handleAudioChunk(c, msg.Payload)
	case models.MsgAudioStop:
		s.handleAudioStop(c)
	case models.MsgVoiceList:
		c.enqueue(models.Outbound(models.MsgVoices, audio.Voices()))
	case models.MsgVoiceSelect:
		s.handleVoiceSelect(c, msg.Payload)
	default:
		s.sendError(c, "unknown message type: "+msg.Type)
	}
}

func (s *Server) sendError(c *Client, text string) {
	c.enqueue(models.Outbound(models.MsgError, map[string]string{"message": text}))
}

// withSession runs fn with the connection's logical session, or rejects the
// message when the connection never joined a room.
func (s *Server) withSession(c *Client, fn func(sess rooms.Session)) {
	sess, ok := s.sessions.Resolve(c.connID)
	if !ok {
		s.sendError(c, "not in a room")
		return
	}
	fn(sess)
}

func (s *Server) handleCreate(c *Client, raw json.RawMessage) {
	var p createRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Name == "" {
		s.sendError(c, "invalid room:create payload")
		return
	}
	snap := s.dir.Create(p.Name, p.RoomName, p.Resolution)
	s.finishJoin(c, snap, snap.HostID, p.Name)
}

func (s *Server) handleCreateBotRoom(c *Client, raw json.RawMessage) {
	var p createBotRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Name == "" {
		s.sendError(c, "invalid bot:room:create payload")
		return
	}
	if p.Language == "" {
		p.Language = "en"
	}
	persona := bot.PersonaByID(p.PersonaID)
	snap := s.dir.CreateBotRoom(p.Name, p.RoomName, p.Resolution, p.Side, persona.ID, persona.Name, p.Language)
	s.finishJoin(c, snap, snap.HostID, p.Name)
}

func (s *Server) handleJoin(c *Client, raw json.RawMessage) {
	var p joinRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Code == "" || p.Name == "" {
		s.sendError(c, "invalid room:join payload")
		return
	}
	roomID, ok := s.dir.ResolveCode(p.Code)
	if !ok {
		s.sendError(c, rooms.ErrRoomNotFound.Error())
		return
	}
	snap, participantID, err := s.dir.AddParticipant(roomID, p.Name)
	if err != nil {
		s.sendError(c, err.Error())
		return
	}
	s.finishJoin(c, snap, participantID, p.Name)
	s.hub.ToRoomExcept(snap.ID, participantID, models.Outbound(models.MsgRoomState, snap))
}

func (s *Server) finishJoin(c *Client, snap models.RoomSnapshot, participantID, name string) {
	token := s.sessions.Create(c.connID, snap.ID, participantID, name)
	s.hub.bind(c, snap.ID, participantID)
	c.enqueue(models.Outbound(models.MsgRoomJoined, joinedPayload{
		Room:          snap,
		ParticipantID: participantID,
		SessionToken:  token,
	}))
}

func (s *Server) handleRejoin(c *Client, raw json.RawMessage) {
	var p rejoinPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.SessionToken == "" {
		s.sendError(c, "invalid room:rejoin payload")
		return
	}
	sess, err := s.sessions.Rejoin(p.SessionToken, c.connID)
	if err != nil {
		s.sendError(c, err.Error())
		return
	}
	snap, err := s.dir.Get(sess.RoomID)
	if err != nil {
		// Room died during the grace window.
		s.sessions.Remove(p.SessionToken)
		s.sendError(c, rooms.ErrSessionInvalid.Error())
		return
	}
	s.dir.SetConnected(sess.RoomID, sess.ParticipantID, true)
	s.hub.bind(c, sess.RoomID, sess.ParticipantID)

	snap, _ = s.dir.Get(sess.RoomID)
	c.enqueue(models.Outbound(models.MsgRoomRejoined, joinedPayload{
		Room:          snap,
		ParticipantID: sess.ParticipantID,
		SessionToken:  sess.Token,
	}))
	if state, ok := s.orch.TimerState(sess.RoomID); ok {
		c.enqueue(models.Outbound(models.MsgTimerUpdate, state))
	}
	s.hub.ToRoomExcept(sess.RoomID, sess.ParticipantID, models.Outbound(models.MsgRoomState, snap))
}

func (s *Server) handleLeave(c *Client) {
	s.withSession(c, func(sess rooms.Session) {
		s.sessions.Remove(sess.Token)
		s.stt.EndSession(sess.ParticipantID, false)
		empty, snap, err := s.dir.RemoveParticipant(sess.RoomID, sess.ParticipantID)
		if err != nil {
			return
		}
		if empty {
			s.orch.CleanupRoom(sess.RoomID)
			return
		}
		s.hub.ToRoom(sess.RoomID, models.Outbound(models.MsgRoomState, snap))
	})
}

func (s *Server) handleReady(c *Client, raw json.RawMessage) {
	var p readyPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.sendError(c, "invalid room:ready payload")
		return
	}
	s.withSession(c, func(sess rooms.Session) {
		snap, err := s.dir.SetReady(sess.RoomID, sess.ParticipantID, p.Ready)
		if err != nil {
			s.sendError(c, err.Error())
			return
		}
		s.hub.ToRoom(sess.RoomID, models.Outbound(models.MsgRoomState, snap))
	})
}

func (s *Server) handleParticipantUpdate(c *Client, raw json.RawMessage) {
	var p participantUpdatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.sendError(c, "invalid participant:update payload")
		return
	}
	s.withSession(c, func(sess rooms.Session) {
		if p.Side != models.SideUnassigned {
			if _, err := s.dir.SetSide(sess.RoomID, sess.ParticipantID, p.Side); err != nil {
				s.sendError(c, err.Error())
				return
			}
		}
		snap, err := s.dir.UpdateParticipant(sess.RoomID, sess.ParticipantID, p.Name, p.SpeakLang, p.HearLang)
		if err != nil {
			s.sendError(c, err.Error())
			return
		}
		s.hub.ToRoom(sess.RoomID, models.Outbound(models.MsgRoomState, snap))
	})
}

func (s *Server) handleStart(c *Client) {
	s.withSession(c, func(sess rooms.Session) {
		if err := s.orch.StartDebate(sess.RoomID); err != nil {
			s.sendError(c, err.Error())
		}
	})
}

// handleSignal relays a WebRTC signaling payload to the other participant
// verbatim. The server never inspects it.
func (s *Server) handleSignal(c *Client, msg models.WSMessage) {
	s.withSession(c, func(sess rooms.Session) {
		s.orch.RecordActivity(sess.RoomID)
		s.hub.ToRoomExcept(sess.RoomID, sess.ParticipantID, msg)
	})
}

func (s *Server) handleSpeechEnd(c *Client, skippingBot bool) {
	s.withSession(c, func(sess rooms.Session) {
		if err := s.orch.EndSpeech(sess.RoomID, sess.ParticipantID, skippingBot); err != nil {
			s.sendError(c, "cannot end speech: "+err.Error())
		}
	})
}

func (s *Server) handlePrepStart(c *Client, raw json.RawMessage) {
	var p prepPayload
	if err := json.Unmarshal(raw, &p); err != nil || (p.Side != models.SideAff && p.Side != models.SideNeg) {
		s.sendError(c, "invalid prep:start payload")
		return
	}
	s.withSession(c, func(sess rooms.Session) {
		if !s.orch.StartPrep(sess.RoomID, p.Side) {
			s.sendError(c, "prep unavailable")
		}
	})
}

// handleAudioStart opens a transcription session for the current speaker.
// The room, role, listener, and speech version are captured here so
// late-arriving results stay attributed to the speech they belong to, and a
// tail flushed after the turn ends cannot synthesize into the next one.
func (s *Server) handleAudioStart(c *Client) {
	s.withSession(c, func(sess rooms.Session) {
		snap, err := s.dir.Get(sess.RoomID)
		if err != nil {
			s.sendError(c, err.Error())
			return
		}
		if snap.CurrentSpeaker != sess.ParticipantID {
			s.sendError(c, rooms.ErrNotYourTurn.Error())
			return
		}
		roomID := sess.RoomID
		role := snap.CurrentSpeech
		speaker := sess.ParticipantID
		version := s.pipeline.SpeechVersion(roomID)
		var speakLang string
		for _, p := range snap.Participants {
			if p.ID == speaker {
				speakLang = p.SpeakLang
			}
		}
		var listener *models.ParticipantSnapshot
		for i := range snap.Participants {
			if snap.Participants[i].ID != speaker {
				listener = &snap.Participants[i]
			}
		}
		err = s.stt.StartSession(speaker, speakLang, func(participantID string, res ai.TranscriptResult) {
			s.pipeline.HandleTranscript(roomID, participantID, role, listener, version, res)
		})
		if err != nil {
			log.Printf("ws: start transcription for %s: %v", speaker, err)
		}
		s.orch.RecordActivity(roomID)
	})
}

func (s *Server) handleAudioChunk(c *Client, raw json.RawMessage) {
	var p audioChunkPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.sendError(c, "invalid audio:chunk payload")
		return
	}
	s.withSession(c, func(sess rooms.Session) {
		data, err := base64.StdEncoding.DecodeString(p.Audio)
		if err != nil {
			s.sendError(c, "invalid audio encoding")
			return
		}
		if err := s.stt.PushAudio(sess.ParticipantID, data); err != nil {
			log.Printf("ws: push audio for %s: %v", sess.ParticipantID, err)
		}
		s.orch.RecordActivity(sess.RoomID)
	})
}

func (s *Server) handleAudioStop(c *Client) {
	s.withSession(c, func(sess rooms.Session) {
		// Controlled stop: flush what is buffered.
		s.stt.EndSession(sess.ParticipantID, true)
		s.orch.RecordActivity(sess.RoomID)
	})
}

func (s *Server) handleVoiceSelect(c *Client, raw json.RawMessage) {
	var p voiceSelectPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.VoiceID == "" {
		s.sendError(c, "invalid voice:select payload")
		return
	}
	s.withSession(c, func(sess rooms.Session) {
		s.seq.SetVoice(sess.ParticipantID, p.VoiceID)
	})
}

// handleDisconnect starts the reconnect grace window for a bound client.
func (s *Server) handleDisconnect(c *Client) {
	sess, ok := s.sessions.MarkDisconnected(c.connID)
	if !ok {
		return
	}
	s.dir.SetConnected(sess.RoomID, sess.ParticipantID, false)
	if snap, err := s.dir.Get(sess.RoomID); err == nil {
		s.hub.ToRoomExcept(sess.RoomID, sess.ParticipantID, models.Outbound(models.MsgRoomState, snap))
	}
	log.Printf("ws: %s disconnected, grace window open", sess.ParticipantID)
}

// RunSweeper evicts expired sessions and reaps idle rooms until stop closes.
func (s *Server) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			for _, sess := range s.sessions.Sweep(now) {
				empty, snap, err := s.dir.RemoveParticipant(sess.RoomID, sess.ParticipantID)
				if err != nil {
					continue
				}
				if empty {
					s.orch.CleanupRoom(sess.RoomID)
					continue
				}
				s.hub.ToRoom(sess.RoomID, models.Outbound(models.MsgRoomState, snap))
			}
			for _, roomID := range s.dir.ReapIdle(now) {
				s.orch.CleanupRoom(roomID)
			}
		}
	}
}
