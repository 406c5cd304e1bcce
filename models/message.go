package models

import "encoding/json"

// WSMessage is the wire envelope for every websocket message, both
// directions. Payload stays raw on input so each handler decodes its own
// shape; outbound messages marshal whatever payload they carry.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound builds an envelope from a payload value. Marshal errors are
// impossible for the payload types we send, so they are swallowed into an
// empty payload rather than propagated.
func Outbound(msgType string, payload interface{}) WSMessage {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = nil
	}
	return WSMessage{Type: msgType, Payload: raw}
}

// Message types, client → server.
const (
	MsgRoomCreate        = "room:create"
	MsgRoomJoin          = "room:join"
	MsgRoomRejoin        = "room:rejoin"
	MsgRoomLeave         = "room:leave"
	MsgRoomReady         = "room:ready"
	MsgRoomStart         = "room:start"
	MsgBotRoomCreate     = "bot:room:create"
	MsgBotSkip           = "bot:skip"
	MsgParticipantUpdate = "participant:update"
	MsgSignal            = "signal"
	MsgTimerPause        = "timer:pause"
	MsgTimerResume       = "timer:resume"
	MsgSpeechEnd         = "speech:end"
	MsgSpeechStart       = "speech:start"
	MsgPrepStart         = "prep:start"
	MsgPrepEnd           = "prep:end"
	MsgAudioStart        = "audio:start"
	MsgAudioChunk        = "audio:chunk"
	MsgAudioStop         = "audio:stop"
	MsgVoiceList         = "voice:list"
	MsgVoiceSelect       = "voice:select"
	MsgPing              = "ping"
)

// Message types, server → client.
const (
	MsgPong           = "pong"
	MsgError          = "error"
	MsgRoomState      = "room:state"
	MsgRoomJoined     = "room:joined"
	MsgRoomRejoined   = "room:rejoined"
	MsgTimerUpdate    = "timer:update"
	MsgSpeechComplete = "speech:complete"
	MsgDebateComplete = "debate:complete"
	MsgBotPreparing   = "bot:preparing"
	MsgBotTranscript  = "bot:transcript"
	MsgTranscript     = "transcript"
	MsgTTSChunk       = "tts:chunk"
	MsgTTSComplete    = "tts:complete"
	MsgTimeoutWarning = "timeout:warning"
	MsgVerdict        = "verdict"
	MsgVoices         = "voices"
)
