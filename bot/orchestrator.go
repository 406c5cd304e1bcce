// Package bot drives the synthetic debater in practice rooms: speech
// generation with a thinking delay, opportunistic pre-generation, and paced
// transcript reveal decoupled from synthesis speed.
package bot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"crossfire/ai"
	"crossfire/audio"
	"crossfire/debate"
	"crossfire/models"
)

// wordsPerMinute is the assumed natural speaking rate used to derive how
// long the bot's speech should visibly take.
const wordsPerMinute = 150

// Callbacks is the contract back into the debate orchestrator.
type Callbacks struct {
	// AudioReady fires once per bot speech, when the turn may start: the
	// content exists and the first synthesized audio is in hand (or
	// synthesis degraded and the transcript carries the speech alone).
	AudioReady func(roomID string)
}

type botState struct {
	roomID     string
	botID      string
	side       models.Side
	persona    Persona
	language   string
	resolution string

	generating    bool
	currentSpeech models.SpeechRole
	pregen        map[models.SpeechRole]string
	revealStop    chan struct{}
}

// Orchestrator manages every practice-room bot in the process.
type Orchestrator struct {
	flow *debate.Flow
	gen  ai.Generator
	seq  *audio.Sequencer
	out  audio.Sender
	cb   Callbacks

	mu    sync.Mutex
	bots  map[string]*botState // room id -> bot
	delay func(time.Duration)  // swapped in tests
}

func NewOrchestrator(flow *debate.Flow, gen ai.Generator, seq *audio.Sequencer, out audio.Sender, cb Callbacks) *Orchestrator {
	return &Orchestrator{
		flow:  flow,
		gen:   gen,
		seq:   seq,
		out:   out,
		cb:    cb,
		bots:  make(map[string]*botState),
		delay: func(d time.Duration) { time.Sleep(d) },
	}
}

// Register attaches a bot to its practice room. Called once at room start.
func (o *Orchestrator) Register(roomID string, botParticipant models.ParticipantSnapshot, resolution string) {
	persona := PersonaByID(botParticipant.PersonaID)
	o.mu.Lock()
	o.bots[roomID] = &botState{
		roomID:     roomID,
		botID:      botParticipant.ID,
		side:       botParticipant.Side,
		persona:    persona,
		language:   botParticipant.SpeakLang,
		resolution: resolution,
		pregen:     make(map[models.SpeechRole]string),
	}
	o.mu.Unlock()
	o.seq.SetVoice(botParticipant.ID, persona.VoiceID)
}

// TriggerSpeech generates and performs the bot's turn for role. The thinking
// delay always runs, even when the text was pre-generated, so the bot never
// answers a human who ended their speech early with unnatural immediacy.
func (o *Orchestrator) TriggerSpeech(roomID string, role models.SpeechRole) {
	o.mu.Lock()
	b, ok := o.bots[roomID]
	if !ok {
		o.mu.Unlock()
		log.Printf("bot: trigger speech for unknown room %s", roomID)
		return
	}
	if b.generating {
		o.mu.Unlock()
		log.Printf("bot: generation already running for room %s, ignoring", roomID)
		return
	}
	b.generating = true
	b.currentSpeech = role
	o.mu.Unlock()

	go o.performSpeech(b, role)
}

func (o *Orchestrator) performSpeech(b *botState, role models.SpeechRole) {
	o.delay(b.persona.ThinkingDelay)

	o.mu.Lock()
	text, cached := b.pregen[role]
	delete(b.pregen, role)
	o.mu.Unlock()

	if !cached {
		var err error
		text, err = o.generateText(b, role)
		if err != nil {
			log.Printf("bot: generation failed for %s %s, conceding the speech: %v", b.roomID, role, err)
			text = "I have nothing further on this point and will rest on my earlier arguments."
		}
	} else {
		log.Printf("bot: using pre-generated %s for room %s", role, b.roomID)
	}

	o.flow.SetTranscript(b.roomID, role, text)

	// Gate the turn open on first audio, with a cap so a stalled TTS
	// service cannot hold the debate hostage.
	var readyOnce sync.Once
	ready := func() {
		readyOnce.Do(func() {
			o.mu.Lock()
			b.generating = false
			o.mu.Unlock()
			if o.cb.AudioReady != nil {
				o.cb.AudioReady(b.roomID)
			}
		})
	}
	timeout := time.AfterFunc(10*time.Second, ready)

	o.seq.Queue(b.botID, audio.Request{Text: text, Language: b.language}, audio.Callbacks{
		OnChunk: func(chunk []byte) {
			ready()
			o.out.ToRoom(b.roomID, models.Outbound(models.MsgTTSChunk, audio.TTSChunkPayload{
				ParticipantID: b.botID,
				Audio:         encodeChunk(chunk),
			}))
		},
		OnComplete: func() {
			timeout.Stop()
			ready()
			o.out.ToRoom(b.roomID, models.Outbound(models.MsgTTSComplete, audio.TTSChunkPayload{ParticipantID: b.botID}))
		},
		OnError: func(err error) {
			timeout.Stop()
			log.Printf("bot: synthesis failed for %s, transcript-only speech: %v", b.roomID, err)
			ready()
		},
	})
}

// generateText builds the speech from the accumulated flow.
func (o *Orchestrator) generateText(b *botState, role models.SpeechRole) (string, error) {
	opponent := models.SideAff
	if b.side == models.SideAff {
		opponent = models.SideNeg
	}
	ownArgs, _ := json.Marshal(o.flow.ArgumentsBySide(b.roomID, b.side))
	oppArgs, _ := json.Marshal(o.flow.ArgumentsBySide(b.roomID, opponent))

	var transcripts strings.Builder
	for _, r := range models.SpeechOrder {
		if r == role {
			break
		}
		if t := o.flow.Transcript(b.roomID, r); t != "" {
			fmt.Fprintf(&transcripts, "%s: %s\n", r, t)
		}
	}

	budget := models.DurationForRole(role)
	targetWords := int(budget.Minutes() * wordsPerMinute * 0.8)

	prompt := fmt.Sprintf(`you are %s, a competitive debater arguing the %s side of the resolution %q.
your style: %s.
you are delivering the %s speech. speeches so far:
%s
your arguments so far (json): %s
opponent's arguments so far (json): %s

write the speech as spoken prose, about %d words, no headings or stage directions. engage the opponent's strongest arguments directly.`,
		b.persona.Name, b.side, b.resolution, b.persona.Style, role,
		transcripts.String(), ownArgs, oppArgs, targetWords)

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()
	return o.gen.Generate(ctx, prompt)
}

// PreGenerate runs generation for the bot's next role during the opponent's
// turn, so the bot's own turn can open the moment it is gated ready.
func (o *Orchestrator) PreGenerate(roomID string, nextRole models.SpeechRole) {
	o.mu.Lock()
	b, ok := o.bots[roomID]
	if !ok || models.SideForRole(nextRole) != b.side {
		o.mu.Unlock()
		return
	}
	if _, done := b.pregen[nextRole]; done {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	go func() {
		text, err := o.generateText(b, nextRole)
		if err != nil {
			log.Printf("bot: pre-generation failed for %s %s: %v", roomID, nextRole, err)
			return
		}
		o.mu.Lock()
		// The speech may have started (or the room died) while we worked;
		// only cache when the slot is still upcoming.
		if cur, ok := o.bots[roomID]; ok && cur.currentSpeech != nextRole {
			cur.pregen[nextRole] = text
		}
		o.mu.Unlock()
	}()
}

// BeginReveal starts the paced transcript reveal for the bot's current
// speech: sentence-sized units on a fixed schedule spread evenly across the
// duration a human would need to say them. Synthesis speed plays no part.
func (o *Orchestrator) BeginReveal(roomID string) {
	o.mu.Lock()
	b, ok := o.bots[roomID]
	if !ok {
		o.mu.Unlock()
		return
	}
	role := b.currentSpeech
	text := o.flow.Transcript(roomID, role)
	if b.revealStop != nil {
		close(b.revealStop)
	}
	stop := make(chan struct{})
	b.revealStop = stop
	o.mu.Unlock()

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return
	}
	words := len(strings.Fields(text))
	total := time.Duration(float64(words)/wordsPerMinute*60) * time.Second
	interval := total / time.Duration(len(sentences))
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		for i, sentence := range sentences {
			select {
			case <-stop:
				return
			case <-time.After(interval):
			}
			o.out.ToRoom(roomID, models.Outbound(models.MsgBotTranscript, BotTranscriptPayload{
				ParticipantID: b.botID,
				Speech:        role,
				Text:          sentence,
				Index:         i,
				Total:         len(sentences),
			}))
		}
	}()
}

// BotTranscriptPayload is one revealed sentence of a bot speech.
type BotTranscriptPayload struct {
	ParticipantID string            `json:"participantId"`
	Speech        models.SpeechRole `json:"speech"`
	Text          string            `json:"text"`
	Index         int               `json:"index"`
	Total         int               `json:"total"`
}

// Stop cancels the reveal schedule and flushes the bot's audio lane. Used
// when a human skips the bot's speech or the timer forces an end.
func (o *Orchestrator) Stop(roomID string) {
	o.mu.Lock()
	b, ok := o.bots[roomID]
	var botID string
	if ok {
		botID = b.botID
		if b.revealStop != nil {
			close(b.revealStop)
			b.revealStop = nil
		}
		b.generating = false
	}
	o.mu.Unlock()
	if ok {
		o.seq.ClearQueue(botID)
	}
}

// Unregister removes the bot when its room dies.
func (o *Orchestrator) Unregister(roomID string) {
	o.mu.Lock()
	b, ok := o.bots[roomID]
	if ok {
		if b.revealStop != nil {
			close(b.revealStop)
		}
		delete(o.bots, roomID)
	}
	o.mu.Unlock()
	if ok {
		o.seq.DropLane(b.botID)
	}
}

// BotID returns the bot participant id for a room, if it has one.
func (o *Orchestrator) BotID(roomID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if b, ok := o.bots[roomID]; ok {
		return b.botID, true
	}
	return "", false
}

// SetDelayFunc swaps the thinking-delay sleep, for tests.
func (o *Orchestrator) SetDelayFunc(fn func(time.Duration)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delay = fn
}

func splitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	for _, r := range text {
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func encodeChunk(chunk []byte) string {
	return base64.StdEncoding.EncodeToString(chunk)
}
