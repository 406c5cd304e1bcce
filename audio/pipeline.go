package audio

import (
	"context"
	"encoding/base64"
	"log"
	"math"
	"sync"
	"time"

	"crossfire/ai"
	"crossfire/models"
)

// Ledger is the slice of the flow ledger the pipeline needs: transcript
// storage plus the speech-version fence.
type Ledger interface {
	AddTranscript(roomID string, role models.SpeechRole, text string)
	Version(roomID string) int
	IsCurrent(roomID string, version int) bool
}

// Sender delivers outbound messages; implemented by the signaling hub.
type Sender interface {
	ToRoom(roomID string, msg models.WSMessage)
	ToParticipant(participantID string, msg models.WSMessage)
}

// maxIntensityDelta caps how fast the voice's emotional intensity may move
// between consecutive readings.
const maxIntensityDelta = 0.3

// minEmotionConfidence below which we keep the previous reading.
const minEmotionConfidence = 0.5

// Pipeline carries a recognized utterance through translation, emotion
// inference, and synthesis. Every externally visible step re-checks the
// speech version captured at the start, so work that outlives its turn is
// dropped, not delivered.
type Pipeline struct {
	ledger     Ledger
	translator ai.Translator
	emotions   ai.EmotionDetector
	seq        *Sequencer
	out        Sender

	mu       sync.Mutex
	previous map[string]ai.EmotionReading // speaker id -> last reading
}

func NewPipeline(ledger Ledger, translator ai.Translator, emotions ai.EmotionDetector, seq *Sequencer, out Sender) *Pipeline {
	return &Pipeline{
		ledger:     ledger,
		translator: translator,
		emotions:   emotions,
		seq:        seq,
		out:        out,
		previous:   make(map[string]ai.EmotionReading),
	}
}

// TranscriptPayload is the transcript message body sent to clients.
type TranscriptPayload struct {
	ParticipantID string            `json:"participantId"`
	Speech        models.SpeechRole `json:"speech"`
	Text          string            `json:"text"`
	Language      string            `json:"language"`
	Translated    bool              `json:"translated,omitempty"`
}

// TTSChunkPayload carries one synthesized audio chunk.
type TTSChunkPayload struct {
	ParticipantID string `json:"participantId"`
	Audio         string `json:"audio"` // base64
}

// SpeechVersion reports the room's current fence. Callers capture it when
// they open a transcription session and pass it back with every result.
func (p *Pipeline) SpeechVersion(roomID string) int {
	return p.ledger.Version(roomID)
}

// HandleTranscript ingests one recognized utterance from the speaking
// participant and fans it out: transcript to the room, translated and
// synthesized speech to the listener when languages differ.
//
// version is the fence captured when the transcription session opened, not
// now: a recognition flushed after the speech ended carries the old version,
// so its words still land in the right transcript but the delivery leg is
// fenced out of the next turn. Mid-flight ends are caught the same way, by
// re-checking before every externally visible effect.
func (p *Pipeline) HandleTranscript(roomID, speakerID string, role models.SpeechRole, listener *models.ParticipantSnapshot, version int, res ai.TranscriptResult) {
	p.ledger.AddTranscript(roomID, role, res.Text)
	p.out.ToRoom(roomID, models.Outbound(models.MsgTranscript, TranscriptPayload{
		ParticipantID: speakerID,
		Speech:        role,
		Text:          res.Text,
		Language:      res.Language,
	}))

	if listener == nil || listener.IsBot {
		return
	}
	if !p.ledger.IsCurrent(roomID, version) {
		log.Printf("pipeline: skip delivery of late recognition for %s (speech version moved past %d)", speakerID, version)
		return
	}
	go p.deliver(roomID, speakerID, role, *listener, res, version)
}

func (p *Pipeline) deliver(roomID, speakerID string, role models.SpeechRole, listener models.ParticipantSnapshot, res ai.TranscriptResult, version int) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	debateContext := string(role)
	text := res.Text
	translated := false
	if listener.HearLang != res.Language {
		tr, err := p.translator.Translate(ctx, res.Text, res.Language, listener.HearLang, debateContext)
		if err != nil {
			// Degrade to the original text rather than dropping the line.
			log.Printf("pipeline: translation failed for %s, echoing original: %v", speakerID, err)
		} else {
			text = tr.TranslatedText
			translated = true
		}
	}

	if !p.ledger.IsCurrent(roomID, version) {
		log.Printf("pipeline: skip stale translation for %s (speech version moved past %d)", speakerID, version)
		return
	}

	if translated {
		p.out.ToParticipant(listener.ID, models.Outbound(models.MsgTranscript, TranscriptPayload{
			ParticipantID: speakerID,
			Speech:        role,
			Text:          text,
			Language:      listener.HearLang,
			Translated:    true,
		}))
	}

	emotion := p.detectSmoothed(ctx, speakerID, res.Text, text, debateContext)

	if !p.ledger.IsCurrent(roomID, version) {
		log.Printf("pipeline: skip stale synthesis enqueue for %s (speech version moved past %d)", speakerID, version)
		return
	}

	p.seq.Queue(speakerID, Request{Text: text, Language: listener.HearLang, Emotion: &emotion}, Callbacks{
		OnChunk: func(chunk []byte) {
			// Last fence: the speech may end mid-stream.
			if !p.ledger.IsCurrent(roomID, version) {
				return
			}
			p.out.ToParticipant(listener.ID, models.Outbound(models.MsgTTSChunk, TTSChunkPayload{
				ParticipantID: speakerID,
				Audio:         base64.StdEncoding.EncodeToString(chunk),
			}))
		},
		OnComplete: func() {
			if !p.ledger.IsCurrent(roomID, version) {
				return
			}
			p.out.ToParticipant(listener.ID, models.Outbound(models.MsgTTSComplete, TTSChunkPayload{ParticipantID: speakerID}))
		},
		OnError: func(err error) {
			log.Printf("pipeline: synthesis failed for %s, skipping utterance: %v", speakerID, err)
		},
	})
}

// detectSmoothed runs emotion inference and smooths the result against the
// speaker's previous reading. Low confidence or failure keeps the previous
// reading.
func (p *Pipeline) detectSmoothed(ctx context.Context, speakerID, original, translated, debateContext string) ai.EmotionReading {
	p.mu.Lock()
	prev, ok := p.previous[speakerID]
	p.mu.Unlock()
	if !ok {
		prev = ai.NeutralEmotion
	}

	reading, err := p.emotions.Detect(ctx, original, translated, debateContext, prev)
	if err != nil || reading.Confidence < minEmotionConfidence {
		if err != nil {
			log.Printf("pipeline: emotion inference failed for %s, keeping previous: %v", speakerID, err)
		}
		return prev
	}

	if delta := reading.Intensity - prev.Intensity; math.Abs(delta) > maxIntensityDelta {
		if delta > 0 {
			reading.Intensity = prev.Intensity + maxIntensityDelta
		} else {
			reading.Intensity = prev.Intensity - maxIntensityDelta
		}
	}

	p.mu.Lock()
	p.previous[speakerID] = reading
	p.mu.Unlock()
	return reading
}

// ForgetSpeaker drops the emotion history for a participant on room end.
func (p *Pipeline) ForgetSpeaker(participantID string) {
	p.mu.Lock()
	delete(p.previous, participantID)
	p.mu.Unlock()
}
