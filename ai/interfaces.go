// Package ai holds the boundary to the external model services. Each
// collaborator is a black box behind a narrow interface so implementations
// stay swappable and tests can fake them.
package ai

import (
	"context"

	"crossfire/models"
)

// TranscriptResult is one recognized utterance from a transcription session.
type TranscriptResult struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Transcriber runs one streaming speech-to-text session per speaking
// participant. Results arrive on the callback given to StartSession.
type Transcriber interface {
	StartSession(participantID, language string, onResult func(participantID string, res TranscriptResult)) error
	PushAudio(participantID string, chunk []byte) error
	// EndSession closes the session. flush=true forces recognition of any
	// buffered audio (controlled turn end); flush=false discards it.
	EndSession(participantID string, flush bool) error
}

// Translation is a successful translation plus how long it took upstream.
type Translation struct {
	TranslatedText string `json:"translatedText"`
	LatencyMs      int64  `json:"latencyMs"`
}

type Translator interface {
	Translate(ctx context.Context, text, from, to, debateContext string) (Translation, error)
}

// EmotionReading is one inference over an utterance.
type EmotionReading struct {
	Dominant   string  `json:"dominantEmotion"`
	Intensity  float64 `json:"intensity"`
	Confidence float64 `json:"confidence"`
}

// NeutralEmotion is the reading used before any inference has landed.
var NeutralEmotion = EmotionReading{Dominant: "neutral", Intensity: 0.3, Confidence: 1}

type EmotionDetector interface {
	Detect(ctx context.Context, original, translated, debateContext string, previous EmotionReading) (EmotionReading, error)
}

// SynthesisParams tune one synthesis call.
type SynthesisParams struct {
	VoiceID   string  `json:"voiceId"`
	Stability float64 `json:"stability"`
	Pacing    float64 `json:"pacing"`
}

// Synthesizer streams synthesized audio. onChunk is called with each audio
// chunk in order; Synthesize returns once the stream ends or fails.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string, params SynthesisParams, onChunk func(chunk []byte)) error
}

// ExtractContext frames an argument-extraction call.
type ExtractContext struct {
	Resolution string
	Speech     models.SpeechRole
	Side       models.Side
}

// ArgumentExtractor pulls structured arguments out of a finished speech.
type ArgumentExtractor interface {
	Extract(ctx context.Context, transcript string, prior []models.Argument, ec ExtractContext) ([]models.Argument, error)
}

// VerdictGenerator judges a completed debate from its full flow.
type VerdictGenerator interface {
	GenerateVerdict(ctx context.Context, flow models.FlowSnapshot, room models.RoomSnapshot, resolution string) (models.Verdict, error)
}

// Generator is plain prompt-in text-out generation, used for bot speeches.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
