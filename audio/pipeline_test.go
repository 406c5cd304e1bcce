package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossfire/ai"
	"crossfire/models"
)

// fakeLedger is a version fence the test can move by hand.
type fakeLedger struct {
	mu          sync.Mutex
	version     int
	transcripts []string
}

func (l *fakeLedger) AddTranscript(roomID string, role models.SpeechRole, text string) {
	l.mu.Lock()
	l.transcripts = append(l.transcripts, text)
	l.mu.Unlock()
}

func (l *fakeLedger) Version(roomID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

func (l *fakeLedger) IsCurrent(roomID string, version int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version == version
}

func (l *fakeLedger) bump() {
	l.mu.Lock()
	l.version++
	l.mu.Unlock()
}

// fakeSender records every outbound message.
type fakeSender struct {
	mu       sync.Mutex
	room     []models.WSMessage
	personal map[string][]models.WSMessage
}

func newFakeSender() *fakeSender {
	return &fakeSender{personal: make(map[string][]models.WSMessage)}
}

func (s *fakeSender) ToRoom(roomID string, msg models.WSMessage) {
	s.mu.Lock()
	s.room = append(s.room, msg)
	s.mu.Unlock()
}

func (s *fakeSender) ToParticipant(participantID string, msg models.WSMessage) {
	s.mu.Lock()
	s.personal[participantID] = append(s.personal[participantID], msg)
	s.mu.Unlock()
}

func (s *fakeSender) sentTo(participantID string) []models.WSMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.WSMessage, len(s.personal[participantID]))
	copy(out, s.personal[participantID])
	return out
}

func (s *fakeSender) typesTo(participantID string) []string {
	var types []string
	for _, m := range s.sentTo(participantID) {
		types = append(types, m.Type)
	}
	return types
}

// gateTranslator blocks each Translate call until the gate opens, so the
// test controls when the async stage resolves.
type gateTranslator struct {
	gate    chan struct{}
	entered chan struct{}
	err     error
}

func newGateTranslator() *gateTranslator {
	return &gateTranslator{gate: make(chan struct{}), entered: make(chan struct{}, 8)}
}

func (g *gateTranslator) Translate(ctx context.Context, text, from, to, debateContext string) (ai.Translation, error) {
	g.entered <- struct{}{}
	<-g.gate
	if g.err != nil {
		return ai.Translation{}, g.err
	}
	return ai.Translation{TranslatedText: "[" + to + "] " + text, LatencyMs: 1}, nil
}

type stubEmotions struct {
	reading ai.EmotionReading
	err     error
}

func (s *stubEmotions) Detect(ctx context.Context, original, translated, debateContext string, previous ai.EmotionReading) (ai.EmotionReading, error) {
	return s.reading, s.err
}

// instantSynth emits one chunk and returns.
type instantSynth struct{}

func (instantSynth) Synthesize(ctx context.Context, text, language string, params ai.SynthesisParams, onChunk func(chunk []byte)) error {
	onChunk([]byte(text))
	return nil
}

func listener(id, lang string) *models.ParticipantSnapshot {
	return &models.ParticipantSnapshot{ID: id, HearLang: lang}
}

func newTestPipeline(ledger *fakeLedger, tr ai.Translator, em ai.EmotionDetector, out Sender) *Pipeline {
	return NewPipeline(ledger, tr, em, NewSequencer(instantSynth{}), out)
}

func TestTranscriptBroadcastToRoom(t *testing.T) {
	ledger := &fakeLedger{}
	out := newFakeSender()
	tr := newGateTranslator()
	p := newTestPipeline(ledger, tr, &stubEmotions{reading: ai.NeutralEmotion}, out)

	p.HandleTranscript("room", "alice", models.SpeechAC, nil, ledger.Version("room"), ai.TranscriptResult{Text: "hello", Language: "en"})

	out.mu.Lock()
	defer out.mu.Unlock()
	require.Len(t, out.room, 1)
	assert.Equal(t, models.MsgTranscript, out.room[0].Type)
	assert.Equal(t, []string{"hello"}, ledger.transcripts)
}

func TestSameLanguageListenerStillHearsSynthesis(t *testing.T) {
	ledger := &fakeLedger{}
	out := newFakeSender()
	tr := newGateTranslator()
	close(tr.gate)
	p := newTestPipeline(ledger, tr, &stubEmotions{reading: ai.NeutralEmotion}, out)

	p.HandleTranscript("room", "alice", models.SpeechAC, listener("bob", "en"), ledger.Version("room"), ai.TranscriptResult{Text: "hello", Language: "en"})

	require.Eventually(t, func() bool {
		types := out.typesTo("bob")
		return len(types) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	types := out.typesTo("bob")
	assert.Equal(t, []string{models.MsgTTSChunk, models.MsgTTSComplete}, types, "no translated transcript when languages match")
	assert.Empty(t, tr.entered, "matching languages skip translation entirely")
}

func TestTranslatedTranscriptDelivered(t *testing.T) {
	ledger := &fakeLedger{}
	out := newFakeSender()
	tr := newGateTranslator()
	close(tr.gate)
	p := newTestPipeline(ledger, tr, &stubEmotions{reading: ai.NeutralEmotion}, out)

	p.HandleTranscript("room", "alice", models.SpeechAC, listener("bob", "es"), ledger.Version("room"), ai.TranscriptResult{Text: "hello", Language: "en"})

	require.Eventually(t, func() bool {
		return len(out.typesTo("bob")) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	types := out.typesTo("bob")
	assert.Equal(t, []string{models.MsgTranscript, models.MsgTTSChunk, models.MsgTTSComplete}, types)
}

func TestStaleTranslationSuppressed(t *testing.T) {
	ledger := &fakeLedger{}
	out := newFakeSender()
	tr := newGateTranslator()
	p := newTestPipeline(ledger, tr, &stubEmotions{reading: ai.NeutralEmotion}, out)

	p.HandleTranscript("room", "alice", models.SpeechAC, listener("bob", "es"), ledger.Version("room"), ai.TranscriptResult{Text: "hello", Language: "en"})

	// The speech ends while translation is still in flight.
	<-tr.entered
	ledger.bump()
	close(tr.gate)

	// Give the pipeline goroutine time to run into the fence.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, out.sentTo("bob"), "nothing from the ended speech reaches the listener")
}

func TestFlushedTailAfterSpeechEndNotDelivered(t *testing.T) {
	ledger := &fakeLedger{}
	out := newFakeSender()
	tr := newGateTranslator()
	close(tr.gate)
	p := newTestPipeline(ledger, tr, &stubEmotions{reading: ai.NeutralEmotion}, out)

	// The transcription session opened during the speech, then the speech
	// ended and the version moved before the flushed tail was recognized.
	version := ledger.Version("room")
	ledger.bump()
	p.HandleTranscript("room", "alice", models.SpeechAC, listener("bob", "es"), version, ai.TranscriptResult{Text: "closing words", Language: "en"})

	// The words still belong to the finished speech's transcript.
	assert.Equal(t, []string{"closing words"}, ledger.transcripts)
	out.mu.Lock()
	require.Len(t, out.room, 1)
	out.mu.Unlock()

	// But nothing is translated or synthesized into the next turn.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, tr.entered, "no translation attempted for a late recognition")
	assert.Empty(t, out.sentTo("bob"))
}

func TestTranslationFailureEchoesOriginal(t *testing.T) {
	ledger := &fakeLedger{}
	out := newFakeSender()
	tr := newGateTranslator()
	tr.err = errors.New("upstream down")
	close(tr.gate)
	p := newTestPipeline(ledger, tr, &stubEmotions{reading: ai.NeutralEmotion}, out)

	p.HandleTranscript("room", "alice", models.SpeechAC, listener("bob", "es"), ledger.Version("room"), ai.TranscriptResult{Text: "hello", Language: "en"})

	require.Eventually(t, func() bool {
		return len(out.typesTo("bob")) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	// No translated transcript, but synthesis still runs on the original text.
	types := out.typesTo("bob")
	assert.Equal(t, []string{models.MsgTTSChunk, models.MsgTTSComplete}, types)
}

func TestBotListenerGetsNoAudio(t *testing.T) {
	ledger := &fakeLedger{}
	out := newFakeSender()
	tr := newGateTranslator()
	close(tr.gate)
	p := newTestPipeline(ledger, tr, &stubEmotions{reading: ai.NeutralEmotion}, out)

	bot := &models.ParticipantSnapshot{ID: "bot-1", HearLang: "en", IsBot: true}
	p.HandleTranscript("room", "alice", models.SpeechAC, bot, ledger.Version("room"), ai.TranscriptResult{Text: "hello", Language: "en"})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, out.sentTo("bot-1"))

	out.mu.Lock()
	defer out.mu.Unlock()
	assert.Len(t, out.room, 1, "the transcript still reaches the room")
}

func TestEmotionSmoothing(t *testing.T) {
	ledger := &fakeLedger{}
	out := newFakeSender()
	em := &stubEmotions{reading: ai.EmotionReading{Dominant: "aggressive", Intensity: 1.0, Confidence: 0.9}}
	p := newTestPipeline(ledger, newGateTranslator(), em, out)

	ctx := context.Background()
	reading := p.detectSmoothed(ctx, "alice", "text", "text", "AC")
	assert.Equal(t, "aggressive", reading.Dominant)
	assert.InDelta(t, ai.NeutralEmotion.Intensity+maxIntensityDelta, reading.Intensity, 1e-9,
		"intensity may only move by the clamp per reading")

	// The next reading moves from the stored smoothed value, not the raw one.
	reading = p.detectSmoothed(ctx, "alice", "text", "text", "AC")
	assert.InDelta(t, ai.NeutralEmotion.Intensity+2*maxIntensityDelta, reading.Intensity, 1e-9)
}

func TestLowConfidenceKeepsPrevious(t *testing.T) {
	ledger := &fakeLedger{}
	out := newFakeSender()
	em := &stubEmotions{reading: ai.EmotionReading{Dominant: "passionate", Intensity: 0.9, Confidence: 0.2}}
	p := newTestPipeline(ledger, newGateTranslator(), em, out)

	reading := p.detectSmoothed(context.Background(), "alice", "text", "text", "AC")
	assert.Equal(t, ai.NeutralEmotion, reading)
}

func TestEmotionFailureKeepsPrevious(t *testing.T) {
	ledger := &fakeLedger{}
	out := newFakeSender()
	em := &stubEmotions{err: errors.New("model offline")}
	p := newTestPipeline(ledger, newGateTranslator(), em, out)

	reading := p.detectSmoothed(context.Background(), "alice", "text", "text", "AC")
	assert.Equal(t, ai.NeutralEmotion, reading)
}
