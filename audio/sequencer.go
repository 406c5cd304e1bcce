// Package audio owns synthesized speech delivery: one ordered output lane
// per participant and the translate→emotion→synthesize pipeline feeding it.
package audio

import (
	"context"
	"log"
	"sync"

	"crossfire/ai"
)

// Request is one pending synthesis job on a participant's lane.
type Request struct {
	Text     string
	Language string
	// Emotion is an optional hint; nil means neutral delivery.
	Emotion *ai.EmotionReading
}

// Callbacks receive the synthesis output for one request.
type Callbacks struct {
	OnChunk    func(chunk []byte)
	OnComplete func()
	OnError    func(err error)
}

// emotionParams maps a detected emotion to synthesis tuning. Stability keeps
// the voice from wandering; pacing scales delivery speed.
var emotionParams = map[string]struct {
	Stability float64
	Pacing    float64
}{
	"neutral":    {Stability: 0.75, Pacing: 1.0},
	"confident":  {Stability: 0.65, Pacing: 1.05},
	"passionate": {Stability: 0.45, Pacing: 1.15},
	"aggressive": {Stability: 0.35, Pacing: 1.2},
	"calm":       {Stability: 0.85, Pacing: 0.9},
	"uncertain":  {Stability: 0.6, Pacing: 0.85},
}

// ParamsFor resolves an emotion hint into synthesis parameters.
func ParamsFor(voiceID string, emotion *ai.EmotionReading) ai.SynthesisParams {
	key := "neutral"
	if emotion != nil {
		key = emotion.Dominant
	}
	p, ok := emotionParams[key]
	if !ok {
		p = emotionParams["neutral"]
	}
	return ai.SynthesisParams{VoiceID: voiceID, Stability: p.Stability, Pacing: p.Pacing}
}

// DefaultVoice is used until a participant picks one.
const DefaultVoice = "en-us-ryan"

type pending struct {
	req Request
	cb  Callbacks
}

type lane struct {
	voiceID    string
	generating bool
	queue      []pending
	cancel     context.CancelFunc
}

// Sequencer serializes synthesis per participant: exactly one call in flight
// per lane, further requests queued FIFO, so chunks for one voice are never
// interleaved.
type Sequencer struct {
	synth ai.Synthesizer

	mu    sync.Mutex
	lanes map[string]*lane
}

func NewSequencer(synth ai.Synthesizer) *Sequencer {
	return &Sequencer{synth: synth, lanes: make(map[string]*lane)}
}

func (s *Sequencer) laneLocked(participantID string) *lane {
	l, ok := s.lanes[participantID]
	if !ok {
		l = &lane{voiceID: DefaultVoice}
		s.lanes[participantID] = l
	}
	return l
}

// SetVoice records the participant's chosen synthesis voice.
func (s *Sequencer) SetVoice(participantID, voiceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.laneLocked(participantID).voiceID = voiceID
}

// Voice returns the participant's current voice.
func (s *Sequencer) Voice(participantID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.laneLocked(participantID).voiceID
}

// Queue schedules a synthesis request on the participant's lane. Runs
// immediately when the lane is idle, otherwise waits its turn.
func (s *Sequencer) Queue(participantID string, req Request, cb Callbacks) {
	s.mu.Lock()
	l := s.laneLocked(participantID)
	if l.generating {
		l.queue = append(l.queue, pending{req: req, cb: cb})
		s.mu.Unlock()
		return
	}
	l.generating = true
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	voice := l.voiceID
	s.mu.Unlock()

	go s.run(ctx, participantID, voice, pending{req: req, cb: cb})
}

func (s *Sequencer) run(ctx context.Context, participantID, voice string, job pending) {
	params := ParamsFor(voice, job.req.Emotion)
	err := s.synth.Synthesize(ctx, job.req.Text, job.req.Language, params, func(chunk []byte) {
		if job.cb.OnChunk != nil {
			job.cb.OnChunk(chunk)
		}
	})
	if err != nil {
		if job.cb.OnError != nil {
			job.cb.OnError(err)
		}
	} else if job.cb.OnComplete != nil {
		job.cb.OnComplete()
	}

	// Hand the lane to the next queued request, if any.
	s.mu.Lock()
	l, ok := s.lanes[participantID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if len(l.queue) == 0 {
		l.generating = false
		l.cancel = nil
		s.mu.Unlock()
		return
	}
	next := l.queue[0]
	l.queue = l.queue[1:]
	nextCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	nextVoice := l.voiceID
	s.mu.Unlock()

	s.run(nextCtx, participantID, nextVoice, next)
}

// ClearQueue discards every not-yet-started request on the lane and cancels
// the in-flight call. Used on turn end and skip so nothing bleeds into the
// next speech.
func (s *Sequencer) ClearQueue(participantID string) {
	s.mu.Lock()
	l, ok := s.lanes[participantID]
	if !ok {
		s.mu.Unlock()
		return
	}
	dropped := len(l.queue)
	l.queue = nil
	cancel := l.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if dropped > 0 {
		log.Printf("audio: cleared %d queued requests for %s", dropped, participantID)
	}
}

// DropLane removes a participant's lane entirely, on room end.
func (s *Sequencer) DropLane(participantID string) {
	s.mu.Lock()
	l, ok := s.lanes[participantID]
	if ok {
		delete(s.lanes, participantID)
	}
	s.mu.Unlock()
	if ok && l.cancel != nil {
		l.cancel()
	}
}

// Generating reports whether the lane has a synthesis call in flight.
func (s *Sequencer) Generating(participantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.lanes[participantID]; ok {
		return l.generating
	}
	return false
}
