package debate

import (
	"log"
	"sync"
	"time"

	"crossfire/models"
)

// TimerPhase is where the countdown machine currently is.
type TimerPhase int

const (
	PhaseIdle TimerPhase = iota // between speeches, nothing counting
	PhaseSpeaking
	PhasePrep
	PhasePaused
	PhaseComplete
)

// TimerCallbacks is the event contract the timer fires into. All callbacks
// run outside the timer's lock, so they may call back into the timer.
type TimerCallbacks struct {
	// OnTick fires once per second while any countdown runs.
	OnTick func(state models.TimerState)
	// OnSpeechComplete fires exactly once per finished speech, whether it
	// ran out or was ended early. next is "" after the final speech.
	OnSpeechComplete func(completed, next models.SpeechRole)
	// OnPrepEnd fires when a prep countdown stops, by request or exhaustion.
	OnPrepEnd func(side models.Side)
	// OnDebateComplete fires once, after OnSpeechComplete for the last speech.
	OnDebateComplete func()
}

// Timer runs the fixed five-speech sequence for one room: per-second speech
// countdowns, per-side prep banks, pause/resume. It knows nothing about
// participants or bots; that policy lives in the Orchestrator.
type Timer struct {
	mu sync.Mutex
	cb TimerCallbacks

	// tick is one wall-clock second in production; tests shrink it.
	tick time.Duration

	phase       TimerPhase
	pausedPhase TimerPhase // what Pause froze, so Resume can re-derive
	index       int        // slot in models.SpeechOrder
	speechLeft  int        // seconds
	prepLeft    map[models.Side]int
	prepSide    models.Side

	ticker *time.Ticker
	stopCh chan struct{}
}

func NewTimer(cb TimerCallbacks) *Timer {
	return &Timer{
		cb:    cb,
		tick:  time.Second,
		phase: PhaseIdle,
		index: -1,
		prepLeft: map[models.Side]int{
			models.SideAff: int(models.PrepBudget.Seconds()),
			models.SideNeg: int(models.PrepBudget.Seconds()),
		},
	}
}

// Arm readies the sequence at the first slot without starting its
// countdown. The orchestrator gates the opening turn (a bot may speak
// first), so arming and starting are separate steps.
func (t *Timer) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index >= 0 {
		return
	}
	t.index = 0
	t.phase = PhaseIdle
}

// StartDebate enters the first speech immediately.
func (t *Timer) StartDebate() {
	t.mu.Lock()
	if t.index >= 0 {
		t.mu.Unlock()
		log.Println("timer: debate already started, ignoring")
		return
	}
	t.index = 0
	t.beginSpeechLocked()
	t.mu.Unlock()
}

// StartNextSpeech begins the speech at the current slot. Used by the
// orchestrator after the gap between speeches (prep, bot generation).
func (t *Timer) StartNextSpeech() {
	t.mu.Lock()
	if t.phase != PhaseIdle || t.index < 0 || t.index >= len(models.SpeechOrder) {
		t.mu.Unlock()
		log.Println("timer: start next speech out of order, ignoring")
		return
	}
	t.beginSpeechLocked()
	t.mu.Unlock()
}

func (t *Timer) beginSpeechLocked() {
	role := models.SpeechOrder[t.index]
	t.phase = PhaseSpeaking
	t.speechLeft = int(models.SpeechDurations[t.index].Seconds())
	t.startTickerLocked()
	log.Printf("timer: %s started, %ds", role, t.speechLeft)
}

// EndSpeech stops the active speech countdown and advances the sequence.
// Reaching zero on the clock takes the same path.
func (t *Timer) EndSpeech() {
	t.mu.Lock()
	if t.phase != PhaseSpeaking {
		t.mu.Unlock()
		log.Println("timer: end speech with no active speech, ignoring")
		return
	}
	completed, next, done := t.advanceLocked()
	t.mu.Unlock()

	if t.cb.OnSpeechComplete != nil {
		t.cb.OnSpeechComplete(completed, next)
	}
	if done && t.cb.OnDebateComplete != nil {
		t.cb.OnDebateComplete()
	}
}

func (t *Timer) advanceLocked() (completed, next models.SpeechRole, done bool) {
	t.stopTickerLocked()
	completed = models.SpeechOrder[t.index]
	t.index++
	t.speechLeft = 0
	if t.index >= len(models.SpeechOrder) {
		t.phase = PhaseComplete
		return completed, "", true
	}
	t.phase = PhaseIdle
	return completed, models.SpeechOrder[t.index], false
}

// StartPrep starts a side's prep countdown. Only legal between speeches.
func (t *Timer) StartPrep(side models.Side) bool {
	t.mu.Lock()
	if t.phase != PhaseIdle || t.prepLeft[side] <= 0 {
		t.mu.Unlock()
		return false
	}
	t.phase = PhasePrep
	t.prepSide = side
	t.startTickerLocked()
	t.mu.Unlock()
	return true
}

// EndPrep stops the running prep countdown. Exhausting the bank takes the
// same path.
func (t *Timer) EndPrep() {
	t.mu.Lock()
	if t.phase != PhasePrep {
		t.mu.Unlock()
		return
	}
	side := t.prepSide
	t.stopTickerLocked()
	t.phase = PhaseIdle
	t.prepSide = models.SideUnassigned
	t.mu.Unlock()

	if t.cb.OnPrepEnd != nil {
		t.cb.OnPrepEnd(side)
	}
}

// Pause freezes whichever countdown is active.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != PhaseSpeaking && t.phase != PhasePrep {
		return
	}
	t.pausedPhase = t.phase
	t.phase = PhasePaused
	t.stopTickerLocked()
}

// Resume restarts the frozen countdown from its remaining state. It does not
// restart the clock from the top.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != PhasePaused {
		return
	}
	t.phase = t.pausedPhase
	t.startTickerLocked()
}

// State returns a copy of the current countdown state for broadcast.
func (t *Timer) State() models.TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Timer) stateLocked() models.TimerState {
	s := models.TimerState{
		SpeechTimeRemaining: t.speechLeft,
		PrepTimeAff:         t.prepLeft[models.SideAff],
		PrepTimeNeg:         t.prepLeft[models.SideNeg],
		IsRunning:           t.phase == PhaseSpeaking || t.phase == PhasePrep,
		IsPrepTime:          t.phase == PhasePrep,
		PrepSide:            t.prepSide,
	}
	if t.index >= 0 && t.index < len(models.SpeechOrder) {
		s.CurrentSpeech = models.SpeechOrder[t.index]
	}
	return s
}

// Phase returns the machine's current phase.
func (t *Timer) Phase() TimerPhase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// CurrentRole returns the role at the current slot, "" once complete.
func (t *Timer) CurrentRole() models.SpeechRole {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index < 0 || t.index >= len(models.SpeechOrder) {
		return ""
	}
	return models.SpeechOrder[t.index]
}

// Stop tears the timer down. Used when the room dies mid-debate.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTickerLocked()
	t.phase = PhaseComplete
}

// SetTickInterval shrinks the tick for tests. Call before StartDebate.
func (t *Timer) SetTickInterval(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tick = d
}

func (t *Timer) startTickerLocked() {
	t.stopTickerLocked()
	t.ticker = time.NewTicker(t.tick)
	t.stopCh = make(chan struct{})
	go t.run(t.ticker, t.stopCh)
}

func (t *Timer) stopTickerLocked() {
	if t.ticker != nil {
		t.ticker.Stop()
		close(t.stopCh)
		t.ticker = nil
		t.stopCh = nil
	}
}

func (t *Timer) run(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-ticker.C:
			t.onTick()
		case <-stop:
			return
		}
	}
}

func (t *Timer) onTick() {
	t.mu.Lock()
	var (
		state      models.TimerState
		ticked     bool
		speechOver bool
		prepOver   bool
	)
	switch t.phase {
	case PhaseSpeaking:
		t.speechLeft--
		ticked = true
		if t.speechLeft <= 0 {
			t.speechLeft = 0
			speechOver = true
		}
	case PhasePrep:
		t.prepLeft[t.prepSide]--
		ticked = true
		if t.prepLeft[t.prepSide] <= 0 {
			t.prepLeft[t.prepSide] = 0
			prepOver = true
		}
	}
	if ticked {
		state = t.stateLocked()
	}
	t.mu.Unlock()

	if ticked && t.cb.OnTick != nil {
		t.cb.OnTick(state)
	}
	if speechOver {
		t.EndSpeech()
	}
	if prepOver {
		t.EndPrep()
	}
}
