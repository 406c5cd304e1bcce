package debate

import (
	"context"
	"log"
	"sync"
	"time"

	"crossfire/ai"
	"crossfire/models"
	"crossfire/rooms"
)

// Broadcaster delivers outbound messages; implemented by the signaling hub.
type Broadcaster interface {
	ToRoom(roomID string, msg models.WSMessage)
	ToParticipant(participantID string, msg models.WSMessage)
}

// BotDriver is the slice of the bot orchestrator the debate policy needs.
type BotDriver interface {
	Register(roomID string, botParticipant models.ParticipantSnapshot, resolution string)
	TriggerSpeech(roomID string, role models.SpeechRole)
	PreGenerate(roomID string, role models.SpeechRole)
	BeginReveal(roomID string)
	Stop(roomID string)
	Unregister(roomID string)
}

// AudioControl is the slice of the audio sequencer the orchestrator needs
// for turn-boundary cleanup.
type AudioControl interface {
	ClearQueue(participantID string)
	DropLane(participantID string)
}

// Archiver persists the immutable record of a finished debate. Best effort;
// a nil Archiver disables archiving.
type Archiver interface {
	SaveDebate(ctx context.Context, room models.RoomSnapshot, flow models.FlowSnapshot, verdict models.Verdict) error
}

// Watchdog and pacing policy. Fields on the orchestrator so tests can
// shrink them.
const (
	defaultInactivityTimeout = 2 * time.Minute
	defaultInactivityWarning = 30 * time.Second // before the hard deadline
	defaultMaxDuration       = 60 * time.Minute
	defaultMaxWarning        = 5 * time.Minute
	defaultSettleDelay       = 500 * time.Millisecond
	defaultFlushGrace        = 2 * time.Second
)

// Orchestrator wraps the per-room Timer with room-level policy: watchdogs,
// human-vs-bot turn dispatch, completion side-effects, verdict generation.
type Orchestrator struct {
	dir       *rooms.Directory
	flow      *Flow
	out       Broadcaster
	bots      BotDriver
	audio     AudioControl
	stt       ai.Transcriber
	extractor ai.ArgumentExtractor
	verdicts  ai.VerdictGenerator
	archive   Archiver

	inactivityTimeout time.Duration
	inactivityWarning time.Duration
	maxDuration       time.Duration
	maxWarning        time.Duration
	settleDelay       time.Duration
	flushGrace        time.Duration
	tickInterval      time.Duration

	mu       sync.Mutex
	sessions map[string]*roomSession
}

// roomSession is the live machinery of one in-progress debate.
type roomSession struct {
	roomID string
	timer  *Timer

	inactivityWarn *time.Timer
	inactivityKill *time.Timer
	maxWarn        *time.Timer
	maxKill        *time.Timer

	pendingExtractions sync.WaitGroup
	extractedMu        sync.Mutex
	extracted          map[models.SpeechRole]bool

	prepBot bool // a bot prep phase is in flight, gating the countdown
}

func NewOrchestrator(dir *rooms.Directory, flow *Flow, out Broadcaster, bots BotDriver, audioCtl AudioControl, stt ai.Transcriber, extractor ai.ArgumentExtractor, verdicts ai.VerdictGenerator, archive Archiver) *Orchestrator {
	return &Orchestrator{
		dir:       dir,
		flow:      flow,
		out:       out,
		bots:      bots,
		audio:     audioCtl,
		stt:       stt,
		extractor: extractor,
		verdicts:  verdicts,
		archive:   archive,

		inactivityTimeout: defaultInactivityTimeout,
		inactivityWarning: defaultInactivityWarning,
		maxDuration:       defaultMaxDuration,
		maxWarning:        defaultMaxWarning,
		settleDelay:       defaultSettleDelay,
		flushGrace:        defaultFlushGrace,
		tickInterval:      time.Second,

		sessions: make(map[string]*roomSession),
	}
}

// StartDebate moves the room ready→in_progress and opens the first turn.
// The status transition is a compare-and-swap, so the second of two racing
// start requests fails cleanly.
func (o *Orchestrator) StartDebate(roomID string) error {
	if err := o.dir.TransitionStatus(roomID, models.RoomReady, models.RoomInProgress); err != nil {
		return err
	}

	sess := &roomSession{
		roomID:    roomID,
		extracted: make(map[models.SpeechRole]bool),
	}
	sess.timer = NewTimer(TimerCallbacks{
		OnTick:           func(state models.TimerState) { o.onTick(roomID, state) },
		OnSpeechComplete: func(completed, next models.SpeechRole) { o.onSpeechComplete(roomID, completed, next) },
		OnPrepEnd:        func(side models.Side) { o.onPrepEnd(roomID, side) },
		OnDebateComplete: func() { o.onDebateComplete(roomID) },
	})
	sess.timer.SetTickInterval(o.tickInterval)
	sess.timer.Arm()

	o.mu.Lock()
	o.sessions[roomID] = sess
	o.mu.Unlock()

	snap, err := o.dir.Get(roomID)
	if err != nil {
		return err
	}
	if snap.Mode == models.ModePractice {
		if bot := findBot(snap); bot != nil {
			o.bots.Register(roomID, *bot, snap.Resolution)
		}
	}

	o.startWatchdogs(sess)
	o.out.ToRoom(roomID, models.Outbound(models.MsgRoomState, snap))

	log.Printf("debate started in room %s", roomID)
	o.dispatchTurn(sess, models.SpeechOrder[0])
	return nil
}

func findBot(snap models.RoomSnapshot) *models.ParticipantSnapshot {
	for i := range snap.Participants {
		if snap.Participants[i].IsBot {
			return &snap.Participants[i]
		}
	}
	return nil
}

func speakerFor(snap models.RoomSnapshot, role models.SpeechRole) *models.ParticipantSnapshot {
	side := models.SideForRole(role)
	for i := range snap.Participants {
		if snap.Participants[i].Side == side {
			return &snap.Participants[i]
		}
	}
	return nil
}

func listenerFor(snap models.RoomSnapshot, speakerID string) *models.ParticipantSnapshot {
	for i := range snap.Participants {
		if snap.Participants[i].ID != speakerID {
			return &snap.Participants[i]
		}
	}
	return nil
}

// dispatchTurn opens the turn for role. A human's countdown starts
// immediately. A bot's does not: the turn enters a prep phase and the clock
// only starts once the synthesis pipeline reports audio in hand, so
// generation latency never costs the bot speaking time.
func (o *Orchestrator) dispatchTurn(sess *roomSession, role models.SpeechRole) {
	if sess.timer.Phase() != PhaseIdle {
		// The room was force-ended or paused while this dispatch was
		// queued behind the settle delay.
		return
	}
	snap, err := o.dir.Get(sess.roomID)
	if err != nil {
		log.Printf("dispatch turn: %v", err)
		return
	}
	speaker := speakerFor(snap, role)
	if speaker == nil {
		log.Printf("dispatch turn: no speaker holds %s in room %s", models.SideForRole(role), sess.roomID)
		return
	}
	o.dir.SetCurrentSpeech(sess.roomID, role, speaker.ID)

	if speaker.IsBot {
		o.mu.Lock()
		sess.prepBot = true
		o.mu.Unlock()
		o.out.ToRoom(sess.roomID, models.Outbound(models.MsgBotPreparing, map[string]interface{}{
			"speech":        role,
			"participantId": speaker.ID,
		}))
		o.bots.TriggerSpeech(sess.roomID, role)
		return
	}

	sess.timer.StartNextSpeech()
	o.out.ToRoom(sess.roomID, models.Outbound(models.MsgSpeechStart, map[string]interface{}{
		"speech":        role,
		"participantId": speaker.ID,
	}))

	// While the human talks, let the bot draft its answer.
	if next := models.NextRole(role); next != "" {
		if listener := listenerFor(snap, speaker.ID); listener != nil && listener.IsBot {
			o.bots.PreGenerate(sess.roomID, next)
		}
	}
}

// BotAudioReady is the gate callback from the bot pipeline: content and
// first audio exist, so the bot's countdown may start now.
func (o *Orchestrator) BotAudioReady(roomID string) {
	o.mu.Lock()
	sess, ok := o.sessions[roomID]
	if ok && !sess.prepBot {
		ok = false // stale signal, e.g. the speech was skipped during prep
	}
	if ok {
		sess.prepBot = false
	}
	o.mu.Unlock()
	if !ok {
		log.Printf("bot audio ready for %s with no gated turn, ignoring", roomID)
		return
	}

	role := sess.timer.CurrentRole()
	sess.timer.StartNextSpeech()
	o.bots.BeginReveal(roomID)
	snap, err := o.dir.Get(roomID)
	if err != nil {
		return
	}
	if bot := findBot(snap); bot != nil {
		o.out.ToRoom(roomID, models.Outbound(models.MsgSpeechStart, map[string]interface{}{
			"speech":        role,
			"participantId": bot.ID,
		}))
	}
}

// EndSpeech ends the current speech on behalf of requesterID. Only the
// current speaker may end their own speech; in practice rooms the human may
// also skip the bot's turn.
func (o *Orchestrator) EndSpeech(roomID, requesterID string, skippingBot bool) error {
	sess, ok := o.session(roomID)
	if !ok {
		return rooms.ErrRoomNotFound
	}
	snap, err := o.dir.Get(roomID)
	if err != nil {
		return err
	}
	if snap.CurrentSpeaker != requesterID {
		if !skippingBot {
			return rooms.ErrNotYourTurn
		}
		bot := findBot(snap)
		if bot == nil || snap.CurrentSpeaker != bot.ID {
			return rooms.ErrNotYourTurn
		}
		o.bots.Stop(roomID)
		// A skip can land while the bot is still gated in prep. Drop the
		// gate and force the turn through the ordinary completion path.
		o.mu.Lock()
		wasPrep := sess.prepBot
		sess.prepBot = false
		o.mu.Unlock()
		if wasPrep {
			sess.timer.StartNextSpeech()
		}
	}
	o.RecordActivity(roomID)
	sess.timer.EndSpeech()
	return nil
}

// onSpeechComplete runs the turn-boundary side-effects. Ordered carefully:
// the version bump comes first, before anything async is kicked off, so
// in-flight pipeline work from the finished speech fails its fence.
func (o *Orchestrator) onSpeechComplete(roomID string, completed, next models.SpeechRole) {
	sess, ok := o.session(roomID)
	if !ok {
		return
	}
	o.flow.IncrementSpeechVersion(roomID)

	snap, err := o.dir.Get(roomID)
	if err != nil {
		return
	}
	if speaker := speakerFor(snap, completed); speaker != nil {
		o.audio.ClearQueue(speaker.ID)
		if !speaker.IsBot {
			if err := o.stt.EndSession(speaker.ID, true); err != nil {
				log.Printf("end transcription for %s: %v", speaker.ID, err)
			}
		}
	}

	o.out.ToRoom(roomID, models.Outbound(models.MsgSpeechComplete, map[string]interface{}{
		"completed": completed,
		"next":      next,
	}))

	o.extractArguments(sess, snap, completed)

	if next == "" {
		return // onDebateComplete follows from the timer
	}
	// Give client state a beat to settle before the next turn opens.
	time.AfterFunc(o.settleDelay, func() {
		if s, ok := o.session(roomID); ok {
			o.dispatchTurn(s, next)
		}
	})
}

// extractArguments runs extraction over a finished speech's transcript and
// registers it as pending against the room so completion can wait for it.
// The transcript is read after flushGrace, so the tail the transcriber
// flushes at the turn boundary is included.
func (o *Orchestrator) extractArguments(sess *roomSession, snap models.RoomSnapshot, role models.SpeechRole) {
	sess.extractedMu.Lock()
	if sess.extracted[role] {
		sess.extractedMu.Unlock()
		return
	}
	sess.extracted[role] = true
	sess.extractedMu.Unlock()

	sess.pendingExtractions.Add(1)
	go func() {
		defer sess.pendingExtractions.Done()
		time.Sleep(o.flushGrace)
		transcript := o.flow.Transcript(sess.roomID, role)
		if transcript == "" {
			log.Printf("no transcript for %s in room %s, skipping extraction", role, sess.roomID)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
		defer cancel()
		args, err := o.extractor.Extract(ctx, transcript, o.flow.Arguments(sess.roomID), ai.ExtractContext{
			Resolution: snap.Resolution,
			Speech:     role,
			Side:       models.SideForRole(role),
		})
		if err != nil {
			log.Printf("argument extraction failed for %s %s: %v", sess.roomID, role, err)
			return
		}
		o.flow.AddArguments(sess.roomID, args)
	}()
}

// onDebateComplete finishes the round: tear down sessions, wait out pending
// extractions, run a fallback extraction for the final speech if it never
// got one, then judge.
func (o *Orchestrator) onDebateComplete(roomID string) {
	sess, ok := o.session(roomID)
	if !ok {
		return
	}
	if err := o.dir.TransitionStatus(roomID, models.RoomInProgress, models.RoomCompleted); err != nil {
		log.Printf("complete transition for %s: %v", roomID, err)
	}
	o.stopWatchdogs(sess)

	snap, err := o.dir.Get(roomID)
	if err != nil {
		return
	}
	for _, p := range snap.Participants {
		o.audio.ClearQueue(p.ID)
		if !p.IsBot {
			o.stt.EndSession(p.ID, false)
		}
	}
	o.bots.Stop(roomID)

	o.out.ToRoom(roomID, models.Outbound(models.MsgDebateComplete, map[string]interface{}{
		"roomId": roomID,
	}))

	go o.judge(sess, snap)
}

func (o *Orchestrator) judge(sess *roomSession, snap models.RoomSnapshot) {
	waitTimeout(&sess.pendingExtractions, 60*time.Second)

	// Fallback: the final speech's extraction can be missing when the
	// debate was force-ended.
	final := models.SpeechOrder[len(models.SpeechOrder)-1]
	sess.extractedMu.Lock()
	needFinal := !sess.extracted[final]
	sess.extractedMu.Unlock()
	if needFinal {
		o.extractArguments(sess, snap, final)
		waitTimeout(&sess.pendingExtractions, 45*time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	flowSnap := o.flow.Snapshot(sess.roomID)
	verdict, err := o.verdicts.GenerateVerdict(ctx, flowSnap, snap, snap.Resolution)
	if err != nil {
		log.Printf("verdict generation failed for %s: %v", sess.roomID, err)
	} else {
		o.out.ToRoom(sess.roomID, models.Outbound(models.MsgVerdict, verdict))
	}

	if o.archive != nil {
		if err := o.archive.SaveDebate(ctx, snap, flowSnap, verdict); err != nil {
			log.Printf("archive failed for %s: %v", sess.roomID, err)
		}
	}
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		log.Println("timed out waiting for pending extractions")
	}
}

// Pause freezes the active countdown.
func (o *Orchestrator) Pause(roomID string) {
	if sess, ok := o.session(roomID); ok {
		sess.timer.Pause()
		o.out.ToRoom(roomID, models.Outbound(models.MsgTimerUpdate, sess.timer.State()))
	}
}

// Resume restarts the frozen countdown.
func (o *Orchestrator) Resume(roomID string) {
	if sess, ok := o.session(roomID); ok {
		sess.timer.Resume()
		o.out.ToRoom(roomID, models.Outbound(models.MsgTimerUpdate, sess.timer.State()))
	}
}

// StartPrep opens a prep countdown for the requester's side.
func (o *Orchestrator) StartPrep(roomID string, side models.Side) bool {
	sess, ok := o.session(roomID)
	if !ok {
		return false
	}
	o.RecordActivity(roomID)
	started := sess.timer.StartPrep(side)
	if started {
		o.out.ToRoom(roomID, models.Outbound(models.MsgPrepStart, map[string]interface{}{"side": side}))
	}
	return started
}

// EndPrep stops the running prep countdown.
func (o *Orchestrator) EndPrep(roomID string) {
	if sess, ok := o.session(roomID); ok {
		sess.timer.EndPrep()
	}
}

func (o *Orchestrator) onPrepEnd(roomID string, side models.Side) {
	if sess, ok := o.session(roomID); ok {
		o.out.ToRoom(roomID, models.Outbound(models.MsgPrepEnd, map[string]interface{}{"side": side}))
		o.out.ToRoom(roomID, models.Outbound(models.MsgTimerUpdate, sess.timer.State()))
	}
}

func (o *Orchestrator) onTick(roomID string, state models.TimerState) {
	o.out.ToRoom(roomID, models.Outbound(models.MsgTimerUpdate, state))
}

// RecordActivity resets the inactivity watchdog. Called on audio and
// signaling traffic.
func (o *Orchestrator) RecordActivity(roomID string) {
	sess, ok := o.session(roomID)
	if !ok {
		return
	}
	o.mu.Lock()
	if sess.inactivityWarn != nil {
		sess.inactivityWarn.Reset(o.inactivityTimeout - o.inactivityWarning)
	}
	if sess.inactivityKill != nil {
		sess.inactivityKill.Reset(o.inactivityTimeout)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) startWatchdogs(sess *roomSession) {
	roomID := sess.roomID
	o.mu.Lock()
	sess.inactivityWarn = time.AfterFunc(o.inactivityTimeout-o.inactivityWarning, func() {
		o.warn(roomID, "inactivity", o.inactivityWarning)
	})
	sess.inactivityKill = time.AfterFunc(o.inactivityTimeout, func() {
		o.forceEnd(roomID, "inactivity")
	})
	sess.maxWarn = time.AfterFunc(o.maxDuration-o.maxWarning, func() {
		o.warn(roomID, "max_duration", o.maxWarning)
	})
	sess.maxKill = time.AfterFunc(o.maxDuration, func() {
		o.forceEnd(roomID, "max_duration")
	})
	o.mu.Unlock()
}

func (o *Orchestrator) stopWatchdogs(sess *roomSession) {
	o.mu.Lock()
	for _, t := range []*time.Timer{sess.inactivityWarn, sess.inactivityKill, sess.maxWarn, sess.maxKill} {
		if t != nil {
			t.Stop()
		}
	}
	sess.inactivityWarn, sess.inactivityKill, sess.maxWarn, sess.maxKill = nil, nil, nil, nil
	o.mu.Unlock()
}

func (o *Orchestrator) warn(roomID, reason string, remaining time.Duration) {
	o.out.ToRoom(roomID, models.Outbound(models.MsgTimeoutWarning, map[string]interface{}{
		"reason":           reason,
		"secondsRemaining": int(remaining.Seconds()),
	}))
}

// forceEnd is the watchdog path: not an error, an ordinary debate end. The
// remaining speeches are walked through the normal completion machinery so
// every per-speech side-effect still runs.
func (o *Orchestrator) forceEnd(roomID, reason string) {
	sess, ok := o.session(roomID)
	if !ok {
		return
	}
	log.Printf("room %s force-ended: %s", roomID, reason)
	o.bots.Stop(roomID)
	o.mu.Lock()
	sess.prepBot = false
	o.mu.Unlock()

	for sess.timer.Phase() != PhaseComplete {
		switch sess.timer.Phase() {
		case PhasePrep:
			sess.timer.EndPrep()
		case PhasePaused:
			sess.timer.Resume()
		case PhaseIdle:
			sess.timer.StartNextSpeech()
		case PhaseSpeaking:
			sess.timer.EndSpeech()
		}
	}
}

// CleanupRoom releases everything the orchestrator holds for a room:
// timers, watchdogs, audio lanes, transcription sessions, bot state, flow.
// Safe to call for rooms that never started.
func (o *Orchestrator) CleanupRoom(roomID string) {
	o.mu.Lock()
	sess, ok := o.sessions[roomID]
	delete(o.sessions, roomID)
	o.mu.Unlock()

	if ok {
		o.stopWatchdogs(sess)
		sess.timer.Stop()
	}
	if snap, err := o.dir.Get(roomID); err == nil {
		for _, p := range snap.Participants {
			o.audio.DropLane(p.ID)
			if !p.IsBot {
				o.stt.EndSession(p.ID, false)
			}
		}
	}
	o.bots.Unregister(roomID)
	o.flow.Drop(roomID)
}

// TimerState exposes a room's countdown state for late joiners.
func (o *Orchestrator) TimerState(roomID string) (models.TimerState, bool) {
	if sess, ok := o.session(roomID); ok {
		return sess.timer.State(), true
	}
	return models.TimerState{}, false
}

func (o *Orchestrator) session(roomID string) (*roomSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess, ok := o.sessions[roomID]
	return sess, ok
}
