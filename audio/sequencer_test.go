package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossfire/ai"
)

// blockingSynth holds each call until released so tests control when a lane
// frees up. It records call order and the params it was handed.
type blockingSynth struct {
	mu      sync.Mutex
	calls   []string
	params  []ai.SynthesisParams
	release chan struct{}
	started chan struct{}
}

func newBlockingSynth() *blockingSynth {
	return &blockingSynth{
		release: make(chan struct{}),
		started: make(chan struct{}, 16),
	}
}

func (b *blockingSynth) Synthesize(ctx context.Context, text, language string, params ai.SynthesisParams, onChunk func(chunk []byte)) error {
	b.mu.Lock()
	b.calls = append(b.calls, text)
	b.params = append(b.params, params)
	b.mu.Unlock()
	b.started <- struct{}{}

	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	onChunk([]byte(text))
	return nil
}

func (b *blockingSynth) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

func TestQueueRunsImmediatelyWhenIdle(t *testing.T) {
	synth := newBlockingSynth()
	seq := NewSequencer(synth)

	done := make(chan struct{})
	seq.Queue("alice", Request{Text: "first"}, Callbacks{OnComplete: func() { close(done) }})

	<-synth.started
	assert.True(t, seq.Generating("alice"))

	close(synth.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}
	require.Eventually(t, func() bool { return !seq.Generating("alice") }, time.Second, 5*time.Millisecond)
}

func TestSingleInFlightFIFO(t *testing.T) {
	synth := newBlockingSynth()
	seq := NewSequencer(synth)

	var mu sync.Mutex
	var completed []string
	allDone := make(chan struct{})
	cb := func(text string) Callbacks {
		return Callbacks{OnComplete: func() {
			mu.Lock()
			completed = append(completed, text)
			n := len(completed)
			mu.Unlock()
			if n == 3 {
				close(allDone)
			}
		}}
	}

	seq.Queue("alice", Request{Text: "one"}, cb("one"))
	<-synth.started
	seq.Queue("alice", Request{Text: "two"}, cb("two"))
	seq.Queue("alice", Request{Text: "three"}, cb("three"))

	// Only the first call is in flight while the others wait.
	assert.Len(t, synth.texts(), 1)

	close(synth.release)
	select {
	case <-allDone:
	case <-time.After(2 * time.Second):
		t.Fatal("queued requests never drained")
	}

	assert.Equal(t, []string{"one", "two", "three"}, synth.texts())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one", "two", "three"}, completed)
}

func TestLanesAreIndependent(t *testing.T) {
	synth := newBlockingSynth()
	seq := NewSequencer(synth)

	seq.Queue("alice", Request{Text: "alice-1"}, Callbacks{})
	seq.Queue("bob", Request{Text: "bob-1"}, Callbacks{})

	// Both lanes start without waiting on each other.
	<-synth.started
	<-synth.started
	assert.Len(t, synth.texts(), 2)
	close(synth.release)
}

func TestClearQueueDropsPendingAndCancelsInFlight(t *testing.T) {
	synth := newBlockingSynth()
	seq := NewSequencer(synth)

	var mu sync.Mutex
	var errs, completes int
	seq.Queue("alice", Request{Text: "speaking"}, Callbacks{
		OnError: func(err error) {
			mu.Lock()
			errs++
			mu.Unlock()
		},
	})
	<-synth.started
	seq.Queue("alice", Request{Text: "queued"}, Callbacks{
		OnComplete: func() {
			mu.Lock()
			completes++
			mu.Unlock()
		},
	})

	seq.ClearQueue("alice")

	// The in-flight call sees its context cancelled; the queued one never runs.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return errs == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, synth.texts(), 1)
	mu.Lock()
	assert.Zero(t, completes)
	mu.Unlock()
}

func TestVoiceSelection(t *testing.T) {
	synth := newBlockingSynth()
	seq := NewSequencer(synth)

	assert.Equal(t, DefaultVoice, seq.Voice("alice"))
	seq.SetVoice("alice", "en-gb-alba")
	assert.Equal(t, "en-gb-alba", seq.Voice("alice"))

	seq.Queue("alice", Request{Text: "hello"}, Callbacks{})
	<-synth.started
	close(synth.release)

	synth.mu.Lock()
	defer synth.mu.Unlock()
	require.Len(t, synth.params, 1)
	assert.Equal(t, "en-gb-alba", synth.params[0].VoiceID)
}

func TestParamsFor(t *testing.T) {
	neutral := ParamsFor("v", nil)
	assert.Equal(t, 0.75, neutral.Stability)
	assert.Equal(t, 1.0, neutral.Pacing)

	aggressive := ParamsFor("v", &ai.EmotionReading{Dominant: "aggressive"})
	assert.Equal(t, 0.35, aggressive.Stability)
	assert.Equal(t, 1.2, aggressive.Pacing)

	unknown := ParamsFor("v", &ai.EmotionReading{Dominant: "bewildered"})
	assert.Equal(t, neutral.Stability, unknown.Stability, "unknown emotions fall back to neutral")
	assert.Equal(t, "v", unknown.VoiceID)
}
