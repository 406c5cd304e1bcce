package debate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossfire/models"
)

func TestTranscriptAccumulates(t *testing.T) {
	f := NewFlow()
	f.AddTranscript("room", models.SpeechAC, "Resolved: this house")
	f.AddTranscript("room", models.SpeechAC, "believes in testing.")
	f.AddTranscript("room", models.SpeechAC, "")

	assert.Equal(t, "Resolved: this house believes in testing.", f.Transcript("room", models.SpeechAC))
	assert.Empty(t, f.Transcript("room", models.SpeechNC))
	assert.Empty(t, f.Transcript("other", models.SpeechAC))
}

func TestSetTranscriptReplaces(t *testing.T) {
	f := NewFlow()
	f.AddTranscript("room", models.SpeechNC, "partial")
	f.SetTranscript("room", models.SpeechNC, "the whole speech at once")

	assert.Equal(t, "the whole speech at once", f.Transcript("room", models.SpeechNC))
}

func TestVersionMovesOncePerSpeech(t *testing.T) {
	f := NewFlow()
	assert.Zero(t, f.Version("room"))

	captured := f.Version("room")
	f.AddTranscript("room", models.SpeechAC, "hello")
	assert.True(t, f.IsCurrent("room", captured), "nothing ended yet")

	v := f.IncrementSpeechVersion("room")
	assert.Equal(t, 1, v)
	assert.False(t, f.IsCurrent("room", captured), "work from the ended speech is stale")
	assert.True(t, f.IsCurrent("room", v))
}

func TestIsCurrentAfterDrop(t *testing.T) {
	f := NewFlow()
	f.AddTranscript("room", models.SpeechAC, "hello")
	captured := f.Version("room")
	f.Drop("room")

	assert.False(t, f.IsCurrent("room", captured), "dead rooms fence everything out")
}

func TestArgumentsBySide(t *testing.T) {
	f := NewFlow()
	f.AddArguments("room", []models.Argument{
		{ID: "a1", Speech: models.SpeechAC, Side: models.SideAff, Claim: "testing works"},
		{ID: "a2", Speech: models.SpeechNC, Side: models.SideNeg, Claim: "testing is slow"},
		{ID: "a3", Speech: models.Speech1AR, Side: models.SideAff, Claim: "slow beats broken"},
	})

	aff := f.ArgumentsBySide("room", models.SideAff)
	require.Len(t, aff, 2)
	assert.Equal(t, "a1", aff[0].ID)
	assert.Equal(t, "a3", aff[1].ID)
	assert.Len(t, f.ArgumentsBySide("room", models.SideNeg), 1)
	assert.Len(t, f.Arguments("room"), 3)
}

func TestArgumentsReturnsCopy(t *testing.T) {
	f := NewFlow()
	f.AddArguments("room", []models.Argument{{ID: "a1", Side: models.SideAff}})

	got := f.Arguments("room")
	got[0].ID = "mutated"
	assert.Equal(t, "a1", f.Arguments("room")[0].ID)
}

func TestSnapshotIsDetached(t *testing.T) {
	f := NewFlow()
	f.AddTranscript("room", models.SpeechAC, "hello")
	f.AddArguments("room", []models.Argument{{ID: "a1", Side: models.SideAff}})

	snap := f.Snapshot("room")
	snap.Transcripts[models.SpeechAC] = "mutated"
	snap.Arguments[0].ID = "mutated"

	assert.Equal(t, "hello", f.Transcript("room", models.SpeechAC))
	assert.Equal(t, "a1", f.Arguments("room")[0].ID)
}
