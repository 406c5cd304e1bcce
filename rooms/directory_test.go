package rooms

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossfire/models"
)

func TestCreateRoomCode(t *testing.T) {
	d := NewDirectory()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		snap := d.Create("host", "room", "resolved: testing is good")
		require.Len(t, snap.Code, 6)
		for _, r := range snap.Code {
			assert.Contains(t, codeAlphabet, string(r), "code %q uses a glyph outside the alphabet", snap.Code)
		}
		assert.False(t, seen[snap.Code], "duplicate code %q among active rooms", snap.Code)
		seen[snap.Code] = true
	}
}

func TestJoinCapacity(t *testing.T) {
	d := NewDirectory()
	snap := d.Create("host", "room", "r")

	_, _, err := d.AddParticipant(snap.ID, "second")
	require.NoError(t, err)

	_, _, err = d.AddParticipant(snap.ID, "third")
	assert.ErrorIs(t, err, ErrRoomFull)

	_, _, err = d.AddParticipant("nope", "x")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	d := NewDirectory()
	snap := d.Create("host", "room", "r")

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := d.AddParticipant(snap.ID, "racer")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	admitted := 0
	for err := range errs {
		if err == nil {
			admitted++
		} else {
			assert.ErrorIs(t, err, ErrRoomFull)
		}
	}
	assert.Equal(t, 1, admitted, "exactly one racer fits beside the host")

	got, err := d.Get(snap.ID)
	require.NoError(t, err)
	assert.Len(t, got.Participants, models.MaxParticipants)
}

func TestSetSideConflict(t *testing.T) {
	d := NewDirectory()
	snap := d.Create("alice", "room", "r")
	_, bobID, err := d.AddParticipant(snap.ID, "bob")
	require.NoError(t, err)

	_, err = d.SetSide(snap.ID, snap.HostID, models.SideAff)
	require.NoError(t, err)

	_, err = d.SetSide(snap.ID, bobID, models.SideAff)
	var taken *SideTakenError
	require.True(t, errors.As(err, &taken))
	assert.Equal(t, "alice", taken.Holder)

	// Re-claiming your own side is fine, and switching is fine.
	_, err = d.SetSide(snap.ID, snap.HostID, models.SideAff)
	assert.NoError(t, err)
	_, err = d.SetSide(snap.ID, bobID, models.SideNeg)
	assert.NoError(t, err)
}

func TestReadinessDerivedOnce(t *testing.T) {
	d := NewDirectory()
	snap := d.Create("alice", "room", "r")
	_, bobID, err := d.AddParticipant(snap.ID, "bob")
	require.NoError(t, err)

	d.SetSide(snap.ID, snap.HostID, models.SideAff)
	d.SetSide(snap.ID, bobID, models.SideNeg)

	got, err := d.SetReady(snap.ID, snap.HostID, true)
	require.NoError(t, err)
	assert.Equal(t, models.RoomWaiting, got.Status, "one ready participant is not enough")

	got, err = d.SetReady(snap.ID, bobID, true)
	require.NoError(t, err)
	assert.Equal(t, models.RoomReady, got.Status)

	// Further updates keep it ready, they don't re-flip anything.
	got, err = d.UpdateParticipant(snap.ID, bobID, "bobby", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.RoomReady, got.Status)

	// Un-readying drops the room back to waiting.
	got, err = d.SetReady(snap.ID, bobID, false)
	require.NoError(t, err)
	assert.Equal(t, models.RoomWaiting, got.Status)
}

func TestTransitionStatusCompareAndSwap(t *testing.T) {
	d := NewDirectory()
	snap := d.Create("alice", "room", "r")
	_, bobID, _ := d.AddParticipant(snap.ID, "bob")
	d.SetSide(snap.ID, snap.HostID, models.SideAff)
	d.SetSide(snap.ID, bobID, models.SideNeg)
	d.SetReady(snap.ID, snap.HostID, true)
	d.SetReady(snap.ID, bobID, true)

	require.NoError(t, d.TransitionStatus(snap.ID, models.RoomReady, models.RoomInProgress))
	// The racing second start request fails the compare.
	assert.ErrorIs(t, d.TransitionStatus(snap.ID, models.RoomReady, models.RoomInProgress), ErrBadTransition)
}

func TestJoinAfterStartRejected(t *testing.T) {
	d := NewDirectory()
	snap := d.Create("alice", "room", "r")
	_, bobID, _ := d.AddParticipant(snap.ID, "bob")
	d.RemoveParticipant(snap.ID, bobID)

	d.SetSide(snap.ID, snap.HostID, models.SideAff)
	// Force in_progress directly; a one-participant room cannot become
	// ready, but busy-rejection only depends on the status.
	d.TransitionStatus(snap.ID, models.RoomWaiting, models.RoomInProgress)

	_, _, err := d.AddParticipant(snap.ID, "late")
	assert.ErrorIs(t, err, ErrRoomBusy)
}

func TestCreateBotRoom(t *testing.T) {
	d := NewDirectory()
	snap := d.CreateBotRoom("alice", "practice", "r", models.SideAff, "scholar", "Professor Reed", "en")

	assert.Equal(t, models.RoomReady, snap.Status, "bot rooms are born ready")
	assert.Equal(t, models.ModePractice, snap.Mode)
	require.Len(t, snap.Participants, 2)

	var bot *models.ParticipantSnapshot
	for i := range snap.Participants {
		if snap.Participants[i].IsBot {
			bot = &snap.Participants[i]
		}
	}
	require.NotNil(t, bot)
	assert.Equal(t, models.SideNeg, bot.Side, "bot takes the opposite side")
	assert.Equal(t, "scholar", bot.PersonaID)
	assert.True(t, bot.Ready)
}

func TestRemoveLastHumanDestroysRoom(t *testing.T) {
	d := NewDirectory()
	snap := d.CreateBotRoom("alice", "practice", "r", models.SideAff, "scholar", "Professor Reed", "en")

	empty, _, err := d.RemoveParticipant(snap.ID, snap.HostID)
	require.NoError(t, err)
	assert.True(t, empty, "a room holding only the bot is empty")

	_, err = d.Get(snap.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, ok := d.ResolveCode(snap.Code)
	assert.False(t, ok)
}

func TestReapIdle(t *testing.T) {
	d := NewDirectory()
	snap := d.Create("alice", "room", "r")

	reaped := d.ReapIdle(time.Now())
	assert.Empty(t, reaped, "fresh rooms survive the reaper")

	reaped = d.ReapIdle(time.Now().Add(time.Hour))
	require.Len(t, reaped, 1)
	assert.Equal(t, snap.ID, reaped[0])
	_, err := d.Get(snap.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestSnapshotIsDetached(t *testing.T) {
	d := NewDirectory()
	snap := d.Create("alice", "room", "r")
	snap.Participants[0].Name = "mallory"

	got, err := d.Get(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Participants[0].Name)
	assert.False(t, strings.Contains(got.Participants[0].Name, "mallory"))
}
