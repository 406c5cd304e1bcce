package rooms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionResolve(t *testing.T) {
	r := NewSessionRegistry()
	token := r.Create("conn-1", "room-1", "part-1", "alice")
	require.NotEmpty(t, token)

	sess, ok := r.Resolve("conn-1")
	require.True(t, ok)
	assert.Equal(t, "part-1", sess.ParticipantID)
	assert.Equal(t, "room-1", sess.RoomID)

	_, ok = r.Resolve("conn-2")
	assert.False(t, ok)
}

func TestRejoinWithinGraceKeepsIdentity(t *testing.T) {
	r := NewSessionRegistry()
	token := r.Create("conn-1", "room-1", "part-1", "alice")

	_, ok := r.MarkDisconnected("conn-1")
	require.True(t, ok)
	_, ok = r.Resolve("conn-1")
	assert.False(t, ok, "old connection no longer resolves")

	sess, err := r.Rejoin(token, "conn-2")
	require.NoError(t, err)
	assert.Equal(t, "part-1", sess.ParticipantID, "rejoin preserves the logical participant")
	assert.Equal(t, "room-1", sess.RoomID)

	sess, ok = r.Resolve("conn-2")
	require.True(t, ok)
	assert.Equal(t, "part-1", sess.ParticipantID)
}

func TestRejoinAfterExpiryRejected(t *testing.T) {
	r := NewSessionRegistry()
	token := r.Create("conn-1", "room-1", "part-1", "alice")
	r.MarkDisconnected("conn-1")

	expired := r.Sweep(time.Now().Add(GracePeriod + time.Second))
	require.Len(t, expired, 1)
	assert.Equal(t, "part-1", expired[0].ParticipantID)

	_, err := r.Rejoin(token, "conn-2")
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestSweepIgnoresConnectedSessions(t *testing.T) {
	r := NewSessionRegistry()
	r.Create("conn-1", "room-1", "part-1", "alice")

	expired := r.Sweep(time.Now().Add(24 * time.Hour))
	assert.Empty(t, expired, "connected sessions have no deadline")
}

func TestRejoinInvalidToken(t *testing.T) {
	r := NewSessionRegistry()
	_, err := r.Rejoin("no-such-token", "conn-1")
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestRemove(t *testing.T) {
	r := NewSessionRegistry()
	token := r.Create("conn-1", "room-1", "part-1", "alice")
	r.Remove(token)

	_, ok := r.Resolve("conn-1")
	assert.False(t, ok)
	_, err := r.Rejoin(token, "conn-2")
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestRemoveByParticipant(t *testing.T) {
	r := NewSessionRegistry()
	token := r.Create("conn-1", "room-1", "part-1", "alice")
	r.RemoveByParticipant("part-1")

	_, err := r.Rejoin(token, "conn-2")
	assert.ErrorIs(t, err, ErrSessionInvalid)
}
