package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpeechOrderAlternatesFromAff(t *testing.T) {
	assert.Equal(t, SpeechAC, SpeechOrder[0])
	assert.Equal(t, SideAff, SpeechSides[0], "affirmative always opens")

	for i, role := range SpeechOrder {
		assert.Equal(t, SpeechSides[i], SideForRole(role))
	}
}

func TestDurationForRole(t *testing.T) {
	assert.Equal(t, 6*time.Minute, DurationForRole(SpeechAC))
	assert.Equal(t, 7*time.Minute, DurationForRole(SpeechNC))
	assert.Equal(t, 3*time.Minute, DurationForRole(Speech2AR))
	assert.Zero(t, DurationForRole("XYZ"))
}

func TestNextRole(t *testing.T) {
	assert.Equal(t, SpeechNC, NextRole(SpeechAC))
	assert.Equal(t, Speech1AR, NextRole(SpeechNC))
	assert.Equal(t, SpeechRole(""), NextRole(Speech2AR), "last speech has no successor")
	assert.Equal(t, SpeechRole(""), NextRole("XYZ"))
}

func TestRoleIndex(t *testing.T) {
	for i, role := range SpeechOrder {
		assert.Equal(t, i, RoleIndex(role))
	}
	assert.Equal(t, -1, RoleIndex(""))
}
