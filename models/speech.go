package models

import "time"

// Side is which half of the debate a participant argues for.
type Side string

const (
	SideAff        Side = "AFF"
	SideNeg        Side = "NEG"
	SideUnassigned Side = ""
)

// SpeechRole is one of the five fixed turns in a debate.
type SpeechRole string

const (
	SpeechAC  SpeechRole = "AC"  // affirmative constructive
	SpeechNC  SpeechRole = "NC"  // negative constructive
	Speech1AR SpeechRole = "1AR" // first affirmative rebuttal
	SpeechNR  SpeechRole = "NR"  // negative rebuttal
	Speech2AR SpeechRole = "2AR" // second affirmative rebuttal
)

// SpeechOrder is the fixed turn sequence. Index into it with a speech index
// from the timer machine; it never changes at runtime.
var SpeechOrder = [5]SpeechRole{SpeechAC, SpeechNC, Speech1AR, SpeechNR, Speech2AR}

// SpeechDurations holds the per-role speaking time, LD-style timings.
var SpeechDurations = [5]time.Duration{
	6 * time.Minute, // AC
	7 * time.Minute, // NC
	4 * time.Minute, // 1AR
	6 * time.Minute, // NR
	3 * time.Minute, // 2AR
}

// SpeechSides maps each slot in SpeechOrder to the side that speaks it.
var SpeechSides = [5]Side{SideAff, SideNeg, SideAff, SideNeg, SideAff}

// PrepBudget is the per-side prep bank, usable between speeches.
const PrepBudget = 4 * time.Minute

// RoleIndex returns the slot of role in SpeechOrder, or -1 if role is not a
// valid speech role.
func RoleIndex(role SpeechRole) int {
	for i, r := range SpeechOrder {
		if r == role {
			return i
		}
	}
	return -1
}

// SideForRole returns which side speaks the given role.
func SideForRole(role SpeechRole) Side {
	if i := RoleIndex(role); i >= 0 {
		return SpeechSides[i]
	}
	return SideUnassigned
}

// DurationForRole returns the speaking time for the given role.
func DurationForRole(role SpeechRole) time.Duration {
	if i := RoleIndex(role); i >= 0 {
		return SpeechDurations[i]
	}
	return 0
}

// NextRole returns the role after the given one, or "" when role is the last
// speech of the debate.
func NextRole(role SpeechRole) SpeechRole {
	i := RoleIndex(role)
	if i < 0 || i+1 >= len(SpeechOrder) {
		return ""
	}
	return SpeechOrder[i+1]
}
