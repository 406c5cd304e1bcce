package rooms

import "errors"

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room full")
	ErrRoomBusy       = errors.New("debate already started")
	ErrNotInRoom      = errors.New("participant not in room")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrBadTransition  = errors.New("invalid status transition")
	ErrSessionInvalid = errors.New("session invalid or expired")
)

// SideTakenError reports a side claim that lost to the other participant.
// The holder name goes back to the client verbatim.
type SideTakenError struct {
	Holder string
}

func (e *SideTakenError) Error() string {
	return "side already taken by " + e.Holder
}
