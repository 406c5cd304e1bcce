package models

// TimerState is the client-visible countdown state. Mutated only by the
// debate timer machine; everything else reads copies.
type TimerState struct {
	SpeechTimeRemaining int        `json:"speechTimeRemaining"` // seconds
	PrepTimeAff         int        `json:"prepTimeAff"`         // seconds
	PrepTimeNeg         int        `json:"prepTimeNeg"`         // seconds
	IsRunning           bool       `json:"isRunning"`
	CurrentSpeech       SpeechRole `json:"currentSpeech,omitempty"`
	IsPrepTime          bool       `json:"isPrepTime"`
	PrepSide            Side       `json:"prepSide,omitempty"`
}
