package models

// Argument is one extracted claim/warrant/impact unit from a speech.
// Appended to the room flow by the argument-extraction stage, never mutated
// in place except for Status.
type Argument struct {
	ID         string     `json:"id" bson:"id"`
	Speech     SpeechRole `json:"speech" bson:"speech"`
	Side       Side       `json:"side" bson:"side"`
	Claim      string     `json:"claim" bson:"claim"`
	Warrant    string     `json:"warrant,omitempty" bson:"warrant,omitempty"`
	Impact     string     `json:"impact,omitempty" bson:"impact,omitempty"`
	RespondsTo []string   `json:"respondsTo,omitempty" bson:"respondsTo,omitempty"`
	Status     string     `json:"status,omitempty" bson:"status,omitempty"` // standing, answered, dropped
}

// FlowSnapshot is the accumulated transcript + argument graph for a room,
// as handed to the verdict stage and the archive.
type FlowSnapshot struct {
	Transcripts map[SpeechRole]string `json:"transcripts" bson:"transcripts"`
	Arguments   []Argument            `json:"arguments" bson:"arguments"`
}

// Verdict is the final outcome payload produced once per completed debate.
type Verdict struct {
	Winner    Side   `json:"winner" bson:"winner"`
	Reasoning string `json:"reasoning" bson:"reasoning"`
	AffPoints int    `json:"affPoints" bson:"affPoints"`
	NegPoints int    `json:"negPoints" bson:"negPoints"`
}
