package bot

import "time"

// Persona is one canned bot opponent. The style hint steers generation; the
// thinking delay makes the bot feel like it composes its speech rather than
// answering instantly.
type Persona struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	VoiceID       string        `json:"voiceId"`
	Style         string        `json:"style"`
	ThinkingDelay time.Duration `json:"-"`
}

var personas = []Persona{
	{
		ID:            "scholar",
		Name:          "Professor Reed",
		VoiceID:       "en-us-ryan",
		Style:         "measured and evidence-heavy, cites principles before examples",
		ThinkingDelay: 3 * time.Second,
	},
	{
		ID:            "firebrand",
		Name:          "Vex",
		VoiceID:       "en-us-amy",
		Style:         "aggressive and fast, attacks the opponent's framework directly",
		ThinkingDelay: 2 * time.Second,
	},
	{
		ID:            "pragmatist",
		Name:          "Jordan Okafor",
		VoiceID:       "en-us-joe",
		Style:         "plainspoken, weighs real-world impacts over theory",
		ThinkingDelay: 4 * time.Second,
	},
}

// Personas returns the fixed persona catalog.
func Personas() []Persona {
	out := make([]Persona, len(personas))
	copy(out, personas)
	return out
}

// PersonaByID looks up a persona, defaulting to the first when the id is
// unknown so a stale client can still start a practice room.
func PersonaByID(id string) Persona {
	for _, p := range personas {
		if p.ID == id {
			return p
		}
	}
	return personas[0]
}
