package audio

// Voice is one synthesis voice clients may select.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

var voiceCatalog = []Voice{
	{ID: "en-us-ryan", Name: "Ryan", Language: "en"},
	{ID: "en-us-amy", Name: "Amy", Language: "en"},
	{ID: "en-us-joe", Name: "Joe", Language: "en"},
	{ID: "es-mx-claudia", Name: "Claudia", Language: "es"},
	{ID: "fr-fr-gilles", Name: "Gilles", Language: "fr"},
	{ID: "de-de-thorsten", Name: "Thorsten", Language: "de"},
	{ID: "hi-in-pratham", Name: "Pratham", Language: "hi"},
	{ID: "zh-cn-huayan", Name: "Huayan", Language: "zh"},
}

// Voices returns the fixed voice catalog.
func Voices() []Voice {
	out := make([]Voice, len(voiceCatalog))
	copy(out, voiceCatalog)
	return out
}
