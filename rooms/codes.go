package rooms

import "math/rand"

// codeAlphabet omits glyphs players misread when typing a code off a
// friend's screen: I, L, O, 0, 1.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 6

func randomCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}
