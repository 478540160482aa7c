package profile

import (
	"strings"

	"circlenet/backend/internal/graph"
)

// MaxTopVibes is the number of vibes kept on a profile
const MaxTopVibes = graph.MaxTopVibes

// Intensity bounds for a vibe reaction
const (
	MinIntensity = 1
	MaxIntensity = 5
)

var vibeCatalogue = []string{
	"Inspiring",
	"Helpful",
	"Kind",
	"Creative",
	"Reliable",
	"Funny",
	"Knowledgeable",
	"Supportive",
	"Honest",
	"Motivated",
	"Friendly",
	"Leader",
}

// Catalogue returns the vibes a user can react with
func Catalogue() []string {
	out := make([]string, len(vibeCatalogue))
	copy(out, vibeCatalogue)
	return out
}

// canonicalVibe resolves a vibe name ignoring case
func canonicalVibe(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, v := range vibeCatalogue {
		if strings.EqualFold(v, name) {
			return v, true
		}
	}
	return "", false
}
