package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalVibe(t *testing.T) {
	name, ok := canonicalVibe("  kNOWLEDGEABLE ")
	assert.True(t, ok)
	assert.Equal(t, "Knowledgeable", name)

	_, ok = canonicalVibe("Grumpy")
	assert.False(t, ok)
	assert.Len(t, Catalogue(), 12)
}
