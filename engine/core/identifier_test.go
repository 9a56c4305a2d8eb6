package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamer(t *testing.T) {
	n := NewNamer()
	assert.Len(t, n.Short(), 8)
	assert.NotEqual(t, NewNamer().Short(), n.Short())

	assert.Equal(t, "UploadArena#0", n.Next("UploadArena"))
	assert.Equal(t, "UploadArena#1", n.Next("UploadArena"))
	assert.Equal(t, "Texture#0", n.Next("Texture"))

	other := NewNamer()
	assert.Equal(t, "UploadArena#0", other.Next("UploadArena"), "counters are per instance")
}
