package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLastWriteWins(t *testing.T) {
	s := NewSessionStore()

	s.Set("p1", "initial_analysis", `{"gaps":["a"]}`)
	s.Set("p1", "initial_analysis", `{"gaps":["b"]}`)

	doc, ok := s.Get("p1", "initial_analysis")
	require.True(t, ok)
	assert.Equal(t, `{"gaps":["b"]}`, doc.Content)
}

func TestSessionIsolatedByProject(t *testing.T) {
	s := NewSessionStore()

	s.Set("p1", "k", "one")
	s.Set("p2", "k", "two")

	d1, _ := s.Get("p1", "k")
	d2, _ := s.Get("p2", "k")
	assert.Equal(t, "one", d1.Content)
	assert.Equal(t, "two", d2.Content)

	_, ok := s.Get("p3", "k")
	assert.False(t, ok)
}

func TestSessionClear(t *testing.T) {
	s := NewSessionStore()

	s.Set("p1", "a", "1")
	s.Set("p1", "b", "2")
	assert.Len(t, s.All("p1"), 2)

	s.Clear("p1")
	assert.Empty(t, s.All("p1"))
	_, ok := s.Get("p1", "a")
	assert.False(t, ok)
}
