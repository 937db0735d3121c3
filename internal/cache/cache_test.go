package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot_SetGetInvalidate(t *testing.T) {
	s := New(50 * time.Millisecond)

	_, ok := s.Get("decisions")
	assert.False(t, ok)

	s.Set("decisions", map[string]int{"a": 1})
	v, ok := s.Get("decisions")
	assert.True(t, ok)
	assert.Equal(t, map[string]int{"a": 1}, v)

	s.Invalidate("decisions")
	_, ok = s.Get("decisions")
	assert.False(t, ok)
}

func TestSnapshot_EntryExpiresAfterTTL(t *testing.T) {
	s := New(10 * time.Millisecond)
	s.Set("field-stats", 42)
	time.Sleep(40 * time.Millisecond)
	_, ok := s.Get("field-stats")
	assert.False(t, ok, "entry should have expired")
}
