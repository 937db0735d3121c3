package hashkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf_DeterministicForSameInputs(t *testing.T) {
	a := Of([]byte("field"), []byte("str"))
	b := Of([]byte("field"), []byte("str"))
	assert.Equal(t, a, b)
}

func TestOf_DiffersForDifferentInputs(t *testing.T) {
	a := Of([]byte("field"), []byte("str"))
	b := Of([]byte("field"), []byte("int"))
	assert.NotEqual(t, a, b)
}

func TestOfStrings_MatchesOfWithByteConversion(t *testing.T) {
	assert.Equal(t, Of([]byte("a"), []byte("b")), OfStrings("a", "b"))
}
