package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSleptFor_ZeroRetriesIsZero(t *testing.T) {
	assert.Equal(t, time.Duration(0), SleptFor(0, 100*time.Millisecond, time.Second))
}

func TestSleptFor_NeverExceedsMaximum(t *testing.T) {
	for retries := int64(1); retries < 40; retries++ {
		d := SleptFor(retries, 50*time.Millisecond, 2*time.Second)
		assert.LessOrEqual(t, d, 2*time.Second)
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}
}

func TestSleptFor_ZeroSlotIsZero(t *testing.T) {
	assert.Equal(t, time.Duration(0), SleptFor(5, 0, time.Second))
}
