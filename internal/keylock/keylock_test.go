package keylock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocker_TryLockBlocksSameKey(t *testing.T) {
	l := New()
	assert.True(t, l.TryLock("orders"))
	assert.False(t, l.TryLock("orders"), "same key must not lock twice concurrently")
	l.Unlock("orders")
	assert.True(t, l.TryLock("orders"), "key must be lockable again after Unlock")
	l.Unlock("orders")
}

func TestLocker_DifferentKeysDoNotBlockEachOther(t *testing.T) {
	l := New()
	assert.True(t, l.TryLock("orders"))
	assert.True(t, l.TryLock("customers"))
	l.Unlock("orders")
	l.Unlock("customers")
}
