package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExhausted(t *testing.T) {
	assert.False(t, Exhausted(0))
	assert.False(t, Exhausted(4))
	assert.True(t, Exhausted(5))
	assert.True(t, Exhausted(6))
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 5, Remaining(0))
	assert.Equal(t, 1, Remaining(4))
	assert.Equal(t, 0, Remaining(5))
	assert.Equal(t, 0, Remaining(9))
}
