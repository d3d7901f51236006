package companionservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateStartupHealthTimeout(t *testing.T) {
	assert.Equal(t, 60, calculateStartupHealthTimeout(15))
	assert.Equal(t, 60, calculateStartupHealthTimeout(30))
	assert.Equal(t, 120, calculateStartupHealthTimeout(60))
}
