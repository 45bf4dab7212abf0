package floatutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClip(t *testing.T) {
	assert.Equal(t, 1.0, Clip(5.0, 0, 1))
	assert.Equal(t, 0.0, Clip(-5.0, 0, 1))
	assert.Equal(t, 0.5, Clip(0.5, 0, 1))
	assert.Equal(t, 1.0, Clip(1.0, 0, 1))
}

func TestMinMax(t *testing.T) {
	assert.Equal(t, -2.0, Min(3, -2, 0.5))
	assert.Equal(t, 3.0, Max(3, -2, 0.5))
}
