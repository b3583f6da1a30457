package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounter_Count(t *testing.T) {
	c := NewCounter()
	assert.Equal(t, 0, c.Count(""))
	assert.Greater(t, c.Count("What is the balance of my savings account?"), 3)
}

func TestCounter_FallbackWithoutCodec(t *testing.T) {
	var c Counter
	assert.Equal(t, 2, c.Count("12345678"))
	assert.Equal(t, 1, c.Count("ab"))
}
