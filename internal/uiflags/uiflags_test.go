package uiflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToggleVisible(t *testing.T) {
	f := New()
	assert.True(t, f.Visible("postgres"))

	f.Toggle("postgres")
	assert.False(t, f.Visible("postgres"))

	f.Toggle("postgres")
	assert.True(t, f.Visible("postgres"))
}
