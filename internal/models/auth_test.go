package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionJar_Empty(t *testing.T) {
	var missing *SessionJar
	assert.True(t, missing.Empty())
	assert.True(t, (&SessionJar{}).Empty())
	assert.False(t, (&SessionJar{Cookies: []Cookie{{Name: "sid", Value: "x"}}}).Empty())
}
