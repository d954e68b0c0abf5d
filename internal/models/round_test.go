package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundIsOpen(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := Round{Status: RoundOpen, EndTime: now.Add(time.Minute)}

	assert.True(t, r.IsOpen(now))
	assert.False(t, r.IsOpen(now.Add(time.Minute)))
	assert.False(t, r.IsOpen(now.Add(time.Hour)))

	r.Status = RoundClosed
	assert.False(t, r.IsOpen(now))
}
