package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenOverlapMatcher(t *testing.T) {
	m := NewTokenOverlapMatcher(0.5)

	tests := []struct {
		name     string
		got      string
		expected string
		match    bool
	}{
		{"exact", "open the valve", "open the valve", true},
		{"reordered", "the valve open", "open the valve", true},
		{"case insensitive", "OPEN THE VALVE", "open the valve", true},
		{"paraphrase above threshold", "open valve", "open the valve", true},
		{"punctuation ignored", "open, the valve!", "open the valve", true},
		{"unrelated", "close the window", "turn on the pump", false},
		{"single missing word below threshold", "valve", "open the main supply valve", false},
		{"empty response", "", "open the valve", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, m.Match(tt.got, tt.expected))
		})
	}
}

func TestTokenOverlapMatcher_ThresholdFallback(t *testing.T) {
	m := NewTokenOverlapMatcher(0)
	assert.Equal(t, 0.5, m.Threshold)

	m = NewTokenOverlapMatcher(1.5)
	assert.Equal(t, 0.5, m.Threshold)
}

func TestTokenOverlapMatcher_StrictThreshold(t *testing.T) {
	m := NewTokenOverlapMatcher(1.0)
	assert.True(t, m.Match("open the valve", "open the valve"))
	assert.False(t, m.Match("open valve", "open the valve"))
}
