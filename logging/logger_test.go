package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{" warning ", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn).Named("agent")

	log.Infof("hidden %d", 1)
	log.Warnf("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN [agent] shown 2")
}

func TestNilLoggerIsSafe(t *testing.T) {
	var log *Logger
	assert.NotPanics(t, func() {
		log.Infof("nothing")
		log.Named("x").Errorf("still nothing")
	})
	assert.False(t, log.Enabled(LevelError))
}
