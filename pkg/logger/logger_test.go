package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"DEBUG":   DEBUG,
		"warning": WARN,
		"error":   ERROR,
		"fatal":   FATAL,
		"":        INFO,
		"bogus":   INFO,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestStructuredFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core)).With("component", "test")

	log.Infow("Event reconciled", "eventID", "evt_1")
	log.Warn("attempt %d", 2)

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "Event reconciled", entries[0].Message)
		assert.Equal(t, "evt_1", entries[0].ContextMap()["eventID"])
		assert.Equal(t, "test", entries[0].ContextMap()["component"])
		assert.Equal(t, "attempt 2", entries[1].Message)
	}
}
