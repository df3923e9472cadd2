package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLevelFor(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, LevelFor(0))
	assert.Equal(t, zerolog.InfoLevel, LevelFor(-1))
	assert.Equal(t, zerolog.DebugLevel, LevelFor(1))
	assert.Equal(t, zerolog.TraceLevel, LevelFor(2))
	assert.Equal(t, zerolog.TraceLevel, LevelFor(5))
}

func TestNewFiltersByVerbosity(t *testing.T) {
	var buf bytes.Buffer
	logger := New(0, &buf)
	logger.Debug().Msg("hidden")
	logger.Info().Str("rfc", "791").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "rfc=")

	buf.Reset()
	verbose := New(1, &buf)
	verbose.Debug().Msg("now visible")
	assert.Contains(t, buf.String(), "now visible")
}
