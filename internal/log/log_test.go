package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	level, ok := ParseLevel("warn")
	assert.True(t, ok)
	assert.Equal(t, Warn, level)

	level, ok = ParseLevel("DeBuG")
	assert.True(t, ok)
	assert.Equal(t, Debug, level)

	level, ok = ParseLevel("verbose")
	assert.False(t, ok)
	assert.Equal(t, Error, level)
}

func TestLevelEnables(t *testing.T) {
	assert.True(t, Debug.Enables(Error))
	assert.True(t, Info.Enables(Info))
	assert.False(t, Error.Enables(Warn))
}

func TestConsoleLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, Warn)

	logger.Info("uwhois: suppressed: query=%s", "example.com")
	assert.Empty(t, buf.String())

	logger.Error("uwhois: emitted: query=%s", "example.com")
	assert.Contains(t, buf.String(), "uwhois: emitted: query=example.com")
	assert.Equal(t, Warn, logger.Level())
}
