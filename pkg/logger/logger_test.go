package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSecretKeys(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))

	log.Info("logged in", "sessionToken", "r:abc", "user", "crawler")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["sessionToken"])
	assert.Equal(t, "crawler", fields["user"])
}

func TestWithKeepsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core)).With("job", "import-tags")

	log.Warn("tag not found", "key", "dairy")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "import-tags", entries[0].ContextMap()["job"])
	assert.Equal(t, "dairy", entries[0].ContextMap()["key"])
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger("dev", "chatty")
	assert.Error(t, err)
}
