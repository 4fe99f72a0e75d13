package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/user/storewatch/pkg/logger"
)

func TestNewWithWriter_Keys(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.NewWithWriter(&buf, "info")
	require.NoError(t, err)

	log.Info("store checked", zap.String("url", "a.com"))
	log.Debug("hidden")
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "store checked", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "a.com", entry["url"])
	assert.Contains(t, entry, "timestamp")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"DEBUG": zapcore.DebugLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	} {
		got, err := logger.ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := logger.ParseLevel("loud")
	assert.Error(t, err)
}
