package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// These tests swap the package-level logger and must not run in parallel.

func TestInit_RejectsUnknownLevel(t *testing.T) {
	require.ErrorContains(t, Init("loud", "json", "stdout"), "invalid log level")
}

func TestInit_WritesJSONToFile(t *testing.T) {
	restore := Replace(zap.NewNop())
	defer restore()

	path := filepath.Join(t.TempDir(), "agents.log")
	require.NoError(t, Init("info", "json", path))

	Debug("hidden")
	Info("Query handled", zap.String("session_id", "s1"))
	Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "Query handled", entry["message"])
	require.Equal(t, "info", entry["level"])
	require.Equal(t, "s1", entry["session_id"])
	require.Contains(t, entry, "timestamp")
	require.Contains(t, entry["caller"], "logger_test.go")
}

func TestReplace_RoutesPackageHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := Replace(zap.New(core))

	Warn("Feedback for unknown or expired session", zap.String("session_id", "gone"))
	GetLogger().Info("direct")

	restore()
	Info("after restore")

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Equal(t, "gone", entries[0].ContextMap()["session_id"])
	require.Equal(t, "direct", entries[1].Message)
}
