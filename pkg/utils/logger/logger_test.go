package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quizsys/pkg/utils/contextkey"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestFileOutputCarriesContextFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")
	require.NoError(t, Init(Config{Level: "debug", Format: "json", OutputPath: path, MaxSizeMB: 1}))
	t.Cleanup(func() { globalLogger = nil })

	ctx := context.WithValue(context.Background(), contextkey.TraceID, "trace-1")
	ctx = context.WithValue(ctx, contextkey.SubmissionID, int64(42))
	Info(ctx, "graded", zap.Float64("score", 0.5))
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "graded", entry["msg"])
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, float64(42), entry["question_submission_id"])
	assert.Equal(t, 0.5, entry["score"])
}

func TestGlobalHelpersWithoutInit(t *testing.T) {
	globalLogger = nil
	Info(context.Background(), "dropped")
	assert.NoError(t, Sync())
}
