package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, cfg Config) *Logger {
	t.Helper()
	if cfg.Out == nil {
		cfg.Out = &bytes.Buffer{}
	}
	l, err := New(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   LogLevel
		want string
	}{
		{"debug", "debug"},
		{"WARN", "warn"},
		{"error", "error"},
		{"info", "info"},
		{"", "info"},
		{"verbose", "info"},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in).String())
		})
	}
}

func TestLogger_ComponentEntriesReachHistory(t *testing.T) {
	l := newTestLogger(t, Config{Level: LevelInfo, MaxHistory: 10})

	log := l.Component("arbiter")
	log.Warn().Str("parameter", "ParamCheek").Msg("Model lacks parameter")
	log.Error().Err(errors.New("boom")).Str("task", "idle").Msg("Tick failed")

	hist := l.GetHistory(0)
	require.Len(t, hist, 2)
	assert.Equal(t, LogEntry{
		Timestamp: hist[0].Timestamp,
		Level:     "warn",
		Component: "arbiter",
		Message:   "Model lacks parameter",
		Data:      "parameter=ParamCheek",
	}, hist[0])
	assert.Equal(t, "error=boom, task=idle", hist[1].Data)
}

func TestLogger_LevelFiltersHistory(t *testing.T) {
	l := newTestLogger(t, Config{Level: LevelWarn, MaxHistory: 10})

	log := l.Component("idle")
	log.Debug().Msg("tick")
	log.Info().Msg("enabled")
	log.Warn().Msg("slow")

	hist := l.GetHistory(0)
	require.Len(t, hist, 1)
	assert.Equal(t, "slow", hist[0].Message)

	l.SetLevel(LevelDebug)
	idleLog := l.Component("idle")
	idleLog.Debug().Msg("tick")
	assert.Len(t, l.GetHistory(0), 2)
}

func TestLogger_HistoryIsBounded(t *testing.T) {
	l := newTestLogger(t, Config{Level: LevelInfo, MaxHistory: 3})

	log := l.Component("test")
	for _, msg := range []string{"one", "two", "three", "four", "five"} {
		log.Info().Msg(msg)
	}

	hist := l.GetHistory(0)
	require.Len(t, hist, 3)
	assert.Equal(t, "three", hist[0].Message)
	assert.Equal(t, "five", hist[2].Message)

	last := l.GetHistory(2)
	require.Len(t, last, 2)
	assert.Equal(t, "four", last[0].Message)
}

func TestLogger_WritesDailyFileAndConsole(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	l := newTestLogger(t, Config{LogDir: dir, Level: LevelInfo, Console: true, Out: &console})

	serveLog := l.Component("serve")
	serveLog.Info().Msg("Listening")

	path := l.GetLogPath()
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "lipsync_"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"Listening"`)
	assert.Contains(t, console.String(), "Listening")
}

func TestLogger_WithoutDirHasNoFile(t *testing.T) {
	l := newTestLogger(t, Config{Level: LevelInfo})
	assert.Empty(t, l.GetLogPath())
}
