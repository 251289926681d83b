package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", want: slog.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetupLogger_WritesConsoleAndRunLog(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "radsort.log")

	logger, closer, err := SetupLogger(LogOptions{
		Console: &console,
		Level:   "warn",
		Format:  "json",
		File:    path,
	})
	require.NoError(t, err)

	logger.Info("relocated", "file", "a.pdf")
	logger.Warn("ambiguous", "file", "b.pdf")
	require.NoError(t, closer.Close())

	assert.NotContains(t, console.String(), "relocated")
	assert.Contains(t, console.String(), `"msg":"ambiguous"`)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=relocated", "run log keeps info records")
	assert.Contains(t, string(data), "msg=ambiguous")
}

func TestSetupLogger_RunLogIgnoresDebug(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "radsort.log")

	logger, closer, err := SetupLogger(LogOptions{Console: &console, Level: "debug", File: path})
	require.NoError(t, err)

	logger.Debug("tree scanned")
	logger.Info("relocated")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "tree scanned")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "tree scanned")
	assert.Contains(t, string(data), "msg=relocated")
}

func TestSetupLogger_InvalidFormat(t *testing.T) {
	_, _, err := SetupLogger(LogOptions{Format: "xml"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFanoutHandler_WithAttrs(t *testing.T) {
	var a, b bytes.Buffer
	h := NewFanoutHandler(
		slog.NewTextHandler(&a, nil),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	logger := slog.New(h).With("run_id", "r1")

	logger.Info("hello")

	assert.Contains(t, a.String(), "run_id=r1")
	assert.Empty(t, b.String())
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
}

func TestIsStructural(t *testing.T) {
	assert.True(t, IsStructural(fmt.Errorf("scan: %w", ErrDirectoryNotFound)))
	assert.True(t, IsStructural(NewUserError("bad", ErrInvalidConfig)))
	assert.False(t, IsStructural(ErrRelocationFailures))
	assert.False(t, IsStructural(nil))
}

func TestCheckDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/dir", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/file.pdf", []byte("x"), 0o644))

	assert.NoError(t, CheckDir(fs, "/dir"))
	assert.ErrorIs(t, CheckDir(fs, "/missing"), ErrDirectoryNotFound)
	assert.ErrorIs(t, CheckDir(fs, "/file.pdf"), ErrNotADirectory)
}

func TestWithRetry(t *testing.T) {
	fast := RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	busy := errors.New("resource busy")

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return busy
			}
			return nil
		}, fast)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return busy
		}, fast)
		require.ErrorIs(t, err, ErrMaxRetries)
		require.ErrorIs(t, err, busy)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return &PermanentError{Err: busy}
		}, fast)
		assert.Equal(t, busy, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WithRetry(ctx, func() error { return busy }, RetryOptions{MaxAttempts: 5, InitialDelay: time.Hour})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
