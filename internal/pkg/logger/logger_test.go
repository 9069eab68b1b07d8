package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, LevelFromString("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, LevelFromString("warning"))
	assert.Equal(t, zapcore.ErrorLevel, LevelFromString(" error "))
	assert.Equal(t, zapcore.InfoLevel, LevelFromString(""))
	assert.Equal(t, zapcore.InfoLevel, LevelFromString("verbose"))
}

func TestNewWritesRotatedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	log, err := New(Config{Level: "info", Dir: dir})
	require.NoError(t, err)
	log.Info("hello")
	_ = log.Sync()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}
