package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := New()
	s, err := Decode(v)
	require.NoError(t, err)

	assert.True(t, s.Restart)
	assert.Equal(t, []string{"main", "events", "crash", "kernel"}, s.Buffer)
	assert.Equal(t, "auto", s.Terminal.Color)
	assert.Equal(t, 1024, s.QueueSize)
	assert.Equal(t, 1<<20, s.MaxLineLength)
	assert.Equal(t, 250*time.Millisecond, s.IdleFlush)
	assert.Equal(t, 0, s.Retry.MaxAttempts)

	p, err := s.Retry.Policy()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, p.MaxDelay)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`restart: false
buffer: [main, radio]
terminal:
  color: never
  tag_width: 20
retry:
  max_attempts: 3
  initial_delay: 1s
idle_flush: 500ms
`), 0o644))

	v := New()
	require.NoError(t, ReadFile(v, path))
	s, err := Decode(v)
	require.NoError(t, err)

	assert.False(t, s.Restart)
	assert.Equal(t, []string{"main", "radio"}, s.Buffer)
	assert.Equal(t, "never", s.Terminal.Color)
	assert.Equal(t, 20, s.Terminal.TagWidth)
	assert.Equal(t, 3, s.Retry.MaxAttempts)
	assert.Equal(t, time.Second, s.Retry.InitialDelay)
	assert.Equal(t, 500*time.Millisecond, s.IdleFlush)
	assert.Equal(t, 1024, s.QueueSize)
}

func TestReadFileMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, ReadFile(New(), ""))

	err := ReadFile(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NANOCAT_RESTART", "false")
	t.Setenv("NANOCAT_QUEUE_SIZE", "16")
	t.Setenv("NANOCAT_TERMINAL_COLOR", "always")

	s, err := Decode(New())
	require.NoError(t, err)
	assert.False(t, s.Restart)
	assert.Equal(t, 16, s.QueueSize)
	assert.Equal(t, "always", s.Terminal.Color)
}

func TestDecodeRejectsBadValues(t *testing.T) {
	v := New()
	v.Set("queue_size", 0)
	_, err := Decode(v)
	require.Error(t, err)

	v = New()
	v.Set("retry.max_delay", "1ms")
	s, err := Decode(v)
	require.NoError(t, err)
	_, err = s.Retry.Policy()
	assert.Error(t, err)
}
