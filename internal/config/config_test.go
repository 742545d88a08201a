package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log_level: debug
protocol_log: /tmp/devsim.tlog
server:
  instance: lab
  endpoint: tcp://*:20000
  keep_alive: 2s
  store: /tmp/devsim.db
  devices:
    - name: sys/tg_test/1
      polling:
        - name: double_scalar
          period: 200ms
        - name: DevVoid
          command: true
          period: 1s
    - name: sys/tg_test/2
client:
  endpoint: tcp://host:20000
  timeout: 500ms
  keep_alive: -1s
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "debug", f.LogLevel)
	assert.Equal(t, "/tmp/devsim.tlog", f.ProtocolLog)
	require.Len(t, f.Server.Devices, 2)
	assert.Equal(t, []Polling{
		{Name: "double_scalar", Period: 200 * time.Millisecond},
		{Name: "DevVoid", Command: true, Period: time.Second},
	}, f.Server.Devices[0].Polling)

	ds := f.Server.DevServer()
	assert.Equal(t, "lab", ds.Instance)
	assert.Equal(t, 2*time.Second, ds.KeepAlivePeriod)

	zs := f.Server.ZMQ()
	assert.Equal(t, "tcp://*:20000", zs.Endpoint)
	assert.Equal(t, "tcp://*:10001", zs.EventEndpoint, "unset fields keep their default")

	cc := f.Client.Session()
	assert.Equal(t, 500*time.Millisecond, cc.Timeout)
	assert.Negative(t, cc.KeepAlivePeriod)
	assert.Equal(t, "tcp://host:20000", f.Client.ZMQ().Endpoint)
}

func TestDefault(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	require.Len(t, f.Server.Devices, 1)
	assert.Equal(t, "sys/tg_test/1", f.Server.Devices[0].Name)
	assert.Equal(t, "info", f.LogLevel)
	assert.True(t, f.Logger(os.Stderr).Enabled(t.Context(), slog.LevelInfo))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"syntax", "server: [\n"},
		{"level", "log_level: loud\n"},
		{"device name", "server:\n  devices:\n    - name: tg_test\n"},
		{"duplicate", "server:\n  devices:\n    - name: a/b/c\n    - name: A/B/C\n"},
		{"polling period", "server:\n  devices:\n    - name: a/b/c\n      polling:\n        - name: x\n"},
		{"duration", "client:\n  timeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			var le *LoadError
			assert.True(t, errors.As(err, &le), "got %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lab", f.Server.Instance)

	require.NoError(t, os.WriteFile(path, []byte("log_level: loud\n"), 0o600))
	_, err = Load(path)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, path, le.File)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug, "": slog.LevelInfo, "WARN": slog.LevelWarn, "error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}
