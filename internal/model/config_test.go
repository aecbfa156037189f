package model_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/typesift/typesift/internal/model"
)

func TestLoadConfig(t *testing.T) {
	yml := `
version: 0
server:
  addr: ":9090"
scan:
  workers: 8
  timeout_ms: 5000
history:
  path: /var/lib/typesift/history.db
registry:
  refresh_every: 1m
engines:
  - name: exiftool
    path: /usr/local/bin/exiftool-detect
    version: "12.70"
    args: ["-json"]
service:
  verbose: true
  log: stdout
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, 8, cfg.Scan.Workers)
	require.EqualValues(t, 5000, cfg.Scan.TimeoutMs)
	// defaulted by the schema
	require.EqualValues(t, 104857600, cfg.Scan.MaxFileSizeBytes)
	require.Equal(t, "/var/lib/typesift/history.db", cfg.History.Path)
	require.Equal(t, "1m", cfg.Registry.RefreshEvery)
	require.Len(t, cfg.Engines, 1)
	require.Equal(t, "exiftool", cfg.Engines[0].Name)
	require.Equal(t, "/usr/local/bin/exiftool-detect", cfg.Engines[0].Path)
	require.Equal(t, "12.70", cfg.Engines[0].Version)
	require.Equal(t, []string{"-json"}, cfg.Engines[0].Args)
	require.True(t, cfg.Service.Verbose)
	require.Equal(t, model.LogStdout, cfg.Service.Log)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := model.LoadConfig(strings.NewReader("version: 0\n"))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, 4, cfg.Scan.Workers)
	require.EqualValues(t, 30000, cfg.Scan.TimeoutMs)
	require.Equal(t, "typesift.db", cfg.History.Path)
	require.Empty(t, cfg.Registry.RefreshEvery)
	require.Equal(t, model.LogStderr, cfg.Service.Log)
}

func TestLoadConfig_Fail(t *testing.T) {
	t.Run("wrong version", func(t *testing.T) {
		_, err := model.LoadConfig(strings.NewReader("version: 1\n"))
		require.Error(t, err)
	})

	t.Run("workers out of range", func(t *testing.T) {
		yml := `
version: 0
scan:
  workers: 64
`
		_, err := model.LoadConfig(strings.NewReader(yml))
		require.Error(t, err)
	})

	t.Run("bad log destination", func(t *testing.T) {
		yml := `
version: 0
service:
  log: syslog
`
		_, err := model.LoadConfig(strings.NewReader(yml))
		require.Error(t, err)
	})

	t.Run("engine without path", func(t *testing.T) {
		yml := `
version: 0
engines:
  - name: broken
`
		_, err := model.LoadConfig(strings.NewReader(yml))
		require.Error(t, err)
	})
}

// The configuration written on first run must load back.
func TestDefaultConfig_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, yaml.NewEncoder(&buf).Encode(model.DefaultConfig()))

	cfg, err := model.LoadConfig(&buf)
	require.NoError(t, err)
	def := model.DefaultConfig()
	require.Equal(t, def.Server, cfg.Server)
	require.Equal(t, def.Scan, cfg.Scan)
	require.Equal(t, def.History, cfg.History)
	require.Equal(t, def.Service, cfg.Service)
	require.Empty(t, cfg.Engines)
}
