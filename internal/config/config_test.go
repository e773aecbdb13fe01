package config

import (
	"testing"
	"time"

	"bulletin/internal/board"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{"XDG_DATA_HOME": "/data"}))
	require.NoError(t, err)

	assert.Equal(t, "18920", cfg.Port)
	assert.Equal(t, "/data/bulletin/bulletin.db", cfg.DBPath)
	assert.Equal(t, board.DefaultSettings(), cfg.Settings)
	assert.Equal(t, 30*time.Second, cfg.MetricsInterval)
	assert.False(t, cfg.TracingEnabled)
	assert.Empty(t, cfg.Admin)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"PORT":                        "9000",
		"BULLETIN_DB_PATH":            "/tmp/b.db",
		"BULLETIN_ADMIN":              "did:plc:admin",
		"BULLETIN_CAPACITY":           "3",
		"BULLETIN_COOLDOWN":           "0s",
		"BULLETIN_MAX_BODY":           "500",
		"BULLETIN_MAX_LATEST":         "10",
		"BULLETIN_MAX_PAGE_SIZE":      "5",
		"BULLETIN_BUCKET_SIZE":        "16",
		"BULLETIN_MAX_HANDLE":         "20",
		"METRICS_INTERVAL":            "5s",
		"TRACING_ENABLED":             "true",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4318",
		"LOG_LEVEL":                   "debug",
		"LOG_FORMAT":                  "json",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "/tmp/b.db", cfg.DBPath)
	assert.Equal(t, board.Settings{
		Capacity:      3,
		Cooldown:      0,
		MaxLatest:     10,
		MaxPageSize:   5,
		MaxBodyLength: 500,
	}, cfg.Settings)
	assert.Equal(t, 5*time.Second, cfg.MetricsInterval)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, "collector:4318", cfg.OTLPEndpoint)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)

	opts := cfg.BoardOptions()
	assert.Equal(t, "/tmp/b.db", opts.Path)
	assert.Equal(t, "did:plc:admin", opts.Admin)
	assert.Equal(t, uint64(16), opts.BucketSize)
	assert.Equal(t, 20, opts.MaxHandleLength)
	assert.Equal(t, uint64(3), opts.Settings.Capacity)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"capacity", map[string]string{"BULLETIN_CAPACITY": "-1"}, "BULLETIN_CAPACITY"},
		{"cooldown", map[string]string{"BULLETIN_COOLDOWN": "30"}, "BULLETIN_COOLDOWN"},
		{"body", map[string]string{"BULLETIN_MAX_BODY": "long"}, "BULLETIN_MAX_BODY"},
		{"tracing", map[string]string{"TRACING_ENABLED": "maybe"}, "TRACING_ENABLED"},
		{"interval", map[string]string{"METRICS_INTERVAL": "0s"}, "METRICS_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.env["BULLETIN_DB_PATH"] = "/tmp/x.db"
			_, err := FromEnv(envMap(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBoardOptions_KeepsDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{"BULLETIN_DB_PATH": "/tmp/x.db"}))
	require.NoError(t, err)

	opts := cfg.BoardOptions()
	def := board.DefaultOptions()
	assert.Equal(t, def.BucketSize, opts.BucketSize)
	assert.Equal(t, def.MaxHandleLength, opts.MaxHandleLength)
	assert.Equal(t, def.Timeout, opts.Timeout)
}
