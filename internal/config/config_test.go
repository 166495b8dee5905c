package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "SQLite")
	t.Setenv("DATABASE_SQLITE_PATH", "/tmp/slotmeter-test.db")
	t.Setenv("DATABASE_MAX_OPEN_CONN", "4")
	t.Setenv("DATABASE_MAX_IDLE_CONN", "2")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, "/tmp/slotmeter-test.db", cfg.DBSQLitePath)
	assert.Equal(t, 4, cfg.DBMaxOpenConn)
	assert.Equal(t, 2, cfg.DBMaxIdleConn)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoadObservabilitySettings(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.InDelta(t, 0.1, cfg.OtelSamplingRatio, 1e-9)

	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")

	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "collector:4318", cfg.OTLPEndpoint)
	assert.Equal(t, "http/protobuf", cfg.OtelExporterProtocol)
	assert.InDelta(t, 0.5, cfg.OtelSamplingRatio, 1e-9)
}

func TestLoadRejectsUnknownDatabaseType(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "oracle")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DBType:               "postgres",
			HTTPAddr:             ":8080",
			DBMaxOpenConn:        2,
			DBMaxIdleConn:        2,
			LogFormat:            "json",
			OtelExporterProtocol: "grpc",
			OtelSamplingRatio:    0.1,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"idle above open", func(c *Config) { c.DBMaxIdleConn = 5 }},
		{"missing http addr", func(c *Config) { c.HTTPAddr = "" }},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }},
		{"unknown otel protocol", func(c *Config) { c.OtelExporterProtocol = "udp" }},
		{"sampling ratio above one", func(c *Config) { c.OtelSamplingRatio = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
