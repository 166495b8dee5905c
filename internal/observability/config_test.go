package observability

import (
	"testing"

	"github.com/smallbiznis/slotmeter/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigMapsApplicationConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppVersion:           "1.2.3",
		Environment:          "production",
		LogLevel:             "warn",
		LogFormat:            "console",
		OtelEnabled:          true,
		OTLPEndpoint:         "collector:4317",
		OtelExporterProtocol: "grpc",
		OtelSamplingRatio:    0.25,
	})

	assert.Equal(t, "slotmeter", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, 0.25, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestDebug(t *testing.T) {
	assert.True(t, Config{LogLevel: "debug", Environment: "production"}.Debug())
	assert.True(t, Config{Environment: "Development"}.Debug())
	assert.False(t, Config{LogLevel: "info", Environment: "staging"}.Debug())
}
