package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OTLPEndpoint         string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBSQLitePath      string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

var Module = fx.Module("config",
	fx.Provide(Load),
)

var supportedDBTypes = map[string]struct{}{
	"postgres": {},
	"mysql":    {},
	"sqlite":   {},
}

var supportedLogFormats = map[string]struct{}{
	"json":    {},
	"console": {},
}

var supportedOTLPProtocols = map[string]struct{}{
	"grpc":          {},
	"grpc/protobuf": {},
	"http":          {},
	"http/protobuf": {},
}

// Load reads .env (if present), then an optional slotmeter.yaml, then environment
// variables. Keys map to env names by upper-casing and replacing dots with
// underscores, so database.host is DATABASE_HOST.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("slotmeter")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/slotmeter")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Standard OpenTelemetry variable names are honoured alongside the
	// derived ones.
	_ = v.BindEnv("otlp.endpoint", "OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = v.BindEnv("otel.exporter.protocol", "OTEL_EXPORTER_PROTOCOL", "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "OTEL_EXPORTER_OTLP_PROTOCOL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		AppName:              strings.TrimSpace(v.GetString("app.name")),
		AppVersion:           strings.TrimSpace(v.GetString("app.version")),
		Environment:          strings.TrimSpace(v.GetString("environment")),
		HTTPAddr:             strings.TrimSpace(v.GetString("http.addr")),
		LogLevel:             strings.ToLower(strings.TrimSpace(v.GetString("log.level"))),
		LogFormat:            strings.ToLower(strings.TrimSpace(v.GetString("log.format"))),
		OtelEnabled:          v.GetBool("otel.enabled"),
		OTLPEndpoint:         strings.TrimSpace(v.GetString("otlp.endpoint")),
		OtelExporterProtocol: strings.ToLower(strings.TrimSpace(v.GetString("otel.exporter.protocol"))),
		OtelSamplingRatio:    v.GetFloat64("otel.sampling_ratio"),
		DBType:               strings.ToLower(strings.TrimSpace(v.GetString("database.type"))),
		DBHost:               v.GetString("database.host"),
		DBPort:               v.GetString("database.port"),
		DBName:               v.GetString("database.name"),
		DBUser:               v.GetString("database.user"),
		DBPassword:           v.GetString("database.password"),
		DBSSLMode:            v.GetString("database.sslmode"),
		DBSQLitePath:         v.GetString("database.sqlite_path"),
		DBMaxIdleConn:        v.GetInt("database.max_idle_conn"),
		DBMaxOpenConn:        v.GetInt("database.max_open_conn"),
		DBConnMaxLifetime:    v.GetInt("database.conn_max_lifetime"),
		DBConnMaxIdleTime:    v.GetInt("database.conn_max_idle_time"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "slotmeter")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("environment", "development")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otlp.endpoint", "localhost:4317")
	v.SetDefault("otel.exporter.protocol", "grpc")
	v.SetDefault("otel.sampling_ratio", 0.1)
	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "slotmeter")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "slotmeter.db")
	v.SetDefault("database.max_idle_conn", 5)
	v.SetDefault("database.max_open_conn", 25)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.conn_max_idle_time", 30)
}

// Validate rejects configurations the store layer cannot open.
func (c Config) Validate() error {
	if _, ok := supportedDBTypes[c.DBType]; !ok {
		return fmt.Errorf("unsupported database type %q", c.DBType)
	}
	if c.DBMaxOpenConn < 0 || c.DBMaxIdleConn < 0 {
		return errors.New("database pool sizes must not be negative")
	}
	if c.DBMaxOpenConn > 0 && c.DBMaxIdleConn > c.DBMaxOpenConn {
		return errors.New("database.max_idle_conn cannot exceed database.max_open_conn")
	}
	if c.HTTPAddr == "" {
		return errors.New("http.addr is required")
	}
	if _, ok := supportedLogFormats[c.LogFormat]; !ok {
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	if _, ok := supportedOTLPProtocols[c.OtelExporterProtocol]; !ok {
		return fmt.Errorf("unsupported otel exporter protocol %q", c.OtelExporterProtocol)
	}
	if c.OtelSamplingRatio < 0 || c.OtelSamplingRatio > 1 {
		return errors.New("otel.sampling_ratio must be between 0 and 1")
	}
	return nil
}
