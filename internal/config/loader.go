package config

import (
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/dietflow/importer/internal/db"
)

// Pipeline holds the tunable import-pipeline settings. The match weighting is
// a heuristic; treat the defaults as starting points, not fixed law.
type Pipeline struct {
	MatchThreshold    float64
	RequiredWeight    float64
	FieldWeight       float64
	SessionTTL        time.Duration
	SessionCapacity   int
	SweepInterval     time.Duration
	ValidationWorkers int
	// CommitMode is "auto", "transactional", or "best-effort". "auto" probes
	// the store once at startup.
	CommitMode string
}

// Config is the full service configuration.
type Config struct {
	ServerAddr string
	LogLevel   string
	LogFormat  string
	SchemaPath string
	Database   db.Config
	Pipeline   Pipeline
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ServerAddr: ":8080",
		LogLevel:   "info",
		LogFormat:  "text",
		SchemaPath: "./schemas/catalog.json",
		Database:   db.DefaultConfig(),
		Pipeline: Pipeline{
			MatchThreshold:  0.5,
			RequiredWeight:  0.7,
			FieldWeight:     0.3,
			SessionTTL:      10 * time.Minute,
			SessionCapacity: 256,
			SweepInterval:   30 * time.Second,
			CommitMode:      "auto",
		},
	}
}

// Load reads config.yaml from configPath with environment overrides
// (prefix IMPORTER, e.g. IMPORTER_DATABASE_HOST).
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("IMPORTER")

	v.BindEnv("server.addr")
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("pipeline.commit_mode")
	v.BindEnv("schema.path")

	if err := v.ReadInConfig(); err != nil {
		slog.Info("no config.yaml found, using defaults and env vars")
	} else {
		slog.Info("loaded config.yaml", "path", v.ConfigFileUsed())
	}

	if v.IsSet("server.addr") {
		cfg.ServerAddr = v.GetString("server.addr")
	}
	if v.IsSet("log.level") {
		cfg.LogLevel = v.GetString("log.level")
	}
	if v.IsSet("log.format") {
		cfg.LogFormat = v.GetString("log.format")
	}
	if v.IsSet("schema.path") {
		cfg.SchemaPath = v.GetString("schema.path")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("pipeline.match_threshold") {
		cfg.Pipeline.MatchThreshold = v.GetFloat64("pipeline.match_threshold")
	}
	if v.IsSet("pipeline.required_weight") {
		cfg.Pipeline.RequiredWeight = v.GetFloat64("pipeline.required_weight")
	}
	if v.IsSet("pipeline.field_weight") {
		cfg.Pipeline.FieldWeight = v.GetFloat64("pipeline.field_weight")
	}
	if v.IsSet("pipeline.session_ttl") {
		cfg.Pipeline.SessionTTL = v.GetDuration("pipeline.session_ttl")
	}
	if v.IsSet("pipeline.session_capacity") {
		cfg.Pipeline.SessionCapacity = v.GetInt("pipeline.session_capacity")
	}
	if v.IsSet("pipeline.sweep_interval") {
		cfg.Pipeline.SweepInterval = v.GetDuration("pipeline.sweep_interval")
	}
	if v.IsSet("pipeline.validation_workers") {
		cfg.Pipeline.ValidationWorkers = v.GetInt("pipeline.validation_workers")
	}
	if v.IsSet("pipeline.commit_mode") {
		cfg.Pipeline.CommitMode = v.GetString("pipeline.commit_mode")
	}

	return cfg, nil
}
