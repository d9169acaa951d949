// Package config loads the skytrail configuration from defaults, an
// optional skytrail.yaml, and SKYTRAIL_ environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// SimConfig holds fleet defaults.
type SimConfig struct {
	MoveFrequencyHz float64 `mapstructure:"moveFrequencyHz" validate:"gt=0"`
	VerticalSpeed   float64 `mapstructure:"verticalSpeed" validate:"gt=0"`
	StepMeters      float64 `mapstructure:"stepMeters" validate:"gt=0"`
	TrailMode       string  `mapstructure:"trailMode" validate:"oneof=points segments"`
}

// LogConfig holds logger settings, including optional file rotation.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=text json"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB" validate:"gte=0"`
	MaxBackups int    `mapstructure:"maxBackups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"maxAgeDays" validate:"gte=0"`
}

// ServerConfig holds listen addresses.
type ServerConfig struct {
	ListenAddr  string `mapstructure:"listenAddr" validate:"required"`
	MetricsAddr string `mapstructure:"metricsAddr" validate:"required"`
}

// TraceConfig holds OpenTelemetry exporter settings.
type TraceConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter" validate:"oneof=stdout otlp"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sampleRatio" validate:"gte=0,lte=1"`
}

// Config is the full application configuration.
type Config struct {
	Sim    SimConfig    `mapstructure:"sim"`
	Log    LogConfig    `mapstructure:"log"`
	Server ServerConfig `mapstructure:"server"`
	Trace  TraceConfig  `mapstructure:"trace"`
}

// Load builds the configuration from defaults, then skytrail.yaml in
// configDir (or the working directory), then SKYTRAIL_ environment
// variables. A missing config file is fine; a malformed or invalid one
// is not.
func Load(configDir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("skytrail")
	v.SetConfigType("yaml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("SKYTRAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sim.moveFrequencyHz", 30.0)
	v.SetDefault("sim.verticalSpeed", 2.0)
	v.SetDefault("sim.stepMeters", 2.0)
	v.SetDefault("sim.trailMode", "points")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxSizeMB", 64)
	v.SetDefault("log.maxBackups", 3)
	v.SetDefault("log.maxAgeDays", 0)

	v.SetDefault("server.listenAddr", ":8080")
	v.SetDefault("server.metricsAddr", ":9090")

	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.exporter", "stdout")
	v.SetDefault("trace.endpoint", "localhost:4317")
	v.SetDefault("trace.sampleRatio", 1.0)
}
