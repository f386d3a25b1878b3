package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultBuilderImage is the pinned guest build environment. Reproducible
// builds require a versioned toolchain image, never a floating tag.
const DefaultBuilderImage = "ghcr.io/zkvm-rs/guest-builder:v2024-02-08.1"

// Config holds application configuration
type Config struct {
	// Engine configuration
	Engine EngineConfig

	// Logging configuration
	LogLevel string
}

type EngineConfig struct {
	// Binary is the container engine executable looked up on PATH.
	Binary string

	// ProbeTimeout bounds the total time spent waiting for the engine
	// daemon to become ready.
	ProbeTimeout time.Duration

	// BuilderImage is the pinned base image for the build stage.
	BuilderImage string
}

// LoadConfig loads configuration using viper with support for:
// - Environment variables (ZKBUILD_* prefix)
// - .env files
// - Default values
func LoadConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	// Enable environment variable support
	viper.SetEnvPrefix("zkbuild")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values (env vars will override these)
	setDefaults()

	// Try to read config file (optional - env vars take precedence)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{
		Engine: EngineConfig{
			Binary:       viper.GetString("engine.binary"),
			ProbeTimeout: viper.GetDuration("engine.probe_timeout"),
			BuilderImage: viper.GetString("engine.builder_image"),
		},
		LogLevel: viper.GetString("log.level"),
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("engine.binary", "docker")
	viper.SetDefault("engine.probe_timeout", 5*time.Second)
	viper.SetDefault("engine.builder_image", DefaultBuilderImage)

	viper.SetDefault("log.level", "info")
}

func validateConfig(config *Config) error {
	var missing []string

	if config.Engine.Binary == "" {
		missing = append(missing, "ZKBUILD_ENGINE_BINARY")
	}
	if config.Engine.BuilderImage == "" {
		missing = append(missing, "ZKBUILD_ENGINE_BUILDER_IMAGE")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if config.Engine.ProbeTimeout <= 0 {
		return fmt.Errorf("engine probe timeout must be positive, got %s", config.Engine.ProbeTimeout)
	}

	return nil
}
