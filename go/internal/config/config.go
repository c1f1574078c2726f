// Package config reads process configuration from the environment and the
// optional rules file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/quizhall/go/internal/dbconfig"
	"github.com/mcdev12/quizhall/go/internal/models"
)

// Config is the game server configuration.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// NATSURL empty runs everything in process on the memory store.
	NATSURL   string `env:"NATS_URL"`
	Bucket    string `env:"QUIZHALL_BUCKET" envDefault:"QUIZHALL_STATE"`
	Replicas  int    `env:"QUIZHALL_REPLICAS" envDefault:"1"`
	JWTSecret string `env:"JWT_SECRET"`

	// Packages come from PackageDir when set, otherwise from Postgres.
	PackageDir string `env:"QUIZHALL_PACKAGE_DIR"`
	RulesFile  string `env:"QUIZHALL_RULES_FILE"`

	SessionTTL      time.Duration `env:"QUIZHALL_SESSION_TTL" envDefault:"24h"`
	IdleTimeout     time.Duration `env:"QUIZHALL_IDLE_TIMEOUT" envDefault:"6h"`
	JanitorInterval time.Duration `env:"QUIZHALL_JANITOR_INTERVAL" envDefault:"5m"`
	LockTTL         time.Duration `env:"QUIZHALL_LOCK_TTL" envDefault:"10s"`
	TimerWorkers    int           `env:"QUIZHALL_TIMER_WORKERS" envDefault:"8"`
	TimerPoll       time.Duration `env:"QUIZHALL_TIMER_POLL" envDefault:"1s"`

	DB dbconfig.Config

	// Rules is loaded from RulesFile, not the environment.
	Rules models.Rules
}

// Load parses the environment and the rules file.
func Load() (*Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	rules, err := LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	cfg.Rules = rules
	return &cfg, nil
}

// ParseEnv fills target from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadRules reads default session rules from a YAML file. An empty path
// returns the built-ins; fields missing from the file keep their built-in
// values.
func LoadRules(path string) (models.Rules, error) {
	if path == "" {
		return models.DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Rules{}, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file struct {
		Rules models.Rules `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return models.Rules{}, fmt.Errorf("failed to parse rules file: %w", err)
	}
	return file.Rules.WithDefaults(), nil
}

// Level maps LOG_LEVEL onto zerolog, defaulting to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
