package config

import (
	"os"
	"time"

	"khodkquiz/internal/engine"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL           string `yaml:"url"`
		RunMigrations bool   `yaml:"run_migrations"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	// Storage picks the quiz and attempt backend: memory, postgres or sqlite.
	Storage struct {
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	Quiz struct {
		TTL                string `yaml:"ttl"`
		DefaultMaxAttempts int    `yaml:"default_max_attempts"`
	} `yaml:"quiz"`
	Engine struct {
		TimeLimit     string `yaml:"time_limit"`
		Tick          string `yaml:"tick"`
		FeedbackDelay string `yaml:"feedback_delay"`
		SubmitTimeout string `yaml:"submit_timeout"`
		AllowGuest    bool   `yaml:"allow_guest"`
	} `yaml:"engine"`
	Auth struct {
		Secret   string `yaml:"secret"`
		Issuer   string `yaml:"issuer"`
		TokenTTL string `yaml:"token_ttl"`
	} `yaml:"auth"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Client struct {
		BaseURL string `yaml:"base_url"`
		Token   string `yaml:"token"`
		Timeout string `yaml:"timeout"`
	} `yaml:"client"`
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Storage.Driver = "memory"
	cfg.SQLite.Path = "khodkquiz.db"
	cfg.Quiz.TTL = "10m"
	cfg.Engine.TimeLimit = "25s"
	cfg.Engine.Tick = "10ms"
	cfg.Engine.FeedbackDelay = "2s"
	cfg.Engine.SubmitTimeout = "10s"
	cfg.Auth.Issuer = "khodkquiz"
	cfg.Auth.TokenTTL = "24h"
	cfg.AMQP.Exchange = "khodkquiz.events"
	cfg.Client.BaseURL = "http://localhost:8080"
	cfg.Client.Timeout = "10s"
	return cfg
}

// Load reads YAML config from path on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOptional is Load that falls back to Default when the file does not exist.
func LoadOptional(path string) (Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// SessionConfig converts the engine section into session timing.
func (c Config) SessionConfig() engine.Config {
	def := engine.DefaultConfig()
	return engine.Config{
		TimeLimit:     TTLDuration(c.Engine.TimeLimit, def.TimeLimit),
		Tick:          TTLDuration(c.Engine.Tick, def.Tick),
		FeedbackDelay: TTLDuration(c.Engine.FeedbackDelay, def.FeedbackDelay),
		SubmitTimeout: TTLDuration(c.Engine.SubmitTimeout, def.SubmitTimeout),
		AllowGuest:    c.Engine.AllowGuest,
	}
}
