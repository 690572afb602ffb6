package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
storage:
  driver: sqlite
quiz:
  default_max_attempts: 3
engine:
  time_limit: 30s
  allow_guest: true
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Storage.Driver != "sqlite" || cfg.Quiz.DefaultMaxAttempts != 3 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.SQLite.Path != "khodkquiz.db" || cfg.AMQP.Exchange != "khodkquiz.events" {
		t.Fatalf("defaults lost: %+v", cfg)
	}

	sc := cfg.SessionConfig()
	if sc.TimeLimit != 30*time.Second || sc.Tick != 10*time.Millisecond || sc.FeedbackDelay != 2*time.Second || !sc.AllowGuest {
		t.Fatalf("unexpected session config: %+v", sc)
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected defaults, got %v", err)
	}
	if cfg.SessionConfig().TimeLimit != 25*time.Second || cfg.SessionConfig().SubmitTimeout != 10*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg.Engine)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("Load must fail on a missing file")
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("empty: %v", got)
	}
	if got := TTLDuration("nonsense", time.Minute); got != time.Minute {
		t.Fatalf("invalid: %v", got)
	}
	if got := TTLDuration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("valid: %v", got)
	}
}
