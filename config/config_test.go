package config

import (
	"errors"
	"testing"

	"github.com/Temutjin2k/location-relay/internal/domain/types"
	"github.com/Temutjin2k/location-relay/pkg/configparser"
)

func defaults(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{}
	if err := configparser.ParseEnv(cfg); err != nil {
		t.Fatalf("ParseEnv: %v", err)
	}
	return cfg
}

func TestDefaults_AreValid(t *testing.T) {
	cfg := defaults(t)

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Relay.DuplicateDriverPolicy != types.PolicyReplaceLatest {
		t.Fatalf("policy = %q, want %q", cfg.Relay.DuplicateDriverPolicy, types.PolicyReplaceLatest)
	}
	if cfg.Store.Driver != StoreMemory {
		t.Fatalf("store = %q, want memory", cfg.Store.Driver)
	}
	if got := cfg.Relay.Addr(); got != "0.0.0.0:8080" {
		t.Fatalf("Addr = %q", got)
	}
}

func TestValidate_RejectsUnknownPolicy(t *testing.T) {
	cfg := defaults(t)
	cfg.Relay.DuplicateDriverPolicy = "first-wins"

	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestValidate_PongWaitMustExceedPing(t *testing.T) {
	cfg := defaults(t)
	cfg.Relay.PongWait = cfg.Relay.PingInterval

	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}

	cfg.Relay.PingInterval = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("heartbeats disabled should be valid: %v", err)
	}
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "5432", Database: "d"}
	if got, want := db.GetDSN(), "postgres://u:p@h:5432/d?sslmode=disable"; got != want {
		t.Fatalf("GetDSN = %q, want %q", got, want)
	}

	mq := RabbitMQConfig{User: "g", Password: "g", Host: "h", Port: "5672"}
	if got, want := mq.GetDSN(), "amqp://g:g@h:5672/"; got != want {
		t.Fatalf("GetDSN = %q, want %q", got, want)
	}
}
