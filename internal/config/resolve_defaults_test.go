package config

import (
	"os"
	"testing"
)

func unsetEnvironmentEnv() {
	_ = os.Unsetenv("FABRIC_ENVIRONMENT")
	_ = os.Unsetenv("FABRIC_EXECUTOR_WORKER_COUNT")
	_ = os.Unsetenv("FABRIC_TTL")
}

func TestResolveDefaultsValidEnvironment(t *testing.T) {
	unsetEnvironmentEnv()
	_ = os.Setenv("FABRIC_ENVIRONMENT", "production")
	defer unsetEnvironmentEnv()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.Environment != EnvProduction {
		t.Fatalf("expected production environment, got %s", cfg.Environment)
	}
}

func TestResolveDefaultsRejectsUnknownEnvironment(t *testing.T) {
	unsetEnvironmentEnv()
	_ = os.Setenv("FABRIC_ENVIRONMENT", "staging")
	defer unsetEnvironmentEnv()

	if _, err := New(); err == nil {
		t.Fatalf("expected error for unsupported environment")
	}
}

func TestResolveDefaultsRejectsZeroWorkerCount(t *testing.T) {
	unsetEnvironmentEnv()
	_ = os.Setenv("FABRIC_EXECUTOR_WORKER_COUNT", "0")
	defer unsetEnvironmentEnv()

	if _, err := New(); err == nil {
		t.Fatalf("expected error for zero executor worker count")
	}
}

func TestResolveDefaultsRejectsZeroTTL(t *testing.T) {
	unsetEnvironmentEnv()
	_ = os.Setenv("FABRIC_TTL", "0")
	defer unsetEnvironmentEnv()

	if _, err := New(); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
