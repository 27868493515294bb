package config

import (
	"os"
	"testing"
	"time"
)

func TestConfigLoad_Defaults(t *testing.T) {
	_ = os.Unsetenv("FABRIC_STORAGE_DSN")
	_ = os.Unsetenv("FABRIC_EXECUTOR_WORKER_COUNT")
	_ = os.Unsetenv("FABRIC_FAILURE_TRACKING_CHECK_INTERVAL")

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.Executor.WorkerCount != 1 {
		t.Fatalf("expected default executor worker count 1, got %d", cfg.Executor.WorkerCount)
	}
	if cfg.FailureTracking.CheckInterval != 3*time.Second {
		t.Fatalf("expected default check interval 3s, got %s", cfg.FailureTracking.CheckInterval)
	}
	if cfg.HTTPGateway.Address != ":8080" {
		t.Fatalf("expected default http gateway address :8080, got %s", cfg.HTTPGateway.Address)
	}
}

func TestConfigLoad_EnvOverride(t *testing.T) {
	_ = os.Setenv("FABRIC_EXECUTOR_WORKER_COUNT", "4")
	defer func() { _ = os.Unsetenv("FABRIC_EXECUTOR_WORKER_COUNT") }()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.Executor.WorkerCount != 4 {
		t.Fatalf("executor worker count env override failed, got %d", cfg.Executor.WorkerCount)
	}
}
