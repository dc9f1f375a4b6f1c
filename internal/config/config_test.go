// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENV", "HTTP_ADDR", "DATABASE_URL", "AUTO_MIGRATE",
		"SQS_URL", "AWS_REGION", "S3_BUCKET",
		"MODEL_VERSION", "THRESHOLDS_FILE", "CONFIG_FILE",
		"WORKER_LANES", "BATCH_SIZE", "MAX_ATTEMPTS", "RETRY_BASE_DELAY",
		"VISIBILITY_TIMEOUT", "POLL_WAIT", "SINK_TIMEOUT", "DRAIN_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Env != "dev" {
		t.Fatalf("expected default Env=dev, got %s", cfg.Env)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default HTTPAddr=:8080, got %s", cfg.HTTPAddr)
	}
	if cfg.ModelVersion != "baseline" {
		t.Fatalf("expected default ModelVersion=baseline, got %s", cfg.ModelVersion)
	}
	if cfg.WorkerLanes != 4 {
		t.Fatalf("expected default WorkerLanes=4, got %d", cfg.WorkerLanes)
	}
	if cfg.BatchSize != 10 {
		t.Fatalf("expected default BatchSize=10, got %d", cfg.BatchSize)
	}
	if cfg.MaxAttempts != 5 {
		t.Fatalf("expected default MaxAttempts=5, got %d", cfg.MaxAttempts)
	}
	if cfg.VisibilityTimeout != 60*time.Second {
		t.Fatalf("expected default VisibilityTimeout=60s, got %s", cfg.VisibilityTimeout)
	}
	if !cfg.AutoMigrate {
		t.Fatal("expected default AutoMigrate=true")
	}
}

func TestLoadRespectsEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "prod")
	t.Setenv("SQS_URL", "https://sqs.us-east-1.amazonaws.com/123/tx")
	t.Setenv("S3_BUCKET", "tx-lake")
	t.Setenv("MODEL_VERSION", "v2")
	t.Setenv("WORKER_LANES", "8")
	t.Setenv("MAX_ATTEMPTS", "3")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	t.Setenv("AUTO_MIGRATE", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Env != "prod" {
		t.Fatalf("expected ENV override, got %s", cfg.Env)
	}
	if cfg.QueueURL != "https://sqs.us-east-1.amazonaws.com/123/tx" {
		t.Fatalf("expected SQS_URL override, got %s", cfg.QueueURL)
	}
	if cfg.S3Bucket != "tx-lake" {
		t.Fatalf("expected S3_BUCKET override, got %s", cfg.S3Bucket)
	}
	if cfg.ModelVersion != "v2" {
		t.Fatalf("expected MODEL_VERSION override, got %s", cfg.ModelVersion)
	}
	if cfg.WorkerLanes != 8 {
		t.Fatalf("expected WORKER_LANES override, got %d", cfg.WorkerLanes)
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("expected MAX_ATTEMPTS override, got %d", cfg.MaxAttempts)
	}
	if cfg.RetryBaseDelay != 250*time.Millisecond {
		t.Fatalf("expected RETRY_BASE_DELAY override, got %s", cfg.RetryBaseDelay)
	}
	if cfg.AutoMigrate {
		t.Fatal("expected AUTO_MIGRATE override to false")
	}
}

func TestLoadConfigFileOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL_VERSION", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "model_version: from-file\nworker_lanes: 2\nretry_base_delay: 1s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ModelVersion != "from-file" {
		t.Fatalf("expected file overlay to win, got %s", cfg.ModelVersion)
	}
	if cfg.WorkerLanes != 2 {
		t.Fatalf("expected worker_lanes=2 from file, got %d", cfg.WorkerLanes)
	}
	if cfg.RetryBaseDelay != time.Second {
		t.Fatalf("expected retry_base_delay=1s from file, got %s", cfg.RetryBaseDelay)
	}
	// Fields absent from the file keep their env/default values.
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected HTTPAddr default, got %s", cfg.HTTPAddr)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("BATCH_SIZE", "25")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for batch_size > 10")
	}
}

func TestGetenv(t *testing.T) {
	t.Setenv("EXAMPLE_KEY", "value")
	if got := getenv("EXAMPLE_KEY", "fallback"); got != "value" {
		t.Fatalf("expected env value, got %s", got)
	}

	t.Setenv("EXAMPLE_KEY", "")
	if got := getenv("EXAMPLE_KEY", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback value, got %s", got)
	}
}

func TestGetenvDuration(t *testing.T) {
	t.Setenv("DUR_KEY", "90s")
	if got := getenvDuration("DUR_KEY", time.Second); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}

	t.Setenv("DUR_KEY", "not-a-duration")
	if got := getenvDuration("DUR_KEY", time.Second); got != time.Second {
		t.Fatalf("expected fallback 1s, got %s", got)
	}
}
