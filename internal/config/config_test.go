package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when JWT_SECRET is empty")
	}
	if !strings.Contains(err.Error(), "JWT_SECRET is required") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Lifecycle.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.Lifecycle.MaxRetries)
	}
	if cfg.Inference.Timeout != 20*time.Second {
		t.Errorf("expected default inference timeout 20s, got %s", cfg.Inference.Timeout)
	}
	if cfg.Uploads.MaxImageBytes() != 5*1024*1024 {
		t.Errorf("expected 5MB image limit, got %d", cfg.Uploads.MaxImageBytes())
	}
	if len(cfg.Uploads.AllowedImageTypes) != 2 {
		t.Errorf("expected jpeg and png to be allowed, got %v", cfg.Uploads.AllowedImageTypes)
	}
	if cfg.Redis.Addr != "" || len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("expected redis and kafka to be disabled by default")
	}
	if cfg.TLS.Enabled() {
		t.Error("expected TLS to be disabled by default")
	}
	if cfg.Server.WriteTimeout <= cfg.Inference.Timeout {
		t.Errorf("write timeout %s must outlast the inference timeout %s", cfg.Server.WriteTimeout, cfg.Inference.Timeout)
	}
}

func TestLoad_ParsesOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("CASE_MAX_RETRIES", "5")
	t.Setenv("CASE_PROCESSING_TIMEOUT", "2m")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("TRACING_SAMPLE_RATE", "0.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Lifecycle.MaxRetries != 5 {
		t.Errorf("expected max retries 5, got %d", cfg.Lifecycle.MaxRetries)
	}
	if cfg.Lifecycle.ProcessingTimeout != 2*time.Minute {
		t.Errorf("expected processing timeout 2m, got %s", cfg.Lifecycle.ProcessingTimeout)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("expected sample rate 0.5, got %v", cfg.Tracing.SampleRate)
	}
}

func TestLoad_ProductionRequirements(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("DB_SSLMODE", "disable")
	t.Setenv("AI_WORKER_URL", "")
	t.Setenv("CASE_MAX_RETRIES", "0")

	_, err := Load()
	if err == nil {
		t.Fatal("expected production validation errors")
	}

	for _, want := range []string{
		"JWT_SECRET must be at least 32 characters",
		"DB_PASSWORD is required",
		"DB_SSLMODE=disable is not allowed",
		"AI_WORKER_URL is required",
		"CASE_MAX_RETRIES must be at least 1",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in error, got: %v", want, err)
		}
	}
}

func TestLoad_TimeoutsMustOutlastInference(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "write timeout below inference timeout",
			env:  map[string]string{"SERVER_WRITE_TIMEOUT": "15s", "AI_TIMEOUT": "20s"},
			want: "SERVER_WRITE_TIMEOUT must be greater than AI_TIMEOUT",
		},
		{
			name: "write timeout equal to inference timeout",
			env:  map[string]string{"SERVER_WRITE_TIMEOUT": "20s", "AI_TIMEOUT": "20s"},
			want: "SERVER_WRITE_TIMEOUT must be greater than AI_TIMEOUT",
		},
		{
			name: "processing timeout below inference timeout",
			env:  map[string]string{"CASE_PROCESSING_TIMEOUT": "10s", "AI_TIMEOUT": "20s"},
			want: "CASE_PROCESSING_TIMEOUT must be greater than AI_TIMEOUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "dev-secret")
			t.Setenv("APP_ENV", "development")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in error, got: %v", tt.want, err)
			}
		})
	}
}

func TestLoad_UnboundedWriteTimeoutAllowed(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("APP_ENV", "development")
	t.Setenv("SERVER_WRITE_TIMEOUT", "0s")

	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
