package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_NAME", "matomo_analytics")

	cfg, err := Load("rating")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Name != "rating" {
		t.Errorf("Expected service name rating, got %s", cfg.Service.Name)
	}
	if cfg.Rating.SourceTable != "matomo_analytics_dashboard" {
		t.Errorf("Expected default source table, got %s", cfg.Rating.SourceTable)
	}
	if cfg.Rating.TargetTable != "user_rating_profile" {
		t.Errorf("Expected default target table, got %s", cfg.Rating.TargetTable)
	}
	if cfg.Loader.FullLoadMaxRows != 10000 {
		t.Errorf("Expected full load threshold 10000, got %d", cfg.Loader.FullLoadMaxRows)
	}
	if cfg.Kafka.GroupID != "rating-group" {
		t.Errorf("Expected derived group id, got %s", cfg.Kafka.GroupID)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "warehouse")
	t.Setenv("RATING_WORKERS", "4")
	t.Setenv("RATING_LOCK_TTL", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load("worker")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Rating.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", cfg.Rating.Workers)
	}
	if cfg.Rating.LockTTL != 90*time.Second {
		t.Errorf("Expected lock ttl 90s, got %v", cfg.Rating.LockTTL)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Unexpected brokers: %v", cfg.Kafka.Brokers)
	}
	if !cfg.Kafka.Enabled() {
		t.Error("Expected kafka to be enabled")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name:    "valid",
			env:     map[string]string{},
			wantErr: false,
		},
		{
			name:    "target table with sql",
			env:     map[string]string{"RATING_TARGET_TABLE": "profiles; DROP TABLE users"},
			wantErr: true,
		},
		{
			name:    "zero workers",
			env:     map[string]string{"RATING_WORKERS": "0"},
			wantErr: true,
		},
		{
			name:    "empty db host",
			env:     map[string]string{"DB_HOST": ""},
			wantErr: true,
		},
		{
			name:    "zero top n",
			env:     map[string]string{"RATING_TOP_N": "0"},
			wantErr: true,
		},
		{
			name:    "zero preview rows",
			env:     map[string]string{"LOADER_PREVIEW_ROWS": "0"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_HOST", "localhost")
			t.Setenv("DB_NAME", "matomo_analytics")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("test")
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     "5432",
		User:     "postgres",
		Password: "secret",
		DBName:   "matomo_analytics",
	}

	want := "host=localhost port=5432 user=postgres password=secret dbname=matomo_analytics sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestIsIdentifier(t *testing.T) {
	valid := []string{"user_rating_profile", "_tmp", "T1"}
	invalid := []string{"", "1abc", "a-b", "a b", "public.users"}

	for _, name := range valid {
		if !IsIdentifier(name) {
			t.Errorf("Expected %q to be valid", name)
		}
	}
	for _, name := range invalid {
		if IsIdentifier(name) {
			t.Errorf("Expected %q to be invalid", name)
		}
	}
}
