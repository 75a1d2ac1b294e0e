package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// 检查默认值
	if cfg.Database.Host != "localhost" {
		t.Errorf("Expected DB_HOST default 'localhost', got '%s'", cfg.Database.Host)
	}

	if cfg.Database.Port != 5432 {
		t.Errorf("Expected DB_PORT default 5432, got %d", cfg.Database.Port)
	}

	if cfg.Database.Database != "healthcare" {
		t.Errorf("Expected DB_NAME default 'healthcare', got '%s'", cfg.Database.Database)
	}

	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Expected REDIS_ADDR default 'localhost:6379', got '%s'", cfg.Redis.Addr)
	}

	if cfg.Ingest.Stream != "health:readings" {
		t.Errorf("Expected INGEST_STREAM default 'health:readings', got '%s'", cfg.Ingest.Stream)
	}

	if cfg.Pipeline.EvalInterval != 30*time.Second {
		t.Errorf("Expected EVAL_INTERVAL default 30s, got %v", cfg.Pipeline.EvalInterval)
	}

	if len(cfg.Pipeline.Windows) != 2 {
		t.Fatalf("Expected 2 default windows, got %d", len(cfg.Pipeline.Windows))
	}

	if cfg.Pipeline.Windows[0].Duration != time.Hour {
		t.Errorf("Expected primary window 1h, got %v", cfg.Pipeline.Windows[0].Duration)
	}

	if cfg.Forecast.HorizonSteps != 24 {
		t.Errorf("Expected FORECAST_STEPS default 24, got %d", cfg.Forecast.HorizonSteps)
	}

	if cfg.Forecast.Confidence != 0.95 {
		t.Errorf("Expected FORECAST_CONFIDENCE default 0.95, got %v", cfg.Forecast.Confidence)
	}

	if cfg.Alerts.Cooldown != 10*time.Minute {
		t.Errorf("Expected ALERT_COOLDOWN default 10m, got %v", cfg.Alerts.Cooldown)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Expected LOG_LEVEL default 'info', got '%s'", cfg.Log.Level)
	}

	// 未指定规则文件时加载内置默认规则
	if len(cfg.Rules) != 6 {
		t.Errorf("Expected 6 default metric rules, got %d", len(cfg.Rules))
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("REDIS_ADDR", "redis:6380")
	os.Setenv("EVAL_INTERVAL", "10s")
	os.Setenv("FORECAST_CONFIDENCE", "0.99")
	os.Setenv("EVAL_WORKERS", "8")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Database.Host != "test-host" {
		t.Errorf("Expected DB_HOST 'test-host', got '%s'", cfg.Database.Host)
	}

	if cfg.Redis.Addr != "redis:6380" {
		t.Errorf("Expected REDIS_ADDR 'redis:6380', got '%s'", cfg.Redis.Addr)
	}

	if cfg.Pipeline.EvalInterval != 10*time.Second {
		t.Errorf("Expected EVAL_INTERVAL 10s, got %v", cfg.Pipeline.EvalInterval)
	}

	if cfg.Forecast.Confidence != 0.99 {
		t.Errorf("Expected FORECAST_CONFIDENCE 0.99, got %v", cfg.Forecast.Confidence)
	}

	if cfg.Pipeline.Workers != 8 {
		t.Errorf("Expected EVAL_WORKERS 8, got %d", cfg.Pipeline.Workers)
	}
}

func TestLoad_StatWindowsOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("STAT_WINDOWS", "30m:3,6h:8")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(cfg.Pipeline.Windows) != 2 {
		t.Fatalf("Expected 2 windows, got %d", len(cfg.Pipeline.Windows))
	}

	if cfg.Pipeline.Windows[0].Duration != 30*time.Minute || cfg.Pipeline.Windows[0].MinSamples != 3 {
		t.Errorf("Unexpected first window: %+v", cfg.Pipeline.Windows[0])
	}

	if cfg.Pipeline.Windows[1].Duration != 6*time.Hour || cfg.Pipeline.Windows[1].MinSamples != 8 {
		t.Errorf("Unexpected second window: %+v", cfg.Pipeline.Windows[1])
	}
}

func TestLoad_InvalidStatWindows(t *testing.T) {
	cases := []string{"30m", "30m:0", "bogus:5", "-1h:5", ","}
	for _, value := range cases {
		os.Clearenv()
		os.Setenv("STAT_WINDOWS", value)

		if _, err := Load(); err == nil {
			t.Errorf("Expected error for STAT_WINDOWS=%q", value)
		}
	}
	os.Clearenv()
}

func TestRuleFor(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	rule, ok := cfg.RuleFor("heart_rate")
	if !ok {
		t.Fatal("Expected rule for heart_rate")
	}
	if rule.NormalMin != 60 || rule.NormalMax != 100 {
		t.Errorf("Unexpected heart_rate normal range: [%v, %v]", rule.NormalMin, rule.NormalMax)
	}

	if _, ok := cfg.RuleFor("unknown"); ok {
		t.Error("Expected no rule for unknown metric")
	}
}
