package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoader_LoadDefaults(t *testing.T) {
	loader := NewLoader().WithDotEnv(false).WithPath(filepath.Join(t.TempDir(), "missing.yaml"))

	result, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	cfg := result.Config

	if cfg.JWT.Secret != DefaultSecret {
		t.Errorf("expected default jwt secret, got %s", cfg.JWT.Secret)
	}
	if cfg.JWT.TTL.Std() != 24*time.Hour {
		t.Errorf("expected 24h token ttl, got %v", cfg.JWT.TTL)
	}
	if cfg.Chat.TrackerTTL.Std() != 5*time.Minute {
		t.Errorf("expected 5m tracker ttl, got %v", cfg.Chat.TrackerTTL)
	}
	if result.Path != "" {
		t.Errorf("expected empty path for missing file, got %s", result.Path)
	}
}

func TestLoader_LoadFile(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	configContent := `
server:
  ip: "127.0.0.1"
  port: 9090
log:
  log_level: "debug"
jwt:
  ttl: 1h
llm:
  model_name: "qwen-turbo"
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	loader := NewLoader().WithDotEnv(false).WithPath(configFile)
	result, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	cfg := result.Config

	if cfg.Server.IP != "127.0.0.1" {
		t.Errorf("expected server IP 127.0.0.1, got %s", cfg.Server.IP)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected server port 9090, got %d", cfg.Server.Port)
	}
	if cfg.JWT.TTL.Std() != time.Hour {
		t.Errorf("expected 1h token ttl, got %v", cfg.JWT.TTL)
	}
	if cfg.LLM.ModelName != "qwen-turbo" {
		t.Errorf("expected qwen-turbo model, got %s", cfg.LLM.ModelName)
	}
	// 文件未覆盖的字段保留默认值
	if cfg.Verification.CodeTTL.Std() != 5*time.Minute {
		t.Errorf("expected default code ttl, got %v", cfg.Verification.CodeTTL)
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("REDIS_ADDR", "10.0.0.5:6380")
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")

	loader := NewLoader().WithDotEnv(false).WithPath(filepath.Join(t.TempDir(), "missing.yaml"))
	result, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	cfg := result.Config

	if cfg.JWT.Secret != "env-secret" {
		t.Errorf("expected env jwt secret, got %s", cfg.JWT.Secret)
	}
	if cfg.Redis.Addr != "10.0.0.5:6380" {
		t.Errorf("expected env redis addr, got %s", cfg.Redis.Addr)
	}
	if cfg.LLM.APIKey != "sk-test" || cfg.Avatar.APIKey != "sk-test" {
		t.Errorf("expected dashscope key shared with avatar config")
	}
}

func TestLoader_ParseError(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configFile, []byte("server: [broken"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	loader := NewLoader().WithDotEnv(false).WithPath(configFile)
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected parse error for malformed yaml")
	}
}

func TestLoader_ExplicitZeroTTLKept(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configFile, []byte("jwt:\n  ttl: 0\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	loader := NewLoader().WithDotEnv(false).WithPath(configFile)
	result, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	// 显式写 0 不回落到默认值，只有缺失字段才用默认
	if got := result.Config.JWT.TTL.Std(); got != 0 {
		t.Errorf("expected ttl 0 to be kept, got %v", got)
	}
}
