package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"aihelper-server-go/internal/platform/errors"
)

// Loader reads configuration from an optional yaml file, layered over the
// built-in defaults, with environment variables taking final precedence for
// credentials and deployment-specific values.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader that reads config.yaml from the working directory.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		path:      "config.yaml",
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the configuration file location (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load builds the effective configuration.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("未找到 .env 文件，使用系统环境变量")
		}
	}

	cfg := DefaultConfig()
	path := ""

	if data, err := os.ReadFile(l.path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "loader.parse",
				"解析配置文件失败: "+l.path, err)
		}
		path = l.path
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(errors.KindConfig, "loader.read",
			"读取配置文件失败: "+l.path, err)
	}

	applyEnvOverrides(cfg)
	return &Result{Config: cfg, Path: path}, nil
}

// applyEnvOverrides layers deployment secrets over the file configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWT.Secret = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DASHSCOPE_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		if cfg.Avatar.APIKey == "" {
			cfg.Avatar.APIKey = v
		}
	}
	if v := os.Getenv("OSS_ACCESS_KEY_ID"); v != "" {
		cfg.OSS.AccessKeyID = v
	}
	if v := os.Getenv("OSS_ACCESS_KEY_SECRET"); v != "" {
		cfg.OSS.AccessKeySecret = v
	}
	if v := os.Getenv("OCR_API_KEY"); v != "" {
		cfg.OCR.APIKey = v
	}
}
