package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses yaml values like "24h" or plain integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, perr := time.ParseDuration(raw)
		if perr != nil {
			return fmt.Errorf("无法解析时长 %q: %w", raw, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := value.Decode(&ns); err != nil {
		return err
	}
	*d = Duration(ns)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Web          WebConfig          `yaml:"web"`
	JWT          JWTConfig          `yaml:"jwt"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	LLM          LLMConfig          `yaml:"llm"`
	OSS          OSSConfig          `yaml:"oss"`
	OCR          OCRConfig          `yaml:"ocr"`
	Avatar       AvatarConfig       `yaml:"avatar"`
	Verification VerificationConfig `yaml:"verification"`
	Chat         ChatConfig         `yaml:"chat"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type WebConfig struct {
	StaticDir string `yaml:"static_dir"`
}

// JWTConfig drives the token codec. The default secret must be overridden in
// production deployments, normally via the JWT_SECRET environment variable.
type JWTConfig struct {
	Secret string   `yaml:"secret"`
	TTL    Duration `yaml:"ttl"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

type LLMConfig struct {
	ModelName   string  `yaml:"model_name"`
	BaseURL     string  `yaml:"url"`
	APIKey      string  `yaml:"api_key"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

type OSSConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	// URLExpire 签名URL的有效期
	URLExpire Duration `yaml:"url_expire"`
}

type OCRConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

type AvatarConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

type VerificationConfig struct {
	CodeTTL Duration `yaml:"code_ttl"`
}

type ChatConfig struct {
	// TrackerTTL bounds how long an abandoned generation entry may live
	// before the janitor sweeps it.
	TrackerTTL Duration `yaml:"tracker_ttl"`
	// MaxImageSize 单张上传图片的大小上限（字节）
	MaxImageSize int64 `yaml:"max_image_size"`
}
