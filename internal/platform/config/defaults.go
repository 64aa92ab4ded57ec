package config

import "time"

// DefaultSecret 默认JWT签名密钥，生产环境必须通过 JWT_SECRET 覆盖
const DefaultSecret = "aihelper_jwt_secret_change_me_in_production"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8080,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			StaticDir: "./web",
		},
		JWT: JWTConfig{
			Secret: DefaultSecret,
			TTL:    Duration(24 * time.Hour),
		},
		Database: DatabaseConfig{
			DSN: "data/aihelper.db",
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		LLM: LLMConfig{
			ModelName:   "qwen-plus",
			BaseURL:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
			MaxTokens:   2000,
			Temperature: 0.7,
		},
		OSS: OSSConfig{
			Endpoint:  "oss-cn-beijing.aliyuncs.com",
			Bucket:    "aihelper-images",
			URLExpire: Duration(15 * time.Minute),
		},
		Avatar: AvatarConfig{
			Endpoint: "https://dashscope.aliyuncs.com/api/v1",
			Model:    "wanx-v1",
		},
		Verification: VerificationConfig{
			CodeTTL: Duration(5 * time.Minute),
		},
		Chat: ChatConfig{
			TrackerTTL:   Duration(5 * time.Minute),
			MaxImageSize: 10 << 20,
		},
	}
}
