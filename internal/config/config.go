package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/psichat/client-go/pkg/config"
	"github.com/psichat/client-go/pkg/log"
)

type Config struct {
	API      APIConfig
	Realtime RealtimeConfig
	Session  SessionConfig
	Redis    RedisConfig
	Chat     ChatConfig
	Log      log.Config
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RealtimeConfig struct {
	URL            string        `mapstructure:"url"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	RetryBase      time.Duration `mapstructure:"retry_base"`
	RetryCap       time.Duration `mapstructure:"retry_cap"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type SessionConfig struct {
	Backend          string        `mapstructure:"backend"` // "file" or "redis"
	FilePath         string        `mapstructure:"file_path"`
	LivenessInterval time.Duration `mapstructure:"liveness_interval"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
	Channel  string `mapstructure:"channel"`
}

type ChatConfig struct {
	ReconcileWindow time.Duration `mapstructure:"reconcile_window"`
	TypingIdle      time.Duration `mapstructure:"typing_idle"`
	TypingExpiry    time.Duration `mapstructure:"typing_expiry"`
	ReceiptDelay    time.Duration `mapstructure:"receipt_delay"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("realtime.url", "ws://localhost:8000")
	v.SetDefault("realtime.dial_timeout", "10s")
	v.SetDefault("realtime.retry_base", "5s")
	v.SetDefault("realtime.retry_cap", "30s")
	v.SetDefault("realtime.ping_interval", "30s")
	v.SetDefault("realtime.pong_wait", "60s")
	v.SetDefault("realtime.write_wait", "10s")
	v.SetDefault("realtime.max_message_size", 4096)
	v.SetDefault("session.backend", "file")
	v.SetDefault("session.file_path", defaultSessionPath())
	v.SetDefault("session.liveness_interval", "5m")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "psichat:sessions")
	v.SetDefault("redis.channel", "psichat:sessions:events")
	v.SetDefault("chat.reconcile_window", "5s")
	v.SetDefault("chat.typing_idle", "1s")
	v.SetDefault("chat.typing_expiry", "3s")
	v.SetDefault("chat.receipt_delay", "500ms")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("api.base_url", "PSICHAT_API_URL")
	v.BindEnv("realtime.url", "PSICHAT_WS_URL")
	v.BindEnv("session.backend", "PSICHAT_SESSION_BACKEND")
	v.BindEnv("session.file_path", "PSICHAT_SESSION_FILE")
	v.BindEnv("redis.address", "PSICHAT_REDIS_ADDRESS")
	v.BindEnv("redis.password", "PSICHAT_REDIS_PASSWORD")
	v.BindEnv("log.level", "PSICHAT_LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.API.Timeout = parseDuration(v, "api.timeout", 15*time.Second)
	cfg.Realtime.DialTimeout = parseDuration(v, "realtime.dial_timeout", 10*time.Second)
	cfg.Realtime.RetryBase = parseDuration(v, "realtime.retry_base", 5*time.Second)
	cfg.Realtime.RetryCap = parseDuration(v, "realtime.retry_cap", 30*time.Second)
	cfg.Realtime.PingInterval = parseDuration(v, "realtime.ping_interval", 30*time.Second)
	cfg.Realtime.PongWait = parseDuration(v, "realtime.pong_wait", 60*time.Second)
	cfg.Realtime.WriteWait = parseDuration(v, "realtime.write_wait", 10*time.Second)
	cfg.Session.LivenessInterval = parseDuration(v, "session.liveness_interval", 5*time.Minute)
	cfg.Chat.ReconcileWindow = parseDuration(v, "chat.reconcile_window", 5*time.Second)
	cfg.Chat.TypingIdle = parseDuration(v, "chat.typing_idle", time.Second)
	cfg.Chat.TypingExpiry = parseDuration(v, "chat.typing_expiry", 3*time.Second)
	cfg.Chat.ReceiptDelay = parseDuration(v, "chat.receipt_delay", 500*time.Millisecond)

	return &cfg, nil
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "sessions.json"
	}
	return filepath.Join(dir, "psichat", "sessions.json")
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
