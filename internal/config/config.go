package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/dinehub/realtime-gateway/pkg/config"
	"github.com/dinehub/realtime-gateway/pkg/log"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Heartbeat HeartbeatConfig
	Retry     RetryConfig
	Security  SecurityConfig
	Rooms     RoomsConfig
	Redis     RedisConfig
	Log       log.Config
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type HeartbeatConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	MaxMissed int           `mapstructure:"max_missed"`
}

type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	Jitter            bool          `mapstructure:"jitter"`
	MessageTTL        time.Duration `mapstructure:"message_ttl"`
}

type SecurityConfig struct {
	TokenSecret   string          `mapstructure:"token_secret"`
	EncryptionKey string          `mapstructure:"encryption_key"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
}

type RoomsConfig struct {
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RedisConfig struct {
	Enabled           bool
	Address           string
	Password          string
	DB                int
	RegistryPrefix    string        `mapstructure:"registry_prefix"`
	KeyTTL            time.Duration `mapstructure:"key_ttl"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	AdvertiseAddress  string        `mapstructure:"advertise_address"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("heartbeat.interval", "30s")
	v.SetDefault("heartbeat.max_missed", 2)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay", "500ms")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("retry.jitter", true)
	v.SetDefault("retry.message_ttl", "2m")
	v.SetDefault("security.token_secret", "")
	v.SetDefault("security.encryption_key", "")
	v.SetDefault("security.rate_limit.window", "1m")
	v.SetDefault("security.rate_limit.max_requests", 120)
	v.SetDefault("rooms.idle_ttl", "5m")
	v.SetDefault("rooms.sweep_interval", "1m")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.registry_prefix", "gateway:registry")
	v.SetDefault("redis.key_ttl", "30s")
	v.SetDefault("redis.heartbeat_interval", "10s")
	v.SetDefault("redis.advertise_address", "localhost:8090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "realtime-gateway")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("security.token_secret", "TOKEN_SECRET")
	v.BindEnv("security.encryption_key", "ENCRYPTION_KEY")
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.advertise_address", "ADVERTISE_ADDRESS")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Heartbeat.Interval = parseDuration(v, "heartbeat.interval", 30*time.Second)
	cfg.Retry.BaseDelay = parseDuration(v, "retry.base_delay", 500*time.Millisecond)
	cfg.Retry.MaxDelay = parseDuration(v, "retry.max_delay", 30*time.Second)
	cfg.Retry.MessageTTL = parseDuration(v, "retry.message_ttl", 2*time.Minute)
	cfg.Security.RateLimit.Window = parseDuration(v, "security.rate_limit.window", time.Minute)
	cfg.Rooms.IdleTTL = parseDuration(v, "rooms.idle_ttl", 5*time.Minute)
	cfg.Rooms.SweepInterval = parseDuration(v, "rooms.sweep_interval", time.Minute)
	cfg.Redis.KeyTTL = parseDuration(v, "redis.key_ttl", 30*time.Second)
	cfg.Redis.HeartbeatInterval = parseDuration(v, "redis.heartbeat_interval", 10*time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
