package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构
type Config struct {
	API          APIConfig          `mapstructure:"api"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Log          LogConfig          `mapstructure:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// APIConfig 请求/响应接口配置。
// 资费查询走独立的 transport，与通用接口各自配置超时和地址。
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	TariffBaseURL  string        `mapstructure:"tariff_base_url" validate:"omitempty,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	OfflineNotice  time.Duration `mapstructure:"offline_notice_interval"`
}

// SubscriptionConfig 推送订阅通道配置
type SubscriptionConfig struct {
	URL              string        `mapstructure:"url" validate:"required"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" validate:"gt=0"`
	PingInterval     time.Duration `mapstructure:"ping_interval" validate:"gt=0"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	EventBuffer      int           `mapstructure:"event_buffer" validate:"gt=0"`
}

// RetryConfig 请求重试配置
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	BaseDelay   time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	MaxJitter   time.Duration `mapstructure:"max_jitter"`
}

// RedisConfig 本地设置存储使用的 Redis 配置
type RedisConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// MetricsConfig 监控指标配置
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults 写入各配置段的默认值
func SetDefaults() {
	viper.SetDefault("api.base_url", "https://api.charging.example.com")
	viper.SetDefault("api.tariff_base_url", "")
	viper.SetDefault("api.request_timeout", 15*time.Second)
	viper.SetDefault("api.cache_ttl", 60*time.Second)
	viper.SetDefault("api.offline_notice_interval", 5*time.Second)

	viper.SetDefault("subscription.url", "wss://push.charging.example.com/sessions")
	viper.SetDefault("subscription.handshake_timeout", 10*time.Second)
	viper.SetDefault("subscription.ping_interval", 30*time.Second)
	viper.SetDefault("subscription.read_timeout", 90*time.Second)
	viper.SetDefault("subscription.event_buffer", 64)

	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_delay", 300*time.Millisecond)
	viper.SetDefault("retry.max_jitter", 100*time.Millisecond)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.dial_timeout", 5*time.Second)
	viper.SetDefault("redis.read_timeout", 3*time.Second)
	viper.SetDefault("redis.write_timeout", 3*time.Second)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stderr")
	viper.SetDefault("log.async", false)

	viper.SetDefault("metrics.addr", ":9180")
}

// Load 加载并校验配置
func Load() (*Config, error) {
	SetDefaults()

	viper.SetEnvPrefix("SESSION")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile 从指定文件加载并校验配置
func LoadFromFile(path string) (*Config, error) {
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Load()
}

// Validate 校验配置的合法性
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// GetTariffBaseURL 获取资费接口地址，未单独配置时退回通用地址
func (c *Config) GetTariffBaseURL() string {
	if c.API.TariffBaseURL != "" {
		return c.API.TariffBaseURL
	}
	return c.API.BaseURL
}

// GetMetricsAddr 获取监控地址
func (c *Config) GetMetricsAddr() string {
	return c.Metrics.Addr
}
