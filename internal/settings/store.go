package settings

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/charging-platform/charging-session-client/internal/config"
)

// 命名设置键。值语义见各访问方法。
const (
	// KeyPaymentBypass 跳过支付授权。运营和测试账号使用。
	KeyPaymentBypass = "payment_bypass"
	// KeyLastChargePoint 最近一次使用的充电桩ID
	KeyLastChargePoint = "last_charge_point"
	// KeyBiometrics 生物识别解锁开关
	KeyBiometrics = "biometrics_enabled"
	// KeyLastBackground 应用最近一次进入后台的时间戳 (RFC3339)
	KeyLastBackground = "last_background_at"
)

// Store 设备本地设置存储。
// 设置项跨进程重启保留，不设置 TTL。
type Store struct {
	Client *redis.Client // 公开字段，测试注入 mock 客户端
	Prefix string
}

// NewStore 创建设置存储并验证 Redis 连接
func NewStore(cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return &Store{Client: client, Prefix: "settings:"}, nil
}

// SetBool 写入布尔设置
func (s *Store) SetBool(ctx context.Context, key string, value bool) error {
	return s.Client.Set(ctx, s.Prefix+key, strconv.FormatBool(value), 0).Err()
}

// GetBool 读取布尔设置。键不存在时返回 false，不报错。
func (s *Store) GetBool(ctx context.Context, key string) (bool, error) {
	val, err := s.Client.Get(ctx, s.Prefix+key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid bool setting %s=%q: %w", key, val, err)
	}
	return parsed, nil
}

// SetString 写入字符串设置
func (s *Store) SetString(ctx context.Context, key, value string) error {
	return s.Client.Set(ctx, s.Prefix+key, value, 0).Err()
}

// GetString 读取字符串设置。键不存在时返回空串，不报错。
func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	val, err := s.Client.Get(ctx, s.Prefix+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// Delete 删除设置项
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.Client.Del(ctx, s.Prefix+key).Err()
}

// PaymentBypass 读取支付跳过开关
func (s *Store) PaymentBypass(ctx context.Context) (bool, error) {
	return s.GetBool(ctx, KeyPaymentBypass)
}

// Close 关闭与存储后端的连接
func (s *Store) Close() error {
	return s.Client.Close()
}
