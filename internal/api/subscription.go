package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charging-platform/charging-session-client/internal/domain/session"
	"github.com/charging-platform/charging-session-client/internal/logger"
	"github.com/charging-platform/charging-session-client/internal/metrics"
)

// SubscriptionKey 订阅键。推送通道按设备ID和关联ID过滤会话记录。
type SubscriptionKey struct {
	DeviceID      string
	CorrelationID string
}

// ShouldSkip 订阅跳过谓词：两个键任一缺失时不建立订阅
func (k SubscriptionKey) ShouldSkip() bool {
	return k.DeviceID == "" || k.CorrelationID == ""
}

// SubscriberConfig 订阅通道配置
type SubscriberConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	ReconnectDelay   time.Duration
	EventBuffer      int
}

// DefaultSubscriberConfig 默认订阅配置
func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      90 * time.Second,
		ReconnectDelay:   3 * time.Second,
		EventBuffer:      64,
	}
}

// Subscriber 持久推送订阅。
// 按订阅键建立 WebSocket 连接，键变化时重建订阅，
// 解码后的会话更新事件按到达顺序投递到事件通道。
type Subscriber struct {
	config SubscriberConfig
	logger *logger.Logger

	mu  sync.Mutex
	key SubscriptionKey

	keyChanged chan struct{}
	events     chan session.UpdateEvent

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSubscriber 创建订阅器
func NewSubscriber(cfg SubscriberConfig, log *logger.Logger) *Subscriber {
	def := DefaultSubscriberConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}

	return &Subscriber{
		config:     cfg,
		logger:     log.Component("subscriber"),
		keyChanged: make(chan struct{}, 1),
		events:     make(chan session.UpdateEvent, cfg.EventBuffer),
	}
}

// Events 获取事件通道。订阅器停止后通道关闭。
func (s *Subscriber) Events() <-chan session.UpdateEvent {
	return s.events
}

// SetKey 更新订阅键。键发生变化时当前连接被放弃并按新键重建。
func (s *Subscriber) SetKey(key SubscriptionKey) {
	s.mu.Lock()
	if s.key == key {
		s.mu.Unlock()
		return
	}
	s.key = key
	s.mu.Unlock()

	select {
	case s.keyChanged <- struct{}{}:
	default:
	}
}

// currentKey 读取当前订阅键
func (s *Subscriber) currentKey() SubscriptionKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Start 启动订阅循环
func (s *Subscriber) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.events)
		s.run(runCtx)
	}()
}

// Stop 停止订阅并等待退出
func (s *Subscriber) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// run 订阅主循环：等待有效的键，连接，读取，键变化或失败时重来
func (s *Subscriber) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		key := s.currentKey()
		if key.ShouldSkip() {
			// 键不完整时保持空闲，等待下一次键变化
			select {
			case <-ctx.Done():
				return
			case <-s.keyChanged:
				continue
			}
		}

		if err := s.connectAndRead(ctx, key); err != nil {
			s.logger.Warnf("subscription connection ended: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-s.keyChanged:
				continue
			case <-time.After(s.config.ReconnectDelay):
			}
		}
	}
}

// connectAndRead 建立一次订阅连接并读取直到失效
func (s *Subscriber) connectAndRead(ctx context.Context, key SubscriptionKey) error {
	endpoint, err := subscriptionURL(s.config.URL, key)
	if err != nil {
		return fmt.Errorf("invalid subscription url: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	metrics.SubscriptionReconnects.Inc()
	s.logger.Infof("subscription established for device %s", key.DeviceID)

	conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	// 键变化或上层取消时关闭连接，解除读阻塞
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
		case <-s.keyChanged:
			s.logger.Debug("subscription key changed, dropping current connection")
		case <-watchDone:
			return
		}
		conn.Close()
	}()

	// 保活 ping
	pingTicker := time.NewTicker(s.config.PingInterval)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-watchDone:
				return
			case <-pingTicker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}

		var event session.UpdateEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			s.logger.Warnf("discarding malformed push payload: %v", err)
			continue
		}

		// 只投递匹配当前过滤键的记录；无匹配记录表示无活跃会话，不是错误
		if event.DeviceID != "" && event.DeviceID != key.DeviceID {
			continue
		}
		if event.CorrelationID != "" && event.CorrelationID != key.CorrelationID {
			continue
		}

		stateLabel := "none"
		if event.State != nil {
			stateLabel = string(*event.State)
		}
		metrics.SubscriptionEvents.WithLabelValues(stateLabel).Inc()

		select {
		case s.events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// subscriptionURL 构造带过滤键的订阅地址
func subscriptionURL(base string, key SubscriptionKey) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("device_id", key.DeviceID)
	q.Set("emp_session_id", key.CorrelationID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
