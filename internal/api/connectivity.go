package api

import (
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/charging-platform/charging-session-client/internal/metrics"
)

// ConnectivityChecker 网络可达性探测
type ConnectivityChecker interface {
	// Online 返回当前是否认为网络可用
	Online() bool
}

// OfflineNotifier 离线提示回调，由 UI 层注入
type OfflineNotifier interface {
	// NotifyOffline 提示用户当前处于离线状态
	NotifyOffline(message string)
}

// AlwaysOnline 恒定在线的探测实现，测试和无探测场景使用
type AlwaysOnline struct{}

// Online 实现 ConnectivityChecker 接口
func (AlwaysOnline) Online() bool { return true }

// DialChecker 通过对 API 主机建立 TCP 连接来探测可达性
type DialChecker struct {
	host    string
	timeout time.Duration
}

// NewDialChecker 从 API base URL 创建探测器
func NewDialChecker(baseURL string, timeout time.Duration) (*DialChecker, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https", "wss":
			host = net.JoinHostPort(u.Hostname(), "443")
		default:
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}
	return &DialChecker{host: host, timeout: timeout}, nil
}

// Online 实现 ConnectivityChecker 接口
func (c *DialChecker) Online() bool {
	conn, err := net.DialTimeout("tcp", c.host, c.timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// noticeLimiter 离线提示限频器，窗口期内至多提示一次
type noticeLimiter struct {
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func newNoticeLimiter(interval time.Duration) *noticeLimiter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &noticeLimiter{interval: interval}
}

// allow 判断本次是否允许提示，允许时推进窗口
func (n *noticeLimiter) allow() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now()
	if now.Sub(n.last) < n.interval {
		return false
	}
	n.last = now
	metrics.OfflineNotices.Inc()
	return true
}
