package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charging-platform/charging-session-client/internal/cache"
	"github.com/charging-platform/charging-session-client/internal/logger"
	"github.com/charging-platform/charging-session-client/internal/metrics"
)

// Encoding 请求编码方式
type Encoding string

const (
	EncodingJSON  Encoding = "json"
	EncodingForm  Encoding = "form"
	EncodingQuery Encoding = "query"
)

// Request 一次请求/响应调用的描述
type Request struct {
	// Operation 操作名，用于日志和指标标签
	Operation string
	Method    string
	Path      string
	Encoding  Encoding
	// Query URL 查询参数
	Query url.Values
	// Body JSON 编码时为任意可序列化结构，form 编码时为 url.Values
	Body interface{}
	// Cacheable 成功响应是否写入缓存，离线时是否允许回落
	Cacheable bool
}

// TokenSource 外部令牌存储。客户端只负责携带令牌，
// 令牌刷新由认证协作方处理。
type TokenSource interface {
	// Token 返回当前的 bearer token
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource 固定令牌，测试和 CLI 使用
type StaticTokenSource string

// Token 实现 TokenSource 接口
func (s StaticTokenSource) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// RetryPolicy 重试策略
type RetryPolicy struct {
	// MaxAttempts 总尝试次数上限（含首次）
	MaxAttempts int
	// BaseDelay 首次重试延迟，之后按指数增长
	BaseDelay time.Duration
	// MaxJitter 每次延迟附加的随机抖动上限
	MaxJitter time.Duration
}

// DefaultRetryPolicy 默认重试策略
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   300 * time.Millisecond,
		MaxJitter:   100 * time.Millisecond,
	}
}

// ClientConfig 统一客户端配置
type ClientConfig struct {
	BaseURL       string
	TariffBaseURL string
	Timeout       time.Duration
	Retry         RetryPolicy
	CacheTTL      time.Duration
	// OfflineNoticeInterval 离线提示的最小间隔
	OfflineNoticeInterval time.Duration
}

// transportTarget 一个预配置的请求目标
type transportTarget struct {
	baseURL string
	client  *http.Client
}

// Client 统一 API 客户端。
// 所有传输和解析失败都折叠成统一的 Result，不越过边界抛出。
type Client struct {
	general *transportTarget
	tariff  *transportTarget

	tokens   TokenSource
	checker  ConnectivityChecker
	notifier OfflineNotifier
	limiter  *noticeLimiter

	retry RetryPolicy
	cache *cache.ResponseCache

	logger *logger.Logger
}

// NewClient 创建统一 API 客户端
func NewClient(cfg ClientConfig, tokens TokenSource, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	tariffBase := cfg.TariffBaseURL
	if tariffBase == "" {
		tariffBase = cfg.BaseURL
	}

	return &Client{
		general: &transportTarget{
			baseURL: strings.TrimRight(cfg.BaseURL, "/"),
			client:  &http.Client{Timeout: cfg.Timeout},
		},
		tariff: &transportTarget{
			baseURL: strings.TrimRight(tariffBase, "/"),
			client:  &http.Client{Timeout: cfg.Timeout},
		},
		tokens:  tokens,
		checker: AlwaysOnline{},
		limiter: newNoticeLimiter(cfg.OfflineNoticeInterval),
		retry:   cfg.Retry,
		cache:   cache.NewResponseCache(128, cfg.CacheTTL),
		logger:  log.Component("api-client"),
	}
}

// SetConnectivity 注入可达性探测和离线提示回调
func (c *Client) SetConnectivity(checker ConnectivityChecker, notifier OfflineNotifier) {
	if checker != nil {
		c.checker = checker
	}
	c.notifier = notifier
}

// isTariffPath 判断路径是否路由到资费 transport。
// 路由只取决于路径本身，与请求内容无关。
func isTariffPath(path string) bool {
	return strings.HasPrefix(path, "/tariffs")
}

// targetFor 按路径选择 transport
func (c *Client) targetFor(path string) *transportTarget {
	if isTariffPath(path) {
		return c.tariff
	}
	return c.general
}

// Do 执行一次请求/响应调用。
// 传输层失败按策略重试；结构化的远端失败响应不触发重试。
func (c *Client) Do(ctx context.Context, req Request) Result {
	start := time.Now()
	result := c.do(ctx, req)
	metrics.RequestDuration.WithLabelValues(req.Operation).Observe(time.Since(start).Seconds())

	outcome := "success"
	if result.Err != nil {
		outcome = strings.ToLower(string(result.Err.Code))
	}
	metrics.RequestsTotal.WithLabelValues(req.Operation, outcome).Inc()
	return result
}

func (c *Client) do(ctx context.Context, req Request) Result {
	// 离线时提示用户（限频），但请求照常下发，必要时回落到缓存
	if !c.checker.Online() {
		if c.notifier != nil && c.limiter.allow() {
			c.notifier.NotifyOffline("No network connection. Showing the most recent data.")
		}
		c.logger.Debugf("connectivity check reports offline for %s %s", req.Method, req.Path)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return Fail(ErrorCodeClient, fmt.Sprintf("token source failed: %v", err), nil)
	}

	target := c.targetFor(req.Path)
	cacheKey := req.Method + " " + target.baseURL + req.Path + "?" + req.Query.Encode()

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		httpReq, buildErr := c.buildRequest(ctx, target, req, token)
		if buildErr != nil {
			return Fail(ErrorCodeDefault, fmt.Sprintf("failed to build request: %v", buildErr), nil)
		}

		resp, doErr := target.client.Do(httpReq)
		if doErr != nil {
			lastErr = doErr
			c.logger.Warnf("transport failure on %s %s (attempt %d/%d): %v",
				req.Method, req.Path, attempt, c.retry.MaxAttempts, doErr)
			if attempt < c.retry.MaxAttempts {
				metrics.RetriesTotal.WithLabelValues(req.Operation).Inc()
				// 重试计时不随调用方取消而中止，按自身退避节奏到期
				time.Sleep(c.backoffDelay(attempt))
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if attempt < c.retry.MaxAttempts {
				metrics.RetriesTotal.WithLabelValues(req.Operation).Inc()
				time.Sleep(c.backoffDelay(attempt))
			}
			continue
		}

		return c.shapeResponse(req, cacheKey, resp, body)
	}

	// 传输层彻底失败：可缓存的读请求回落到最近一次成功响应
	if req.Cacheable && req.Method == http.MethodGet {
		if data, ok := c.cache.Get(cacheKey); ok {
			c.logger.Infof("serving %s %s from cache after transport failure", req.Method, req.Path)
			headers := http.Header{}
			headers.Set("X-Charging-Cache", "hit")
			return OK(data, headers)
		}
	}

	return Fail(ErrorCodeNetwork, fmt.Sprintf("request failed after %d attempts: %v", c.retry.MaxAttempts, lastErr), nil)
}

// shapeResponse 将 HTTP 响应折叠成统一结果
func (c *Client) shapeResponse(req Request, cacheKey string, resp *http.Response, body []byte) Result {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// 授权失败不重试，由认证协作方决定刷新或登出
		return Fail(ErrorCodeClient, fmt.Sprintf("authorization rejected with status %d", resp.StatusCode), body)

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if req.Cacheable && req.Method == http.MethodGet {
			c.cache.Set(cacheKey, body)
		}
		return OK(body, resp.Header)

	default:
		return Fail(ErrorCodeDefault, fmt.Sprintf("remote returned status %d", resp.StatusCode), body)
	}
}

// buildRequest 按编码方式构造 HTTP 请求
func (c *Client) buildRequest(ctx context.Context, target *transportTarget, req Request, token string) (*http.Request, error) {
	fullURL := target.baseURL + req.Path

	var bodyReader io.Reader
	contentType := ""

	switch req.Encoding {
	case EncodingJSON:
		if req.Body != nil {
			encoded, err := json.Marshal(req.Body)
			if err != nil {
				return nil, fmt.Errorf("json encode: %w", err)
			}
			bodyReader = bytes.NewReader(encoded)
			contentType = "application/json"
		}
	case EncodingForm:
		values, ok := req.Body.(url.Values)
		if !ok && req.Body != nil {
			return nil, fmt.Errorf("form encoding requires url.Values body, got %T", req.Body)
		}
		if values != nil {
			bodyReader = strings.NewReader(values.Encode())
			contentType = "application/x-www-form-urlencoded"
		}
	case EncodingQuery, "":
		// 参数全部走 URL，无请求体
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", req.Encoding)
	}

	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, bodyReader)
	if err != nil {
		return nil, err
	}

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, nil
}

// backoffDelay 计算第 attempt 次尝试后的退避延迟
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.retry.BaseDelay << uint(attempt-1)
	if c.retry.MaxJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(c.retry.MaxJitter)))
	}
	return delay
}
