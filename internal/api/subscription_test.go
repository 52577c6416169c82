package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/charging-session-client/internal/domain/session"
)

// pushServer 测试用的推送端，记录每次订阅的过滤键并回放给定事件
type pushServer struct {
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribed  []SubscriptionKey
	payloads    []string
	server      *httptest.Server
}

func newPushServer(t *testing.T, payloads []string) *pushServer {
	t.Helper()
	ps := &pushServer{payloads: payloads}
	ps.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := SubscriptionKey{
			DeviceID:      r.URL.Query().Get("device_id"),
			CorrelationID: r.URL.Query().Get("emp_session_id"),
		}
		ps.mu.Lock()
		ps.subscribed = append(ps.subscribed, key)
		ps.mu.Unlock()

		conn, err := ps.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, payload := range ps.payloads {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
				return
			}
		}
		// 保持连接直到客户端断开
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return ps
}

func (ps *pushServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ps.server.URL, "http")
}

func (ps *pushServer) keys() []SubscriptionKey {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]SubscriptionKey(nil), ps.subscribed...)
}

func TestSubscriberDeliversMatchingEvents(t *testing.T) {
	ps := newPushServer(t, []string{
		`{"device_id":"dev-1","emp_session_id":"emp-1","session_id":"sess-1","state":"running","meter_start":1000}`,
		`{"device_id":"dev-2","emp_session_id":"emp-9","session_id":"sess-9","state":"running"}`,
		`{"device_id":"dev-1","emp_session_id":"emp-1","session_id":"sess-1","state":"closed","meter_end":4500}`,
	})
	defer ps.server.Close()

	sub := NewSubscriber(SubscriberConfig{
		URL:            ps.wsURL(),
		ReconnectDelay: 50 * time.Millisecond,
	}, testLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub.SetKey(SubscriptionKey{DeviceID: "dev-1", CorrelationID: "emp-1"})
	sub.Start(ctx)
	defer sub.Stop()

	first := <-sub.Events()
	require.NotNil(t, first.State)
	assert.Equal(t, session.StateRunning, *first.State)
	assert.Equal(t, "sess-1", first.SessionID)

	// dev-2 的事件不匹配过滤键，被丢弃
	second := <-sub.Events()
	require.NotNil(t, second.State)
	assert.Equal(t, session.StateClosed, *second.State)
	require.NotNil(t, second.MeterEnd)
	assert.Equal(t, int64(4500), *second.MeterEnd)
}

// TestSubscriberSkipsWithIncompleteKey 键不完整时不建立订阅
func TestSubscriberSkipsWithIncompleteKey(t *testing.T) {
	ps := newPushServer(t, nil)
	defer ps.server.Close()

	sub := NewSubscriber(SubscriberConfig{
		URL:            ps.wsURL(),
		ReconnectDelay: 20 * time.Millisecond,
	}, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub.SetKey(SubscriptionKey{DeviceID: "dev-1"}) // 缺少关联ID
	sub.Start(ctx)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, ps.keys())

	sub.Stop()
}

// TestSubscriberResubscribesOnKeyChange 键变化时以新键重建订阅
func TestSubscriberResubscribesOnKeyChange(t *testing.T) {
	ps := newPushServer(t, nil)
	defer ps.server.Close()

	sub := NewSubscriber(SubscriberConfig{
		URL:            ps.wsURL(),
		ReconnectDelay: 20 * time.Millisecond,
	}, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub.SetKey(SubscriptionKey{DeviceID: "dev-1", CorrelationID: "emp-1"})
	sub.Start(ctx)

	require.Eventually(t, func() bool {
		return len(ps.keys()) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	sub.SetKey(SubscriptionKey{DeviceID: "dev-1", CorrelationID: "emp-2"})

	require.Eventually(t, func() bool {
		keys := ps.keys()
		return len(keys) >= 2 && keys[len(keys)-1].CorrelationID == "emp-2"
	}, 2*time.Second, 10*time.Millisecond)

	sub.Stop()
}

// TestSubscriberStopClosesEventChannel 停止后事件通道关闭
func TestSubscriberStopClosesEventChannel(t *testing.T) {
	ps := newPushServer(t, nil)
	defer ps.server.Close()

	sub := NewSubscriber(SubscriberConfig{URL: ps.wsURL()}, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	sub.SetKey(SubscriptionKey{DeviceID: "dev-1", CorrelationID: "emp-1"})
	sub.Start(ctx)

	cancel()
	sub.Stop()

	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestSetKeyIgnoresNoChange(t *testing.T) {
	sub := NewSubscriber(SubscriberConfig{URL: "ws://unused"}, testLogger(t))

	key := SubscriptionKey{DeviceID: "dev-1", CorrelationID: "emp-1"}
	sub.SetKey(key)
	// 消费掉第一次变化信号
	<-sub.keyChanged

	sub.SetKey(key)
	select {
	case <-sub.keyChanged:
		t.Fatal("unchanged key must not signal a resubscribe")
	default:
	}
}
