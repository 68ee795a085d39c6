package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradepost/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestJoinPushesToSession(t *testing.T) {
	hub := NewHub(nil)
	joined := make(chan Subscription, 1)
	hub.OnJoin(func(s Subscription) {
		joined <- s
		_ = hub.PushDynamicState(context.Background(), &models.DynamicStateEvent{Session: s.Session, StoreID: s.StoreID, Balances: map[string]int64{"Credits": 5}})
	})

	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	conn := dial(t, srv, "session=s1&store=general-1&holder=7")

	select {
	case sub := <-joined:
		assert.Equal(t, Subscription{Session: "s1", StoreID: "general-1", Holder: 7}, sub)
	case <-time.After(2 * time.Second):
		t.Fatal("join callback not called")
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var got models.DynamicStateEvent
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, int64(5), got.Balances["Credits"])
}

func TestLeaveForgetsSession(t *testing.T) {
	hub := NewHub(nil)
	left := make(chan string, 1)
	hub.OnLeave(func(session string) { left <- session })

	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	conn := dial(t, srv, "session=s2&store=general-1&holder=1")
	assert.Equal(t, 1, hub.Sessions())
	conn.Close()

	select {
	case session := <-left:
		assert.Equal(t, "s2", session)
	case <-time.After(2 * time.Second):
		t.Fatal("leave callback not called")
	}
	assert.Equal(t, 0, hub.Sessions())
}

func TestRejectsBadQueryAndDuplicateSession(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/ws?session=s3")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	dial(t, srv, "session=s3&store=general-1&holder=1")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=s3&store=general-1&holder=1"
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPushToUnknownSessionIsIgnored(t *testing.T) {
	hub := NewHub(nil)
	assert.NoError(t, hub.PushCatalog(context.Background(), &models.CatalogPushEvent{Session: "nobody"}))
}

func TestFullQueueEvictsSession(t *testing.T) {
	hub := NewHub(nil)
	c, ok := hub.subscribe("slow")
	require.True(t, ok)

	push := func(n int) error {
		return hub.PushDynamicState(context.Background(), &models.DynamicStateEvent{Session: "slow", Balances: map[string]int64{"Credits": int64(n)}})
	}
	for i := 0; i < queueDepth; i++ {
		require.NoError(t, push(i))
	}
	select {
	case <-c.evicted:
		t.Fatal("evicted before the queue overflowed")
	default:
	}

	require.NoError(t, push(queueDepth))
	select {
	case <-c.evicted:
	default:
		t.Fatal("overflowing session not evicted")
	}

	require.NoError(t, push(queueDepth+1))
	assert.Len(t, c.out, queueDepth)
}

func TestEvictedSessionIsDisconnected(t *testing.T) {
	hub := NewHub(nil)
	left := make(chan string, 1)
	hub.OnLeave(func(session string) { left <- session })

	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	conn := dial(t, srv, "session=s4&store=general-1&holder=1")
	hub.mu.RLock()
	c := hub.sessions["s4"]
	hub.mu.RUnlock()
	require.NotNil(t, c)
	require.True(t, c.evict())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), err.Error())

	select {
	case session := <-left:
		assert.Equal(t, "s4", session)
	case <-time.After(2 * time.Second):
		t.Fatal("leave callback not called")
	}
	assert.Equal(t, 0, hub.Sessions())
}
