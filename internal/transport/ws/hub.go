package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"tradepost/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 5 * time.Second
	readWait   = 60 * time.Second
	queueDepth = 16
)

// Subscription identifies who a websocket session is looking at.
type Subscription struct {
	Session string
	StoreID string
	Holder  uint64
}

type client struct {
	out     chan []byte
	evicted chan struct{}
	once    sync.Once
}

// evict marks the session for disconnection. Pushes are deltas against what the
// session was last sent, so a session that missed one must reconnect for a full view.
func (c *client) evict() bool {
	first := false
	c.once.Do(func() {
		close(c.evicted)
		first = true
	})
	return first
}

// Hub fans catalog and dynamic-state pushes out to websocket sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*client

	onJoin  func(Subscription)
	onLeave func(session string)

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// OnJoin registers a callback run after a session subscribes.
func (h *Hub) OnJoin(fn func(Subscription)) { h.onJoin = fn }

// OnLeave registers a callback run after a session disconnects.
func (h *Hub) OnLeave(fn func(session string)) { h.onLeave = fn }

// Sessions returns the number of connected sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) subscribe(session string) (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, taken := h.sessions[session]; taken {
		return nil, false
	}
	c := &client{out: make(chan []byte, queueDepth), evicted: make(chan struct{})}
	h.sessions[session] = c
	return c, true
}

func (h *Hub) unsubscribe(session string) {
	h.mu.Lock()
	delete(h.sessions, session)
	h.mu.Unlock()
}

// PushCatalog sends a catalog to its session if connected.
func (h *Hub) PushCatalog(_ context.Context, event *models.CatalogPushEvent) error {
	return h.send(event.Session, event)
}

// PushDynamicState sends a state delta to its session if connected.
func (h *Hub) PushDynamicState(_ context.Context, event *models.DynamicStateEvent) error {
	return h.send(event.Session, event)
}

func (h *Hub) send(session string, v any) error {
	h.mu.RLock()
	c, ok := h.sessions[session]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	select {
	case <-c.evicted:
		return nil
	default:
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.out <- b:
	default:
		if c.evict() {
			h.logger.Warn("Disconnecting slow session", zap.String("session", session))
		}
	}
	return nil
}

// Handler upgrades GET /ws?session=..&store=..&holder=.. to a push channel.
func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sub := Subscription{Session: q.Get("session"), StoreID: q.Get("store")}
		holder, err := strconv.ParseUint(q.Get("holder"), 10, 64)
		if sub.Session == "" || sub.StoreID == "" || err != nil {
			http.Error(rw, "session, store and holder are required", http.StatusBadRequest)
			return
		}
		sub.Holder = holder

		c, ok := h.subscribe(sub.Session)
		if !ok {
			http.Error(rw, "session already connected", http.StatusConflict)
			return
		}
		defer func() {
			h.unsubscribe(sub.Session)
			if h.onLeave != nil {
				h.onLeave(sub.Session)
			}
		}()

		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-c.evicted:
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "push queue overflow"),
						time.Now().Add(writeWait))
					conn.Close()
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		if h.onJoin != nil {
			h.onJoin(sub)
		}
		h.logger.Debug("Session joined", zap.String("session", sub.Session), zap.String("store", sub.StoreID))

		// inbound frames only keep the connection alive
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
