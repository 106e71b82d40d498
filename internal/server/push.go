package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/colloquyhq/colloquy/internal/observe"
)

// defaultPushBuffer is the per-subscriber send queue length.
const defaultPushBuffer = 128

// subscriber is one WebSocket connection's send queue.
type subscriber struct {
	ch chan []byte
}

// Hub fans server-initiated events out to WebSocket subscribers, keyed by
// user id. A slow subscriber never blocks the sender: when its queue is full
// the oldest pending event is dropped to make room.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscriber]struct{}
	buffer  int
	metrics *observe.Metrics
	log     *slog.Logger
}

// NewHub returns a hub with the given per-subscriber buffer. Zero means 128.
func NewHub(buffer int, log *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultPushBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		subs:    make(map[string]map[*subscriber]struct{}),
		buffer:  buffer,
		metrics: observe.DefaultMetrics(),
		log:     log,
	}
}

// Notify queues event for every subscriber of userID. Implements
// [dialogue.Notifier]. Marshal failures and absent subscribers are silent;
// push is best-effort by contract.
func (h *Hub) Notify(userID string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Warn("push event not serializable", "user", userID, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[userID] {
		for {
			select {
			case sub.ch <- data:
			default:
				// Queue full: drop the oldest pending event and retry.
				select {
				case <-sub.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// SubscriberCount reports connected subscribers for userID.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

func (h *Hub) add(userID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}
}

func (h *Hub) remove(userID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[userID], sub)
	if len(h.subs[userID]) == 0 {
		delete(h.subs, userID)
	}
}

// ServeWS upgrades the request and streams queued events until the client
// disconnects. The userId query parameter selects the subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("websocket accept failed", "user", userID, "error", err)
		return
	}

	sub := &subscriber{ch: make(chan []byte, h.buffer)}
	h.add(userID, sub)
	h.metrics.PushSubscribers.Add(r.Context(), 1)
	defer func() {
		h.remove(userID, sub)
		h.metrics.PushSubscribers.Add(context.Background(), -1)
	}()

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case data := <-sub.ch:
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				h.log.Debug("push write failed", "user", userID, "error", err)
				conn.Close(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}
