// Package live pushes cache-invalidation notices to connected calendar and
// portal clients over WebSocket, so they refetch after a domain event.
package live

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/event"
)

const (
	sendBuffer   = 16
	writeTimeout = 5 * time.Second
)

// Message is the server-to-client frame.
type Message struct {
	Type      string   `json:"type"` // "hello", "invalidate", "pong"
	Topics    []string `json:"topics,omitempty"`
	EventType string   `json:"eventType,omitempty"`
	EventID   string   `json:"eventId,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
}

type clientMessage struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// Topics maps an event type to the read models it invalidates.
func Topics(eventType string) []string {
	switch eventType {
	case event.TypeContractProvisioned, event.TypeContractCreated:
		return []string{"contracts", "units", "owners", "schedules", "calendar"}
	case event.TypeOwnerAssigned:
		return []string{"owners"}
	case event.TypeTenantAdded:
		return []string{"contracts"}
	case event.TypePaymentSubmitted, event.TypePaymentVerified, event.TypePaymentRejected,
		event.TypePaymentsMaterialized:
		return []string{"payments", "payments-summary", "calendar"}
	case event.TypeReceiptApproved, event.TypeReceiptRejected:
		return []string{"receipts"}
	}
	return nil
}

type client struct {
	send chan Message
}

// Hub tracks connected clients and broadcasts invalidations. It is both an
// http.Handler for the upgrade and an event bus subscriber.
type Hub struct {
	log            *zap.Logger
	originPatterns []string

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates a hub. originPatterns is passed to the WebSocket handshake;
// nil allows same-origin only.
func NewHub(log *zap.Logger, originPatterns []string) *Hub {
	return &Hub{
		log:            log.Named("live"),
		originPatterns: originPatterns,
		clients:        make(map[*client]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleEvent broadcasts an invalidate frame for events that touch a read
// model. Slow clients miss frames instead of blocking the bus.
func (h *Hub) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	topics := Topics(evt.EventType)
	if len(topics) == 0 {
		return nil
	}
	h.broadcast(Message{Type: "invalidate", Topics: topics, EventType: evt.EventType, EventID: evt.ID})
	return nil
}

func (h *Hub) broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Debug("client buffer full, dropping frame", zap.String("type", msg.EventType))
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ServeHTTP upgrades the connection and streams frames until either side
// closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.log.Warn("websocket accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{send: make(chan Message, sendBuffer)}
	c.send <- Message{Type: "hello"}
	h.register(c)
	defer h.unregister(c)

	go func() {
		defer cancel()
		for {
			var msg clientMessage
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				if status := websocket.CloseStatus(err); status != -1 {
					h.log.Debug("client closed", zap.Int("status", int(status)))
				}
				return
			}
			if msg.Type == "ping" {
				select {
				case c.send <- Message{Type: "pong", RequestID: msg.ID}:
				default:
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg := <-c.send:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, msg)
			wcancel()
			if err != nil {
				h.log.Debug("write failed", zap.Error(err))
				return
			}
		}
	}
}
