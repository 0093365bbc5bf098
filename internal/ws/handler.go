// Package ws streams request lifecycle events and extension messages to
// WebSocket subscribers.
//
// The handler registers a single observer on the interception engine and
// fans events out to every connected client. It also owns the receive
// side of each enabled extension's background channel: delivered
// messages surface as extension_message frames, and subscribers answer
// through the messages API. A slow client loses frames rather than
// stalling the engine.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lumen-browser/extengine/internal/domain/messaging"
	"github.com/lumen-browser/extengine/internal/domain/webrequest"
	"github.com/lumen-browser/extengine/internal/infrastructure/monitoring"
	"github.com/lumen-browser/extengine/internal/shared/types"
)

const subscriberBuffer = 128

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The control API fronts this; origin policy lives in CORS config.
		return true
	},
}

type subscriber struct {
	events chan []byte
	done   chan struct{}
}

// Handler fans request events and extension messages out to WebSocket
// subscribers.
type Handler struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	bus     *messaging.Bus
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandler creates the event feed and hooks it into the engine.
func NewHandler(engine *webrequest.Engine, bus *messaging.Bus, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		subs:    make(map[*subscriber]struct{}),
		bus:     bus,
		metrics: metrics,
		logger:  logger,
	}
	engine.AddObserver(h.broadcast)
	return h
}

// AttachExtension registers the extension's background channel on the
// bus and pumps delivered messages into the stream. Called by the
// extension manager on enable; the previous channel, if any, is dropped
// by the bus and its pump exits.
func (h *Handler) AttachExtension(extensionID string) {
	ch := h.bus.RegisterChannel(extensionID)
	go h.pump(extensionID, ch)
}

// RemoveExtension drops the extension's channels and pending
// correlators. Called by the extension manager on disable and uninstall.
func (h *Handler) RemoveExtension(extensionID string) {
	h.bus.RemoveExtension(extensionID)
}

// pump forwards one channel's messages until the bus drops it. Messages
// still buffered at teardown are discarded with the channel.
func (h *Handler) pump(extensionID string, ch *messaging.Channel) {
	for {
		select {
		case msg := <-ch.C:
			h.broadcastMessage(extensionID, msg)
		case <-ch.Done():
			return
		}
	}
}

// broadcast serializes one request event and offers it to every
// subscriber.
func (h *Handler) broadcast(event types.RequestEvent, details types.RequestDetails) {
	payload, err := sonic.Marshal(map[string]interface{}{
		"type":      "request_event",
		"event":     event,
		"details":   details,
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		h.logger.Warn("event marshal failed", zap.Error(err))
		return
	}
	h.fanout(payload)
}

// broadcastMessage surfaces one delivered extension message. The frame
// carries the message id, so a subscriber can resolve a pending
// send-wait through the messages API.
func (h *Handler) broadcastMessage(extensionID string, msg types.ExtensionMessage) {
	payload, err := sonic.Marshal(map[string]interface{}{
		"type":         "extension_message",
		"extension_id": extensionID,
		"message":      msg,
		"timestamp":    time.Now().Unix(),
	})
	if err != nil {
		h.logger.Warn("message marshal failed", zap.Error(err))
		return
	}
	h.fanout(payload)
}

// fanout offers one serialized frame to every subscriber. Full
// subscriber buffers drop the frame for that subscriber only.
func (h *Handler) fanout(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.events <- payload:
		default:
			h.logger.Debug("dropping frame for slow subscriber")
		}
	}
}

// HandleConnection upgrades the request and serves the event stream
// until the client disconnects.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	sub := &subscriber{
		events: make(chan []byte, subscriberBuffer),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
	}()

	conn.WriteJSON(map[string]interface{}{
		"type":    "system",
		"message": "subscribed to engine events",
	})

	go h.writeLoop(conn, sub)
	h.readLoop(conn, sub)
}

// writeLoop pumps buffered events to the connection.
func (h *Handler) writeLoop(conn *websocket.Conn, sub *subscriber) {
	for {
		select {
		case payload := <-sub.events:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-sub.done:
			return
		}
	}
}

// readLoop consumes client frames until disconnect. Only ping is
// recognized; everything else is answered with an error frame. Replies
// go through the subscriber queue so the write loop stays the only
// writer on the connection.
func (h *Handler) readLoop(conn *websocket.Conn, sub *subscriber) {
	defer close(sub.done)

	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		var reply map[string]interface{}
		switch msg.Type {
		case "ping":
			reply = map[string]interface{}{"type": "pong"}
		default:
			reply = map[string]interface{}{
				"type":    "error",
				"message": "unknown message type",
			}
		}
		if payload, err := sonic.Marshal(reply); err == nil {
			select {
			case sub.events <- payload:
			default:
			}
		}
	}
}
