package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"demandForecastApp/internal/app/dto"
	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/useCases"
)

const writeWait = 5 * time.Second

// WebSocketBroadcaster pushes run reports to connected dashboard clients.
type WebSocketBroadcaster struct {
	clients  map[*websocket.Conn]struct{}
	mu       sync.Mutex
	upgrader websocket.Upgrader
	log      *zap.Logger
}

var _ useCases.Broadcaster = (*WebSocketBroadcaster)(nil)

func NewWebSocketBroadcaster(log *zap.Logger) *WebSocketBroadcaster {
	return &WebSocketBroadcaster{
		clients:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		log:      log.Named("websocket"),
	}
}

func (b *WebSocketBroadcaster) BroadcastRun(report *model.RunReport) {
	if report == nil {
		return
	}
	msg, err := json.Marshal(dto.FromRunReport(report))
	if err != nil {
		b.log.Error("failed to marshal run report", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.log.Debug("dropping websocket client", zap.Error(err))
			c.Close()
			delete(b.clients, c)
		}
	}
}

// Clients reports the number of connected clients.
func (b *WebSocketBroadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Handler returns an http.HandlerFunc to accept websocket connections.
func (b *WebSocketBroadcaster) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.log.Warn("websocket upgrade error", zap.Error(err))
			return
		}
		b.mu.Lock()
		b.clients[conn] = struct{}{}
		b.mu.Unlock()

		// Reads only detect the client going away.
		go func() {
			defer func() {
				b.mu.Lock()
				delete(b.clients, conn)
				b.mu.Unlock()
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
