package handlers

import (
	"net/http"

	"github.com/CDeX-Labs/CDeX-Live-Service/internal/auth"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/hub"
	"github.com/CDeX-Labs/CDeX-Live-Service/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// MessageLimit bounds inbound socket messages per connection. A zero Rate
// disables the limit.
type MessageLimit struct {
	Rate  float64
	Burst int
}

type WebSocketHandler struct {
	hub    *hub.Hub
	limit  MessageLimit
	logger zerolog.Logger
}

func NewWebSocketHandler(h *hub.Hub, limit MessageLimit, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    h,
		limit:  limit,
		logger: logger.With().Str("component", "ws-handler").Logger(),
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	var limiter *rate.Limiter
	if h.limit.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.limit.Rate), max(h.limit.Burst, 1))
	}

	clientID := uuid.NewString()
	client := hub.NewClient(clientID, claims, conn, h.hub, limiter, h.logger)

	if !h.hub.Attach(client) {
		h.logger.Warn().Str("clientId", clientID).Msg("Hub stopped, dropping connection")
		conn.Close()
		return
	}

	connectedMsg, _ := protocol.NewMessage(protocol.MsgConnected, protocol.ConnectedPayload{
		UserID:     claims.GetUserID(),
		InstanceID: h.hub.InstanceID(),
	})
	h.hub.SendToClient(client, connectedMsg)

	h.logger.Info().
		Str("clientId", clientID).
		Str("userId", claims.GetUserID()).
		Str("role", claims.GetRole().String()).
		Str("remoteAddr", r.RemoteAddr).
		Msg("WebSocket connection established")

	go client.WritePump()
	go client.ReadPump()
}
