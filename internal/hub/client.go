package hub

import (
	"sync"
	"time"

	"github.com/CDeX-Labs/CDeX-Live-Service/internal/auth"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

type Client struct {
	ID     string
	UserID string
	Role   auth.Role
	Hub    *Hub

	Conn *websocket.Conn
	Send chan []byte

	limiter *rate.Limiter

	mu          sync.Mutex
	closed      bool
	snapshotSeq map[string]uint64

	logger zerolog.Logger
}

// NewClient builds a connection bound to hub. A nil limiter disables inbound
// throttling.
func NewClient(id string, claims *auth.Claims, conn *websocket.Conn, hub *Hub, limiter *rate.Limiter, logger zerolog.Logger) *Client {
	return &Client{
		ID:          id,
		UserID:      claims.GetUserID(),
		Role:        claims.GetRole(),
		Hub:         hub,
		Conn:        conn,
		Send:        make(chan []byte, sendBufferSize),
		limiter:     limiter,
		snapshotSeq: make(map[string]uint64),
		logger:      logger.With().Str("clientId", id).Str("userId", claims.GetUserID()).Logger(),
	}
}

func (c *Client) Caller() Caller {
	return Caller{UserID: c.UserID, Role: c.Role}
}

// enqueue reports false when the buffer is full or the client is gone.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// enqueueSnapshot queues a sequenced leaderboard snapshot for roomID. A
// snapshot older than the last one queued for that room is skipped and
// reported as stale.
func (c *Client) enqueueSnapshot(roomID string, seq uint64, data []byte) (sent, stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, false
	}
	if seq < c.snapshotSeq[roomID] {
		return false, true
	}

	select {
	case c.Send <- data:
		c.snapshotSeq[roomID] = seq
		return true, false
	default:
		return false, false
	}
}

// close is safe to call more than once.
func (c *Client) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	close(c.Send)
	return true
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.disconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("WebSocket read error")
			}
			break
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.Hub.rejectRateLimited(c)
			continue
		}

		c.Hub.ProcessMessage(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// one envelope per frame
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug().Err(err).Msg("WebSocket write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
