package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/CDeX-Labs/CDeX-Live-Service/internal/contest"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/metrics"
	"github.com/CDeX-Labs/CDeX-Live-Service/pkg/protocol"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultSnapshotTimeout = 5 * time.Second
	presenceTimeout        = 3 * time.Second
	relayTimeout           = 3 * time.Second
)

// SnapshotSource produces the leaderboard snapshot a client receives right
// after joining a leaderboard room.
type SnapshotSource interface {
	SendLeaderboardSnapshot(ctx context.Context, contestID string, deliver func(*protocol.Message)) error
}

// Relay mirrors local publishes to other instances.
type Relay interface {
	PublishToRoom(ctx context.Context, roomID string, data []byte) error
}

type PresenceTracker interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	RefreshPresence(ctx context.Context, userID string) error
}

type Hub struct {
	clients     map[*Client]bool
	userClients map[string]map[*Client]bool
	Register    chan *Client
	Unregister  chan *Client
	done        chan struct{}
	mu          sync.RWMutex
	logger      zerolog.Logger
	rooms       *RoomManager
	metrics     *metrics.Metrics
	instanceID  string

	relay           Relay
	presence        PresenceTracker
	presenceQueue   *presenceQueue
	snapshots       SnapshotSource
	snapshotTimeout time.Duration
}

func NewHub(logger zerolog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:         make(map[*Client]bool),
		userClients:     make(map[string]map[*Client]bool),
		Register:        make(chan *Client),
		Unregister:      make(chan *Client),
		done:            make(chan struct{}),
		rooms:           NewRoomManager(m),
		presenceQueue:   newPresenceQueue(),
		metrics:         m,
		instanceID:      uuid.NewString(),
		snapshotTimeout: defaultSnapshotTimeout,
		logger:          logger.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) SetRelay(relay Relay) {
	h.relay = relay
}

func (h *Hub) SetPresence(presence PresenceTracker) {
	h.presence = presence
}

// UseSnapshots enables snapshot-on-join for leaderboard rooms.
func (h *Hub) UseSnapshots(source SnapshotSource, timeout time.Duration) {
	h.snapshots = source
	if timeout > 0 {
		h.snapshotTimeout = timeout
	}
}

func (h *Hub) InstanceID() string {
	return h.instanceID
}

func (h *Hub) Rooms() *RoomManager {
	return h.rooms
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

// Attach hands a new connection to Run. It reports false once Run has
// stopped, in which case the client was not registered.
func (h *Hub) Attach(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// disconnect hands the client to Run, or unregisters it directly once Run
// has stopped.
func (h *Hub) disconnect(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
		h.unregisterClient(client)
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true

	if h.userClients[client.UserID] == nil {
		h.userClients[client.UserID] = make(map[*Client]bool)
	}
	h.userClients[client.UserID][client] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.IncConnections()
	h.runPresence(client.UserID, func(ctx context.Context, p PresenceTracker) error {
		return p.SetOnline(ctx, client.UserID)
	})

	h.logger.Info().
		Str("clientId", client.ID).
		Str("userId", client.UserID).
		Int("totalClients", total).
		Msg("Client registered")
}

// unregisterClient releases every room membership and closes the outbound
// queue. Repeated calls for the same client are no-ops.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, registered := h.clients[client]
	lastConnection := false
	if registered {
		delete(h.clients, client)
		if userClients, ok := h.userClients[client.UserID]; ok {
			delete(userClients, client)
			if len(userClients) == 0 {
				delete(h.userClients, client.UserID)
				lastConnection = true
			}
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	left := h.rooms.DropConnection(client.ID)
	client.close()

	if !registered {
		return
	}

	h.metrics.DecConnections()
	if lastConnection {
		h.runPresence(client.UserID, func(ctx context.Context, p PresenceTracker) error {
			return p.SetOffline(ctx, client.UserID)
		})
	}

	h.logger.Info().
		Str("clientId", client.ID).
		Str("userId", client.UserID).
		Int("roomsLeft", len(left)).
		Int("totalClients", total).
		Msg("Client unregistered")
}

func (h *Hub) shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.unregisterClient(client)
	}
	h.logger.Info().Int("clients", len(clients)).Msg("Hub stopped")
}

// runPresence applies presence updates off the caller's goroutine, one user
// at a time and in call order, so a quick reconnect cannot leave a stale
// online or offline marker behind.
func (h *Hub) runPresence(userID string, fn func(context.Context, PresenceTracker) error) {
	if h.presence == nil {
		return
	}
	presence := h.presence
	update := func() {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		if err := fn(ctx, presence); err != nil {
			h.logger.Warn().Err(err).Str("userId", userID).Msg("Presence update failed")
		}
	}
	if h.presenceQueue.push(userID, update) {
		go h.presenceQueue.drain(userID)
	}
}

func (h *Hub) ProcessMessage(client *Client, data []byte) {
	h.metrics.IncMessagesReceived()

	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Debug().Err(err).Str("clientId", client.ID).Msg("Failed to parse message")
		h.sendError(client, "PARSE_ERROR", "Invalid message format", "")
		return
	}

	h.logger.Debug().
		Str("clientId", client.ID).
		Str("type", string(msg.Type)).
		Msg("Processing message")

	switch msg.Type {
	case protocol.MsgJoinRoom:
		h.handleJoinRoom(client, msg)
	case protocol.MsgLeaveRoom:
		h.handleLeaveRoom(client, msg)
	case protocol.MsgPing:
		h.handlePing(client, msg)
	default:
		h.sendError(client, "UNKNOWN_TYPE", "Unknown message type", msg.RequestID)
	}
}

func (h *Hub) handleJoinRoom(client *Client, msg *protocol.Message) {
	var payload protocol.JoinRoomPayload
	if err := msg.DecodePayload(&payload); err != nil {
		h.sendError(client, "INVALID_PAYLOAD", "Invalid join room payload", msg.RequestID)
		return
	}

	roomType, entityID, valid := ParseRoomID(payload.RoomID)
	if !valid {
		h.sendError(client, "INVALID_ROOM", "Unknown room", msg.RequestID)
		return
	}

	members, joined := h.rooms.Join(client, payload.RoomID)
	if !joined {
		h.logger.Debug().
			Str("clientId", client.ID).
			Str("roomId", payload.RoomID).
			Msg("Join rejected")
		return
	}

	h.logger.Info().
		Str("clientId", client.ID).
		Str("roomId", payload.RoomID).
		Int("memberCount", members).
		Msg("Client joined room")

	response, _ := protocol.NewMessageWithRequestID(protocol.MsgRoomJoined, protocol.RoomJoinedPayload{
		RoomID:      payload.RoomID,
		MemberCount: members,
	}, msg.RequestID)
	h.SendToClient(client, response)

	if roomType == RoomTypeLeaderboard {
		h.sendSnapshot(client, entityID, msg.RequestID)
	}
}

func (h *Hub) sendSnapshot(client *Client, contestID, requestID string) {
	if h.snapshots == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.snapshotTimeout)
	defer cancel()

	roomID := BuildRoomID(RoomTypeLeaderboard, contestID)
	err := h.snapshots.SendLeaderboardSnapshot(ctx, contestID, func(snapshot *protocol.Message) {
		data, err := snapshot.ToBytes()
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to serialize snapshot")
			return
		}
		if seq, ok := snapshotSequence(data); ok {
			h.deliverSnapshot(client, roomID, seq, data)
			return
		}
		h.deliver(client, data)
	})
	switch {
	case err == nil:
	case errors.Is(err, contest.ErrNotFound):
		h.sendError(client, "NOT_FOUND", "Contest not found", requestID)
	default:
		h.logger.Error().Err(err).Str("contestId", contestID).Msg("Failed to build leaderboard snapshot")
		h.sendError(client, "SNAPSHOT_FAILED", "Leaderboard is temporarily unavailable", requestID)
	}
}

func (h *Hub) handleLeaveRoom(client *Client, msg *protocol.Message) {
	var payload protocol.LeaveRoomPayload
	if err := msg.DecodePayload(&payload); err != nil {
		h.sendError(client, "INVALID_PAYLOAD", "Invalid leave room payload", msg.RequestID)
		return
	}

	if h.rooms.Leave(client.ID, payload.RoomID) {
		h.logger.Info().
			Str("clientId", client.ID).
			Str("roomId", payload.RoomID).
			Msg("Client left room")
	}

	response, _ := protocol.NewMessageWithRequestID(protocol.MsgRoomLeft, protocol.RoomLeftPayload{
		RoomID: payload.RoomID,
	}, msg.RequestID)
	h.SendToClient(client, response)
}

func (h *Hub) handlePing(client *Client, msg *protocol.Message) {
	h.runPresence(client.UserID, func(ctx context.Context, p PresenceTracker) error {
		return p.RefreshPresence(ctx, client.UserID)
	})

	response, _ := protocol.NewMessageWithRequestID(protocol.MsgPong, nil, msg.RequestID)
	h.SendToClient(client, response)
}

func (h *Hub) rejectRateLimited(client *Client) {
	h.metrics.IncRateLimited("socket")
	h.sendError(client, "RATE_LIMITED", "Too many messages", "")
}

func (h *Hub) SendToClient(client *Client, msg *protocol.Message) {
	data, err := msg.ToBytes()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to serialize message")
		return
	}
	h.deliver(client, data)
}

func (h *Hub) deliver(client *Client, data []byte) bool {
	return h.settle(client, client.enqueue(data))
}

// deliverSnapshot never lets a client's leaderboard sequence go backwards.
func (h *Hub) deliverSnapshot(client *Client, roomID string, seq uint64, data []byte) bool {
	sent, stale := client.enqueueSnapshot(roomID, seq, data)
	if stale {
		h.metrics.IncStaleSnapshots()
		h.logger.Debug().
			Str("clientId", client.ID).
			Str("roomId", roomID).
			Uint64("sequence", seq).
			Msg("Skipping stale leaderboard snapshot")
		return false
	}
	return h.settle(client, sent)
}

func (h *Hub) settle(client *Client, sent bool) bool {
	if sent {
		h.metrics.IncMessagesSent()
		return true
	}
	if client.isClosed() {
		return false
	}

	h.metrics.IncSlowClients()
	h.logger.Warn().Str("clientId", client.ID).Msg("Client send buffer full, disconnecting")
	h.unregisterClient(client)
	return false
}

// Publish delivers msg to every local subscriber of roomID and mirrors it to
// other instances when a relay is configured. It returns the number of local
// subscribers that accepted the message.
func (h *Hub) Publish(ctx context.Context, roomID string, msg *protocol.Message) (int, error) {
	data, err := msg.ToBytes()
	if err != nil {
		return 0, err
	}

	delivered := h.DeliverLocal(roomID, data)

	if h.relay != nil {
		relayCtx, cancel := context.WithTimeout(ctx, relayTimeout)
		defer cancel()
		if err := h.relay.PublishToRoom(relayCtx, roomID, data); err != nil {
			h.logger.Warn().Err(err).Str("roomId", roomID).Msg("Failed to relay message")
		}
	}

	return delivered, nil
}

// DeliverLocal writes an already encoded message to this instance's
// subscribers only.
func (h *Hub) DeliverLocal(roomID string, data []byte) int {
	var (
		seq       uint64
		sequenced bool
	)
	if roomType, _, _ := ParseRoomID(roomID); roomType == RoomTypeLeaderboard {
		seq, sequenced = snapshotSequence(data)
	}

	delivered := 0
	for _, client := range h.rooms.Subscribers(roomID) {
		var ok bool
		if sequenced {
			ok = h.deliverSnapshot(client, roomID, seq, data)
		} else {
			ok = h.deliver(client, data)
		}
		if ok {
			delivered++
		}
	}
	return delivered
}

// snapshotSequence reads payload.sequence from an encoded leaderboard
// snapshot without decoding the entries.
func snapshotSequence(data []byte) (uint64, bool) {
	node, err := sonic.Get(data, "payload", "sequence")
	if err != nil {
		return 0, false
	}
	seq, err := node.Int64()
	if err != nil || seq < 0 {
		return 0, false
	}
	return uint64(seq), true
}

func (h *Hub) sendError(client *Client, code, message, requestID string) {
	errMsg, _ := protocol.NewErrorMessage(code, message, requestID)
	h.SendToClient(client, errMsg)
}

func (h *Hub) GetStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"instanceId":   h.instanceID,
		"totalClients": len(h.clients),
		"totalUsers":   len(h.userClients),
		"rooms":        h.rooms.GetStats(),
	}
}
