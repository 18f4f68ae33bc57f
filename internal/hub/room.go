package hub

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/CDeX-Labs/CDeX-Live-Service/internal/auth"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/metrics"
)

type RoomType string

const (
	RoomTypeContests      RoomType = "contests"
	RoomTypeLeaderboard   RoomType = "leaderboard"
	RoomTypeSubmissions   RoomType = "submissions"
	RoomTypeContestStatus RoomType = "contest-status"
	RoomTypeActivity      RoomType = "activity"
	RoomTypePlagiarism    RoomType = "plagiarism"
)

// GlobalRoomID is the single room every contest status summary goes to.
const GlobalRoomID = "contests"

type Room struct {
	ID        string
	Type      RoomType
	CreatedAt time.Time

	clients map[string]*Client
}

func newRoom(id string, roomType RoomType) *Room {
	return &Room{
		ID:        id,
		Type:      roomType,
		CreatedAt: time.Now(),
		clients:   make(map[string]*Client),
	}
}

// ParseRoomID splits "type:entity" and reports whether the room is one the
// service knows about.
func ParseRoomID(roomID string) (RoomType, string, bool) {
	if roomID == GlobalRoomID {
		return RoomTypeContests, "", true
	}

	parts := strings.SplitN(roomID, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", false
	}

	switch RoomType(parts[0]) {
	case RoomTypeLeaderboard, RoomTypeSubmissions, RoomTypeContestStatus, RoomTypeActivity, RoomTypePlagiarism:
		return RoomType(parts[0]), parts[1], true
	default:
		return "", "", false
	}
}

func BuildRoomID(roomType RoomType, entityID string) string {
	if roomType == RoomTypeContests {
		return GlobalRoomID
	}
	return string(roomType) + ":" + entityID
}

// ErrUnauthorized is never sent to clients; a rejected join looks the same as
// a join that never happened.
var ErrUnauthorized = errors.New("not allowed to join room")

// Caller identifies who is asking to join a room.
type Caller struct {
	UserID string
	Role   auth.Role
}

// Authorize applies the per room type access policy.
func Authorize(roomID string, caller Caller) error {
	roomType, entityID, ok := ParseRoomID(roomID)
	if !ok {
		return ErrUnauthorized
	}

	switch roomType {
	case RoomTypePlagiarism:
		if !caller.Role.CanReviewPlagiarism() {
			return ErrUnauthorized
		}
	case RoomTypeActivity:
		if caller.UserID != entityID && caller.Role != auth.RoleAdmin {
			return ErrUnauthorized
		}
	}
	return nil
}

// RoomManager keeps the room -> clients index and the client -> rooms index
// under one lock so they never disagree.
type RoomManager struct {
	rooms       map[string]*Room
	memberships map[string]map[string]struct{}
	mu          sync.RWMutex
	metrics     *metrics.Metrics
}

func NewRoomManager(m *metrics.Metrics) *RoomManager {
	return &RoomManager{
		rooms:       make(map[string]*Room),
		memberships: make(map[string]map[string]struct{}),
		metrics:     m,
	}
}

// Join subscribes the client to roomID. Joining twice is a no-op. A join the
// caller is not allowed to make is dropped without an error so the room's
// existence is not revealed; ok reports whether the client is a member.
func (rm *RoomManager) Join(client *Client, roomID string) (members int, ok bool) {
	if err := Authorize(roomID, client.Caller()); err != nil {
		return 0, false
	}
	roomType, _, _ := ParseRoomID(roomID)

	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, exists := rm.rooms[roomID]
	if !exists {
		room = newRoom(roomID, roomType)
		rm.rooms[roomID] = room
	}

	if _, already := room.clients[client.ID]; !already {
		room.clients[client.ID] = client

		joined := rm.memberships[client.ID]
		if joined == nil {
			joined = make(map[string]struct{})
			rm.memberships[client.ID] = joined
		}
		joined[roomID] = struct{}{}

		rm.metrics.IncRoomSubscriptions(string(roomType))
	}

	return len(room.clients), true
}

// Leave is a no-op when the client is not in the room.
func (rm *RoomManager) Leave(clientID, roomID string) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.leaveLocked(clientID, roomID)
}

func (rm *RoomManager) leaveLocked(clientID, roomID string) bool {
	room, exists := rm.rooms[roomID]
	if !exists {
		return false
	}
	if _, member := room.clients[clientID]; !member {
		return false
	}

	delete(room.clients, clientID)
	if joined := rm.memberships[clientID]; joined != nil {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(rm.memberships, clientID)
		}
	}

	if len(room.clients) == 0 && room.Type != RoomTypeContests {
		delete(rm.rooms, roomID)
	}

	rm.metrics.DecRoomSubscriptions(string(room.Type))
	return true
}

// DropConnection removes the client from every room it joined and returns
// those rooms.
func (rm *RoomManager) DropConnection(clientID string) []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	joined := rm.memberships[clientID]
	left := make([]string, 0, len(joined))
	for roomID := range joined {
		left = append(left, roomID)
	}
	for _, roomID := range left {
		rm.leaveLocked(clientID, roomID)
	}
	return left
}

func (rm *RoomManager) SubscriberCount(roomID string) int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	room, exists := rm.rooms[roomID]
	if !exists {
		return 0
	}
	return len(room.clients)
}

func (rm *RoomManager) Subscribers(roomID string) []*Client {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	room, exists := rm.rooms[roomID]
	if !exists {
		return nil
	}

	clients := make([]*Client, 0, len(room.clients))
	for _, client := range room.clients {
		clients = append(clients, client)
	}
	return clients
}

func (rm *RoomManager) RoomsOf(clientID string) []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	rooms := make([]string, 0, len(rm.memberships[clientID]))
	for roomID := range rm.memberships[clientID] {
		rooms = append(rooms, roomID)
	}
	return rooms
}

func (rm *RoomManager) GetStats() map[string]interface{} {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	typeCount := make(map[RoomType]int)
	viewers := make(map[string]int)
	totalSubscriptions := 0

	for _, room := range rm.rooms {
		typeCount[room.Type]++
		totalSubscriptions += len(room.clients)
		if room.Type == RoomTypeLeaderboard {
			viewers[room.ID] = len(room.clients)
		}
	}

	return map[string]interface{}{
		"totalRooms":         len(rm.rooms),
		"totalSubscriptions": totalSubscriptions,
		"byType":             typeCount,
		"leaderboardViewers": viewers,
	}
}
