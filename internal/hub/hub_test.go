package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/CDeX-Labs/CDeX-Live-Service/internal/auth"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/contest"
	"github.com/CDeX-Labs/CDeX-Live-Service/pkg/protocol"
	"github.com/rs/zerolog"
)

func readMessage(t *testing.T, c *Client) *protocol.Message {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		if !ok {
			t.Fatal("send channel closed")
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			t.Fatalf("parse outbound message: %v", err)
		}
		return msg
	default:
		t.Fatal("expected a queued message")
		return nil
	}
}

func expectEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message %s", data)
	default:
	}
}

func request(t *testing.T, msgType protocol.MessageType, payload interface{}, requestID string) []byte {
	t.Helper()
	msg, err := protocol.NewMessageWithRequestID(msgType, payload, requestID)
	if err != nil {
		t.Fatal(err)
	}
	data, err := msg.ToBytes()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

type fakeSnapshots struct {
	err   error
	calls []string
}

func (f *fakeSnapshots) SendLeaderboardSnapshot(ctx context.Context, contestID string, deliver func(*protocol.Message)) error {
	f.calls = append(f.calls, contestID)
	if f.err != nil {
		return f.err
	}
	msg, _ := protocol.NewMessage(protocol.MsgLeaderboardSnapshot, map[string]string{"contestId": contestID})
	deliver(msg)
	return nil
}

type fakeRelay struct {
	mu    sync.Mutex
	rooms []string
}

func (f *fakeRelay) PublishToRoom(ctx context.Context, roomID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = append(f.rooms, roomID)
	return nil
}

func TestJoinLeaderboardSendsAckThenSnapshot(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	snapshots := &fakeSnapshots{}
	h.UseSnapshots(snapshots, time.Second)

	c := newTestClient(h, "c1", "u1", auth.RoleStudent)
	h.registerClient(c)

	h.ProcessMessage(c, request(t, protocol.MsgJoinRoom, protocol.JoinRoomPayload{RoomID: "leaderboard:C1"}, "r1"))

	ack := readMessage(t, c)
	if ack.Type != protocol.MsgRoomJoined || ack.RequestID != "r1" {
		t.Fatalf("first message = %s/%s, want room_joined/r1", ack.Type, ack.RequestID)
	}
	var joined protocol.RoomJoinedPayload
	if err := ack.DecodePayload(&joined); err != nil || joined.MemberCount != 1 {
		t.Fatalf("room_joined payload = %+v (%v)", joined, err)
	}

	if snap := readMessage(t, c); snap.Type != protocol.MsgLeaderboardSnapshot {
		t.Fatalf("second message = %s, want leaderboard_snapshot", snap.Type)
	}
	if len(snapshots.calls) != 1 || snapshots.calls[0] != "C1" {
		t.Fatalf("snapshot calls = %v", snapshots.calls)
	}
}

func TestJoinUnknownContestReportsNotFound(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	h.UseSnapshots(&fakeSnapshots{err: fmt.Errorf("load: %w", contest.ErrNotFound)}, time.Second)

	c := newTestClient(h, "c1", "u1", auth.RoleStudent)
	h.ProcessMessage(c, request(t, protocol.MsgJoinRoom, protocol.JoinRoomPayload{RoomID: "leaderboard:missing"}, "r1"))

	readMessage(t, c)
	errMsg := readMessage(t, c)
	var payload protocol.ErrorPayload
	if err := errMsg.DecodePayload(&payload); err != nil {
		t.Fatal(err)
	}
	if errMsg.Type != protocol.MsgError || payload.Code != "NOT_FOUND" {
		t.Fatalf("got %s %+v, want NOT_FOUND error", errMsg.Type, payload)
	}
}

func TestUnauthorizedJoinIsSilent(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	c := newTestClient(h, "c1", "student", auth.RoleStudent)

	h.ProcessMessage(c, request(t, protocol.MsgJoinRoom, protocol.JoinRoomPayload{RoomID: "plagiarism:host42"}, "r1"))

	expectEmpty(t, c)
	if got := h.Rooms().SubscriberCount("plagiarism:host42"); got != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0", got)
	}
}

func TestProcessMessageErrors(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	c := newTestClient(h, "c1", "u1", auth.RoleStudent)

	tests := []struct {
		name string
		data []byte
		code string
	}{
		{"garbage", []byte("{not json"), "PARSE_ERROR"},
		{"missing type", []byte(`{"payload":{}}`), "PARSE_ERROR"},
		{"unknown type", request(t, "dance", nil, ""), "UNKNOWN_TYPE"},
		{"bad room", request(t, protocol.MsgJoinRoom, protocol.JoinRoomPayload{RoomID: "nope"}, ""), "INVALID_ROOM"},
		{"no payload", request(t, protocol.MsgJoinRoom, nil, ""), "INVALID_PAYLOAD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.ProcessMessage(c, tt.data)
			msg := readMessage(t, c)
			var payload protocol.ErrorPayload
			if err := msg.DecodePayload(&payload); err != nil {
				t.Fatal(err)
			}
			if msg.Type != protocol.MsgError || payload.Code != tt.code {
				t.Errorf("got %s %s, want error %s", msg.Type, payload.Code, tt.code)
			}
		})
	}
}

func TestLeaveAndPing(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	c := newTestClient(h, "c1", "u1", auth.RoleStudent)

	h.ProcessMessage(c, request(t, protocol.MsgJoinRoom, protocol.JoinRoomPayload{RoomID: "submissions:C1"}, ""))
	readMessage(t, c)

	for i := 0; i < 2; i++ {
		h.ProcessMessage(c, request(t, protocol.MsgLeaveRoom, protocol.LeaveRoomPayload{RoomID: "submissions:C1"}, "l"))
		if msg := readMessage(t, c); msg.Type != protocol.MsgRoomLeft {
			t.Fatalf("leave %d answered with %s", i, msg.Type)
		}
	}
	if got := h.Rooms().SubscriberCount("submissions:C1"); got != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0", got)
	}

	h.ProcessMessage(c, request(t, protocol.MsgPing, nil, "p1"))
	if msg := readMessage(t, c); msg.Type != protocol.MsgPong || msg.RequestID != "p1" {
		t.Fatalf("ping answered with %s/%s", msg.Type, msg.RequestID)
	}
}

func TestPublishDeliversToSubscribersAndRelays(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	relay := &fakeRelay{}
	h.SetRelay(relay)

	a := newTestClient(h, "a", "u1", auth.RoleStudent)
	b := newTestClient(h, "b", "u2", auth.RoleStudent)
	outsider := newTestClient(h, "o", "u3", auth.RoleStudent)
	h.Rooms().Join(a, "leaderboard:C1")
	h.Rooms().Join(b, "leaderboard:C1")

	msg, _ := protocol.NewMessage(protocol.MsgLeaderboardSnapshot, map[string]int{"sequence": 1})
	n, err := h.Publish(context.Background(), "leaderboard:C1", msg)
	if err != nil || n != 2 {
		t.Fatalf("Publish() = (%d, %v), want (2, nil)", n, err)
	}

	readMessage(t, a)
	readMessage(t, b)
	expectEmpty(t, outsider)

	if len(relay.rooms) != 1 || relay.rooms[0] != "leaderboard:C1" {
		t.Fatalf("relayed rooms = %v", relay.rooms)
	}

	if got := h.DeliverLocal("leaderboard:C1", []byte(`{"type":"pong","timestamp":1}`)); got != 2 {
		t.Fatalf("DeliverLocal() = %d, want 2", got)
	}
	if len(relay.rooms) != 1 {
		t.Fatal("DeliverLocal must not relay")
	}
}

func TestPublishOrderPerSubscriber(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	c := newTestClient(h, "c", "u1", auth.RoleStudent)
	h.Rooms().Join(c, "leaderboard:C1")

	for i := 1; i <= 5; i++ {
		msg, _ := protocol.NewMessage(protocol.MsgLeaderboardSnapshot, map[string]int{"sequence": i})
		h.Publish(context.Background(), "leaderboard:C1", msg)
	}

	for i := 1; i <= 5; i++ {
		var payload map[string]int
		if err := readMessage(t, c).DecodePayload(&payload); err != nil {
			t.Fatal(err)
		}
		if payload["sequence"] != i {
			t.Fatalf("message %d has sequence %d", i, payload["sequence"])
		}
	}
}

func TestSlowClientIsEvicted(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	slow := newTestClient(h, "slow", "u1", auth.RoleStudent)
	h.registerClient(slow)
	h.Rooms().Join(slow, "leaderboard:C1")

	msg, _ := protocol.NewMessage(protocol.MsgPong, nil)
	for i := 0; i < sendBufferSize; i++ {
		h.Publish(context.Background(), "leaderboard:C1", msg)
	}
	if n, _ := h.Publish(context.Background(), "leaderboard:C1", msg); n != 0 {
		t.Fatalf("overflow publish delivered to %d clients", n)
	}

	if !slow.isClosed() {
		t.Fatal("slow client should be closed")
	}
	if got := h.Rooms().SubscriberCount("leaderboard:C1"); got != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0", got)
	}
	if n, _ := h.Publish(context.Background(), "leaderboard:C1", msg); n != 0 {
		t.Fatalf("publish after eviction delivered to %d clients", n)
	}
}

type recordingPresence struct {
	mu      sync.Mutex
	online  []string
	offline []string
	done    chan struct{}
}

func (p *recordingPresence) SetOnline(ctx context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = append(p.online, userID)
	return nil
}

func (p *recordingPresence) SetOffline(ctx context.Context, userID string) error {
	p.mu.Lock()
	p.offline = append(p.offline, userID)
	p.mu.Unlock()
	close(p.done)
	return nil
}

func (p *recordingPresence) RefreshPresence(ctx context.Context, userID string) error {
	return errors.New("not used")
}

func TestUnregisterMarksOfflineAfterLastConnection(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	presence := &recordingPresence{done: make(chan struct{})}
	h.SetPresence(presence)

	first := newTestClient(h, "c1", "u1", auth.RoleStudent)
	second := newTestClient(h, "c2", "u1", auth.RoleStudent)
	h.registerClient(first)
	h.registerClient(second)

	h.unregisterClient(first)
	h.unregisterClient(first)
	if stats := h.GetStats(); stats["totalClients"].(int) != 1 {
		t.Fatalf("totalClients = %v, want 1", stats["totalClients"])
	}

	h.unregisterClient(second)
	select {
	case <-presence.done:
	case <-time.After(time.Second):
		t.Fatal("SetOffline was not called")
	}

	presence.mu.Lock()
	defer presence.mu.Unlock()
	if len(presence.offline) != 1 || presence.offline[0] != "u1" {
		t.Fatalf("offline = %v, want [u1]", presence.offline)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := newTestClient(h, "c1", "u1", auth.RoleStudent)
	h.Register <- c
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	// disconnect after shutdown must not block
	h.disconnect(c)
	if !c.isClosed() {
		t.Fatal("client should be closed on shutdown")
	}
}

type gatedPresence struct {
	gate chan struct{}
	mu   sync.Mutex
	log  []string
	done chan struct{}
}

func (p *gatedPresence) record(entry string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log = append(p.log, entry)
}

func (p *gatedPresence) SetOnline(ctx context.Context, userID string) error {
	<-p.gate
	p.record("online:" + userID)
	return nil
}

func (p *gatedPresence) SetOffline(ctx context.Context, userID string) error {
	p.record("offline:" + userID)
	close(p.done)
	return nil
}

func (p *gatedPresence) RefreshPresence(ctx context.Context, userID string) error {
	p.record("refresh:" + userID)
	return nil
}

func TestPresenceUpdatesKeepOrderPerUser(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	presence := &gatedPresence{gate: make(chan struct{}), done: make(chan struct{})}
	h.SetPresence(presence)

	c := newTestClient(h, "c1", "u1", auth.RoleStudent)
	h.registerClient(c)
	h.ProcessMessage(c, request(t, protocol.MsgPing, nil, ""))
	h.unregisterClient(c)

	// SetOnline is still blocked; nothing queued behind it may run yet
	time.Sleep(20 * time.Millisecond)
	presence.mu.Lock()
	early := len(presence.log)
	presence.mu.Unlock()
	if early != 0 {
		t.Fatalf("updates ran before SetOnline finished: %v", presence.log)
	}

	close(presence.gate)
	select {
	case <-presence.done:
	case <-time.After(time.Second):
		t.Fatal("SetOffline was not called")
	}

	presence.mu.Lock()
	defer presence.mu.Unlock()
	want := []string{"online:u1", "refresh:u1", "offline:u1"}
	if fmt.Sprint(presence.log) != fmt.Sprint(want) {
		t.Fatalf("presence updates = %v, want %v", presence.log, want)
	}
}

func TestAttachAfterStop(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	live := newTestClient(h, "c1", "u1", auth.RoleStudent)
	if !h.Attach(live) {
		t.Fatal("Attach() = false while Run is active")
	}

	cancel()
	<-stopped

	attached := make(chan bool, 1)
	go func() {
		attached <- h.Attach(newTestClient(h, "c2", "u2", auth.RoleStudent))
	}()
	select {
	case ok := <-attached:
		if ok {
			t.Fatal("Attach() = true after Run stopped")
		}
	case <-time.After(time.Second):
		t.Fatal("Attach() blocked after Run stopped")
	}
}

func TestDeliverLocalSkipsOlderLeaderboardSnapshots(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)
	c := newTestClient(h, "c", "u1", auth.RoleStudent)
	h.Rooms().Join(c, "leaderboard:C1")

	encode := func(seq int) []byte {
		msg, _ := protocol.NewMessage(protocol.MsgLeaderboardSnapshot, map[string]int{"sequence": seq})
		data, _ := msg.ToBytes()
		return data
	}

	for _, seq := range []int{2, 1, 2, 3} {
		h.DeliverLocal("leaderboard:C1", encode(seq))
	}

	var got []int
	for {
		select {
		case data := <-c.Send:
			msg, _ := protocol.ParseMessage(data)
			var payload map[string]int
			if err := msg.DecodePayload(&payload); err != nil {
				t.Fatal(err)
			}
			got = append(got, payload["sequence"])
			continue
		default:
		}
		break
	}
	if fmt.Sprint(got) != "[2 2 3]" {
		t.Fatalf("delivered sequences = %v, want [2 2 3]", got)
	}
}
