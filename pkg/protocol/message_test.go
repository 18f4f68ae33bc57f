package protocol

import (
	"errors"
	"testing"
)

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"join_room","requestId":"r1","payload":{"roomId":"leaderboard:c1"}}`))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if msg.Type != MsgJoinRoom || msg.RequestID != "r1" {
		t.Fatalf("unexpected message %+v", msg)
	}

	var payload JoinRoomPayload
	if err := msg.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if payload.RoomID != "leaderboard:c1" {
		t.Errorf("RoomID = %q, want leaderboard:c1", payload.RoomID)
	}
}

func TestParseMessageRejectsInvalidInput(t *testing.T) {
	if _, err := ParseMessage([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed message")
	}
	if _, err := ParseMessage([]byte(`{"payload":{}}`)); !errors.Is(err, ErrMissingType) {
		t.Errorf("missing type error = %v, want ErrMissingType", err)
	}
}

func TestNewMessageRoundTrip(t *testing.T) {
	msg, err := NewMessageWithRequestID(MsgRoomJoined, RoomJoinedPayload{RoomID: "contests", MemberCount: 3}, "abc")
	if err != nil {
		t.Fatalf("NewMessageWithRequestID() error = %v", err)
	}
	if msg.Timestamp == 0 {
		t.Error("expected timestamp to be set")
	}

	data, err := msg.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes() error = %v", err)
	}

	parsed, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	var payload RoomJoinedPayload
	if err := parsed.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if parsed.RequestID != "abc" || payload.MemberCount != 3 {
		t.Errorf("round trip lost data: %+v %+v", parsed, payload)
	}
}

func TestNewMessageWithoutPayload(t *testing.T) {
	msg, err := NewMessage(MsgPong, nil)
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}
	if len(msg.Payload) != 0 {
		t.Errorf("expected empty payload, got %s", msg.Payload)
	}
}
