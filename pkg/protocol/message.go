package protocol

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/bytedance/sonic"
)

var ErrMissingType = errors.New("message type is required")

type MessageType string

const (
	// client -> server
	MsgJoinRoom  MessageType = "join_room"
	MsgLeaveRoom MessageType = "leave_room"
	MsgPing      MessageType = "ping"

	// server -> client
	MsgConnected           MessageType = "connected"
	MsgRoomJoined          MessageType = "room_joined"
	MsgRoomLeft            MessageType = "room_left"
	MsgPong                MessageType = "pong"
	MsgError               MessageType = "error"
	MsgLeaderboardSnapshot MessageType = "leaderboard_snapshot"
	MsgSubmissionResult    MessageType = "submission_result"
	MsgContestStatus       MessageType = "contest_status"
	MsgActivity            MessageType = "activity"
	MsgPlagiarismAlert     MessageType = "plagiarism_alert"
)

type Message struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	return NewMessageWithRequestID(msgType, payload, "")
}

func NewMessageWithRequestID(msgType MessageType, payload interface{}, requestID string) (*Message, error) {
	msg := &Message{
		Type:      msgType,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}

	if payload != nil {
		data, err := sonic.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = data
	}

	return msg, nil
}

func NewErrorMessage(code, message, requestID string) (*Message, error) {
	return NewMessageWithRequestID(MsgError, ErrorPayload{
		Code:    code,
		Message: message,
	}, requestID)
}

func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, ErrMissingType
	}
	return &msg, nil
}

func (m *Message) ToBytes() ([]byte, error) {
	return sonic.Marshal(m)
}

// DecodePayload unmarshals the payload into v.
func (m *Message) DecodePayload(v interface{}) error {
	if len(m.Payload) == 0 {
		return errors.New("empty payload")
	}
	return sonic.Unmarshal(m.Payload, v)
}

type ConnectedPayload struct {
	UserID     string `json:"userId"`
	InstanceID string `json:"instanceId"`
}

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

type RoomJoinedPayload struct {
	RoomID      string `json:"roomId"`
	MemberCount int    `json:"memberCount"`
}

type RoomLeftPayload struct {
	RoomID string `json:"roomId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
