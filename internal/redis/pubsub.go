package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	channelRoomPrefix  = "ws:room:"
	channelRoomPattern = channelRoomPrefix + "*"
)

// Envelope carries an encoded socket message between instances.
type Envelope struct {
	SourceInstance string          `json:"sourceInstance"`
	Room           string          `json:"room"`
	Message        json.RawMessage `json:"message"`
}

// DeliverFunc hands a relayed message to local subscribers only.
type DeliverFunc func(roomID string, data []byte) int

// PubSub mirrors room publishes across instances. Messages an instance
// published itself are ignored when they come back.
type PubSub struct {
	client     *Client
	pubsub     *redis.PubSub
	instanceID string
	deliver    DeliverFunc
	logger     zerolog.Logger
}

func NewPubSub(client *Client, instanceID string, deliver DeliverFunc, logger zerolog.Logger) *PubSub {
	return &PubSub{
		client:     client,
		instanceID: instanceID,
		deliver:    deliver,
		logger:     logger.With().Str("component", "pubsub").Logger(),
	}
}

// Run subscribes to every room channel and relays until ctx is cancelled.
func (p *PubSub) Run(ctx context.Context) error {
	p.pubsub = p.client.PSubscribe(ctx, channelRoomPattern)
	defer p.pubsub.Close()

	if _, err := p.pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	p.logger.Info().
		Str("instanceId", p.instanceID).
		Msg("PubSub started")

	ch := p.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			p.handleMessage(msg.Channel, msg.Payload)
		}
	}
}

func (p *PubSub) handleMessage(channel, payload string) {
	var envelope Envelope
	if err := sonic.UnmarshalString(payload, &envelope); err != nil {
		p.logger.Error().Err(err).Str("channel", channel).Msg("Failed to unmarshal pubsub message")
		return
	}

	if envelope.SourceInstance == p.instanceID {
		return
	}

	roomID := envelope.Room
	if roomID == "" {
		roomID = strings.TrimPrefix(channel, channelRoomPrefix)
	}

	delivered := p.deliver(roomID, envelope.Message)

	p.logger.Debug().
		Str("roomId", roomID).
		Str("sourceInstance", envelope.SourceInstance).
		Int("delivered", delivered).
		Msg("Relayed pubsub message")
}

func (p *PubSub) PublishToRoom(ctx context.Context, roomID string, data []byte) error {
	payload, err := sonic.Marshal(Envelope{
		SourceInstance: p.instanceID,
		Room:           roomID,
		Message:        data,
	})
	if err != nil {
		return err
	}

	return p.client.Publish(ctx, channelRoomPrefix+roomID, payload)
}
