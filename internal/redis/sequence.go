package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const sequenceKeyPrefix = "leaderboard:seq:"

// Counter is the subset of the client the sequencer needs.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (string, error)
}

// Sequencer keeps leaderboard sequence numbers in redis so every instance
// behind the relay numbers snapshots from the same counter.
type Sequencer struct {
	counter Counter
}

func NewSequencer(counter Counter) *Sequencer {
	return &Sequencer{counter: counter}
}

func (s *Sequencer) Next(ctx context.Context, contestID string) (uint64, error) {
	n, err := s.counter.Incr(ctx, sequenceKeyPrefix+contestID)
	if err != nil {
		return 0, fmt.Errorf("incr sequence: %w", err)
	}
	return uint64(n), nil
}

func (s *Sequencer) Current(ctx context.Context, contestID string) (uint64, error) {
	v, err := s.counter.Get(ctx, sequenceKeyPrefix+contestID)
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get sequence: %w", err)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse sequence %q: %w", v, err)
	}
	return n, nil
}
