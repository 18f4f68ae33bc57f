package broadcast

import (
	"context"
	"sync"
)

// Sequencer hands out leaderboard sequence numbers per contest. Every
// instance behind the same relay must share one Sequencer so that relayed
// snapshots and locally computed ones are comparable.
type Sequencer interface {
	Next(ctx context.Context, contestID string) (uint64, error)
	Current(ctx context.Context, contestID string) (uint64, error)
}

// LocalSequencer keeps the counters in process memory. It is only correct for
// a single instance.
type LocalSequencer struct {
	mu        sync.Mutex
	sequences map[string]uint64
}

func NewLocalSequencer() *LocalSequencer {
	return &LocalSequencer{sequences: make(map[string]uint64)}
}

func (s *LocalSequencer) Next(ctx context.Context, contestID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[contestID]++
	return s.sequences[contestID], nil
}

func (s *LocalSequencer) Current(ctx context.Context, contestID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequences[contestID], nil
}
