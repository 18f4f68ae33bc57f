package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CDeX-Labs/CDeX-Live-Service/internal/contest"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type StatusNotifier interface {
	OnContestStatusChanged(ctx context.Context, contestID string)
}

type Config struct {
	// Spec is a robfig/cron schedule, e.g. "@every 15s".
	Spec    string
	Timeout time.Duration
}

// StatusSweeper fires a status change for contests whose start or end time
// passed without an upstream event.
type StatusSweeper struct {
	store  contest.Store
	notify StatusNotifier
	cfg    Config
	logger zerolog.Logger

	mu        sync.Mutex
	lastSeen  map[string]contest.Status
	lastSweep time.Time

	now func() time.Time
}

func NewStatusSweeper(store contest.Store, notify StatusNotifier, cfg Config, logger zerolog.Logger) *StatusSweeper {
	if cfg.Spec == "" {
		cfg.Spec = "@every 15s"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &StatusSweeper{
		store:    store,
		notify:   notify,
		cfg:      cfg,
		logger:   logger.With().Str("component", "status-sweeper").Logger(),
		lastSeen: make(map[string]contest.Status),
		now:      time.Now,
	}
}

// Run schedules sweeps until ctx is cancelled. Overlapping runs are skipped.
func (s *StatusSweeper) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if _, err := c.AddFunc(s.cfg.Spec, func() {
		sweepCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		if _, err := s.Sweep(sweepCtx); err != nil {
			s.logger.Error().Err(err).Msg("Status sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.cfg.Spec, err)
	}

	c.Start()
	s.logger.Info().Str("schedule", s.cfg.Spec).Msg("Status sweeper started")

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info().Msg("Status sweeper stopped")
	return nil
}

// Sweep compares each contest's derived status with the one seen last time
// and notifies on differences. The first observation of a contest only
// records it. It returns the number of notifications sent.
func (s *StatusSweeper) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	contests, err := s.store.ListContests(ctx, s.lastSweep)
	if err != nil {
		return 0, fmt.Errorf("list contests: %w", err)
	}

	changed := 0
	for i := range contests {
		c := &contests[i]
		status := c.StatusAt(now)

		previous, seen := s.lastSeen[c.ID]
		switch {
		case !seen:
		case previous != status:
			s.logger.Info().
				Str("contestId", c.ID).
				Str("from", string(previous)).
				Str("to", string(status)).
				Msg("Contest status changed")
			s.notify.OnContestStatusChanged(ctx, c.ID)
			changed++
		}

		if status == contest.StatusEnded {
			delete(s.lastSeen, c.ID)
			continue
		}
		s.lastSeen[c.ID] = status
	}

	s.lastSweep = now
	return changed, nil
}
