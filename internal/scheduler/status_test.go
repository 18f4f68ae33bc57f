package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/CDeX-Labs/CDeX-Live-Service/internal/contest"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/store/memory"
	"github.com/rs/zerolog"
)

type notifications []string

func (n *notifications) OnContestStatusChanged(ctx context.Context, contestID string) {
	*n = append(*n, contestID)
}

func TestSweepNotifiesOnTransitions(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := memory.New()
	store.PutContest(contest.Contest{ID: "soon", StartTime: base.Add(time.Minute), EndTime: base.Add(time.Hour)})
	store.PutContest(contest.Contest{ID: "running", StartTime: base.Add(-time.Hour), EndTime: base.Add(2 * time.Minute)})
	store.PutContest(contest.Contest{ID: "later", StartTime: base.Add(24 * time.Hour), EndTime: base.Add(25 * time.Hour)})

	var sent notifications
	s := NewStatusSweeper(store, &sent, Config{}, zerolog.Nop())
	now := base
	s.now = func() time.Time { return now }
	ctx := context.Background()

	if n, err := s.Sweep(ctx); err != nil || n != 0 {
		t.Fatalf("first sweep = (%d, %v), want (0, nil)", n, err)
	}

	now = base.Add(90 * time.Second)
	if n, _ := s.Sweep(ctx); n != 1 || sent[0] != "soon" {
		t.Fatalf("second sweep sent %v", sent)
	}

	now = base.Add(3 * time.Minute)
	if n, _ := s.Sweep(ctx); n != 1 || sent[1] != "running" {
		t.Fatalf("third sweep sent %v", sent)
	}

	if n, _ := s.Sweep(ctx); n != 0 {
		t.Fatalf("steady state sent %v", sent)
	}
}

func TestRunRejectsBadSchedule(t *testing.T) {
	s := NewStatusSweeper(memory.New(), &notifications{}, Config{Spec: "not a schedule"}, zerolog.Nop())
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	s := NewStatusSweeper(memory.New(), &notifications{}, Config{Spec: "@every 1h"}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
