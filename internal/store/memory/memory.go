// Package memory is an in-process contest store. It backs tests and local
// runs started without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/CDeX-Labs/CDeX-Live-Service/internal/contest"
)

type Store struct {
	mu           sync.RWMutex
	contests     map[string]contest.Contest
	participants map[string][]contest.Participant
}

var _ contest.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		contests:     make(map[string]contest.Contest),
		participants: make(map[string][]contest.Participant),
	}
}

func (s *Store) PutContest(c contest.Contest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contests[c.ID] = c
}

// AddParticipant inserts or replaces a participant, keeping the position of
// an existing one.
func (s *Store) AddParticipant(contestID string, p contest.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contests[contestID]; !ok {
		return fmt.Errorf("add participant %s: %w", p.UserID, contest.ErrNotFound)
	}

	list := s.participants[contestID]
	for i := range list {
		if list[i].UserID == p.UserID {
			list[i] = cloneParticipant(p)
			return nil
		}
	}
	s.participants[contestID] = append(list, cloneParticipant(p))
	return nil
}

// RecordSubmission appends a judged submission and adds points to the
// participant's score.
func (s *Store) RecordSubmission(contestID, userID, problemID string, at time.Time, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.participants[contestID]
	for i := range list {
		if list[i].UserID == userID {
			list[i].Score += points
			list[i].Submissions = append(list[i].Submissions, contest.SubmissionRef{
				ProblemID:   problemID,
				SubmittedAt: at,
			})
			return nil
		}
	}
	return fmt.Errorf("participant %s in contest %s: %w", userID, contestID, contest.ErrNotFound)
}

func (s *Store) GetContest(ctx context.Context, contestID string) (*contest.Contest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contests[contestID]
	if !ok {
		return nil, contest.ErrNotFound
	}
	return &c, nil
}

func (s *Store) GetParticipants(ctx context.Context, contestID string) ([]contest.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.contests[contestID]; !ok {
		return nil, contest.ErrNotFound
	}

	list := s.participants[contestID]
	out := make([]contest.Participant, len(list))
	for i := range list {
		out[i] = cloneParticipant(list[i])
	}
	return out, nil
}

func (s *Store) ListContests(ctx context.Context, endingAfter time.Time) ([]contest.Contest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contest.Contest, 0, len(s.contests))
	for _, c := range s.contests {
		if c.EndTime.After(endingAfter) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneParticipant(p contest.Participant) contest.Participant {
	p.Submissions = append([]contest.SubmissionRef(nil), p.Submissions...)
	return p
}
