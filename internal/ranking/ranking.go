package ranking

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/CDeX-Labs/CDeX-Live-Service/internal/contest"
)

const DefaultLimit = 50

type Entry struct {
	Rank           int        `json:"rank"`
	UserID         string     `json:"userId"`
	DisplayName    string     `json:"displayName"`
	Avatar         string     `json:"avatar,omitempty"`
	Score          int        `json:"score"`
	ProblemsSolved int        `json:"problemsSolved"`
	LastSubmission *time.Time `json:"lastSubmission"`
}

// Compute orders participants by score descending. Equal scores are broken by
// the latest submission time, earlier first; a participant without
// submissions counts as the zero time. Remaining ties keep input order and
// every entry gets its own rank.
func Compute(participants []contest.Participant, limit int) []Entry {
	if limit <= 0 {
		limit = DefaultLimit
	}

	entries := make([]Entry, 0, len(participants))
	for i := range participants {
		p := &participants[i]
		entries = append(entries, Entry{
			UserID:         p.UserID,
			DisplayName:    p.DisplayName,
			Avatar:         p.Avatar,
			Score:          p.Score,
			ProblemsSolved: len(p.Submissions),
			LastSubmission: p.LastSubmission(),
		})
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return lastSubmissionTime(a).Compare(lastSubmissionTime(b))
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func lastSubmissionTime(e Entry) time.Time {
	if e.LastSubmission == nil {
		return time.Time{}
	}
	return *e.LastSubmission
}

type Leaderboard struct {
	Contest contest.Contest
	Entries []Entry
}

type Engine struct {
	store contest.Store
}

func NewEngine(store contest.Store) *Engine {
	return &Engine{store: store}
}

// Leaderboard reads the contest and its participants and ranks them. The
// caller bounds the store reads through ctx.
func (e *Engine) Leaderboard(ctx context.Context, contestID string, limit int) (*Leaderboard, error) {
	c, err := e.store.GetContest(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("load contest %s: %w", contestID, err)
	}

	participants, err := e.store.GetParticipants(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("load participants for contest %s: %w", contestID, err)
	}

	return &Leaderboard{
		Contest: *c,
		Entries: Compute(participants, limit),
	}, nil
}
