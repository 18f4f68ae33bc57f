package contest

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("contest not found")

type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusActive   Status = "active"
	StatusEnded    Status = "ended"
)

type Contest struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	HostID    string    `json:"hostId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// StatusAt derives the contest status from the clock. Nothing about status
// transitions is stored.
func (c *Contest) StatusAt(now time.Time) Status {
	switch {
	case now.Before(c.StartTime):
		return StatusUpcoming
	case now.Before(c.EndTime):
		return StatusActive
	default:
		return StatusEnded
	}
}

type SubmissionRef struct {
	ProblemID   string    `json:"problemId"`
	SubmittedAt time.Time `json:"submittedAt"`
}

type Participant struct {
	UserID      string          `json:"userId"`
	DisplayName string          `json:"displayName"`
	Avatar      string          `json:"avatar,omitempty"`
	Score       int             `json:"score"`
	Submissions []SubmissionRef `json:"submissions"`
}

// LastSubmission returns the latest submission time, or nil when the
// participant has not submitted anything.
func (p *Participant) LastSubmission() *time.Time {
	var latest *time.Time
	for i := range p.Submissions {
		at := p.Submissions[i].SubmittedAt
		if latest == nil || at.After(*latest) {
			latest = &at
		}
	}
	return latest
}

// Store is the read side of the contest/submission store. The live service
// never writes scores.
type Store interface {
	GetContest(ctx context.Context, contestID string) (*Contest, error)
	GetParticipants(ctx context.Context, contestID string) ([]Participant, error)
	ListContests(ctx context.Context, endingAfter time.Time) ([]Contest, error)
}
