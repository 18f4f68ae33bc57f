package broadcast

import (
	"time"

	"github.com/CDeX-Labs/CDeX-Live-Service/internal/contest"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/ranking"
	"github.com/CDeX-Labs/CDeX-Live-Service/pkg/events"
)

// SubmissionSummary is what contest viewers see in the submissions feed.
type SubmissionSummary struct {
	SubmissionID    string                  `json:"submissionId"`
	UserID          string                  `json:"userId"`
	ProblemID       string                  `json:"problemId"`
	ContestID       string                  `json:"contestId"`
	Language        string                  `json:"language,omitempty"`
	Status          events.SubmissionStatus `json:"status"`
	Score           int                     `json:"score"`
	ExecutionTimeMs *int                    `json:"executionTimeMs,omitempty"`
	MemoryUsedKb    *int                    `json:"memoryUsedKb,omitempty"`
	TestCasesPassed int                     `json:"testCasesPassed"`
	TestCasesTotal  int                     `json:"testCasesTotal"`
	Timestamp       string                  `json:"timestamp,omitempty"`
}

func newSubmissionSummary(contestID string, ev *events.SubmissionJudgedEvent) SubmissionSummary {
	return SubmissionSummary{
		SubmissionID:    ev.SubmissionID,
		UserID:          ev.UserID,
		ProblemID:       ev.ProblemID,
		ContestID:       contestID,
		Language:        ev.Language,
		Status:          ev.Status,
		Score:           ev.Score,
		ExecutionTimeMs: ev.ExecutionTimeMs,
		MemoryUsedKb:    ev.MemoryUsedKb,
		TestCasesPassed: ev.TestCasesPassed,
		TestCasesTotal:  ev.TestCasesTotal,
		Timestamp:       ev.Timestamp,
	}
}

// LeaderboardSnapshot replaces whatever the viewer had before. Sequence grows
// with every snapshot produced for the contest.
type LeaderboardSnapshot struct {
	ContestID   string          `json:"contestId"`
	Title       string          `json:"title"`
	Status      contest.Status  `json:"status"`
	Sequence    uint64          `json:"sequence"`
	Entries     []ranking.Entry `json:"entries"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

type ContestStatusSummary struct {
	ContestID string         `json:"contestId"`
	Title     string         `json:"title"`
	HostID    string         `json:"hostId"`
	Status    contest.Status `json:"status"`
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
}

type ActivityPayload struct {
	UserID      string            `json:"userId"`
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Timestamp   string            `json:"timestamp,omitempty"`
}

type PlagiarismAlertPayload struct {
	SubmissionID string          `json:"submissionId"`
	ContestID    string          `json:"contestId"`
	StudentName  string          `json:"studentName"`
	ProblemTitle string          `json:"problemTitle,omitempty"`
	Similarity   float64         `json:"similarity"`
	Severity     events.Severity `json:"severity"`
	Timestamp    string          `json:"timestamp,omitempty"`
}
