package events

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
)

const (
	TopicSubmissionJudged     = "submission.judged"
	TopicContestStatusChanged = "contest.status_changed"
	TopicActivityRecorded     = "activity.recorded"
	TopicPlagiarismDetected   = "plagiarism.detected"
)

var validate = validator.New()

// Decode unmarshals an inbound event and validates it against its schema.
func Decode(data []byte, v interface{}) error {
	if err := sonic.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validate event: %w", err)
	}
	return nil
}

type SubmissionStatus string

const (
	SubmissionPending             SubmissionStatus = "pending"
	SubmissionRunning             SubmissionStatus = "running"
	SubmissionAccepted            SubmissionStatus = "accepted"
	SubmissionWrongAnswer         SubmissionStatus = "wrong_answer"
	SubmissionTimeLimitExceeded   SubmissionStatus = "time_limit_exceeded"
	SubmissionMemoryLimitExceeded SubmissionStatus = "memory_limit_exceeded"
	SubmissionRuntimeError        SubmissionStatus = "runtime_error"
	SubmissionCompilationError    SubmissionStatus = "compilation_error"
	SubmissionError               SubmissionStatus = "error"
)

// IsTerminal reports whether judging has finished.
func (s SubmissionStatus) IsTerminal() bool {
	return s != SubmissionPending && s != SubmissionRunning
}

type SubmissionJudgedEvent struct {
	SubmissionID    string           `json:"submissionId" validate:"required"`
	UserID          string           `json:"userId" validate:"required"`
	ProblemID       string           `json:"problemId" validate:"required"`
	ContestID       *string          `json:"contestId"`
	Language        string           `json:"language"`
	Status          SubmissionStatus `json:"status" validate:"required"`
	Score           int              `json:"score" validate:"gte=0"`
	ExecutionTimeMs *int             `json:"executionTimeMs"`
	MemoryUsedKb    *int             `json:"memoryUsedKb"`
	TestCasesPassed int              `json:"testCasesPassed" validate:"gte=0"`
	TestCasesTotal  int              `json:"testCasesTotal" validate:"gte=0"`
	Timestamp       string           `json:"timestamp"`
}

type ContestStatusChangedEvent struct {
	ContestID string `json:"contestId" validate:"required"`
	Timestamp string `json:"timestamp"`
}

type ActivityRecordedEvent struct {
	UserID      string            `json:"userId" validate:"required"`
	Type        string            `json:"type" validate:"required"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Timestamp   string            `json:"timestamp"`
}

type PlagiarismDetectedEvent struct {
	SubmissionID string  `json:"submissionId" validate:"required"`
	ContestID    string  `json:"contestId" validate:"required"`
	HostID       string  `json:"hostId" validate:"required"`
	Similarity   float64 `json:"similarity" validate:"gte=0,lte=100"`
	StudentName  string  `json:"studentName" validate:"required"`
	ProblemTitle string  `json:"problemTitle"`
	Timestamp    string  `json:"timestamp"`
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func SeverityFor(similarity float64) Severity {
	switch {
	case similarity >= 80:
		return SeverityHigh
	case similarity >= 60:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
