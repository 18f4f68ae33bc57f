package kafka

import (
	"context"

	"github.com/CDeX-Labs/CDeX-Live-Service/pkg/events"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// EventSink receives validated upstream events.
type EventSink interface {
	OnSubmissionJudged(ctx context.Context, ev events.SubmissionJudgedEvent)
	OnContestStatusChanged(ctx context.Context, contestID string)
	OnActivityRecorded(ctx context.Context, userID string, ev events.ActivityRecordedEvent)
	OnPlagiarismDetected(ctx context.Context, ev events.PlagiarismDetectedEvent)
}

type Handlers struct {
	sink   EventSink
	logger zerolog.Logger
}

func NewHandlers(sink EventSink, logger zerolog.Logger) *Handlers {
	return &Handlers{
		sink:   sink,
		logger: logger.With().Str("component", "kafka-handlers").Logger(),
	}
}

func (h *Handlers) HandleSubmissionJudged(ctx context.Context, msg kafka.Message) error {
	var event events.SubmissionJudgedEvent
	if err := events.Decode(msg.Value, &event); err != nil {
		return err
	}

	h.logger.Info().
		Str("submissionId", event.SubmissionID).
		Str("userId", event.UserID).
		Str("status", string(event.Status)).
		Msg("Processing submission.judged")

	h.sink.OnSubmissionJudged(ctx, event)
	return nil
}

func (h *Handlers) HandleContestStatusChanged(ctx context.Context, msg kafka.Message) error {
	var event events.ContestStatusChangedEvent
	if err := events.Decode(msg.Value, &event); err != nil {
		return err
	}

	h.logger.Info().Str("contestId", event.ContestID).Msg("Processing contest.status_changed")

	h.sink.OnContestStatusChanged(ctx, event.ContestID)
	return nil
}

func (h *Handlers) HandleActivityRecorded(ctx context.Context, msg kafka.Message) error {
	var event events.ActivityRecordedEvent
	if err := events.Decode(msg.Value, &event); err != nil {
		return err
	}

	h.logger.Debug().
		Str("userId", event.UserID).
		Str("type", event.Type).
		Msg("Processing activity.recorded")

	h.sink.OnActivityRecorded(ctx, event.UserID, event)
	return nil
}

func (h *Handlers) HandlePlagiarismDetected(ctx context.Context, msg kafka.Message) error {
	var event events.PlagiarismDetectedEvent
	if err := events.Decode(msg.Value, &event); err != nil {
		return err
	}

	h.logger.Info().
		Str("submissionId", event.SubmissionID).
		Str("contestId", event.ContestID).
		Float64("similarity", event.Similarity).
		Msg("Processing plagiarism.detected")

	h.sink.OnPlagiarismDetected(ctx, event)
	return nil
}

// Topics lists every topic RegisterAll binds.
func Topics() []string {
	return []string{
		events.TopicSubmissionJudged,
		events.TopicContestStatusChanged,
		events.TopicActivityRecorded,
		events.TopicPlagiarismDetected,
	}
}

func (h *Handlers) RegisterAll(consumer *Consumer) {
	consumer.RegisterHandler(events.TopicSubmissionJudged, h.HandleSubmissionJudged)
	consumer.RegisterHandler(events.TopicContestStatusChanged, h.HandleContestStatusChanged)
	consumer.RegisterHandler(events.TopicActivityRecorded, h.HandleActivityRecorded)
	consumer.RegisterHandler(events.TopicPlagiarismDetected, h.HandlePlagiarismDetected)
}
