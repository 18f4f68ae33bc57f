package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/CDeX-Labs/CDeX-Live-Service/pkg/events"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/pflag"
)

func main() {
	kind := pflag.String("event", "submission", "submission, status, activity or plagiarism")
	userID := pflag.String("user", "test-user-123", "user the event is about")
	contestID := pflag.String("contest", "contest-1", "contest id")
	hostID := pflag.String("host", "host-1", "contest host for plagiarism alerts")
	status := pflag.String("status", string(events.SubmissionAccepted), "submission status")
	score := pflag.Int("score", 100, "submission score")
	similarity := pflag.Float64("similarity", 87.5, "plagiarism similarity 0-100")
	pflag.Parse()

	godotenv.Load(".env")

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = "localhost:9092"
	}

	now := time.Now().Format(time.RFC3339)

	var (
		topic string
		key   string
		event interface{}
	)

	switch *kind {
	case "submission":
		execTime := 150
		memUsed := 2048
		topic, key = events.TopicSubmissionJudged, *userID
		event = events.SubmissionJudgedEvent{
			SubmissionID:    uuid.NewString(),
			UserID:          *userID,
			ProblemID:       "problem-abc123",
			ContestID:       contestID,
			Language:        "go",
			Status:          events.SubmissionStatus(*status),
			Score:           *score,
			ExecutionTimeMs: &execTime,
			MemoryUsedKb:    &memUsed,
			TestCasesPassed: 10,
			TestCasesTotal:  10,
			Timestamp:       now,
		}
	case "status":
		topic, key = events.TopicContestStatusChanged, *contestID
		event = events.ContestStatusChangedEvent{ContestID: *contestID, Timestamp: now}
	case "activity":
		topic, key = events.TopicActivityRecorded, *userID
		event = events.ActivityRecordedEvent{
			UserID:      *userID,
			Type:        "problem_solved",
			Description: "Solved problem-abc123",
			Metadata:    map[string]string{"contestId": *contestID},
			Timestamp:   now,
		}
	case "plagiarism":
		topic, key = events.TopicPlagiarismDetected, *hostID
		event = events.PlagiarismDetectedEvent{
			SubmissionID: uuid.NewString(),
			ContestID:    *contestID,
			HostID:       *hostID,
			Similarity:   *similarity,
			StudentName:  *userID,
			ProblemTitle: "Two Sum",
			Timestamp:    now,
		}
	default:
		fmt.Printf("Unknown event %q\n", *kind)
		os.Exit(1)
	}

	data, err := sonic.Marshal(event)
	if err != nil {
		fmt.Printf("Error marshaling event: %v\n", err)
		os.Exit(1)
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(brokers, ",")...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	defer writer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data}); err != nil {
		fmt.Printf("Error writing to Kafka: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== Event Sent ===\n\nTopic: %s\nKey: %s\nPayload: %s\n", topic, key, data)
}
