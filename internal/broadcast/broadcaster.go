package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/CDeX-Labs/CDeX-Live-Service/internal/contest"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/hub"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/metrics"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/ranking"
	"github.com/CDeX-Labs/CDeX-Live-Service/pkg/events"
	"github.com/CDeX-Labs/CDeX-Live-Service/pkg/protocol"
	"github.com/rs/zerolog"
)

// Publisher fans a message out to the subscribers of a room.
type Publisher interface {
	Publish(ctx context.Context, roomID string, msg *protocol.Message) (int, error)
}

type Config struct {
	LeaderboardLimit int
	StoreTimeout     time.Duration
}

// Broadcaster turns upstream events into room publishes. Its On* handlers
// never return errors: every failure is logged and the event is dropped.
type Broadcaster struct {
	store   contest.Store
	engine  *ranking.Engine
	pub     Publisher
	cfg     Config
	metrics *metrics.Metrics
	logger  zerolog.Logger

	locks *keyedMutex
	seq   Sequencer

	now func() time.Time
}

func New(store contest.Store, pub Publisher, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Broadcaster {
	if cfg.LeaderboardLimit <= 0 {
		cfg.LeaderboardLimit = ranking.DefaultLimit
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}

	return &Broadcaster{
		store:     store,
		engine:    ranking.NewEngine(store),
		pub:       pub,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.With().Str("component", "broadcast").Logger(),
		locks:     newKeyedMutex(),
		seq:       NewLocalSequencer(),
		now:       time.Now,
	}
}

// SetSequencer replaces the in-process sequence counters. Instances sharing a
// relay must share a Sequencer.
func (b *Broadcaster) SetSequencer(seq Sequencer) {
	b.seq = seq
}

func (b *Broadcaster) OnSubmissionJudged(ctx context.Context, ev events.SubmissionJudgedEvent) {
	defer b.recoverHandler("submission.judged", ev.SubmissionID)

	if !ev.Status.IsTerminal() {
		b.logger.Debug().
			Str("submissionId", ev.SubmissionID).
			Str("status", string(ev.Status)).
			Msg("Ignoring non-terminal submission")
		return
	}
	if ev.ContestID == nil || *ev.ContestID == "" {
		b.logger.Debug().Str("submissionId", ev.SubmissionID).Msg("Submission is not part of a contest")
		return
	}
	contestID := *ev.ContestID

	b.publish(ctx, hub.BuildRoomID(hub.RoomTypeSubmissions, contestID),
		protocol.MsgSubmissionResult, newSubmissionSummary(contestID, &ev))

	b.publishLeaderboard(ctx, contestID)
}

func (b *Broadcaster) OnContestStatusChanged(ctx context.Context, contestID string) {
	defer b.recoverHandler("contest.status_changed", contestID)

	storeCtx, cancel := context.WithTimeout(ctx, b.cfg.StoreTimeout)
	c, err := b.store.GetContest(storeCtx, contestID)
	cancel()
	if err != nil {
		b.logger.Error().Err(err).Str("contestId", contestID).Msg("Failed to load contest for status change")
		return
	}

	summary := ContestStatusSummary{
		ContestID: c.ID,
		Title:     c.Title,
		HostID:    c.HostID,
		Status:    c.StatusAt(b.now()),
		StartTime: c.StartTime,
		EndTime:   c.EndTime,
	}

	b.publish(ctx, hub.GlobalRoomID, protocol.MsgContestStatus, summary)
	b.publish(ctx, hub.BuildRoomID(hub.RoomTypeContestStatus, contestID), protocol.MsgContestStatus, summary)
}

func (b *Broadcaster) OnActivityRecorded(ctx context.Context, userID string, ev events.ActivityRecordedEvent) {
	defer b.recoverHandler("activity.recorded", userID)

	b.publish(ctx, hub.BuildRoomID(hub.RoomTypeActivity, userID), protocol.MsgActivity, ActivityPayload{
		UserID:      userID,
		Type:        ev.Type,
		Description: ev.Description,
		Metadata:    ev.Metadata,
		Timestamp:   ev.Timestamp,
	})
}

func (b *Broadcaster) OnPlagiarismDetected(ctx context.Context, ev events.PlagiarismDetectedEvent) {
	defer b.recoverHandler("plagiarism.detected", ev.SubmissionID)

	b.publish(ctx, hub.BuildRoomID(hub.RoomTypePlagiarism, ev.HostID), protocol.MsgPlagiarismAlert, PlagiarismAlertPayload{
		SubmissionID: ev.SubmissionID,
		ContestID:    ev.ContestID,
		StudentName:  ev.StudentName,
		ProblemTitle: ev.ProblemTitle,
		Similarity:   ev.Similarity,
		Severity:     events.SeverityFor(ev.Similarity),
		Timestamp:    ev.Timestamp,
	})
}

// LeaderboardSnapshot is the pull path. It does not advance the sequence and
// returns store errors to the caller.
func (b *Broadcaster) LeaderboardSnapshot(ctx context.Context, contestID string, limit int) (*LeaderboardSnapshot, error) {
	if limit <= 0 {
		limit = b.cfg.LeaderboardLimit
	}

	storeCtx, cancel := context.WithTimeout(ctx, b.cfg.StoreTimeout)
	defer cancel()

	seq, err := b.seq.Current(storeCtx, contestID)
	if err != nil {
		return nil, fmt.Errorf("read leaderboard sequence: %w", err)
	}

	board, err := b.engine.Leaderboard(storeCtx, contestID, limit)
	if err != nil {
		return nil, err
	}

	return b.newSnapshot(board, seq), nil
}

// SendLeaderboardSnapshot recomputes under the contest lock and hands the
// message to deliver before releasing it. The snapshot reuses the current
// sequence instead of advancing it.
func (b *Broadcaster) SendLeaderboardSnapshot(ctx context.Context, contestID string, deliver func(*protocol.Message)) error {
	unlock := b.locks.Lock(contestID)
	defer unlock()

	snapshot, err := b.recompute(ctx, contestID, false)
	if err != nil {
		return err
	}

	msg, err := protocol.NewMessage(protocol.MsgLeaderboardSnapshot, snapshot)
	if err != nil {
		return fmt.Errorf("encode leaderboard snapshot: %w", err)
	}
	deliver(msg)
	return nil
}

func (b *Broadcaster) publishLeaderboard(ctx context.Context, contestID string) {
	roomID := hub.BuildRoomID(hub.RoomTypeLeaderboard, contestID)
	defer b.recoverHandler("publish", roomID)

	unlock := b.locks.Lock(contestID)
	defer unlock()

	snapshot, err := b.recompute(ctx, contestID, true)
	if err != nil {
		b.metrics.IncPublish(string(hub.RoomTypeLeaderboard), "error")
		b.logger.Error().Err(err).Str("contestId", contestID).Msg("Failed to recompute leaderboard")
		return
	}

	b.publish(ctx, roomID, protocol.MsgLeaderboardSnapshot, snapshot)
}

// recompute must be called with the contest lock held. The sequence is taken
// before the store read, so a board carrying sequence N reflects at least
// every event that was given a number up to N.
func (b *Broadcaster) recompute(ctx context.Context, contestID string, advance bool) (*LeaderboardSnapshot, error) {
	start := time.Now()
	defer func() {
		b.metrics.ObserveRecompute(time.Since(start).Seconds())
	}()

	storeCtx, cancel := context.WithTimeout(ctx, b.cfg.StoreTimeout)
	defer cancel()

	var (
		seq uint64
		err error
	)
	if advance {
		seq, err = b.seq.Next(storeCtx, contestID)
	} else {
		seq, err = b.seq.Current(storeCtx, contestID)
	}
	if err != nil {
		return nil, fmt.Errorf("leaderboard sequence for %s: %w", contestID, err)
	}

	board, err := b.engine.Leaderboard(storeCtx, contestID, b.cfg.LeaderboardLimit)
	if err != nil {
		return nil, err
	}

	return b.newSnapshot(board, seq), nil
}

func (b *Broadcaster) newSnapshot(board *ranking.Leaderboard, seq uint64) *LeaderboardSnapshot {
	now := b.now()
	return &LeaderboardSnapshot{
		ContestID:   board.Contest.ID,
		Title:       board.Contest.Title,
		Status:      board.Contest.StatusAt(now),
		Sequence:    seq,
		Entries:     board.Entries,
		GeneratedAt: now.UTC(),
	}
}

// publish recovers on its own so one failing room never stops the next.
func (b *Broadcaster) publish(ctx context.Context, roomID string, msgType protocol.MessageType, payload interface{}) {
	defer b.recoverHandler("publish", roomID)

	roomType, _, _ := hub.ParseRoomID(roomID)

	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		b.metrics.IncPublish(string(roomType), "error")
		b.logger.Error().Err(err).Str("roomId", roomID).Msg("Failed to build message")
		return
	}

	recipients, err := b.pub.Publish(ctx, roomID, msg)
	if err != nil {
		b.metrics.IncPublish(string(roomType), "error")
		b.logger.Error().Err(err).Str("roomId", roomID).Msg("Failed to publish message")
		return
	}

	b.metrics.IncPublish(string(roomType), "ok")
	b.logger.Debug().
		Str("roomId", roomID).
		Str("type", string(msgType)).
		Int("recipients", recipients).
		Msg("Published")
}

func (b *Broadcaster) recoverHandler(event, key string) {
	if r := recover(); r != nil {
		b.logger.Error().
			Interface("panic", r).
			Str("event", event).
			Str("key", key).
			Msg("Recovered from event handler panic")
	}
}
