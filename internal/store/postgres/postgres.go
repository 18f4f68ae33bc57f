package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CDeX-Labs/CDeX-Live-Service/internal/contest"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the subset of the platform database the live service reads.
const Schema = `
CREATE TABLE IF NOT EXISTS contests (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	host_id    TEXT NOT NULL DEFAULT '',
	start_time TIMESTAMPTZ NOT NULL,
	end_time   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS contest_participants (
	contest_id   TEXT NOT NULL REFERENCES contests(id) ON DELETE CASCADE,
	user_id      TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	avatar       TEXT NOT NULL DEFAULT '',
	score        INTEGER NOT NULL DEFAULT 0,
	joined_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (contest_id, user_id)
);

CREATE TABLE IF NOT EXISTS contest_participant_submissions (
	contest_id   TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	problem_id   TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	FOREIGN KEY (contest_id, user_id) REFERENCES contest_participants(contest_id, user_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_participant_submissions_contest
	ON contest_participant_submissions (contest_id, submitted_at);
`

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

type Store struct {
	pool *pgxpool.Pool
}

var _ contest.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres.EnsureSchema: %w", err)
	}
	return nil
}

func (s *Store) GetContest(ctx context.Context, contestID string) (*contest.Contest, error) {
	query := `SELECT id, title, host_id, start_time, end_time FROM contests WHERE id = $1`

	c := &contest.Contest{}
	err := s.pool.QueryRow(ctx, query, contestID).Scan(&c.ID, &c.Title, &c.HostID, &c.StartTime, &c.EndTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contest.ErrNotFound
		}
		return nil, fmt.Errorf("postgres.GetContest: %w", err)
	}
	return c, nil
}

// GetParticipants returns participants in join order with their submissions
// ordered by time.
func (s *Store) GetParticipants(ctx context.Context, contestID string) ([]contest.Participant, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM contests WHERE id = $1)`, contestID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("postgres.GetParticipants: %w", err)
	}
	if !exists {
		return nil, contest.ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT user_id, display_name, avatar, score
		FROM contest_participants
		WHERE contest_id = $1
		ORDER BY joined_at, user_id`, contestID)
	if err != nil {
		return nil, fmt.Errorf("postgres.GetParticipants: %w", err)
	}
	defer rows.Close()

	participants := make([]contest.Participant, 0)
	index := make(map[string]int)
	for rows.Next() {
		var p contest.Participant
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.Avatar, &p.Score); err != nil {
			return nil, fmt.Errorf("postgres.GetParticipants: scan participant: %w", err)
		}
		index[p.UserID] = len(participants)
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres.GetParticipants: %w", err)
	}

	subRows, err := s.pool.Query(ctx, `
		SELECT user_id, problem_id, submitted_at
		FROM contest_participant_submissions
		WHERE contest_id = $1
		ORDER BY submitted_at`, contestID)
	if err != nil {
		return nil, fmt.Errorf("postgres.GetParticipants: submissions: %w", err)
	}
	defer subRows.Close()

	for subRows.Next() {
		var userID string
		var ref contest.SubmissionRef
		if err := subRows.Scan(&userID, &ref.ProblemID, &ref.SubmittedAt); err != nil {
			return nil, fmt.Errorf("postgres.GetParticipants: scan submission: %w", err)
		}
		if i, ok := index[userID]; ok {
			participants[i].Submissions = append(participants[i].Submissions, ref)
		}
	}
	if err := subRows.Err(); err != nil {
		return nil, fmt.Errorf("postgres.GetParticipants: submissions: %w", err)
	}

	return participants, nil
}

func (s *Store) ListContests(ctx context.Context, endingAfter time.Time) ([]contest.Contest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, host_id, start_time, end_time
		FROM contests
		WHERE end_time > $1
		ORDER BY start_time`, endingAfter)
	if err != nil {
		return nil, fmt.Errorf("postgres.ListContests: %w", err)
	}
	defer rows.Close()

	var contests []contest.Contest
	for rows.Next() {
		var c contest.Contest
		if err := rows.Scan(&c.ID, &c.Title, &c.HostID, &c.StartTime, &c.EndTime); err != nil {
			return nil, fmt.Errorf("postgres.ListContests: scan: %w", err)
		}
		contests = append(contests, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres.ListContests: %w", err)
	}
	return contests, nil
}
