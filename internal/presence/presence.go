package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	presenceKeyFmt = "presence:user:%s"
	presenceTTL    = 5 * time.Minute
)

// HashStore is the subset of redis the presence markers need.
type HashStore interface {
	HSet(ctx context.Context, key string, field string, value interface{}) error
	HDel(ctx context.Context, key string, fields ...string) error
	HLen(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
}

// Manager keeps one hash per user with a field per instance holding a live
// connection for that user.
type Manager struct {
	store      HashStore
	instanceID string
	logger     zerolog.Logger
	now        func() time.Time
}

func NewManager(store HashStore, instanceID string, logger zerolog.Logger) *Manager {
	return &Manager{
		store:      store,
		instanceID: instanceID,
		logger:     logger.With().Str("component", "presence").Logger(),
		now:        time.Now,
	}
}

func (m *Manager) SetOnline(ctx context.Context, userID string) error {
	return m.touch(ctx, userID)
}

func (m *Manager) RefreshPresence(ctx context.Context, userID string) error {
	return m.touch(ctx, userID)
}

func (m *Manager) SetOffline(ctx context.Context, userID string) error {
	if err := m.store.HDel(ctx, key(userID), m.instanceID); err != nil {
		return fmt.Errorf("clear presence for %s: %w", userID, err)
	}
	m.logger.Debug().Str("userId", userID).Msg("User offline on this instance")
	return nil
}

func (m *Manager) IsOnline(ctx context.Context, userID string) (bool, error) {
	count, err := m.store.HLen(ctx, key(userID))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (m *Manager) touch(ctx context.Context, userID string) error {
	k := key(userID)
	if err := m.store.HSet(ctx, k, m.instanceID, m.now().Unix()); err != nil {
		return fmt.Errorf("set presence for %s: %w", userID, err)
	}
	return m.store.Expire(ctx, k, presenceTTL)
}

func key(userID string) string {
	return fmt.Sprintf(presenceKeyFmt, userID)
}
