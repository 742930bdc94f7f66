package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"libreria/internal/auth"
	"libreria/pkg/domain"
	"libreria/pkg/platform/sentinel"
)

const keyPrefix = "session:"

// RedisStore persists sessions as JSON values with a TTL matching the
// session expiry, so Redis evicts them without a reaper.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedis builds a store on the given client.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

type redisSession struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	DeviceDisplayName string    `json:"device_display_name,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// Create stores the session with a TTL derived from its expiry.
func (s *RedisStore) Create(ctx context.Context, sess *auth.Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return sentinel.ErrExpired
	}
	payload, err := json.Marshal(redisSession{
		ID:                sess.ID.String(),
		UserID:            sess.UserID.String(),
		DeviceDisplayName: sess.DeviceDisplayName,
		CreatedAt:         sess.CreatedAt,
		ExpiresAt:         sess.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+sess.ID.String(), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// FindByID returns sentinel.ErrNotFound when the key is absent (expired keys
// are absent by construction).
func (s *RedisStore) FindByID(ctx context.Context, id domain.SessionID) (*auth.Session, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var rs redisSession
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	sid, err := uuid.Parse(rs.ID)
	if err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	uid, err := uuid.Parse(rs.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse session user id: %w", err)
	}
	return &auth.Session{
		ID:                domain.SessionID(sid),
		UserID:            domain.UserID(uid),
		DeviceDisplayName: rs.DeviceDisplayName,
		CreatedAt:         rs.CreatedAt,
		ExpiresAt:         rs.ExpiresAt,
	}, nil
}

// Delete is idempotent.
func (s *RedisStore) Delete(ctx context.Context, id domain.SessionID) error {
	if err := s.client.Del(ctx, keyPrefix+id.String()).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
