package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/alecbass/jdp-htmx-chat/internal/domain"
)

const (
	// Redis hash field names for session keys.
	fieldUserID    = "user_id"
	fieldExpiresAt = "expires_at"
)

// SessionRepo is the system of record for visitor sessions.
type SessionRepo struct {
	rdb   *goredis.Client
	clock clockwork.Clock
}

func NewSessionRepo(rdb *goredis.Client, clock clockwork.Clock) *SessionRepo {
	return &SessionRepo{rdb: rdb, clock: clock}
}

var _ domain.SessionRepository = (*SessionRepo)(nil)

func (s *SessionRepo) Create(ctx context.Context, token string, expiresAt time.Time) (*domain.Session, error) {
	sk := sessionKey(token)
	ttl := expiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return nil, fmt.Errorf("session expiry %s is not in the future", expiresAt)
	}

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, sk, map[string]any{
		fieldUserID:    "",
		fieldExpiresAt: strconv.FormatInt(expiresAt.UnixMilli(), 10),
	})
	pipe.Expire(ctx, sk, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &domain.Session{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *SessionRepo) Get(ctx context.Context, token string) (*domain.Session, error) {
	sk := sessionKey(token)

	fields, err := s.rdb.HGetAll(ctx, sk).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrSessionNotFound
	}

	session, err := parseSession(token, fields)
	if err != nil {
		return nil, err
	}

	// The TTL already evicts expired sessions; this guards the window where
	// the key still exists but the deadline has passed.
	if !session.ExpiresAt.After(s.clock.Now()) {
		return nil, domain.ErrSessionNotFound
	}

	return session, nil
}

func (s *SessionRepo) SetUser(ctx context.Context, token string, userID int64) (*domain.Session, error) {
	sk := sessionKey(token)

	exists, err := s.rdb.Exists(ctx, sk).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check session existence: %w", err)
	}
	if exists == 0 {
		return nil, domain.ErrSessionNotFound
	}

	if err := s.rdb.HSet(ctx, sk, fieldUserID, strconv.FormatInt(userID, 10)).Err(); err != nil {
		return nil, fmt.Errorf("failed to bind user to session: %w", err)
	}

	return s.Get(ctx, token)
}

func parseSession(token string, fields map[string]string) (*domain.Session, error) {
	session := &domain.Session{Token: token}

	if raw := fields[fieldUserID]; raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt user_id for session: %w", err)
		}
		session.UserID = &userID
	}

	raw, ok := fields[fieldExpiresAt]
	if !ok {
		return nil, fmt.Errorf("session record missing expires_at")
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt expires_at for session: %w", err)
	}
	session.ExpiresAt = time.UnixMilli(ms)

	return session, nil
}

func sessionKey(token string) string {
	return "session:" + token
}
