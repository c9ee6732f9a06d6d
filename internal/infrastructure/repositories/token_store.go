package repositories

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/antidetect/dashboard_service/internal/domain/repositories"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/nacl/secretbox"
)

const sessionKeyPrefix = "dashboard:session:"

// RedisClient is the subset of redis commands the token store uses
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// TokenStore keeps sessions in redis, sealed with secretbox so upstream
// tokens are never stored in plaintext.
type TokenStore struct {
	redis RedisClient
	key   [32]byte
}

var _ repositories.SessionStore = (*TokenStore)(nil)

// NewTokenStore creates a token store. The secretbox key is derived from encryptionKey.
func NewTokenStore(client RedisClient, encryptionKey string) *TokenStore {
	return &TokenStore{
		redis: client,
		key:   sha256.Sum256([]byte(encryptionKey)),
	}
}

// Save seals and stores the session for ttl
func (s *TokenStore) Save(ctx context.Context, session *repositories.StoredSession, ttl time.Duration) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	plain, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &s.key)

	if err := s.redis.Set(ctx, sessionKeyPrefix+session.ID, sealed, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Get loads and opens a stored session
func (s *TokenStore) Get(ctx context.Context, sessionID string) (*repositories.StoredSession, error) {
	sealed, err := s.redis.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repositories.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if len(sealed) < 24+secretbox.Overhead {
		return nil, fmt.Errorf("stored session is truncated")
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.key)
	if !ok {
		return nil, fmt.Errorf("failed to decrypt stored session")
	}

	var session repositories.StoredSession
	if err := json.Unmarshal(plain, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Delete removes a stored session
func (s *TokenStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, sessionKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
