package vault

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/webmail-relay/internal/model"
	"github.com/iliyamo/webmail-relay/internal/repository"
)

// RedisStore keeps entries as JSON under "<prefix>:<token hash>". The Redis
// TTL outlives ExpiresAt by a grace period so a read just after expiry
// still sees the entry and can report it as expired.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	grace  time.Duration
	now    func() time.Time
}

// NewRedisStore returns a store using prefix for its keys ("vault" when empty).
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "vault"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, grace: time.Hour, now: time.Now}
}

type redisEntry struct {
	UserID        uint64    `json:"user_id"`
	MailAddressID uint64    `json:"mail_address_id"`
	Token         string    `json:"token"`
	Secret        []byte    `json:"secret"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s *RedisStore) key(hash string) string { return s.prefix + ":" + hash }

func (s *RedisStore) Upsert(ctx context.Context, e model.VaultEntry) error {
	b, err := json.Marshal(redisEntry{
		UserID:        e.UserID,
		MailAddressID: e.MailAddressID,
		Token:         e.Token,
		Secret:        e.Secret,
		ExpiresAt:     e.ExpiresAt.UTC(),
		CreatedAt:     e.CreatedAt.UTC(),
	})
	if err != nil {
		return err
	}
	ttl := e.ExpiresAt.Sub(s.now()) + s.grace
	if ttl < time.Second {
		ttl = time.Second
	}
	return s.rdb.Set(ctx, s.key(e.TokenHash), b, ttl).Err()
}

func (s *RedisStore) Find(ctx context.Context, tokenHash string) (model.VaultEntry, error) {
	b, err := s.rdb.Get(ctx, s.key(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.VaultEntry{}, repository.ErrNotFound
	}
	if err != nil {
		return model.VaultEntry{}, err
	}
	var re redisEntry
	if err := json.Unmarshal(b, &re); err != nil {
		return model.VaultEntry{}, err
	}
	return model.VaultEntry{
		UserID:        re.UserID,
		MailAddressID: re.MailAddressID,
		Token:         re.Token,
		TokenHash:     tokenHash,
		Secret:        re.Secret,
		ExpiresAt:     re.ExpiresAt,
		CreatedAt:     re.CreatedAt,
	}, nil
}

func (s *RedisStore) Delete(ctx context.Context, tokenHash string) error {
	return s.rdb.Del(ctx, s.key(tokenHash)).Err()
}

// DeleteExpired scans the prefix and removes entries whose ExpiresAt is
// before now. Redis expiry reclaims the rest eventually.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	iter := s.rdb.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		b, err := s.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, err
		}
		var re redisEntry
		if err := json.Unmarshal(b, &re); err != nil || re.ExpiresAt.Before(now) {
			n, err := s.rdb.Del(ctx, key).Result()
			if err != nil {
				return removed, err
			}
			removed += n
		}
	}
	return removed, iter.Err()
}
