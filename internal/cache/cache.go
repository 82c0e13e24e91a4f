// cache — кэш израсходованных refresh-токенов в Redis.
//
// После ротации или выхода хэш старого токена попадает сюда с пометкой revoked
// до истечения его срока. Повторное предъявление такого токена отклоняется
// без обращения к основному хранилищу. Источником истины остаётся хранилище:
// промах кэша ничего не разрешает.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix — префикс ключей по умолчанию.
const DefaultPrefix = "auth:rt:"

// RefreshEntry описывает данные, которые хранятся в Redis по хэшу refresh-токена.
type RefreshEntry struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
	Revoked   bool
	ExpiresAt time.Time
}

// RefreshCache — контракт кэша refresh-токенов.
type RefreshCache interface {
	// Get возвращает запись и признак её наличия в кэше.
	Get(ctx context.Context, hash string) (*RefreshEntry, bool, error)
	// Set сохраняет запись с TTL (обычно ExpiresAt-now). ttl <= 0 — запись не сохраняется.
	Set(ctx context.Context, hash string, e *RefreshEntry, ttl time.Duration) error
	// Close закрывает клиент Redis.
	Close() error
}

type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется DefaultPrefix.
func NewRedisCache(ctx context.Context, redisURL, prefix string) (RefreshCache, error) {
	const op = "cache.NewRedisCache"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return newWithClient(rdb, prefix), nil
}

func newWithClient(rdb *redis.Client, prefix string) *redisCache {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &redisCache{rdb: rdb, prefix: prefix}
}

func (c *redisCache) key(hash string) string { return c.prefix + hash }

// Храним как Redis Hash с полями: uid, sid, rev (0/1), exp (unix).
func (c *redisCache) Get(ctx context.Context, hash string) (*RefreshEntry, bool, error) {
	const op = "cache.Get"

	m, err := c.rdb.HGetAll(ctx, c.key(hash)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if len(m) == 0 {
		return nil, false, nil
	}

	uid, err := uuid.Parse(m["uid"])
	if err != nil {
		return nil, false, fmt.Errorf("%s: uid: %w", op, err)
	}

	// sid может отсутствовать.
	sid, _ := uuid.Parse(m["sid"])

	expUnix, err := strconv.ParseInt(m["exp"], 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("%s: exp: %w", op, err)
	}

	return &RefreshEntry{
		UserID:    uid,
		SessionID: sid,
		Revoked:   m["rev"] == "1",
		ExpiresAt: time.Unix(expUnix, 0).UTC(),
	}, true, nil
}

func (c *redisCache) Set(ctx context.Context, hash string, e *RefreshEntry, ttl time.Duration) error {
	const op = "cache.Set"

	if ttl <= 0 {
		return nil
	}

	kv := map[string]string{
		"uid": e.UserID.String(),
		"sid": e.SessionID.String(),
		"rev": boolTo01(e.Revoked),
		"exp": strconv.FormatInt(e.ExpiresAt.Unix(), 10),
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, c.key(hash), kv)
	pipe.Expire(ctx, c.key(hash), ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *redisCache) Close() error { return c.rdb.Close() }

func boolTo01(b bool) string {
	if b {
		return "1"
	}

	return "0"
}
