package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"ragkit/internal/apperr"
)

// RedisStore backs sessions with a remote KV: key "session:<id>", JSON
// value, TTL SESS_TTL_SECS — grounded on this module's Redis client wiring
// idiom (single-node redis.Options, Ping on construction).
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to url (a redis:// URL) and returns a Store.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, apperr.Wrap(apperr.Configuration, "session: parsing REDIS_URL", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, apperr.Wrap(apperr.Database, "session: connecting to redis", err)
	}
	return &RedisStore{client: client}, nil
}

func key(id string) string { return "session:" + id }

func (s *RedisStore) Get(ctx context.Context, id string) (Session, bool, error) {
	raw, err := s.client.Get(ctx, key(id)).Bytes()
	if err == redis.Nil {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, apperr.Wrap(apperr.Database, "session: reading session", err)
	}
	sess, err := UnmarshalFromStore(raw)
	if err != nil {
		return Session{}, false, apperr.Wrap(apperr.Serialization, "session: decoding session", err)
	}
	return sess, true, nil
}

func (s *RedisStore) Save(ctx context.Context, sess Session, ttl time.Duration) error {
	raw, err := MarshalForStore(sess)
	if err != nil {
		return apperr.Wrap(apperr.Serialization, "session: encoding session", err)
	}
	if err := s.client.Set(ctx, key(sess.ID), raw, ttl).Err(); err != nil {
		return apperr.Wrap(apperr.Database, "session: writing session", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		return apperr.Wrap(apperr.Database, "session: deleting session", err)
	}
	return nil
}
