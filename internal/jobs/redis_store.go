package jobs

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"ragkit/internal/apperr"
)

// RedisStore implements the "embedded KV" persistence option from spec
// §4.F: three keys (jobs, queue, idem) holding JSON-encoded blobs,
// write-through after every mutation. Each blob is written with its own
// SET; writes to the three keys are not grouped into one transaction.
// Grounded on the Redis client wiring pattern this module's workspace
// generation cache uses (single-node options).
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore connects to addr (a redis:// URL) and returns a Store.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, apperr.Wrap(apperr.Configuration, "jobs: parsing REDIS_URL", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, apperr.Wrap(apperr.Database, "jobs: connecting to redis", err)
	}
	return &RedisStore{client: client, prefix: "ragkit:jobs:"}, nil
}

func (s *RedisStore) keyJobs() string  { return s.prefix + "jobs" }
func (s *RedisStore) keyQueue() string { return s.prefix + "queue" }
func (s *RedisStore) keyIdem() string  { return s.prefix + "idem" }

func (s *RedisStore) Load(ctx context.Context) (map[string]Job, []string, map[string]string, error) {
	jobsByID := map[string]Job{}
	queue := []string{}
	idem := map[string]string{}

	if raw, err := s.client.Get(ctx, s.keyJobs()).Result(); err == nil {
		_ = json.Unmarshal([]byte(raw), &jobsByID)
	} else if err != redis.Nil {
		return nil, nil, nil, apperr.Wrap(apperr.Database, "jobs: loading jobs blob", err)
	}
	if raw, err := s.client.Get(ctx, s.keyQueue()).Result(); err == nil {
		_ = json.Unmarshal([]byte(raw), &queue)
	} else if err != redis.Nil {
		return nil, nil, nil, apperr.Wrap(apperr.Database, "jobs: loading queue blob", err)
	}
	if raw, err := s.client.Get(ctx, s.keyIdem()).Result(); err == nil {
		_ = json.Unmarshal([]byte(raw), &idem)
	} else if err != redis.Nil {
		return nil, nil, nil, apperr.Wrap(apperr.Database, "jobs: loading idempotency blob", err)
	}
	return jobsByID, queue, idem, nil
}

func (s *RedisStore) SaveJob(ctx context.Context, j Job) error {
	jobsByID, _, _, err := s.Load(ctx)
	if err != nil {
		return err
	}
	jobsByID[j.ID] = j
	return s.putJSON(ctx, s.keyJobs(), jobsByID)
}

func (s *RedisStore) SaveQueue(ctx context.Context, queue []string) error {
	return s.putJSON(ctx, s.keyQueue(), queue)
}

func (s *RedisStore) SaveIdempotency(ctx context.Context, idem map[string]string) error {
	return s.putJSON(ctx, s.keyIdem(), idem)
}

func (s *RedisStore) putJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return apperr.Wrap(apperr.Serialization, "jobs: encoding redis blob", err)
	}
	if err := s.client.Set(ctx, key, b, 0).Err(); err != nil {
		return apperr.Wrap(apperr.Database, "jobs: writing redis blob", err)
	}
	return nil
}
