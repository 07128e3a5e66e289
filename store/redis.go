package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/runflow/types"
)

// RedisStore is a RunStore backed by Redis. Records are stored as JSON
// blobs next to a dedicated version counter key; updates run a Lua script
// so the version check and the write are one atomic step. The thread lease
// is a plain SET NX with compare-and-delete release.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// casUpdate writes KEYS[1] only when the version counter KEYS[2] still
// holds ARGV[2], then increments the counter.
var casUpdate = redis.NewScript(`
local v = redis.call('GET', KEYS[2])
if not v then
	return -1
end
if v ~= ARGV[2] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('INCR', KEYS[2])
return 1
`)

// releaseLease deletes the lease key only when the caller still owns it.
var releaseLease = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis run store initialized", zap.String("addr", cfg.Addr))

	return &RedisStore{
		client: client,
		logger: logger.With(zap.String("component", "redis_store")),
	}, nil
}

// NewRedisStoreFromClient wraps an existing client, used by tests.
func NewRedisStoreFromClient(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger.With(zap.String("component", "redis_store")),
	}
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func runKey(id string) string        { return "run:" + id }
func runVerKey(id string) string     { return "run:" + id + ":ver" }
func threadKey(id string) string     { return "thread:" + id }
func threadVerKey(id string) string  { return "thread:" + id + ":ver" }
func threadRunsKey(id string) string { return "thread:" + id + ":runs" }
func leaseKey(id string) string      { return "thread:" + id + ":lease" }

func (s *RedisStore) CreateRun(ctx context.Context, run *types.Run) error {
	now := time.Now()
	run.Version = 1
	run.CreatedAt = now
	run.UpdatedAt = now

	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, runKey(run.RunID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, runVerKey(run.RunID), 1, 0)
	pipe.RPush(ctx, threadRunsKey(run.ThreadID), run.RunID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	data, err := s.client.Get(ctx, runKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var run types.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *RedisStore) UpdateRun(ctx context.Context, run *types.Run) error {
	next := run.Clone()
	next.Version = run.Version + 1
	next.UpdatedAt = time.Now()

	data, err := json.Marshal(next)
	if err != nil {
		return err
	}

	res, err := casUpdate.Run(ctx, s.client,
		[]string{runKey(run.RunID), runVerKey(run.RunID)},
		data, fmt.Sprintf("%d", run.Version),
	).Int()
	if err != nil {
		return err
	}
	switch res {
	case -1:
		return ErrNotFound
	case 0:
		return ErrVersionConflict
	}

	run.Version = next.Version
	run.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *RedisStore) LatestRun(ctx context.Context, threadID string) (*types.Run, error) {
	id, err := s.client.LIndex(ctx, threadRunsKey(threadID), -1).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetRun(ctx, id)
}

func (s *RedisStore) ListRuns(ctx context.Context, threadID string, filter RunFilter) ([]*types.Run, error) {
	ids, err := s.client.LRange(ctx, threadRunsKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	// Newest first.
	var out []*types.Run
	for i := len(ids) - 1; i >= 0; i-- {
		run, err := s.GetRun(ctx, ids[i])
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, run)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *RedisStore) CreateThread(ctx context.Context, thread *types.Thread) error {
	now := time.Now()
	thread.Version = 1
	thread.CreatedAt = now
	thread.UpdatedAt = now

	data, err := json.Marshal(thread)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, threadKey(thread.ThreadID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}
	return s.client.Set(ctx, threadVerKey(thread.ThreadID), 1, 0).Err()
}

func (s *RedisStore) GetThread(ctx context.Context, threadID string) (*types.Thread, error) {
	data, err := s.client.Get(ctx, threadKey(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var thread types.Thread
	if err := json.Unmarshal(data, &thread); err != nil {
		return nil, err
	}
	if owner, err := s.client.Get(ctx, leaseKey(threadID)).Result(); err == nil {
		thread.LeaseOwner = owner
	}
	return &thread, nil
}

func (s *RedisStore) UpdateThread(ctx context.Context, thread *types.Thread) error {
	next := *thread
	next.Version = thread.Version + 1
	next.UpdatedAt = time.Now()

	data, err := json.Marshal(&next)
	if err != nil {
		return err
	}

	res, err := casUpdate.Run(ctx, s.client,
		[]string{threadKey(thread.ThreadID), threadVerKey(thread.ThreadID)},
		data, fmt.Sprintf("%d", thread.Version),
	).Int()
	if err != nil {
		return err
	}
	switch res {
	case -1:
		return ErrNotFound
	case 0:
		return ErrVersionConflict
	}

	thread.Version = next.Version
	thread.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *RedisStore) DeleteThread(ctx context.Context, threadID string) error {
	exists, err := s.client.Exists(ctx, threadKey(threadID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	ids, err := s.client.LRange(ctx, threadRunsKey(threadID), 0, -1).Result()
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, runKey(id), runVerKey(id))
	}
	pipe.Del(ctx, threadKey(threadID), threadVerKey(threadID), threadRunsKey(threadID), leaseKey(threadID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) AcquireLease(ctx context.Context, threadID, runID string) error {
	exists, err := s.client.Exists(ctx, threadKey(threadID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	ok, err := s.client.SetNX(ctx, leaseKey(threadID), runID, 0).Result()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	owner, err := s.client.Get(ctx, leaseKey(threadID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if owner == runID {
		return nil
	}
	return ErrLeaseHeld
}

func (s *RedisStore) ReleaseLease(ctx context.Context, threadID, runID string) error {
	return releaseLease.Run(ctx, s.client, []string{leaseKey(threadID)}, runID).Err()
}

var _ RunStore = (*RedisStore)(nil)
