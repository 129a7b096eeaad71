package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
	"github.com/johnquangdev/meeting-minutes/internal/domain/repositories"
)

const (
	redisIndexKey      = "pipeline:contexts"
	redisPendingKey    = "pipeline:contexts:pending"
	redisContextPrefix = "pipeline:context:"
)

// commitScript writes the context only while ARGV[1] holds the lease. The pending
// set (KEYS[3]) holds non-terminal ids scored by update time.
var commitScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[2], ARGV[2])
	if ARGV[5] == "1" then
		redis.call("ZREM", KEYS[3], ARGV[4])
	else
		redis.call("ZADD", KEYS[3], ARGV[3], ARGV[4])
	end
	return 1
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisContextRepository stores processing contexts as JSON documents in Redis.
// Leases are SET NX PX keys; commits are fenced by a Lua compare-and-set.
type RedisContextRepository struct {
	client *redis.Client
}

// NewRedisContextRepository creates a Redis-backed repository
func NewRedisContextRepository(client *redis.Client) *RedisContextRepository {
	return &RedisContextRepository{client: client}
}

var _ repositories.ProcessingContextRepository = (*RedisContextRepository)(nil)

func contextKey(id uuid.UUID) string {
	return redisContextPrefix + id.String()
}

// Create stores a new context, indexes it by creation time and, unless terminal,
// adds it to the pending set
func (r *RedisContextRepository) Create(ctx context.Context, pc *entities.ProcessingContext) error {
	body, err := json.Marshal(pc)
	if err != nil {
		return fmt.Errorf("failed to encode processing context: %w", err)
	}

	ok, err := r.client.SetNX(ctx, contextKey(pc.ID), body, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return repositories.ErrContextExists
	}

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, redisIndexKey, redis.Z{
		Score:  float64(pc.CreatedAt.UnixNano()),
		Member: pc.ID.String(),
	})
	if !pc.Stage.IsTerminal() {
		pipe.ZAdd(ctx, redisPendingKey, redis.Z{
			Score:  float64(pc.UpdatedAt.UnixMilli()),
			Member: pc.ID.String(),
		})
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Get loads a context; the active run id is read from the lease key
func (r *RedisContextRepository) Get(ctx context.Context, id uuid.UUID) (*entities.ProcessingContext, error) {
	body, err := r.client.Get(ctx, contextKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var pc entities.ProcessingContext
	if err := json.Unmarshal(body, &pc); err != nil {
		return nil, fmt.Errorf("failed to decode processing context %s: %w", id, err)
	}

	runID, err := r.client.Get(ctx, leaseKey(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	pc.ActiveRunID = runID
	return &pc, nil
}

// List returns contexts newest first
func (r *RedisContextRepository) List(ctx context.Context, limit int) ([]entities.ProcessingContext, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.client.ZRevRange(ctx, redisIndexKey, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	return r.load(ctx, ids)
}

// ListResumable returns non-terminal contexts with no live lease, least recently
// updated first. Only the pending set is scanned, never the full history.
func (r *RedisContextRepository) ListResumable(ctx context.Context, limit int) ([]entities.ProcessingContext, error) {
	ids, err := r.client.ZRange(ctx, redisPendingKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	all, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]entities.ProcessingContext, 0)
	for _, pc := range all {
		if !pc.Stage.IsTerminal() && pc.ActiveRunID == "" {
			out = append(out, pc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClaimRun takes the lease with SET NX PX
func (r *RedisContextRepository) ClaimRun(ctx context.Context, id uuid.UUID, runID string, ttl time.Duration) (bool, error) {
	exists, err := r.client.Exists(ctx, contextKey(id)).Result()
	if err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}
	return r.client.SetNX(ctx, leaseKey(id), runID, ttl).Result()
}

// RenewRun extends the lease held by runID
func (r *RedisContextRepository) RenewRun(ctx context.Context, id uuid.UUID, runID string, ttl time.Duration) error {
	n, err := renewScript.Run(ctx, r.client, []string{leaseKey(id)}, runID, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return repositories.ErrLeaseLost
	}
	return nil
}

// ReleaseRun deletes the lease held by runID
func (r *RedisContextRepository) ReleaseRun(ctx context.Context, id uuid.UUID, runID string) error {
	n, err := releaseScript.Run(ctx, r.client, []string{leaseKey(id)}, runID).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return repositories.ErrLeaseLost
	}
	return nil
}

// Commit replaces the stored document while runID holds the lease
func (r *RedisContextRepository) Commit(ctx context.Context, pc *entities.ProcessingContext, runID string) error {
	pc.UpdatedAt = time.Now().UTC()
	body, err := json.Marshal(pc)
	if err != nil {
		return fmt.Errorf("failed to encode processing context: %w", err)
	}

	terminal := "0"
	if pc.Stage.IsTerminal() {
		terminal = "1"
	}
	keys := []string{leaseKey(pc.ID), contextKey(pc.ID), redisPendingKey}
	n, err := commitScript.Run(ctx, r.client, keys, runID, body, pc.UpdatedAt.UnixMilli(), pc.ID.String(), terminal).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return repositories.ErrLeaseLost
	}
	return nil
}

func (r *RedisContextRepository) load(ctx context.Context, ids []string) ([]entities.ProcessingContext, error) {
	if len(ids) == 0 {
		return []entities.ProcessingContext{}, nil
	}

	keys := make([]string, 0, 2*len(ids))
	for _, id := range ids {
		keys = append(keys, redisContextPrefix+id)
	}
	for _, id := range ids {
		keys = append(keys, "pipeline:lease:"+id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]entities.ProcessingContext, 0, len(ids))
	for i := range ids {
		body, ok := values[i].(string)
		if !ok {
			continue
		}
		var pc entities.ProcessingContext
		if err := json.Unmarshal([]byte(body), &pc); err != nil {
			return nil, fmt.Errorf("failed to decode processing context %s: %w", ids[i], err)
		}
		if runID, ok := values[len(ids)+i].(string); ok {
			pc.ActiveRunID = runID
		}
		out = append(out, pc)
	}
	return out, nil
}
