package registry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	completedKey    = "ragproc:completed_files"
	chunkSetKeyBase = "ragproc:chunks:"
)

// Redis backs the Status contract with a shared store so multiple index
// workers can resume each other's files.
type Redis struct {
	client *redis.Client
}

// ConnectRedis dials Redis and returns a shared registry.
func ConnectRedis(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("registry: ping %s: %w", addr, err)
	}
	return &Redis{client: client}, nil
}

func chunkSetKey(fileName string) string { return chunkSetKeyBase + fileName }

// IsFileProcessed implements Status.
func (r *Redis) IsFileProcessed(ctx context.Context, fileName string) (bool, error) {
	ok, err := r.client.HExists(ctx, completedKey, fileName).Result()
	if err != nil {
		return false, fmt.Errorf("registry: hexists: %w", err)
	}
	return ok, nil
}

// GetProcessedChunks implements Status.
func (r *Redis) GetProcessedChunks(ctx context.Context, fileName string) (map[string]struct{}, error) {
	ids, err := r.client.SMembers(ctx, chunkSetKey(fileName)).Result()
	if err != nil {
		return nil, fmt.Errorf("registry: smembers: %w", err)
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// MarkChunksProcessed implements Status.
func (r *Redis) MarkChunksProcessed(ctx context.Context, fileName string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	members := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		members[i] = id
	}
	if err := r.client.SAdd(ctx, chunkSetKey(fileName), members...).Err(); err != nil {
		return fmt.Errorf("registry: sadd: %w", err)
	}
	return nil
}

// MarkFileComplete implements Status. The completion record and the chunk-set
// purge commit together.
func (r *Redis) MarkFileComplete(ctx context.Context, fileName, fileHash string) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, completedKey, fileName, fileHash)
	pipe.Del(ctx, chunkSetKey(fileName))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("registry: complete %s: %w", fileName, err)
	}
	return nil
}

// Close releases the connection.
func (r *Redis) Close() error { return r.client.Close() }
