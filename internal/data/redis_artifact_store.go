package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/domain/model"
)

// RedisArtifactStore keeps each artifact in a Redis hash.
type RedisArtifactStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ core.ArtifactStore = (*RedisArtifactStore)(nil)

// RedisArtifactStoreOptions configures NewRedisArtifactStore.
type RedisArtifactStoreOptions struct {
	Prefix string
	// TTL of zero keeps artifacts until deleted.
	TTL time.Duration
}

// NewRedisArtifactStore creates a store on the given client.
func NewRedisArtifactStore(client redis.UniversalClient, opts RedisArtifactStoreOptions) *RedisArtifactStore {
	return &RedisArtifactStore{client: client, prefix: opts.Prefix, ttl: opts.TTL}
}

// Put writes the artifact hash and refreshes its expiry in one transaction.
func (r *RedisArtifactStore) Put(ctx context.Context, key string, a *model.Artifact) (model.ResultRef, error) {
	rkey, err := r.key(key)
	if err != nil {
		return model.ResultRef{}, err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, rkey)
		p.HSet(ctx, rkey,
			"content_type", a.ContentType,
			"file_name", a.FileName,
			"data", a.Data,
		)
		if r.ttl > 0 {
			p.Expire(ctx, rkey, r.ttl)
		}
		return nil
	})
	if err != nil {
		return model.ResultRef{}, fmt.Errorf("redis put artifact %s: %w", key, err)
	}
	return a.Ref(key), nil
}

// Get reads an artifact hash.
func (r *RedisArtifactStore) Get(ctx context.Context, key string) (*model.Artifact, error) {
	rkey, err := r.key(key)
	if err != nil {
		return nil, err
	}
	fields, err := r.client.HGetAll(ctx, rkey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get artifact %s: %w", key, err)
	}
	data, ok := fields["data"]
	if !ok {
		return nil, fmt.Errorf("get artifact %s: %w", key, model.ErrArtifactNotFound)
	}
	return &model.Artifact{
		ContentType: fields["content_type"],
		FileName:    fields["file_name"],
		Data:        []byte(data),
	}, nil
}

// Delete removes an artifact hash.
func (r *RedisArtifactStore) Delete(ctx context.Context, key string) error {
	rkey, err := r.key(key)
	if err != nil {
		return err
	}
	if err := r.client.Del(ctx, rkey).Err(); err != nil {
		return fmt.Errorf("redis del artifact %s: %w", key, err)
	}
	return nil
}

func (r *RedisArtifactStore) key(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrArtifactKeyRequired
	}
	return r.prefix + key, nil
}
