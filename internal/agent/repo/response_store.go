package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Chative-core-poc-v1/assistant/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/assistant/internal/core/error"
	logx "github.com/Chative-core-poc-v1/assistant/pkg/logger"
)

const keyPrefix = "assistant:response:"

type RedisResponseStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisResponseStore(rdb redis.Cmdable, ttl time.Duration) *RedisResponseStore {
	return &RedisResponseStore{rdb: rdb, ttl: ttl}
}

func (r *RedisResponseStore) responseKey(question string) string {
	return keyPrefix + question
}

func (r *RedisResponseStore) Get(ctx context.Context, question string) (*model.StoredResponse, error) {
	key := r.responseKey(question)

	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errx.New(model.ErrResponseNotFound, http.StatusNotFound, errx.RedisNotFoundMessage)
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load response from redis")
		return nil, errx.WrapRedis(err)
	}

	var resp model.StoredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to unmarshal stored response")
		return nil, fmt.Errorf("unmarshal stored response: %w", err)
	}
	return &resp, nil
}

func (r *RedisResponseStore) Put(ctx context.Context, question string, resp *model.StoredResponse) error {
	if resp == nil {
		return errors.New("stored response is nil")
	}
	b, err := json.Marshal(resp)
	if err != nil {
		logx.Error().Err(err).Str("question", question).Msg("failed to marshal response")
		return fmt.Errorf("marshal response: %w", err)
	}

	key := r.responseKey(question)
	// a zero ttl keeps the key until it is overwritten or deleted
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to store response in redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.ResponseStore = (*RedisResponseStore)(nil)
