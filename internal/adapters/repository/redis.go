package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/okian/aggregator/internal/domain/dedupe"
	"github.com/okian/aggregator/internal/domain/model"
	"github.com/okian/aggregator/pkg/logger"
)

// addIfNewScript gates on HSETNX and only indexes the record when it won.
// KEYS: records hash, order zset, topics set.
// ARGV: event id, encoded record, order member, topic.
var addIfNewScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 1 then
	redis.call('ZADD', KEYS[2], 0, ARGV[3])
	redis.call('SADD', KEYS[3], ARGV[4])
	return 1
end
return 0
`)

// orderSep joins timestamp and event id in order members. Members all share
// score 0, so ZRANGE returns them lexically: by timestamp, then event id.
const orderSep = "\x00"

// RedisStore keeps one hash of records and one lexically ordered index per topic.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger logger.Logger
}

var _ dedupe.Store = (*RedisStore)(nil)

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts ...Option) (*RedisStore, error) {
	o := newOptions(opts)

	client := redis.NewClient(&redis.Options{
		Addr:     o.redisAddr,
		Password: o.redisPassword,
		DB:       o.redisDB,
		PoolSize: o.maxOpenConns,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping redis: %w", dedupe.ErrStore, err)
	}

	o.logger.Info(ctx, "redis store opened",
		logger.String("addr", o.redisAddr),
		logger.Int("db", o.redisDB),
		logger.String("prefix", o.redisPrefix),
	)
	return &RedisStore{client: client, prefix: o.redisPrefix, logger: o.logger}, nil
}

func (s *RedisStore) recordsKey(topic string) string { return s.prefix + ":records:" + topic }
func (s *RedisStore) orderKey(topic string) string   { return s.prefix + ":order:" + topic }
func (s *RedisStore) topicsKey() string              { return s.prefix + ":topics" }

func (s *RedisStore) Exists(ctx context.Context, topic, eventID string) (bool, error) {
	ok, err := s.client.HExists(ctx, s.recordsKey(topic), eventID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: exists: %w", dedupe.ErrStore, err)
	}
	return ok, nil
}

func (s *RedisStore) AddIfNew(ctx context.Context, rec model.Record) (bool, error) {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("%w: encode record: %w", dedupe.ErrStore, err)
	}

	keys := []string{s.recordsKey(rec.Topic), s.orderKey(rec.Topic), s.topicsKey()}
	added, err := addIfNewScript.Run(ctx, s.client, keys,
		rec.EventID, encoded, rec.Timestamp+orderSep+rec.EventID, rec.Topic,
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: insert: %w", dedupe.ErrStore, err)
	}
	return added == 1, nil
}

func (s *RedisStore) ListByTopic(ctx context.Context, topic string) ([]model.Record, error) {
	if topic != "" {
		return s.listTopic(ctx, topic)
	}

	topics, err := s.Topics(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Record
	for _, t := range topics {
		recs, err := s.listTopic(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (s *RedisStore) listTopic(ctx context.Context, topic string) ([]model.Record, error) {
	members, err := s.client.ZRange(ctx, s.orderKey(topic), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list order: %w", dedupe.ErrStore, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]string, len(members))
	for i, m := range members {
		_, id, ok := strings.Cut(m, orderSep)
		if !ok {
			return nil, fmt.Errorf("%w: %w: order member %q", dedupe.ErrStore, ErrCorruptRecord, m)
		}
		ids[i] = id
	}

	values, err := s.client.HMGet(ctx, s.recordsKey(topic), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %w", dedupe.ErrStore, err)
	}

	out := make([]model.Record, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %w: missing record %s/%s", dedupe.ErrStore, ErrCorruptRecord, topic, ids[i])
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%w: %w: %w", dedupe.ErrStore, ErrCorruptRecord, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	topics, err := s.Topics(ctx)
	if err != nil {
		return 0, err
	}

	pipe := s.client.Pipeline()
	lens := make([]*redis.IntCmd, len(topics))
	for i, t := range topics {
		lens[i] = pipe.HLen(ctx, s.recordsKey(t))
	}
	if len(topics) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("%w: count: %w", dedupe.ErrStore, err)
		}
	}

	total := 0
	for _, l := range lens {
		total += int(l.Val())
	}
	return total, nil
}

func (s *RedisStore) Topics(ctx context.Context) ([]string, error) {
	topics, err := s.client.SMembers(ctx, s.topicsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: topics: %w", dedupe.ErrStore, err)
	}
	sort.Strings(topics)
	return topics, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
