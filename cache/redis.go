package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/yukunliu/ragpipe/embedding"
)

// Redis implements Cache on a Redis server.
type Redis struct {
	rdb *redis.Client
	cfg Config
}

// NewRedis connects to addr (host:port) and verifies the connection.
func NewRedis(ctx context.Context, addr, password string, db int, cfg Config) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}
	return &Redis{rdb: rdb, cfg: cfg.withDefaults()}, nil
}

func (r *Redis) GetExact(ctx context.Context, query string) (string, bool, error) {
	val, err := r.rdb.Get(ctx, exactKey(query)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *Redis) SetExact(ctx context.Context, query, answer string) error {
	return r.rdb.SetEX(ctx, exactKey(query), answer, r.cfg.ExactTTL).Err()
}

// GetSemantic scans semantic entries and returns the first whose
// cached vector is close enough. The scan is capped per call; entries
// beyond the cap are simply not consulted this turn.
func (r *Redis) GetSemantic(ctx context.Context, vec []float32) (string, bool, error) {
	const scanCap = 512

	iter := r.rdb.Scan(ctx, 0, "cache:semantic:*", 64).Iterator()
	seen := 0
	for iter.Next(ctx) && seen < scanCap {
		seen++
		entry, err := r.rdb.HGetAll(ctx, iter.Val()).Result()
		if err != nil || len(entry) == 0 {
			continue
		}
		var cached []float32
		if err := json.Unmarshal([]byte(entry["vector"]), &cached); err != nil {
			continue
		}
		if embedding.Cosine(vec, cached) >= r.cfg.SemanticThreshold {
			return entry["answer"], true, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", false, err
	}
	return "", false, nil
}

func (r *Redis) SetSemantic(ctx context.Context, query string, vec []float32, answer string) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	key := semanticKey(query)
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"query":  query,
		"vector": string(raw),
		"answer": answer,
	})
	pipe.Expire(ctx, key, r.cfg.SemanticTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) History(ctx context.Context, userID, sessionID string) ([]Message, error) {
	raw, err := r.rdb.LRange(ctx, sessionKey(userID, sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r *Redis) PushMessage(ctx context.Context, userID, sessionID string, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := sessionKey(userID, sessionID)
	pipe := r.rdb.Pipeline()
	pipe.RPush(ctx, key, raw)
	pipe.Expire(ctx, key, r.cfg.SessionTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) TrimHistory(ctx context.Context, userID, sessionID string, keepLast int) error {
	if keepLast <= 0 {
		return r.rdb.Del(ctx, sessionKey(userID, sessionID)).Err()
	}
	return r.rdb.LTrim(ctx, sessionKey(userID, sessionID), int64(-keepLast), -1).Err()
}

func (r *Redis) ReplaceHistory(ctx context.Context, userID, sessionID string, msgs []Message) error {
	key := sessionKey(userID, sessionID)

	ttl, err := r.rdb.TTL(ctx, key).Result()
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = r.cfg.SessionTTL
	}

	items := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		raw, err := json.Marshal(m)
		if err != nil {
			return err
		}
		items = append(items, raw)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(items) > 0 {
		pipe.RPush(ctx, key, items...)
		pipe.Expire(ctx, key, ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, lockKey(name), "1", ttl).Result()
}

func (r *Redis) ReleaseLock(ctx context.Context, name string) error {
	return r.rdb.Del(ctx, lockKey(name)).Err()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
