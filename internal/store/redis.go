package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Live caches per-IMEI volatile state in Redis: the last seen position and
// ignition/speed for /stats, device firmware/model strings learned from
// Codec 12 responses, and daily command counters. A nil *Live is valid and
// turns every operation into a no-op, so the gateway runs without Redis.
type Live struct {
	rdb *redis.Client
}

// NewLive connects to Redis, or returns (nil, nil) when addr is empty.
func NewLive(addr string) (*Live, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Live{rdb: rdb}, nil
}

// LastState is the live snapshot kept per IMEI.
type LastState struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     int     `json:"speed"`
	Ignition  int     `json:"ignition"`
	Timestamp string  `json:"timestamp"`
}

const lastStateTTL = 24 * time.Hour

func (l *Live) SetLastState(ctx context.Context, imei string, st LastState) {
	if l == nil {
		return
	}
	b, err := json.Marshal(st)
	if err != nil {
		return
	}
	_ = l.rdb.Set(ctx, "live:"+imei, b, lastStateTTL).Err()
}

func (l *Live) GetLastState(ctx context.Context, imei string) (*LastState, bool) {
	if l == nil {
		return nil, false
	}
	val, err := l.rdb.Get(ctx, "live:"+imei).Result()
	if err != nil {
		return nil, false
	}
	var st LastState
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return nil, false
	}
	return &st, true
}

func (l *Live) SetString(ctx context.Context, key, value string) {
	if l == nil {
		return
	}
	_ = l.rdb.Set(ctx, key, value, 0).Err()
}

func (l *Live) GetString(ctx context.Context, key string) string {
	if l == nil {
		return ""
	}
	val, err := l.rdb.Get(ctx, key).Result()
	if err != nil {
		return ""
	}
	return val
}

// IncDailyCmdCounter bumps the per-day command counter for an IMEI and
// reports whether the command is still under its daily limit.
func (l *Live) IncDailyCmdCounter(ctx context.Context, imei, cmd string, limit int) (bool, int, error) {
	if l == nil {
		return false, 0, nil
	}
	key := fmt.Sprintf("cmd:%s:%s:%s", imei, cmd, time.Now().UTC().Format("2006-01-02"))
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if n == 1 {
		_ = l.rdb.Expire(ctx, key, 24*time.Hour).Err()
	}
	return int(n) <= limit, int(n), nil
}
