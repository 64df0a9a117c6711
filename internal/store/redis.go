package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/starkpool/coordinator/internal/poolerr"
)

const (
	keyPrefix         = "pool:"
	keyMinersActive   = keyPrefix + "miners:active"
	keySharesWindow   = keyPrefix + "shares:window"
	keyJobCurrent     = keyPrefix + "job:current"
	keyPayoutsPending = keyPrefix + "payouts:pending"

	shareTTL = 24 * time.Hour
	jobTTL   = time.Hour
)

func keyMiner(address string) string          { return keyPrefix + "miner:" + address }
func keyShare(id string) string                { return keyPrefix + "share:" + id }
func keyMinerShares(address string) string     { return keyPrefix + "miner:" + address + ":shares" }
func keyJob(id string) string                  { return keyPrefix + "job:" + id }
func keyReputation(address string) string      { return keyPrefix + "reputation:" + address }
func keyPoolStats() string                     { return keyPrefix + "stats" }

// RedisStore implements Store over a Redis-compatible key/value system with
// sorted sets, following the reference substrate named in §6: ZADD /
// ZRANGEBYSCORE / ZREMRANGEBYSCORE for time-windowed indexes, SET EX for
// TTL, and SADD/SMEMBERS for the active-miner set.
//
// Per the concurrency model's "shared Store behind a read/write mutex"
// note, all write operations acquire mu for exclusive access; reads may
// proceed concurrently. go-redis's client is independently safe for
// concurrent use, so this mutex exists to make the single-writer invariant
// explicit and enforceable at the Go level, not to protect the client
// itself.
type RedisStore struct {
	mu     sync.RWMutex
	client *redis.Client
}

// NewRedisStore dials addr and returns a Store backed by it.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, poolerr.Wrap(poolerr.Database, "redis ping failed", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) GetMiner(ctx context.Context, address string) (*MinerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := s.client.Get(ctx, keyMiner(address)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, poolerr.Wrap(poolerr.Database, "get miner", err)
	}
	var r MinerRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, poolerr.Wrap(poolerr.Serialization, "decode miner", err)
	}
	return &r, nil
}

func (s *RedisStore) PutMiner(ctx context.Context, r *MinerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(r)
	if err != nil {
		return poolerr.Wrap(poolerr.Serialization, "encode miner", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyMiner(r.Address), raw, 0)
	pipe.SAdd(ctx, keyMinersActive, r.Address)
	if _, err := pipe.Exec(ctx); err != nil {
		return poolerr.Wrap(poolerr.Database, "put miner", err)
	}
	return nil
}

func (s *RedisStore) ListActiveMiners(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addrs, err := s.client.SMembers(ctx, keyMinersActive).Result()
	if err != nil {
		return nil, poolerr.Wrap(poolerr.Database, "list active miners", err)
	}
	return addrs, nil
}

func keySubmission(jobID, minerID string, nonce uint64) string {
	return fmt.Sprintf("%ssubmission:%s:%s:%d", keyPrefix, jobID, minerID, nonce)
}

func (s *RedisStore) MarkSubmissionSeen(ctx context.Context, jobID, minerID string, nonce uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.client.SetNX(ctx, keySubmission(jobID, minerID, nonce), 1, jobTTL).Result()
	if err != nil {
		return false, poolerr.Wrap(poolerr.Database, "mark submission seen", err)
	}
	// SetNX returns true when the key was newly set, i.e. NOT previously seen.
	return !ok, nil
}

func (s *RedisStore) PutShare(ctx context.Context, r *ShareRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.client.Exists(ctx, keyShare(r.ID)).Result()
	if err != nil {
		return poolerr.Wrap(poolerr.Database, "check duplicate share", err)
	}
	if exists > 0 {
		return poolerr.New(poolerr.DuplicateShare, "duplicate share")
	}

	raw, err := json.Marshal(r)
	if err != nil {
		return poolerr.Wrap(poolerr.Serialization, "encode share", err)
	}

	score := float64(r.Timestamp)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyShare(r.ID), raw, shareTTL)
	pipe.ZAdd(ctx, keyMinerShares(r.MinerAddress), &redis.Z{Score: score, Member: r.ID})
	pipe.Expire(ctx, keyMinerShares(r.MinerAddress), shareTTL)
	pipe.ZAdd(ctx, keySharesWindow, &redis.Z{Score: score, Member: r.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return poolerr.Wrap(poolerr.Database, "put share", err)
	}
	return nil
}

func (s *RedisStore) SharesInWindow(ctx context.Context, start, end int64) ([]*ShareRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.client.ZRangeByScore(ctx, keySharesWindow, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", start),
		Max: fmt.Sprintf("%d", end),
	}).Result()
	if err != nil {
		return nil, poolerr.Wrap(poolerr.Database, "range shares window", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyShare(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, poolerr.Wrap(poolerr.Database, "fetch shares", err)
	}

	out := make([]*ShareRecord, 0, len(vals))
	for _, v := range vals {
		if v == nil {
			continue // expired between index scan and fetch
		}
		str, ok := v.(string)
		if !ok {
			continue
		}
		var r ShareRecord
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			return nil, poolerr.Wrap(poolerr.Serialization, "decode share", err)
		}
		out = append(out, &r)
	}
	return out, nil
}

func (s *RedisStore) CleanupShares(ctx context.Context, cutoff int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.client.ZRemRangeByScore(ctx, keySharesWindow, "-inf", fmt.Sprintf("%d", cutoff)).Result()
	if err != nil {
		return 0, poolerr.Wrap(poolerr.Database, "cleanup shares", err)
	}
	return n, nil
}

func (s *RedisStore) PutJob(ctx context.Context, j *JobTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(j)
	if err != nil {
		return poolerr.Wrap(poolerr.Serialization, "encode job", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyJob(j.ID), raw, jobTTL)
	pipe.Set(ctx, keyJobCurrent, j.ID, jobTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return poolerr.Wrap(poolerr.Database, "put job", err)
	}
	return nil
}

func (s *RedisStore) GetJob(ctx context.Context, id string) (*JobTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getJobLocked(ctx, id)
}

func (s *RedisStore) getJobLocked(ctx context.Context, id string) (*JobTemplate, error) {
	raw, err := s.client.Get(ctx, keyJob(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, poolerr.Wrap(poolerr.Database, "get job", err)
	}
	var j JobTemplate
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, poolerr.Wrap(poolerr.Serialization, "decode job", err)
	}
	return &j, nil
}

func (s *RedisStore) GetCurrentJob(ctx context.Context) (*JobTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, err := s.client.Get(ctx, keyJobCurrent).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, poolerr.Wrap(poolerr.Database, "get current job pointer", err)
	}
	return s.getJobLocked(ctx, id)
}

func (s *RedisStore) GetReputation(ctx context.Context, address string) (*MinerReputation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := s.client.Get(ctx, keyReputation(address)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, poolerr.Wrap(poolerr.Database, "get reputation", err)
	}
	var r MinerReputation
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, poolerr.Wrap(poolerr.Serialization, "decode reputation", err)
	}
	return &r, nil
}

func (s *RedisStore) PutReputation(ctx context.Context, r *MinerReputation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(r)
	if err != nil {
		return poolerr.Wrap(poolerr.Serialization, "encode reputation", err)
	}
	if err := s.client.Set(ctx, keyReputation(r.Address), raw, 0).Err(); err != nil {
		return poolerr.Wrap(poolerr.Database, "put reputation", err)
	}
	return nil
}

func (s *RedisStore) PutPoolStats(ctx context.Context, st *PoolStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(st)
	if err != nil {
		return poolerr.Wrap(poolerr.Serialization, "encode pool stats", err)
	}
	if err := s.client.Set(ctx, keyPoolStats(), raw, 0).Err(); err != nil {
		return poolerr.Wrap(poolerr.Database, "put pool stats", err)
	}
	return nil
}

func (s *RedisStore) GetPoolStats(ctx context.Context) (*PoolStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := s.client.Get(ctx, keyPoolStats()).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, poolerr.Wrap(poolerr.Database, "get pool stats", err)
	}
	var st PoolStats
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, poolerr.Wrap(poolerr.Serialization, "decode pool stats", err)
	}
	return &st, nil
}

func (s *RedisStore) PutPendingPayout(ctx context.Context, p *PendingPayout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(p)
	if err != nil {
		return poolerr.Wrap(poolerr.Serialization, "encode pending payout", err)
	}
	if err := s.client.RPush(ctx, keyPayoutsPending, raw).Err(); err != nil {
		return poolerr.Wrap(poolerr.Database, "put pending payout", err)
	}
	return nil
}

func (s *RedisStore) ListPendingPayouts(ctx context.Context) ([]*PendingPayout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raws, err := s.client.LRange(ctx, keyPayoutsPending, 0, -1).Result()
	if err != nil {
		return nil, poolerr.Wrap(poolerr.Database, "list pending payouts", err)
	}
	out := make([]*PendingPayout, 0, len(raws))
	for _, raw := range raws {
		var p PendingPayout
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, poolerr.Wrap(poolerr.Serialization, "decode pending payout", err)
		}
		out = append(out, &p)
	}
	return out, nil
}

// AddDifficulty accumulates delta onto the decimal big.Int string stored in
// TotalDifficulty, since a miner's lifetime sum can exceed 64 bits.
func AddDifficulty(current string, delta uint64) string {
	total := new(big.Int)
	if current != "" {
		total.SetString(current, 10)
	}
	total.Add(total, new(big.Int).SetUint64(delta))
	return total.String()
}
