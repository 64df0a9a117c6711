package store

import "context"

// Store is the durable key/value + sorted-set interface consumed by the
// Coordinator. Any I/O failure surfaces wrapped in a poolerr.Database error;
// Store is the only component permitted to produce that kind.
type Store interface {
	// GetMiner returns nil, nil if no record exists for address.
	GetMiner(ctx context.Context, address string) (*MinerRecord, error)
	// PutMiner persists r and adds it to the miners:active set.
	PutMiner(ctx context.Context, r *MinerRecord) error
	// ListActiveMiners returns every address in the miners:active set.
	ListActiveMiners(ctx context.Context) ([]string, error)

	// MarkSubmissionSeen atomically records the (jobID, minerID, nonce)
	// tuple and reports whether it had already been seen. This is the
	// authoritative duplicate-detection index named in the design notes
	// — unlike an in-memory-only check, it survives across coordinator
	// processes sharing the same Store.
	MarkSubmissionSeen(ctx context.Context, jobID, minerID string, nonce uint64) (alreadySeen bool, err error)

	// PutShare fails with a poolerr.DuplicateShare error if a share with
	// the same ID already exists. On success it indexes the share into
	// the per-miner and global (shares:window) sorted sets by timestamp,
	// and sets a 24-hour TTL on the record.
	PutShare(ctx context.Context, r *ShareRecord) error
	// SharesInWindow range-scans shares:window for [start, end] and
	// returns the full records.
	SharesInWindow(ctx context.Context, start, end int64) ([]*ShareRecord, error)
	// CleanupShares removes entries from shares:window with a score
	// (timestamp) at or before cutoff.
	CleanupShares(ctx context.Context, cutoff int64) (int64, error)

	// PutJob persists j, sets it as the current job, and TTLs it at 1h.
	PutJob(ctx context.Context, j *JobTemplate) error
	GetJob(ctx context.Context, id string) (*JobTemplate, error)
	GetCurrentJob(ctx context.Context) (*JobTemplate, error)

	GetReputation(ctx context.Context, address string) (*MinerReputation, error)
	PutReputation(ctx context.Context, r *MinerReputation) error

	PutPoolStats(ctx context.Context, s *PoolStats) error
	GetPoolStats(ctx context.Context) (*PoolStats, error)

	// PutPendingPayout queues a payout for the external broadcaster.
	PutPendingPayout(ctx context.Context, p *PendingPayout) error
	// ListPendingPayouts returns queued payouts not yet broadcast.
	ListPendingPayouts(ctx context.Context) ([]*PendingPayout, error)

	Close() error
}
