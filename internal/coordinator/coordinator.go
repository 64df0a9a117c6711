// Package coordinator is the single entry point for session-level
// operations: miner registration, share submission, job distribution, and
// pool-wide statistics. It serializes writes to the Store behind an
// exclusive acquisition.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starkpool/coordinator/internal/metrics"
	"github.com/starkpool/coordinator/internal/notify"
	"github.com/starkpool/coordinator/internal/payout"
	"github.com/starkpool/coordinator/internal/poolerr"
	"github.com/starkpool/coordinator/internal/store"
	"github.com/starkpool/coordinator/internal/telemetry"
	"github.com/starkpool/coordinator/internal/util"
	"github.com/starkpool/coordinator/internal/validator"
	"github.com/starkpool/coordinator/internal/verifier"
)

const (
	statsWindow       = 24 * time.Hour
	shareRetention    = 48 * time.Hour
	payoutWindow      = 24 * time.Hour
	blockPayoutReward = 1_000_000
)

// Coordinator owns all Store writes and fans them out to the share
// validator, payout calculator, notifier, and telemetry agent.
type Coordinator struct {
	mu sync.RWMutex

	store     store.Store
	validator *validator.Validator
	payouts   *payout.Calculator
	notifier  *notify.Notifier
	telemetry *telemetry.Agent

	feePercent float64
}

// New constructs a Coordinator. notifier and telem may be nil.
func New(s store.Store, v *validator.Validator, p *payout.Calculator, notifier *notify.Notifier, telem *telemetry.Agent, feePercent float64) *Coordinator {
	return &Coordinator{
		store:      s,
		validator:  v,
		payouts:    p,
		notifier:   notifier,
		telemetry:  telem,
		feePercent: feePercent,
	}
}

// RegisterMiner loads or creates a MinerRecord for address, marks it
// active, and associates workerName.
func (c *Coordinator) RegisterMiner(ctx context.Context, address, workerName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.store.GetMiner(ctx, address)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &store.MinerRecord{
			Address:          address,
			TotalDifficulty:  "0",
			RegistrationTime: time.Now().Unix(),
		}
	}
	rec.WorkerName = workerName
	rec.IsActive = true
	return c.store.PutMiner(ctx, rec)
}

// UnregisterMiner marks the miner owning workerName inactive. Since the
// Store is keyed by address rather than worker name, the caller (the
// Stratum session) passes the address it registered with.
func (c *Coordinator) UnregisterMiner(ctx context.Context, address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.store.GetMiner(ctx, address)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	rec.IsActive = false
	return c.store.PutMiner(ctx, rec)
}

// SubmitShare validates sub, records a ShareRecord on success, updates the
// miner's accounting and reputation, and — if the share is a block — queues
// a payout calculation for the trailing 24-hour window. It returns the
// validation result.
func (c *Coordinator) SubmitShare(ctx context.Context, sub validator.Submission) (*validator.Result, error) {
	start := time.Now()
	result, err := c.validator.Validate(ctx, sub)
	metrics.ShareValidationSeconds.Observe(time.Since(start).Seconds())
	metrics.SharesSubmittedTotal.Inc()

	if err != nil {
		metrics.SharesAcceptedTotal.WithLabelValues("rejected").Inc()
		if c.telemetry != nil {
			c.telemetry.RecordShareSubmission(sub.MinerID, 0, false, false)
		}
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().Unix()

	shareID := uuid.New().String()
	rec := &store.ShareRecord{
		ID:           shareID,
		MinerAddress: sub.MinerID,
		JobID:        sub.JobID,
		Nonce:        sub.Nonce,
		Difficulty:   result.Difficulty,
		Timestamp:    now,
		IsValid:      result.IsValid,
		IsBlock:      result.IsBlock,
		RewardUnits:  result.RewardUnits,
	}
	if err := c.store.PutShare(ctx, rec); err != nil {
		return nil, err
	}

	if err := c.updateMiner(ctx, sub.MinerID, result, now); err != nil {
		return nil, err
	}

	if _, err := c.updateReputation(ctx, sub.MinerID, result, now); err != nil {
		return nil, err
	}

	metrics.SharesAcceptedTotal.WithLabelValues("accepted").Inc()
	if c.telemetry != nil {
		c.telemetry.RecordShareSubmission(sub.MinerID, result.Difficulty, true, result.IsBlock)
	}

	if result.IsBlock {
		metrics.BlocksFoundTotal.Inc()
		if c.notifier != nil {
			c.notifier.NotifyBlockFound(notify.BlockFoundEvent{
				Height:       0,
				MinerAddress: sub.MinerID,
				Difficulty:   result.Difficulty,
			})
		}
		if err := c.queueBlockPayout(ctx, now); err != nil {
			util.Errorf("block payout calculation failed: %v", err)
		}
	}

	return result, nil
}

func (c *Coordinator) updateMiner(ctx context.Context, address string, result *validator.Result, now int64) error {
	rec, err := c.store.GetMiner(ctx, address)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &store.MinerRecord{Address: address, TotalDifficulty: "0", RegistrationTime: now, IsActive: true}
	}
	rec.SharesSubmitted++
	if result.IsValid {
		rec.SharesValid++
		rec.TotalDifficulty = store.AddDifficulty(rec.TotalDifficulty, result.Difficulty)
	}
	rec.LastShareTime = now
	return c.store.PutMiner(ctx, rec)
}

func (c *Coordinator) updateReputation(ctx context.Context, address string, result *validator.Result, now int64) (*store.MinerReputation, error) {
	rep, err := c.store.GetReputation(ctx, address)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		rep = store.NewMinerReputation(address)
	}
	rep.ValidShares++
	if result.IsBlock {
		rep.BlocksFound++
		rep.LastBlockTime = now
	}
	rep.ReputationScore = verifier.UpdateReputationScore(rep.ValidShares, rep.InvalidShares, rep.BlocksFound)
	if err := c.store.PutReputation(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

func (c *Coordinator) queueBlockPayout(ctx context.Context, now int64) error {
	windowStart := now - int64(payoutWindow.Seconds())
	payouts, err := c.payouts.Calculate(ctx, blockPayoutReward, windowStart, now)
	if err != nil {
		return err
	}
	if len(payouts) == 0 {
		return nil
	}
	if err := c.payouts.QueuePayouts(ctx, payouts); err != nil {
		return err
	}

	var total uint64
	for _, p := range payouts {
		total += p.Amount
	}
	if c.notifier != nil {
		c.notifier.NotifyPayoutQueued(notify.PayoutQueuedEvent{TotalAmount: total, MinerCount: len(payouts)})
	}
	if c.telemetry != nil {
		c.telemetry.RecordPayoutQueued(total, len(payouts))
	}
	return nil
}

// NewJob persists j and marks it as the current job.
func (c *Coordinator) NewJob(ctx context.Context, j *store.JobTemplate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.PutJob(ctx, j)
}

// CurrentJob returns the current job, or nil if none has been set.
func (c *Coordinator) CurrentJob(ctx context.Context) (*store.JobTemplate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.GetCurrentJob(ctx)
}

// GetPoolStats computes pool-wide statistics from shares submitted in the
// trailing 24-hour window.
func (c *Coordinator) GetPoolStats(ctx context.Context) (*store.PoolStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now().Unix()
	shares, err := c.store.SharesInWindow(ctx, now-int64(statsWindow.Seconds()), now)
	if err != nil {
		return nil, err
	}

	var totalDiff uint64
	var blocks uint64
	for _, s := range shares {
		if !s.IsValid {
			continue
		}
		totalDiff += s.Difficulty
		if s.IsBlock {
			blocks++
		}
	}

	miners, err := c.store.ListActiveMiners(ctx)
	if err != nil {
		return nil, err
	}

	windowSeconds := statsWindow.Seconds()
	count := float64(len(shares))
	stats := &store.PoolStats{
		TotalHashrate:          float64(totalDiff) / windowSeconds,
		ActiveMiners:           int64(len(miners)),
		SharesPerSecond:        count / windowSeconds,
		AverageShareDifficulty: averageDifficulty(totalDiff, len(shares)),
		BlocksFound24h:         blocks,
		PoolFeePercent:         c.feePercent,
	}

	if err := c.store.PutPoolStats(ctx, stats); err != nil {
		return nil, err
	}
	metrics.ActiveMiners.Set(float64(stats.ActiveMiners))
	metrics.HashrateHPS.Set(stats.TotalHashrate)
	if c.telemetry != nil {
		c.telemetry.UpdatePoolMetrics(stats.TotalHashrate, stats.ActiveMiners)
	}
	return stats, nil
}

// MinerStats returns the combined read-model for address, or nil if the
// miner has no record.
func (c *Coordinator) MinerStats(ctx context.Context, address string) (*store.MinerStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, err := c.store.GetMiner(ctx, address)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, poolerr.Newf(poolerr.MinerNotFound, "miner %s not found", address)
	}

	rep, err := c.store.GetReputation(ctx, address)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		rep = store.NewMinerReputation(address)
	}

	return &store.MinerStats{
		Address:         rec.Address,
		WorkerName:      rec.WorkerName,
		SharesSubmitted: rec.SharesSubmitted,
		SharesValid:     rec.SharesValid,
		LastShareTime:   rec.LastShareTime,
		TotalDifficulty: rec.TotalDifficulty,
		IsActive:        rec.IsActive,
		ValidShares:     rep.ValidShares,
		InvalidShares:   rep.InvalidShares,
		BlocksFound:     rep.BlocksFound,
		ReputationScore: rep.ReputationScore,
	}, nil
}

// RunMaintenance removes share records older than the 48-hour retention
// window. Intended to be called every 5 minutes by the composition root.
func (c *Coordinator) RunMaintenance(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-shareRetention).Unix()
	removed, err := c.store.CleanupShares(ctx, cutoff)
	if err != nil {
		return err
	}
	util.Debugf("maintenance: removed %d stale shares", removed)
	return nil
}

func averageDifficulty(totalDiff uint64, count int) float64 {
	if count == 0 {
		return 0
	}
	return float64(totalDiff) / float64(count)
}
