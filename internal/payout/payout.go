// Package payout derives per-miner payout amounts from a block reward and a
// time-windowed share ledger (PPLNS-style).
package payout

import (
	"context"
	"math/big"

	"github.com/starkpool/coordinator/internal/store"
)

// Calculator computes PendingPayouts. FeePercent is fixed for the
// calculator's lifetime.
type Calculator struct {
	store     store.Store
	feePercent float64
}

// New constructs a Calculator with a fixed pool fee percentage.
func New(s store.Store, feePercent float64) *Calculator {
	return &Calculator{store: s, feePercent: feePercent}
}

// Calculate pulls valid shares in [windowStart, windowEnd], aggregates
// rewardUnits per miner, and distributes blockReward proportionally after
// deducting the pool fee. Rounding is floor on integer arithmetic; any
// dust is retained by the pool. Miners whose computed amount rounds to
// zero are skipped.
func (c *Calculator) Calculate(ctx context.Context, blockReward uint64, windowStart, windowEnd int64) ([]*store.PendingPayout, error) {
	shares, err := c.store.SharesInWindow(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	totalUnits := new(big.Int)
	minerUnits := make(map[string]*big.Int)
	minerShares := make(map[string]uint64)

	for _, s := range shares {
		if !s.IsValid {
			continue
		}
		units := new(big.Int).SetUint64(s.RewardUnits)
		totalUnits.Add(totalUnits, units)
		if minerUnits[s.MinerAddress] == nil {
			minerUnits[s.MinerAddress] = new(big.Int)
		}
		minerUnits[s.MinerAddress].Add(minerUnits[s.MinerAddress], units)
		minerShares[s.MinerAddress]++
	}

	if totalUnits.Sign() == 0 {
		return nil, nil
	}

	poolFee := uint64(float64(blockReward) * c.feePercent / 100.0)
	distributable := new(big.Int).SetUint64(blockReward - poolFee)

	var payouts []*store.PendingPayout
	for addr, units := range minerUnits {
		amount := new(big.Int).Mul(distributable, units)
		amount.Div(amount, totalUnits)
		if amount.Sign() == 0 {
			continue
		}
		payouts = append(payouts, &store.PendingPayout{
			MinerAddress: addr,
			Amount:       amount.Uint64(),
			WindowStart:  windowStart,
			WindowEnd:    windowEnd,
			ShareCount:   minerShares[addr],
		})
	}

	return payouts, nil
}

// QueuePayouts persists payouts for consumption by an external payout
// broadcaster. Unlike the reference implementation's stubbed queue (a
// log-only no-op), this writes each payout into the Store so it survives
// the coordinator restarting before a broadcaster drains it.
func (c *Calculator) QueuePayouts(ctx context.Context, payouts []*store.PendingPayout) error {
	for _, p := range payouts {
		if err := c.store.PutPendingPayout(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
