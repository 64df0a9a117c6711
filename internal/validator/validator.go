// Package validator orchestrates the share-submission hot path: duplicate
// detection, job lookup, computation-proof verification or block-path
// target comparison, and reward-unit assignment.
package validator

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/starkpool/coordinator/internal/poolerr"
	"github.com/starkpool/coordinator/internal/store"
	"github.com/starkpool/coordinator/internal/verifier"
)

// SubmissionKind distinguishes the two share variants a miner may submit.
type SubmissionKind int

const (
	ComputationProof SubmissionKind = iota
	ValidBlock
)

// Submission is a miner's share submission, tagged by Kind.
type Submission struct {
	JobID      string
	MinerID    string
	Kind       SubmissionKind
	Nonce      uint64
	// ComputationProof fields
	WitnessCommitment [32]byte
	ComputationSteps  uint64
	// ValidBlock fields
	Proof []byte
}

// Result is the outcome of a successful validation.
type Result struct {
	IsValid     bool
	Difficulty  uint64
	IsBlock     bool
	RewardUnits uint64
}

// recentKey identifies a share by the tuple the spec mandates duplicate
// detection on: (jobId, minerId, nonce).
type recentKey struct {
	jobID   string
	minerID string
	nonce   uint64
}

// Validator holds the bounded in-memory recent-submission set used as a
// fast duplicate pre-check ahead of the authoritative Store-backed check;
// the Store is always consulted as well (see Design Notes: the reference
// source's in-memory stub must not be relied on alone).
type Validator struct {
	store  store.Store
	oracle verifier.WitnessOracle

	mu     sync.Mutex
	recent map[recentKey]struct{}
	order  []recentKey
	cap    int
}

// New constructs a Validator backed by s, using oracle for witness
// recomputation. If oracle is nil, verifier.DefaultOracle is used.
func New(s store.Store, oracle verifier.WitnessOracle) *Validator {
	if oracle == nil {
		oracle = verifier.DefaultOracle{}
	}
	return &Validator{
		store:  s,
		oracle: oracle,
		recent: make(map[recentKey]struct{}),
		cap:    4096,
	}
}

// Validate runs the full submission procedure and returns a Result, or a
// poolerr-kinded error.
func (v *Validator) Validate(ctx context.Context, sub Submission) (*Result, error) {
	key := recentKey{jobID: sub.JobID, minerID: sub.MinerID, nonce: sub.Nonce}

	// Fast in-process pre-check avoids a Store round-trip for the common
	// case of an immediate client retry; the Store-backed check below is
	// the authoritative one, since the in-memory set does not survive a
	// restart or coordinate across processes.
	if v.isDuplicate(key) {
		return nil, poolerr.New(poolerr.DuplicateShare, "duplicate share")
	}
	seen, err := v.store.MarkSubmissionSeen(ctx, sub.JobID, sub.MinerID, sub.Nonce)
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, poolerr.New(poolerr.DuplicateShare, "duplicate share")
	}

	job, err := v.store.GetJob(ctx, sub.JobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, poolerr.Newf(poolerr.JobNotFound, "job not found: %s", sub.JobID)
	}

	var result *Result
	switch sub.Kind {
	case ComputationProof:
		result, err = v.validateComputationProof(sub, job)
	case ValidBlock:
		result, err = v.validateBlock(sub, job)
	default:
		return nil, poolerr.New(poolerr.ShareValidation, "unknown submission kind")
	}
	if err != nil {
		return nil, err
	}

	v.remember(key)
	return result, nil
}

func (v *Validator) validateComputationProof(sub Submission, job *store.JobTemplate) (*Result, error) {
	proof := &verifier.Proof{
		NonceLo:            sub.Nonce,
		NonceHi:            sub.Nonce + 1,
		IntermediateHashes: [][32]byte{sub.WitnessCommitment},
	}

	ok, err := verifier.Verify(v.oracle, proof, job.BlockCommitment, verifier.SpotCheckCount)
	if err != nil {
		return nil, poolerr.Wrap(poolerr.InvalidProof, "verify computation proof", err)
	}
	if !ok {
		return nil, poolerr.New(poolerr.InvalidProof, "computation proof failed spot check")
	}

	difficulty := verifier.ShareDifficulty(sub.WitnessCommitment)
	return &Result{
		IsValid:     true,
		Difficulty:  difficulty,
		IsBlock:     false,
		RewardUnits: difficulty * sub.ComputationSteps,
	}, nil
}

func (v *Validator) validateBlock(sub Submission, job *store.JobTemplate) (*Result, error) {
	hash := sha256.Sum256(sub.Proof)
	if !verifier.MeetsTarget(hash[:], job.Target) {
		return nil, poolerr.New(poolerr.InsufficientDifficulty, "block hash exceeds target")
	}

	difficulty := verifier.BlockDifficulty(job.Target)
	return &Result{
		IsValid:     true,
		Difficulty:  difficulty,
		IsBlock:     true,
		RewardUnits: verifier.BlockRewardUnits,
	}, nil
}

func (v *Validator) isDuplicate(key recentKey) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.recent[key]
	return ok
}

func (v *Validator) remember(key recentKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.recent[key]; ok {
		return
	}
	v.recent[key] = struct{}{}
	v.order = append(v.order, key)
	if len(v.order) > v.cap {
		oldest := v.order[0]
		v.order = v.order[1:]
		delete(v.recent, oldest)
	}
}

// Now returns the current unix timestamp in seconds. It is a var and can be
// replaced, but Validate does not call it.
var Now = func() int64 { return time.Now().Unix() }
