package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
	ErrRoundActive           = errors.New("a round is already active")
	ErrNoActiveRound         = errors.New("no active round")
	ErrZeroCommitment        = errors.New("commitment hash must be non-zero")
	ErrZeroDeposit           = errors.New("deposit must be positive")
	ErrCapacityFull          = errors.New("round commitment capacity reached")
	ErrAlreadyCommitted      = errors.New("participant already committed this round")
	ErrNotAllowed            = errors.New("identity not in allowlist")
	ErrCommitmentNotPending  = errors.New("commitment is not pending")
	ErrAlreadySettled        = errors.New("round already settled")
	ErrNotSettled            = errors.New("round not settled")
	ErrAlreadyFinalized      = errors.New("round already finalized")
	ErrAlreadyClaimed        = errors.New("claimable already claimed")
	ErrNothingToClaim        = errors.New("nothing to claim")
	ErrUnauthorizedSolver    = errors.New("solver not authorized in current window")
	ErrSolverNotRegistered   = errors.New("solver not registered")
	ErrInsufficientLiquidity = errors.New("insufficient solver liquidity")
	ErrProofRejected         = errors.New("proof verification failed")
	ErrEmergencyActive       = errors.New("round is in emergency mode")
	ErrEmergencyNotReady     = errors.New("emergency timeout has not elapsed")
	ErrBondNotReleasable     = errors.New("start bond not releasable")
	ErrForceUnpauseTooEarly  = errors.New("max pause duration has not elapsed")
	ErrNotPaused             = errors.New("no gate is paused")
	ErrRateLimited           = errors.New("rate limited")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrLockHeld              = errors.New("lock already held")
)

// WrongPhaseError reports an operation attempted outside its lifecycle phase.
type WrongPhaseError struct {
	Expected Phase
	Actual   Phase
}

func (e *WrongPhaseError) Error() string {
	return fmt.Sprintf("wrong phase: expected %s, got %s", e.Expected, e.Actual)
}

// HashMismatchError reports a reveal whose fields do not hash to the stored
// commitment.
type HashMismatchError struct {
	Expected common.Hash
	Actual   common.Hash
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("commitment hash mismatch: expected %s, got %s", e.Expected.Hex(), e.Actual.Hex())
}

// ClaimMismatchError reports a public claim that disagrees with locally
// tracked state. Field names the claim slot that failed.
type ClaimMismatchError struct {
	Field    string
	Expected *big.Int
	Actual   *big.Int
}

func (e *ClaimMismatchError) Error() string {
	return fmt.Sprintf("public claim mismatch on %s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

// ClaimsLengthError reports a claims vector of the wrong size.
type ClaimsLengthError struct {
	Expected int
	Actual   int
}

func (e *ClaimsLengthError) Error() string {
	return fmt.Sprintf("claims vector length: expected %d, got %d", e.Expected, e.Actual)
}

// PausedError reports an operation blocked by a pause gate.
type PausedError struct {
	Gate PauseGate
}

func (e *PausedError) Error() string {
	return fmt.Sprintf("operation paused: gate %s", e.Gate)
}
