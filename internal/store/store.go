// Package store defines the persistence interface for the investment engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// snapshot cache), and in-memory (for testing and single-node deployments).
//
// Every mutating operation is a transaction scoped to a single account:
// concurrent operations on the same account serialize head-to-tail, while
// operations on distinct accounts proceed fully in parallel. No
// implementation may hold a cross-account lock during a mutation.
package store

import (
	"context"
	"errors"

	"github.com/vesto/invest-engine/internal/model"
)

var (
	// ErrInsufficientFunds is returned when an account's balance cannot
	// cover the option cost. A business rejection, not a fault.
	ErrInsufficientFunds = errors.New("store: insufficient funds")

	// ErrDuplicateCommitment is returned when the account already holds an
	// active commitment for the same option name.
	ErrDuplicateCommitment = errors.New("store: active commitment for this option already exists")

	// ErrCommitmentNotFound is returned by SettleCommitment when no
	// commitment matches the id and owner. Settlement races with other
	// settlers, so callers treat this as a silent no-op.
	ErrCommitmentNotFound = errors.New("store: commitment not found")

	// ErrAccountNotFound is returned by ApplyCommitment when the account
	// has not been created yet.
	ErrAccountNotFound = errors.New("store: account not found")
)

// Store is the account persistence interface.
type Store interface {
	// GetOrCreateAccount returns the account snapshot, creating the account
	// with the configured starting balance on first reference. Idempotent
	// under concurrent callers: exactly one account is created per id.
	GetOrCreateAccount(ctx context.Context, accountID string) (*model.Account, error)

	// ApplyCommitment atomically re-validates and applies a submission:
	// it fails with ErrInsufficientFunds or ErrDuplicateCommitment, or
	// debits the option cost and inserts a new commitment maturing at
	// now + option duration. Returns the updated snapshot on success.
	// The account must already exist (ingress creates it).
	ApplyCommitment(ctx context.Context, accountID string, opt model.Option) (*model.Account, error)

	// SettleCommitment atomically credits the commitment's stored expected
	// return and deletes it. Returns ErrCommitmentNotFound when the id is
	// absent for that owner; the balance is never credited twice.
	SettleCommitment(ctx context.Context, accountID, commitmentID string) (*model.Account, error)

	// ListAccounts returns a snapshot of every account for the maturity
	// scanner. Each account's snapshot is internally consistent; the list
	// as a whole is not a single global transaction.
	ListAccounts(ctx context.Context) ([]model.Account, error)
}
