package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vesto/invest-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
//
// Locking is two-level: a read-write mutex guards the account map, and each
// account carries its own mutex so that transactions on distinct accounts
// never contend.
type MemoryStore struct {
	mu              sync.RWMutex
	accounts        map[string]*memAccount
	startingBalance decimal.Decimal
	now             func() time.Time
}

// memAccount is the mutable state of one account. acctMu serializes all
// transactions against it.
type memAccount struct {
	acctMu      sync.Mutex
	balance     decimal.Decimal
	commitments map[string]model.Commitment // keyed by commitment id
}

// NewMemoryStore creates an in-memory store. New accounts start with
// startingBalance.
func NewMemoryStore(startingBalance decimal.Decimal) *MemoryStore {
	return &MemoryStore{
		accounts:        make(map[string]*memAccount),
		startingBalance: startingBalance,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store's time source. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.now = now
}

// getOrCreate returns the live account state, creating it under the map
// write lock so that racing callers observe exactly one account.
func (s *MemoryStore) getOrCreate(accountID string) *memAccount {
	s.mu.RLock()
	a, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if ok {
		return a
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[accountID]; ok {
		return a
	}
	a = &memAccount{
		balance:     s.startingBalance,
		commitments: make(map[string]model.Commitment),
	}
	s.accounts[accountID] = a
	return a
}

func (s *MemoryStore) get(accountID string) (*memAccount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountID]
	return a, ok
}

// snapshot copies the account state. Caller must hold a.acctMu.
func (a *memAccount) snapshot(accountID string) *model.Account {
	commitments := make([]model.Commitment, 0, len(a.commitments))
	for _, c := range a.commitments {
		commitments = append(commitments, c)
	}
	sort.Slice(commitments, func(i, j int) bool {
		return commitments[i].MaturesAt.Before(commitments[j].MaturesAt)
	})
	return &model.Account{
		ID:          accountID,
		Balance:     a.balance,
		Commitments: commitments,
	}
}

func (s *MemoryStore) GetOrCreateAccount(_ context.Context, accountID string) (*model.Account, error) {
	a := s.getOrCreate(accountID)
	a.acctMu.Lock()
	defer a.acctMu.Unlock()
	return a.snapshot(accountID), nil
}

func (s *MemoryStore) ApplyCommitment(_ context.Context, accountID string, opt model.Option) (*model.Account, error) {
	a, ok := s.get(accountID)
	if !ok {
		return nil, ErrAccountNotFound
	}

	a.acctMu.Lock()
	defer a.acctMu.Unlock()

	if a.balance.LessThan(opt.Cost) {
		return nil, ErrInsufficientFunds
	}
	for _, c := range a.commitments {
		if c.OptionName == opt.Name {
			return nil, ErrDuplicateCommitment
		}
	}

	c := model.Commitment{
		ID:             uuid.New().String(),
		AccountID:      accountID,
		OptionName:     opt.Name,
		Amount:         opt.Cost,
		ExpectedReturn: opt.ExpectedReturn,
		MaturesAt:      s.now().Add(opt.Duration()),
	}
	a.balance = a.balance.Sub(opt.Cost)
	a.commitments[c.ID] = c

	return a.snapshot(accountID), nil
}

func (s *MemoryStore) SettleCommitment(_ context.Context, accountID, commitmentID string) (*model.Account, error) {
	a, ok := s.get(accountID)
	if !ok {
		return nil, ErrCommitmentNotFound
	}

	a.acctMu.Lock()
	defer a.acctMu.Unlock()

	c, ok := a.commitments[commitmentID]
	if !ok {
		return nil, ErrCommitmentNotFound
	}

	a.balance = a.balance.Add(c.ExpectedReturn)
	delete(a.commitments, commitmentID)

	return a.snapshot(accountID), nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.accounts))
	live := make([]*memAccount, 0, len(s.accounts))
	for id, a := range s.accounts {
		ids = append(ids, id)
		live = append(live, a)
	}
	s.mu.RUnlock()

	// Snapshot each account under its own lock; the list is not a single
	// global transaction, but each element is internally consistent.
	accounts := make([]model.Account, 0, len(live))
	for i, a := range live {
		a.acctMu.Lock()
		accounts = append(accounts, *a.snapshot(ids[i]))
		a.acctMu.Unlock()
	}
	return accounts, nil
}

var _ Store = (*MemoryStore)(nil)
