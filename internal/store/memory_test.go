package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vesto/invest-engine/internal/model"
	"github.com/vesto/invest-engine/internal/store"
)

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func opt(name string, cost, ret int64, seconds int64) model.Option {
	return model.Option{
		Name:            name,
		Cost:            d(cost),
		ExpectedReturn:  d(ret),
		DurationSeconds: seconds,
	}
}

func newStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	return store.NewMemoryStore(d(500))
}

func mustCreate(t *testing.T, s *store.MemoryStore, accountID string) *model.Account {
	t.Helper()
	acct, err := s.GetOrCreateAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("get or create %s: %v", accountID, err)
	}
	return acct
}

func TestGetOrCreateAccount_StartingBalance(t *testing.T) {
	s := newStore(t)

	acct := mustCreate(t, s, "alice")
	if !acct.Balance.Equal(d(500)) {
		t.Errorf("expected starting balance 500, got %s", acct.Balance)
	}
	if len(acct.Commitments) != 0 {
		t.Errorf("expected no commitments, got %d", len(acct.Commitments))
	}
}

func TestGetOrCreateAccount_Idempotent(t *testing.T) {
	s := newStore(t)

	mustCreate(t, s, "alice")
	if _, err := s.ApplyCommitment(context.Background(), "alice", opt("A", 100, 200, 10)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Second call must return the existing account, not reset it.
	acct := mustCreate(t, s, "alice")
	if !acct.Balance.Equal(d(400)) {
		t.Errorf("expected balance 400 after re-read, got %s", acct.Balance)
	}
	if len(acct.Commitments) != 1 {
		t.Errorf("expected 1 commitment after re-read, got %d", len(acct.Commitments))
	}
}

func TestGetOrCreateAccount_ConcurrentCreate(t *testing.T) {
	s := newStore(t)

	const n = 50
	errs := make(chan error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.GetOrCreateAccount(context.Background(), "alice")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("get or create: %v", err)
		}
	}

	accounts, err := s.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected exactly one account, got %d", len(accounts))
	}
	if !accounts[0].Balance.Equal(d(500)) {
		t.Errorf("expected balance 500, got %s", accounts[0].Balance)
	}
}

func TestApplyCommitment_DebitsExactCostOnce(t *testing.T) {
	s := newStore(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	mustCreate(t, s, "alice")
	acct, err := s.ApplyCommitment(context.Background(), "alice", opt("A", 10, 20, 30))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if !acct.Balance.Equal(d(490)) {
		t.Errorf("expected balance 490, got %s", acct.Balance)
	}
	if len(acct.Commitments) != 1 {
		t.Fatalf("expected 1 commitment, got %d", len(acct.Commitments))
	}

	c := acct.Commitments[0]
	if c.ID == "" {
		t.Error("expected non-empty commitment id")
	}
	if c.AccountID != "alice" || c.OptionName != "A" {
		t.Errorf("unexpected ownership: %+v", c)
	}
	if !c.Amount.Equal(d(10)) || !c.ExpectedReturn.Equal(d(20)) {
		t.Errorf("unexpected amounts: %+v", c)
	}
	if want := fixed.Add(30 * time.Second); !c.MaturesAt.Equal(want) {
		t.Errorf("expected maturity %s, got %s", want, c.MaturesAt)
	}
}

func TestApplyCommitment_InsufficientFunds(t *testing.T) {
	s := newStore(t)
	mustCreate(t, s, "alice")

	_, err := s.ApplyCommitment(context.Background(), "alice", opt("Big", 501, 1000, 10))
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// Rejection must leave the account untouched.
	acct := mustCreate(t, s, "alice")
	if !acct.Balance.Equal(d(500)) {
		t.Errorf("expected balance 500 after rejection, got %s", acct.Balance)
	}
	if len(acct.Commitments) != 0 {
		t.Errorf("expected no commitments after rejection, got %d", len(acct.Commitments))
	}
}

func TestApplyCommitment_DuplicateOption(t *testing.T) {
	s := newStore(t)
	mustCreate(t, s, "alice")

	if _, err := s.ApplyCommitment(context.Background(), "alice", opt("A", 10, 20, 10)); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	_, err := s.ApplyCommitment(context.Background(), "alice", opt("A", 10, 20, 10))
	if !errors.Is(err, store.ErrDuplicateCommitment) {
		t.Fatalf("expected ErrDuplicateCommitment, got %v", err)
	}

	// Balance debited exactly once.
	acct := mustCreate(t, s, "alice")
	if !acct.Balance.Equal(d(490)) {
		t.Errorf("expected balance 490, got %s", acct.Balance)
	}
}

func TestApplyCommitment_UnknownAccount(t *testing.T) {
	s := newStore(t)

	_, err := s.ApplyCommitment(context.Background(), "ghost", opt("A", 10, 20, 10))
	if !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestSettleCommitment_CreditsStoredReturn(t *testing.T) {
	s := newStore(t)
	mustCreate(t, s, "alice")

	acct, err := s.ApplyCommitment(context.Background(), "alice", opt("A", 10, 20, 10))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	id := acct.Commitments[0].ID

	settled, err := s.SettleCommitment(context.Background(), "alice", id)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !settled.Balance.Equal(d(510)) {
		t.Errorf("expected balance 510 after settlement, got %s", settled.Balance)
	}
	if len(settled.Commitments) != 0 {
		t.Errorf("expected no commitments after settlement, got %d", len(settled.Commitments))
	}
}

func TestSettleCommitment_SecondCallIsNoOp(t *testing.T) {
	s := newStore(t)
	mustCreate(t, s, "alice")

	acct, err := s.ApplyCommitment(context.Background(), "alice", opt("A", 10, 20, 10))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	id := acct.Commitments[0].ID

	if _, err := s.SettleCommitment(context.Background(), "alice", id); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	_, err = s.SettleCommitment(context.Background(), "alice", id)
	if !errors.Is(err, store.ErrCommitmentNotFound) {
		t.Fatalf("expected ErrCommitmentNotFound on second settle, got %v", err)
	}

	// Credited exactly once.
	final := mustCreate(t, s, "alice")
	if !final.Balance.Equal(d(510)) {
		t.Errorf("expected balance 510, got %s", final.Balance)
	}
}

func TestSettleCommitment_WrongOwner(t *testing.T) {
	s := newStore(t)
	mustCreate(t, s, "alice")
	mustCreate(t, s, "bob")

	acct, err := s.ApplyCommitment(context.Background(), "alice", opt("A", 10, 20, 10))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	_, err = s.SettleCommitment(context.Background(), "bob", acct.Commitments[0].ID)
	if !errors.Is(err, store.ErrCommitmentNotFound) {
		t.Fatalf("expected ErrCommitmentNotFound for wrong owner, got %v", err)
	}
}

func TestConcurrentSameOption_ExactlyOneSucceeds(t *testing.T) {
	s := newStore(t)
	mustCreate(t, s, "alice")

	const n = 20
	results := make(chan error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ApplyCommitment(context.Background(), "alice", opt("A", 10, 20, 10))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, duplicates int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, store.ErrDuplicateCommitment):
			duplicates++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != 1 || duplicates != n-1 {
		t.Errorf("expected 1 success and %d duplicates, got %d and %d", n-1, successes, duplicates)
	}

	acct := mustCreate(t, s, "alice")
	if !acct.Balance.Equal(d(490)) {
		t.Errorf("expected balance debited exactly once (490), got %s", acct.Balance)
	}
}

func TestConcurrentDistinctOptions_FundsBound(t *testing.T) {
	s := store.NewMemoryStore(d(250))
	_, err := s.GetOrCreateAccount(context.Background(), "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Funds cover exactly 2 of the 5 distinct options.
	const n = 5
	results := make(chan error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("option-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ApplyCommitment(context.Background(), "alice", opt(name, 100, 150, 10))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, rejections int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, store.ErrInsufficientFunds):
			rejections++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != 2 || rejections != 3 {
		t.Errorf("expected 2 successes and 3 rejections, got %d and %d", successes, rejections)
	}

	acct, _ := s.GetOrCreateAccount(context.Background(), "alice")
	if !acct.Balance.Equal(d(50)) {
		t.Errorf("expected final balance 50, got %s", acct.Balance)
	}
	if acct.Balance.IsNegative() {
		t.Error("balance must never go negative")
	}
}

func TestConcurrentSettle_CreditsOnce(t *testing.T) {
	s := newStore(t)
	mustCreate(t, s, "alice")

	acct, err := s.ApplyCommitment(context.Background(), "alice", opt("A", 10, 20, 10))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	id := acct.Commitments[0].ID

	const n = 10
	results := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SettleCommitment(context.Background(), "alice", id)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, store.ErrCommitmentNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("expected exactly one settlement to win, got %d", successes)
	}

	final := mustCreate(t, s, "alice")
	if !final.Balance.Equal(d(510)) {
		t.Errorf("expected balance 510, got %s", final.Balance)
	}
}

func TestListAccounts_SnapshotIsolation(t *testing.T) {
	s := newStore(t)
	mustCreate(t, s, "alice")
	mustCreate(t, s, "bob")

	if _, err := s.ApplyCommitment(context.Background(), "alice", opt("A", 10, 20, 10)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	accounts, err := s.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}

	// Mutating the snapshot must not touch the store.
	for i := range accounts {
		accounts[i].Balance = d(0)
		accounts[i].Commitments = nil
	}
	acct := mustCreate(t, s, "alice")
	if !acct.Balance.Equal(d(490)) || len(acct.Commitments) != 1 {
		t.Error("snapshot mutation leaked into store state")
	}
}
