package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vesto/invest-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache of account snapshots. Mutations go to the primary and re-cache the
// snapshot the primary returns; reads check Redis first then fall back.
// The maturity scanner always reads the primary: settlement decisions are
// never made from cached data.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (mutate primary, refresh cache) ---

func (s *CachedStore) ApplyCommitment(ctx context.Context, accountID string, opt model.Option) (*model.Account, error) {
	acct, err := s.primary.ApplyCommitment(ctx, accountID, opt)
	if err != nil {
		return nil, err
	}
	s.cacheAccount(ctx, acct)
	return acct, nil
}

func (s *CachedStore) SettleCommitment(ctx context.Context, accountID, commitmentID string) (*model.Account, error) {
	acct, err := s.primary.SettleCommitment(ctx, accountID, commitmentID)
	if err != nil {
		// A NotFound race still means our cached snapshot may be stale.
		if errors.Is(err, ErrCommitmentNotFound) {
			s.rdb.Del(ctx, accountKey(accountID))
		}
		return nil, err
	}
	s.cacheAccount(ctx, acct)
	return acct, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetOrCreateAccount(ctx context.Context, accountID string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(accountID)).Bytes()
	if err == nil {
		var acct model.Account
		if json.Unmarshal(data, &acct) == nil {
			return &acct, nil
		}
	}

	// Cache miss: read from primary.
	acct, err := s.primary.GetOrCreateAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	s.cacheAccount(ctx, acct)
	return acct, nil
}

// --- Passthrough (not cached) ---

// ListAccounts always hits the primary; the scanner must see fresh state.
func (s *CachedStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.primary.ListAccounts(ctx)
}

func (s *CachedStore) cacheAccount(ctx context.Context, acct *model.Account) {
	if data, err := json.Marshal(acct); err == nil {
		s.rdb.Set(ctx, accountKey(acct.ID), data, s.ttl)
	}
}

func accountKey(accountID string) string {
	return "account:" + accountID
}

var _ Store = (*CachedStore)(nil)
