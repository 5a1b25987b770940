package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vesto/invest-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Per-account atomicity comes from row-level locking: every mutation runs
// in a transaction that first takes SELECT ... FOR UPDATE on the account
// row, so operations on the same account serialize while distinct accounts
// proceed in parallel.
type PostgresStore struct {
	pool            *pgxpool.Pool
	startingBalance decimal.Decimal
	now             func() time.Time
}

// NewPostgresStore creates a PostgreSQL-backed store. New accounts start
// with startingBalance.
func NewPostgresStore(pool *pgxpool.Pool, startingBalance decimal.Decimal) *PostgresStore {
	return &PostgresStore{
		pool:            pool,
		startingBalance: startingBalance,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id      TEXT PRIMARY KEY,
			balance NUMERIC NOT NULL CHECK (balance >= 0)
		);
		CREATE TABLE IF NOT EXISTS commitments (
			id              UUID PRIMARY KEY,
			account_id      TEXT NOT NULL REFERENCES accounts(id),
			option_name     TEXT NOT NULL,
			amount          NUMERIC NOT NULL,
			expected_return NUMERIC NOT NULL,
			matures_at      TIMESTAMPTZ NOT NULL,
			UNIQUE (account_id, option_name)
		);
		CREATE INDEX IF NOT EXISTS commitments_matures_at_idx
			ON commitments (matures_at);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOrCreateAccount(ctx context.Context, accountID string) (*model.Account, error) {
	// ON CONFLICT DO NOTHING makes creation idempotent under racing callers.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, balance) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (id) DO NOTHING`,
		accountID, s.startingBalance.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("create account %s: %w", accountID, err)
	}
	return s.readSnapshot(ctx, s.pool, accountID)
}

func (s *PostgresStore) ApplyCommitment(ctx context.Context, accountID string, opt model.Option) (*model.Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var balanceS string
	err = tx.QueryRow(ctx,
		`SELECT balance::TEXT FROM accounts WHERE id = $1 FOR UPDATE`, accountID).
		Scan(&balanceS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock account %s: %w", accountID, err)
	}
	balance, _ := decimal.NewFromString(balanceS)

	if balance.LessThan(opt.Cost) {
		return nil, ErrInsufficientFunds
	}

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM commitments WHERE account_id = $1 AND option_name = $2
		 )`, accountID, opt.Name).
		Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateCommitment
	}

	c := model.Commitment{
		ID:             uuid.New().String(),
		AccountID:      accountID,
		OptionName:     opt.Name,
		Amount:         opt.Cost,
		ExpectedReturn: opt.ExpectedReturn,
		MaturesAt:      s.now().Add(opt.Duration()),
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO commitments (id, account_id, option_name, amount, expected_return, matures_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6)`,
		c.ID, c.AccountID, c.OptionName, c.Amount.String(), c.ExpectedReturn.String(), c.MaturesAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert commitment: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2::NUMERIC WHERE id = $1`,
		accountID, opt.Cost.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("debit account %s: %w", accountID, err)
	}

	acct, err := s.readSnapshot(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *PostgresStore) SettleCommitment(ctx context.Context, accountID, commitmentID string) (*model.Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Lock the account row first so settlement serializes with submissions.
	var balanceS string
	err = tx.QueryRow(ctx,
		`SELECT balance::TEXT FROM accounts WHERE id = $1 FOR UPDATE`, accountID).
		Scan(&balanceS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCommitmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock account %s: %w", accountID, err)
	}

	var payoutS string
	err = tx.QueryRow(ctx,
		`DELETE FROM commitments WHERE id = $1 AND account_id = $2
		 RETURNING expected_return::TEXT`,
		commitmentID, accountID).
		Scan(&payoutS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCommitmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete commitment %s: %w", commitmentID, err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE accounts SET balance = balance + $2::NUMERIC WHERE id = $1`,
		accountID, payoutS,
	)
	if err != nil {
		return nil, fmt.Errorf("credit account %s: %w", accountID, err)
	}

	acct, err := s.readSnapshot(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	// A single statement sees one MVCC snapshot, so each account's balance
	// and commitment set are mutually consistent.
	rows, err := s.pool.Query(ctx,
		`SELECT a.id, a.balance::TEXT,
		        c.id, c.option_name, c.amount::TEXT, c.expected_return::TEXT, c.matures_at
		 FROM accounts a
		 LEFT JOIN commitments c ON c.account_id = a.id
		 ORDER BY a.id, c.matures_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	var cur *model.Account

	for rows.Next() {
		var acctID, balanceS string
		var cID, cOption, cAmountS, cRetS *string
		var cMaturesAt *time.Time
		if err := rows.Scan(&acctID, &balanceS, &cID, &cOption, &cAmountS, &cRetS, &cMaturesAt); err != nil {
			return nil, err
		}

		if cur == nil || cur.ID != acctID {
			balance, _ := decimal.NewFromString(balanceS)
			accounts = append(accounts, model.Account{ID: acctID, Balance: balance})
			cur = &accounts[len(accounts)-1]
		}

		if cID != nil {
			amount, _ := decimal.NewFromString(*cAmountS)
			ret, _ := decimal.NewFromString(*cRetS)
			cur.Commitments = append(cur.Commitments, model.Commitment{
				ID:             *cID,
				AccountID:      acctID,
				OptionName:     *cOption,
				Amount:         amount,
				ExpectedReturn: ret,
				MaturesAt:      *cMaturesAt,
			})
		}
	}
	return accounts, rows.Err()
}

// querier covers both *pgxpool.Pool and pgx.Tx for snapshot reads.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PostgresStore) readSnapshot(ctx context.Context, q querier, accountID string) (*model.Account, error) {
	var balanceS string
	err := q.QueryRow(ctx,
		`SELECT balance::TEXT FROM accounts WHERE id = $1`, accountID).
		Scan(&balanceS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read account %s: %w", accountID, err)
	}
	balance, _ := decimal.NewFromString(balanceS)

	rows, err := q.Query(ctx,
		`SELECT id, option_name, amount::TEXT, expected_return::TEXT, matures_at
		 FROM commitments WHERE account_id = $1 ORDER BY matures_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	acct := &model.Account{ID: accountID, Balance: balance}
	for rows.Next() {
		var c model.Commitment
		var amountS, retS string
		if err := rows.Scan(&c.ID, &c.OptionName, &amountS, &retS, &c.MaturesAt); err != nil {
			return nil, err
		}
		c.AccountID = accountID
		c.Amount, _ = decimal.NewFromString(amountS)
		c.ExpectedReturn, _ = decimal.NewFromString(retS)
		acct.Commitments = append(acct.Commitments, c)
	}
	return acct, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
