package invest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vesto/invest-engine/internal/metrics"
	"github.com/vesto/invest-engine/internal/model"
	"github.com/vesto/invest-engine/internal/store"
)

// DefaultScanInterval is the maturity polling period.
const DefaultScanInterval = time.Second

// Scanner settles matured commitments. Each tick it walks a snapshot of all
// accounts and settles every commitment whose maturity has passed. The walk
// is O(total active commitments) per tick — fine at small to moderate scale;
// a timer heap keyed by maturity would replace it beyond that.
//
// Settlement itself is the store's transaction, so a stale snapshot is
// harmless: a commitment that was already settled or removed comes back as
// ErrCommitmentNotFound and is skipped. Per-commitment failures are logged
// and never block the rest of the scan.
type Scanner struct {
	store    store.Store
	notifier Notifier
	interval time.Duration
	now      func() time.Time
}

// NewScanner creates a maturity scanner. A non-positive interval falls back
// to DefaultScanInterval. Pass nil for notifier to disable push
// notifications.
func NewScanner(st store.Store, n Notifier, interval time.Duration) *Scanner {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &Scanner{
		store:    st,
		notifier: n,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks until the context is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	slog.Info("maturity scanner started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("maturity scanner stopped")
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan performs one pass over all accounts, settling matured commitments.
func (s *Scanner) Scan(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.ScanDuration.Observe(time.Since(start).Seconds())
	}()

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		slog.Error("maturity scan failed to list accounts", "err", err)
		return
	}

	now := s.now()
	for _, acct := range accounts {
		for _, c := range acct.Commitments {
			if c.MaturesAt.After(now) {
				continue
			}
			s.settle(ctx, c)
		}
	}
}

func (s *Scanner) settle(ctx context.Context, c model.Commitment) {
	acct, err := s.store.SettleCommitment(ctx, c.AccountID, c.ID)
	if errors.Is(err, store.ErrCommitmentNotFound) {
		// Already settled or removed since the snapshot; nothing to do.
		return
	}
	if err != nil {
		slog.Error("settlement failed", "account", c.AccountID, "commitment", c.ID, "err", err)
		return
	}

	metrics.SettlementsTotal.Inc()
	slog.Info("investment completed",
		"account", c.AccountID,
		"option", c.OptionName,
		"payout", c.ExpectedReturn.String(),
		"balance", acct.Balance.String(),
	)

	if s.notifier != nil {
		s.notifier.Publish(c.AccountID, Event{
			Type:              EventInvestmentCompleted,
			AccountID:         c.AccountID,
			Message:           "investment '" + c.OptionName + "' completed",
			OptionName:        c.OptionName,
			CommitmentID:      c.ID,
			Payout:            c.ExpectedReturn.String(),
			Balance:           acct.Balance.String(),
			ActiveCommitments: acct.Commitments,
		})
	}
}
