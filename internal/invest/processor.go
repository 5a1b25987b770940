package invest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vesto/invest-engine/internal/catalog"
	"github.com/vesto/invest-engine/internal/metrics"
	"github.com/vesto/invest-engine/internal/model"
	"github.com/vesto/invest-engine/internal/queue"
	"github.com/vesto/invest-engine/internal/store"
)

// Processor drains the submission queue. It is the sole writer of truth for
// commitment creation: every submission is re-validated inside the store's
// per-account transaction, regardless of what the ingress pre-check saw.
// Business rejections are published to the account's subscribers and never
// retried; transient faults are logged and the worker moves on — one bad
// item never halts processing.
type Processor struct {
	store    store.Store
	catalog  *catalog.Catalog
	queue    *queue.Queue
	notifier Notifier
}

// NewProcessor creates a queue processor. Pass nil for notifier to disable
// push notifications.
func NewProcessor(st store.Store, cat *catalog.Catalog, q *queue.Queue, n Notifier) *Processor {
	return &Processor{
		store:    st,
		catalog:  cat,
		queue:    q,
		notifier: n,
	}
}

// Run drains the queue until the context is cancelled or the queue is
// closed and empty. Multiple Run goroutines may share one Processor.
func (p *Processor) Run(ctx context.Context) {
	slog.Info("queue worker started")
	for {
		sub, err := p.queue.Dequeue(ctx)
		if err != nil {
			slog.Info("queue worker stopped", "reason", err)
			return
		}
		p.process(ctx, sub)
	}
}

func (p *Processor) process(ctx context.Context, sub model.Submission) {
	opt, ok := p.catalog.Get(sub.OptionName)
	if !ok {
		metrics.SubmissionsTotal.WithLabelValues("unknown_option").Inc()
		slog.Warn("submission for unknown option", "account", sub.AccountID, "option", sub.OptionName)
		p.publishFailure(sub, "investment option not found")
		return
	}

	acct, err := p.store.ApplyCommitment(ctx, sub.AccountID, opt)
	switch {
	case err == nil:
		metrics.SubmissionsTotal.WithLabelValues("started").Inc()
		slog.Info("investment started",
			"account", sub.AccountID,
			"option", opt.Name,
			"cost", opt.Cost.String(),
			"balance", acct.Balance.String(),
		)
		p.publish(sub.AccountID, Event{
			Type:              EventInvestmentStarted,
			AccountID:         sub.AccountID,
			Message:           "investment started successfully",
			OptionName:        opt.Name,
			Balance:           acct.Balance.String(),
			ActiveCommitments: acct.Commitments,
		})

	case errors.Is(err, store.ErrInsufficientFunds):
		metrics.SubmissionsTotal.WithLabelValues("insufficient_funds").Inc()
		slog.Warn("investment rejected", "account", sub.AccountID, "option", opt.Name, "reason", "insufficient balance")
		p.publishFailure(sub, "insufficient balance")

	case errors.Is(err, store.ErrDuplicateCommitment):
		metrics.SubmissionsTotal.WithLabelValues("duplicate_option").Inc()
		slog.Warn("investment rejected", "account", sub.AccountID, "option", opt.Name, "reason", "duplicate option")
		p.publishFailure(sub, "you already have an active investment in this option")

	case errors.Is(err, store.ErrAccountNotFound):
		metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		slog.Warn("submission for unknown account", "account", sub.AccountID, "option", opt.Name)
		p.publishFailure(sub, "account not found")

	default:
		// Transient fault: abandon this item, keep the worker alive.
		metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		slog.Error("processing submission failed", "account", sub.AccountID, "option", opt.Name, "err", err)
	}
}

func (p *Processor) publish(accountID string, ev Event) {
	if p.notifier != nil {
		p.notifier.Publish(accountID, ev)
	}
}

func (p *Processor) publishFailure(sub model.Submission, reason string) {
	p.publish(sub.AccountID, Event{
		Type:       EventInvestmentFailed,
		AccountID:  sub.AccountID,
		Message:    reason,
		OptionName: sub.OptionName,
	})
}
