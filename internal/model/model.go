// Package model defines the core domain types shared across the investment
// engine. All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Option is a catalog-defined investment plan. Options are created once at
// startup and never mutated; the name is the unique key.
type Option struct {
	Name            string          `json:"name"`
	Cost            decimal.Decimal `json:"cost"`
	ExpectedReturn  decimal.Decimal `json:"expected_return"`
	DurationSeconds int64           `json:"duration_seconds"`
}

// Duration returns the option's maturity period.
func (o Option) Duration() time.Duration {
	return time.Duration(o.DurationSeconds) * time.Second
}

// Commitment is an account's active instance of an option, pending maturity.
// Created when a submission is applied, deleted when settled — there is no
// retained terminal state. MaturesAt is fixed at creation (creation time +
// option duration) and never altered.
type Commitment struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"account_id"`
	OptionName     string          `json:"option_name"`
	Amount         decimal.Decimal `json:"amount"`
	ExpectedReturn decimal.Decimal `json:"expected_return"`
	MaturesAt      time.Time       `json:"matures_at"`
}

// Account is a point-in-time snapshot of one account: its balance and its
// active commitments. Accounts are created lazily on first reference with a
// fixed starting balance and hold at most one active commitment per option
// name.
type Account struct {
	ID          string          `json:"id"`
	Balance     decimal.Decimal `json:"balance"`
	Commitments []Commitment    `json:"active_commitments"`
}

// Submission is an accepted request to open a commitment, waiting in the
// queue for authoritative processing.
type Submission struct {
	AccountID  string    `json:"account_id"`
	OptionName string    `json:"option_name"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
