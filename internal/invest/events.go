// Package invest implements the investment lifecycle engine: HTTP ingress,
// the queue workers that authoritatively apply submissions, the maturity
// scanner that settles commitments, and the push-notification fan-out.
package invest

import "github.com/vesto/invest-engine/internal/model"

// Event kinds pushed to subscribers of an account.
const (
	EventSubscriptionConfirmed = "subscription_confirmed"
	EventInvestmentStarted     = "investment_started"
	EventInvestmentCompleted   = "investment_completed"
	EventInvestmentFailed      = "investment_failed"
)

// Event is a JSON message describing one account state change. Monetary
// fields are serialized as strings, matching the wire format used
// throughout the WebSocket API.
type Event struct {
	Type              string             `json:"type"`
	AccountID         string             `json:"account_id"`
	Message           string             `json:"message,omitempty"`
	OptionName        string             `json:"option_name,omitempty"`
	CommitmentID      string             `json:"commitment_id,omitempty"`
	Payout            string             `json:"payout,omitempty"`
	Balance           string             `json:"balance,omitempty"`
	ActiveCommitments []model.Commitment `json:"active_commitments,omitempty"`
}

// Notifier delivers events to whoever subscribed to an account. Delivery is
// at-most-once and best-effort: events for accounts with no listener are
// dropped, never queued or replayed. Consumers must treat the stream as an
// optimization over a periodic full-state read, not as the source of truth.
type Notifier interface {
	Publish(accountID string, ev Event)
}

// Fanout returns a Notifier that publishes to every non-nil target.
func Fanout(targets ...Notifier) Notifier {
	var active []Notifier
	for _, t := range targets {
		if t != nil {
			active = append(active, t)
		}
	}
	return fanout(active)
}

type fanout []Notifier

func (f fanout) Publish(accountID string, ev Event) {
	for _, n := range f {
		n.Publish(accountID, ev)
	}
}
