package invest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vesto/invest-engine/internal/catalog"
	"github.com/vesto/invest-engine/internal/model"
	"github.com/vesto/invest-engine/internal/queue"
	"github.com/vesto/invest-engine/internal/store"
)

// Service exposes the HTTP ingress. Submissions are pre-checked here
// against a point-in-time snapshot and then queued; the pre-check is
// advisory only — the queue workers re-validate inside the store
// transaction, which is the sole writer of truth.
type Service struct {
	store   store.Store
	catalog *catalog.Catalog
	queue   *queue.Queue
}

// NewService creates the HTTP service.
func NewService(st store.Store, cat *catalog.Catalog, q *queue.Queue) *Service {
	return &Service{
		store:   st,
		catalog: cat,
		queue:   q,
	}
}

// InvestRequest is the JSON body for POST /api/v1/invest.
type InvestRequest struct {
	AccountID  string `json:"account_id"`
	OptionName string `json:"option_name"`
}

// GetAccount handles GET /api/v1/accounts/{accountID}.
// Creates the account with the starting balance on first reference and
// returns the full snapshot — the reconciliation read clients fall back to
// when a push notification is missed.
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		writeError(w, "account id is required", http.StatusBadRequest)
		return
	}

	acct, err := s.store.GetOrCreateAccount(r.Context(), accountID)
	if err != nil {
		slog.Error("get account failed", "account", accountID, "err", err)
		writeError(w, "failed to load account", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, acct)
}

// ListOptions handles GET /api/v1/options.
func (s *Service) ListOptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Options())
}

// Invest handles POST /api/v1/invest. Accepted submissions are queued and
// the request returns 202 immediately; the outcome arrives asynchronously
// via the notification channel.
func (s *Service) Invest(w http.ResponseWriter, r *http.Request) {
	var req InvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccountID == "" || req.OptionName == "" {
		writeError(w, "account_id and option_name are required", http.StatusBadRequest)
		return
	}

	opt, ok := s.catalog.Get(req.OptionName)
	if !ok {
		writeError(w, "investment option not found", http.StatusNotFound)
		return
	}

	acct, err := s.store.GetOrCreateAccount(r.Context(), req.AccountID)
	if err != nil {
		slog.Error("get account failed", "account", req.AccountID, "err", err)
		writeError(w, "failed to load account", http.StatusInternalServerError)
		return
	}

	// Optimistic pre-check against the snapshot. State can change before
	// the worker picks the item up, so this only filters out requests that
	// are already invalid — it is never trusted for correctness.
	if acct.Balance.LessThan(opt.Cost) {
		writeError(w, "insufficient balance", http.StatusBadRequest)
		return
	}
	for _, c := range acct.Commitments {
		if c.OptionName == opt.Name {
			writeError(w, "you already have an active investment in this option", http.StatusBadRequest)
			return
		}
	}

	sub := model.Submission{
		AccountID:  req.AccountID,
		OptionName: req.OptionName,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(sub); err != nil {
		writeError(w, "service is shutting down", http.StatusServiceUnavailable)
		return
	}

	slog.Info("submission queued", "account", req.AccountID, "option", req.OptionName)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "investment request received and is being processed",
		"status":  "queued",
	})
}

// QueueStatus handles GET /api/v1/queue-status.
func (s *Service) QueueStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"queue_length": s.queue.Len(),
		"status":       "operational",
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
