package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/ledger"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/logger"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/money"
)

// AccountHandler handles account endpoints
type AccountHandler struct {
	svc *ledger.Service
	log *logger.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(svc *ledger.Service, log *logger.Logger) *AccountHandler {
	return &AccountHandler{
		svc: svc,
		log: log.WithComponent("account_handler"),
	}
}

// OpenAccountRequest is the payload for opening an account
type OpenAccountRequest struct {
	Kind     string         `json:"kind"`
	Currency string         `json:"currency"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Open handles POST /api/v1/accounts
func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.svc.OpenAccount(r.Context(), ledger.OpenAccountInput{
		OwnerID:  actor.UserID,
		Kind:     ledger.AccountKind(req.Kind),
		Currency: money.Currency(req.Currency),
		Metadata: req.Metadata,
	})
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, accountResponse(account, nil))
}

// List handles GET /api/v1/accounts
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	accounts, err := h.svc.ListAccounts(r.Context(), actor.UserID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	out := make([]AccountResponse, len(accounts))
	for i, a := range accounts {
		out[i] = accountResponse(a, nil)
	}
	respondJSON(w, http.StatusOK, out)
}

// Get handles GET /api/v1/accounts/{accountNumber}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	accountNumber := chi.URLParam(r, "accountNumber")
	account, balance, err := h.svc.GetAccount(r.Context(), actor, accountNumber)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, accountResponse(account, balance))
}

// Close handles POST /api/v1/accounts/{accountNumber}/close
func (h *AccountHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// Reopen handles POST /api/v1/accounts/{accountNumber}/reopen
func (h *AccountHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *AccountHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	actor, ok := actorFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	accountNumber := chi.URLParam(r, "accountNumber")
	var (
		account *ledger.Account
		err     error
	)
	if active {
		account, err = h.svc.ReopenAccount(r.Context(), actor, accountNumber)
	} else {
		account, err = h.svc.CloseAccount(r.Context(), actor, accountNumber)
	}
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, accountResponse(account, nil))
}

// Transactions handles GET /api/v1/accounts/{accountNumber}/transactions
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	page := parsePage(r)

	accountNumber := chi.URLParam(r, "accountNumber")
	txs, total, err := h.svc.ListAccountTransactions(r.Context(), actor, accountNumber, filter, page)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ListResponse{
		Data:  transactionResponses(txs),
		Page:  page.Page,
		Limit: page.Limit,
		Total: total,
	})
}

// Stats handles GET /api/v1/accounts/{accountNumber}/stats
func (h *AccountHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	window, err := parseWindow(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	accountNumber := chi.URLParam(r, "accountNumber")
	stats, err := h.svc.AccountStats(r.Context(), actor, accountNumber, window)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
