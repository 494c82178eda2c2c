package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/ledger"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/logger"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/money"
)

// TransactionHandler handles transaction endpoints
type TransactionHandler struct {
	svc *ledger.Service
	log *logger.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(svc *ledger.Service, log *logger.Logger) *TransactionHandler {
	return &TransactionHandler{
		svc: svc,
		log: log.WithComponent("transaction_handler"),
	}
}

// MovementRequest is the payload for deposits, withdrawals and fees.
// Async requests are journaled as PENDING and settled by the sweeper.
type MovementRequest struct {
	AccountNumber string         `json:"account_number"`
	Amount        string         `json:"amount"`
	Currency      string         `json:"currency"`
	Description   string         `json:"description,omitempty"`
	Reference     *string        `json:"reference,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Async         bool           `json:"async,omitempty"`
}

// TransferRequest is the payload for transfers
type TransferRequest struct {
	FromAccount string         `json:"from_account"`
	ToAccount   string         `json:"to_account"`
	Amount      string         `json:"amount"`
	Currency    string         `json:"currency"`
	Description string         `json:"description,omitempty"`
	Reference   *string        `json:"reference,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Async       bool           `json:"async,omitempty"`
}

// ReverseRequest is the payload for reversals
type ReverseRequest struct {
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (h *TransactionHandler) movementInput(actor ledger.Actor, req MovementRequest) ledger.MovementInput {
	return ledger.MovementInput{
		Actor:         actor,
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount,
		Currency:      money.Currency(req.Currency),
		Description:   req.Description,
		Reference:     req.Reference,
		Metadata:      req.Metadata,
	}
}

// Deposit handles POST /api/v1/transactions/deposit
func (h *TransactionHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		tx  *ledger.Transaction
		err error
	)
	if req.Async {
		tx, err = h.svc.EnqueueDeposit(r.Context(), h.movementInput(actor, req))
	} else {
		tx, err = h.svc.Deposit(r.Context(), h.movementInput(actor, req))
	}
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, movementStatus(req.Async), transactionResponse(tx))
}

// Withdraw handles POST /api/v1/transactions/withdraw
func (h *TransactionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		tx  *ledger.Transaction
		err error
	)
	if req.Async {
		tx, err = h.svc.EnqueueWithdrawal(r.Context(), h.movementInput(actor, req))
	} else {
		tx, err = h.svc.Withdraw(r.Context(), h.movementInput(actor, req))
	}
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, movementStatus(req.Async), transactionResponse(tx))
}

// Fee handles POST /api/v1/transactions/fee. Only administrators may
// charge fees.
func (h *TransactionHandler) Fee(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !actor.Admin {
		respondError(w, http.StatusForbidden, "charging fees requires an administrator")
		return
	}

	var req MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx, err := h.svc.ChargeFee(r.Context(), h.movementInput(actor, req))
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, transactionResponse(tx))
}

// Transfer handles POST /api/v1/transactions/transfer
func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := ledger.TransferInput{
		Actor:             actor,
		FromAccountNumber: req.FromAccount,
		ToAccountNumber:   req.ToAccount,
		Amount:            req.Amount,
		Currency:          money.Currency(req.Currency),
		Description:       req.Description,
		Reference:         req.Reference,
		Metadata:          req.Metadata,
	}

	var (
		tx  *ledger.Transaction
		err error
	)
	if req.Async {
		tx, err = h.svc.EnqueueTransfer(r.Context(), in)
	} else {
		tx, err = h.svc.Transfer(r.Context(), in)
	}
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, movementStatus(req.Async), transactionResponse(tx))
}

// Reverse handles POST /api/v1/transactions/{transactionID}/reverse
func (h *TransactionHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req ReverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx, err := h.svc.Reverse(r.Context(), ledger.ReversalInput{
		Actor:                 actor,
		OriginalTransactionID: chi.URLParam(r, "transactionID"),
		Reason:                req.Reason,
		Metadata:              req.Metadata,
	})
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, transactionResponse(tx))
}

// Cancel handles POST /api/v1/transactions/{transactionID}/cancel
func (h *TransactionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	tx, err := h.svc.CancelPending(r.Context(), actor, chi.URLParam(r, "transactionID"))
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, transactionResponse(tx))
}

// Get handles GET /api/v1/transactions/{transactionID}
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	tx, err := h.svc.GetTransaction(r.Context(), actor, chi.URLParam(r, "transactionID"))
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, transactionResponse(tx))
}

// List handles GET /api/v1/transactions. Admins may list another user's
// transactions with the user_id parameter.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	userID := actor.UserID
	if v := r.URL.Query().Get("user_id"); v != "" {
		parsed, err := uuid.Parse(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid query parameter: user_id")
			return
		}
		userID = parsed
	}

	filter, err := parseFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	page := parsePage(r)

	txs, total, err := h.svc.ListUserTransactions(r.Context(), actor, userID, filter, page)
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

// Stats handles GET /api/v1/transactions/stats. Admins may view another
// user's statistics with the user_id parameter.
func (h *TransactionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	userID := actor.UserID
	if v := r.URL.Query().Get("user_id"); v != "" {
		parsed, err := uuid.Parse(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid query parameter: user_id")
			return
		}
		userID = parsed
	}

	window, err := parseWindow(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.svc.UserStats(r.Context(), actor, userID, window)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// Sweep handles POST /api/v1/admin/sweep. It settles stale PENDING
// transactions immediately instead of waiting for the background ticker.
func (h *TransactionHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !actor.Admin {
		respondError(w, http.StatusForbidden, "sweeping requires an administrator")
		return
	}

	result, err := h.svc.SweepPending(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// movementStatus picks the response code: async movements are accepted
// for later settlement, synchronous ones are created outright.
func movementStatus(async bool) int {
	if async {
		return http.StatusAccepted
	}
	return http.StatusCreated
}
