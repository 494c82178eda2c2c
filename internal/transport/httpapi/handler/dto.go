package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/ledger"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/transport/httpapi/middleware"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/money"
)

// actorFrom builds the acting identity from the authenticated request.
func actorFrom(r *http.Request) (ledger.Actor, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		return ledger.Actor{}, false
	}
	role, _ := middleware.GetUserRoleFromContext(r.Context())
	return ledger.Actor{UserID: userID, Admin: role == "admin"}, true
}

// AccountResponse is the public view of an account
type AccountResponse struct {
	AccountNumber string         `json:"account_number"`
	Kind          string         `json:"kind"`
	Currency      string         `json:"currency"`
	Active        bool           `json:"active"`
	Balance       *string        `json:"balance,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func accountResponse(a *ledger.Account, b *ledger.Balance) AccountResponse {
	resp := AccountResponse{
		AccountNumber: a.AccountNumber,
		Kind:          string(a.Kind),
		Currency:      string(a.Currency),
		Active:        a.Active,
		Metadata:      a.Metadata,
		CreatedAt:     a.CreatedAt,
	}
	if b != nil {
		amount := money.Format(b.Amount)
		resp.Balance = &amount
	}
	return resp
}

// TransactionResponse is the public view of a transaction
type TransactionResponse struct {
	TransactionID string         `json:"transaction_id"`
	Kind          string         `json:"kind"`
	Status        string         `json:"status"`
	Amount        string         `json:"amount"`
	Currency      string         `json:"currency"`
	FromAccount   *string        `json:"from_account,omitempty"`
	ToAccount     *string        `json:"to_account,omitempty"`
	Description   string         `json:"description,omitempty"`
	Reference     *string        `json:"reference,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	FailureReason *string        `json:"failure_reason,omitempty"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func transactionResponse(tx *ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID: tx.TransactionID,
		Kind:          string(tx.Kind),
		Status:        string(tx.Status),
		Amount:        money.Format(tx.Amount),
		Currency:      string(tx.Currency),
		FromAccount:   tx.FromAccount,
		ToAccount:     tx.ToAccount,
		Description:   tx.Description,
		Reference:     tx.Reference,
		Metadata:      tx.Metadata,
		FailureReason: tx.FailureReason,
		ProcessedAt:   tx.ProcessedAt,
		CreatedAt:     tx.CreatedAt,
	}
}

func transactionResponses(txs []*ledger.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, len(txs))
	for i, tx := range txs {
		out[i] = transactionResponse(tx)
	}
	return out
}

// ListResponse wraps a paged collection
type ListResponse struct {
	Data  any   `json:"data"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// parsePage reads pagination and sorting from query parameters.
func parsePage(r *http.Request) ledger.Page {
	q := r.URL.Query()
	page := ledger.DefaultPage()
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		page.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		page.Limit = v
	}
	if v := q.Get("sort_by"); v != "" {
		page.SortBy = v
	}
	if v := q.Get("order"); v != "" {
		page.SortDesc = v != "asc"
	}
	return page.Normalize()
}

// parseFilter reads transaction filters from query parameters.
func parseFilter(r *http.Request) (ledger.TransactionFilter, error) {
	q := r.URL.Query()
	var f ledger.TransactionFilter

	if v := q.Get("kind"); v != "" {
		kind := ledger.TransactionKind(v)
		if !kind.IsValid() {
			return f, errBadQuery("kind")
		}
		f.Kind = &kind
	}
	if v := q.Get("status"); v != "" {
		status := ledger.TransactionStatus(v)
		if !status.IsValid() {
			return f, errBadQuery("status")
		}
		f.Status = &status
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errBadQuery("from")
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errBadQuery("to")
		}
		f.To = &t
	}
	if v := q.Get("account"); v != "" {
		f.AccountNumber = &v
	}
	if v := q.Get("min_amount"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, errBadQuery("min_amount")
		}
		f.MinAmount = &d
	}
	if v := q.Get("max_amount"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, errBadQuery("max_amount")
		}
		f.MaxAmount = &d
	}
	return f, nil
}

// parseWindow reads an aggregation time window from query parameters.
func parseWindow(r *http.Request) (ledger.Window, error) {
	q := r.URL.Query()
	var w ledger.Window
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return w, errBadQuery("from")
		}
		w.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return w, errBadQuery("to")
		}
		w.To = &t
	}
	return w, nil
}

type queryError struct{ param string }

func (e queryError) Error() string { return "invalid query parameter: " + e.param }

func errBadQuery(param string) error { return queryError{param: param} }
