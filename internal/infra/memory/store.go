// Package memory provides an in-process ledger.Repository used by unit
// tests and local development. A single mutex serializes commit scopes and
// a full snapshot backs rollback, which makes every scope trivially
// serializable.
package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/ledger"
)

type txKey struct{}

type txState struct {
	snapshot *state
}

type state struct {
	accounts     map[uuid.UUID]*ledger.Account
	byNumber     map[string]uuid.UUID
	balances     map[uuid.UUID]*ledger.Balance
	transactions map[uuid.UUID]*ledger.Transaction
	byPublicID   map[string]uuid.UUID
}

func newState() *state {
	return &state{
		accounts:     make(map[uuid.UUID]*ledger.Account),
		byNumber:     make(map[string]uuid.UUID),
		balances:     make(map[uuid.UUID]*ledger.Balance),
		transactions: make(map[uuid.UUID]*ledger.Transaction),
		byPublicID:   make(map[string]uuid.UUID),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = copyAccount(v)
	}
	for k, v := range s.byNumber {
		c.byNumber[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = copyBalance(v)
	}
	for k, v := range s.transactions {
		c.transactions[k] = copyTransaction(v)
	}
	for k, v := range s.byPublicID {
		c.byPublicID[k] = v
	}
	return c
}

// Store is the in-memory repository.
type Store struct {
	mu   chan struct{} // commit mutex, channel-based so lock holders are re-entrant via context
	data *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		mu:   make(chan struct{}, 1),
		data: newState(),
	}
}

// enter takes the store lock unless ctx already holds an open commit scope.
func (s *Store) enter(ctx context.Context) (release func()) {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	s.mu <- struct{}{}
	return func() { <-s.mu }
}

// BeginTx opens a commit scope. The scope holds the store lock until
// CommitTx or RollbackTx, so concurrent scopes serialize.
func (s *Store) BeginTx(ctx context.Context) (context.Context, error) {
	if ctx.Value(txKey{}) != nil {
		return ctx, ledger.ErrTxInProgress
	}
	select {
	case s.mu <- struct{}{}:
	case <-ctx.Done():
		return ctx, ctx.Err()
	}
	return context.WithValue(ctx, txKey{}, &txState{snapshot: s.data.clone()}), nil
}

// CommitTx closes the scope, keeping its writes.
func (s *Store) CommitTx(ctx context.Context) error {
	tx, ok := ctx.Value(txKey{}).(*txState)
	if !ok || tx.snapshot == nil {
		return ledger.ErrNoTransaction
	}
	tx.snapshot = nil
	<-s.mu
	return nil
}

// RollbackTx closes the scope, restoring the pre-scope state. Safe to call
// after CommitTx; it then does nothing.
func (s *Store) RollbackTx(ctx context.Context) error {
	tx, ok := ctx.Value(txKey{}).(*txState)
	if !ok {
		return ledger.ErrNoTransaction
	}
	if tx.snapshot == nil {
		return nil
	}
	s.data = tx.snapshot
	tx.snapshot = nil
	<-s.mu
	return nil
}

// SumAllBalances totals every balance in the store, system accounts
// included. Tests use it to assert the zero-sum invariant.
func (s *Store) SumAllBalances(ctx context.Context) decimal.Decimal {
	defer s.enter(ctx)()
	sum := decimal.Zero
	for _, b := range s.data.balances {
		sum = sum.Add(b.Amount)
	}
	return sum
}

// ---- accounts ----

func (s *Store) CreateAccount(ctx context.Context, account *ledger.Account) error {
	defer s.enter(ctx)()
	if _, exists := s.data.accounts[account.ID]; exists {
		return ledger.ErrDuplicate
	}
	if _, exists := s.data.byNumber[account.AccountNumber]; exists {
		return ledger.ErrDuplicate
	}
	s.data.accounts[account.ID] = copyAccount(account)
	s.data.byNumber[account.AccountNumber] = account.ID
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	defer s.enter(ctx)()
	account, ok := s.data.accounts[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return copyAccount(account), nil
}

func (s *Store) GetAccountByNumber(ctx context.Context, accountNumber string) (*ledger.Account, error) {
	defer s.enter(ctx)()
	id, ok := s.data.byNumber[accountNumber]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return copyAccount(s.data.accounts[id]), nil
}

func (s *Store) ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*ledger.Account, error) {
	defer s.enter(ctx)()
	var out []*ledger.Account
	for _, account := range s.data.accounts {
		if account.OwnerID == ownerID {
			out = append(out, copyAccount(account))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SetAccountActive(ctx context.Context, id uuid.UUID, active bool, version int64) error {
	defer s.enter(ctx)()
	account, ok := s.data.accounts[id]
	if !ok {
		return ledger.ErrNotFound
	}
	if account.Version != version {
		return ledger.ErrStateConflict
	}
	account.Active = active
	account.Version++
	account.UpdatedAt = time.Now()
	return nil
}

func (s *Store) GetOrCreateSystemAccount(ctx context.Context, account *ledger.Account, purpose ledger.SystemPurpose) (*ledger.Account, bool, error) {
	defer s.enter(ctx)()
	for _, existing := range s.data.accounts {
		if existing.Kind == ledger.AccountKindSystem &&
			existing.Currency == account.Currency &&
			existing.Metadata[ledger.MetadataKeyPurpose] == string(purpose) {
			return copyAccount(existing), false, nil
		}
	}
	s.data.accounts[account.ID] = copyAccount(account)
	s.data.byNumber[account.AccountNumber] = account.ID
	return copyAccount(account), true, nil
}

// ---- balances ----

func (s *Store) InitBalance(ctx context.Context, balance *ledger.Balance) error {
	defer s.enter(ctx)()
	if _, exists := s.data.balances[balance.AccountID]; exists {
		return ledger.ErrDuplicate
	}
	s.data.balances[balance.AccountID] = copyBalance(balance)
	return nil
}

func (s *Store) GetBalance(ctx context.Context, accountID uuid.UUID) (*ledger.Balance, error) {
	defer s.enter(ctx)()
	balance, ok := s.data.balances[accountID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return copyBalance(balance), nil
}

// GetBalanceForUpdate behaves like GetBalance; the commit-scope mutex
// already excludes all other writers.
func (s *Store) GetBalanceForUpdate(ctx context.Context, accountID uuid.UUID) (*ledger.Balance, error) {
	return s.GetBalance(ctx, accountID)
}

func (s *Store) UpdateBalance(ctx context.Context, balance *ledger.Balance) error {
	defer s.enter(ctx)()
	if _, ok := s.data.balances[balance.AccountID]; !ok {
		return ledger.ErrNotFound
	}
	s.data.balances[balance.AccountID] = copyBalance(balance)
	return nil
}

// ---- journal ----

func (s *Store) CreateTransaction(ctx context.Context, tx *ledger.Transaction) error {
	defer s.enter(ctx)()
	if _, exists := s.data.transactions[tx.ID]; exists {
		return ledger.ErrDuplicate
	}
	if _, exists := s.data.byPublicID[tx.TransactionID]; exists {
		return ledger.ErrDuplicate
	}
	s.data.transactions[tx.ID] = copyTransaction(tx)
	s.data.byPublicID[tx.TransactionID] = tx.ID
	return nil
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, transactionID string, from, to ledger.TransactionStatus, processedAt *time.Time, failureReason *string) error {
	defer s.enter(ctx)()
	id, ok := s.data.byPublicID[transactionID]
	if !ok {
		return ledger.ErrNotFound
	}
	tx := s.data.transactions[id]
	if tx.Status != from {
		return ledger.ErrStateConflict
	}
	tx.Status = to
	tx.UpdatedAt = time.Now()
	if processedAt != nil {
		t := *processedAt
		tx.ProcessedAt = &t
	}
	if failureReason != nil {
		r := *failureReason
		tx.FailureReason = &r
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	defer s.enter(ctx)()
	tx, ok := s.data.transactions[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return copyTransaction(tx), nil
}

func (s *Store) GetTransactionByTxID(ctx context.Context, transactionID string) (*ledger.Transaction, error) {
	defer s.enter(ctx)()
	id, ok := s.data.byPublicID[transactionID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return copyTransaction(s.data.transactions[id]), nil
}

func (s *Store) ListTransactionsByUser(ctx context.Context, userID uuid.UUID, filter ledger.TransactionFilter, page ledger.Page) ([]*ledger.Transaction, int64, error) {
	defer s.enter(ctx)()
	var matched []*ledger.Transaction
	for _, tx := range s.data.transactions {
		if tx.InitiatorID != userID {
			continue
		}
		if !s.matches(tx, filter) {
			continue
		}
		matched = append(matched, copyTransaction(tx))
	}
	return paginate(matched, page)
}

func (s *Store) ListTransactionsByAccount(ctx context.Context, accountNumber string, filter ledger.TransactionFilter, page ledger.Page) ([]*ledger.Transaction, int64, error) {
	defer s.enter(ctx)()
	accountID, ok := s.data.byNumber[accountNumber]
	if !ok {
		return nil, 0, ledger.ErrNotFound
	}
	var matched []*ledger.Transaction
	for _, tx := range s.data.transactions {
		if !touchesAccount(tx, accountID) {
			continue
		}
		if !s.matches(tx, filter) {
			continue
		}
		matched = append(matched, copyTransaction(tx))
	}
	return paginate(matched, page)
}

func (s *Store) FindCompletedReversalOf(ctx context.Context, originalTransactionID string) (*ledger.Transaction, error) {
	defer s.enter(ctx)()
	for _, tx := range s.data.transactions {
		if tx.Kind != ledger.KindReversal || tx.Status != ledger.StatusCompleted {
			continue
		}
		if orig, ok := tx.OriginalTransactionID(); ok && orig == originalTransactionID {
			return copyTransaction(tx), nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (s *Store) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*ledger.Transaction, error) {
	defer s.enter(ctx)()
	var out []*ledger.Transaction
	for _, tx := range s.data.transactions {
		if tx.Status == ledger.StatusPending && tx.CreatedAt.Before(cutoff) {
			out = append(out, copyTransaction(tx))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---- aggregations ----

func (s *Store) AggregateUserStats(ctx context.Context, userID uuid.UUID, window ledger.Window) (*ledger.UserStats, error) {
	defer s.enter(ctx)()

	summary := make(map[string]*ledger.CurrencySummary)
	byKind := make(map[string]*ledger.KindStat)
	monthly := make(map[string]*ledger.MonthlyStat)

	for _, tx := range s.data.transactions {
		if tx.InitiatorID != userID || tx.Status != ledger.StatusCompleted {
			continue
		}
		at := completedAt(tx)
		if !inWindow(at, window) {
			continue
		}

		cur := string(tx.Currency)
		if cs, ok := summary[cur]; ok {
			cs.Count++
			cs.Total = cs.Total.Add(tx.Amount)
		} else {
			summary[cur] = &ledger.CurrencySummary{Currency: cur, Count: 1, Total: tx.Amount}
		}

		kk := string(tx.Kind) + "/" + cur
		if ks, ok := byKind[kk]; ok {
			ks.Count++
			ks.Total = ks.Total.Add(tx.Amount)
		} else {
			byKind[kk] = &ledger.KindStat{Kind: tx.Kind, Currency: cur, Count: 1, Total: tx.Amount}
		}

		mk := at.Format("2006-01") + "/" + string(tx.Kind)
		if ms, ok := monthly[mk]; ok {
			ms.Count++
			ms.Total = ms.Total.Add(tx.Amount)
		} else {
			monthly[mk] = &ledger.MonthlyStat{
				Year:  at.Year(),
				Month: int(at.Month()),
				Kind:  tx.Kind,
				Count: 1,
				Total: tx.Amount,
			}
		}
	}

	stats := &ledger.UserStats{}
	for _, cs := range summary {
		stats.Summary = append(stats.Summary, *cs)
	}
	sort.Slice(stats.Summary, func(i, j int) bool { return stats.Summary[i].Currency < stats.Summary[j].Currency })
	for _, ks := range byKind {
		stats.ByKind = append(stats.ByKind, *ks)
	}
	sort.Slice(stats.ByKind, func(i, j int) bool {
		if stats.ByKind[i].Kind != stats.ByKind[j].Kind {
			return stats.ByKind[i].Kind < stats.ByKind[j].Kind
		}
		return stats.ByKind[i].Currency < stats.ByKind[j].Currency
	})
	for _, ms := range monthly {
		stats.MonthlyTrend = append(stats.MonthlyTrend, *ms)
	}
	sort.Slice(stats.MonthlyTrend, func(i, j int) bool {
		a, b := stats.MonthlyTrend[i], stats.MonthlyTrend[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.Kind < b.Kind
	})
	return stats, nil
}

func (s *Store) AggregateAccountStats(ctx context.Context, accountNumber string, window ledger.Window) (*ledger.AccountStats, error) {
	defer s.enter(ctx)()
	accountID, ok := s.data.byNumber[accountNumber]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	account := s.data.accounts[accountID]

	stats := &ledger.AccountStats{
		NetFlow: ledger.NetFlow{Currency: string(account.Currency)},
	}
	byKind := make(map[string]*ledger.DirectionKindStat)
	daily := make(map[string]*ledger.DailyStat)

	for _, tx := range s.data.transactions {
		if tx.Status != ledger.StatusCompleted {
			continue
		}
		at := completedAt(tx)
		if !inWindow(at, window) {
			continue
		}

		// Net effect of this transaction on the account.
		net := decimal.Zero
		touched := false
		for _, e := range tx.Entries {
			if e.AccountID == accountID {
				net = net.Add(e.SignedAmount())
				touched = true
			}
		}
		if !touched || net.IsZero() {
			continue
		}

		direction := ledger.FlowIncoming
		magnitude := net
		if net.Sign() < 0 {
			direction = ledger.FlowOutgoing
			magnitude = net.Neg()
		}
		if direction == ledger.FlowIncoming {
			stats.NetFlow.Incoming = stats.NetFlow.Incoming.Add(magnitude)
		} else {
			stats.NetFlow.Outgoing = stats.NetFlow.Outgoing.Add(magnitude)
		}

		kk := string(direction) + "/" + string(tx.Kind)
		if ks, ok := byKind[kk]; ok {
			ks.Count++
			ks.Total = ks.Total.Add(magnitude)
		} else {
			byKind[kk] = &ledger.DirectionKindStat{Direction: direction, Kind: tx.Kind, Count: 1, Total: magnitude}
		}

		date := at.Format("2006-01-02")
		dk := date + "/" + string(direction)
		if ds, ok := daily[dk]; ok {
			ds.Count++
			ds.Total = ds.Total.Add(magnitude)
		} else {
			daily[dk] = &ledger.DailyStat{Date: date, Direction: direction, Count: 1, Total: magnitude}
		}
	}

	stats.NetFlow.Net = stats.NetFlow.Incoming.Sub(stats.NetFlow.Outgoing)
	for _, ks := range byKind {
		stats.ByKind = append(stats.ByKind, *ks)
	}
	sort.Slice(stats.ByKind, func(i, j int) bool {
		if stats.ByKind[i].Direction != stats.ByKind[j].Direction {
			return stats.ByKind[i].Direction < stats.ByKind[j].Direction
		}
		return stats.ByKind[i].Kind < stats.ByKind[j].Kind
	})
	for _, ds := range daily {
		stats.DailyTrend = append(stats.DailyTrend, *ds)
	}
	sort.Slice(stats.DailyTrend, func(i, j int) bool {
		if stats.DailyTrend[i].Date != stats.DailyTrend[j].Date {
			return stats.DailyTrend[i].Date < stats.DailyTrend[j].Date
		}
		return stats.DailyTrend[i].Direction < stats.DailyTrend[j].Direction
	})
	return stats, nil
}

// ---- internals ----

func (s *Store) matches(tx *ledger.Transaction, f ledger.TransactionFilter) bool {
	if f.Kind != nil && tx.Kind != *f.Kind {
		return false
	}
	if f.Status != nil && tx.Status != *f.Status {
		return false
	}
	if f.From != nil && tx.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !tx.CreatedAt.Before(*f.To) {
		return false
	}
	if f.AccountNumber != nil {
		id, ok := s.data.byNumber[*f.AccountNumber]
		if !ok || !touchesAccount(tx, id) {
			return false
		}
	}
	if f.MinAmount != nil && tx.Amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && tx.Amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	return true
}

func touchesAccount(tx *ledger.Transaction, accountID uuid.UUID) bool {
	for _, e := range tx.Entries {
		if e.AccountID == accountID {
			return true
		}
	}
	return false
}

func paginate(txs []*ledger.Transaction, page ledger.Page) ([]*ledger.Transaction, int64, error) {
	sort.SliceStable(txs, func(i, j int) bool {
		var less bool
		if page.SortBy == "amount" {
			if !txs[i].Amount.Equal(txs[j].Amount) {
				less = txs[i].Amount.LessThan(txs[j].Amount)
			} else {
				less = strings.Compare(txs[i].TransactionID, txs[j].TransactionID) < 0
			}
		} else {
			if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
				less = txs[i].CreatedAt.Before(txs[j].CreatedAt)
			} else {
				less = strings.Compare(txs[i].TransactionID, txs[j].TransactionID) < 0
			}
		}
		if page.SortDesc {
			return !less
		}
		return less
	})

	total := int64(len(txs))
	start := page.Offset()
	if start >= len(txs) {
		return nil, total, nil
	}
	end := start + page.Limit
	if end > len(txs) {
		end = len(txs)
	}
	return txs[start:end], total, nil
}

func completedAt(tx *ledger.Transaction) time.Time {
	if tx.ProcessedAt != nil {
		return *tx.ProcessedAt
	}
	return tx.CreatedAt
}

func inWindow(at time.Time, w ledger.Window) bool {
	if w.From != nil && at.Before(*w.From) {
		return false
	}
	if w.To != nil && !at.Before(*w.To) {
		return false
	}
	return true
}

func copyAccount(a *ledger.Account) *ledger.Account {
	c := *a
	if a.Metadata != nil {
		c.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func copyBalance(b *ledger.Balance) *ledger.Balance {
	c := *b
	return &c
}

func copyTransaction(t *ledger.Transaction) *ledger.Transaction {
	c := *t
	c.Entries = make([]ledger.Entry, len(t.Entries))
	copy(c.Entries, t.Entries)
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	if t.Reference != nil {
		r := *t.Reference
		c.Reference = &r
	}
	if t.FromAccount != nil {
		v := *t.FromAccount
		c.FromAccount = &v
	}
	if t.ToAccount != nil {
		v := *t.ToAccount
		c.ToAccount = &v
	}
	if t.FailureReason != nil {
		v := *t.FailureReason
		c.FailureReason = &v
	}
	if t.ProcessedAt != nil {
		v := *t.ProcessedAt
		c.ProcessedAt = &v
	}
	return &c
}
