package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/ledger"
)

// Statistics aggregate COMPLETED transactions only, bucketed by the
// processing timestamp.

func windowClause(w ledger.Window, column string, argPos int) (string, []any) {
	clause := ""
	var args []any
	if w.From != nil {
		clause += fmt.Sprintf(" AND %s >= $%d", column, argPos)
		args = append(args, *w.From)
		argPos++
	}
	if w.To != nil {
		clause += fmt.Sprintf(" AND %s < $%d", column, argPos)
		args = append(args, *w.To)
	}
	return clause, args
}

// AggregateUserStats totals the user's completed transactions per
// currency, per kind, and per calendar month.
func (r *LedgerRepository) AggregateUserStats(ctx context.Context, userID uuid.UUID, window ledger.Window) (*ledger.UserStats, error) {
	q := r.getQueryer(ctx)
	stats := &ledger.UserStats{}

	where, windowArgs := windowClause(window, "processed_at", 2)
	args := append([]any{userID}, windowArgs...)

	summaryQuery := `
		SELECT currency, COUNT(*), COALESCE(SUM(amount), 0)::text
		FROM transactions
		WHERE initiator_id = $1 AND status = 'COMPLETED'` + where + `
		GROUP BY currency
		ORDER BY currency
	`
	rows, err := q.Query(ctx, summaryQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user summary: %w", mapPgError(err))
	}
	for rows.Next() {
		var cs ledger.CurrencySummary
		var totalStr string
		if err := rows.Scan(&cs.Currency, &cs.Count, &totalStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		if cs.Total, err = decimal.NewFromString(totalStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to parse summary total: %w", err)
		}
		stats.Summary = append(stats.Summary, cs)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}

	byKindQuery := `
		SELECT kind, currency, COUNT(*), COALESCE(SUM(amount), 0)::text
		FROM transactions
		WHERE initiator_id = $1 AND status = 'COMPLETED'` + where + `
		GROUP BY kind, currency
		ORDER BY kind, currency
	`
	rows, err = q.Query(ctx, byKindQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user kind stats: %w", mapPgError(err))
	}
	for rows.Next() {
		var ks ledger.KindStat
		var totalStr string
		if err := rows.Scan(&ks.Kind, &ks.Currency, &ks.Count, &totalStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan kind stat: %w", err)
		}
		if ks.Total, err = decimal.NewFromString(totalStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to parse kind total: %w", err)
		}
		stats.ByKind = append(stats.ByKind, ks)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}

	monthlyQuery := `
		SELECT EXTRACT(YEAR FROM processed_at)::int,
		       EXTRACT(MONTH FROM processed_at)::int,
		       kind, COUNT(*), COALESCE(SUM(amount), 0)::text
		FROM transactions
		WHERE initiator_id = $1 AND status = 'COMPLETED'` + where + `
		GROUP BY 1, 2, kind
		ORDER BY 1, 2, kind
	`
	rows, err = q.Query(ctx, monthlyQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly trend: %w", mapPgError(err))
	}
	for rows.Next() {
		var ms ledger.MonthlyStat
		var totalStr string
		if err := rows.Scan(&ms.Year, &ms.Month, &ms.Kind, &ms.Count, &totalStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan monthly stat: %w", err)
		}
		if ms.Total, err = decimal.NewFromString(totalStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to parse monthly total: %w", err)
		}
		stats.MonthlyTrend = append(stats.MonthlyTrend, ms)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}

	return stats, nil
}

// flowsCTE nets each completed transaction's entries against one account.
// A positive net is an incoming flow, a negative one outgoing.
const flowsCTE = `
	WITH flows AS (
		SELECT t.id, t.kind, t.processed_at,
		       SUM(CASE WHEN e.side = 'CREDIT' THEN e.amount ELSE -e.amount END) AS net
		FROM transactions t
		JOIN entries e ON e.transaction_id = t.id
		JOIN accounts a ON a.id = e.account_id
		WHERE a.account_number = $1 AND t.status = 'COMPLETED'%s
		GROUP BY t.id, t.kind, t.processed_at
		HAVING SUM(CASE WHEN e.side = 'CREDIT' THEN e.amount ELSE -e.amount END) <> 0
	)
`

// AggregateAccountStats totals completed transactions touching the
// account: net flow, per direction and kind, and per calendar day.
func (r *LedgerRepository) AggregateAccountStats(ctx context.Context, accountNumber string, window ledger.Window) (*ledger.AccountStats, error) {
	account, err := r.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}

	q := r.getQueryer(ctx)
	stats := &ledger.AccountStats{
		NetFlow: ledger.NetFlow{
			Currency: string(account.Currency),
			Incoming: decimal.Zero,
			Outgoing: decimal.Zero,
		},
	}

	where, windowArgs := windowClause(window, "t.processed_at", 2)
	args := append([]any{accountNumber}, windowArgs...)
	cte := fmt.Sprintf(flowsCTE, where)

	netQuery := cte + `
		SELECT COALESCE(SUM(CASE WHEN net > 0 THEN net ELSE 0 END), 0)::text,
		       COALESCE(SUM(CASE WHEN net < 0 THEN -net ELSE 0 END), 0)::text
		FROM flows
	`
	var incomingStr, outgoingStr string
	if err := q.QueryRow(ctx, netQuery, args...).Scan(&incomingStr, &outgoingStr); err != nil {
		return nil, fmt.Errorf("failed to query net flow: %w", mapPgError(err))
	}
	if stats.NetFlow.Incoming, err = decimal.NewFromString(incomingStr); err != nil {
		return nil, fmt.Errorf("failed to parse incoming: %w", err)
	}
	if stats.NetFlow.Outgoing, err = decimal.NewFromString(outgoingStr); err != nil {
		return nil, fmt.Errorf("failed to parse outgoing: %w", err)
	}
	stats.NetFlow.Net = stats.NetFlow.Incoming.Sub(stats.NetFlow.Outgoing)

	byKindQuery := cte + `
		SELECT CASE WHEN net > 0 THEN 'INCOMING' ELSE 'OUTGOING' END AS direction,
		       kind, COUNT(*), COALESCE(SUM(ABS(net)), 0)::text
		FROM flows
		GROUP BY 1, kind
		ORDER BY 1, kind
	`
	rows, err := q.Query(ctx, byKindQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query direction stats: %w", mapPgError(err))
	}
	for rows.Next() {
		var ks ledger.DirectionKindStat
		var totalStr string
		if err := rows.Scan(&ks.Direction, &ks.Kind, &ks.Count, &totalStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan direction stat: %w", err)
		}
		if ks.Total, err = decimal.NewFromString(totalStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to parse direction total: %w", err)
		}
		stats.ByKind = append(stats.ByKind, ks)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}

	dailyQuery := cte + `
		SELECT to_char(processed_at, 'YYYY-MM-DD') AS day,
		       CASE WHEN net > 0 THEN 'INCOMING' ELSE 'OUTGOING' END AS direction,
		       COUNT(*), COALESCE(SUM(ABS(net)), 0)::text
		FROM flows
		GROUP BY 1, 2
		ORDER BY 1, 2
	`
	rows, err = q.Query(ctx, dailyQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily trend: %w", mapPgError(err))
	}
	for rows.Next() {
		var ds ledger.DailyStat
		var totalStr string
		if err := rows.Scan(&ds.Date, &ds.Direction, &ds.Count, &totalStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		if ds.Total, err = decimal.NewFromString(totalStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to parse daily total: %w", err)
		}
		stats.DailyTrend = append(stats.DailyTrend, ds)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}

	return stats, nil
}
