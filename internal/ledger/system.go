package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/money"
)

type systemKey struct {
	purpose  SystemPurpose
	currency money.Currency
}

// SystemRouter resolves the engine-owned counter-party account for a
// purpose and currency, creating it lazily on first use. Creation runs in
// its own commit scope so a later rollback of the caller's operation never
// unwinds a cached account.
type SystemRouter struct {
	repo    Repository
	ownerID uuid.UUID

	mu    sync.Mutex
	cache map[systemKey]*Account
}

// NewSystemRouter creates a router owned by the reserved system user.
func NewSystemRouter(repo Repository, ownerID uuid.UUID) *SystemRouter {
	return &SystemRouter{
		repo:    repo,
		ownerID: ownerID,
		cache:   make(map[systemKey]*Account),
	}
}

// Account returns the SYSTEM account for the purpose and currency.
func (r *SystemRouter) Account(ctx context.Context, purpose SystemPurpose, currency money.Currency) (*Account, error) {
	key := systemKey{purpose: purpose, currency: currency}

	r.mu.Lock()
	defer r.mu.Unlock()

	if acc, ok := r.cache[key]; ok {
		return acc, nil
	}

	acc, err := r.resolve(ctx, purpose, currency)
	if err != nil {
		return nil, err
	}
	r.cache[key] = acc
	return acc, nil
}

func (r *SystemRouter) resolve(ctx context.Context, purpose SystemPurpose, currency money.Currency) (*Account, error) {
	now := time.Now()
	candidate := &Account{
		ID:            uuid.New(),
		AccountNumber: MintAccountNumber(),
		OwnerID:       r.ownerID,
		Kind:          AccountKindSystem,
		Currency:      currency,
		Active:        true,
		Metadata:      map[string]any{MetadataKeyPurpose: string(purpose)},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	txCtx, err := r.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin system account tx: %w", err)
	}

	acc, created, err := r.repo.GetOrCreateSystemAccount(txCtx, candidate, purpose)
	if err != nil {
		_ = r.repo.RollbackTx(txCtx)
		return nil, fmt.Errorf("resolve system account %s/%s: %w", purpose, currency, err)
	}
	if created {
		balance := &Balance{
			AccountID:   acc.ID,
			Currency:    currency,
			Amount:      money.Zero(),
			LastUpdated: now,
		}
		if err := r.repo.InitBalance(txCtx, balance); err != nil {
			_ = r.repo.RollbackTx(txCtx)
			return nil, fmt.Errorf("init system balance %s/%s: %w", purpose, currency, err)
		}
	}
	if err := r.repo.CommitTx(txCtx); err != nil {
		return nil, fmt.Errorf("commit system account tx: %w", err)
	}

	return acc, nil
}
