package repository

import (
	"context"
	"time"

	"github.com/queen-doris/admin-application/internal/domain"
)

// AccountStore owns account records. ApplyDelta is the only legal way to
// change a balance anywhere in the service.
type AccountStore interface {
	Create(ctx context.Context, ownerName string) (*domain.Account, error)
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// ApplyDelta atomically writes balance += delta and version++ if the
	// stored version still equals expectedVersion; otherwise it returns
	// xerrors.ErrVersionConflict without mutating anything.
	ApplyDelta(ctx context.Context, id string, delta int64, expectedVersion int64) (*domain.Account, error)
}

// ListRange bounds a transaction listing. Zero Limit means the store
// default page size.
type ListRange struct {
	Limit  int
	Offset int
}

// TransactionLog is the append-only record of every attempted transaction.
type TransactionLog interface {
	Append(ctx context.Context, accountID string, txType domain.TxType, amount int64, description *string) (*domain.Transaction, error)

	// SetTerminal moves a pending transaction to completed or failed.
	// Returns xerrors.ErrInvalidTransition if it is already terminal.
	SetTerminal(ctx context.Context, id string, status domain.TxStatus, reason *string) (*domain.Transaction, error)

	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListByAccount(ctx context.Context, accountID string, r ListRange) ([]*domain.Transaction, error)
	Aggregate(ctx context.Context) (*domain.Stats, error)

	// ListStalePending returns pending transactions older than cutoff,
	// oldest first. Feeds the reconciliation sweep.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]*domain.Transaction, error)

	// CompletedNet returns completed deposits minus completed withdrawals
	// for one account.
	CompletedNet(ctx context.Context, accountID string) (int64, error)
}

var (
	_ AccountStore   = (*AccountRepository)(nil)
	_ AccountStore   = (*MemoryAccountStore)(nil)
	_ TransactionLog = (*TransactionRepository)(nil)
	_ TransactionLog = (*MemoryTransactionLog)(nil)
)
