package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queen-doris/admin-application/internal/domain"
	"github.com/queen-doris/admin-application/pkg/id"
	"github.com/queen-doris/admin-application/pkg/xerrors"
)

type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account with a zero balance. One account per
// owner; the unique index on owner_name backs that up.
func (r *AccountRepository) Create(ctx context.Context, ownerName string) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (id, owner_name, balance, version, created_at, updated_at)
		VALUES ($1, $2, 0, 0, NOW(), NOW())
		RETURNING id, owner_name, balance, version, created_at, updated_at`

	var acc domain.Account
	err := r.db.QueryRow(ctx, query, id.Generate("acc"), ownerName).Scan(
		&acc.ID, &acc.OwnerName, &acc.Balance, &acc.Version, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		if xerrors.ParsePGErrorCode(err) == xerrors.PGUniqueViolation {
			return nil, xerrors.ErrAccountExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return &acc, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, accountID string) (*domain.Account, error) {
	query := `SELECT id, owner_name, balance, version, created_at, updated_at
			  FROM accounts WHERE id = $1`

	var acc domain.Account
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&acc.ID, &acc.OwnerName, &acc.Balance, &acc.Version, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// ApplyDelta is the compare-and-swap balance write. The version predicate
// makes the read-modify-write indivisible: if another writer got in first
// the UPDATE matches no row and the caller must re-read and retry.
func (r *AccountRepository) ApplyDelta(ctx context.Context, accountID string, delta int64, expectedVersion int64) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
		RETURNING id, owner_name, balance, version, created_at, updated_at`

	var acc domain.Account
	err := r.db.QueryRow(ctx, query, delta, accountID, expectedVersion).Scan(
		&acc.ID, &acc.OwnerName, &acc.Balance, &acc.Version, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the account vanished or the version moved. Distinguish so
		// callers never retry against a deleted account.
		if _, getErr := r.GetByID(ctx, accountID); getErr != nil {
			return nil, getErr
		}
		return nil, xerrors.ErrVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("apply delta: %w", err)
	}
	return &acc, nil
}
