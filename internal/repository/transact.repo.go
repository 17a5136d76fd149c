package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queen-doris/admin-application/internal/domain"
	"github.com/queen-doris/admin-application/pkg/id"
	"github.com/queen-doris/admin-application/pkg/xerrors"
)

const defaultListLimit = 50

type TransactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const txColumns = `id, account_id, type, amount, status, failure_reason, description, created_at, updated_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := row.Scan(
		&tx.ID, &tx.AccountID, &tx.Type, &tx.Amount, &tx.Status,
		&tx.FailureReason, &tx.Description, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Append inserts a new transaction in pending state.
func (r *TransactionRepository) Append(ctx context.Context, accountID string, txType domain.TxType, amount int64, description *string) (*domain.Transaction, error) {
	query := `
		INSERT INTO transactions (id, account_id, type, amount, status, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, NOW(), NOW())
		RETURNING ` + txColumns

	tx, err := scanTransaction(r.db.QueryRow(ctx, query,
		id.Generate("txn"), accountID, txType, amount, description))
	if err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	return tx, nil
}

// SetTerminal moves a pending transaction to its final status. The status
// predicate in the UPDATE is what enforces terminal immutability.
func (r *TransactionRepository) SetTerminal(ctx context.Context, txID string, status domain.TxStatus, reason *string) (*domain.Transaction, error) {
	if !status.Terminal() {
		return nil, xerrors.ErrInvalidTransition
	}

	query := `
		UPDATE transactions
		SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + txColumns

	tx, err := scanTransaction(r.db.QueryRow(ctx, query, txID, status, reason))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, txID); getErr != nil {
			return nil, getErr
		}
		return nil, xerrors.ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("set terminal: %w", err)
	}
	return tx, nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(r.db.QueryRow(ctx, query, txID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListByAccount returns an account's transactions, newest first.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, rng ListRange) ([]*domain.Transaction, error) {
	if rng.Limit <= 0 {
		rng.Limit = defaultListLimit
	}

	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, accountID, rng.Limit, rng.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Aggregate computes the dashboard stats in one round trip.
func (r *TransactionRepository) Aggregate(ctx context.Context) (*domain.Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(amount) FILTER (WHERE type = 'deposit' AND status = 'completed'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'withdrawal' AND status = 'completed'), 0),
			COUNT(*) FILTER (WHERE status = 'pending')
		FROM transactions`

	var s domain.Stats
	err := r.db.QueryRow(ctx, query).Scan(
		&s.TotalTransactions, &s.TotalDeposits, &s.TotalWithdrawals, &s.PendingTransactions,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate transactions: %w", err)
	}
	return &s, nil
}

func (r *TransactionRepository) ListStalePending(ctx context.Context, cutoff time.Time) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *TransactionRepository) CompletedNet(ctx context.Context, accountID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN type = 'deposit' THEN amount ELSE -amount END), 0)
		FROM transactions
		WHERE account_id = $1 AND status = 'completed'`

	var net int64
	if err := r.db.QueryRow(ctx, query, accountID).Scan(&net); err != nil {
		return 0, fmt.Errorf("completed net: %w", err)
	}
	return net, nil
}
