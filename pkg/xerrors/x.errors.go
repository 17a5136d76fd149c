package xerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Accounts
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists for owner")
	ErrVersionConflict = errors.New("account version conflict")
)

// Transactions
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidTransition   = errors.New("transaction already terminal")
	ErrInvalidAmount       = errors.New("amount must be greater than 0")
	ErrAmountTooLarge      = errors.New("amount exceeds the allowed maximum")
	ErrInvalidTxType       = errors.New("transaction type must be deposit or withdrawal")
)

// Sessions / auth
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrTokenInvalid    = errors.New("invalid or expired token")
	ErrNotVerified     = errors.New("account not verified")
)

// PGUniqueViolation is the Postgres error code for unique_violation.
const PGUniqueViolation = "23505"

func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return "unknown"
}
