package ledger

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/queen-doris/admin-application/internal/domain"
	"github.com/queen-doris/admin-application/internal/repository"
	"github.com/queen-doris/admin-application/pkg/xerrors"
)

const (
	// DefaultMaxAmount is the per-transaction ceiling in minor units
	// ($1,000,000.00).
	DefaultMaxAmount int64 = 100_000_000

	// DefaultMaxRetries bounds the CAS retry loop in Submit.
	DefaultMaxRetries = 5

	ReasonInsufficientBalance = "insufficient balance"
	ReasonConflictExhausted   = "concurrent update conflict"
)

// Service is the ledger processor: it validates a submit request, appends
// the audit record, and applies the balance change under per-account
// serialization with bounded optimistic retries.
type Service struct {
	accounts   repository.AccountStore
	log        repository.TransactionLog
	guard      *AccountGuard
	logger     *zap.Logger
	maxAmount  int64
	maxRetries int
}

type Option func(*Service)

func WithMaxAmount(max int64) Option {
	return func(s *Service) { s.maxAmount = max }
}

func WithMaxRetries(n int) Option {
	return func(s *Service) { s.maxRetries = n }
}

func New(accounts repository.AccountStore, log repository.TransactionLog, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		accounts:   accounts,
		log:        log,
		guard:      NewAccountGuard(),
		logger:     logger,
		maxAmount:  DefaultMaxAmount,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit processes one deposit or withdrawal against an account.
//
// Validation and existence failures return an error and leave no record.
// Business failures (insufficient balance, retry exhaustion) come back as
// a failed transaction with a reason, never as a bare error: the audit
// trail has to explain every rejected withdrawal. Once the pending record
// is appended the attempt always reaches a terminal state, even if the
// caller has gone away.
func (s *Service) Submit(ctx context.Context, accountID string, txType domain.TxType, amount int64, description *string) (*domain.Transaction, error) {
	if !txType.Valid() {
		return nil, xerrors.ErrInvalidTxType
	}
	if amount <= 0 {
		return nil, xerrors.ErrInvalidAmount
	}
	if amount > s.maxAmount {
		return nil, xerrors.ErrAmountTooLarge
	}

	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	tx, err := s.log.Append(ctx, accountID, txType, amount, description)
	if err != nil {
		return nil, err
	}

	// From here on the attempt must reach a terminal state even if the
	// caller gives up, so settlement ignores the request's cancellation.
	sctx := context.WithoutCancel(ctx)

	var result *domain.Transaction
	err = s.guard.WithAccountLock(accountID, func() error {
		result, err = s.settle(sctx, tx)
		return err
	})
	if err != nil {
		// Infrastructure failure mid-settlement. The record stays pending
		// and the reconciliation sweep will pick it up.
		s.logger.Error("settlement aborted, transaction left pending",
			zap.String("transaction_id", tx.ID),
			zap.String("account_id", accountID),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

// settle applies the balance change for one pending transaction and
// records the outcome. Runs under the account lock.
func (s *Service) settle(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		acc, err := s.accounts.GetByID(ctx, tx.AccountID)
		if err != nil {
			return nil, err
		}

		if tx.Type == domain.TxWithdrawal && tx.Amount > acc.Balance {
			return s.fail(ctx, tx.ID, ReasonInsufficientBalance)
		}

		_, err = s.accounts.ApplyDelta(ctx, tx.AccountID, tx.Signed(), acc.Version)
		if errors.Is(err, xerrors.ErrVersionConflict) {
			s.logger.Debug("version conflict, retrying",
				zap.String("transaction_id", tx.ID),
				zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}

		return s.log.SetTerminal(ctx, tx.ID, domain.TxCompleted, nil)
	}

	s.logger.Warn("retries exhausted",
		zap.String("transaction_id", tx.ID),
		zap.String("account_id", tx.AccountID),
		zap.Int("max_retries", s.maxRetries))
	return s.fail(ctx, tx.ID, ReasonConflictExhausted)
}

func (s *Service) fail(ctx context.Context, txID, reason string) (*domain.Transaction, error) {
	return s.log.SetTerminal(ctx, txID, domain.TxFailed, &reason)
}

func (s *Service) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	return s.log.GetByID(ctx, txID)
}

func (s *Service) ListByAccount(ctx context.Context, accountID string, rng repository.ListRange) ([]*domain.Transaction, error) {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.log.ListByAccount(ctx, accountID, rng)
}

func (s *Service) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.accounts.GetByID(ctx, accountID)
}

func (s *Service) CreateAccount(ctx context.Context, ownerName string) (*domain.Account, error) {
	return s.accounts.Create(ctx, ownerName)
}
