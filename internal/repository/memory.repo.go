package repository

import (
	"context"
	"sync"
	"time"

	"github.com/queen-doris/admin-application/internal/domain"
	"github.com/queen-doris/admin-application/pkg/id"
	"github.com/queen-doris/admin-application/pkg/xerrors"
)

// In-memory stores backing tests and local development. They honor the
// same contracts as the Postgres repositories, in particular the
// version compare-and-swap in ApplyDelta and terminal immutability in
// SetTerminal.

type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[string]*domain.Account)}
}

func (s *MemoryAccountStore) Create(_ context.Context, ownerName string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.OwnerName == ownerName {
			return nil, xerrors.ErrAccountExists
		}
	}

	now := time.Now().UTC()
	acc := &domain.Account{
		ID:        id.Generate("acc"),
		OwnerName: ownerName,
		Balance:   0,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.accounts[acc.ID] = acc

	cp := *acc
	return &cp, nil
}

func (s *MemoryAccountStore) GetByID(_ context.Context, accountID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, xerrors.ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

func (s *MemoryAccountStore) ApplyDelta(_ context.Context, accountID string, delta int64, expectedVersion int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, xerrors.ErrAccountNotFound
	}
	if acc.Version != expectedVersion {
		return nil, xerrors.ErrVersionConflict
	}

	acc.Balance += delta
	acc.Version++
	acc.UpdatedAt = time.Now().UTC()

	cp := *acc
	return &cp, nil
}

type MemoryTransactionLog struct {
	mu  sync.RWMutex
	txs map[string]*domain.Transaction
	seq []string // append order, for stable listing
}

func NewMemoryTransactionLog() *MemoryTransactionLog {
	return &MemoryTransactionLog{txs: make(map[string]*domain.Transaction)}
}

func (l *MemoryTransactionLog) Append(_ context.Context, accountID string, txType domain.TxType, amount int64, description *string) (*domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	tx := &domain.Transaction{
		ID:          id.Generate("txn"),
		AccountID:   accountID,
		Type:        txType,
		Amount:      amount,
		Status:      domain.TxPending,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	l.txs[tx.ID] = tx
	l.seq = append(l.seq, tx.ID)

	cp := *tx
	return &cp, nil
}

func (l *MemoryTransactionLog) SetTerminal(_ context.Context, txID string, status domain.TxStatus, reason *string) (*domain.Transaction, error) {
	if !status.Terminal() {
		return nil, xerrors.ErrInvalidTransition
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.txs[txID]
	if !ok {
		return nil, xerrors.ErrTransactionNotFound
	}
	if tx.Status.Terminal() {
		return nil, xerrors.ErrInvalidTransition
	}

	tx.Status = status
	tx.FailureReason = reason
	tx.UpdatedAt = time.Now().UTC()

	cp := *tx
	return &cp, nil
}

func (l *MemoryTransactionLog) GetByID(_ context.Context, txID string) (*domain.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tx, ok := l.txs[txID]
	if !ok {
		return nil, xerrors.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (l *MemoryTransactionLog) ListByAccount(_ context.Context, accountID string, rng ListRange) ([]*domain.Transaction, error) {
	if rng.Limit <= 0 {
		rng.Limit = defaultListLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []*domain.Transaction
	for _, txID := range l.seq {
		tx := l.txs[txID]
		if tx.AccountID == accountID {
			cp := *tx
			matched = append(matched, &cp)
		}
	}

	// Newest first; seq is append order, so reversing it is enough.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}

	if rng.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[rng.Offset:]
	if len(matched) > rng.Limit {
		matched = matched[:rng.Limit]
	}
	return matched, nil
}

func (l *MemoryTransactionLog) Aggregate(_ context.Context) (*domain.Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var s domain.Stats
	for _, tx := range l.txs {
		s.TotalTransactions++
		switch {
		case tx.Status == domain.TxPending:
			s.PendingTransactions++
		case tx.Status == domain.TxCompleted && tx.Type == domain.TxDeposit:
			s.TotalDeposits += tx.Amount
		case tx.Status == domain.TxCompleted && tx.Type == domain.TxWithdrawal:
			s.TotalWithdrawals += tx.Amount
		}
	}
	return &s, nil
}

func (l *MemoryTransactionLog) ListStalePending(_ context.Context, cutoff time.Time) ([]*domain.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.Transaction
	for _, txID := range l.seq {
		tx := l.txs[txID]
		if tx.Status == domain.TxPending && tx.CreatedAt.Before(cutoff) {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *MemoryTransactionLog) CompletedNet(_ context.Context, accountID string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var net int64
	for _, tx := range l.txs {
		if tx.AccountID == accountID && tx.Status == domain.TxCompleted {
			net += tx.Signed()
		}
	}
	return net, nil
}
