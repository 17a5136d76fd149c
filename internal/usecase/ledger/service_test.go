package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/queen-doris/admin-application/internal/domain"
	"github.com/queen-doris/admin-application/internal/repository"
	"github.com/queen-doris/admin-application/pkg/xerrors"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *repository.MemoryAccountStore, *repository.MemoryTransactionLog) {
	t.Helper()
	accounts := repository.NewMemoryAccountStore()
	txLog := repository.NewMemoryTransactionLog()
	return New(accounts, txLog, zap.NewNop(), opts...), accounts, txLog
}

func fund(t *testing.T, s *Service, accountID string, amount int64) {
	t.Helper()
	tx, err := s.Submit(context.Background(), accountID, domain.TxDeposit, amount, nil)
	require.NoError(t, err)
	require.Equal(t, domain.TxCompleted, tx.Status)
}

func TestSubmitDeposit(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	acc, err := s.CreateAccount(ctx, "alice")
	require.NoError(t, err)
	require.EqualValues(t, 0, acc.Balance)

	tx, err := s.Submit(ctx, acc.ID, domain.TxDeposit, 100_000, nil)
	require.NoError(t, err)
	require.Equal(t, domain.TxCompleted, tx.Status)
	require.Nil(t, tx.FailureReason)

	got, err := s.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.EqualValues(t, 100_000, got.Balance)
	require.EqualValues(t, 1, got.Version)
}

func TestSubmitWithdrawalCompleted(t *testing.T) {
	// Balance 1000.00, withdraw 200.00 -> completed, balance 800.00.
	s, _, _ := newTestService(t)
	ctx := context.Background()

	acc, _ := s.CreateAccount(ctx, "alice")
	fund(t, s, acc.ID, 100_000)

	tx, err := s.Submit(ctx, acc.ID, domain.TxWithdrawal, 20_000, nil)
	require.NoError(t, err)
	require.Equal(t, domain.TxCompleted, tx.Status)

	got, _ := s.GetAccount(ctx, acc.ID)
	require.EqualValues(t, 80_000, got.Balance)
}

func TestSubmitWithdrawalInsufficientBalance(t *testing.T) {
	// Balance 50.00, withdraw 200.00 -> failed record, balance untouched.
	s, _, _ := newTestService(t)
	ctx := context.Background()

	acc, _ := s.CreateAccount(ctx, "bob")
	fund(t, s, acc.ID, 5_000)

	tx, err := s.Submit(ctx, acc.ID, domain.TxWithdrawal, 20_000, nil)
	require.NoError(t, err)
	require.Equal(t, domain.TxFailed, tx.Status)
	require.NotNil(t, tx.FailureReason)
	require.Equal(t, ReasonInsufficientBalance, *tx.FailureReason)

	got, _ := s.GetAccount(ctx, acc.ID)
	require.EqualValues(t, 5_000, got.Balance)
}

func TestSubmitValidation(t *testing.T) {
	s, _, txLog := newTestService(t)
	ctx := context.Background()

	acc, _ := s.CreateAccount(ctx, "carol")

	cases := []struct {
		name   string
		txType domain.TxType
		amount int64
		want   error
	}{
		{"zero amount", domain.TxDeposit, 0, xerrors.ErrInvalidAmount},
		{"negative amount", domain.TxDeposit, -5_000, xerrors.ErrInvalidAmount},
		{"over ceiling", domain.TxDeposit, DefaultMaxAmount + 1, xerrors.ErrAmountTooLarge},
		{"bad type", domain.TxType("transfer"), 1_000, xerrors.ErrInvalidTxType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Submit(ctx, acc.ID, tc.txType, tc.amount, nil)
			require.ErrorIs(t, err, tc.want)
		})
	}

	// Rejected input leaves no audit trail.
	txs, err := txLog.ListByAccount(ctx, acc.ID, repository.ListRange{})
	require.NoError(t, err)
	require.Empty(t, txs)

	// The ceiling itself is accepted.
	tx, err := s.Submit(ctx, acc.ID, domain.TxDeposit, DefaultMaxAmount, nil)
	require.NoError(t, err)
	require.Equal(t, domain.TxCompleted, tx.Status)
}

func TestSubmitUnknownAccount(t *testing.T) {
	s, _, txLog := newTestService(t)

	_, err := s.Submit(context.Background(), "acc_missing", domain.TxDeposit, 1_000, nil)
	require.ErrorIs(t, err, xerrors.ErrAccountNotFound)

	stats, err := txLog.Aggregate(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.TotalTransactions)
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	// Balance 1000.00, two concurrent 600.00 withdrawals: exactly one
	// completes and the balance ends at 400.00.
	s, _, _ := newTestService(t)
	ctx := context.Background()

	acc, _ := s.CreateAccount(ctx, "dave")
	fund(t, s, acc.ID, 100_000)

	const workers = 2
	results := make([]*domain.Transaction, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := s.Submit(ctx, acc.ID, domain.TxWithdrawal, 60_000, nil)
			require.NoError(t, err)
			results[i] = tx
		}(i)
	}
	wg.Wait()

	var completed, failed int
	for _, tx := range results {
		switch tx.Status {
		case domain.TxCompleted:
			completed++
		case domain.TxFailed:
			failed++
			require.Equal(t, ReasonInsufficientBalance, *tx.FailureReason)
		}
	}
	require.Equal(t, 1, completed)
	require.Equal(t, 1, failed)

	got, _ := s.GetAccount(ctx, acc.ID)
	require.EqualValues(t, 40_000, got.Balance)
}

func TestConcurrentMixedLoadKeepsInvariant(t *testing.T) {
	// Hammer one account with mixed deposits and withdrawals and check
	// balance == completed deposits - completed withdrawals, never < 0.
	s, accounts, txLog := newTestService(t)
	ctx := context.Background()

	acc, _ := s.CreateAccount(ctx, "erin")
	fund(t, s, acc.ID, 50_000)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txType := domain.TxDeposit
			if i%2 == 0 {
				txType = domain.TxWithdrawal
			}
			_, err := s.Submit(ctx, acc.ID, txType, int64(1_000+i*100), nil)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := accounts.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, got.Balance, int64(0))

	net, err := txLog.CompletedNet(ctx, acc.ID)
	require.NoError(t, err)
	require.Equal(t, net, got.Balance)
}

func TestDifferentAccountsDoNotInterfere(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	a, _ := s.CreateAccount(ctx, "a")
	b, _ := s.CreateAccount(ctx, "b")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(accountID string) {
			defer wg.Done()
			_, err := s.Submit(ctx, accountID, domain.TxDeposit, 1_000, nil)
			require.NoError(t, err)
		}([]string{a.ID, b.ID}[i%2])
	}
	wg.Wait()

	gotA, _ := s.GetAccount(ctx, a.ID)
	gotB, _ := s.GetAccount(ctx, b.ID)
	require.EqualValues(t, 10_000, gotA.Balance)
	require.EqualValues(t, 10_000, gotB.Balance)
}

// conflictingStore wraps the memory store and forces the first n
// ApplyDelta calls to lose the version race.
type conflictingStore struct {
	*repository.MemoryAccountStore
	mu        sync.Mutex
	conflicts int
}

func (c *conflictingStore) ApplyDelta(ctx context.Context, id string, delta int64, expectedVersion int64) (*domain.Account, error) {
	c.mu.Lock()
	inject := c.conflicts > 0
	if inject {
		c.conflicts--
	}
	c.mu.Unlock()

	if inject {
		// Another writer bumps the version out from under the caller.
		if _, err := c.MemoryAccountStore.ApplyDelta(ctx, id, 0, expectedVersion); err != nil {
			return nil, err
		}
		return nil, xerrors.ErrVersionConflict
	}
	return c.MemoryAccountStore.ApplyDelta(ctx, id, delta, expectedVersion)
}

func TestSubmitRetriesOnVersionConflict(t *testing.T) {
	accounts := &conflictingStore{MemoryAccountStore: repository.NewMemoryAccountStore(), conflicts: 3}
	txLog := repository.NewMemoryTransactionLog()
	s := New(accounts, txLog, zap.NewNop())
	ctx := context.Background()

	acc, err := accounts.Create(ctx, "frank")
	require.NoError(t, err)

	tx, err := s.Submit(ctx, acc.ID, domain.TxDeposit, 10_000, nil)
	require.NoError(t, err)
	require.Equal(t, domain.TxCompleted, tx.Status)

	got, _ := accounts.GetByID(ctx, acc.ID)
	require.EqualValues(t, 10_000, got.Balance)
}

func TestSubmitFailsAfterRetriesExhausted(t *testing.T) {
	accounts := &conflictingStore{MemoryAccountStore: repository.NewMemoryAccountStore(), conflicts: 100}
	txLog := repository.NewMemoryTransactionLog()
	s := New(accounts, txLog, zap.NewNop(), WithMaxRetries(3))
	ctx := context.Background()

	acc, err := accounts.Create(ctx, "grace")
	require.NoError(t, err)

	tx, err := s.Submit(ctx, acc.ID, domain.TxDeposit, 10_000, nil)
	require.NoError(t, err)
	require.Equal(t, domain.TxFailed, tx.Status)
	require.Equal(t, ReasonConflictExhausted, *tx.FailureReason)
}

func TestStatsReflectOutcomes(t *testing.T) {
	s, _, txLog := newTestService(t)
	ctx := context.Background()

	acc, _ := s.CreateAccount(ctx, "heidi")

	// One completed deposit, one completed withdrawal, one failed
	// withdrawal, and one rejected submit that leaves no record.
	fund(t, s, acc.ID, 100_000)
	_, _ = s.Submit(ctx, acc.ID, domain.TxWithdrawal, 20_000, nil)
	_, _ = s.Submit(ctx, acc.ID, domain.TxWithdrawal, 500_000, nil)
	_, err := s.Submit(ctx, acc.ID, domain.TxDeposit, -5_000, nil)
	require.ErrorIs(t, err, xerrors.ErrInvalidAmount)

	stats, err := txLog.Aggregate(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.TotalTransactions)
	require.EqualValues(t, 100_000, stats.TotalDeposits)
	require.EqualValues(t, 20_000, stats.TotalWithdrawals)
	require.EqualValues(t, 0, stats.PendingTransactions)
}

func TestListByAccountNewestFirst(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	acc, _ := s.CreateAccount(ctx, "ivan")
	fund(t, s, acc.ID, 10_000)
	fund(t, s, acc.ID, 20_000)
	fund(t, s, acc.ID, 30_000)

	txs, err := s.ListByAccount(ctx, acc.ID, repository.ListRange{})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	require.EqualValues(t, 30_000, txs[0].Amount)
	require.EqualValues(t, 10_000, txs[2].Amount)

	_, err = s.ListByAccount(ctx, "acc_missing", repository.ListRange{})
	require.ErrorIs(t, err, xerrors.ErrAccountNotFound)
}
