package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/queen-doris/admin-application/internal/domain"
	"github.com/queen-doris/admin-application/internal/repository"
)

func newTestWorker(t *testing.T) (*ReconcileWorker, *repository.MemoryAccountStore, *repository.MemoryTransactionLog) {
	t.Helper()
	accounts := repository.NewMemoryAccountStore()
	txLog := repository.NewMemoryTransactionLog()
	// maxAge 0 so everything pending is immediately stale in tests.
	w := NewReconcileWorker(accounts, txLog, zap.NewNop(), time.Minute, 0)
	return w, accounts, txLog
}

func TestSweepCompletesAppliedButUnrecorded(t *testing.T) {
	// Simulate a crash after ApplyDelta but before SetTerminal: the
	// balance moved, the record is still pending.
	w, accounts, txLog := newTestWorker(t)
	ctx := context.Background()

	acc, _ := accounts.Create(ctx, "alice")
	_, err := accounts.ApplyDelta(ctx, acc.ID, 10_000, 0)
	require.NoError(t, err)

	d, _ := txLog.Append(ctx, acc.ID, domain.TxDeposit, 10_000, nil)
	_, _ = txLog.SetTerminal(ctx, d.ID, domain.TxCompleted, nil)

	// The crashed withdrawal: delta applied, status never written.
	_, err = accounts.ApplyDelta(ctx, acc.ID, -4_000, 1)
	require.NoError(t, err)
	crashed, _ := txLog.Append(ctx, acc.ID, domain.TxWithdrawal, 4_000, nil)

	time.Sleep(time.Millisecond)
	require.NoError(t, w.SweepOnce(ctx))

	got, err := txLog.GetByID(ctx, crashed.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxCompleted, got.Status)
	require.Nil(t, got.FailureReason)

	// Invariant restored: balance matches completed net.
	net, _ := txLog.CompletedNet(ctx, acc.ID)
	accGot, _ := accounts.GetByID(ctx, acc.ID)
	require.Equal(t, net, accGot.Balance)
}

func TestSweepFailsNeverAppliedPending(t *testing.T) {
	// Crash before ApplyDelta: the balance never moved, so the stale
	// pending must fail rather than complete.
	w, accounts, txLog := newTestWorker(t)
	ctx := context.Background()

	acc, _ := accounts.Create(ctx, "bob")
	_, _ = accounts.ApplyDelta(ctx, acc.ID, 10_000, 0)
	d, _ := txLog.Append(ctx, acc.ID, domain.TxDeposit, 10_000, nil)
	_, _ = txLog.SetTerminal(ctx, d.ID, domain.TxCompleted, nil)

	crashed, _ := txLog.Append(ctx, acc.ID, domain.TxWithdrawal, 4_000, nil)

	time.Sleep(time.Millisecond)
	require.NoError(t, w.SweepOnce(ctx))

	got, _ := txLog.GetByID(ctx, crashed.ID)
	require.Equal(t, domain.TxFailed, got.Status)
	require.Equal(t, ReasonReconciliationTimeout, *got.FailureReason)

	accGot, _ := accounts.GetByID(ctx, acc.ID)
	require.EqualValues(t, 10_000, accGot.Balance)
}

func TestSweepIsIdempotent(t *testing.T) {
	w, accounts, txLog := newTestWorker(t)
	ctx := context.Background()

	acc, _ := accounts.Create(ctx, "carol")
	crashed, _ := txLog.Append(ctx, acc.ID, domain.TxDeposit, 4_000, nil)

	time.Sleep(time.Millisecond)
	require.NoError(t, w.SweepOnce(ctx))
	require.NoError(t, w.SweepOnce(ctx))

	got, _ := txLog.GetByID(ctx, crashed.ID)
	require.Equal(t, domain.TxFailed, got.Status)

	stats, _ := txLog.Aggregate(ctx)
	require.EqualValues(t, 0, stats.PendingTransactions)
}

// racingAccountStore settles a fresh deposit between the sweep's drift
// read and its terminal write, imitating a live processor racing the
// reconciler.
type racingAccountStore struct {
	inner *repository.MemoryAccountStore
	log   *repository.MemoryTransactionLog
	reads int
}

func (s *racingAccountStore) Create(ctx context.Context, ownerName string) (*domain.Account, error) {
	return s.inner.Create(ctx, ownerName)
}

func (s *racingAccountStore) ApplyDelta(ctx context.Context, accountID string, delta int64, expectedVersion int64) (*domain.Account, error) {
	return s.inner.ApplyDelta(ctx, accountID, delta, expectedVersion)
}

func (s *racingAccountStore) GetByID(ctx context.Context, accountID string) (*domain.Account, error) {
	s.reads++
	if s.reads == 2 {
		cur, err := s.inner.GetByID(ctx, accountID)
		if err == nil {
			if _, err := s.inner.ApplyDelta(ctx, accountID, 1_000, cur.Version); err == nil {
				d, _ := s.log.Append(ctx, accountID, domain.TxDeposit, 1_000, nil)
				_, _ = s.log.SetTerminal(ctx, d.ID, domain.TxCompleted, nil)
			}
		}
	}
	return s.inner.GetByID(ctx, accountID)
}

func TestSweepDefersWhenAccountAdvancesUnderneath(t *testing.T) {
	accounts := repository.NewMemoryAccountStore()
	txLog := repository.NewMemoryTransactionLog()
	racing := &racingAccountStore{inner: accounts, log: txLog}
	w := NewReconcileWorker(racing, txLog, zap.NewNop(), time.Minute, 0)
	ctx := context.Background()

	acc, _ := accounts.Create(ctx, "eve")
	_, _ = accounts.ApplyDelta(ctx, acc.ID, 10_000, 0)
	d, _ := txLog.Append(ctx, acc.ID, domain.TxDeposit, 10_000, nil)
	_, _ = txLog.SetTerminal(ctx, d.ID, domain.TxCompleted, nil)

	stranded, _ := txLog.Append(ctx, acc.ID, domain.TxWithdrawal, 4_000, nil)

	// The account advances mid-sweep, so the verdict computed from the
	// stale snapshot must not be written.
	time.Sleep(time.Millisecond)
	require.NoError(t, w.SweepOnce(ctx))
	got, _ := txLog.GetByID(ctx, stranded.ID)
	require.Equal(t, domain.TxPending, got.Status)

	// The next pass sees a quiet account and resolves it.
	require.NoError(t, w.SweepOnce(ctx))
	got, _ = txLog.GetByID(ctx, stranded.ID)
	require.Equal(t, domain.TxFailed, got.Status)
	require.Equal(t, ReasonReconciliationTimeout, *got.FailureReason)

	net, _ := txLog.CompletedNet(ctx, acc.ID)
	accGot, _ := accounts.GetByID(ctx, acc.ID)
	require.Equal(t, net, accGot.Balance)
}

func TestSweepLeavesFreshPendingAlone(t *testing.T) {
	accounts := repository.NewMemoryAccountStore()
	txLog := repository.NewMemoryTransactionLog()
	w := NewReconcileWorker(accounts, txLog, zap.NewNop(), time.Minute, time.Hour)
	ctx := context.Background()

	acc, _ := accounts.Create(ctx, "dave")
	fresh, _ := txLog.Append(ctx, acc.ID, domain.TxDeposit, 4_000, nil)

	require.NoError(t, w.SweepOnce(ctx))

	got, _ := txLog.GetByID(ctx, fresh.ID)
	require.Equal(t, domain.TxPending, got.Status)
}
