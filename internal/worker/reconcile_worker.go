package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/queen-doris/admin-application/internal/domain"
	"github.com/queen-doris/admin-application/internal/repository"
	"github.com/queen-doris/admin-application/pkg/xerrors"
)

const ReasonReconciliationTimeout = "reconciliation timeout"

// ReconcileWorker resolves transactions stranded in pending by a crash
// between the balance write and the status write.
//
// For each account with stale pendings it compares the stored balance
// against the net of completed transactions. A drift equal to a stale
// pending's signed amount means that delta was applied but never
// recorded, so the record is completed; every other stale pending never
// touched the balance and is failed. At most one in-doubt transaction can
// exist per account because settlement is serialized per account, which
// is what makes this resolution unambiguous.
type ReconcileWorker struct {
	accounts repository.AccountStore
	log      repository.TransactionLog
	logger   *zap.Logger
	interval time.Duration
	maxAge   time.Duration
	stopChan chan struct{}
}

func NewReconcileWorker(
	accounts repository.AccountStore,
	log repository.TransactionLog,
	logger *zap.Logger,
	interval, maxAge time.Duration,
) *ReconcileWorker {
	return &ReconcileWorker{
		accounts: accounts,
		log:      log,
		logger:   logger,
		interval: interval,
		maxAge:   maxAge,
		stopChan: make(chan struct{}),
	}
}

func (w *ReconcileWorker) Start(ctx context.Context) {
	w.logger.Info("starting reconciliation worker",
		zap.Duration("interval", w.interval),
		zap.Duration("max_age", w.maxAge))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.SweepOnce(ctx); err != nil {
				w.logger.Error("reconciliation sweep failed", zap.Error(err))
			}

		case <-w.stopChan:
			w.logger.Info("stopping reconciliation worker")
			return

		case <-ctx.Done():
			w.logger.Info("context cancelled, stopping reconciliation worker")
			return
		}
	}
}

func (w *ReconcileWorker) Stop() {
	close(w.stopChan)
}

// SweepOnce runs a single reconciliation pass. Exported so operators can
// trigger it out of band and tests can drive it directly.
func (w *ReconcileWorker) SweepOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-w.maxAge)
	stale, err := w.log.ListStalePending(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	byAccount := make(map[string][]*domain.Transaction)
	for _, tx := range stale {
		byAccount[tx.AccountID] = append(byAccount[tx.AccountID], tx)
	}

	for accountID, txs := range byAccount {
		if err := w.reconcileAccount(ctx, accountID, txs); err != nil {
			w.logger.Error("account reconciliation failed",
				zap.String("account_id", accountID),
				zap.Error(err))
		}
	}
	return nil
}

func (w *ReconcileWorker) reconcileAccount(ctx context.Context, accountID string, stale []*domain.Transaction) error {
	acc, err := w.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	net, err := w.log.CompletedNet(ctx, accountID)
	if err != nil {
		return err
	}
	drift := acc.Balance - net

	for _, tx := range stale {
		var status domain.TxStatus
		var reason *string

		if drift != 0 && tx.Signed() == drift {
			// The balance already reflects this transaction; only the
			// outcome record is missing.
			status = domain.TxCompleted
			drift = 0
		} else {
			status = domain.TxFailed
			r := ReasonReconciliationTimeout
			reason = &r
		}

		// The drift was computed against a snapshot. If a live settle
		// advanced the account since, the verdict may be wrong; leave the
		// rest for the next sweep.
		cur, err := w.accounts.GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		if cur.Version != acc.Version {
			w.logger.Info("account advanced during reconciliation, deferring",
				zap.String("account_id", accountID))
			return nil
		}

		if _, err := w.log.SetTerminal(ctx, tx.ID, status, reason); err != nil {
			// A concurrent settle may have finished it first; that is the
			// outcome we wanted anyway.
			if errors.Is(err, xerrors.ErrInvalidTransition) {
				continue
			}
			return err
		}
		w.logger.Info("reconciled stale pending transaction",
			zap.String("transaction_id", tx.ID),
			zap.String("account_id", accountID),
			zap.String("status", string(status)))
	}
	return nil
}
