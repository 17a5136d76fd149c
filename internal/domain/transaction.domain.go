package domain

import "time"

type TxType string

const (
	TxDeposit    TxType = "deposit"
	TxWithdrawal TxType = "withdrawal"
)

func (t TxType) Valid() bool {
	return t == TxDeposit || t == TxWithdrawal
}

type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
	TxFailed    TxStatus = "failed"
)

// Terminal reports whether the status can never change again.
func (s TxStatus) Terminal() bool {
	return s == TxCompleted || s == TxFailed
}

// Transaction is one attempted deposit or withdrawal. Amount is always
// positive, in minor units; the type carries the sign. A transaction is
// created pending and moves exactly once to completed or failed.
type Transaction struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id"`
	Type          TxType    `json:"type"`
	Amount        int64     `json:"amount"`
	Status        TxStatus  `json:"status"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	Description   *string   `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Signed returns the delta this transaction applies to a balance.
func (t *Transaction) Signed() int64 {
	if t.Type == TxWithdrawal {
		return -t.Amount
	}
	return t.Amount
}

// Stats is the dashboard aggregate over the transaction log. Deposit and
// withdrawal totals only count completed transactions.
type Stats struct {
	TotalTransactions   int64 `json:"total_transactions"`
	TotalDeposits       int64 `json:"total_deposits"`
	TotalWithdrawals    int64 `json:"total_withdrawals"`
	PendingTransactions int64 `json:"pending_transactions"`
}
