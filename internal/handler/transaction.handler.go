package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/queen-doris/admin-application/internal/domain"
	"github.com/queen-doris/admin-application/internal/middleware"
	"github.com/queen-doris/admin-application/internal/repository"
	"github.com/queen-doris/admin-application/internal/usecase/ledger"
	"github.com/queen-doris/admin-application/pkg/response"
	"github.com/queen-doris/admin-application/pkg/xerrors"
)

// callerMayAccess enforces account ownership: admins may act on any
// account, clients only on the account their token is bound to.
func callerMayAccess(r *http.Request, accountID string) bool {
	role, _ := r.Context().Value(middleware.ContextRole).(string)
	if role == middleware.RoleAdmin {
		return true
	}
	own, _ := r.Context().Value(middleware.ContextAccountID).(string)
	return own != "" && own == accountID
}

// SubmitTransactionHandler accepts a deposit or withdrawal request.
// Business failures still return 201 with the failed record; the outcome
// lives in the transaction, not the HTTP status.
func SubmitTransactionHandler(uc *ledger.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type requestBody struct {
			AccountID   string  `json:"account_id"`
			Type        string  `json:"type"`
			Amount      *int64  `json:"amount"`
			Description *string `json:"description,omitempty"`
		}

		var body requestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if body.AccountID == "" {
			response.Error(w, http.StatusBadRequest, "Missing account_id")
			return
		}
		if body.Amount == nil {
			response.Error(w, http.StatusBadRequest, "Missing amount")
			return
		}
		if !callerMayAccess(r, body.AccountID) {
			response.Error(w, http.StatusForbidden, "Account access denied")
			return
		}

		tx, err := uc.Submit(r.Context(), body.AccountID, domain.TxType(body.Type), *body.Amount, body.Description)
		if err != nil {
			writeLedgerError(w, err)
			return
		}

		response.JSON(w, http.StatusCreated, tx)
	}
}

func GetTransactionHandler(uc *ledger.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txID := chi.URLParam(r, "id")
		if txID == "" {
			response.Error(w, http.StatusBadRequest, "Missing transaction ID")
			return
		}

		tx, err := uc.GetTransaction(r.Context(), txID)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		if !callerMayAccess(r, tx.AccountID) {
			response.Error(w, http.StatusForbidden, "Account access denied")
			return
		}
		response.JSON(w, http.StatusOK, tx)
	}
}

func ListTransactionsHandler(uc *ledger.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := chi.URLParam(r, "accountID")
		if accountID == "" {
			response.Error(w, http.StatusBadRequest, "Missing account ID")
			return
		}
		if !callerMayAccess(r, accountID) {
			response.Error(w, http.StatusForbidden, "Account access denied")
			return
		}

		rng := repository.ListRange{
			Limit:  queryInt(r, "limit"),
			Offset: queryInt(r, "offset"),
		}

		txs, err := uc.ListByAccount(r.Context(), accountID, rng)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, map[string]interface{}{
			"account_id":   accountID,
			"transactions": txs,
		})
	}
}

func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}

func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, xerrors.ErrAccountNotFound),
		errors.Is(err, xerrors.ErrTransactionNotFound):
		response.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, xerrors.ErrInvalidAmount),
		errors.Is(err, xerrors.ErrAmountTooLarge),
		errors.Is(err, xerrors.ErrInvalidTxType):
		response.Error(w, http.StatusBadRequest, err.Error())
	default:
		response.Error(w, http.StatusInternalServerError, "Internal server error")
	}
}
