package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/queen-doris/admin-application/internal/usecase/ledger"
	"github.com/queen-doris/admin-application/pkg/response"
	"github.com/queen-doris/admin-application/pkg/xerrors"
)

func CreateAccountHandler(uc *ledger.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type requestBody struct {
			OwnerName string `json:"owner_name"`
		}

		var body requestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if body.OwnerName == "" {
			response.Error(w, http.StatusBadRequest, "Missing owner_name")
			return
		}

		acc, err := uc.CreateAccount(r.Context(), body.OwnerName)
		if err != nil {
			if errors.Is(err, xerrors.ErrAccountExists) {
				response.Error(w, http.StatusConflict, err.Error())
				return
			}
			response.Error(w, http.StatusInternalServerError, "Failed to create account")
			return
		}
		response.Message(w, http.StatusCreated, "Account created", acc)
	}
}

func GetAccountHandler(uc *ledger.Service) http.HandlerFunc {
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

		acc, err := uc.GetAccount(r.Context(), accountID)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, acc)
	}
}
