package handler

import (
	"net/http"

	"github.com/queen-doris/admin-application/internal/usecase/report"
	"github.com/queen-doris/admin-application/pkg/response"
)

func StatsHandler(uc *report.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := uc.GetStats(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "Failed to compute stats")
			return
		}
		response.JSON(w, http.StatusOK, stats)
	}
}
