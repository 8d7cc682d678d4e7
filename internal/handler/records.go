package handler

import (
	"net/http"
	"strconv"

	"propscan-api/internal/logger"
	"propscan-api/internal/repository"
	"propscan-api/pkg/apierror"
	"propscan-api/pkg/response"
)

// RecordsHandler serves the server-side copy of scan records.
type RecordsHandler struct {
	repo repository.ScanRecordRepository
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(repo repository.ScanRecordRepository) *RecordsHandler {
	return &RecordsHandler{repo: repo}
}

// List handles GET /api/v1/scan/records
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		response.Error(w, apierror.ServiceUnavailable("Scan record store unavailable"))
		return
	}

	page, limit := pageParams(r)
	records, total, err := h.repo.List(r.Context(), (page-1)*limit, limit)
	if err != nil {
		log := logger.WithComponent("RecordsHandler")
		log.Error().Err(err).Msg("Failed to list scan records")
		response.Error(w, apierror.Database("Failed to fetch scan records"))
		return
	}

	response.JSONWithMeta(w, http.StatusOK, records, page, limit, total)
}

// pageParams reads ?page and ?limit, defaulting to 1 and 20.
func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
