package rest

import (
	"errors"
	"net/http"

	"arrears-recon/internal/domain"
	"arrears-recon/internal/reconcile"
	"arrears-recon/internal/service"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	Success(w, "", h.ledger.Records(r.URL.Query().Get("q")))
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.ledger.Record(chi.URLParam(r, "id"))
	if err != nil {
		ErrorNotFound(w, "record not found")
		return
	}
	Success(w, "", rec)
}

func (h *Handler) recordCells(w http.ResponseWriter, r *http.Request) {
	rec, err := h.ledger.Record(chi.URLParam(r, "id"))
	if err != nil {
		ErrorNotFound(w, "record not found")
		return
	}
	Success(w, "", reconcile.ClassifyRow(rec, h.ledger.YearConfig()))
}

func (h *Handler) editRecord(w http.ResponseWriter, r *http.Request) {
	edit, err := ValidateEditRequest(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	rec, err := h.ledger.EditRecord(r.Context(), chi.URLParam(r, "id"), edit)
	switch {
	case err == nil:
		Success(w, "Data berhasil diperbarui", rec)
	case errors.Is(err, service.ErrNotFound):
		ErrorNotFound(w, "record not found")
	case errors.Is(err, service.ErrEmptyName),
		errors.Is(err, service.ErrEmptyTaxID),
		errors.Is(err, service.ErrYearOutRange):
		ErrorBadRequest(w, err.Error())
	default:
		h.log().Errorf("editRecord error: %v", err)
		ErrorInternal(w, "failed to save record")
	}
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	h.removeRecords(w, r, []string{chi.URLParam(r, "id")}, true)
}

func (h *Handler) deleteRecords(w http.ResponseWriter, r *http.Request) {
	req, err := ValidateIDsRequest(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	h.removeRecords(w, r, req.IDs, false)
}

func (h *Handler) removeRecords(w http.ResponseWriter, r *http.Request, ids []string, single bool) {
	n, err := h.ledger.DeleteRecords(r.Context(), ids)
	if err != nil {
		h.log().Errorf("deleteRecords error: %v", err)
		ErrorInternal(w, "failed to delete records")
		return
	}
	if single && n == 0 {
		ErrorNotFound(w, "record not found")
		return
	}
	Success(w, "Data berhasil dihapus", map[string]int{"deleted": n})
}

func (h *Handler) selectAll(w http.ResponseWriter, r *http.Request) {
	req, err := ValidateSearchRequest(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	Success(w, "", map[string][]string{"ids": h.ledger.SelectAll(req.Query)})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	s := h.ledger.Summary()
	Success(w, "", summaryResponse{
		ValidationSummary: s,
		YearConfig:        h.ledger.YearConfig(),
	})
}

type summaryResponse struct {
	domain.ValidationSummary
	YearConfig domain.YearConfig `json:"yearConfig"`
}
