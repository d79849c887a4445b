package rest

import (
	"errors"
	"net/http"

	"arrears-recon/internal/domain"
)

func (h *Handler) getYearConfig(w http.ResponseWriter, r *http.Request) {
	Success(w, "", h.ledger.YearConfig())
}

func (h *Handler) setYearConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := ValidateYearConfigRequest(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	if err := h.ledger.SetYearConfig(r.Context(), cfg); err != nil {
		if errors.Is(err, domain.ErrInvalidYearRange) {
			ErrorBadRequest(w, err.Error())
			return
		}
		h.log().Errorf("setYearConfig error: %v", err)
		ErrorInternal(w, "failed to save settings")
		return
	}
	Success(w, "Pengaturan tahun disimpan", h.ledger.YearConfig())
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Reset(r.Context()); err != nil {
		h.log().Errorf("reset error: %v", err)
		ErrorInternal(w, "failed to reset")
		return
	}
	Success(w, "Seluruh data telah dihapus", nil)
}
