package rest

import (
	"net/http"
)

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	req, err := ValidateSearchRequest(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	res, err := h.exporter.Export(r.Context(), req.Query)
	if err != nil {
		h.log().Errorf("export error: %v", err)
		ErrorInternal(w, "failed to export")
		return
	}
	Success(w, "Ekspor selesai", res)
}

func (h *Handler) exportAsync(w http.ResponseWriter, r *http.Request) {
	req, err := ValidateSearchRequest(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	SuccessAccepted(w, "Ekspor sedang diproses", map[string]string{
		"export_id": h.exporter.StartExport(req.Query),
	})
}
