package rest

import "net/http"

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	Success(w, "", h.ledger.Logs())
}

func (h *Handler) deleteLogs(w http.ResponseWriter, r *http.Request) {
	req, err := ValidateIDsRequest(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	n, err := h.ledger.DeleteLogs(r.Context(), req.IDs)
	if err != nil {
		h.log().Errorf("deleteLogs error: %v", err)
		ErrorInternal(w, "failed to delete logs")
		return
	}
	Success(w, "Log berhasil dihapus", map[string]int{"deleted": n})
}
