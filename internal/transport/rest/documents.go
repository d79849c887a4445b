package rest

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"arrears-recon/internal/service"
)

func (h *Handler) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorPayloadTooLarge(w, "upload too large")
			return
		}
		ErrorBadRequest(w, "multipart form expected")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := append(r.MultipartForm.File["files[]"], r.MultipartForm.File["files"]...)
	if len(files) == 0 {
		ErrorBadRequest(w, "files is required")
		return
	}

	sources := make([]service.Source, 0, len(files))
	for _, fh := range files {
		sources = append(sources, service.Source{
			Name:      fh.Filename,
			MediaType: fh.Header.Get("Content-Type"),
			Open:      readPart(fh),
		})
	}

	res := h.ingestor.Process(r.Context(), sources)
	Success(w, "", res)
}

func readPart(fh *multipart.FileHeader) func() ([]byte, error) {
	return func() ([]byte, error) {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}
}
