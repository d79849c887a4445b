package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"arrears-recon/internal/domain"
	"arrears-recon/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type LedgerService interface {
	Records(term string) []domain.ArrearsRecord
	Record(id string) (domain.ArrearsRecord, error)
	EditRecord(ctx context.Context, id string, edit service.RecordEdit) (domain.ArrearsRecord, error)
	DeleteRecords(ctx context.Context, ids []string) (int, error)
	SelectAll(term string) []string
	Logs() []domain.ProcessLog
	DeleteLogs(ctx context.Context, ids []string) (int, error)
	YearConfig() domain.YearConfig
	SetYearConfig(ctx context.Context, cfg domain.YearConfig) error
	Reset(ctx context.Context) error
	Summary() domain.ValidationSummary
}

type DocumentIngestor interface {
	Process(ctx context.Context, sources []service.Source) service.BatchResult
}

type LedgerExporter interface {
	Export(ctx context.Context, term string) (service.ExportResult, error)
	StartExport(term string) string
}

type Handler struct {
	ledger   LedgerService
	ingestor DocumentIngestor
	exporter LedgerExporter
	logger   *logrus.Logger

	maxUploadBytes int64
}

func NewHandler(ledger LedgerService, ingestor DocumentIngestor, exporter LedgerExporter, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		ledger:         ledger,
		ingestor:       ingestor,
		exporter:       exporter,
		logger:         logger,
		maxUploadBytes: 64 << 20,
	}
}

func (h *Handler) InitRouter() *chi.Mux {
	return h.InitRouterWithAuth(nil)
}

func (h *Handler) InitRouterWithAuth(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	if authMiddleware != nil {
		r.Use(authMiddleware)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "arrears-recon")
	})

	// extraction retries back off for up to a minute per document, so a
	// batch upload has no request timeout
	r.Post("/documents", h.uploadDocuments)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/records", func(r chi.Router) {
			r.Get("/", h.listRecords)
			r.Post("/delete", h.deleteRecords)
			r.Post("/select-all", h.selectAll)
			r.Get("/{id}", h.getRecord)
			r.Put("/{id}", h.editRecord)
			r.Delete("/{id}", h.deleteRecord)
			r.Get("/{id}/cells", h.recordCells)
		})

		r.Route("/logs", func(r chi.Router) {
			r.Get("/", h.listLogs)
			r.Post("/delete", h.deleteLogs)
		})

		r.Get("/summary", h.summary)

		r.Route("/settings/years", func(r chi.Router) {
			r.Get("/", h.getYearConfig)
			r.Put("/", h.setYearConfig)
		})

		r.Route("/export", func(r chi.Router) {
			r.Post("/", h.export)
			r.Post("/async", h.exportAsync)
		})

		r.Post("/reset", h.reset)
	})

	return r
}

func (h *Handler) log() *logrus.Entry {
	return h.logger.WithField("module", "http")
}

// badRequest answers a decode or validation failure.
func badRequest(w http.ResponseWriter, err error) {
	if _, ok := err.(*ValidationError); ok {
		ErrorBadRequest(w, err.Error())
		return
	}
	ErrorBadRequest(w, "invalid JSON")
}
