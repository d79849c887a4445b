package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arrears-recon/internal/clients"
	"arrears-recon/internal/domain"
	"arrears-recon/internal/extraction"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
)

const (
	msgExtracting  = "Sedang mengekstrak data via AI..."
	msgReadFailed  = "Gagal baca berkas."
	msgRateLimited = "Limit API terlampaui."
	msgFailed      = "Gagal memproses berkas."
	msgNoData      = "Tidak ada data valid."
)

func msgSuccess(rows int) string {
	return fmt.Sprintf("Berhasil. Mendapatkan %d baris.", rows)
}

// Source is one uploaded document. Open is called once, when the document's
// turn in the batch comes.
type Source struct {
	Name      string
	MediaType string
	Open      func() ([]byte, error)
}

type BatchResult struct {
	Total     int                 `json:"total"`
	Processed int                 `json:"processed"`
	Succeeded int                 `json:"succeeded"`
	Empty     int                 `json:"empty"`
	Failed    int                 `json:"failed"`
	Rows      int                 `json:"rows"`
	Cancelled bool                `json:"cancelled"`
	Logs      []domain.ProcessLog `json:"logs"`
}

type Archiver interface {
	ArchiveSource(ctx context.Context, name, contentType string, data []byte) (string, error)
}

type IngestNotifier interface {
	NotifyIngestProgress(ctx context.Context, p clients.IngestProgress) error
	NotifyLogUpdate(ctx context.Context, entry domain.ProcessLog) error
}

// Ingestor runs uploaded documents through extraction one at a time and
// commits each document's records before moving on.
type Ingestor struct {
	mu sync.Mutex

	ledger    *Ledger
	extractor extraction.Extractor
	archiver  Archiver
	notifier  IngestNotifier
	logger    *logrus.Logger
	now       func() time.Time
}

func NewIngestor(
	ledger *Ledger,
	extractor extraction.Extractor,
	archiver Archiver,
	notifier IngestNotifier,
	logger *logrus.Logger,
) *Ingestor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Ingestor{
		ledger:    ledger,
		extractor: extractor,
		archiver:  archiver,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Process handles the batch sequentially. A failing document never stops the
// batch; cancelling ctx stops before the next document. A second batch waits
// for the first to finish.
func (s *Ingestor) Process(ctx context.Context, sources []Source) BatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := BatchResult{Total: len(sources), Logs: []domain.ProcessLog{}}

	for i, src := range sources {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		entry, rows := s.processOne(ctx, src)
		result.Processed++
		result.Rows += rows
		result.Logs = append(result.Logs, entry)

		switch entry.Status {
		case domain.StatusSuccess:
			result.Succeeded++
		case domain.StatusEmpty:
			result.Empty++
		default:
			result.Failed++
		}

		s.notifyProgress(ctx, clients.IngestProgress{
			Index:    i + 1,
			Total:    len(sources),
			FileName: src.Name,
			Status:   entry.Status,
			Message:  entry.Message,
			Rows:     rows,
		})
	}

	s.logger.WithFields(logrus.Fields{
		"module":    "ingest",
		"total":     result.Total,
		"succeeded": result.Succeeded,
		"empty":     result.Empty,
		"failed":    result.Failed,
		"rows":      result.Rows,
	}).Info("batch finished")

	return result
}

func (s *Ingestor) processOne(ctx context.Context, src Source) (domain.ProcessLog, int) {
	log := s.logger.WithFields(logrus.Fields{"module": "ingest", "source": src.Name})

	s.setStatus(ctx, src.Name, domain.StatusProcessing, msgExtracting)

	data, err := src.Open()
	if err != nil {
		log.WithField("status", domain.StatusError).Errorf("read failed: %v", err)
		return s.setStatus(ctx, src.Name, domain.StatusError, msgReadFailed), 0
	}

	mediaType := src.MediaType
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = mimetype.Detect(data).String()
	}

	s.archive(ctx, src.Name, mediaType, data)

	cfg := s.ledger.YearConfig()
	items, err := s.extractor.Extract(ctx, extraction.Document{
		Name:      src.Name,
		MediaType: mediaType,
		Data:      data,
	}, cfg)
	if err != nil {
		msg := msgFailed
		if extraction.IsRateLimited(err) {
			msg = msgRateLimited
		}
		log.WithField("status", domain.StatusError).Errorf("extraction failed: %v", err)
		return s.setStatus(ctx, src.Name, domain.StatusError, msg), 0
	}

	if len(items) == 0 {
		log.WithField("status", domain.StatusEmpty).Info("no records extracted")
		return s.setStatus(ctx, src.Name, domain.StatusEmpty, msgNoData), 0
	}

	records := extraction.Normalize(items, cfg, s.now())
	if _, err := s.ledger.AppendRecords(ctx, records); err != nil {
		// records are kept in memory; only the write-back failed
		log.Errorf("failed to persist records: %v", err)
	}

	log.WithFields(logrus.Fields{"status": domain.StatusSuccess, "rows": len(records)}).Info("document processed")
	return s.setStatus(ctx, src.Name, domain.StatusSuccess, msgSuccess(len(records))), len(records)
}

func (s *Ingestor) setStatus(ctx context.Context, name string, status domain.ProcessStatus, msg string) domain.ProcessLog {
	entry, err := s.ledger.UpsertLog(ctx, name, status, msg)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"module": "ingest", "source": name}).Errorf("failed to persist log: %v", err)
	}
	if s.notifier != nil {
		_ = s.notifier.NotifyLogUpdate(ctx, entry)
	}
	return entry
}

func (s *Ingestor) archive(ctx context.Context, name, mediaType string, data []byte) {
	if s.archiver == nil {
		return
	}
	key, err := s.archiver.ArchiveSource(ctx, name, mediaType, data)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"module": "ingest", "source": name}).Warnf("archive failed: %v", err)
		return
	}
	s.logger.WithFields(logrus.Fields{"module": "ingest", "source": name, "key": key}).Debug("source archived")
}

func (s *Ingestor) notifyProgress(ctx context.Context, p clients.IngestProgress) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.NotifyIngestProgress(ctx, p)
}
