package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"arrears-recon/internal/clients"
	"arrears-recon/internal/domain"
	"arrears-recon/internal/extraction"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type extractFunc func(ctx context.Context, doc extraction.Document, cfg domain.YearConfig) ([]extraction.RawItem, error)

func (f extractFunc) Extract(ctx context.Context, doc extraction.Document, cfg domain.YearConfig) ([]extraction.RawItem, error) {
	return f(ctx, doc, cfg)
}

type recordingNotifier struct {
	mu       sync.Mutex
	progress []clients.IngestProgress
	updates  []domain.ProcessLog
}

func (n *recordingNotifier) NotifyIngestProgress(_ context.Context, p clients.IngestProgress) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, p)
	return nil
}

func (n *recordingNotifier) NotifyLogUpdate(_ context.Context, entry domain.ProcessLog) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, entry)
	return nil
}

type archiveCall struct{ name, contentType string }

type recordingArchiver struct {
	calls []archiveCall
	err   error
}

func (a *recordingArchiver) ArchiveSource(_ context.Context, name, contentType string, _ []byte) (string, error) {
	a.calls = append(a.calls, archiveCall{name, contentType})
	return "sources/" + name, a.err
}

func bytesSource(name, mediaType string, data []byte) Source {
	return Source{Name: name, MediaType: mediaType, Open: func() ([]byte, error) { return data, nil }}
}

func rawItem(name, nop string, year int, amount int64) extraction.RawItem {
	item := extraction.RawItem{Name: &name, TaxObjectID: &nop}
	item.Arrears = []extraction.RawArrear{{
		Year:   extraction.FlexInt{Value: year, Valid: true},
		Amount: extraction.FlexAmount{NullDecimal: domain.AmountFromInt(amount)},
	}}
	return item
}

func TestProcessBatchWithFailures(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	notifier := &recordingNotifier{}

	extractor := extractFunc(func(_ context.Context, doc extraction.Document, _ domain.YearConfig) ([]extraction.RawItem, error) {
		switch doc.Name {
		case "a.pdf":
			return []extraction.RawItem{
				rawItem("Budi", "14.06.001", 2021, 100),
				rawItem("Sari", "14.06.002", 2022, 0),
			}, nil
		case "c.jpg":
			return []extraction.RawItem{}, nil
		}
		return nil, fmt.Errorf("unexpected document %s", doc.Name)
	})

	ing := NewIngestor(l, extractor, nil, notifier, nil)
	res := ing.Process(ctx, []Source{
		bytesSource("a.pdf", "application/pdf", []byte("%PDF-1.4")),
		{Name: "b.png", MediaType: "image/png", Open: func() ([]byte, error) { return nil, errors.New("eof") }},
		bytesSource("c.jpg", "image/jpeg", []byte{0xff, 0xd8, 0xff}),
	})

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Empty)
	assert.Equal(t, 2, res.Rows)
	assert.False(t, res.Cancelled)

	logs := l.Logs()
	require.Len(t, logs, 3)
	byName := map[string]domain.ProcessLog{}
	for _, e := range logs {
		byName[e.SourceName] = e
	}
	assert.Equal(t, domain.StatusSuccess, byName["a.pdf"].Status)
	assert.Equal(t, "Berhasil. Mendapatkan 2 baris.", byName["a.pdf"].Message)
	assert.Equal(t, domain.StatusError, byName["b.png"].Status)
	assert.Equal(t, "Gagal baca berkas.", byName["b.png"].Message)
	assert.Equal(t, domain.StatusEmpty, byName["c.jpg"].Status)
	assert.Equal(t, "Tidak ada data valid.", byName["c.jpg"].Message)

	records := l.Records("")
	require.Len(t, records, 2)
	assert.Equal(t, "Budi", records[0].TaxpayerName)
	assert.NotEmpty(t, records[0].ID)
	assert.True(t, records[0].Total.Equal(decimal.NewFromInt(100)))
	assert.Len(t, records[0].Arrears, 4)

	require.Len(t, notifier.progress, 3)
	assert.Equal(t, 1, notifier.progress[0].Index)
	assert.Equal(t, 2, notifier.progress[0].Rows)
	assert.Equal(t, domain.StatusError, notifier.progress[1].Status)

	// processing + terminal status per document
	assert.Len(t, notifier.updates, 6)
	assert.Equal(t, domain.StatusProcessing, notifier.updates[0].Status)
	assert.Equal(t, "Sedang mengekstrak data via AI...", notifier.updates[0].Message)
}

func TestProcessExtractionErrors(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	extractor := extractFunc(func(_ context.Context, doc extraction.Document, _ domain.YearConfig) ([]extraction.RawItem, error) {
		if doc.Name == "quota.pdf" {
			return nil, fmt.Errorf("giving up: %w", &extraction.APIError{StatusCode: 429, Body: "RESOURCE_EXHAUSTED"})
		}
		if doc.Name == "busy.pdf" {
			return nil, fmt.Errorf("giving up: %w", &extraction.APIError{StatusCode: 503, Body: "overloaded"})
		}
		return nil, errors.New("bad response")
	})

	res := NewIngestor(l, extractor, nil, nil, nil).Process(ctx, []Source{
		bytesSource("quota.pdf", "application/pdf", []byte("x")),
		bytesSource("broken.pdf", "application/pdf", []byte("x")),
		bytesSource("busy.pdf", "application/pdf", []byte("x")),
	})
	assert.Equal(t, 3, res.Failed)
	assert.Empty(t, l.Records(""))

	quota, ok := l.logs.Get("quota.pdf")
	require.True(t, ok)
	assert.Equal(t, "Limit API terlampaui.", quota.Message)

	broken, ok := l.logs.Get("broken.pdf")
	require.True(t, ok)
	assert.Equal(t, "Gagal memproses berkas.", broken.Message)

	busy, ok := l.logs.Get("busy.pdf")
	require.True(t, ok)
	assert.Equal(t, domain.StatusError, busy.Status)
	assert.Equal(t, "Gagal memproses berkas.", busy.Message)
}

func TestProcessSniffsMediaTypeAndArchives(t *testing.T) {
	l, _ := newTestLedger(t)
	archiver := &recordingArchiver{err: errors.New("bucket missing")}

	var seen string
	extractor := extractFunc(func(_ context.Context, doc extraction.Document, _ domain.YearConfig) ([]extraction.RawItem, error) {
		seen = doc.MediaType
		return []extraction.RawItem{rawItem("A", "1", 2020, 1)}, nil
	})

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	res := NewIngestor(l, extractor, archiver, nil, nil).Process(context.Background(), []Source{
		bytesSource("scan", "", png),
	})

	assert.Equal(t, "image/png", seen)
	assert.Equal(t, 1, res.Succeeded, "archive failure does not fail the document")
	require.Len(t, archiver.calls, 1)
	assert.Equal(t, archiveCall{"scan", "image/png"}, archiver.calls[0])
}

func TestProcessStopsWhenCancelled(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	extractor := extractFunc(func(_ context.Context, doc extraction.Document, _ domain.YearConfig) ([]extraction.RawItem, error) {
		calls++
		cancel()
		return []extraction.RawItem{rawItem("A", "1", 2020, 1)}, nil
	})

	res := NewIngestor(l, extractor, nil, nil, nil).Process(ctx, []Source{
		bytesSource("1.pdf", "application/pdf", []byte("x")),
		bytesSource("2.pdf", "application/pdf", []byte("x")),
	})

	assert.Equal(t, 1, calls)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, res.Processed)
	assert.Len(t, l.Records(""), 1, "committed document stays committed")
}

func TestProcessRetryingSameNameUpdatesLogInPlace(t *testing.T) {
	l, _ := newTestLedger(t)
	fail := true
	extractor := extractFunc(func(_ context.Context, _ extraction.Document, _ domain.YearConfig) ([]extraction.RawItem, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return []extraction.RawItem{rawItem("A", "1", 2020, 1)}, nil
	})
	ing := NewIngestor(l, extractor, nil, nil, nil)

	ing.Process(context.Background(), []Source{bytesSource("a.pdf", "application/pdf", []byte("x"))})
	first := l.Logs()[0]

	fail = false
	ing.Process(context.Background(), []Source{bytesSource("a.pdf", "application/pdf", []byte("x"))})

	logs := l.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, first.ID, logs[0].ID)
	assert.Equal(t, domain.StatusSuccess, logs[0].Status)
}
