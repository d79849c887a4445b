package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arrears-recon/internal/clients"
	"arrears-recon/internal/domain"
	"arrears-recon/internal/reconcile"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const (
	exportSheet    = "Piutang"
	exportTitle    = "Laporan Piutang PBB-P2"
	exportURLTTL   = 48 * time.Hour
	headerRow      = 4
	firstDataRow   = headerRow + 1
	fixedLeadCols  = 3 // No, Nama, NOP
	absentCellText = "-"
)

var ErrNoExportTarget = errors.New("no export storage configured")

type ExportNotifier interface {
	NotifyExportComplete(ctx context.Context, exportID, url, filename string) error
	NotifyExportFailed(ctx context.Context, exportID, errMsg string) error
}

type ExportResult struct {
	ID       string `json:"id"`
	FileName string `json:"filename"`
	URL      string `json:"url"`
	Rows     int    `json:"rows"`
}

// ExportService renders the ledger as a colour-coded workbook and publishes it
// to S3 when configured, local storage otherwise.
type ExportService struct {
	ledger  *Ledger
	storage *clients.StorageClient
	s3      *clients.S3Client
	ws      ExportNotifier
	logger  *logrus.Logger
	now     func() time.Time
}

func NewExportService(
	ledger *Ledger,
	storage *clients.StorageClient,
	s3 *clients.S3Client,
	ws ExportNotifier,
	logger *logrus.Logger,
) *ExportService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ExportService{
		ledger:  ledger,
		storage: storage,
		s3:      s3,
		ws:      ws,
		logger:  logger,
		now:     time.Now,
	}
}

func ExportFileName(t time.Time) string {
	return fmt.Sprintf("Data_Piutang_Export_%s.xlsx", t.Format("2006-01-02"))
}

// Export builds the workbook for the records matching term and publishes it.
func (s *ExportService) Export(ctx context.Context, term string) (ExportResult, error) {
	return s.run(ctx, "exp_"+uuid.NewString(), term)
}

// StartExport runs the export in the background and reports the outcome over
// the websocket feed. It returns the export id straight away.
func (s *ExportService) StartExport(term string) string {
	exportID := "exp_" + uuid.NewString()
	go func() {
		_, _ = s.run(context.Background(), exportID, term)
	}()
	return exportID
}

func (s *ExportService) run(ctx context.Context, exportID, term string) (ExportResult, error) {
	log := s.logger.WithFields(logrus.Fields{"module": "export", "export_id": exportID})

	records, cfg := s.ledger.Snapshot(term)
	now := s.now()

	data, err := Build(records, cfg, now)
	if err != nil {
		log.Errorf("build failed: %v", err)
		s.notifyFailed(ctx, exportID, err)
		return ExportResult{}, err
	}

	fileName := ExportFileName(now)
	url, err := s.Publish(ctx, fileName, data)
	if err != nil {
		log.Errorf("publish failed: %v", err)
		s.notifyFailed(ctx, exportID, err)
		return ExportResult{}, err
	}

	if s.ws != nil {
		_ = s.ws.NotifyExportComplete(ctx, exportID, url, fileName)
	}
	log.WithField("rows", len(records)).Info("export ready")

	return ExportResult{ID: exportID, FileName: fileName, URL: url, Rows: len(records)}, nil
}

func (s *ExportService) notifyFailed(ctx context.Context, exportID string, err error) {
	if s.ws != nil {
		_ = s.ws.NotifyExportFailed(ctx, exportID, err.Error())
	}
}

// Publish stores the workbook and returns the URL it can be downloaded from.
func (s *ExportService) Publish(ctx context.Context, fileName string, data []byte) (string, error) {
	if s.s3 != nil {
		key, err := s.s3.UploadXLSX(ctx, fileName, data)
		if err != nil {
			return "", err
		}
		return s.s3.GetTemporaryURL(ctx, key, exportURLTTL)
	}

	if s.storage != nil {
		stored, err := s.storage.Save(ctx, fileName, data)
		if err != nil {
			return "", err
		}
		return s.storage.GetURL(stored), nil
	}

	return "", ErrNoExportTarget
}

type exportStyles struct {
	title, subtitle, header, headerTotal int
	text, mono, index                    int
	outstanding, preFiling, paid, total  int
}

func borderAll(color string) []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: color, Style: 1},
		{Type: "right", Color: color, Style: 1},
		{Type: "top", Color: color, Style: 1},
		{Type: "bottom", Color: color, Style: 1},
	}
}

func fill(color string) excelize.Fill {
	return excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}
}

func newExportStyles(f *excelize.File) (exportStyles, error) {
	var st exportStyles
	border := borderAll("#CBD5E1")
	right := &excelize.Alignment{Horizontal: "right", Vertical: "center"}

	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&st.title, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 14, Color: "#1E293B"}}},
		{&st.subtitle, &excelize.Style{Font: &excelize.Font{Size: 10, Color: "#64748B"}}},
		{&st.header, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
			Fill:      fill("#065F46"),
			Border:    border,
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		}},
		{&st.headerTotal, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
			Fill:      fill("#064E3B"),
			Border:    border,
			Alignment: right,
		}},
		{&st.text, &excelize.Style{Font: &excelize.Font{Bold: true}, Border: border}},
		{&st.mono, &excelize.Style{Font: &excelize.Font{Family: "Consolas"}, Border: border}},
		{&st.index, &excelize.Style{Border: border, Alignment: &excelize.Alignment{Horizontal: "center"}}},
		{&st.outstanding, &excelize.Style{Border: border, Alignment: right, NumFmt: 3}},
		{&st.preFiling, &excelize.Style{
			Font:      &excelize.Font{Color: "#166534"},
			Fill:      fill("#DCFCE7"),
			Border:    border,
			Alignment: right,
			NumFmt:    3,
		}},
		{&st.paid, &excelize.Style{
			Font:      &excelize.Font{Color: "#991B1B"},
			Fill:      fill("#FEE2E2"),
			Border:    border,
			Alignment: right,
			NumFmt:    3,
		}},
		{&st.total, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Color: "#047857"},
			Fill:      fill("#F8FAFC"),
			Border:    border,
			Alignment: right,
			NumFmt:    3,
		}},
	}

	for _, d := range defs {
		id, err := f.NewStyle(d.style)
		if err != nil {
			return st, err
		}
		*d.dst = id
	}
	return st, nil
}

func (st exportStyles) forClass(c domain.CellClass) int {
	switch c {
	case domain.CellPreFiling:
		return st.preFiling
	case domain.CellPaid:
		return st.paid
	default:
		return st.outstanding
	}
}

// Build renders records, in the given order, over every year of cfg.
func Build(records []domain.ArrearsRecord, cfg domain.YearConfig, exportedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, err
	}
	_ = f.SetDocProps(&excelize.DocProperties{
		Title:   exportTitle,
		Creator: "arrears-recon",
	})

	st, err := newExportStyles(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create styles: %w", err)
	}

	years := cfg.Years()
	lastCol := fixedLeadCols + len(years) + 1
	cell := func(col, row int) string {
		name, _ := excelize.CoordinatesToCellName(col, row)
		return name
	}

	_ = f.SetCellValue(exportSheet, "A1", exportTitle)
	_ = f.MergeCell(exportSheet, "A1", cell(lastCol, 1))
	_ = f.SetCellStyle(exportSheet, "A1", "A1", st.title)
	_ = f.SetCellValue(exportSheet, "A2", "Tanggal Ekspor: "+exportedAt.Format("02/01/2006 15.04.05"))
	_ = f.SetCellStyle(exportSheet, "A2", "A2", st.subtitle)

	headers := []string{"No", "Nama Wajib Pajak", "NOP"}
	for _, y := range years {
		headers = append(headers, fmt.Sprintf("%d", y))
	}
	headers = append(headers, "Total Piutang")
	for i, h := range headers {
		_ = f.SetCellValue(exportSheet, cell(i+1, headerRow), h)
	}
	_ = f.SetCellStyle(exportSheet, cell(1, headerRow), cell(lastCol-1, headerRow), st.header)
	_ = f.SetCellStyle(exportSheet, cell(lastCol, headerRow), cell(lastCol, headerRow), st.headerTotal)

	for i, r := range records {
		row := firstDataRow + i

		_ = f.SetCellValue(exportSheet, cell(1, row), i+1)
		_ = f.SetCellStyle(exportSheet, cell(1, row), cell(1, row), st.index)
		_ = f.SetCellValue(exportSheet, cell(2, row), r.TaxpayerName)
		_ = f.SetCellStyle(exportSheet, cell(2, row), cell(2, row), st.text)
		_ = f.SetCellValue(exportSheet, cell(3, row), r.TaxObjectID)
		_ = f.SetCellStyle(exportSheet, cell(3, row), cell(3, row), st.mono)

		for j, c := range reconcile.ClassifyRow(r, cfg) {
			ref := cell(fixedLeadCols+1+j, row)
			if v := r.Arrears[c.Year]; v.Valid {
				_ = f.SetCellValue(exportSheet, ref, v.Decimal.InexactFloat64())
			} else {
				_ = f.SetCellValue(exportSheet, ref, absentCellText)
			}
			_ = f.SetCellStyle(exportSheet, ref, ref, st.forClass(c.Class))
		}

		totalRef := cell(lastCol, row)
		_ = f.SetCellValue(exportSheet, totalRef, r.Total.InexactFloat64())
		_ = f.SetCellStyle(exportSheet, totalRef, totalRef, st.total)
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 6)
	_ = f.SetColWidth(exportSheet, "B", "B", 32)
	_ = f.SetColWidth(exportSheet, "C", "C", 28)
	if len(years) > 0 {
		first, _ := excelize.ColumnNumberToName(fixedLeadCols + 1)
		last, _ := excelize.ColumnNumberToName(fixedLeadCols + len(years))
		_ = f.SetColWidth(exportSheet, first, last, 12)
	}
	totalCol, _ := excelize.ColumnNumberToName(lastCol)
	_ = f.SetColWidth(exportSheet, totalCol, totalCol, 16)

	_ = f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      fixedLeadCols,
		YSplit:      headerRow,
		TopLeftCell: cell(fixedLeadCols+1, firstDataRow),
		ActivePane:  "bottomRight",
	})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
