package extraction

import (
	"strings"
	"time"
	"unicode"

	"arrears-recon/internal/domain"
)

const (
	DefaultName        = "Tanpa Nama"
	DefaultTaxObjectID = "00.00.000.000.000-0000.0"
)

// Normalize maps raw extracted items onto canonical records bounded by cfg.
// IDs are left empty for the caller to assign.
func Normalize(items []RawItem, cfg domain.YearConfig, now time.Time) []domain.ArrearsRecord {
	records := make([]domain.ArrearsRecord, 0, len(items))
	for _, item := range items {
		records = append(records, normalizeItem(item, cfg, now))
	}
	return records
}

func normalizeItem(item RawItem, cfg domain.YearConfig, now time.Time) domain.ArrearsRecord {
	name := DefaultName
	if item.Name != nil && strings.TrimSpace(*item.Name) != "" {
		name = strings.TrimSpace(*item.Name)
	}

	nop := DefaultTaxObjectID
	if item.TaxObjectID != nil {
		if stripped := StripSpaces(*item.TaxObjectID); stripped != "" {
			nop = stripped
		}
	}

	arrears := domain.NewArrears(cfg)
	for _, a := range item.Arrears {
		if !a.Year.Valid || !cfg.Contains(a.Year.Value) {
			continue
		}
		arrears[a.Year.Value] = a.Amount.NullDecimal
	}

	rec := domain.ArrearsRecord{
		TaxpayerName: name,
		TaxObjectID:  nop,
		Notes:        []string{},
	}
	rec.SetArrears(arrears, now)
	return rec
}

// StripSpaces removes every whitespace rune.
func StripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
