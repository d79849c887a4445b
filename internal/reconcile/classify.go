package reconcile

import (
	"math"

	"arrears-recon/internal/domain"
)

// noFiling is the first-filed year of a record without any data: later than
// every real year, so the whole range reads as pre-filing.
const noFiling = math.MaxInt

type Cell struct {
	Year  int              `json:"year"`
	Class domain.CellClass `json:"class"`
	Value *string          `json:"value"`
}

// FirstFiledYear returns the earliest year holding a present value.
func FirstFiledYear(a domain.Arrears) (int, bool) {
	first := noFiling
	for y, v := range a {
		if v.Valid && y < first {
			first = y
		}
	}
	return first, first != noFiling
}

func classify(a domain.Arrears, year, firstFiled int) domain.CellClass {
	if year < firstFiled {
		return domain.CellPreFiling
	}
	if v, ok := a[year]; ok && v.Valid && v.Decimal.IsZero() {
		return domain.CellPaid
	}
	return domain.CellOutstanding
}

func ClassifyCell(a domain.Arrears, year int) domain.CellClass {
	first, _ := FirstFiledYear(a)
	return classify(a, year, first)
}

// ClassifyRow classifies every configured year of a record. Years the record
// has no key for are treated as absent.
func ClassifyRow(r domain.ArrearsRecord, cfg domain.YearConfig) []Cell {
	first, _ := FirstFiledYear(r.Arrears)
	years := cfg.Years()
	cells := make([]Cell, 0, len(years))
	for _, y := range years {
		c := Cell{Year: y, Class: classify(r.Arrears, y, first)}
		if v, ok := r.Arrears[y]; ok && v.Valid {
			s := v.Decimal.String()
			c.Value = &s
		}
		cells = append(cells, c)
	}
	return cells
}
