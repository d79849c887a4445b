package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultStartYear = 2004
	DefaultEndYear   = 2026

	minYear = 1900
	maxYear = 2100
)

// YearConfig is the inclusive range of tax years every record is keyed over.
type YearConfig struct {
	Start int `json:"start" validate:"gte=1900,lte=2100"`
	End   int `json:"end" validate:"gte=1900,lte=2100,gtefield=Start"`
}

func DefaultYearConfig() YearConfig {
	return YearConfig{Start: DefaultStartYear, End: DefaultEndYear}
}

var ErrInvalidYearRange = errors.New("invalid year range")

func (c YearConfig) Validate() error {
	if c.Start < minYear || c.End > maxYear {
		return fmt.Errorf("%w: years must be within %d-%d", ErrInvalidYearRange, minYear, maxYear)
	}
	if c.Start > c.End {
		return fmt.Errorf("%w: start %d is after end %d", ErrInvalidYearRange, c.Start, c.End)
	}
	return nil
}

func (c YearConfig) Contains(year int) bool {
	return year >= c.Start && year <= c.End
}

// Years returns the configured years in ascending order.
func (c YearConfig) Years() []int {
	if c.End < c.Start {
		return nil
	}
	years := make([]int, 0, c.End-c.Start+1)
	for y := c.Start; y <= c.End; y++ {
		years = append(years, y)
	}
	return years
}

// Arrears maps a tax year to the amount still owed for it. An entry with
// Valid=false is the absent marker: the source had no figure for that year.
// A valid zero means the year was settled.
type Arrears map[int]decimal.NullDecimal

// NewArrears returns a dense map with every configured year set to absent.
func NewArrears(cfg YearConfig) Arrears {
	a := make(Arrears, cfg.End-cfg.Start+1)
	for y := cfg.Start; y <= cfg.End; y++ {
		a[y] = decimal.NullDecimal{}
	}
	return a
}

func Amount(v decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: v, Valid: true}
}

func AmountFromInt(v int64) decimal.NullDecimal {
	return Amount(decimal.NewFromInt(v))
}

// Densify adds an absent entry for every configured year that has no key.
// Existing keys, including ones outside the range, are left untouched.
func (a Arrears) Densify(cfg YearConfig) Arrears {
	out := a.Clone()
	if out == nil {
		out = make(Arrears, cfg.End-cfg.Start+1)
	}
	for y := cfg.Start; y <= cfg.End; y++ {
		if _, ok := out[y]; !ok {
			out[y] = decimal.NullDecimal{}
		}
	}
	return out
}

func (a Arrears) Clone() Arrears {
	if a == nil {
		return nil
	}
	out := make(Arrears, len(a))
	for y, v := range a {
		out[y] = v
	}
	return out
}

// SortedYears returns the keys of a in ascending order.
func (a Arrears) SortedYears() []int {
	years := make([]int, 0, len(a))
	for y := range a {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// RecomputeTotal sums the present, strictly positive amounts. Absent and
// negative values never contribute; negatives stay in the map as entered.
func RecomputeTotal(a Arrears) decimal.Decimal {
	total := decimal.Zero
	for _, v := range a {
		if v.Valid && v.Decimal.Sign() > 0 {
			total = total.Add(v.Decimal)
		}
	}
	return total
}

type ArrearsRecord struct {
	ID           string          `json:"id"`
	TaxpayerName string          `json:"nama"`
	TaxObjectID  string          `json:"nop"`
	Arrears      Arrears         `json:"arrears"`
	Total        decimal.Decimal `json:"total"`
	Notes        []string        `json:"notes"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// SetArrears replaces the yearly breakdown, recomputes the total and stamps
// the edit time.
func (r *ArrearsRecord) SetArrears(a Arrears, now time.Time) {
	r.Arrears = a
	r.Total = RecomputeTotal(a)
	r.UpdatedAt = now
}

// Clone returns a deep copy so callers can't mutate ledger state.
func (r ArrearsRecord) Clone() ArrearsRecord {
	r.Arrears = r.Arrears.Clone()
	if r.Notes != nil {
		r.Notes = append([]string(nil), r.Notes...)
	}
	return r
}
