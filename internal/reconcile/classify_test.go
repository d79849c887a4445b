package reconcile

import (
	"testing"

	"arrears-recon/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyRow(t *testing.T) {
	cfg := domain.YearConfig{Start: 2020, End: 2023}
	r := domain.ArrearsRecord{Arrears: domain.Arrears{
		2020: {},
		2021: domain.AmountFromInt(500),
		2022: domain.AmountFromInt(0),
		2023: {},
	}}

	cells := ClassifyRow(r, cfg)
	require.Len(t, cells, 4)

	want := []domain.CellClass{
		domain.CellPreFiling,
		domain.CellOutstanding,
		domain.CellPaid,
		domain.CellOutstanding,
	}
	for i, c := range cells {
		assert.Equal(t, cfg.Start+i, c.Year)
		assert.Equal(t, want[i], c.Class, "year %d", c.Year)
	}
	assert.Nil(t, cells[0].Value)
	require.NotNil(t, cells[1].Value)
	assert.Equal(t, "500", *cells[1].Value)
}

func TestClassifyNoDataIsAllPreFiling(t *testing.T) {
	cfg := domain.YearConfig{Start: 2020, End: 2022}
	r := domain.ArrearsRecord{Arrears: domain.NewArrears(cfg)}

	_, ok := FirstFiledYear(r.Arrears)
	assert.False(t, ok)
	for _, c := range ClassifyRow(r, cfg) {
		assert.Equal(t, domain.CellPreFiling, c.Class)
	}
}

func TestClassifyMissingKeyAfterFirstFiling(t *testing.T) {
	// record keyed over an older, narrower range
	a := domain.Arrears{2020: domain.AmountFromInt(0)}
	assert.Equal(t, domain.CellPaid, ClassifyCell(a, 2020))
	assert.Equal(t, domain.CellOutstanding, ClassifyCell(a, 2024))
	assert.Equal(t, domain.CellPreFiling, ClassifyCell(a, 2019))
}
