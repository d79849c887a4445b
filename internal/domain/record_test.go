package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputeTotal(t *testing.T) {
	tests := []struct {
		name    string
		arrears Arrears
		want    int64
	}{
		{"empty", Arrears{}, 0},
		{"all absent", NewArrears(YearConfig{Start: 2020, End: 2022}), 0},
		{"positive and paid", Arrears{2020: AmountFromInt(100), 2021: AmountFromInt(0), 2022: {}}, 100},
		{"negative ignored", Arrears{2020: AmountFromInt(-50), 2021: AmountFromInt(70)}, 70},
		{"several", Arrears{2019: AmountFromInt(5), 2020: AmountFromInt(10), 2021: AmountFromInt(15)}, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecomputeTotal(tt.arrears)
			assert.True(t, got.Equal(decimal.NewFromInt(tt.want)), "got %s want %d", got, tt.want)
		})
	}
}

func TestNewArrearsIsDense(t *testing.T) {
	cfg := YearConfig{Start: 2004, End: 2026}
	a := NewArrears(cfg)

	require.Len(t, a, cfg.End-cfg.Start+1)
	for _, y := range cfg.Years() {
		v, ok := a[y]
		assert.True(t, ok, "missing year %d", y)
		assert.False(t, v.Valid)
	}
}

func TestDensifyKeepsExistingKeys(t *testing.T) {
	a := Arrears{2019: AmountFromInt(3), 2021: AmountFromInt(4)}
	out := a.Densify(YearConfig{Start: 2020, End: 2022})

	assert.Equal(t, []int{2019, 2020, 2021, 2022}, out.SortedYears())
	assert.False(t, out[2020].Valid)
	assert.True(t, out[2021].Decimal.Equal(decimal.NewFromInt(4)))
	// input untouched
	assert.Len(t, a, 2)
}

func TestYearConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultYearConfig().Validate())
	assert.NoError(t, YearConfig{Start: 2020, End: 2020}.Validate())
	assert.ErrorIs(t, YearConfig{Start: 2021, End: 2020}.Validate(), ErrInvalidYearRange)
	assert.ErrorIs(t, YearConfig{Start: 1800, End: 2020}.Validate(), ErrInvalidYearRange)
}

func TestSetArrearsRecomputes(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := ArrearsRecord{Total: decimal.NewFromInt(999)}
	r.SetArrears(Arrears{2020: AmountFromInt(40), 2021: AmountFromInt(2)}, now)

	assert.True(t, r.Total.Equal(decimal.NewFromInt(42)))
	assert.Equal(t, now, r.UpdatedAt)
}

func TestArrearsJSONAbsentIsNull(t *testing.T) {
	a := Arrears{2020: {}, 2021: AmountFromInt(0)}
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"2020":null`)

	var back Arrears
	require.NoError(t, json.Unmarshal(data, &back))
	assert.False(t, back[2020].Valid)
	assert.True(t, back[2021].Valid)
	assert.True(t, back[2021].Decimal.IsZero())
}
