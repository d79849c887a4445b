package extraction

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// RawItem is one candidate record as returned by the extraction service.
// Every field is optional; nothing about its shape is trusted.
type RawItem struct {
	Name        *string     `json:"nama"`
	TaxObjectID *string     `json:"nop"`
	Arrears     []RawArrear `json:"arrears"`
}

// UnmarshalJSON decodes each field on its own so one wrong-typed field only
// loses that field. A non-object item decodes as an empty item.
func (it *RawItem) UnmarshalJSON(data []byte) error {
	*it = RawItem{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	it.Name = stringField(fields["nama"], false)
	it.TaxObjectID = stringField(fields["nop"], true)
	it.Arrears = arrearsField(fields["arrears"])
	return nil
}

// stringField reads a JSON string. Numbers are kept as their literal text
// when allowNumber is set; any other type is treated as missing.
func stringField(raw json.RawMessage, allowNumber bool) *string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	if allowNumber {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			s = n.String()
			return &s
		}
	}
	return nil
}

// arrearsField keeps the well-formed entries of a JSON array. Anything that
// is not an array yields no entries.
func arrearsField(raw json.RawMessage) []RawArrear {
	var elems []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &elems) != nil {
		return nil
	}
	out := make([]RawArrear, 0, len(elems))
	for _, e := range elems {
		var a RawArrear
		if err := json.Unmarshal(e, &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}

type RawArrear struct {
	Year   FlexInt    `json:"year"`
	Amount FlexAmount `json:"kurangBayar"`
}

// FlexInt accepts a JSON number or a numeric string.
type FlexInt struct {
	Value int
	Valid bool
}

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	*f = FlexInt{}
	s := unquote(data)
	if s == "" || s == "null" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*f = FlexInt{Value: n, Valid: true}
		return nil
	}
	if d, err := decimal.NewFromString(s); err == nil && d.IsInteger() {
		*f = FlexInt{Value: int(d.IntPart()), Valid: true}
	}
	return nil
}

// FlexAmount accepts a JSON number, a numeric string or one of the settled
// markers printed on ledgers. Anything unreadable decodes as absent rather
// than failing the whole response.
type FlexAmount struct {
	decimal.NullDecimal
}

var settledMarkers = map[string]bool{
	"LUNAS": true,
	"NIHIL": true,
}

func (f *FlexAmount) UnmarshalJSON(data []byte) error {
	f.NullDecimal = decimal.NullDecimal{}
	s := unquote(data)
	if s == "" || s == "null" || s == "-" {
		return nil
	}
	if settledMarkers[strings.ToUpper(s)] {
		f.NullDecimal = decimal.NullDecimal{Decimal: decimal.Zero, Valid: true}
		return nil
	}
	if d, err := decimal.NewFromString(s); err == nil {
		f.NullDecimal = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return nil
}

func unquote(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return string(data)
}

// DecodeItems parses the service's JSON text into raw items. A single object
// is accepted as a one-item list.
func DecodeItems(text string) ([]RawItem, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if strings.HasPrefix(text, "{") {
		var item RawItem
		if err := json.Unmarshal([]byte(text), &item); err != nil {
			return nil, err
		}
		return []RawItem{item}, nil
	}
	var items []RawItem
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, err
	}
	return items, nil
}
