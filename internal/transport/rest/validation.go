package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"arrears-recon/internal/domain"
	"arrears-recon/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// fromValidator reports the first failing field the way clients expect it:
// json name plus the failed tag.
func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	msg := field + " failed " + fe.Tag()
	if fe.Param() != "" {
		msg += "=" + fe.Param()
	}
	return &ValidationError{Field: field, Message: msg}
}

func decodeJSON(r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil && err != io.EOF {
		return err
	}
	return nil
}

type IDsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

func ValidateIDsRequest(r *http.Request) (*IDsRequest, error) {
	var req IDsRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, fromValidator(err)
	}
	return &req, nil
}

type SearchRequest struct {
	Query string `json:"q"`
}

// ValidateSearchRequest reads the search term from the body, falling back to
// the q query parameter.
func ValidateSearchRequest(r *http.Request) (*SearchRequest, error) {
	var req SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Query == "" {
		req.Query = r.URL.Query().Get("q")
	}
	return &req, nil
}

type yearConfigRequest struct {
	Start interface{} `json:"start"`
	End   interface{} `json:"end"`
}

func ValidateYearConfigRequest(r *http.Request) (domain.YearConfig, error) {
	var raw yearConfigRequest
	if err := decodeJSON(r, &raw); err != nil {
		return domain.YearConfig{}, err
	}

	start, err := toInt(raw.Start)
	if err != nil {
		return domain.YearConfig{}, &ValidationError{Field: "start", Message: "start must be a year"}
	}
	end, err := toInt(raw.End)
	if err != nil {
		return domain.YearConfig{}, &ValidationError{Field: "end", Message: "end must be a year"}
	}

	cfg := domain.YearConfig{Start: start, End: end}
	if err := validate.Struct(cfg); err != nil {
		return domain.YearConfig{}, fromValidator(err)
	}
	return cfg, nil
}

type rawEditRequest struct {
	TaxpayerName *string                `json:"nama"`
	TaxObjectID  *string                `json:"nop"`
	Arrears      map[string]interface{} `json:"arrears"`
}

// ValidateEditRequest accepts per-year amounts as JSON numbers, locale
// formatted strings ("1.250.000,50") or null/"" to clear the year.
func ValidateEditRequest(r *http.Request) (service.RecordEdit, error) {
	var raw rawEditRequest
	if err := decodeJSON(r, &raw); err != nil {
		return service.RecordEdit{}, err
	}

	edit := service.RecordEdit{
		TaxpayerName: raw.TaxpayerName,
		TaxObjectID:  raw.TaxObjectID,
	}
	if raw.TaxpayerName != nil && strings.TrimSpace(*raw.TaxpayerName) == "" {
		return edit, &ValidationError{Field: "nama", Message: "nama must not be empty"}
	}
	if raw.TaxObjectID != nil && strings.TrimSpace(*raw.TaxObjectID) == "" {
		return edit, &ValidationError{Field: "nop", Message: "nop must not be empty"}
	}

	if len(raw.Arrears) > 0 {
		edit.Arrears = make(domain.Arrears, len(raw.Arrears))
		for key, v := range raw.Arrears {
			year, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil {
				return edit, &ValidationError{Field: "arrears", Message: "arrears keys must be years"}
			}
			amount, err := toAmount(v)
			if err != nil {
				return edit, &ValidationError{Field: "arrears." + key, Message: "arrears." + key + " must be a number or empty"}
			}
			edit.Arrears[year] = amount
		}
	}
	return edit, nil
}

func toInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case json.Number:
		i, err := t.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	default:
		return 0, &ValidationError{Message: "invalid type for int field"}
	}
}

func toAmount(v interface{}) (decimal.NullDecimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.NullDecimal{}, nil
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		return domain.Amount(d), nil
	case string:
		return ParseLocaleAmount(t)
	default:
		return decimal.NullDecimal{}, &ValidationError{Message: "invalid type for amount field"}
	}
}

// ParseLocaleAmount reads an Indonesian formatted figure: dots group
// thousands and a comma marks decimals. Blank input is absent.
func ParseLocaleAmount(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return domain.Amount(d), nil
}

