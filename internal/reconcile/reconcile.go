// Package reconcile derives the read-time views over the record collection:
// duplicate tax object ids, arithmetic anomalies and per-year cell classes.
// Everything here is recomputed from scratch on each call.
package reconcile

import (
	"strings"

	"arrears-recon/internal/domain"

	"github.com/shopspring/decimal"
)

// anomalyTolerance absorbs rounding in extracted figures.
var anomalyTolerance = decimal.NewFromInt(1)

func Reconcile(records []domain.ArrearsRecord, logs []domain.ProcessLog) domain.ValidationSummary {
	summary := domain.ValidationSummary{
		TotalSourcesProcessed: len(logs),
		TotalRecords:          len(records),
		DuplicateGroups:       DuplicateGroups(records),
		AnomalousIDs:          Anomalies(records),
	}

	for _, l := range logs {
		if l.Status == domain.StatusEmpty {
			summary.EmptySourceCount++
		}
	}

	return summary
}

// DuplicateGroups groups records by tax object id and keeps only the ids
// carried by more than one record. Groups follow the first-seen order of their
// id; records inside a group keep collection order.
func DuplicateGroups(records []domain.ArrearsRecord) []domain.DuplicateGroup {
	order := make([]string, 0)
	byID := make(map[string][]domain.ArrearsRecord)

	for _, r := range records {
		if _, seen := byID[r.TaxObjectID]; !seen {
			order = append(order, r.TaxObjectID)
		}
		byID[r.TaxObjectID] = append(byID[r.TaxObjectID], r)
	}

	groups := make([]domain.DuplicateGroup, 0)
	for _, id := range order {
		if recs := byID[id]; len(recs) > 1 {
			groups = append(groups, domain.DuplicateGroup{TaxObjectID: id, Records: recs})
		}
	}
	return groups
}

// NaiveSum adds every present amount as-is, negatives included.
func NaiveSum(a domain.Arrears) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range a {
		if v.Valid {
			sum = sum.Add(v.Decimal)
		}
	}
	return sum
}

func IsAnomalous(r domain.ArrearsRecord) bool {
	return NaiveSum(r.Arrears).Sub(r.Total).Abs().GreaterThan(anomalyTolerance)
}

// Anomalies lists the tax object ids of records whose stored total disagrees
// with their yearly breakdown.
func Anomalies(records []domain.ArrearsRecord) []string {
	ids := make([]string, 0)
	for _, r := range records {
		if IsAnomalous(r) {
			ids = append(ids, r.TaxObjectID)
		}
	}
	return ids
}

// Filter keeps records whose name contains term case-insensitively or whose
// tax object id contains term verbatim. An empty term keeps everything.
func Filter(records []domain.ArrearsRecord, term string) []domain.ArrearsRecord {
	out := make([]domain.ArrearsRecord, 0, len(records))
	lower := strings.ToLower(term)
	for _, r := range records {
		if term == "" ||
			strings.Contains(strings.ToLower(r.TaxpayerName), lower) ||
			strings.Contains(r.TaxObjectID, term) {
			out = append(out, r)
		}
	}
	return out
}
