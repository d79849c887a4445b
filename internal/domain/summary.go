package domain

type DuplicateGroup struct {
	TaxObjectID string          `json:"nop"`
	Records     []ArrearsRecord `json:"records"`
}

type ValidationSummary struct {
	TotalSourcesProcessed int              `json:"totalFiles"`
	TotalRecords          int              `json:"totalRecords"`
	DuplicateGroups       []DuplicateGroup `json:"duplicateNops"`
	EmptySourceCount      int              `json:"emptyFilesCount"`
	AnomalousIDs          []string         `json:"anomalies"`
}

// Duplicates returns the duplicate groups keyed by tax object id.
func (s ValidationSummary) Duplicates() map[string][]ArrearsRecord {
	m := make(map[string][]ArrearsRecord, len(s.DuplicateGroups))
	for _, g := range s.DuplicateGroups {
		m[g.TaxObjectID] = g.Records
	}
	return m
}

type CellClass string

const (
	CellPreFiling   CellClass = "pre-filing"
	CellPaid        CellClass = "paid"
	CellOutstanding CellClass = "outstanding"
)
