package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"arrears-recon/internal/domain"
	"arrears-recon/internal/extraction"
	"arrears-recon/internal/processlog"
	"arrears-recon/internal/reconcile"
	"arrears-recon/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrEmptyName    = errors.New("taxpayer name is required")
	ErrEmptyTaxID   = errors.New("tax object id is required")
	ErrYearOutRange = errors.New("year outside configured range")
)

// StateStore persists the three ledger collections independently.
type StateStore interface {
	Load(ctx context.Context) (repository.State, error)
	SaveRecords(ctx context.Context, records []domain.ArrearsRecord) error
	SaveLogs(ctx context.Context, logs []domain.ProcessLog) error
	SaveYearConfig(ctx context.Context, cfg domain.YearConfig) error
	Clear(ctx context.Context) error
}

// RecordEdit carries a user correction. Nil fields are left as they are;
// Arrears entries override the stored value for their year.
type RecordEdit struct {
	TaxpayerName *string
	TaxObjectID  *string
	Arrears      domain.Arrears
}

// Ledger owns the application state: records, the process log and the year
// range. Every mutation writes the touched collection back to the store.
type Ledger struct {
	mu sync.RWMutex

	store      StateStore
	logger     *logrus.Logger
	defaults   domain.YearConfig
	now        func() time.Time
	records    []domain.ArrearsRecord
	logs       *processlog.Book
	yearConfig domain.YearConfig
}

func NewLedger(store StateStore, defaults domain.YearConfig, logger *logrus.Logger) *Ledger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if defaults.Validate() != nil {
		defaults = domain.DefaultYearConfig()
	}
	return &Ledger{
		store:      store,
		logger:     logger,
		defaults:   defaults,
		now:        time.Now,
		records:    []domain.ArrearsRecord{},
		logs:       processlog.NewBook(processlog.DefaultCapacity),
		yearConfig: defaults,
	}
}

func NewRecordID() string {
	return "rec_" + uuid.NewString()
}

// Load restores state from the store. Stored records keep their year keys
// even when the range has changed since they were written.
func (l *Ledger) Load(ctx context.Context) error {
	st, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = st.Records
	l.logs.Load(st.Logs)
	l.yearConfig = l.defaults
	if st.YearConfigStored {
		l.yearConfig = st.YearConfig
	}
	if err := l.yearConfig.Validate(); err != nil {
		l.logger.WithField("module", "ledger").Warnf("stored year range ignored: %v", err)
		l.yearConfig = l.defaults
	}

	l.logger.WithFields(logrus.Fields{
		"module":  "ledger",
		"records": len(l.records),
		"logs":    l.logs.Len(),
	}).Info("state loaded")
	return nil
}

func cloneRecords(records []domain.ArrearsRecord) []domain.ArrearsRecord {
	out := make([]domain.ArrearsRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// Records returns the records matching term in collection order.
func (l *Ledger) Records(term string) []domain.ArrearsRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneRecords(reconcile.Filter(l.records, term))
}

func (l *Ledger) Record(id string) (domain.ArrearsRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if i := l.indexOf(id); i >= 0 {
		return l.records[i].Clone(), nil
	}
	return domain.ArrearsRecord{}, ErrNotFound
}

func (l *Ledger) indexOf(id string) int {
	for i, r := range l.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// SelectAll returns the ids of every record matching term.
func (l *Ledger) SelectAll(term string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	filtered := reconcile.Filter(l.records, term)
	ids := make([]string, 0, len(filtered))
	for _, r := range filtered {
		ids = append(ids, r.ID)
	}
	return ids
}

// AppendRecords adds records at the end of the collection in one commit.
// Records without an id get one.
func (l *Ledger) AppendRecords(ctx context.Context, records []domain.ArrearsRecord) ([]domain.ArrearsRecord, error) {
	if len(records) == 0 {
		return []domain.ArrearsRecord{}, nil
	}

	added := make([]domain.ArrearsRecord, 0, len(records))
	for _, r := range records {
		r = r.Clone()
		if r.ID == "" {
			r.ID = NewRecordID()
		}
		if r.Notes == nil {
			r.Notes = []string{}
		}
		added = append(added, r)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, added...)
	return cloneRecords(added), l.saveRecords(ctx)
}

// EditRecord applies a correction, re-densifies the breakdown over the current
// year range and recomputes the total. Years outside the range already on the
// record are kept.
func (l *Ledger) EditRecord(ctx context.Context, id string, edit RecordEdit) (domain.ArrearsRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(id)
	if i < 0 {
		return domain.ArrearsRecord{}, ErrNotFound
	}
	rec := l.records[i].Clone()

	if edit.TaxpayerName != nil {
		name := strings.TrimSpace(*edit.TaxpayerName)
		if name == "" {
			return domain.ArrearsRecord{}, ErrEmptyName
		}
		rec.TaxpayerName = name
	}
	if edit.TaxObjectID != nil {
		nop := extraction.StripSpaces(*edit.TaxObjectID)
		if nop == "" {
			return domain.ArrearsRecord{}, ErrEmptyTaxID
		}
		rec.TaxObjectID = nop
	}

	arrears := rec.Arrears.Densify(l.yearConfig)
	for year, v := range edit.Arrears {
		if _, known := arrears[year]; !known {
			return domain.ArrearsRecord{}, fmt.Errorf("%w: %d", ErrYearOutRange, year)
		}
		arrears[year] = v
	}
	rec.SetArrears(arrears, l.now())

	l.records[i] = rec
	return rec.Clone(), l.saveRecords(ctx)
}

// DeleteRecords removes the given ids and reports how many were removed.
func (l *Ledger) DeleteRecords(ctx context.Context, ids []string) (int, error) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := make([]domain.ArrearsRecord, 0, len(l.records))
	for _, r := range l.records {
		if _, ok := drop[r.ID]; !ok {
			kept = append(kept, r)
		}
	}
	removed := len(l.records) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	l.records = kept
	return removed, l.saveRecords(ctx)
}

func (l *Ledger) Logs() []domain.ProcessLog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.logs.Entries()
}

// UpsertLog records the latest status of a source document.
func (l *Ledger) UpsertLog(ctx context.Context, sourceName string, status domain.ProcessStatus, message string) (domain.ProcessLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.logs.Upsert(sourceName, status, message, l.now())
	return entry, l.saveLogs(ctx)
}

func (l *Ledger) DeleteLogs(ctx context.Context, ids []string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := l.logs.Remove(ids)
	if removed == 0 {
		return 0, nil
	}
	return removed, l.saveLogs(ctx)
}

func (l *Ledger) YearConfig() domain.YearConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.yearConfig
}

// SetYearConfig changes the range used for new extractions, edits and export.
// Stored records are not rewritten.
func (l *Ledger) SetYearConfig(ctx context.Context, cfg domain.YearConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if cfg == l.yearConfig {
		return nil
	}
	l.yearConfig = cfg
	if err := l.store.SaveYearConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to save year config: %w", err)
	}
	return nil
}

// Reset drops every record and log and restores the default year range.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = []domain.ArrearsRecord{}
	l.logs.Reset()
	l.yearConfig = l.defaults

	if err := l.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	l.logger.WithField("module", "ledger").Warn("state reset")
	return nil
}

// Summary reconciles the current snapshot.
func (l *Ledger) Summary() domain.ValidationSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return reconcile.Reconcile(cloneRecords(l.records), l.logs.Entries())
}

// Snapshot returns the records matching term together with the year range
// they should be rendered over.
func (l *Ledger) Snapshot(term string) ([]domain.ArrearsRecord, domain.YearConfig) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneRecords(reconcile.Filter(l.records, term)), l.yearConfig
}

// saveRecords and saveLogs must be called with mu held.
func (l *Ledger) saveRecords(ctx context.Context) error {
	if err := l.store.SaveRecords(ctx, l.records); err != nil {
		l.logger.WithField("module", "ledger").Errorf("save records: %v", err)
		return err
	}
	return nil
}

func (l *Ledger) saveLogs(ctx context.Context) error {
	if err := l.store.SaveLogs(ctx, l.logs.Entries()); err != nil {
		l.logger.WithField("module", "ledger").Errorf("save logs: %v", err)
		return err
	}
	return nil
}
